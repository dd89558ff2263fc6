package evidence

import (
	"fmt"
	"math"

	"privalytics/domain/core"
	"privalytics/domain/research"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// minTestSample is the floor below which no test executes.
const minTestSample = 3

// executeTest runs the bound test type against the record set and writes the
// result into the test exactly once.
func (e *Engine) executeTest(test *research.StatisticalTest, records []research.ResearchRecord) error {
	var (
		result *research.TestResult
		err    error
	)
	switch test.Type {
	case research.TestCorrelation:
		result, err = correlationTest(test.Hypothesis, records)
	case research.TestRegression:
		result, err = regressionTest(test.Hypothesis, records)
	case research.TestTTest:
		result, err = tTest(test.Hypothesis, records)
	default:
		return fmt.Errorf("unknown test type %q", test.Type)
	}
	if err != nil {
		return err
	}
	test.Result = result
	test.ExecutedAt = core.Now()
	return nil
}

// correlationTest computes Pearson r between the two hypothesis variables,
// its two-sided t p-value, and a Fisher-z 95% confidence interval.
func correlationTest(h research.Hypothesis, records []research.ResearchRecord) (*research.TestResult, error) {
	x, y := pairedValues(records, h.Variables[0], h.Variables[1])
	n := len(x)
	if n < minTestSample {
		return nil, fmt.Errorf("%w: %d paired observations for %s vs %s",
			core.ErrInsufficientData, n, h.Variables[0], h.Variables[1])
	}

	r, err := stats.Pearson(x, y)
	if err != nil || math.IsNaN(r) {
		return nil, fmt.Errorf("%w: degenerate series for correlation", core.ErrInsufficientData)
	}

	df := float64(n - 2)
	t := 0.0
	p := 1.0
	if math.Abs(r) >= 1 {
		t = math.Inf(1)
		p = 0
	} else {
		t = r * math.Sqrt(df/(1-r*r))
		tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
		p = 2 * tDist.CDF(-math.Abs(t))
	}

	lo, hi := fisherInterval(r, n)
	return &research.TestResult{
		Statistic:          t,
		PValue:             p,
		EffectSize:         r,
		ConfidenceInterval: [2]float64{lo, hi},
		SampleSize:         n,
		Conclusion: fmt.Sprintf("Pearson r=%.3f between %s and %s (t=%.2f, df=%d, p=%.4f)",
			r, h.Variables[0], h.Variables[1], t, n-2, p),
	}, nil
}

// regressionTest fits an OLS model of the first variable on the remaining
// ones via the normal equations and reports the overall F test. The effect
// size is the multiple correlation coefficient R.
func regressionTest(h research.Hypothesis, records []research.ResearchRecord) (*research.TestResult, error) {
	response := h.Variables[0]
	predictors := h.Variables[1:]

	ys, rows := completeCases(records, response, predictors)
	n := len(ys)
	k := len(predictors)
	if n < k+2 {
		return nil, fmt.Errorf("%w: %d complete cases for %d predictors", core.ErrInsufficientData, n, k)
	}

	// Design matrix with an intercept column.
	design := mat.NewDense(n, k+1, nil)
	for i, row := range rows {
		design.Set(i, 0, 1)
		for j, v := range row {
			design.Set(i, j+1, v)
		}
	}
	yVec := mat.NewVecDense(n, ys)

	var qr mat.QR
	qr.Factorize(design)
	coef := mat.NewVecDense(k+1, nil)
	if err := qr.SolveVecTo(coef, false, yVec); err != nil {
		return nil, fmt.Errorf("regression solve failed: %w", err)
	}

	// R² from residual and total sums of squares.
	yMean, _ := stats.Mean(ys)
	ssTotal, ssResidual := 0.0, 0.0
	for i := 0; i < n; i++ {
		fitted := coef.AtVec(0)
		for j := 0; j < k; j++ {
			fitted += coef.AtVec(j+1) * rows[i][j]
		}
		ssResidual += (ys[i] - fitted) * (ys[i] - fitted)
		ssTotal += (ys[i] - yMean) * (ys[i] - yMean)
	}
	if ssTotal == 0 {
		return nil, fmt.Errorf("%w: response %s has zero variance", core.ErrInsufficientData, response)
	}
	rsq := 1 - ssResidual/ssTotal
	if rsq < 0 {
		rsq = 0
	}

	dfModel := float64(k)
	dfResidual := float64(n - k - 1)
	f := math.Inf(1)
	p := 0.0
	if rsq < 1 {
		f = (rsq / dfModel) / ((1 - rsq) / dfResidual)
		fDist := distuv.F{D1: dfModel, D2: dfResidual}
		p = 1 - fDist.CDF(f)
	}

	multipleR := math.Sqrt(rsq)
	lo, hi := fisherInterval(multipleR, n)
	return &research.TestResult{
		Statistic:          f,
		PValue:             p,
		EffectSize:         multipleR,
		ConfidenceInterval: [2]float64{lo, hi},
		SampleSize:         n,
		Conclusion: fmt.Sprintf("OLS of %s on %d predictor(s): R²=%.3f (F=%.2f, df=%d/%d, p=%.4f)",
			response, k, rsq, f, k, n-k-1, p),
	}, nil
}

// tTest runs Welch's two-sample t-test of the first variable, with groups
// split by the second variable above or below its median. Effect size is
// Cohen's d on the pooled standard deviation.
func tTest(h research.Hypothesis, records []research.ResearchRecord) (*research.TestResult, error) {
	outcome := h.Variables[0]
	grouping := h.Variables[1]

	values, groups := pairedValues(records, outcome, grouping)
	if len(values) < 2*minTestSample {
		return nil, fmt.Errorf("%w: %d paired observations for t-test", core.ErrInsufficientData, len(values))
	}

	median, err := stats.Median(groups)
	if err != nil {
		return nil, err
	}
	var a, b []float64
	for i, g := range groups {
		if g > median {
			a = append(a, values[i])
		} else {
			b = append(b, values[i])
		}
	}
	if len(a) < minTestSample || len(b) < minTestSample {
		return nil, fmt.Errorf("%w: group sizes %d/%d after median split on %s",
			core.ErrInsufficientData, len(a), len(b), grouping)
	}

	meanA, _ := stats.Mean(a)
	meanB, _ := stats.Mean(b)
	varA, _ := stats.VarS(a)
	varB, _ := stats.VarS(b)
	nA, nB := float64(len(a)), float64(len(b))

	se := math.Sqrt(varA/nA + varB/nB)
	if se == 0 {
		return nil, fmt.Errorf("%w: zero variance in both groups", core.ErrInsufficientData)
	}
	t := (meanA - meanB) / se

	// Welch-Satterthwaite degrees of freedom.
	num := (varA/nA + varB/nB) * (varA/nA + varB/nB)
	den := (varA/nA)*(varA/nA)/(nA-1) + (varB/nB)*(varB/nB)/(nB-1)
	df := num / den

	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * tDist.CDF(-math.Abs(t))

	pooled := math.Sqrt(((nA-1)*varA + (nB-1)*varB) / (nA + nB - 2))
	d := 0.0
	if pooled > 0 {
		d = (meanA - meanB) / pooled
	}

	crit := tDist.Quantile(0.975)
	diff := meanA - meanB
	return &research.TestResult{
		Statistic:          t,
		PValue:             p,
		EffectSize:         d,
		ConfidenceInterval: [2]float64{diff - crit*se, diff + crit*se},
		SampleSize:         len(values),
		Conclusion: fmt.Sprintf("Welch t-test of %s split by %s: t=%.2f (df=%.1f, p=%.4f, d=%.2f)",
			outcome, grouping, t, df, p, d),
	}, nil
}

// fisherInterval is the 95% confidence interval of a correlation via the
// Fisher z transform.
func fisherInterval(r float64, n int) (lo, hi float64) {
	if n <= 3 || math.Abs(r) >= 1 {
		return -1, 1
	}
	z := math.Atanh(r)
	se := 1 / math.Sqrt(float64(n-3))
	crit := distuv.UnitNormal.Quantile(0.975)
	return math.Tanh(z - crit*se), math.Tanh(z + crit*se)
}

// pairedValues returns aligned (x, y) series for records carrying both
// metrics.
func pairedValues(records []research.ResearchRecord, metricX, metricY string) (x, y []float64) {
	for _, r := range records {
		vx, okX := metricValue(r, metricX)
		vy, okY := metricValue(r, metricY)
		if !okX || !okY {
			continue
		}
		x = append(x, vx)
		y = append(y, vy)
	}
	return x, y
}

// completeCases returns the response series and predictor rows for records
// carrying the response and every predictor.
func completeCases(records []research.ResearchRecord, response string, predictors []string) (ys []float64, rows [][]float64) {
	for _, r := range records {
		yv, ok := metricValue(r, response)
		if !ok {
			continue
		}
		row := make([]float64, 0, len(predictors))
		complete := true
		for _, p := range predictors {
			v, ok := metricValue(r, p)
			if !ok {
				complete = false
				break
			}
			row = append(row, v)
		}
		if complete {
			ys = append(ys, yv)
			rows = append(rows, row)
		}
	}
	return ys, rows
}

// metricValue resolves a metric name against a record: session_duration,
// then emotion scores, then technique scores.
func metricValue(r research.ResearchRecord, metric string) (float64, bool) {
	if metric == "session_duration" {
		return r.SessionDuration, true
	}
	if v, ok := r.EmotionScores[metric]; ok {
		return v, true
	}
	if v, ok := r.TechniqueScores[metric]; ok {
		return v, true
	}
	return 0, false
}
