package evidence

import (
	"fmt"
	"math"

	"privalytics/domain/core"
	"privalytics/domain/research"

	"gonum.org/v1/gonum/stat/distuv"
)

// MetaAnalyze pools externally supplied study summaries with fixed-effect
// inverse-variance weighting. Heterogeneity is reported as I² from Cochran's
// Q; the confidence interval is a 95% normal approximation.
func (e *Engine) MetaAnalyze(studies []research.StudySummary) (*research.MetaAnalysisResult, error) {
	if len(studies) < 2 {
		return nil, fmt.Errorf("%w: meta-analysis needs at least two studies, got %d",
			core.ErrInsufficientData, len(studies))
	}
	for _, s := range studies {
		if s.Variance <= 0 {
			return nil, core.NewValidationError("variance",
				fmt.Sprintf("study %s has non-positive variance %g", s.StudyID, s.Variance))
		}
	}

	sumW, sumWE := 0.0, 0.0
	for _, s := range studies {
		w := 1 / s.Variance
		sumW += w
		sumWE += w * s.EffectSize
	}
	pooled := sumWE / sumW
	se := math.Sqrt(1 / sumW)

	// Cochran's Q and I².
	q := 0.0
	for _, s := range studies {
		d := s.EffectSize - pooled
		q += d * d / s.Variance
	}
	dfQ := float64(len(studies) - 1)
	i2 := 0.0
	if q > dfQ && q > 0 {
		i2 = (q - dfQ) / q
	}

	z := pooled / se
	p := 2 * distuv.UnitNormal.CDF(-math.Abs(z))
	crit := distuv.UnitNormal.Quantile(0.975)

	return &research.MetaAnalysisResult{
		PooledEffect:       pooled,
		StandardError:      se,
		ConfidenceInterval: [2]float64{pooled - crit*se, pooled + crit*se},
		Heterogeneity:      i2,
		ZStatistic:         z,
		PValue:             p,
		Studies:            len(studies),
	}, nil
}
