package discovery

import (
	"fmt"
	"math"

	"privalytics/domain/core"
	"privalytics/domain/research"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// findCorrelations runs a grouped correlation per metric pair. A pair is
// retained only when sample size and confidence clear the configured
// thresholds.
func (e *Engine) findCorrelations(metrics []string, records []research.ResearchRecord) []research.Pattern {
	patterns := make([]research.Pattern, 0)

	for i := 0; i < len(metrics); i++ {
		for j := i + 1; j < len(metrics); j++ {
			x, y, n := alignedSeries(records, metrics[i], metrics[j])
			if n < e.cfg.MinSampleSize {
				continue
			}

			r, err := stats.Pearson(x, y)
			if err != nil || math.IsNaN(r) {
				continue
			}

			p := correlationPValue(r, n)
			confidence := 1 - p
			if confidence < e.cfg.MinConfidence {
				continue
			}

			priority := 1
			if math.Abs(r) >= 0.5 {
				priority = 2
			}

			patterns = append(patterns, research.Pattern{
				ID:           core.NewID(),
				Type:         research.PatternCorrelation,
				Description:  describeCorrelation(metrics[i], metrics[j], r),
				Priority:     priority,
				Confidence:   confidence,
				Significance: p,
				SampleSize:   n,
				Correlation: &research.CorrelationPattern{
					VariableX:   metrics[i],
					VariableY:   metrics[j],
					Coefficient: r,
				},
				DiscoveredAt: core.Now(),
			})
		}
	}
	return patterns
}

// alignedSeries returns paired values for records carrying both metrics.
func alignedSeries(records []research.ResearchRecord, metricX, metricY string) (x, y []float64, n int) {
	for _, r := range records {
		vx, okX := lookupMetric(r, metricX)
		vy, okY := lookupMetric(r, metricY)
		if !okX || !okY {
			continue
		}
		x = append(x, vx)
		y = append(y, vy)
	}
	return x, y, len(x)
}

// correlationPValue computes the two-sided p-value of a Pearson r via the
// t transform with n-2 degrees of freedom.
func correlationPValue(r float64, n int) float64 {
	if n <= 2 {
		return 1
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/(1-r*r))
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * tDist.CDF(-math.Abs(t))
}

func describeCorrelation(x, y string, r float64) string {
	strength := "weak"
	switch {
	case math.Abs(r) >= 0.7:
		strength = "strong"
	case math.Abs(r) >= 0.4:
		strength = "moderate"
	}
	direction := "positive"
	if r < 0 {
		direction = "negative"
	}
	return fmt.Sprintf("%s %s correlation between %s and %s (r=%.2f)", strength, direction, x, y, r)
}
