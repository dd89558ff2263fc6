package discovery

import (
	"fmt"

	"privalytics/domain/core"
	"privalytics/domain/research"

	"gonum.org/v1/gonum/stat"
)

// stableSlopeThreshold: slopes with magnitude below this are reported as
// stable rather than directional.
const stableSlopeThreshold = 0.01

// findTrends fits an ordinary least-squares line of each metric against the
// session index and classifies the direction from the slope.
func (e *Engine) findTrends(metrics []string, records []research.ResearchRecord) []research.Pattern {
	patterns := make([]research.Pattern, 0)

	for _, metric := range metrics {
		values, _ := metricSeries(records, metric)
		if len(values) < e.cfg.MinSampleSize {
			continue
		}

		xs := make([]float64, len(values))
		for i := range xs {
			xs[i] = float64(i)
		}

		intercept, slope := stat.LinearRegression(xs, values, nil, false)
		rsq := stat.RSquared(xs, values, nil, intercept, slope)

		direction := research.TrendStable
		switch {
		case slope > stableSlopeThreshold:
			direction = research.TrendIncreasing
		case slope < -stableSlopeThreshold:
			direction = research.TrendDecreasing
		}

		priority := 1
		if direction != research.TrendStable {
			priority = 2
		}

		patterns = append(patterns, research.Pattern{
			ID:          core.NewID(),
			Type:        research.PatternTrend,
			Description: fmt.Sprintf("%s is %s over sessions (slope=%.4f, R²=%.2f)", metric, direction, slope, rsq),
			Priority:    priority,
			Confidence:  rsq,
			SampleSize:  len(values),
			Trend: &research.TrendPattern{
				Metric:    metric,
				Slope:     slope,
				Intercept: intercept,
				RSquared:  rsq,
				Direction: direction,
			},
			DiscoveredAt: core.Now(),
		})
	}
	return patterns
}
