package discovery

import (
	"fmt"
	"math"

	"privalytics/domain/core"
	"privalytics/domain/research"

	"github.com/montanaflynn/stats"
)

// findAnomalies flags metric values whose z-score against the sample mean
// exceeds the configured threshold. Severity tiers at |z|>2 and |z|>3.
func (e *Engine) findAnomalies(metrics []string, records []research.ResearchRecord) []research.Pattern {
	patterns := make([]research.Pattern, 0)

	for _, metric := range metrics {
		values, indices := metricSeries(records, metric)
		if len(values) < e.cfg.MinSampleSize {
			continue
		}

		mean, err := stats.Mean(values)
		if err != nil {
			continue
		}
		stdDev, err := stats.StandardDeviationSample(values)
		if err != nil || stdDev == 0 {
			continue
		}

		for i, v := range values {
			z := (v - mean) / stdDev
			if math.Abs(z) < e.cfg.AnomalyZThreshold {
				continue
			}

			severity, priority := severityFor(z)
			patterns = append(patterns, research.Pattern{
				ID:          core.NewID(),
				Type:        research.PatternAnomaly,
				Description: fmt.Sprintf("%s value %.3f deviates %.1f standard deviations from the mean", metric, v, z),
				Priority:    priority,
				Confidence:  math.Min(math.Abs(z)/4, 1),
				SampleSize:  len(values),
				Anomaly: &research.AnomalyPattern{
					Metric:   metric,
					Index:    indices[i],
					Value:    v,
					ZScore:   z,
					Severity: severity,
				},
				DiscoveredAt: core.Now(),
			})
		}
	}
	return patterns
}

func severityFor(z float64) (research.AnomalySeverity, int) {
	abs := math.Abs(z)
	switch {
	case abs > 3:
		return research.SeverityHigh, 3
	case abs > 2.5:
		return research.SeverityMedium, 2
	default:
		return research.SeverityLow, 1
	}
}
