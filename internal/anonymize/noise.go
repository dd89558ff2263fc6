package anonymize

import (
	"math"
	"time"

	"privalytics/domain/research"

	"gonum.org/v1/gonum/stat/distuv"
)

// measureDomain is the valid range for emotion and technique scores; noised
// values are clamped back into it so perturbation never produces
// out-of-domain values.
const (
	measureMin = 0.0
	measureMax = 1.0
)

// addMeasureNoise applies the Laplace mechanism to every numeric sensitive
// measure, scale = sensitivity / epsilon. Invalid values (NaN, Inf) are left
// untouched and excluded from the noise count. Returns the number of values
// noised.
func (e *Engine) addMeasureNoise(records []research.ResearchRecord) int {
	laplace := distuv.Laplace{
		Mu:    0,
		Scale: e.cfg.Sensitivity / e.cfg.Epsilon,
		Src:   e.rng.Stream("dp_measures", e.cfg.NoiseSeed),
	}

	noised := 0
	for i := range records {
		noised += noiseMap(records[i].EmotionScores, laplace)
		noised += noiseMap(records[i].TechniqueScores, laplace)
	}
	return noised
}

func noiseMap(values map[string]float64, laplace distuv.Laplace) int {
	noised := 0
	for k, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		values[k] = clamp(v+laplace.Rand(), measureMin, measureMax)
		noised++
	}
	return noised
}

// obfuscateTemporal adds independent Laplace noise, with its own epsilon, to
// timestamps and session durations to defeat timing-correlation attacks.
// Durations are floored at zero.
func (e *Engine) obfuscateTemporal(records []research.ResearchRecord) {
	// Timestamp noise is drawn in minutes.
	laplace := distuv.Laplace{
		Mu:    0,
		Scale: e.cfg.Sensitivity / e.cfg.TemporalEpsilon,
		Src:   e.rng.Stream("dp_temporal", e.cfg.NoiseSeed),
	}

	for i := range records {
		shift := time.Duration(laplace.Rand() * float64(time.Minute))
		records[i].Timestamp = records[i].Timestamp.Add(shift)

		if records[i].SessionDuration > 0 {
			d := records[i].SessionDuration + laplace.Rand()
			if d < 0 {
				d = 0
			}
			records[i].SessionDuration = d
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
