// Package testkit generates deterministic synthetic session records for
// tests. All randomness comes from one seeded source so fixtures are
// reproducible across runs.
package testkit

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"privalytics/domain/core"
	"privalytics/domain/research"
	"privalytics/internal/config"
)

// Kit is a deterministic fixture generator.
type Kit struct {
	rng  *rand.Rand
	base time.Time
	seq  int
}

// New creates a kit seeded for reproducibility.
func New(seed int64) *Kit {
	return &Kit{
		rng:  rand.New(rand.NewSource(seed)),
		base: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

// Config returns a test-friendly configuration: small k, deterministic
// noise, encryption off, permissive discovery thresholds.
func Config() *config.Config {
	return &config.Config{
		Anonymization: config.AnonymizationConfig{
			KAnonymity:      3,
			Epsilon:         1.0,
			TemporalEpsilon: 0.5,
			Sensitivity:     1.0,
			EncryptFields:   false,
			NoiseSeed:       42,
		},
		Consent: config.ConsentConfig{
			WithdrawalGracePeriod: 72 * time.Hour,
			ConsentValidity:       365 * 24 * time.Hour,
			AuditRetention:        7 * 365 * 24 * time.Hour,
		},
		Query: config.QueryConfig{
			ComplexityCeiling: 100,
			CacheTTL:          15 * time.Minute,
			CacheCapacity:     16,
			QueryTimeout:      5 * time.Second,
		},
		Discovery: config.DiscoveryConfig{
			MinSampleSize:        10,
			MinConfidence:        0.7,
			SignificanceLevel:    0.05,
			AnomalyZThreshold:    2.0,
			ClusterK:             2,
			ClusterMaxIterations: 100,
			ClusterConvergence:   1e-4,
			MaxPatterns:          50,
		},
		Evidence: config.EvidenceConfig{
			SignificanceLevel: 0.05,
		},
	}
}

// next allocates the next subject/session index.
func (k *Kit) next() int {
	k.seq++
	return k.seq
}

// Record builds one session record with the given quasi-identifiers. Scores
// default to mid-range; duration sits at a 30-minute band center so temporal
// noise cannot flip its bucket.
func (k *Kit) Record(age int, gender, city string) research.ResearchRecord {
	n := k.next()
	return research.ResearchRecord{
		SubjectID:       core.SubjectID(fmt.Sprintf("subject-%04d", n)),
		SessionID:       core.SessionID(fmt.Sprintf("session-%04d", n)),
		Age:             age,
		Gender:          gender,
		Location:        city,
		SessionDuration: 45,
		EmotionScores: map[string]float64{
			"anxiety_score": 0.5,
			"mood_score":    0.5,
		},
		TechniqueScores: map[string]float64{
			"technique_effectiveness": 0.5,
		},
		ClinicianID: "clinician-1",
		Timestamp:   core.NewTimestamp(k.base.Add(time.Duration(n) * time.Hour)),
	}
}

// Cohort builds count records sharing one quasi-identifier combination.
func (k *Kit) Cohort(count, age int, gender, city string) []research.ResearchRecord {
	records := make([]research.ResearchRecord, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, k.Record(age, gender, city))
	}
	return records
}

// Correlated builds records whose two metrics carry approximately the target
// Pearson correlation, clamped into [0,1].
func (k *Kit) Correlated(n int, metricX, metricY string, target float64) []research.ResearchRecord {
	records := make([]research.ResearchRecord, 0, n)
	for i := 0; i < n; i++ {
		x := k.rng.Float64()
		noise := k.rng.NormFloat64() * math.Sqrt(1-target*target) * 0.25
		y := 0.5 + target*(x-0.5) + noise
		record := k.Record(30+i%20, "female", "boston")
		record.EmotionScores[metricX] = clamp01(x)
		record.EmotionScores[metricY] = clamp01(y)
		records = append(records, record)
	}
	return records
}

// Trending builds records whose metric rises (or falls) linearly over the
// session sequence with small jitter.
func (k *Kit) Trending(n int, metric string, slope float64) []research.ResearchRecord {
	records := make([]research.ResearchRecord, 0, n)
	for i := 0; i < n; i++ {
		record := k.Record(35, "male", "chicago")
		value := 0.2 + slope*float64(i) + k.rng.Float64()*0.02
		record.EmotionScores[metric] = clamp01(value)
		records = append(records, record)
	}
	return records
}

// TwoClusters builds two well-separated groups on the given metrics: one
// hugging the low corner, one hugging the high corner.
func (k *Kit) TwoClusters(perCluster int, metrics []string) []research.ResearchRecord {
	records := make([]research.ResearchRecord, 0, 2*perCluster)
	for c := 0; c < 2; c++ {
		center := 0.1 + 0.8*float64(c)
		for i := 0; i < perCluster; i++ {
			record := k.Record(40, "female", "seattle")
			for _, metric := range metrics {
				record.EmotionScores[metric] = clamp01(center + (k.rng.Float64()-0.5)*0.1)
			}
			records = append(records, record)
		}
	}
	return records
}

// WithOutlier replaces one record's metric with an extreme value.
func (k *Kit) WithOutlier(records []research.ResearchRecord, metric string, value float64) []research.ResearchRecord {
	if len(records) == 0 {
		return records
	}
	out := make([]research.ResearchRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	out[len(out)-1].EmotionScores[metric] = value
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
