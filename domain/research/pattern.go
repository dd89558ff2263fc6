package research

import (
	"privalytics/domain/core"
)

// PatternType names one of the discovery analyses.
type PatternType string

const (
	PatternCorrelation PatternType = "correlation"
	PatternTrend       PatternType = "trend"
	PatternAnomaly     PatternType = "anomaly"
	PatternCluster     PatternType = "cluster"
)

// TrendDirection classifies an OLS slope.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// AnomalySeverity tiers a z-score excursion.
type AnomalySeverity string

const (
	SeverityLow    AnomalySeverity = "low"
	SeverityMedium AnomalySeverity = "medium"
	SeverityHigh   AnomalySeverity = "high"
)

// DiscoveryRequest names the pattern types to run plus the metrics and time
// range they apply to.
type DiscoveryRequest struct {
	Types      []PatternType  `json:"types"`
	Metrics    []string       `json:"metrics"`
	StartTime  core.Timestamp `json:"start_time,omitempty"`
	EndTime    core.Timestamp `json:"end_time,omitempty"`
	MaxResults int            `json:"max_results,omitempty"`
}

// Pattern is one discovered pattern, already anonymization-safe because all
// inputs pass through the query engine first.
type Pattern struct {
	ID           core.ID     `json:"id"`
	Type         PatternType `json:"type"`
	Description  string      `json:"description"`
	Priority     int         `json:"priority"`
	Confidence   float64     `json:"confidence"`   // [0,1]
	Significance float64     `json:"significance"` // p-value where applicable
	SampleSize   int         `json:"sample_size"`

	// Type-specific payloads; exactly one is populated per pattern.
	Correlation *CorrelationPattern `json:"correlation,omitempty"`
	Trend       *TrendPattern       `json:"trend,omitempty"`
	Anomaly     *AnomalyPattern     `json:"anomaly,omitempty"`
	Cluster     *ClusterPattern     `json:"cluster,omitempty"`

	DiscoveredAt core.Timestamp `json:"discovered_at"`
}

// CorrelationPattern reports a retained variable-pair correlation.
type CorrelationPattern struct {
	VariableX   string  `json:"variable_x"`
	VariableY   string  `json:"variable_y"`
	Coefficient float64 `json:"coefficient"`
}

// TrendPattern reports an OLS fit of a metric over session index.
type TrendPattern struct {
	Metric    string         `json:"metric"`
	Slope     float64        `json:"slope"`
	Intercept float64        `json:"intercept"`
	RSquared  float64        `json:"r_squared"`
	Direction TrendDirection `json:"direction"`
}

// AnomalyPattern reports one z-score excursion.
type AnomalyPattern struct {
	Metric   string          `json:"metric"`
	Index    int             `json:"index"`
	Value    float64         `json:"value"`
	ZScore   float64         `json:"z_score"`
	Severity AnomalySeverity `json:"severity"`
}

// FeatureStats characterizes one feature within a cluster.
type FeatureStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// ClusterPattern reports one k-means cluster.
type ClusterPattern struct {
	ClusterIndex int                     `json:"cluster_index"`
	MemberIDs    []string                `json:"member_ids"`
	Centroid     []float64               `json:"centroid"`
	Features     map[string]FeatureStats `json:"features"`
}

// PatternDiscoveryResult is the immutable output of one discovery run.
type PatternDiscoveryResult struct {
	RequestID core.RequestID `json:"request_id"`
	Patterns  []Pattern      `json:"patterns"`
	Examined  int            `json:"examined"`
	CreatedAt core.Timestamp `json:"created_at"`
}

// PatternValidation partitions patterns into those that still clear the
// active sample-size and significance thresholds and those that do not.
type PatternValidation struct {
	Valid   []Pattern `json:"valid"`
	Invalid []Pattern `json:"invalid"`
	Report  string    `json:"report"`
}
