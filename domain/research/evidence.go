package research

import (
	"fmt"

	"privalytics/domain/core"
)

// Direction is the expected direction of a hypothesized relationship.
type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
	DirectionNeutral  Direction = "neutral"
)

// ParseDirection parses a wire-format direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionPositive, DirectionNegative, DirectionNeutral:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// Hypothesis is a declarative statement plus the variables it relates and the
// expected direction.
type Hypothesis struct {
	ID        core.HypothesisID `json:"id"`
	Statement string            `json:"statement"`
	Variables []string          `json:"variables"`
	Direction Direction         `json:"direction"`
}

// Validate checks the structural requirements for a testable hypothesis.
func (h Hypothesis) Validate() error {
	if h.Statement == "" {
		return core.NewValidationError("statement", "must not be empty")
	}
	if len(h.Variables) < 2 {
		return core.NewValidationError("variables", "at least two variables required")
	}
	switch h.Direction {
	case DirectionPositive, DirectionNegative, DirectionNeutral:
	default:
		return core.NewValidationError("direction", fmt.Sprintf("unknown direction %q", h.Direction))
	}
	return nil
}

// TestType is the executable statistical test bound to a hypothesis.
type TestType string

const (
	TestCorrelation TestType = "correlation"
	TestRegression  TestType = "regression"
	TestTTest       TestType = "ttest"
)

// TestResult is written exactly once, when the test executes.
type TestResult struct {
	Statistic          float64    `json:"statistic"`
	PValue             float64    `json:"p_value"`
	EffectSize         float64    `json:"effect_size"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
	SampleSize         int        `json:"sample_size"`
	Conclusion         string     `json:"conclusion"`
}

// StatisticalTest binds a hypothesis to a test type and holds its result.
type StatisticalTest struct {
	ID         core.ID        `json:"id"`
	Hypothesis Hypothesis     `json:"hypothesis"`
	Type       TestType       `json:"type"`
	Result     *TestResult    `json:"result,omitempty"`
	ExecutedAt core.Timestamp `json:"executed_at,omitempty"`
}

// EffectMagnitude buckets an effect size using Cohen's thresholds.
type EffectMagnitude string

const (
	EffectNegligible EffectMagnitude = "negligible"
	EffectSmall      EffectMagnitude = "small"
	EffectMedium     EffectMagnitude = "medium"
	EffectLarge      EffectMagnitude = "large"
)

// InterpretEffectSize buckets |effect| at Cohen's 0.1 / 0.3 / 0.5 thresholds.
func InterpretEffectSize(effect float64) EffectMagnitude {
	abs := effect
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 0.5:
		return EffectLarge
	case abs >= 0.3:
		return EffectMedium
	case abs >= 0.1:
		return EffectSmall
	default:
		return EffectNegligible
	}
}

// Finding is one interpreted test outcome.
type Finding struct {
	HypothesisID core.HypothesisID `json:"hypothesis_id"`
	Statement    string            `json:"statement"`
	TestType     TestType          `json:"test_type"`
	Result       TestResult        `json:"result"`
	Magnitude    EffectMagnitude   `json:"magnitude"`
	Significant  bool              `json:"significant"`
	Supported    bool              `json:"supported"` // direction matched expectation
}

// EvidenceRequest drives one evidence-generation run.
type EvidenceRequest struct {
	Hypotheses        []Hypothesis   `json:"hypotheses"`
	SignificanceLevel float64        `json:"significance_level,omitempty"` // default 0.05
	StartTime         core.Timestamp `json:"start_time,omitempty"`
	EndTime           core.Timestamp `json:"end_time,omitempty"`
}

// EvidenceReport is the terminal, immutable report object.
type EvidenceReport struct {
	ID              core.ReportID  `json:"id"`
	Methodology     string         `json:"methodology"`
	Findings        []Finding      `json:"findings"`
	Conclusions     []string       `json:"conclusions"`
	Limitations     []string       `json:"limitations"`
	Recommendations []string       `json:"recommendations"`
	References      []string       `json:"references"`
	Warnings        []string       `json:"warnings,omitempty"`
	GeneratedAt     core.Timestamp `json:"generated_at"`
}

// StudySummary is an externally supplied per-study summary statistic for
// meta-analysis; it never touches the live query path.
type StudySummary struct {
	StudyID    string  `json:"study_id"`
	EffectSize float64 `json:"effect_size"`
	Variance   float64 `json:"variance"` // sampling variance of the effect
	SampleSize int     `json:"sample_size"`
}

// MetaAnalysisResult is the pooled outcome across studies.
type MetaAnalysisResult struct {
	PooledEffect       float64    `json:"pooled_effect"`
	StandardError      float64    `json:"standard_error"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"` // 95%, normal approximation
	Heterogeneity      float64    `json:"heterogeneity_i2"`    // I², [0,1]
	ZStatistic         float64    `json:"z_statistic"`
	PValue             float64    `json:"p_value"`
	Studies            int        `json:"studies"`
}
