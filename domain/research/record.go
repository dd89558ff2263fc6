package research

import (
	"privalytics/domain/core"
)

// ResearchRecord is one subject-session data point submitted for research use.
// Records are never mutated in place: anonymization always produces new
// records and the originals stay in the caller's custody.
type ResearchRecord struct {
	SubjectID core.SubjectID `json:"subject_id"`
	SessionID core.SessionID `json:"session_id"`

	// Quasi-identifiers: not directly identifying alone, but re-identifying
	// in combination. These drive the k-anonymity partitioning.
	Age             int     `json:"age"`
	Gender          string  `json:"gender"`
	Location        string  `json:"location"`
	SessionDuration float64 `json:"session_duration_minutes"`

	// Sensitive measures
	EmotionScores   map[string]float64 `json:"emotion_scores,omitempty"`   // each in [0,1]
	TechniqueScores map[string]float64 `json:"technique_scores,omitempty"` // each in [0,1]

	// Free-text and linkable fields
	SessionNotes string `json:"session_notes,omitempty"`
	ClinicianID  string `json:"clinician_id,omitempty"`

	Timestamp core.Timestamp `json:"timestamp"`

	// GeneralizationLevel is 0 for raw records and rises as k-anonymity
	// generalization coarsens this record's quasi-identifier buckets.
	GeneralizationLevel int `json:"generalization_level,omitempty"`
}

// QuasiKey returns the quasi-identifier tuple used for partitioning.
// Age is taken verbatim here; generalization buckets it before re-keying.
type QuasiKey struct {
	AgeBucket      string `json:"age_bucket"`
	Gender         string `json:"gender"`
	Location       string `json:"location"`
	DurationBucket string `json:"duration_bucket"`
}

// Clone returns a deep copy of the record so pipeline stages never alias
// the caller's maps.
func (r ResearchRecord) Clone() ResearchRecord {
	out := r
	if r.EmotionScores != nil {
		out.EmotionScores = make(map[string]float64, len(r.EmotionScores))
		for k, v := range r.EmotionScores {
			out.EmotionScores[k] = v
		}
	}
	if r.TechniqueScores != nil {
		out.TechniqueScores = make(map[string]float64, len(r.TechniqueScores))
		for k, v := range r.TechniqueScores {
			out.TechniqueScores[k] = v
		}
	}
	return out
}

// PrivacyMetrics is the snapshot computed on anonymization output.
// ReidentificationRisk is a conservative monotonic proxy derived from
// uniqueness, not a calibrated probability.
type PrivacyMetrics struct {
	KValue               int     `json:"k_value"`
	EpsilonValue         float64 `json:"epsilon_value"`
	ReidentificationRisk float64 `json:"reidentification_risk"` // [0,1]
	UniquenessScore      float64 `json:"uniqueness_score"`      // [0,1]
	UndersizedPartitions int     `json:"undersized_partitions"` // partitions still below k after generalization
}

// AuditOperation records one anonymization pipeline stage applied to a batch.
type AuditOperation struct {
	Operation string         `json:"operation"`
	Detail    string         `json:"detail,omitempty"`
	Records   int            `json:"records"`
	AppliedAt core.Timestamp `json:"applied_at"`
}

// AnonymizationResult is the immutable output of one anonymization run.
type AnonymizationResult struct {
	Records  []ResearchRecord `json:"records"`
	Metrics  PrivacyMetrics   `json:"privacy_metrics"`
	AuditLog []AuditOperation `json:"audit_log"`
}

// ValidationIssue describes one privacy problem found by a pre-flight check.
type ValidationIssue struct {
	Partition      QuasiKey `json:"partition"`
	Size           int      `json:"size"`
	Issue          string   `json:"issue"`
	Recommendation string   `json:"recommendation"`
}

// ValidationReport is the output of AnonymizationEngine.Validate.
type ValidationReport struct {
	Valid   bool              `json:"valid"`
	KValue  int               `json:"k_value"`
	Issues  []ValidationIssue `json:"issues,omitempty"`
	Checked int               `json:"checked"`
}
