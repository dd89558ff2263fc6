package research

import (
	"fmt"

	"privalytics/domain/core"
)

// ConsentLevel is the ordered consent tier a subject has granted.
// The ordering none < minimal < limited < full is load-bearing: each level
// grants a superset of the previous level's research uses.
type ConsentLevel int

const (
	ConsentNone ConsentLevel = iota
	ConsentMinimal
	ConsentLimited
	ConsentFull
)

// String returns the wire representation of the level.
func (l ConsentLevel) String() string {
	switch l {
	case ConsentNone:
		return "none"
	case ConsentMinimal:
		return "minimal"
	case ConsentLimited:
		return "limited"
	case ConsentFull:
		return "full"
	default:
		return "none"
	}
}

// ParseConsentLevel parses a wire-format consent level.
func ParseConsentLevel(s string) (ConsentLevel, error) {
	switch s {
	case "none":
		return ConsentNone, nil
	case "minimal":
		return ConsentMinimal, nil
	case "limited":
		return ConsentLimited, nil
	case "full":
		return ConsentFull, nil
	default:
		return ConsentNone, fmt.Errorf("unknown consent level %q", s)
	}
}

// ResearchUse is a closed set of analytical uses a consent level can grant.
type ResearchUse string

const (
	UseAggregateStatistics ResearchUse = "aggregateStatistics"
	UseAnonymizedResearch  ResearchUse = "anonymizedResearch"
	UsePatternDiscovery    ResearchUse = "patternDiscovery"
	UseEvidenceGeneration  ResearchUse = "evidenceGeneration"
	UseLongitudinalStudy   ResearchUse = "longitudinalStudy"
)

// Grants reports whether the level's capability set includes the use.
// The mapping is exhaustive over ConsentLevel so adding a level forces this
// switch to be revisited.
func (l ConsentLevel) Grants(use ResearchUse) bool {
	switch l {
	case ConsentNone:
		return false
	case ConsentMinimal:
		return use == UseAggregateStatistics
	case ConsentLimited:
		return use == UseAggregateStatistics ||
			use == UseAnonymizedResearch ||
			use == UsePatternDiscovery
	case ConsentFull:
		return true
	default:
		return false
	}
}

// ConsentEvent is one entry in a subject's consent history.
type ConsentEvent struct {
	Level       ConsentLevel   `json:"level"`
	Reason      string         `json:"reason,omitempty"`
	FormVersion string         `json:"form_version,omitempty"`
	RecordedAt  core.Timestamp `json:"recorded_at"`
}

// ConsentRecord is the per-subject consent state. Once DataPurged is set the
// record never again grants research access, regardless of CurrentLevel.
type ConsentRecord struct {
	SubjectID           core.SubjectID `json:"subject_id"`
	CurrentLevel        ConsentLevel   `json:"current_level"`
	History             []ConsentEvent `json:"history"`
	ExpirationDate      core.Timestamp `json:"expiration_date"`
	WithdrawalRequested bool           `json:"withdrawal_requested"`
	WithdrawalDate      core.Timestamp `json:"withdrawal_date,omitempty"`
	DataPurged          bool           `json:"data_purged"`
	CreatedAt           core.Timestamp `json:"created_at"`
	UpdatedAt           core.Timestamp `json:"updated_at"`
}

// AccessIssueCode classifies why a subject failed an access validation.
type AccessIssueCode string

const (
	IssueNoRecord          AccessIssueCode = "NO_CONSENT_RECORD"
	IssueWithdrawalPending AccessIssueCode = "WITHDRAWAL_REQUESTED"
	IssueDataPurged        AccessIssueCode = "DATA_PURGED"
	IssueExpired           AccessIssueCode = "CONSENT_EXPIRED"
	IssueInsufficientLevel AccessIssueCode = "INSUFFICIENT_LEVEL"
)

// AccessIssue is one structured rejection in a batch validation.
type AccessIssue struct {
	SubjectID core.SubjectID  `json:"subject_id"`
	Code      AccessIssueCode `json:"code"`
	Detail    string          `json:"detail,omitempty"`
}

// AccessValidation partitions a batch of subject ids into those whose consent
// covers the requested use and those whose does not. The partition is exact:
// valid and invalid are disjoint and their union is the input.
type AccessValidation struct {
	ValidSubjects   []core.SubjectID `json:"valid_subjects"`
	InvalidSubjects []core.SubjectID `json:"invalid_subjects"`
	Issues          []AccessIssue    `json:"issues,omitempty"`
}

// ConsentAuditEntry is one immutable line in the consent audit trail.
type ConsentAuditEntry struct {
	ID         core.ID        `json:"id"`
	SubjectID  core.SubjectID `json:"subject_id"`
	Action     string         `json:"action"`
	Detail     string         `json:"detail,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	RecordedAt core.Timestamp `json:"recorded_at"`
}
