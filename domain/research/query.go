package research

import (
	"fmt"

	"privalytics/domain/core"
)

// QueryType is the closed set of research query shapes the engine accepts.
type QueryType string

const (
	QuerySQL          QueryType = "sql"
	QueryPattern      QueryType = "pattern-discovery"
	QueryLongitudinal QueryType = "longitudinal-analysis"
	QueryCohort       QueryType = "cohort-comparison"
)

// ParseQueryType parses a wire-format query type.
func ParseQueryType(s string) (QueryType, error) {
	switch QueryType(s) {
	case QuerySQL, QueryPattern, QueryLongitudinal, QueryCohort:
		return QueryType(s), nil
	default:
		return "", fmt.Errorf("unknown query type %q", s)
	}
}

// Role is the caller's role as asserted by the external identity layer.
type Role string

const (
	RoleResearcher Role = "researcher"
	RoleClinician  Role = "clinician"
	RoleAuditor    Role = "auditor"
	RoleAdmin      Role = "admin"
)

// ParseRole parses a wire-format role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleResearcher, RoleClinician, RoleAuditor, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Permits reports whether the role may issue the query type. The mapping is
// exhaustive over Role so adding a role forces every consumer to be updated.
func (r Role) Permits(qt QueryType) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleResearcher:
		return true
	case RoleClinician:
		return qt == QuerySQL || qt == QueryLongitudinal
	case RoleAuditor:
		return qt == QuerySQL
	default:
		return false
	}
}

// ResearchQuery is an immutable query intent. Identity is the ID; caching is
// keyed off ContentHash (structural form plus parameters), never the ID.
type ResearchQuery struct {
	ID                 core.QueryID           `json:"id"`
	Type               QueryType              `json:"type"`
	Parameters         map[string]interface{} `json:"parameters,omitempty"`
	SubjectIDs         []core.SubjectID       `json:"subject_ids,omitempty"`
	AnonymizationLevel ConsentLevel           `json:"anonymization_level"`
	RequiresApproval   bool                   `json:"requires_approval"`
	CreatedAt          core.Timestamp         `json:"created_at"`
}

// ContentHash returns the cache key for the query's structural form.
func (q ResearchQuery) ContentHash() core.Hash {
	params := make(map[string]interface{}, len(q.Parameters)+2)
	for k, v := range q.Parameters {
		params[k] = v
	}
	params["_type"] = string(q.Type)
	params["_level"] = q.AnonymizationLevel.String()
	params["_subjects"] = fmt.Sprintf("%v", q.SubjectIDs)
	return core.ComputeContentHash("research_query", params)
}

// QueryStatus is the terminal status of a query execution attempt.
type QueryStatus string

const (
	StatusCompleted       QueryStatus = "completed"
	StatusPendingApproval QueryStatus = "pending-approval"
	StatusRejected        QueryStatus = "rejected"
	StatusFailed          QueryStatus = "failed"
)

// QueryPerformance is the metadata block attached to every result.
type QueryPerformance struct {
	ExecutionTimeMs int64 `json:"execution_time_ms"`
	ResultSize      int   `json:"result_size"`
	ComplexityScore int   `json:"complexity_score"`
	CacheHit        bool  `json:"cache_hit"`
}

// QueryResult is the outcome of executing a research query. Data is only
// present when Status is completed; a pending-approval result never carries
// data.
type QueryResult struct {
	QueryID     core.QueryID     `json:"query_id"`
	Status      QueryStatus      `json:"status"`
	Records     []ResearchRecord `json:"records,omitempty"`
	Metrics     *PrivacyMetrics  `json:"privacy_metrics,omitempty"`
	Performance QueryPerformance `json:"performance"`
	Message     string           `json:"message,omitempty"`
}

// ApprovalState is the approval state machine: pending is the only
// non-terminal state.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

// QueryApproval is a 1:1 approval record for a query that requires one.
type QueryApproval struct {
	ID           core.ApprovalID `json:"id"`
	QueryID      core.QueryID    `json:"query_id"`
	State        ApprovalState   `json:"state"`
	RequesterID  string          `json:"requester_id"`
	ApproverID   string          `json:"approver_id,omitempty"`
	Comments     string          `json:"comments,omitempty"`
	Restrictions []string        `json:"restrictions,omitempty"`
	RequestedAt  core.Timestamp  `json:"requested_at"`
	DecidedAt    core.Timestamp  `json:"decided_at,omitempty"`
}

// Decided reports whether the approval has reached a terminal state.
func (a QueryApproval) Decided() bool {
	return a.State != ApprovalPending
}
