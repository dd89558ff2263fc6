package query

import (
	"privalytics/domain/research"
)

// Complexity weights. Joins dominate because each one multiplies the data
// the store has to touch; filters and aggregations are cheaper but additive.
const (
	weightJoin        = 10
	weightAggregation = 5
	weightFilter      = 2
	weightSubject     = 1
)

// ComplexityScore computes the structural size of a query plus a weighted
// count of joins, filters, and aggregations. The score is compared against
// the configured ceiling before any data access occurs.
func ComplexityScore(q research.ResearchQuery) int {
	score := len(q.Parameters)

	score += countParam(q, "joins") * weightJoin
	score += countParam(q, "aggregations") * weightAggregation
	score += countParam(q, "filters") * weightFilter
	score += len(q.SubjectIDs) * weightSubject

	switch q.Type {
	case research.QueryLongitudinal, research.QueryCohort:
		// Multi-session shapes carry an inherent floor.
		score += 10
	}

	return score
}

// countParam returns the element count of a list-valued parameter, or 1 if
// the parameter is present but scalar.
func countParam(q research.ResearchQuery, name string) int {
	v, ok := q.Parameters[name]
	if !ok {
		return 0
	}
	switch vv := v.(type) {
	case []interface{}:
		return len(vv)
	case []string:
		return len(vv)
	case map[string]interface{}:
		return len(vv)
	default:
		return 1
	}
}
