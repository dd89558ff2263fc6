package query

import (
	"regexp"
	"strings"

	"privalytics/domain/core"
	"privalytics/domain/research"
	apperrors "privalytics/internal/errors"
)

var metricAliases = map[string]string{
	"anxiety":       "anxiety_score",
	"depression":    "depression_score",
	"stress":        "stress_score",
	"mood":          "mood_score",
	"effectiveness": "technique_effectiveness",
	"engagement":    "engagement_score",
}

var lastPeriodRe = regexp.MustCompile(`last\s+(\d+)\s+(day|week|month|year)s?`)

// NaturalLanguageToQuery translates a free-text research question into a
// structured ResearchQuery. This is keyword-driven translation, not language
// understanding: it recognizes the query shape, the metrics mentioned, and a
// trailing time window.
func NaturalLanguageToQuery(text string) (research.ResearchQuery, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return research.ResearchQuery{}, apperrors.ValidationError("query text must not be empty")
	}

	q := research.ResearchQuery{
		ID:                 core.QueryID(core.NewID()),
		Type:               research.QuerySQL,
		Parameters:         map[string]interface{}{"text": text},
		AnonymizationLevel: research.ConsentLimited,
		CreatedAt:          core.Now(),
	}

	switch {
	case containsAny(normalized, "pattern", "correlat", "cluster", "trend", "anomal"):
		q.Type = research.QueryPattern
	case containsAny(normalized, "over time", "longitudinal", "progress", "across sessions"):
		q.Type = research.QueryLongitudinal
	case containsAny(normalized, "compare", "cohort", "versus", " vs "):
		q.Type = research.QueryCohort
	}

	metrics := make([]string, 0)
	for alias, metric := range metricAliases {
		if strings.Contains(normalized, alias) {
			metrics = append(metrics, metric)
		}
	}
	if len(metrics) > 0 {
		q.Parameters["metrics"] = metrics
	}

	if m := lastPeriodRe.FindStringSubmatch(normalized); m != nil {
		q.Parameters["period"] = m[1] + " " + m[2]
	}

	// Aggregate-only questions can run at a lower anonymization level;
	// anything naming individual trajectories needs the full treatment.
	if containsAny(normalized, "average", "mean", "count", "how many") {
		q.Parameters["aggregations"] = []string{"mean"}
	}

	// Broad discovery over the corpus goes through human approval.
	if q.Type == research.QueryPattern || containsAny(normalized, "all subjects", "everyone", "entire") {
		q.RequiresApproval = true
	}

	return q, nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
