package evidence

import (
	"context"
	"fmt"

	"privalytics/domain/core"
	"privalytics/domain/research"
	"privalytics/internal/config"
	apperrors "privalytics/internal/errors"
	"privalytics/internal/logging"
	"privalytics/internal/query"
)

// Engine turns hypotheses into executed statistical tests and assembles the
// resulting evidence report. All record access goes through the query
// engine, so tests only ever see anonymized data.
type Engine struct {
	cfg config.EvidenceConfig
	qe  *query.Engine
	log *logging.Logger
}

// NewEngine creates an evidence generation engine.
func NewEngine(cfg config.EvidenceConfig, qe *query.Engine, log *logging.Logger) *Engine {
	return &Engine{cfg: cfg, qe: qe, log: log}
}

// GenerateEvidence validates the requested hypotheses, executes one
// statistical test per valid hypothesis, and assembles the report. Invalid
// hypotheses are dropped with a warning; the run fails only when every
// hypothesis is invalid.
func (e *Engine) GenerateEvidence(ctx context.Context, request research.EvidenceRequest, userID string, role research.Role) (*research.EvidenceReport, error) {
	alpha := request.SignificanceLevel
	if alpha <= 0 {
		alpha = e.cfg.SignificanceLevel
	}

	valid, warnings := validateHypotheses(request.Hypotheses)
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: no valid hypotheses in request", core.ErrInvalidHypothesis)
	}

	records, err := e.fetchRecords(ctx, request, valid, userID, role)
	if err != nil {
		return nil, err
	}

	findings := make([]research.Finding, 0, len(valid))
	for _, h := range valid {
		test := buildTest(h)
		if err := e.executeTest(&test, records); err != nil {
			warnings = append(warnings, fmt.Sprintf("hypothesis %s: %v", h.ID, err))
			continue
		}
		findings = append(findings, interpret(test, alpha))
	}
	if len(findings) == 0 {
		return nil, fmt.Errorf("%w: no hypothesis could be tested against the data", core.ErrInsufficientData)
	}

	report := &research.EvidenceReport{
		ID:              core.ReportID(core.NewID()),
		Methodology:     methodology(findings, len(records), alpha),
		Findings:        findings,
		Conclusions:     conclusions(findings, alpha),
		Limitations:     limitations(len(records)),
		Recommendations: recommendations(findings),
		References: []string{
			"Cohen, J. (1988). Statistical Power Analysis for the Behavioral Sciences.",
			"Dwork, C. & Roth, A. (2014). The Algorithmic Foundations of Differential Privacy.",
		},
		Warnings:    warnings,
		GeneratedAt: core.Now(),
	}
	return report, nil
}

// validateHypotheses drops structurally invalid hypotheses with a warning
// each.
func validateHypotheses(hypotheses []research.Hypothesis) ([]research.Hypothesis, []string) {
	valid := make([]research.Hypothesis, 0, len(hypotheses))
	warnings := make([]string, 0)
	for _, h := range hypotheses {
		if err := h.Validate(); err != nil {
			warnings = append(warnings, fmt.Sprintf("dropped hypothesis %q: %v", h.Statement, err))
			continue
		}
		valid = append(valid, h)
	}
	return valid, warnings
}

// buildTest binds a hypothesis to its test type: two variables means
// correlation, more means regression, anything else falls back to a t-test.
func buildTest(h research.Hypothesis) research.StatisticalTest {
	testType := research.TestTTest
	switch {
	case len(h.Variables) == 2:
		testType = research.TestCorrelation
	case len(h.Variables) > 2:
		testType = research.TestRegression
	}
	return research.StatisticalTest{
		ID:         core.NewID(),
		Hypothesis: h,
		Type:       testType,
	}
}

// interpret turns an executed test into a finding with Cohen effect-size
// bucketing and direction support.
func interpret(test research.StatisticalTest, alpha float64) research.Finding {
	result := *test.Result
	magnitude := research.InterpretEffectSize(result.EffectSize)
	significant := result.PValue < alpha

	supported := false
	switch test.Hypothesis.Direction {
	case research.DirectionPositive:
		supported = significant && result.EffectSize > 0
	case research.DirectionNegative:
		supported = significant && result.EffectSize < 0
	case research.DirectionNeutral:
		supported = !significant || magnitude == research.EffectNegligible
	}

	return research.Finding{
		HypothesisID: test.Hypothesis.ID,
		Statement:    test.Hypothesis.Statement,
		TestType:     test.Type,
		Result:       result,
		Magnitude:    magnitude,
		Significant:  significant,
		Supported:    supported,
	}
}

func (e *Engine) fetchRecords(ctx context.Context, request research.EvidenceRequest, hypotheses []research.Hypothesis, userID string, role research.Role) ([]research.ResearchRecord, error) {
	variables := make([]string, 0)
	seen := make(map[string]bool)
	for _, h := range hypotheses {
		for _, v := range h.Variables {
			if !seen[v] {
				seen[v] = true
				variables = append(variables, v)
			}
		}
	}

	q := research.ResearchQuery{
		ID:   core.QueryID(core.NewID()),
		Type: research.QueryPattern,
		Parameters: map[string]interface{}{
			"metrics": variables,
			"purpose": "evidence-generation",
		},
		AnonymizationLevel: research.ConsentLimited,
		CreatedAt:          core.Now(),
	}
	if !request.StartTime.IsZero() {
		q.Parameters["start_time"] = request.StartTime.Time()
	}
	if !request.EndTime.IsZero() {
		q.Parameters["end_time"] = request.EndTime.Time()
	}

	result, err := e.qe.ExecuteQuery(ctx, q, userID, role)
	if err != nil {
		return nil, err
	}
	if result.Status != research.StatusCompleted {
		return nil, apperrors.ExecutionError(q.ID.String(),
			fmt.Errorf("evidence sub-query ended with status %s", result.Status))
	}
	return result.Records, nil
}

func methodology(findings []research.Finding, n int, alpha float64) string {
	counts := map[research.TestType]int{}
	for _, f := range findings {
		counts[f.TestType]++
	}
	return fmt.Sprintf(
		"Hypotheses were tested against %d anonymized session records at significance level %.3f: "+
			"%d correlation test(s), %d regression test(s), %d t-test(s). Effect sizes are interpreted "+
			"on Cohen's thresholds (0.1 small, 0.3 medium, 0.5 large).",
		n, alpha, counts[research.TestCorrelation], counts[research.TestRegression], counts[research.TestTTest])
}

func conclusions(findings []research.Finding, alpha float64) []string {
	significant, large, supported := 0, 0, 0
	for _, f := range findings {
		if f.Significant {
			significant++
		}
		if f.Magnitude == research.EffectLarge {
			large++
		}
		if f.Supported {
			supported++
		}
	}
	out := []string{
		fmt.Sprintf("%d of %d hypotheses produced statistically significant results (alpha=%.3f)", significant, len(findings), alpha),
		fmt.Sprintf("%d finding(s) show a large effect size", large),
	}
	if supported > 0 {
		out = append(out, fmt.Sprintf("%d hypothesis(es) were supported in their expected direction", supported))
	}
	return out
}

func limitations(n int) []string {
	out := []string{
		"All analyses run on anonymized data; differential-privacy noise widens observed variance.",
		"The re-identification risk metric is a heuristic proxy, not a certified privacy bound.",
		"Observational session data supports association, not causation.",
	}
	if n < 100 {
		out = append(out, fmt.Sprintf("Sample size (%d records) limits statistical power.", n))
	}
	return out
}

func recommendations(findings []research.Finding) []string {
	out := make([]string, 0)
	for _, f := range findings {
		if f.Significant && (f.Magnitude == research.EffectMedium || f.Magnitude == research.EffectLarge) {
			out = append(out, fmt.Sprintf("Investigate %q further: %s effect, p=%.4f.", f.Statement, f.Magnitude, f.Result.PValue))
		}
	}
	if len(out) == 0 {
		out = append(out, "No finding cleared both significance and a medium effect; consider larger cohorts or refined hypotheses.")
	}
	return out
}
