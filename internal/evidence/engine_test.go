package evidence

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"privalytics/adapters/memory"
	"privalytics/domain/core"
	"privalytics/domain/research"
	"privalytics/internal/anonymize"
	"privalytics/internal/consent"
	"privalytics/internal/logging"
	"privalytics/internal/query"
	"privalytics/internal/rng"
	"privalytics/internal/testkit"
)

// newEvidenceEngine wires an evidence engine over in-memory collaborators.
// The anonymizer runs with a large epsilon so privacy noise does not wash out
// the statistical fixtures.
func newEvidenceEngine(t *testing.T, records []research.ResearchRecord) *Engine {
	t.Helper()
	cfg := testkit.Config()
	cfg.Anonymization.Epsilon = 50
	cfg.Anonymization.TemporalEpsilon = 50
	log := logging.NewDefaultLogger()

	anonymizer, err := anonymize.NewEngine(cfg.Anonymization, nil, rng.New(cfg.Anonymization.NoiseSeed), log)
	if err != nil {
		t.Fatalf("anonymize.NewEngine: %v", err)
	}
	ledger := consent.NewLedger(cfg.Consent, memory.NewConsentRepository(), log)
	qe := query.NewEngine(cfg.Query, memory.NewRecordSource(records...),
		memory.NewQueryCache(cfg.Query.CacheCapacity, cfg.Query.CacheTTL),
		memory.NewApprovalRepository(), ledger, anonymizer, log)

	return NewEngine(cfg.Evidence, qe, log)
}

func scoreRecord(kit *testkit.Kit, values map[string]float64) research.ResearchRecord {
	r := kit.Record(30, "female", "boston")
	for metric, v := range values {
		r.EmotionScores[metric] = v
	}
	return r
}

func TestGenerateEvidenceSupportsNegativeCorrelation(t *testing.T) {
	kit := testkit.New(30)
	records := kit.Correlated(40, "anxiety_score", "mood_score", -0.8)
	engine := newEvidenceEngine(t, records)

	request := research.EvidenceRequest{
		Hypotheses: []research.Hypothesis{{
			ID:        "h1",
			Statement: "higher anxiety is associated with lower mood",
			Variables: []string{"anxiety_score", "mood_score"},
			Direction: research.DirectionNegative,
		}},
	}

	report, err := engine.GenerateEvidence(context.Background(), request, "user-1", research.RoleResearcher)
	if err != nil {
		t.Fatalf("GenerateEvidence: %v", err)
	}
	if len(report.Findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(report.Findings))
	}

	f := report.Findings[0]
	if f.TestType != research.TestCorrelation {
		t.Errorf("test type = %s, want correlation", f.TestType)
	}
	if !f.Significant {
		t.Errorf("finding not significant: p=%.4f", f.Result.PValue)
	}
	if f.Result.EffectSize >= 0 {
		t.Errorf("effect size = %.3f, want negative", f.Result.EffectSize)
	}
	if !f.Supported {
		t.Error("negative hypothesis not marked supported")
	}
	if report.Methodology == "" || len(report.Conclusions) == 0 || len(report.References) == 0 {
		t.Error("report prose sections incomplete")
	}
}

func TestGenerateEvidenceDropsInvalidHypotheses(t *testing.T) {
	kit := testkit.New(31)
	engine := newEvidenceEngine(t, kit.Correlated(40, "anxiety_score", "mood_score", 0.7))

	request := research.EvidenceRequest{
		Hypotheses: []research.Hypothesis{
			{ID: "bad", Statement: "", Variables: []string{"anxiety_score", "mood_score"}, Direction: research.DirectionPositive},
			{ID: "good", Statement: "anxiety tracks mood", Variables: []string{"anxiety_score", "mood_score"}, Direction: research.DirectionPositive},
		},
	}

	report, err := engine.GenerateEvidence(context.Background(), request, "user-1", research.RoleResearcher)
	if err != nil {
		t.Fatalf("GenerateEvidence: %v", err)
	}
	if len(report.Findings) != 1 || report.Findings[0].HypothesisID != "good" {
		t.Errorf("findings = %+v, want only the valid hypothesis", report.Findings)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "dropped hypothesis") {
		t.Errorf("warnings = %v, want one drop warning", report.Warnings)
	}
}

func TestGenerateEvidenceFailsWhenAllHypothesesInvalid(t *testing.T) {
	kit := testkit.New(32)
	engine := newEvidenceEngine(t, kit.Cohort(12, 30, "female", "boston"))

	request := research.EvidenceRequest{
		Hypotheses: []research.Hypothesis{
			{ID: "h1", Statement: "one variable only", Variables: []string{"anxiety_score"}, Direction: research.DirectionPositive},
			{ID: "h2", Statement: "bad direction", Variables: []string{"anxiety_score", "mood_score"}, Direction: "sideways"},
		},
	}

	_, err := engine.GenerateEvidence(context.Background(), request, "user-1", research.RoleResearcher)
	if !errors.Is(err, core.ErrInvalidHypothesis) {
		t.Errorf("error = %v, want ErrInvalidHypothesis", err)
	}
}

func TestExecuteCorrelationTestOnExactSeries(t *testing.T) {
	kit := testkit.New(33)
	engine := newEvidenceEngine(t, nil)

	// y is an exact mirror of x, so r = -1.
	records := make([]research.ResearchRecord, 0, 10)
	for i := 0; i < 10; i++ {
		x := float64(i) / 10
		records = append(records, scoreRecord(kit, map[string]float64{
			"anxiety_score": x,
			"mood_score":    1 - x,
		}))
	}

	test := research.StatisticalTest{
		Hypothesis: research.Hypothesis{
			ID: "h1", Statement: "mirror", Variables: []string{"anxiety_score", "mood_score"},
			Direction: research.DirectionNegative,
		},
		Type: research.TestCorrelation,
	}
	if err := engine.executeTest(&test, records); err != nil {
		t.Fatalf("executeTest: %v", err)
	}
	if test.Result == nil {
		t.Fatal("result not written")
	}
	if math.Abs(test.Result.EffectSize+1) > 1e-9 {
		t.Errorf("r = %.6f, want -1", test.Result.EffectSize)
	}
	if test.Result.PValue != 0 {
		t.Errorf("p = %g, want 0 for perfect correlation", test.Result.PValue)
	}
	if test.ExecutedAt.IsZero() {
		t.Error("execution time not recorded")
	}
}

func TestExecuteRegressionTestRecoversLinearModel(t *testing.T) {
	kit := testkit.New(34)
	engine := newEvidenceEngine(t, nil)

	// mood is an exact linear function of anxiety and effectiveness.
	records := make([]research.ResearchRecord, 0, 12)
	for i := 0; i < 12; i++ {
		x1 := float64(i) / 12
		x2 := float64(i%4) / 4
		records = append(records, scoreRecord(kit, map[string]float64{
			"mood_score":    0.1 + 0.4*x1 + 0.3*x2,
			"anxiety_score": x1,
			"clarity_score": x2,
		}))
	}

	test := research.StatisticalTest{
		Hypothesis: research.Hypothesis{
			ID: "h1", Statement: "mood from anxiety and clarity",
			Variables: []string{"mood_score", "anxiety_score", "clarity_score"},
			Direction: research.DirectionPositive,
		},
		Type: research.TestRegression,
	}
	if err := engine.executeTest(&test, records); err != nil {
		t.Fatalf("executeTest: %v", err)
	}
	if test.Result.EffectSize < 0.99 {
		t.Errorf("multiple R = %.4f, want near 1 for an exact model", test.Result.EffectSize)
	}
	if test.Result.PValue > 1e-6 {
		t.Errorf("p = %g, want effectively zero", test.Result.PValue)
	}
	if test.Result.SampleSize != 12 {
		t.Errorf("sample size = %d, want 12", test.Result.SampleSize)
	}
}

func TestExecuteTTestSeparatesGroups(t *testing.T) {
	kit := testkit.New(35)
	engine := newEvidenceEngine(t, nil)

	records := make([]research.ResearchRecord, 0, 12)
	for i := 0; i < 6; i++ {
		records = append(records, scoreRecord(kit, map[string]float64{
			"mood_score":    0.68 + float64(i)*0.01,
			"cohort_marker": 0.8,
		}))
		records = append(records, scoreRecord(kit, map[string]float64{
			"mood_score":    0.28 + float64(i)*0.01,
			"cohort_marker": 0.2,
		}))
	}

	test := research.StatisticalTest{
		Hypothesis: research.Hypothesis{
			ID: "h1", Statement: "marked cohort reports higher mood",
			Variables: []string{"mood_score", "cohort_marker"},
			Direction: research.DirectionPositive,
		},
		Type: research.TestTTest,
	}
	if err := engine.executeTest(&test, records); err != nil {
		t.Fatalf("executeTest: %v", err)
	}
	if test.Result.EffectSize <= 0 {
		t.Errorf("Cohen's d = %.3f, want positive", test.Result.EffectSize)
	}
	if test.Result.PValue > 0.001 {
		t.Errorf("p = %g, want far below alpha for well-separated groups", test.Result.PValue)
	}
	if lo := test.Result.ConfidenceInterval[0]; lo <= 0 {
		t.Errorf("CI lower bound = %.3f, want positive mean difference", lo)
	}
}

func TestInterpretDirectionSupport(t *testing.T) {
	result := research.TestResult{PValue: 0.01, EffectSize: 0.6}
	test := research.StatisticalTest{
		Hypothesis: research.Hypothesis{ID: "h1", Direction: research.DirectionNegative},
		Type:       research.TestCorrelation,
		Result:     &result,
	}

	// Significant positive effect does not support a negative hypothesis.
	if f := interpret(test, 0.05); f.Supported {
		t.Error("positive effect marked as supporting a negative hypothesis")
	}

	test.Hypothesis.Direction = research.DirectionPositive
	if f := interpret(test, 0.05); !f.Supported {
		t.Error("significant positive effect not supporting a positive hypothesis")
	}

	// A neutral hypothesis is supported by the absence of an effect.
	test.Hypothesis.Direction = research.DirectionNeutral
	test.Result = &research.TestResult{PValue: 0.6, EffectSize: 0.05}
	if f := interpret(test, 0.05); !f.Supported {
		t.Error("null result not supporting a neutral hypothesis")
	}
}

func TestMetaAnalyzePoolsFixedEffect(t *testing.T) {
	engine := newEvidenceEngine(t, nil)

	studies := []research.StudySummary{
		{StudyID: "s1", EffectSize: 0.4, Variance: 0.04, SampleSize: 50},
		{StudyID: "s2", EffectSize: 0.6, Variance: 0.04, SampleSize: 50},
	}
	result, err := engine.MetaAnalyze(studies)
	if err != nil {
		t.Fatalf("MetaAnalyze: %v", err)
	}

	// Equal weights pool to the midpoint; se = sqrt(1/50).
	if math.Abs(result.PooledEffect-0.5) > 1e-9 {
		t.Errorf("pooled effect = %.4f, want 0.5", result.PooledEffect)
	}
	wantSE := math.Sqrt(1.0 / 50)
	if math.Abs(result.StandardError-wantSE) > 1e-9 {
		t.Errorf("se = %.4f, want %.4f", result.StandardError, wantSE)
	}
	// Q = 0.5 below df = 1, so no heterogeneity.
	if result.Heterogeneity != 0 {
		t.Errorf("I² = %.3f, want 0", result.Heterogeneity)
	}
	if result.PValue > 0.001 {
		t.Errorf("p = %g, want strongly significant", result.PValue)
	}
	if result.ConfidenceInterval[0] >= result.PooledEffect || result.ConfidenceInterval[1] <= result.PooledEffect {
		t.Errorf("CI %v does not bracket the pooled effect", result.ConfidenceInterval)
	}
}

func TestMetaAnalyzeReportsHeterogeneity(t *testing.T) {
	engine := newEvidenceEngine(t, nil)

	studies := []research.StudySummary{
		{StudyID: "s1", EffectSize: 0.1, Variance: 0.04, SampleSize: 50},
		{StudyID: "s2", EffectSize: 0.9, Variance: 0.04, SampleSize: 50},
	}
	result, err := engine.MetaAnalyze(studies)
	if err != nil {
		t.Fatalf("MetaAnalyze: %v", err)
	}
	// Q = 8 against df = 1: I² = 7/8.
	if math.Abs(result.Heterogeneity-0.875) > 1e-9 {
		t.Errorf("I² = %.4f, want 0.875", result.Heterogeneity)
	}
}

func TestMetaAnalyzeValidatesInput(t *testing.T) {
	engine := newEvidenceEngine(t, nil)

	if _, err := engine.MetaAnalyze([]research.StudySummary{{StudyID: "only"}}); !errors.Is(err, core.ErrInsufficientData) {
		t.Errorf("single study error = %v, want ErrInsufficientData", err)
	}

	studies := []research.StudySummary{
		{StudyID: "s1", EffectSize: 0.4, Variance: 0.04},
		{StudyID: "s2", EffectSize: 0.5, Variance: 0},
	}
	if _, err := engine.MetaAnalyze(studies); err == nil {
		t.Error("expected error for non-positive variance")
	}
}

func TestReportRendering(t *testing.T) {
	report := &research.EvidenceReport{
		ID:          "report-1",
		Methodology: "tested against anonymized records",
		Findings: []research.Finding{{
			HypothesisID: "h1",
			Statement:    "anxiety tracks mood",
			TestType:     research.TestCorrelation,
			Result: research.TestResult{
				Statistic: 4.2, PValue: 0.0003, EffectSize: 0.61,
				ConfidenceInterval: [2]float64{0.4, 0.76}, SampleSize: 40,
				Conclusion: "Pearson r=0.610",
			},
			Magnitude:   research.EffectLarge,
			Significant: true,
			Supported:   true,
		}},
		Conclusions: []string{"1 of 1 hypotheses significant"},
		Limitations: []string{"small sample"},
		References:  []string{"Cohen, J. (1988)."},
		GeneratedAt: core.Now(),
	}

	raw, err := RenderStructured(report)
	if err != nil {
		t.Fatalf("RenderStructured: %v", err)
	}
	if !strings.Contains(string(raw), `"anxiety tracks mood"`) {
		t.Error("structured rendering missing the finding statement")
	}

	md := RenderNarrative(report)
	for _, want := range []string{"# Evidence Report", "## Findings", "anxiety tracks mood", "## Conclusions", "Supports the hypothesized direction"} {
		if !strings.Contains(md, want) {
			t.Errorf("narrative missing %q", want)
		}
	}

	page := string(RenderNarrativeHTML(report))
	if !strings.Contains(page, "<html") || !strings.Contains(page, "anxiety tracks mood") {
		t.Error("HTML rendering incomplete")
	}
}
