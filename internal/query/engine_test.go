package query

import (
	"context"
	"errors"
	"testing"

	"privalytics/adapters/memory"
	"privalytics/domain/core"
	"privalytics/domain/research"
	"privalytics/internal/anonymize"
	"privalytics/internal/consent"
	apperrors "privalytics/internal/errors"
	"privalytics/internal/logging"
	"privalytics/internal/rng"
	"privalytics/internal/testkit"
)

type queryFixture struct {
	engine    *Engine
	ledger    *consent.Ledger
	approvals *memory.ApprovalRepository
	source    *memory.RecordSource
}

// newQueryFixture wires a query engine over in-memory collaborators with the
// given records preloaded and every distinct subject enrolled at full
// consent.
func newQueryFixture(t *testing.T, records []research.ResearchRecord) *queryFixture {
	t.Helper()
	cfg := testkit.Config()
	log := logging.NewDefaultLogger()

	anonymizer, err := anonymize.NewEngine(cfg.Anonymization, nil, rng.New(cfg.Anonymization.NoiseSeed), log)
	if err != nil {
		t.Fatalf("anonymize.NewEngine: %v", err)
	}

	ledger := consent.NewLedger(cfg.Consent, memory.NewConsentRepository(), log)
	ctx := context.Background()
	seen := make(map[core.SubjectID]bool)
	for _, r := range records {
		if seen[r.SubjectID] {
			continue
		}
		seen[r.SubjectID] = true
		if _, err := ledger.Initialize(ctx, r.SubjectID, research.ConsentFull, "v1", "test-setup"); err != nil {
			t.Fatalf("ledger.Initialize: %v", err)
		}
	}

	source := memory.NewRecordSource(records...)
	approvals := memory.NewApprovalRepository()
	cache := memory.NewQueryCache(cfg.Query.CacheCapacity, cfg.Query.CacheTTL)

	return &queryFixture{
		engine:    NewEngine(cfg.Query, source, cache, approvals, ledger, anonymizer, log),
		ledger:    ledger,
		approvals: approvals,
		source:    source,
	}
}

func sqlQuery() research.ResearchQuery {
	return research.ResearchQuery{
		ID:                 core.QueryID(core.NewID()),
		Type:               research.QuerySQL,
		Parameters:         map[string]interface{}{"metrics": []string{"anxiety_score"}},
		AnonymizationLevel: research.ConsentLimited,
		CreatedAt:          core.Now(),
	}
}

func TestExecuteQueryRejectsOverComplexQueries(t *testing.T) {
	kit := testkit.New(10)
	fx := newQueryFixture(t, kit.Cohort(6, 30, "female", "boston"))

	q := sqlQuery()
	joins := make([]string, 12)
	for i := range joins {
		joins[i] = "join"
	}
	q.Parameters["joins"] = joins // 12*10 > ceiling of 100

	_, err := fx.engine.ExecuteQuery(context.Background(), q, "user-1", research.RoleResearcher)
	if err == nil {
		t.Fatal("expected complexity rejection")
	}
	if apperrors.GetCode(err) != apperrors.CodeValidationError {
		t.Errorf("error code = %s, want %s", apperrors.GetCode(err), apperrors.CodeValidationError)
	}
}

func TestExecuteQueryEnforcesRolePermissions(t *testing.T) {
	kit := testkit.New(11)
	fx := newQueryFixture(t, kit.Cohort(6, 30, "female", "boston"))

	q := sqlQuery()
	q.Type = research.QueryPattern

	_, err := fx.engine.ExecuteQuery(context.Background(), q, "user-1", research.RoleAuditor)
	if err == nil {
		t.Fatal("expected role rejection for auditor pattern query")
	}
	if apperrors.GetCode(err) != apperrors.CodeUnauthorized {
		t.Errorf("error code = %s, want %s", apperrors.GetCode(err), apperrors.CodeUnauthorized)
	}
}

func TestApprovalGateNeverReturnsDataWhilePending(t *testing.T) {
	kit := testkit.New(12)
	fx := newQueryFixture(t, kit.Cohort(6, 30, "female", "boston"))
	ctx := context.Background()

	q := sqlQuery()
	q.RequiresApproval = true

	result, err := fx.engine.ExecuteQuery(ctx, q, "user-1", research.RoleResearcher)
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}
	if result.Status != research.StatusPendingApproval {
		t.Fatalf("status = %s, want %s", result.Status, research.StatusPendingApproval)
	}
	if len(result.Records) != 0 {
		t.Error("pending-approval result carries data")
	}

	// The first sighting opened the workflow.
	approval, err := fx.approvals.GetByQuery(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetByQuery: %v", err)
	}
	if approval.State != research.ApprovalPending {
		t.Fatalf("approval state = %s, want pending", approval.State)
	}

	// Approve and re-run: now it executes.
	if _, err := fx.engine.ApproveQuery(ctx, approval.ID, "admin-1", true, "scoped to aggregate output", nil); err != nil {
		t.Fatalf("ApproveQuery: %v", err)
	}
	result, err = fx.engine.ExecuteQuery(ctx, q, "user-1", research.RoleResearcher)
	if err != nil {
		t.Fatalf("ExecuteQuery after approval: %v", err)
	}
	if result.Status != research.StatusCompleted {
		t.Errorf("status = %s, want completed", result.Status)
	}
	if len(result.Records) == 0 {
		t.Error("approved query returned no data")
	}
}

func TestRejectedApprovalFailsQuery(t *testing.T) {
	kit := testkit.New(13)
	fx := newQueryFixture(t, kit.Cohort(6, 30, "female", "boston"))
	ctx := context.Background()

	q := sqlQuery()
	q.RequiresApproval = true

	if _, err := fx.engine.ExecuteQuery(ctx, q, "user-1", research.RoleResearcher); err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}
	approval, err := fx.approvals.GetByQuery(ctx, q.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fx.engine.ApproveQuery(ctx, approval.ID, "admin-1", false, "scope too broad", nil); err != nil {
		t.Fatalf("ApproveQuery: %v", err)
	}

	if _, err := fx.engine.ExecuteQuery(ctx, q, "user-1", research.RoleResearcher); err == nil {
		t.Fatal("expected rejection error for rejected approval")
	}

	// Deciding twice is refused.
	if _, err := fx.engine.ApproveQuery(ctx, approval.ID, "admin-2", true, "", nil); !errors.Is(err, core.ErrApprovalDecided) {
		t.Errorf("second decision error = %v, want ErrApprovalDecided", err)
	}
}

func TestCohortQueryFailsWhenOneSubjectLacksConsent(t *testing.T) {
	kit := testkit.New(14)
	records := kit.Cohort(6, 30, "female", "boston")
	fx := newQueryFixture(t, records)
	ctx := context.Background()

	// Drop one subject to minimal consent, insufficient for research use.
	if _, err := fx.ledger.UpdateConsent(ctx, records[0].SubjectID, research.ConsentMinimal, "downgrade", "v1", "portal"); err != nil {
		t.Fatal(err)
	}

	q := sqlQuery()
	q.Type = research.QueryCohort
	for _, r := range records {
		q.SubjectIDs = append(q.SubjectIDs, r.SubjectID)
	}

	_, err := fx.engine.ExecuteQuery(ctx, q, "user-1", research.RoleResearcher)
	if err == nil {
		t.Fatal("expected consent denial")
	}
	if apperrors.GetCode(err) != apperrors.CodeConsentDenied {
		t.Errorf("error code = %s, want %s", apperrors.GetCode(err), apperrors.CodeConsentDenied)
	}
}

func TestCacheHitReturnsIdenticalRecords(t *testing.T) {
	kit := testkit.New(15)
	fx := newQueryFixture(t, kit.Cohort(6, 30, "female", "boston"))
	ctx := context.Background()

	first := sqlQuery()
	result1, err := fx.engine.ExecuteQuery(ctx, first, "user-1", research.RoleResearcher)
	if err != nil {
		t.Fatalf("first ExecuteQuery: %v", err)
	}
	if result1.Performance.CacheHit {
		t.Error("first execution reported a cache hit")
	}

	// Same structural content, different query identity.
	second := sqlQuery()
	result2, err := fx.engine.ExecuteQuery(ctx, second, "user-1", research.RoleResearcher)
	if err != nil {
		t.Fatalf("second ExecuteQuery: %v", err)
	}
	if !result2.Performance.CacheHit {
		t.Fatal("second execution missed the cache")
	}
	if result2.QueryID != second.ID {
		t.Errorf("cached result query id = %s, want %s", result2.QueryID, second.ID)
	}
	if len(result2.Records) != len(result1.Records) {
		t.Fatalf("cached record count = %d, want %d", len(result2.Records), len(result1.Records))
	}
	for i := range result1.Records {
		if result2.Records[i].SessionID != result1.Records[i].SessionID {
			t.Errorf("record %d differs between cached and original result", i)
		}
	}
}

func TestComplexityScoreWeights(t *testing.T) {
	q := research.ResearchQuery{
		Type: research.QuerySQL,
		Parameters: map[string]interface{}{
			"joins":        []string{"a", "b"},
			"filters":      []string{"f"},
			"aggregations": []string{"mean"},
		},
		SubjectIDs: []core.SubjectID{"s1", "s2", "s3"},
	}
	// 3 params + 2*10 joins + 1*2 filter + 1*5 aggregation + 3 subjects.
	if got := ComplexityScore(q); got != 33 {
		t.Errorf("ComplexityScore = %d, want 33", got)
	}

	q.Type = research.QueryLongitudinal
	if got := ComplexityScore(q); got != 43 {
		t.Errorf("longitudinal ComplexityScore = %d, want 43", got)
	}
}

func TestNaturalLanguageToQuery(t *testing.T) {
	cases := []struct {
		text         string
		wantType     research.QueryType
		wantApproval bool
		wantMetric   string
	}{
		{"average anxiety over the last 3 months", research.QuerySQL, false, "anxiety_score"},
		{"find correlations between mood and effectiveness", research.QueryPattern, true, "mood_score"},
		{"how does depression progress over time", research.QueryLongitudinal, false, "depression_score"},
		{"compare engagement for cohort A versus cohort B", research.QueryCohort, false, "engagement_score"},
	}

	for _, tc := range cases {
		q, err := NaturalLanguageToQuery(tc.text)
		if err != nil {
			t.Fatalf("NaturalLanguageToQuery(%q): %v", tc.text, err)
		}
		if q.Type != tc.wantType {
			t.Errorf("%q type = %s, want %s", tc.text, q.Type, tc.wantType)
		}
		if q.RequiresApproval != tc.wantApproval {
			t.Errorf("%q approval = %v, want %v", tc.text, q.RequiresApproval, tc.wantApproval)
		}
		metrics, _ := q.Parameters["metrics"].([]string)
		found := false
		for _, m := range metrics {
			if m == tc.wantMetric {
				found = true
			}
		}
		if !found {
			t.Errorf("%q metrics = %v, want to include %s", tc.text, metrics, tc.wantMetric)
		}
	}

	if _, err := NaturalLanguageToQuery("   "); err == nil {
		t.Error("expected error for empty text")
	}
}
