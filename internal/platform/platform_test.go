package platform

import (
	"context"
	"testing"

	"privalytics/adapters/memory"
	"privalytics/domain/research"
	"privalytics/internal/anonymize"
	"privalytics/internal/consent"
	"privalytics/internal/discovery"
	apperrors "privalytics/internal/errors"
	"privalytics/internal/evidence"
	"privalytics/internal/logging"
	"privalytics/internal/query"
	"privalytics/internal/rng"
	"privalytics/internal/testkit"
)

type platformFixture struct {
	platform *Platform
	ledger   *consent.Ledger
	queries  *query.Engine
	source   *memory.RecordSource
}

// newPlatformFixture wires a full in-memory platform and initializes it.
func newPlatformFixture(t *testing.T, records []research.ResearchRecord) *platformFixture {
	t.Helper()
	cfg := testkit.Config()
	log := logging.NewDefaultLogger()

	anonymizer, err := anonymize.NewEngine(cfg.Anonymization, nil, rng.New(cfg.Anonymization.NoiseSeed), log)
	if err != nil {
		t.Fatalf("anonymize.NewEngine: %v", err)
	}
	ledger := consent.NewLedger(cfg.Consent, memory.NewConsentRepository(), log)
	source := memory.NewRecordSource(records...)
	cache := memory.NewQueryCache(cfg.Query.CacheCapacity, cfg.Query.CacheTTL)
	qe := query.NewEngine(cfg.Query, source, cache, memory.NewApprovalRepository(), ledger, anonymizer, log)
	disc := discovery.NewEngine(cfg.Discovery, qe, rng.New(7), log)
	ev := evidence.NewEngine(cfg.Evidence, qe, log)

	p := New(cfg, ledger, anonymizer, qe, disc, ev, source, cache, log)
	if env := p.Initialize(context.Background()); !env.Success {
		t.Fatalf("Initialize failed: %+v", env.Error)
	}
	return &platformFixture{platform: p, ledger: ledger, queries: qe, source: source}
}

func TestInitializeEnvelopeShape(t *testing.T) {
	fx := newPlatformFixture(t, nil)

	// Second initialization fails inside a well-formed envelope.
	env := fx.platform.Initialize(context.Background())
	if env.Success {
		t.Fatal("second Initialize succeeded")
	}
	if env.Data != nil {
		t.Error("failure envelope carries data")
	}
	if env.Error == nil || env.Error.Code != apperrors.CodeValidationError {
		t.Errorf("error = %+v, want %s", env.Error, apperrors.CodeValidationError)
	}
	if env.Metadata.RequestID == "" {
		t.Error("envelope missing request id")
	}
	if env.Metadata.Timestamp.IsZero() {
		t.Error("envelope missing timestamp")
	}
}

func TestPanicsBecomeInternalErrorEnvelopes(t *testing.T) {
	cfg := testkit.Config()
	log := logging.NewDefaultLogger()
	// No evidence engine wired: the call below dereferences nil and panics.
	p := New(cfg, nil, nil, nil, nil, nil, nil, nil, log)

	env := p.GenerateEvidenceReport(context.Background(), research.EvidenceRequest{
		Hypotheses: []research.Hypothesis{{
			ID: "h1", Statement: "s", Variables: []string{"a", "b"}, Direction: research.DirectionPositive,
		}},
	}, "user-1", "researcher")
	if env.Success {
		t.Fatal("panicking operation reported success")
	}
	if env.Error == nil || env.Error.Code != apperrors.CodeInternalError {
		t.Errorf("error = %+v, want %s", env.Error, apperrors.CodeInternalError)
	}
}

func TestSubmitResearchDataChecksConsent(t *testing.T) {
	kit := testkit.New(40)
	records := kit.Cohort(4, 30, "female", "boston")
	fx := newPlatformFixture(t, nil)
	ctx := context.Background()

	// Nobody has consented yet: the whole batch is rejected.
	env := fx.platform.SubmitResearchData(ctx, records, "clin-1", "clinician")
	if env.Success || env.Error.Code != apperrors.CodeConsentDenied {
		t.Fatalf("envelope = %+v, want consent denial", env)
	}

	// Minimal consent covers aggregate-statistics submission.
	for _, r := range records {
		if _, err := fx.ledger.Initialize(ctx, r.SubjectID, research.ConsentMinimal, "v1", "intake"); err != nil {
			t.Fatal(err)
		}
	}
	env = fx.platform.SubmitResearchData(ctx, records, "clin-1", "clinician")
	if !env.Success {
		t.Fatalf("submission failed: %+v", env.Error)
	}
	stored := env.Data.(map[string]interface{})["stored"].(int)
	if stored != 4 {
		t.Errorf("stored = %d, want 4", stored)
	}

	// Structural validation still applies.
	broken := records[:1]
	broken[0].SessionID = ""
	env = fx.platform.SubmitResearchData(ctx, broken, "clin-1", "clinician")
	if env.Success || env.Error.Code != apperrors.CodeValidationError {
		t.Errorf("envelope = %+v, want validation error", env)
	}

	env = fx.platform.SubmitResearchData(ctx, nil, "clin-1", "clinician")
	if env.Success || env.Error.Code != apperrors.CodeValidationError {
		t.Errorf("empty batch envelope = %+v, want validation error", env)
	}

	env = fx.platform.SubmitResearchData(ctx, records, "x", "superuser")
	if env.Success || env.Error.Code != apperrors.CodeUnauthorized {
		t.Errorf("unknown role envelope = %+v, want unauthorized", env)
	}
}

func TestExecuteResearchQueryAcceptsNaturalText(t *testing.T) {
	kit := testkit.New(41)
	fx := newPlatformFixture(t, kit.Cohort(6, 30, "female", "boston"))
	ctx := context.Background()

	env := fx.platform.ExecuteResearchQuery(ctx, QueryRequest{
		NaturalText: "average anxiety in recent sessions",
	}, "user-1", "researcher")
	if !env.Success {
		t.Fatalf("query failed: %+v", env.Error)
	}
	result := env.Data.(*research.QueryResult)
	if result.Status != research.StatusCompleted {
		t.Errorf("status = %s, want completed", result.Status)
	}
	if result.QueryID == "" {
		t.Error("translated query has no id")
	}

	env = fx.platform.ExecuteResearchQuery(ctx, QueryRequest{}, "user-1", "researcher")
	if env.Success || env.Error.Code != apperrors.CodeValidationError {
		t.Errorf("empty request envelope = %+v, want validation error", env)
	}
}

func TestManageConsentLifecycle(t *testing.T) {
	fx := newPlatformFixture(t, nil)
	ctx := context.Background()

	env := fx.platform.ManageConsent(ctx, ConsentRequest{
		Action: ConsentActionInitialize, SubjectID: "subject-1", Level: "limited", FormVersion: "v1",
	}, "intake")
	if !env.Success {
		t.Fatalf("initialize failed: %+v", env.Error)
	}

	env = fx.platform.ManageConsent(ctx, ConsentRequest{
		Action: ConsentActionUpdate, SubjectID: "subject-1", Level: "full", Reason: "expanded",
	}, "portal")
	if !env.Success {
		t.Fatalf("update failed: %+v", env.Error)
	}
	record := env.Data.(*research.ConsentRecord)
	if record.CurrentLevel != research.ConsentFull {
		t.Errorf("level = %v, want full", record.CurrentLevel)
	}

	env = fx.platform.ManageConsent(ctx, ConsentRequest{
		Action: ConsentActionWithdraw, SubjectID: "subject-1",
	}, "portal")
	if !env.Success {
		t.Fatalf("withdraw failed: %+v", env.Error)
	}

	env = fx.platform.ManageConsent(ctx, ConsentRequest{
		Action: "purge", SubjectID: "subject-1",
	}, "portal")
	if env.Success || env.Error.Code != apperrors.CodeValidationError {
		t.Errorf("unknown action envelope = %+v, want validation error", env)
	}

	env = fx.platform.ManageConsent(ctx, ConsentRequest{
		Action: ConsentActionInitialize, SubjectID: "subject-2", Level: "total",
	}, "intake")
	if env.Success || env.Error.Code != apperrors.CodeValidationError {
		t.Errorf("bad level envelope = %+v, want validation error", env)
	}
}

func TestApprovalOperationsAreAdminOnly(t *testing.T) {
	fx := newPlatformFixture(t, nil)
	ctx := context.Background()

	env := fx.platform.DecideApproval(ctx, ApprovalDecision{ApprovalID: "a1", Approve: true}, "user-1", "researcher")
	if env.Success || env.Error.Code != apperrors.CodeUnauthorized {
		t.Errorf("researcher decision envelope = %+v, want unauthorized", env)
	}

	env = fx.platform.DecideApproval(ctx, ApprovalDecision{ApprovalID: "a1", Approve: true}, "admin-1", "admin")
	if env.Success || env.Error.Code != apperrors.CodeNotFound {
		t.Errorf("missing approval envelope = %+v, want not found", env)
	}

	env = fx.platform.PendingApprovals(ctx, "auditor")
	if env.Success || env.Error.Code != apperrors.CodeUnauthorized {
		t.Errorf("auditor listing envelope = %+v, want unauthorized", env)
	}

	env = fx.platform.PendingApprovals(ctx, "admin")
	if !env.Success {
		t.Fatalf("admin listing failed: %+v", env.Error)
	}
	if pending := env.Data.([]*research.QueryApproval); len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestAuditTrailRoleGate(t *testing.T) {
	fx := newPlatformFixture(t, nil)
	ctx := context.Background()

	if _, err := fx.ledger.Initialize(ctx, "subject-1", research.ConsentFull, "v1", "intake"); err != nil {
		t.Fatal(err)
	}

	env := fx.platform.GetAuditTrail(ctx, "subject-1", 10, "researcher")
	if env.Success || env.Error.Code != apperrors.CodeUnauthorized {
		t.Errorf("researcher audit envelope = %+v, want unauthorized", env)
	}

	env = fx.platform.GetAuditTrail(ctx, "subject-1", 10, "auditor")
	if !env.Success {
		t.Fatalf("auditor audit failed: %+v", env.Error)
	}
	trail := env.Data.([]research.ConsentAuditEntry)
	if len(trail) != 1 || trail[0].Action != "consent_initialized" {
		t.Errorf("trail = %+v, want the initialization entry", trail)
	}
}

func TestComplianceReportAggregates(t *testing.T) {
	fx := newPlatformFixture(t, nil)
	ctx := context.Background()

	if _, err := fx.ledger.Initialize(ctx, "s1", research.ConsentFull, "v1", "intake"); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.ledger.Initialize(ctx, "s2", research.ConsentMinimal, "v1", "intake"); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.ledger.Initialize(ctx, "s3", research.ConsentFull, "v1", "intake"); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.ledger.RequestWithdrawal(ctx, "s3", "portal"); err != nil {
		t.Fatal(err)
	}

	env := fx.platform.GenerateComplianceReport(ctx, "researcher")
	if env.Success || env.Error.Code != apperrors.CodeUnauthorized {
		t.Errorf("researcher compliance envelope = %+v, want unauthorized", env)
	}

	env = fx.platform.GenerateComplianceReport(ctx, "auditor")
	if !env.Success {
		t.Fatalf("compliance report failed: %+v", env.Error)
	}
	report := env.Data.(ComplianceReport)
	if report.TotalSubjects != 3 {
		t.Errorf("total subjects = %d, want 3", report.TotalSubjects)
	}
	if report.ConsentByLevel["full"] != 2 || report.ConsentByLevel["minimal"] != 1 {
		t.Errorf("by level = %v, want full:2 minimal:1", report.ConsentByLevel)
	}
	if report.WithdrawalsPending != 1 {
		t.Errorf("withdrawals pending = %d, want 1", report.WithdrawalsPending)
	}
	if report.KAnonymity != 3 {
		t.Errorf("k = %d, want the configured 3", report.KAnonymity)
	}
	if report.GracePeriodHours != 72 {
		t.Errorf("grace period = %dh, want 72", report.GracePeriodHours)
	}
}

func TestGetStatusCoversAllServices(t *testing.T) {
	fx := newPlatformFixture(t, nil)

	env := fx.platform.GetStatus(context.Background())
	if !env.Success {
		t.Fatalf("GetStatus failed: %+v", env.Error)
	}
	status := env.Data.(PlatformStatus)
	if !status.Initialized {
		t.Error("status reports uninitialized platform")
	}

	for _, name := range []string{"consent_ledger", "anonymization", "query_engine", "pattern_discovery", "evidence_generation"} {
		svc, ok := status.Services[name]
		if !ok {
			t.Errorf("service %s missing from status", name)
			continue
		}
		if !svc.Healthy {
			t.Errorf("service %s unhealthy: %s", name, svc.Detail)
		}
	}
}
