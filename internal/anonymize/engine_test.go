package anonymize

import (
	"context"
	"testing"

	"privalytics/domain/research"
	"privalytics/internal/keys"
	"privalytics/internal/logging"
	"privalytics/internal/rng"
	"privalytics/internal/testkit"
)

func newTestEngine(t *testing.T, k int) *Engine {
	t.Helper()
	cfg := testkit.Config().Anonymization
	cfg.KAnonymity = k
	engine, err := NewEngine(cfg, nil, rng.New(cfg.NoiseSeed), logging.NewDefaultLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	log := logging.NewDefaultLogger()
	seeded := rng.New(1)

	cfg := testkit.Config().Anonymization
	cfg.KAnonymity = 1
	if _, err := NewEngine(cfg, nil, seeded, log); err == nil {
		t.Error("expected error for k below 2")
	}

	cfg = testkit.Config().Anonymization
	cfg.Epsilon = 0
	if _, err := NewEngine(cfg, nil, seeded, log); err == nil {
		t.Error("expected error for zero epsilon")
	}

	cfg = testkit.Config().Anonymization
	cfg.EncryptFields = true
	if _, err := NewEngine(cfg, nil, seeded, log); err == nil {
		t.Error("expected error for encryption without key provider")
	}
	if _, err := NewEngine(cfg, keys.Static{Key: []byte("short")}, seeded, log); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestGeneralizeMergesNeighboringCities(t *testing.T) {
	engine := newTestEngine(t, 15)
	kit := testkit.New(1)

	// Two same-region groups of 8 are each below k=15 raw, but merge to 16
	// once location widens to region.
	records := append(kit.Cohort(8, 25, "female", "boston"),
		kit.Cohort(8, 25, "female", "cambridge")...)

	undersized := engine.generalize(records)
	if undersized != 0 {
		t.Fatalf("undersized = %d, want 0", undersized)
	}
	for i, r := range records {
		if r.Location != "northeast" {
			t.Errorf("record %d location = %q, want northeast", i, r.Location)
		}
	}
	if got := minPartitionSize(partition(records)); got < 15 {
		t.Errorf("min partition size = %d, want >= 15", got)
	}
}

func TestGeneralizeFlagsUnmergeablePartition(t *testing.T) {
	engine := newTestEngine(t, 15)
	kit := testkit.New(2)

	// Groups of 20, 20, and 10. The 10-group cannot reach k=15 through any
	// generalization and must be flagged, not hidden.
	records := append(kit.Cohort(20, 25, "female", "boston"),
		kit.Cohort(20, 34, "male", "chicago")...)
	records = append(records, kit.Cohort(10, 47, "female", "seattle")...)

	undersized := engine.generalize(records)
	if undersized != 1 {
		t.Fatalf("undersized = %d, want 1", undersized)
	}

	// The compliant groups keep their raw buckets.
	for _, r := range records[:20] {
		if r.Location != "boston" {
			t.Errorf("compliant record generalized: location = %q", r.Location)
		}
		if r.GeneralizationLevel != 0 {
			t.Errorf("compliant record level = %d, want 0", r.GeneralizationLevel)
		}
	}
	// The undersized group is fully suppressed.
	for _, r := range records[40:] {
		if r.Location != "*" || r.Age != 0 {
			t.Errorf("undersized record not suppressed: age=%d location=%q", r.Age, r.Location)
		}
	}
}

func TestAnonymizeClampsMeasuresToDomain(t *testing.T) {
	engine := newTestEngine(t, 3)
	kit := testkit.New(3)

	records := kit.Cohort(12, 30, "female", "boston")
	for i := range records {
		records[i].EmotionScores["anxiety_score"] = 0.02
		records[i].TechniqueScores["technique_effectiveness"] = 0.98
	}

	result, err := engine.Anonymize(context.Background(), records, research.ConsentLimited)
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	for i, r := range result.Records {
		for name, v := range r.EmotionScores {
			if v < 0 || v > 1 {
				t.Errorf("record %d %s = %f out of [0,1]", i, name, v)
			}
		}
		for name, v := range r.TechniqueScores {
			if v < 0 || v > 1 {
				t.Errorf("record %d %s = %f out of [0,1]", i, name, v)
			}
		}
	}
}

func TestAnonymizeDoesNotMutateInput(t *testing.T) {
	engine := newTestEngine(t, 3)
	kit := testkit.New(4)

	records := kit.Cohort(2, 28, "male", "portland")
	originalScore := records[0].EmotionScores["anxiety_score"]
	originalSession := records[0].SessionID

	if _, err := engine.Anonymize(context.Background(), records, research.ConsentLimited); err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	if records[0].EmotionScores["anxiety_score"] != originalScore {
		t.Error("input emotion scores were mutated")
	}
	if records[0].SessionID != originalSession {
		t.Error("input session id was mutated")
	}
}

func TestAnonymizeDelinksSessions(t *testing.T) {
	engine := newTestEngine(t, 3)
	kit := testkit.New(5)

	records := kit.Cohort(6, 40, "female", "denver")
	result, err := engine.Anonymize(context.Background(), records, research.ConsentLimited)
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}

	seen := make(map[string]bool)
	for i, r := range result.Records {
		if r.SessionID == records[i].SessionID {
			t.Errorf("record %d kept its original session id", i)
		}
		if seen[r.SessionID.String()] {
			t.Errorf("delinked session token reused: %s", r.SessionID)
		}
		seen[r.SessionID.String()] = true
	}

	// A second run must produce different tokens.
	again, err := engine.Anonymize(context.Background(), records, research.ConsentLimited)
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	for i := range again.Records {
		if again.Records[i].SessionID == result.Records[i].SessionID {
			t.Errorf("record %d token repeated across runs", i)
		}
	}
}

func TestAnonymizeEncryptsLinkableFields(t *testing.T) {
	cfg := testkit.Config().Anonymization
	cfg.KAnonymity = 3
	cfg.EncryptFields = true
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	engine, err := NewEngine(cfg, keys.Static{Key: key}, rng.New(cfg.NoiseSeed), logging.NewDefaultLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	kit := testkit.New(6)
	records := kit.Cohort(4, 33, "male", "miami")
	for i := range records {
		records[i].SessionNotes = "made progress on exposure hierarchy"
	}

	result, err := engine.Anonymize(context.Background(), records, research.ConsentFull)
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	for i, r := range result.Records {
		if r.SubjectID == records[i].SubjectID {
			t.Errorf("record %d subject id not encrypted", i)
		}
		if r.SessionNotes == records[i].SessionNotes {
			t.Errorf("record %d session notes not encrypted", i)
		}
		if r.ClinicianID == records[i].ClinicianID {
			t.Errorf("record %d clinician id not encrypted", i)
		}
	}
	// Randomized encryption: identical plaintexts must differ.
	if result.Records[0].SessionNotes == result.Records[1].SessionNotes {
		t.Error("identical notes encrypted to identical ciphertexts")
	}
}

func TestValidateReportsUndersizedPartitions(t *testing.T) {
	engine := newTestEngine(t, 5)
	kit := testkit.New(7)

	records := append(kit.Cohort(5, 25, "female", "boston"),
		kit.Cohort(2, 60, "male", "houston")...)

	report := engine.Validate(records)
	if report.Valid {
		t.Error("report.Valid = true, want false")
	}
	if report.Checked != 7 {
		t.Errorf("report.Checked = %d, want 7", report.Checked)
	}
	if report.KValue != 2 {
		t.Errorf("report.KValue = %d, want 2", report.KValue)
	}
	if len(report.Issues) != 1 {
		t.Fatalf("issues = %d, want 1", len(report.Issues))
	}
	if report.Issues[0].Size != 2 {
		t.Errorf("issue size = %d, want 2", report.Issues[0].Size)
	}
}

func TestAuditLogCoversEveryStage(t *testing.T) {
	engine := newTestEngine(t, 3)
	kit := testkit.New(8)

	result, err := engine.Anonymize(context.Background(), kit.Cohort(4, 30, "female", "atlanta"), research.ConsentLimited)
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}

	want := []string{
		"k_anonymity_generalization",
		"differential_privacy",
		"temporal_obfuscation",
		"session_delinkage",
	}
	if len(result.AuditLog) != len(want) {
		t.Fatalf("audit log has %d entries, want %d", len(result.AuditLog), len(want))
	}
	for i, op := range want {
		if result.AuditLog[i].Operation != op {
			t.Errorf("audit[%d] = %q, want %q", i, result.AuditLog[i].Operation, op)
		}
	}
}
