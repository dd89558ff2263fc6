package consent

import (
	"context"
	"fmt"
	"time"

	"privalytics/domain/core"
	"privalytics/domain/research"
	"privalytics/internal/config"
	"privalytics/internal/logging"
	"privalytics/ports"
)

// Ledger stores and evaluates per-subject consent. All privacy decisions in
// the platform route through HasConsentFor / ValidateAccess; the ledger
// itself has no dependency on any other core component.
type Ledger struct {
	cfg   config.ConsentConfig
	repo  ports.ConsentRepository
	clock core.Clock
	log   *logging.Logger
}

// NewLedger creates a consent ledger over the given repository.
func NewLedger(cfg config.ConsentConfig, repo ports.ConsentRepository, log *logging.Logger) *Ledger {
	return &Ledger{cfg: cfg, repo: repo, clock: core.SystemClock, log: log}
}

// WithClock overrides the ledger clock; used by expiry and grace-period
// tests.
func (l *Ledger) WithClock(clock core.Clock) *Ledger {
	l.clock = clock
	return l
}

// Initialize enrolls a subject at the given consent level. Enrolling an
// already-known subject is an error; use UpdateConsent for changes.
func (l *Ledger) Initialize(ctx context.Context, subjectID core.SubjectID, level research.ConsentLevel, formVersion, actorID string) (*research.ConsentRecord, error) {
	if _, err := l.repo.Get(ctx, subjectID); err == nil {
		return nil, fmt.Errorf("%w: subject %s", core.ErrAlreadyInitialized, subjectID)
	} else if !core.IsNotFoundError(err) {
		return nil, err
	}

	now := l.clock()
	record := &research.ConsentRecord{
		SubjectID:      subjectID,
		CurrentLevel:   level,
		ExpirationDate: core.NewTimestamp(now.Add(l.cfg.ConsentValidity)),
		History: []research.ConsentEvent{{
			Level:       level,
			Reason:      "initial enrollment",
			FormVersion: formVersion,
			RecordedAt:  core.NewTimestamp(now),
		}},
		CreatedAt: core.NewTimestamp(now),
		UpdatedAt: core.NewTimestamp(now),
	}

	if err := l.repo.Put(ctx, record); err != nil {
		return nil, err
	}
	if err := l.audit(ctx, subjectID, "consent_initialized", "level="+level.String(), actorID); err != nil {
		return nil, err
	}
	return record, nil
}

// UpdateConsent changes a subject's consent level. Purged subjects cannot be
// re-leveled; they must re-enroll through an out-of-band process.
func (l *Ledger) UpdateConsent(ctx context.Context, subjectID core.SubjectID, level research.ConsentLevel, reason, formVersion, actorID string) (*research.ConsentRecord, error) {
	record, err := l.repo.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if record.DataPurged {
		return nil, core.NewConsentError(subjectID, core.ErrDataPurged)
	}

	now := l.clock()
	record.CurrentLevel = level
	record.ExpirationDate = core.NewTimestamp(now.Add(l.cfg.ConsentValidity))
	record.History = append(record.History, research.ConsentEvent{
		Level:       level,
		Reason:      reason,
		FormVersion: formVersion,
		RecordedAt:  core.NewTimestamp(now),
	})
	record.UpdatedAt = core.NewTimestamp(now)

	if err := l.repo.Put(ctx, record); err != nil {
		return nil, err
	}
	if err := l.audit(ctx, subjectID, "consent_updated", fmt.Sprintf("level=%s reason=%s", level, reason), actorID); err != nil {
		return nil, err
	}
	return record, nil
}

// RequestWithdrawal starts the withdrawal grace period. The subject is
// excluded from new research access immediately; the purge itself happens
// when an external scheduler invokes CompleteWithdrawal after the grace
// period elapses.
func (l *Ledger) RequestWithdrawal(ctx context.Context, subjectID core.SubjectID, actorID string) (*research.ConsentRecord, error) {
	record, err := l.repo.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if record.DataPurged {
		return nil, core.NewConsentError(subjectID, core.ErrDataPurged)
	}

	now := l.clock()
	record.WithdrawalRequested = true
	record.WithdrawalDate = core.NewTimestamp(now)
	record.UpdatedAt = core.NewTimestamp(now)

	if err := l.repo.Put(ctx, record); err != nil {
		return nil, err
	}
	if err := l.audit(ctx, subjectID, "withdrawal_requested",
		fmt.Sprintf("grace_period=%s", l.cfg.WithdrawalGracePeriod), actorID); err != nil {
		return nil, err
	}
	return record, nil
}

// CompleteWithdrawal marks the subject's data purged once the grace period
// has elapsed. Once purged, the record never again grants research access.
func (l *Ledger) CompleteWithdrawal(ctx context.Context, subjectID core.SubjectID, actorID string) (*research.ConsentRecord, error) {
	record, err := l.repo.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if !record.WithdrawalRequested {
		return nil, core.NewValidationError("withdrawal", "no withdrawal requested for subject "+subjectID.String())
	}
	if record.DataPurged {
		return record, nil // idempotent
	}

	now := l.clock()
	elapsed := now.Sub(record.WithdrawalDate.Time())
	if elapsed < l.cfg.WithdrawalGracePeriod {
		return nil, fmt.Errorf("%w: %s remaining", core.ErrGracePeriodActive,
			(l.cfg.WithdrawalGracePeriod - elapsed).Round(time.Minute))
	}

	record.DataPurged = true
	record.CurrentLevel = research.ConsentNone
	record.UpdatedAt = core.NewTimestamp(now)

	if err := l.repo.Put(ctx, record); err != nil {
		return nil, err
	}
	if err := l.audit(ctx, subjectID, "withdrawal_completed", "data purged", actorID); err != nil {
		return nil, err
	}
	l.log.Info("subject %s data purged after withdrawal grace period", subjectID)
	return record, nil
}

// GetConsentLevel returns the subject's current level. Purged or withdrawn
// subjects report none.
func (l *Ledger) GetConsentLevel(ctx context.Context, subjectID core.SubjectID) (research.ConsentLevel, error) {
	record, err := l.repo.Get(ctx, subjectID)
	if err != nil {
		return research.ConsentNone, err
	}
	if record.DataPurged || record.WithdrawalRequested {
		return research.ConsentNone, nil
	}
	return record.CurrentLevel, nil
}

// HasConsentFor is a pure lookup: level capability set plus expiry and
// withdrawal checks. No side effects.
func (l *Ledger) HasConsentFor(ctx context.Context, subjectID core.SubjectID, use research.ResearchUse) (bool, error) {
	record, err := l.repo.Get(ctx, subjectID)
	if err != nil {
		if core.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	return l.evaluate(record, use) == nil, nil
}

// ValidateAccess partitions subject ids into those whose consent covers the
// requested use and those whose does not, with one structured issue per
// invalid id. Safe for batches of thousands: one repository read per id and
// no side effects.
func (l *Ledger) ValidateAccess(ctx context.Context, subjectIDs []core.SubjectID, use research.ResearchUse) (*research.AccessValidation, error) {
	validation := &research.AccessValidation{
		ValidSubjects:   make([]core.SubjectID, 0, len(subjectIDs)),
		InvalidSubjects: make([]core.SubjectID, 0),
	}

	for _, subjectID := range subjectIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := l.repo.Get(ctx, subjectID)
		if err != nil {
			if core.IsNotFoundError(err) {
				validation.InvalidSubjects = append(validation.InvalidSubjects, subjectID)
				validation.Issues = append(validation.Issues, research.AccessIssue{
					SubjectID: subjectID,
					Code:      research.IssueNoRecord,
					Detail:    "no consent record on file",
				})
				continue
			}
			return nil, err
		}

		if issue := l.evaluate(record, use); issue != nil {
			validation.InvalidSubjects = append(validation.InvalidSubjects, subjectID)
			validation.Issues = append(validation.Issues, *issue)
			continue
		}
		validation.ValidSubjects = append(validation.ValidSubjects, subjectID)
	}

	return validation, nil
}

// evaluate returns nil when the record grants the use, or the structured
// issue explaining why not. Check order matters: purge dominates everything,
// then withdrawal, then expiry, then level.
func (l *Ledger) evaluate(record *research.ConsentRecord, use research.ResearchUse) *research.AccessIssue {
	switch {
	case record.DataPurged:
		return &research.AccessIssue{
			SubjectID: record.SubjectID,
			Code:      research.IssueDataPurged,
			Detail:    "subject data purged after withdrawal",
		}
	case record.WithdrawalRequested:
		return &research.AccessIssue{
			SubjectID: record.SubjectID,
			Code:      research.IssueWithdrawalPending,
			Detail:    "withdrawal requested; grace period in progress",
		}
	case !record.ExpirationDate.IsZero() && record.ExpirationDate.Before(core.NewTimestamp(l.clock())):
		return &research.AccessIssue{
			SubjectID: record.SubjectID,
			Code:      research.IssueExpired,
			Detail:    "consent expired " + record.ExpirationDate.String(),
		}
	case !record.CurrentLevel.Grants(use):
		return &research.AccessIssue{
			SubjectID: record.SubjectID,
			Code:      research.IssueInsufficientLevel,
			Detail:    fmt.Sprintf("level %s does not grant %s", record.CurrentLevel, use),
		}
	default:
		return nil
	}
}

// audit appends one immutable entry and lazily prunes entries older than the
// retention window. Pruning never removes entries younger than the window,
// so the stricter of audit coverage and regulatory retention always holds.
func (l *Ledger) audit(ctx context.Context, subjectID core.SubjectID, action, detail, actorID string) error {
	entry := research.ConsentAuditEntry{
		ID:         core.NewID(),
		SubjectID:  subjectID,
		Action:     action,
		Detail:     detail,
		ActorID:    actorID,
		RecordedAt: core.NewTimestamp(l.clock()),
	}
	if err := l.repo.AppendAudit(ctx, entry); err != nil {
		return err
	}

	cutoff := core.NewTimestamp(l.clock().Add(-l.cfg.AuditRetention))
	if removed, err := l.repo.PruneAudit(ctx, cutoff); err != nil {
		l.log.Warn("audit prune failed: %v", err)
	} else if removed > 0 {
		l.log.Debug("pruned %d audit entries older than %s", removed, l.cfg.AuditRetention)
	}
	return nil
}

// AuditTrail exposes the audit log for compliance reporting.
func (l *Ledger) AuditTrail(ctx context.Context, subjectID core.SubjectID, limit int) ([]research.ConsentAuditEntry, error) {
	return l.repo.AuditTrail(ctx, subjectID, limit)
}

// Scan exposes all consent records for compliance reporting.
func (l *Ledger) Scan(ctx context.Context) ([]*research.ConsentRecord, error) {
	return l.repo.Scan(ctx)
}
