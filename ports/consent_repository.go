package ports

import (
	"context"

	"privalytics/domain/core"
	"privalytics/domain/research"
)

// ConsentRepository defines the interface for consent record persistence.
// The ledger's privacy logic never depends on a storage technology; one
// in-memory implementation backs tests and one durable implementation backs
// production.
type ConsentRepository interface {
	// Get retrieves a consent record; core.ErrConsentNotFound when absent.
	Get(ctx context.Context, subjectID core.SubjectID) (*research.ConsentRecord, error)

	// Put stores or replaces a consent record.
	Put(ctx context.Context, record *research.ConsentRecord) error

	// Delete removes a consent record.
	Delete(ctx context.Context, subjectID core.SubjectID) error

	// Scan returns all consent records, for compliance reporting.
	Scan(ctx context.Context) ([]*research.ConsentRecord, error)

	// AppendAudit appends one immutable audit entry.
	AppendAudit(ctx context.Context, entry research.ConsentAuditEntry) error

	// AuditTrail returns audit entries, newest first, optionally filtered
	// by subject. A zero limit means no limit.
	AuditTrail(ctx context.Context, subjectID core.SubjectID, limit int) ([]research.ConsentAuditEntry, error)

	// PruneAudit removes audit entries recorded before cutoff and returns
	// the number removed.
	PruneAudit(ctx context.Context, cutoff core.Timestamp) (int, error)
}
