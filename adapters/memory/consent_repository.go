package memory

import (
	"context"
	"sync"

	"privalytics/domain/core"
	"privalytics/domain/research"
	"privalytics/ports"
)

// ConsentRepository is the in-memory ports.ConsentRepository used by tests
// and single-process deployments.
type ConsentRepository struct {
	mu      sync.RWMutex
	records map[core.SubjectID]*research.ConsentRecord
	audit   []research.ConsentAuditEntry
}

// NewConsentRepository creates an empty in-memory consent store.
func NewConsentRepository() *ConsentRepository {
	return &ConsentRepository{
		records: make(map[core.SubjectID]*research.ConsentRecord),
	}
}

// Get retrieves a consent record.
func (r *ConsentRepository) Get(ctx context.Context, subjectID core.SubjectID) (*research.ConsentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[subjectID]
	if !ok {
		return nil, core.ErrConsentNotFound
	}
	copied := *record
	copied.History = append([]research.ConsentEvent(nil), record.History...)
	return &copied, nil
}

// Put stores or replaces a consent record.
func (r *ConsentRepository) Put(ctx context.Context, record *research.ConsentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *record
	copied.History = append([]research.ConsentEvent(nil), record.History...)
	r.records[record.SubjectID] = &copied
	return nil
}

// Delete removes a consent record.
func (r *ConsentRepository) Delete(ctx context.Context, subjectID core.SubjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, subjectID)
	return nil
}

// Scan returns all consent records.
func (r *ConsentRepository) Scan(ctx context.Context) ([]*research.ConsentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*research.ConsentRecord, 0, len(r.records))
	for _, record := range r.records {
		copied := *record
		copied.History = append([]research.ConsentEvent(nil), record.History...)
		out = append(out, &copied)
	}
	return out, nil
}

// AppendAudit appends one immutable audit entry.
func (r *ConsentRepository) AppendAudit(ctx context.Context, entry research.ConsentAuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.audit = append(r.audit, entry)
	return nil
}

// AuditTrail returns audit entries, newest first.
func (r *ConsentRepository) AuditTrail(ctx context.Context, subjectID core.SubjectID, limit int) ([]research.ConsentAuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]research.ConsentAuditEntry, 0, len(r.audit))
	for i := len(r.audit) - 1; i >= 0; i-- {
		entry := r.audit[i]
		if subjectID != "" && entry.SubjectID != subjectID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// PruneAudit removes audit entries recorded before cutoff.
func (r *ConsentRepository) PruneAudit(ctx context.Context, cutoff core.Timestamp) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.audit[:0]
	removed := 0
	for _, entry := range r.audit {
		if entry.RecordedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	r.audit = kept
	return removed, nil
}

var _ ports.ConsentRepository = (*ConsentRepository)(nil)
