package memory

import (
	"context"
	"sync"

	"privalytics/domain/core"
	"privalytics/domain/research"
	"privalytics/ports"
)

// RecordSource is an in-memory ports.RecordSource for tests and local runs.
type RecordSource struct {
	mu      sync.RWMutex
	records []research.ResearchRecord
}

// NewRecordSource creates a record source seeded with the given records.
func NewRecordSource(records ...research.ResearchRecord) *RecordSource {
	return &RecordSource{records: append([]research.ResearchRecord(nil), records...)}
}

// Add appends records to the source.
func (s *RecordSource) Add(records ...research.ResearchRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
}

// Store persists records, implementing ports.RecordSink.
func (s *RecordSource) Store(ctx context.Context, records []research.ResearchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Add(records...)
	return nil
}

// Fetch returns records matching the filter.
func (s *RecordSource) Fetch(ctx context.Context, filter ports.RecordFilter) ([]research.ResearchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var want map[core.SubjectID]bool
	if len(filter.SubjectIDs) > 0 {
		want = make(map[core.SubjectID]bool, len(filter.SubjectIDs))
		for _, id := range filter.SubjectIDs {
			want[id] = true
		}
	}

	out := make([]research.ResearchRecord, 0)
	for _, record := range s.records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if want != nil && !want[record.SubjectID] {
			continue
		}
		if !filter.StartTime.IsZero() && record.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && record.Timestamp.After(filter.EndTime) {
			continue
		}
		out = append(out, record.Clone())
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

var (
	_ ports.RecordSource = (*RecordSource)(nil)
	_ ports.RecordSink   = (*RecordSource)(nil)
)
