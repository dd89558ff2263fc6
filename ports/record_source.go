package ports

import (
	"context"

	"privalytics/domain/core"
	"privalytics/domain/research"
)

// RecordFilter narrows a record fetch. Zero values mean no constraint.
type RecordFilter struct {
	SubjectIDs []core.SubjectID
	StartTime  core.Timestamp
	EndTime    core.Timestamp
	Limit      int
}

// RecordSource is the underlying research data store the query engine
// executes against. Raw PHI custody stays on the other side of this
// boundary; everything returned here still passes through anonymization
// before leaving the core.
type RecordSource interface {
	// Fetch returns records matching the filter.
	Fetch(ctx context.Context, filter RecordFilter) ([]research.ResearchRecord, error)
}

// RecordSink accepts new research records from the submission path. Consent
// is checked before anything reaches a sink.
type RecordSink interface {
	// Store persists the records.
	Store(ctx context.Context, records []research.ResearchRecord) error
}
