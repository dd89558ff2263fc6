package ports

import (
	"context"

	"privalytics/domain/core"
	"privalytics/domain/research"
)

// QueryCache caches anonymized query results keyed by the query's content
// hash. The cache is a latency optimization, not a correctness mechanism:
// eviction is oldest-inserted-first once capacity is exceeded, and writes
// must be atomic per key so two identical queries racing cannot corrupt an
// entry.
type QueryCache interface {
	// Get returns the cached result for a content hash, or found=false when
	// absent or expired.
	Get(ctx context.Context, key core.Hash) (result *research.QueryResult, found bool)

	// Put stores a result under the content hash.
	Put(ctx context.Context, key core.Hash, result *research.QueryResult) error

	// Delete removes one entry.
	Delete(ctx context.Context, key core.Hash) error

	// Len returns the current number of live entries.
	Len(ctx context.Context) int
}
