package memory

import (
	"context"
	"sync"

	"privalytics/domain/core"
	"privalytics/domain/research"
	"privalytics/ports"
)

// ApprovalRepository is the in-memory ports.ApprovalRepository. Approvals
// are indexed by query id directly so lookup never degrades into a scan of
// all pending approvals.
type ApprovalRepository struct {
	mu        sync.Mutex
	approvals map[core.ApprovalID]*research.QueryApproval
	byQuery   map[core.QueryID]core.ApprovalID
}

// NewApprovalRepository creates an empty in-memory approval store.
func NewApprovalRepository() *ApprovalRepository {
	return &ApprovalRepository{
		approvals: make(map[core.ApprovalID]*research.QueryApproval),
		byQuery:   make(map[core.QueryID]core.ApprovalID),
	}
}

// Create stores a new pending approval.
func (r *ApprovalRepository) Create(ctx context.Context, approval *research.QueryApproval) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *approval
	r.approvals[approval.ID] = &copied
	r.byQuery[approval.QueryID] = approval.ID
	return nil
}

// Get retrieves an approval by id.
func (r *ApprovalRepository) Get(ctx context.Context, id core.ApprovalID) (*research.QueryApproval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	approval, ok := r.approvals[id]
	if !ok {
		return nil, core.ErrApprovalNotFound
	}
	copied := *approval
	return &copied, nil
}

// GetByQuery retrieves the approval for a query via the direct index.
func (r *ApprovalRepository) GetByQuery(ctx context.Context, queryID core.QueryID) (*research.QueryApproval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byQuery[queryID]
	if !ok {
		return nil, core.ErrApprovalNotFound
	}
	approval := r.approvals[id]
	copied := *approval
	return &copied, nil
}

// Decide transitions a pending approval to a terminal state atomically.
func (r *ApprovalRepository) Decide(ctx context.Context, id core.ApprovalID, decided *research.QueryApproval) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.approvals[id]
	if !ok {
		return core.ErrApprovalNotFound
	}
	if current.Decided() {
		return core.ErrApprovalDecided
	}
	copied := *decided
	r.approvals[id] = &copied
	return nil
}

// ListPending returns all approvals still awaiting a decision.
func (r *ApprovalRepository) ListPending(ctx context.Context) ([]*research.QueryApproval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*research.QueryApproval, 0)
	for _, approval := range r.approvals {
		if !approval.Decided() {
			copied := *approval
			out = append(out, &copied)
		}
	}
	return out, nil
}

var _ ports.ApprovalRepository = (*ApprovalRepository)(nil)
