package ports

import (
	"context"

	"privalytics/domain/core"
	"privalytics/domain/research"
)

// ApprovalRepository stores query approval state machines. Implementations
// must make Decide atomic per approval id so two racing approvers cannot both
// win.
type ApprovalRepository interface {
	// Create stores a new pending approval.
	Create(ctx context.Context, approval *research.QueryApproval) error

	// Get retrieves an approval by id; core.ErrApprovalNotFound when absent.
	Get(ctx context.Context, id core.ApprovalID) (*research.QueryApproval, error)

	// GetByQuery retrieves the approval for a query via a direct index,
	// never a scan of all pending approvals.
	GetByQuery(ctx context.Context, queryID core.QueryID) (*research.QueryApproval, error)

	// Decide transitions a pending approval to a terminal state. Returns
	// core.ErrApprovalDecided if the approval was already decided.
	Decide(ctx context.Context, id core.ApprovalID, decided *research.QueryApproval) error

	// ListPending returns all approvals still awaiting a decision.
	ListPending(ctx context.Context) ([]*research.QueryApproval, error)
}
