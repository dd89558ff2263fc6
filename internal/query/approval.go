package query

import (
	"context"

	"privalytics/domain/core"
	"privalytics/domain/research"
)

// RequestQueryApproval creates a pending approval for a query that requires
// one. A query already holding an approval keeps it; approvals are 1:1 with
// queries.
func (e *Engine) RequestQueryApproval(ctx context.Context, q research.ResearchQuery, requesterID string) (*research.QueryApproval, error) {
	if existing, err := e.approvals.GetByQuery(ctx, q.ID); err == nil {
		return existing, nil
	} else if !core.IsNotFoundError(err) {
		return nil, err
	}

	approval := &research.QueryApproval{
		ID:          core.ApprovalID(core.NewID()),
		QueryID:     q.ID,
		State:       research.ApprovalPending,
		RequesterID: requesterID,
		RequestedAt: core.Now(),
	}
	if err := e.approvals.Create(ctx, approval); err != nil {
		return nil, err
	}
	e.log.Info("approval %s requested for query %s by %s", approval.ID, q.ID, requesterID)
	return approval, nil
}

// ApproveQuery decides a pending approval. Deciding an already-decided
// approval is rejected, never silently overwritten.
func (e *Engine) ApproveQuery(ctx context.Context, approvalID core.ApprovalID, approverID string, approve bool, comments string, restrictions []string) (*research.QueryApproval, error) {
	approval, err := e.approvals.Get(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if approval.Decided() {
		return nil, core.ErrApprovalDecided
	}

	decided := *approval
	decided.ApproverID = approverID
	decided.Comments = comments
	decided.Restrictions = restrictions
	decided.DecidedAt = core.Now()
	if approve {
		decided.State = research.ApprovalApproved
	} else {
		decided.State = research.ApprovalRejected
	}

	// The repository enforces the pending-only transition atomically, so a
	// racing second approver loses here rather than overwriting.
	if err := e.approvals.Decide(ctx, approvalID, &decided); err != nil {
		return nil, err
	}
	e.log.Info("approval %s decided %s by %s", approvalID, decided.State, approverID)
	return &decided, nil
}

// PendingApprovals lists approvals awaiting a decision.
func (e *Engine) PendingApprovals(ctx context.Context) ([]*research.QueryApproval, error) {
	return e.approvals.ListPending(ctx)
}
