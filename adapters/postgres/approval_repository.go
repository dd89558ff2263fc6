package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"privalytics/domain/core"
	"privalytics/domain/research"
	"privalytics/ports"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ApprovalRepositoryImpl implements ApprovalRepository for PostgreSQL. The
// unique index on query_id gives GetByQuery its direct lookup; Decide is made
// atomic with a conditional UPDATE on state.
type ApprovalRepositoryImpl struct {
	db *sqlx.DB
}

// NewApprovalRepository creates a new PostgreSQL approval repository.
func NewApprovalRepository(db *sqlx.DB) ports.ApprovalRepository {
	return &ApprovalRepositoryImpl{db: db}
}

// Create stores a new pending approval.
func (r *ApprovalRepositoryImpl) Create(ctx context.Context, approval *research.QueryApproval) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO query_approvals (
			id, query_id, state, requester_id, approver_id,
			comments, restrictions, requested_at, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)`,
		approval.ID, approval.QueryID, string(approval.State), approval.RequesterID,
		approval.ApproverID, approval.Comments, pq.Array(approval.Restrictions),
		approval.RequestedAt.Time())
	return err
}

// Get retrieves an approval by id.
func (r *ApprovalRepositoryImpl) Get(ctx context.Context, id core.ApprovalID) (*research.QueryApproval, error) {
	return r.getWhere(ctx, "id = $1", id)
}

// GetByQuery retrieves the approval for a query via the query_id index.
func (r *ApprovalRepositoryImpl) GetByQuery(ctx context.Context, queryID core.QueryID) (*research.QueryApproval, error) {
	return r.getWhere(ctx, "query_id = $1", queryID)
}

func (r *ApprovalRepositoryImpl) getWhere(ctx context.Context, where string, arg interface{}) (*research.QueryApproval, error) {
	var (
		approval     research.QueryApproval
		state        string
		approverID   sql.NullString
		comments     sql.NullString
		restrictions pq.StringArray
		requestedAt  time.Time
		decidedAt    sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, query_id, state, requester_id, approver_id,
		       comments, restrictions, requested_at, decided_at
		FROM query_approvals
		WHERE `+where, arg).Scan(
		&approval.ID, &approval.QueryID, &state, &approval.RequesterID,
		&approverID, &comments, &restrictions, &requestedAt, &decidedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrApprovalNotFound
	}
	if err != nil {
		return nil, err
	}

	approval.State = research.ApprovalState(state)
	approval.ApproverID = approverID.String
	approval.Comments = comments.String
	approval.Restrictions = restrictions
	approval.RequestedAt = core.NewTimestamp(requestedAt)
	if decidedAt.Valid {
		approval.DecidedAt = core.NewTimestamp(decidedAt.Time)
	}
	return &approval, nil
}

// Decide transitions a pending approval to its terminal state. The WHERE
// clause on state makes concurrent decisions race-safe: only one UPDATE can
// match the pending row.
func (r *ApprovalRepositoryImpl) Decide(ctx context.Context, id core.ApprovalID, decided *research.QueryApproval) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE query_approvals
		SET state = $2, approver_id = $3, comments = $4,
		    restrictions = $5, decided_at = $6
		WHERE id = $1 AND state = $7`,
		id, string(decided.State), decided.ApproverID, decided.Comments,
		pq.Array(decided.Restrictions), decided.DecidedAt.Time(),
		string(research.ApprovalPending))
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish missing from already-decided.
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return core.ErrApprovalDecided
	}
	return nil
}

// ListPending returns all approvals still awaiting a decision.
func (r *ApprovalRepositoryImpl) ListPending(ctx context.Context) ([]*research.QueryApproval, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM query_approvals
		WHERE state = $1
		ORDER BY requested_at ASC`, string(research.ApprovalPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []core.ApprovalID
	for rows.Next() {
		var id core.ApprovalID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	approvals := make([]*research.QueryApproval, 0, len(ids))
	for _, id := range ids {
		approval, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, approval)
	}
	return approvals, nil
}

var _ ports.ApprovalRepository = (*ApprovalRepositoryImpl)(nil)
