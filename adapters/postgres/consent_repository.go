package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"privalytics/domain/core"
	"privalytics/domain/research"
	"privalytics/ports"

	"github.com/jmoiron/sqlx"
)

// ConsentRepositoryImpl implements ConsentRepository for PostgreSQL. Consent
// history rides along as JSONB; audit entries live in their own append-only
// table.
type ConsentRepositoryImpl struct {
	db *sqlx.DB
}

// NewConsentRepository creates a new PostgreSQL consent repository.
func NewConsentRepository(db *sqlx.DB) ports.ConsentRepository {
	return &ConsentRepositoryImpl{db: db}
}

// Get retrieves a consent record by subject id.
func (r *ConsentRepositoryImpl) Get(ctx context.Context, subjectID core.SubjectID) (*research.ConsentRecord, error) {
	var (
		record         research.ConsentRecord
		level          string
		historyJSON    []byte
		expiration     sql.NullTime
		withdrawalDate sql.NullTime
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT subject_id, current_level, history, expiration_date,
		       withdrawal_requested, withdrawal_date, data_purged,
		       created_at, updated_at
		FROM consent_records
		WHERE subject_id = $1
	`, subjectID).Scan(
		&record.SubjectID, &level, &historyJSON, &expiration,
		&record.WithdrawalRequested, &withdrawalDate, &record.DataPurged,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrConsentNotFound
	}
	if err != nil {
		return nil, err
	}

	record.CurrentLevel, err = research.ParseConsentLevel(level)
	if err != nil {
		return nil, fmt.Errorf("stored consent level corrupt for %s: %w", subjectID, err)
	}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &record.History); err != nil {
			return nil, fmt.Errorf("failed to unmarshal consent history: %w", err)
		}
	}
	if expiration.Valid {
		record.ExpirationDate = core.NewTimestamp(expiration.Time)
	}
	if withdrawalDate.Valid {
		record.WithdrawalDate = core.NewTimestamp(withdrawalDate.Time)
	}
	record.CreatedAt = core.NewTimestamp(createdAt)
	record.UpdatedAt = core.NewTimestamp(updatedAt)
	return &record, nil
}

// Put stores or replaces a consent record.
func (r *ConsentRepositoryImpl) Put(ctx context.Context, record *research.ConsentRecord) error {
	historyJSON, err := json.Marshal(record.History)
	if err != nil {
		return err
	}

	var expiration, withdrawalDate *time.Time
	if !record.ExpirationDate.IsZero() {
		t := record.ExpirationDate.Time()
		expiration = &t
	}
	if !record.WithdrawalDate.IsZero() {
		t := record.WithdrawalDate.Time()
		withdrawalDate = &t
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO consent_records (
			subject_id, current_level, history, expiration_date,
			withdrawal_requested, withdrawal_date, data_purged,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (subject_id) DO UPDATE SET
			current_level = EXCLUDED.current_level,
			history = EXCLUDED.history,
			expiration_date = EXCLUDED.expiration_date,
			withdrawal_requested = EXCLUDED.withdrawal_requested,
			withdrawal_date = EXCLUDED.withdrawal_date,
			data_purged = EXCLUDED.data_purged,
			updated_at = EXCLUDED.updated_at`,
		record.SubjectID, record.CurrentLevel.String(), historyJSON, expiration,
		record.WithdrawalRequested, withdrawalDate, record.DataPurged,
		record.CreatedAt.Time(), record.UpdatedAt.Time())
	return err
}

// Delete removes a consent record.
func (r *ConsentRepositoryImpl) Delete(ctx context.Context, subjectID core.SubjectID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM consent_records WHERE subject_id = $1`, subjectID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return core.ErrConsentNotFound
	}
	return nil
}

// Scan returns all consent records.
func (r *ConsentRepositoryImpl) Scan(ctx context.Context) ([]*research.ConsentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT subject_id FROM consent_records ORDER BY subject_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjectIDs []core.SubjectID
	for rows.Next() {
		var id core.SubjectID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		subjectIDs = append(subjectIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records := make([]*research.ConsentRecord, 0, len(subjectIDs))
	for _, id := range subjectIDs {
		record, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// AppendAudit appends one immutable audit entry.
func (r *ConsentRepositoryImpl) AppendAudit(ctx context.Context, entry research.ConsentAuditEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO consent_audit (id, subject_id, action, detail, actor_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.SubjectID, entry.Action, entry.Detail, entry.ActorID, entry.RecordedAt.Time())
	return err
}

// AuditTrail returns audit entries newest first, optionally filtered by
// subject.
func (r *ConsentRepositoryImpl) AuditTrail(ctx context.Context, subjectID core.SubjectID, limit int) ([]research.ConsentAuditEntry, error) {
	query := `
		SELECT id, subject_id, action, detail, actor_id, recorded_at
		FROM consent_audit
	`
	args := []interface{}{}
	if subjectID != "" {
		query += " WHERE subject_id = $1"
		args = append(args, subjectID)
	}
	query += " ORDER BY recorded_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []research.ConsentAuditEntry
	for rows.Next() {
		var entry research.ConsentAuditEntry
		var recordedAt time.Time
		if err := rows.Scan(&entry.ID, &entry.SubjectID, &entry.Action,
			&entry.Detail, &entry.ActorID, &recordedAt); err != nil {
			return nil, err
		}
		entry.RecordedAt = core.NewTimestamp(recordedAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// PruneAudit removes audit entries recorded before cutoff.
func (r *ConsentRepositoryImpl) PruneAudit(ctx context.Context, cutoff core.Timestamp) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM consent_audit WHERE recorded_at < $1`, cutoff.Time())
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

var _ ports.ConsentRepository = (*ConsentRepositoryImpl)(nil)
