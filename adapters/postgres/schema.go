package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// EnsureSchema creates the consent and approval tables if they do not exist.
// Idempotent, safe to run at every startup.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS consent_records (
			subject_id           TEXT PRIMARY KEY,
			current_level        TEXT NOT NULL,
			history              JSONB NOT NULL DEFAULT '[]',
			expiration_date      TIMESTAMPTZ,
			withdrawal_requested BOOLEAN NOT NULL DEFAULT FALSE,
			withdrawal_date      TIMESTAMPTZ,
			data_purged          BOOLEAN NOT NULL DEFAULT FALSE,
			created_at           TIMESTAMPTZ NOT NULL,
			updated_at           TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS consent_audit (
			id          TEXT PRIMARY KEY,
			subject_id  TEXT NOT NULL,
			action      TEXT NOT NULL,
			detail      TEXT,
			actor_id    TEXT,
			recorded_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_consent_audit_subject
			ON consent_audit (subject_id, recorded_at DESC)`,
		`CREATE TABLE IF NOT EXISTS query_approvals (
			id           TEXT PRIMARY KEY,
			query_id     TEXT NOT NULL UNIQUE,
			state        TEXT NOT NULL,
			requester_id TEXT NOT NULL,
			approver_id  TEXT,
			comments     TEXT,
			restrictions TEXT[],
			requested_at TIMESTAMPTZ NOT NULL,
			decided_at   TIMESTAMPTZ
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
