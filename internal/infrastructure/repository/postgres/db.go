package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS engagements (
	id TEXT PRIMARY KEY,
	client_name TEXT NOT NULL,
	client_email TEXT NOT NULL DEFAULT '',
	tax_year INTEGER NOT NULL,
	status TEXT NOT NULL,
	checklist JSONB NOT NULL DEFAULT '[]'::jsonb,
	reconciliation JSONB,
	brief TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	engagement_id TEXT NOT NULL REFERENCES engagements(id),
	file_name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	document_type TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	tax_year INTEGER,
	issues JSONB NOT NULL DEFAULT '[]'::jsonb,
	extracted_fields JSONB NOT NULL DEFAULT '{}'::jsonb,
	needs_human_review BOOLEAN NOT NULL DEFAULT FALSE,
	processing_status TEXT NOT NULL,
	processing_started_at TIMESTAMPTZ,
	processing_error TEXT NOT NULL DEFAULT '',
	retry_count INTEGER NOT NULL DEFAULT 0,
	approved_at TIMESTAMPTZ,
	override JSONB,
	archived_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_engagement ON documents(engagement_id);
CREATE INDEX IF NOT EXISTS idx_documents_in_flight ON documents(processing_started_at)
	WHERE processing_status NOT IN ('classified', 'error');

CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	engagement_id TEXT NOT NULL,
	action TEXT NOT NULL,
	trigger_kind TEXT NOT NULL,
	outcome TEXT NOT NULL,
	details JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_engagement ON audit_log(engagement_id, created_at DESC);
`

// EnsureSchema creates the tables once; the advisory lock serializes DDL
// across api and worker startups.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2025030101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func marshalJSON(v any, what string) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", what, err)
	}
	return raw, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
