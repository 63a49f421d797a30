package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS dpqc_audit_events (
	id          BIGSERIAL PRIMARY KEY,
	ts          TIMESTAMPTZ NOT NULL,
	run_id      TEXT NOT NULL,
	check_name  TEXT NOT NULL,
	stage       TEXT NOT NULL,
	epsilon     DOUBLE PRECISION NOT NULL,
	spent_total DOUBLE PRECISION NOT NULL,
	detail      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS dpqc_audit_events_run_idx ON dpqc_audit_events (run_id, id);
`

// PostgresStore persists the audit trail in PostgreSQL via the pgx stdlib
// driver, so budget accounting survives the process.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects, verifies the connection, and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: ensure schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Append(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dpqc_audit_events (ts, run_id, check_name, stage, epsilon, spent_total, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.Timestamp, e.RunID, e.Check, e.Stage, e.Epsilon, e.SpentTotal, e.Detail)
	if err != nil {
		return fmt.Errorf("audit: append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByRun(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, run_id, check_name, stage, epsilon, spent_total, detail
		 FROM dpqc_audit_events WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("audit: list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Timestamp, &e.RunID, &e.Check, &e.Stage, &e.Epsilon, &e.SpentTotal, &e.Detail); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
