package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore is a durable journal backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps db. The events table is expected to exist; call
// Migrate to create it.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the events table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		component TEXT NOT NULL,
		op TEXT NOT NULL,
		record_key TEXT NOT NULL,
		caller TEXT,
		amount BIGINT NOT NULL,
		balance BIGINT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_record_key ON events(record_key)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Record appends the event.
func (s *PostgresStore) Record(ev Event) error {
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO events (event_id, component, op, record_key, caller, amount, balance, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.Component, ev.Op, ev.Key, ev.Caller, ev.Amount, ev.Balance, ev.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// ByKey returns all events for a record key, oldest first.
func (s *PostgresStore) ByKey(ctx context.Context, key string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, component, op, record_key, caller, amount, balance, timestamp
		 FROM events WHERE record_key = $1 ORDER BY timestamp ASC`, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

// List returns the most recent events, newest first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, component, op, record_key, caller, amount, balance, timestamp
		 FROM events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}
