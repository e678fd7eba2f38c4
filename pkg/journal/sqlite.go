package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable journal backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db and creates the events table if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteStore opens (or creates) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite journal: %w", err)
	}
	return NewSQLiteStore(db)
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		component TEXT NOT NULL,
		op TEXT NOT NULL,
		record_key TEXT NOT NULL,
		caller TEXT,
		amount INTEGER NOT NULL,
		balance INTEGER NOT NULL,
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_record_key ON events(record_key);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Record appends the event.
func (s *SQLiteStore) Record(ev Event) error {
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO events (event_id, component, op, record_key, caller, amount, balance, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Component, ev.Op, ev.Key, ev.Caller, ev.Amount, ev.Balance, ev.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// ByKey returns all events for a record key, oldest first.
func (s *SQLiteStore) ByKey(ctx context.Context, key string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, component, op, record_key, caller, amount, balance, timestamp
		 FROM events WHERE record_key = ? ORDER BY timestamp ASC`, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

// List returns the most recent events, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, component, op, record_key, caller, amount, balance, timestamp
		 FROM events ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Component, &ev.Op, &ev.Key, &ev.Caller, &ev.Amount, &ev.Balance, &ev.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
