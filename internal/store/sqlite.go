// ABOUTME: SQLite implementation of the fleet event ledger using modernc.org/sqlite
// ABOUTME: Creates its schema on open and stores events with fixed-width UTC timestamps

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// tsLayout is fixed-width so timestamps sort lexically in chronological order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Ledger using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Ledger = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the ledger at path.
// Parent directories are created if needed. ":memory:" opens a private
// in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Each pooled connection to ":memory:" would see its own empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS fleet_events (
			event_id   TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			agent_addr TEXT NOT NULL DEFAULT '',
			hostname   TEXT NOT NULL DEFAULT '',
			detail     TEXT NOT NULL DEFAULT '',
			ts         TEXT NOT NULL,

			CHECK (kind IN ('connect', 'identify', 'disconnect', 'evict', 'broadcast', 'unicast'))
		);

		CREATE INDEX IF NOT EXISTS idx_fleet_events_ts ON fleet_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_fleet_events_addr ON fleet_events(agent_addr);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Append adds an event to the ledger.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) Append(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO fleet_events (event_id, kind, agent_addr, hostname, detail, ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		string(e.Kind),
		e.AgentAddr,
		e.Hostname,
		e.Detail,
		e.Timestamp.UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting fleet event: %w", err)
	}

	s.logger.Debug("appended fleet event",
		"id", e.ID,
		"kind", e.Kind,
		"agent_addr", e.AgentAddr,
	)
	return nil
}

// normalizeLimit applies default (20) and cap (1000) to a listing limit.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// Recent returns the newest events first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT event_id, kind, agent_addr, hostname, detail, ts
		FROM fleet_events
		ORDER BY ts DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying fleet events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fleet events: %w", err)
	}
	return events, nil
}

// scanEvent scans a row into an Event.
func scanEvent(scanner interface{ Scan(dest ...any) error }) (Event, error) {
	var e Event
	var kind, ts string

	if err := scanner.Scan(&e.ID, &kind, &e.AgentAddr, &e.Hostname, &e.Detail, &ts); err != nil {
		return e, fmt.Errorf("scanning fleet event: %w", err)
	}

	e.Kind = EventKind(kind)
	var err error
	e.Timestamp, err = time.Parse(tsLayout, ts)
	if err != nil {
		return e, fmt.Errorf("parsing timestamp: %w", err)
	}
	return e, nil
}
