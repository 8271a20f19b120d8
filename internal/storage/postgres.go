package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS event_logs (
    id          UUID PRIMARY KEY,
    created_at  TIMESTAMPTZ NOT NULL,
    type        TEXT NOT NULL,
    level       TEXT NOT NULL,
    code        TEXT,
    description TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_logs_created_at ON event_logs (created_at DESC);

CREATE TABLE IF NOT EXISTS frame_logs (
    id         UUID PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL,
    direction  TEXT NOT NULL,
    port       SMALLINT NOT NULL,
    payload    BYTEA NOT NULL,
    rssi       INTEGER
);
CREATE INDEX IF NOT EXISTS idx_frame_logs_created_at ON frame_logs (created_at DESC);
`

// PostgresStore implements Store interface for PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(dsn string, maxOpen, maxIdle int, connLifetime time.Duration) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// CreateEventLog creates an event log entry
func (s *PostgresStore) CreateEventLog(ctx context.Context, event *EventLog) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO event_logs (id, created_at, type, level, code, description)
        VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.CreatedAt, event.Type, event.Level, event.Code, event.Description,
	)
	return err
}

// ListEventLogs lists event logs, newest first
func (s *PostgresStore) ListEventLogs(ctx context.Context, limit, offset int) ([]*EventLog, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM event_logs").Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
        SELECT id, created_at, type, level, code, description
        FROM event_logs
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*EventLog
	for rows.Next() {
		var e EventLog
		var code sql.NullString
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Type, &e.Level, &code, &e.Description); err != nil {
			return nil, 0, err
		}
		e.Code = code.String
		events = append(events, &e)
	}
	return events, total, rows.Err()
}

// CreateFrameLog creates a frame log entry
func (s *PostgresStore) CreateFrameLog(ctx context.Context, frame *FrameLog) error {
	if frame.ID == uuid.Nil {
		frame.ID = uuid.New()
	}
	if frame.CreatedAt.IsZero() {
		frame.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO frame_logs (id, created_at, direction, port, payload, rssi)
        VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		frame.ID, frame.CreatedAt, frame.Direction, frame.Port, frame.Payload, frame.RSSI,
	)
	return err
}

// ListFrameLogs lists frame logs, newest first
func (s *PostgresStore) ListFrameLogs(ctx context.Context, limit, offset int) ([]*FrameLog, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM frame_logs").Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
        SELECT id, created_at, direction, port, payload, rssi
        FROM frame_logs
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var frames []*FrameLog
	for rows.Next() {
		var f FrameLog
		if err := rows.Scan(&f.ID, &f.CreatedAt, &f.Direction, &f.Port, &f.Payload, &f.RSSI); err != nil {
			return nil, 0, err
		}
		frames = append(frames, &f)
	}
	return frames, total, rows.Err()
}
