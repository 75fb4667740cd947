// Package postgres persists document store events to PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-docstore/pkg/docstore"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Schema creates the events table
const Schema = `
CREATE TABLE IF NOT EXISTS document_events (
	id UUID PRIMARY KEY,
	event_type VARCHAR(64) NOT NULL,
	document_id TEXT NOT NULL,
	object_key TEXT NOT NULL DEFAULT '',
	artifact_kind VARCHAR(32) NOT NULL DEFAULT '',
	params JSONB NOT NULL DEFAULT '{}'::jsonb,
	occurred_at TIMESTAMP NOT NULL DEFAULT (now() AT TIME ZONE 'utc')
);
CREATE INDEX IF NOT EXISTS document_events_document_id_idx ON document_events (document_id, occurred_at);
`

// Sink implements docstore.EventSink using PostgreSQL
type Sink struct {
	db DBTX
}

// New creates a new PostgreSQL event sink
func New(db DBTX) *Sink {
	return &Sink{db: db}
}

// NewWithPool creates a new PostgreSQL event sink with connection pool
func NewWithPool(pool *pgxpool.Pool) *Sink {
	return &Sink{db: pool}
}

// Connect opens a pool for databaseURL and verifies it
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create event database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping event database: %w", err)
	}
	return pool, nil
}

// Migrate creates the events table if it does not exist
func (s *Sink) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return handlePostgresError("migrate", err)
	}
	return nil
}

// Publish inserts the event
func (s *Sink) Publish(ctx context.Context, event docstore.Event) error {
	params, err := json.Marshal(event.Params)
	if err != nil {
		return fmt.Errorf("failed to encode event params: %w", err)
	}
	if event.Params == nil {
		params = []byte("{}")
	}
	kind := ""
	if event.Type == docstore.EventArtifactSaved || event.Type == docstore.EventArtifactDeleted {
		kind = event.Kind.String()
	}

	query := `
		INSERT INTO document_events (
			id, event_type, document_id, object_key, artifact_kind, params, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.db.Exec(ctx, query,
		event.ID, string(event.Type), event.DocumentID, event.Key, kind, params, event.OccurredAt)
	if err != nil {
		return handlePostgresError("publish event", err)
	}
	return nil
}

// Record is a stored event row
type Record struct {
	ID           uuid.UUID
	Type         string
	DocumentID   string
	Key          string
	ArtifactKind string
	Params       map[string]string
	OccurredAt   time.Time
}

// ListByDocument returns the most recent events of a document, newest first
func (s *Sink) ListByDocument(ctx context.Context, documentID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, event_type, document_id, object_key, artifact_kind, params, occurred_at
		FROM document_events
		WHERE document_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, documentID, limit)
	if err != nil {
		return nil, handlePostgresError("list events", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r      Record
			params []byte
		)
		if err := rows.Scan(&r.ID, &r.Type, &r.DocumentID, &r.Key, &r.ArtifactKind, &params, &r.OccurredAt); err != nil {
			return nil, handlePostgresError("scan event", err)
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &r.Params); err != nil {
				return nil, fmt.Errorf("failed to decode event params: %w", err)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list events", err)
	}
	return records, nil
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("event already recorded")
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}
