package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS grievances (
		id TEXT PRIMARY KEY,
		draft_id TEXT NOT NULL,
		record JSONB NOT NULL,
		sync_status TEXT NOT NULL,
		legacy_ref TEXT NOT NULL DEFAULT '',
		submitted_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS amendments (
		id BIGSERIAL PRIMARY KEY,
		grievance_id TEXT NOT NULL REFERENCES grievances(id),
		note TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS amendments_grievance_idx ON amendments (grievance_id)`,
}

func postgresDuplicate(err error) bool {
	var pe *pq.Error
	return errors.As(err, &pe) && pe.Code == pgUniqueViolation
}

// OpenPostgres connects to dsn and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*SQL, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store.dsn is required for postgres")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPostgres(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres wraps an open Postgres handle without migrating.
func NewPostgres(db *sql.DB) *SQL {
	return newSQL(db, dialect{name: "postgres", positional: true, schema: postgresSchema, isDuplicate: postgresDuplicate})
}
