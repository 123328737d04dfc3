package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
)

// sqliteConstraint is the primary result code shared by every
// SQLITE_CONSTRAINT_* extended code.
const sqliteConstraint = 19

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS grievances (
		id TEXT PRIMARY KEY,
		draft_id TEXT NOT NULL,
		record TEXT NOT NULL,
		sync_status TEXT NOT NULL,
		legacy_ref TEXT NOT NULL DEFAULT '',
		submitted_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS amendments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		grievance_id TEXT NOT NULL REFERENCES grievances(id),
		note TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS amendments_grievance_idx ON amendments (grievance_id)`,
}

func sqliteDuplicate(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == sqliteConstraint
}

// OpenSQLite opens (creating if needed) a SQLite database at dsn and
// migrates it. Use ":memory:" for an ephemeral database.
func OpenSQLite(ctx context.Context, dsn string) (*SQL, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store.dsn is required for sqlite")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; also keeps a :memory: database on a single connection.
	db.SetMaxOpenConns(1)

	s := NewSQLite(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite wraps an open SQLite handle without migrating.
func NewSQLite(db *sql.DB) *SQL {
	return newSQL(db, dialect{name: "sqlite", schema: sqliteSchema, isDuplicate: sqliteDuplicate})
}
