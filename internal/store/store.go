// Package store persists submitted grievances, their legacy sync state and
// amendments.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/grievanced/internal/config"
	"github.com/fyrsmithlabs/grievanced/internal/grievance"
)

var (
	// ErrDuplicateID indicates Create hit an existing identifier.
	ErrDuplicateID = errors.New("grievance id already exists")

	// ErrNotFound indicates no grievance has the identifier.
	ErrNotFound = errors.New("grievance not found")

	// ErrInvalidSyncStatus indicates an unknown sync status.
	ErrInvalidSyncStatus = errors.New("invalid sync status")

	// ErrEmptyNote indicates an amendment without text.
	ErrEmptyNote = errors.New("amendment note is empty")
)

// Store is the grievance persistence collaborator.
type Store interface {
	// Create inserts a new record. It returns ErrDuplicateID when the
	// identifier is taken, leaving the existing record untouched.
	Create(ctx context.Context, rec *grievance.Record) error

	// Save upserts a record. Saving the same record twice is a no-op.
	Save(ctx context.Context, rec *grievance.Record) error

	Load(ctx context.Context, id grievance.ID) (*grievance.Tracked, error)
	Exists(ctx context.Context, id grievance.ID) (bool, error)

	// UpdateSyncStatus records the legacy system's view of a grievance.
	UpdateSyncStatus(ctx context.Context, id grievance.ID, status grievance.SyncStatus, legacyRef string) error

	// ListBySyncStatus returns up to limit records in the given sync
	// status, oldest submission first.
	ListBySyncStatus(ctx context.Context, status grievance.SyncStatus, limit int) ([]*grievance.Record, error)

	AddAmendment(ctx context.Context, id grievance.ID, note string) (*grievance.Amendment, error)
	ListAmendments(ctx context.Context, id grievance.ID) ([]grievance.Amendment, error)

	Close() error
}

// Open returns the Store selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.DSN.Value())
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN.Value())
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
