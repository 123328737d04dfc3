package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
)

// dialect holds what differs between the SQL backends.
type dialect struct {
	name        string
	positional  bool // $1 placeholders instead of ?
	schema      []string
	isDuplicate func(error) bool
}

// SQL is a Store over database/sql. Records are stored as JSON next to the
// columns needed for lookup and tracking.
type SQL struct {
	db  *sql.DB
	d   dialect
	now func() time.Time
}

func newSQL(db *sql.DB, d dialect) *SQL {
	return &SQL{db: db, d: d, now: time.Now}
}

// Migrate creates the tables if they do not exist.
func (s *SQL) Migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.d.name, err)
		}
	}
	return nil
}

// q rewrites ? placeholders for positional dialects.
func (s *SQL) q(query string) string {
	if !s.d.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func ts(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func (s *SQL) Create(ctx context.Context, rec *grievance.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	now := ts(s.now())
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO grievances (id, draft_id, record, sync_status, legacy_ref, submitted_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		string(rec.ID), rec.DraftID, string(body), string(grievance.SyncPending), "", ts(rec.SubmittedAt), now)
	if err != nil {
		if s.d.isDuplicate(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert grievance: %w", err)
	}
	return nil
}

func (s *SQL) Save(ctx context.Context, rec *grievance.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	now := ts(s.now())
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO grievances (id, draft_id, record, sync_status, legacy_ref, submitted_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET record = excluded.record`),
		string(rec.ID), rec.DraftID, string(body), string(grievance.SyncPending), "", ts(rec.SubmittedAt), now)
	if err != nil {
		return fmt.Errorf("save grievance: %w", err)
	}
	return nil
}

func (s *SQL) Load(ctx context.Context, id grievance.ID) (*grievance.Tracked, error) {
	var (
		body, status, ref, updated string
	)
	err := s.db.QueryRowContext(ctx, s.q(`SELECT record, sync_status, legacy_ref, updated_at FROM grievances WHERE id = ?`), string(id)).
		Scan(&body, &status, &ref, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load grievance: %w", err)
	}

	t := &grievance.Tracked{SyncStatus: grievance.SyncStatus(status), LegacyRef: ref}
	if err := json.Unmarshal([]byte(body), &t.Record); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("decode updated_at %s: %w", id, err)
	}
	return t, nil
}

func (s *SQL) Exists(ctx context.Context, id grievance.ID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM grievances WHERE id = ?`), string(id)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check grievance: %w", err)
	}
	return n > 0, nil
}

func (s *SQL) UpdateSyncStatus(ctx context.Context, id grievance.ID, status grievance.SyncStatus, legacyRef string) error {
	if !status.Valid() {
		return ErrInvalidSyncStatus
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE grievances SET sync_status = ?, legacy_ref = CASE WHEN ? = '' THEN legacy_ref ELSE ? END, updated_at = ? WHERE id = ?`),
		string(status), legacyRef, legacyRef, ts(s.now()), string(id))
	if err != nil {
		return fmt.Errorf("update sync status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sync status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) ListBySyncStatus(ctx context.Context, status grievance.SyncStatus, limit int) ([]*grievance.Record, error) {
	if !status.Valid() {
		return nil, ErrInvalidSyncStatus
	}
	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, record FROM grievances WHERE sync_status = ? ORDER BY submitted_at, id LIMIT ?`),
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list by sync status: %w", err)
	}
	defer rows.Close()

	var out []*grievance.Record
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("list by sync status: %w", err)
		}
		rec := &grievance.Record{}
		if err := json.Unmarshal([]byte(body), rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQL) AddAmendment(ctx context.Context, id grievance.ID, note string) (*grievance.Amendment, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, ErrEmptyNote
	}
	ok, err := s.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	now := s.now().UTC()
	a := &grievance.Amendment{GrievanceID: id, Note: note, CreatedAt: now}
	err = s.db.QueryRowContext(ctx, s.q(`INSERT INTO amendments (grievance_id, note, created_at) VALUES (?, ?, ?) RETURNING id`),
		string(id), note, ts(now)).Scan(&a.ID)
	if err != nil {
		return nil, fmt.Errorf("insert amendment: %w", err)
	}
	return a, nil
}

func (s *SQL) ListAmendments(ctx context.Context, id grievance.ID) ([]grievance.Amendment, error) {
	ok, err := s.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, note, created_at FROM amendments WHERE grievance_id = ? ORDER BY id`), string(id))
	if err != nil {
		return nil, fmt.Errorf("list amendments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []grievance.Amendment{}
	for rows.Next() {
		var (
			a       = grievance.Amendment{GrievanceID: id}
			created string
		)
		if err := rows.Scan(&a.ID, &a.Note, &created); err != nil {
			return nil, fmt.Errorf("scan amendment: %w", err)
		}
		if a.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("decode amendment time: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQL) Close() error {
	return s.db.Close()
}
