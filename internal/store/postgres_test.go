package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
)

func newMockPostgres(t *testing.T) (*SQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewPostgres(db)
	s.now = func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }
	return s, mock
}

func TestPostgres_PositionalPlaceholders(t *testing.T) {
	s, _ := newMockPostgres(t)
	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", s.q("SELECT a FROM t WHERE b = ? AND c = ?"))
}

func TestPostgres_CreateMapsUniqueViolation(t *testing.T) {
	s, mock := newMockPostgres(t)
	rec := sampleRecord("GR-20250314-AAAAAA")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grievances")).
		WithArgs(string(rec.ID), rec.DraftID, sqlmock.AnyArg(), "pending", "", "2025-03-14T08:00:00Z", "2025-03-14T09:00:00Z").
		WillReturnError(&pq.Error{Code: pgUniqueViolation})

	err := s.Create(context.Background(), rec)
	assert.ErrorIs(t, err, ErrDuplicateID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Load(t *testing.T) {
	s, mock := newMockPostgres(t)
	rec := sampleRecord("GR-20250314-AAAAAA")
	body, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT record, sync_status, legacy_ref, updated_at FROM grievances WHERE id = $1")).
		WithArgs(string(rec.ID)).
		WillReturnRows(sqlmock.NewRows([]string{"record", "sync_status", "legacy_ref", "updated_at"}).
			AddRow(string(body), "synced", "LEG-7", "2025-03-14T10:00:00Z"))

	got, err := s.Load(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, *rec, got.Record)
	assert.Equal(t, grievance.SyncSynced, got.SyncStatus)
	assert.Equal(t, "LEG-7", got.LegacyRef)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadNotFound(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT record")).
		WithArgs("GR-20250314-ZZZZZZ").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Load(context.Background(), "GR-20250314-ZZZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_UpdateSyncStatusNotFound(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE grievances SET sync_status = $1")).
		WithArgs("failed", "", "", "2025-03-14T09:00:00Z", "GR-20250314-ZZZZZZ").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateSyncStatus(context.Background(), "GR-20250314-ZZZZZZ", grievance.SyncFailed, "")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AddAmendment(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(1) FROM grievances WHERE id = $1")).
		WithArgs("GR-20250314-AAAAAA").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO amendments (grievance_id, note, created_at) VALUES ($1, $2, $3) RETURNING id")).
		WithArgs("GR-20250314-AAAAAA", "still dry", "2025-03-14T09:00:00Z").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	a, err := s.AddAmendment(context.Background(), "GR-20250314-AAAAAA", "still dry")
	require.NoError(t, err)
	assert.EqualValues(t, 7, a.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
