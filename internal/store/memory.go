package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
)

// Memory is an in-process Store for development and tests.
type Memory struct {
	mu         sync.RWMutex
	records    map[grievance.ID]*grievance.Tracked
	amendments map[grievance.ID][]grievance.Amendment
	nextID     int64
	now        func() time.Time
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		records:    make(map[grievance.ID]*grievance.Tracked),
		amendments: make(map[grievance.ID][]grievance.Amendment),
		now:        time.Now,
	}
}

func (m *Memory) Create(ctx context.Context, rec *grievance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; ok {
		return ErrDuplicateID
	}
	m.records[rec.ID] = &grievance.Tracked{Record: *rec, SyncStatus: grievance.SyncPending, UpdatedAt: m.now().UTC()}
	return nil
}

func (m *Memory) Save(ctx context.Context, rec *grievance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.records[rec.ID]; ok {
		t.Record = *rec
		return nil
	}
	m.records[rec.ID] = &grievance.Tracked{Record: *rec, SyncStatus: grievance.SyncPending, UpdatedAt: m.now().UTC()}
	return nil
}

func (m *Memory) Load(ctx context.Context, id grievance.ID) (*grievance.Tracked, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) Exists(ctx context.Context, id grievance.ID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[id]
	return ok, nil
}

func (m *Memory) UpdateSyncStatus(ctx context.Context, id grievance.ID, status grievance.SyncStatus, legacyRef string) error {
	if !status.Valid() {
		return ErrInvalidSyncStatus
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	t.SyncStatus = status
	if legacyRef != "" {
		t.LegacyRef = legacyRef
	}
	t.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) ListBySyncStatus(ctx context.Context, status grievance.SyncStatus, limit int) ([]*grievance.Record, error) {
	if !status.Valid() {
		return nil, ErrInvalidSyncStatus
	}
	m.mu.RLock()
	var out []*grievance.Record
	for _, t := range m.records {
		if t.SyncStatus == status {
			rec := t.Record
			out = append(out, &rec)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) AddAmendment(ctx context.Context, id grievance.ID, note string) (*grievance.Amendment, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, ErrEmptyNote
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return nil, ErrNotFound
	}
	m.nextID++
	a := grievance.Amendment{ID: m.nextID, GrievanceID: id, Note: note, CreatedAt: m.now().UTC()}
	m.amendments[id] = append(m.amendments[id], a)
	return &a, nil
}

func (m *Memory) ListAmendments(ctx context.Context, id grievance.ID) ([]grievance.Amendment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.records[id]; !ok {
		return nil, ErrNotFound
	}
	return append([]grievance.Amendment{}, m.amendments[id]...), nil
}

func (m *Memory) Close() error { return nil }
