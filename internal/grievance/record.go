package grievance

import "time"

// ID is a grievance identifier, e.g. GR-20250314-7K3QX9.
type ID string

func (id ID) String() string { return string(id) }

// Record is a submitted grievance. It is never mutated after Freeze;
// follow-ups are Amendments.
type Record struct {
	ID            ID            `json:"id"`
	DraftID       string        `json:"draft_id"`
	Details       string        `json:"details"`
	Categories    []CategoryTag `json:"categories"`
	Summary       string        `json:"summary"`
	Location      Location      `json:"location"`
	Contact       Contact       `json:"contact"`
	PhoneVerified bool          `json:"phone_verified"`
	Status        Status        `json:"status"`
	SubmittedAt   time.Time     `json:"submitted_at"`
}

// SyncStatus tracks delivery of a record to the legacy system.
type SyncStatus string

const (
	SyncPending   SyncStatus = "pending"
	SyncPublished SyncStatus = "published"
	SyncSynced    SyncStatus = "synced"
	SyncFailed    SyncStatus = "failed"
)

// Valid reports whether s is a known sync status.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncPending, SyncPublished, SyncSynced, SyncFailed:
		return true
	}
	return false
}

// Tracked is a record with its legacy sync state, as returned for tracking.
type Tracked struct {
	Record     Record     `json:"record"`
	SyncStatus SyncStatus `json:"sync_status"`
	LegacyRef  string     `json:"legacy_ref,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Amendment is a note appended to a submitted grievance.
type Amendment struct {
	ID          int64     `json:"id"`
	GrievanceID ID        `json:"grievance_id"`
	Note        string    `json:"note"`
	CreatedAt   time.Time `json:"created_at"`
}
