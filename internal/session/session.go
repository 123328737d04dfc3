// Package session stores per-conversation intake state between turns.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/grievanced/internal/category"
	"github.com/fyrsmithlabs/grievanced/internal/collector"
	"github.com/fyrsmithlabs/grievanced/internal/grievance"
	"github.com/fyrsmithlabs/grievanced/internal/otp"
)

var (
	// ErrNotFound indicates an unknown or expired session.
	ErrNotFound = errors.New("session not found")

	// ErrEnded indicates a turn on a session that exited or submitted.
	ErrEnded = errors.New("session ended")
)

// Session is the explicit record of one conversation. Components read and
// write it; only the store persists it.
type Session struct {
	ID    string `json:"id"`
	Stage string `json:"stage"`
	// History holds the stages already completed, most recent last, for "back".
	History []string `json:"history,omitempty"`

	Draft    *grievance.Draft      `json:"draft"`
	Category *category.EditSession `json:"category,omitempty"`
	Form     *collector.State      `json:"form,omitempty"`
	OTP      *otp.Session          `json:"otp,omitempty"`

	// AwaitingAck is set while a zero-category acknowledgment is pending.
	AwaitingAck bool `json:"awaiting_ack,omitempty"`
	// Reclassified is set once the zero-category reclassification ran.
	Reclassified bool `json:"reclassified,omitempty"`
	// AwaitingSummary is set after the user chose to replace the summary.
	AwaitingSummary bool `json:"awaiting_summary,omitempty"`

	GrievanceID grievance.ID `json:"grievance_id,omitempty"`
	Ended       bool         `json:"ended,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a session with a fresh draft.
func New(now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Draft:     grievance.NewDraft(now),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// Store persists sessions.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	Close() error
}
