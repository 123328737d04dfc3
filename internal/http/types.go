package http

import (
	"time"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
	"github.com/fyrsmithlabs/grievanced/internal/intake"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// TurnRequest is the request body for POST /api/v1/sessions/:id/turns.
// Signal, when set, overrides keyword parsing of Text.
type TurnRequest struct {
	Text   string        `json:"text"`
	Signal intake.Signal `json:"signal,omitempty"`
}

// SessionResponse carries the prompt a session is waiting on.
type SessionResponse struct {
	SessionID string              `json:"session_id"`
	Result    *intake.StageResult `json:"result"`
}

// AmendRequest is the request body for POST /api/v1/grievances/:id/amendments.
type AmendRequest struct {
	Note string `json:"note"`
}

// SyncStatusRequest is the legacy system's callback body.
type SyncStatusRequest struct {
	Status    string `json:"status"`
	LegacyRef string `json:"legacy_ref,omitempty"`
}

// TrackingResponse is the response body for GET /api/v1/grievances/:id.
// Contact details are never returned.
type TrackingResponse struct {
	ID            grievance.ID            `json:"id"`
	Status        grievance.Status        `json:"status"`
	Categories    []grievance.CategoryTag `json:"categories"`
	Summary       string                  `json:"summary"`
	Municipality  string                  `json:"municipality,omitempty"`
	PhoneVerified bool                    `json:"phone_verified"`
	SubmittedAt   time.Time               `json:"submitted_at"`
	SyncStatus    grievance.SyncStatus    `json:"sync_status"`
	LegacyRef     string                  `json:"legacy_ref,omitempty"`
	UpdatedAt     time.Time               `json:"updated_at"`
	Amendments    []grievance.Amendment   `json:"amendments"`
}

func newTrackingResponse(t *grievance.Tracked, amendments []grievance.Amendment) TrackingResponse {
	r := t.Record
	if amendments == nil {
		amendments = []grievance.Amendment{}
	}
	return TrackingResponse{
		ID:            r.ID,
		Status:        r.Status,
		Categories:    r.Categories,
		Summary:       r.Summary,
		Municipality:  r.Location.Municipality.Value,
		PhoneVerified: r.PhoneVerified,
		SubmittedAt:   r.SubmittedAt,
		SyncStatus:    t.SyncStatus,
		LegacyRef:     t.LegacyRef,
		UpdatedAt:     t.UpdatedAt,
		Amendments:    amendments,
	}
}
