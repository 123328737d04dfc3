package intake

import (
	"github.com/fyrsmithlabs/grievanced/internal/category"
	"github.com/fyrsmithlabs/grievanced/internal/grievance"
)

// Stage identifies a step of the intake conversation.
type Stage string

const (
	StageDetails    Stage = "details"
	StageCategories Stage = "categories"
	StageSummary    Stage = "summary"
	StageLocation   Stage = "location"
	StageContact    Stage = "contact"
	StageOTP        Stage = "otp"
	StageSubmit     Stage = "submit"
	StageDone       Stage = "done"
	StageExited     Stage = "exited"
)

// Prompt is what the transport shows the user.
type Prompt struct {
	Text         string   `json:"text"`
	QuickReplies []string `json:"quick_replies,omitempty"`
}

// StageResult is the response to one turn. Payload's concrete type is
// determined by Stage.
type StageResult struct {
	Stage   Stage   `json:"stage"`
	Prompt  Prompt  `json:"prompt"`
	Payload Payload `json:"payload,omitempty"`
}

// Payload is stage-specific data for rich clients.
type Payload interface {
	isPayload()
}

// DetailsPayload accompanies StageDetails.
type DetailsPayload struct {
	Chars    int  `json:"chars"`
	Rejected bool `json:"rejected,omitempty"`
}

// CategoriesPayload accompanies StageCategories.
type CategoriesPayload struct {
	Categories  []grievance.CategoryTag `json:"categories"`
	Dismissed   []grievance.CategoryTag `json:"dismissed"`
	Mode        category.Mode           `json:"mode"`
	Target      grievance.CategoryTag   `json:"target,omitempty"`
	EditsLeft   int                     `json:"edits_left"`
	Degraded    bool                    `json:"degraded,omitempty"`
	AwaitingAck bool                    `json:"awaiting_ack,omitempty"`
}

// SummaryPayload accompanies StageSummary.
type SummaryPayload struct {
	Summary string `json:"summary"`
	Editing bool   `json:"editing,omitempty"`
}

// FormPayload accompanies StageLocation and StageContact.
type FormPayload struct {
	Form       string `json:"form"`
	Phase      string `json:"phase"`
	Field      string `json:"field,omitempty"`
	Invalid    string `json:"invalid,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// OTPPayload accompanies StageOTP. Channel is masked.
type OTPPayload struct {
	Channel        string `json:"channel"`
	Status         string `json:"status"`
	AttemptsLeft   int    `json:"attempts_left"`
	ResendsLeft    int    `json:"resends_left"`
	DeliveryFailed bool   `json:"delivery_failed,omitempty"`
}

// SubmittedPayload accompanies StageDone.
type SubmittedPayload struct {
	GrievanceID grievance.ID            `json:"grievance_id"`
	Categories  []grievance.CategoryTag `json:"categories"`
}

// SubmitFailedPayload accompanies StageSubmit when storing failed.
type SubmitFailedPayload struct {
	Retryable bool `json:"retryable"`
}

// ExitedPayload accompanies StageExited.
type ExitedPayload struct {
	DraftID string `json:"draft_id"`
}

func (DetailsPayload) isPayload()      {}
func (CategoriesPayload) isPayload()   {}
func (SummaryPayload) isPayload()      {}
func (FormPayload) isPayload()         {}
func (OTPPayload) isPayload()          {}
func (SubmittedPayload) isPayload()    {}
func (SubmitFailedPayload) isPayload() {}
func (ExitedPayload) isPayload()       {}
