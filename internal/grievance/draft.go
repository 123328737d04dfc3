package grievance

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle position of a draft. It only moves forward.
type Status string

const (
	StatusDrafting             Status = "drafting"
	StatusAwaitingVerification Status = "awaiting_verification"
	StatusSubmitted            Status = "submitted"
)

// Consent records the answer to a consent question.
type Consent string

const (
	ConsentUnasked   Consent = ""
	ConsentGranted   Consent = "granted"
	ConsentDeclined  Consent = "declined"
	ConsentWithdrawn Consent = "withdrawn"
)

// Location is the optional place of the grievance.
type Location struct {
	Consent      Consent `json:"consent,omitempty"`
	Municipality Field   `json:"municipality"`
	Village      Field   `json:"village"`
	Address      Field   `json:"address"`
	// MunicipalityUnmatched marks a municipality kept as typed, with no
	// gazetteer entry the user accepted.
	MunicipalityUnmatched bool `json:"municipality_unmatched,omitempty"`
}

// Contact is the optional citizen contact data, gated by one consent flag.
type Contact struct {
	Consent  Consent `json:"consent,omitempty"`
	FullName Field   `json:"full_name"`
	Phone    Field   `json:"phone"`
	Email    Field   `json:"email"`
}

// Draft is the mutable grievance owned by one conversation session.
type Draft struct {
	ID            string        `json:"id"`
	Details       string        `json:"details"`
	Categories    []CategoryTag `json:"categories"`
	Dismissed     []CategoryTag `json:"dismissed"`
	Summary       string        `json:"summary"`
	Location      Location      `json:"location"`
	Contact       Contact       `json:"contact"`
	PhoneVerified bool          `json:"phone_verified"`
	Status        Status        `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// NewDraft creates an empty draft with a fresh draft ID.
func NewDraft(now time.Time) *Draft {
	return &Draft{
		ID:         uuid.NewString(),
		Categories: []CategoryTag{},
		Dismissed:  []CategoryTag{},
		Status:     StatusDrafting,
		CreatedAt:  now.UTC(),
	}
}

// AppendDetails adds a turn of free text to the details.
func (d *Draft) AppendDetails(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if d.Details == "" {
		d.Details = text
		return
	}
	d.Details += "\n" + text
}

// HasPhone reports whether a phone number was captured.
func (d *Draft) HasPhone() bool {
	return d.Contact.Phone.Has()
}

// Advance moves the status forward. drafting -> submitted is only allowed
// when no phone was captured.
func (d *Draft) Advance(to Status) error {
	if d.Status == to {
		return nil
	}
	switch {
	case d.Status == StatusDrafting && to == StatusAwaitingVerification:
	case d.Status == StatusAwaitingVerification && to == StatusSubmitted:
	case d.Status == StatusDrafting && to == StatusSubmitted && !d.HasPhone():
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, to)
	}
	d.Status = to
	return nil
}

// WithdrawPhone drops the captured phone after a consent withdrawal.
func (d *Draft) WithdrawPhone() {
	d.Contact.Phone = Skipped(ReasonConsentWithdrawn)
	d.PhoneVerified = false
}

// FillUnset marks every optional field that was never resolved as
// not_provided with the given reason.
func (d *Draft) FillUnset(reason SkipReason) {
	d.Location.Municipality = d.Location.Municipality.orNotProvided(reason)
	d.Location.Village = d.Location.Village.orNotProvided(reason)
	d.Location.Address = d.Location.Address.orNotProvided(reason)
	d.Contact.FullName = d.Contact.FullName.orNotProvided(reason)
	d.Contact.Phone = d.Contact.Phone.orNotProvided(reason)
	d.Contact.Email = d.Contact.Email.orNotProvided(reason)
}

// Validate checks that the draft may be submitted.
func (d *Draft) Validate() error {
	if strings.TrimSpace(d.Details) == "" {
		return &ValidationError{Field: "details", Reason: "details are empty"}
	}
	if d.HasPhone() && !d.PhoneVerified {
		return &ValidationError{Field: "contact.phone", Reason: "phone number not verified"}
	}
	for _, c := range d.Categories {
		if Contains(d.Dismissed, c) {
			return &ValidationError{Field: "categories", Reason: fmt.Sprintf("category %q is also dismissed", c)}
		}
	}
	return nil
}

// Freeze builds the immutable record for the draft under id. The draft
// itself is left untouched; call MarkSubmitted once the record is stored.
// Unresolved fields become not_provided/not_reached.
func (d *Draft) Freeze(id ID, now time.Time) (*Record, error) {
	if d.Status == StatusSubmitted {
		return nil, ErrAlreadySubmitted
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	c := *d
	if err := c.Advance(StatusSubmitted); err != nil {
		return nil, err
	}
	c.FillUnset(ReasonNotReached)

	return &Record{
		ID:            id,
		DraftID:       c.ID,
		Details:       c.Details,
		Categories:    append([]CategoryTag(nil), c.Categories...),
		Summary:       c.Summary,
		Location:      c.Location,
		Contact:       c.Contact,
		PhoneVerified: c.PhoneVerified,
		Status:        StatusSubmitted,
		SubmittedAt:   now.UTC(),
	}, nil
}

// MarkSubmitted closes the draft after its record was persisted.
func (d *Draft) MarkSubmitted() {
	d.FillUnset(ReasonNotReached)
	d.Status = StatusSubmitted
}
