// Package intake sequences the grievance conversation.
//
// Stages run in a fixed order:
//
//	details -> categories -> summary -> location -> contact -> otp -> submit
//
// "back", "restart", "submit as is" and "exit" are honored in every stage.
// All conversation state lives in the session.Session passed to Advance;
// the Orchestrator itself is stateless and safe for concurrent use on
// different sessions.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/grievanced/internal/category"
	"github.com/fyrsmithlabs/grievanced/internal/classifier"
	"github.com/fyrsmithlabs/grievanced/internal/collector"
	"github.com/fyrsmithlabs/grievanced/internal/config"
	"github.com/fyrsmithlabs/grievanced/internal/grievance"
	"github.com/fyrsmithlabs/grievanced/internal/otp"
	"github.com/fyrsmithlabs/grievanced/internal/session"
	"github.com/fyrsmithlabs/grievanced/internal/taxonomy"
)

// ErrUnknownStage indicates a session persisted with a stage this version
// does not know.
var ErrUnknownStage = errors.New("unknown intake stage")

// Config tunes the conversation.
type Config struct {
	// MinDetailsChars completes the details stage once reached. Zero waits
	// for "done".
	MinDetailsChars int
	// MaxDetailsChars rejects turns that would grow the details past it.
	MaxDetailsChars int
	// MaxCategoryEdits caps the category loop. Zero is unbounded.
	MaxCategoryEdits int
	// ZeroCategoryPolicy is one of the config.ZeroCategory* values.
	ZeroCategoryPolicy string
}

// ConfigFrom converts the file configuration.
func ConfigFrom(c config.IntakeConfig) Config {
	return Config{
		MinDetailsChars:    c.MinDetailsChars,
		MaxDetailsChars:    c.MaxDetailsChars,
		MaxCategoryEdits:   c.MaxCategoryEdits,
		ZeroCategoryPolicy: c.ZeroCategoryPolicy,
	}
}

// Submitter finalizes a draft into a stored record.
type Submitter interface {
	Submit(ctx context.Context, draft *grievance.Draft) (grievance.ID, error)
}

// Deps are the collaborators of the Orchestrator.
type Deps struct {
	Classifier *classifier.Dispatcher
	Taxonomy   func() *taxonomy.Taxonomy
	OTP        *otp.Engine
	Submitter  Submitter
}

// Orchestrator advances sessions one turn at a time.
type Orchestrator struct {
	cfg        Config
	classifier *classifier.Dispatcher
	loop       category.Loop
	location   *collector.Form
	contact    *collector.Form
	otp        *otp.Engine
	submitter  Submitter
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config, deps Deps, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Classifier == nil:
		return nil, errors.New("classifier dispatcher is required")
	case deps.Taxonomy == nil:
		return nil, errors.New("taxonomy source is required")
	case deps.OTP == nil:
		return nil, errors.New("otp engine is required")
	case deps.Submitter == nil:
		return nil, errors.New("submitter is required")
	}
	if cfg.ZeroCategoryPolicy == "" {
		cfg.ZeroCategoryPolicy = config.ZeroCategoryAllow
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		cfg:        cfg,
		classifier: deps.Classifier,
		loop:       category.Loop{MaxEdits: cfg.MaxCategoryEdits},
		location:   collector.LocationForm(deps.Taxonomy),
		contact:    collector.ContactForm(),
		otp:        deps.OTP,
		submitter:  deps.Submitter,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// NewSession creates a session positioned at the details stage.
func (o *Orchestrator) NewSession() (*session.Session, *StageResult) {
	s := session.New(o.now())
	s.Stage = string(StageDetails)
	SessionsTotal.WithLabelValues("started").Inc()
	return s, o.detailsResult(s, "Please describe your grievance. Say done when you're finished.")
}

// Current re-renders the prompt the session is waiting on.
func (o *Orchestrator) Current(s *session.Session) *StageResult {
	switch Stage(s.Stage) {
	case StageDone:
		return o.submittedResult(s)
	case StageExited:
		return &StageResult{Stage: StageExited, Prompt: Prompt{Text: "This conversation has ended."}}
	}
	return o.reprompt(s, "")
}

// Advance applies one turn to s. Errors are invariant violations or
// collaborator failures the conversation cannot absorb; user mistakes
// come back as a re-prompt.
func (o *Orchestrator) Advance(ctx context.Context, s *session.Session, turn Turn) (*StageResult, error) {
	if s.Ended {
		return nil, session.ErrEnded
	}
	if s.Draft == nil {
		return nil, fmt.Errorf("session %s has no draft", s.ID)
	}
	if s.Stage == "" {
		s.Stage = string(StageDetails)
	}

	from := Stage(s.Stage)
	sig := turn.Resolve()
	text := strings.TrimSpace(turn.Text)
	TurnsTotal.WithLabelValues(string(from), string(sig)).Inc()

	var (
		res *StageResult
		err error
	)
	switch sig {
	case SignalExit:
		res = o.exit(s)
	case SignalRestart:
		res = o.restart(s)
	case SignalBack:
		res, err = o.back(ctx, s)
	case SignalSubmitAsIs:
		res, err = o.submitAsIs(ctx, s)
	default:
		res, err = o.handle(ctx, s, from, sig, text)
	}
	if err != nil {
		return nil, err
	}

	if res.Stage != from {
		StageTransitionsTotal.WithLabelValues(string(from), string(res.Stage)).Inc()
		o.logger.Debug("stage changed",
			zap.String("session_id", s.ID),
			zap.String("from", string(from)),
			zap.String("to", string(res.Stage)),
		)
	}
	s.UpdatedAt = o.now().UTC()
	return res, nil
}

func (o *Orchestrator) handle(ctx context.Context, s *session.Session, stage Stage, sig Signal, text string) (*StageResult, error) {
	switch stage {
	case StageDetails:
		return o.details(ctx, s, sig, text)
	case StageCategories:
		return o.categories(ctx, s, sig, text)
	case StageSummary:
		return o.summary(ctx, s, sig, text)
	case StageLocation:
		return o.form(ctx, s, StageLocation, o.location, sig, text)
	case StageContact:
		return o.form(ctx, s, StageContact, o.contact, sig, text)
	case StageOTP:
		return o.verify(ctx, s, sig, text)
	case StageSubmit:
		if sig == SignalNo {
			return o.submitFailedResult("Say yes to try again, or exit."), nil
		}
		return o.submit(ctx, s)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
}

// forward leaves the current stage for to, remembering it for "back".
func (o *Orchestrator) forward(ctx context.Context, s *session.Session, to Stage) (*StageResult, error) {
	s.History = append(s.History, s.Stage)
	return o.enter(ctx, s, to)
}

// enter starts a stage from scratch.
func (o *Orchestrator) enter(ctx context.Context, s *session.Session, stage Stage) (*StageResult, error) {
	s.Stage = string(stage)
	switch stage {
	case StageDetails:
		return o.detailsResult(s, "Add more details, or say done when you're finished."), nil
	case StageCategories:
		set := draftSet(s.Draft)
		s.Category = category.Propose(&set, nil)
		applySet(s.Draft, set)
		return o.categoriesResult(s, ""), nil
	case StageSummary:
		s.AwaitingSummary = false
		return o.summaryResult(s, ""), nil
	case StageLocation:
		st, step := o.location.Start()
		s.Form = st
		return formResult(StageLocation, st, step, ""), nil
	case StageContact:
		st, step := o.contact.Start()
		s.Form = st
		return formResult(StageContact, st, step, ""), nil
	case StageOTP:
		return o.issue(ctx, s)
	case StageSubmit:
		return o.submit(ctx, s)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
}

// reprompt re-renders the current stage, led by lead.
func (o *Orchestrator) reprompt(s *session.Session, lead string) *StageResult {
	switch Stage(s.Stage) {
	case StageCategories:
		return o.categoriesResult(s, lead)
	case StageSummary:
		return o.summaryResult(s, lead)
	case StageLocation:
		if s.Form != nil {
			return formResult(StageLocation, s.Form, o.location.Current(s.Form), lead)
		}
	case StageContact:
		if s.Form != nil {
			return formResult(StageContact, s.Form, o.contact.Current(s.Form), lead)
		}
	case StageOTP:
		if s.OTP != nil {
			if s.OTP.Status == otp.StatusExhausted {
				return o.exhaustedResult(s)
			}
			return o.otpResult(s, lead)
		}
	case StageSubmit:
		return o.submitFailedResult(lead)
	}
	if lead == "" {
		lead = "Add more details, or say done when you're finished."
	}
	return o.detailsResult(s, lead)
}

// clearStageState drops the unconfirmed values of the current stage.
func clearStageState(s *session.Session) {
	s.Category = nil
	s.Form = nil
	s.OTP = nil
	s.AwaitingAck = false
	s.AwaitingSummary = false
}

func (o *Orchestrator) exit(s *session.Session) *StageResult {
	draftID := s.Draft.ID
	clearStageState(s)
	s.Draft = nil
	s.History = nil
	s.Stage = string(StageExited)
	s.Ended = true
	SessionsTotal.WithLabelValues("exited").Inc()
	o.logger.Info("intake abandoned", zap.String("session_id", s.ID), zap.String("draft_id", draftID))
	return &StageResult{
		Stage:   StageExited,
		Prompt:  Prompt{Text: "Your grievance was not submitted. You can start again any time."},
		Payload: ExitedPayload{DraftID: draftID},
	}
}

func (o *Orchestrator) restart(s *session.Session) *StageResult {
	old := s.Draft.ID
	clearStageState(s)
	s.Reclassified = false
	s.History = nil
	s.Draft = grievance.NewDraft(o.now())
	s.Stage = string(StageDetails)
	o.logger.Info("intake restarted",
		zap.String("session_id", s.ID),
		zap.String("old_draft_id", old),
		zap.String("draft_id", s.Draft.ID),
	)
	return o.detailsResult(s, "Let's start again. Please describe your grievance.")
}

// back re-enters the previous stage. Only the current stage's unconfirmed
// values are discarded; the draft keeps everything already confirmed.
func (o *Orchestrator) back(ctx context.Context, s *session.Session) (*StageResult, error) {
	for len(s.History) > 0 {
		prev := Stage(s.History[len(s.History)-1])
		s.History = s.History[:len(s.History)-1]
		if prev == StageOTP && !needsOTP(s.Draft) {
			continue
		}
		clearStageState(s)
		return o.enter(ctx, s, prev)
	}
	return o.reprompt(s, "There is no earlier step."), nil
}

// submitAsIs keeps what the current stage already collected, marks every
// other optional field submitted_as_is and submits.
func (o *Orchestrator) submitAsIs(ctx context.Context, s *session.Session) (*StageResult, error) {
	d := s.Draft
	if s.Form != nil {
		applyForm(d, s.Form)
	}

	// Markers land on the draft only once it would be accepted.
	marked := *d
	if marked.HasPhone() && !marked.PhoneVerified {
		marked.Contact.Phone = grievance.NotProvided(grievance.ReasonSubmittedAsIs)
	}
	marked.FillUnset(grievance.ReasonSubmittedAsIs)
	var verr *grievance.ValidationError
	if err := marked.Validate(); errors.As(err, &verr) && verr.Field == "details" {
		clearStageState(s)
		s.Stage = string(StageDetails)
		return o.detailsResult(s, "Please describe your grievance before submitting."), nil
	}
	*d = marked

	if s.Stage != string(StageSubmit) {
		s.History = append(s.History, s.Stage)
	}
	clearStageState(s)
	return o.submit(ctx, s)
}

func (o *Orchestrator) submit(ctx context.Context, s *session.Session) (*StageResult, error) {
	s.Stage = string(StageSubmit)
	id, err := o.submitter.Submit(ctx, s.Draft)

	var verr *grievance.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr) && verr.Field == "details":
		s.Stage = string(StageDetails)
		return o.detailsResult(s, "Please describe your grievance before submitting."), nil
	case errors.As(err, &verr) && verr.Field == "contact.phone":
		return o.issue(ctx, s)
	case errors.As(err, &verr), errors.Is(err, grievance.ErrAlreadySubmitted):
		return nil, err
	default:
		SubmitFailuresTotal.Inc()
		o.logger.Error("submission failed",
			zap.String("session_id", s.ID),
			zap.String("draft_id", s.Draft.ID),
			zap.Error(err),
		)
		return o.submitFailedResult("We couldn't save your grievance right now. Say yes to try again, or exit."), nil
	}

	s.GrievanceID = id
	s.Stage = string(StageDone)
	s.Ended = true
	SessionsTotal.WithLabelValues("submitted").Inc()
	o.logger.Info("intake submitted",
		zap.String("session_id", s.ID),
		zap.String("grievance_id", string(id)),
	)
	return o.submittedResult(s), nil
}

func needsOTP(d *grievance.Draft) bool {
	return d.HasPhone() && !d.PhoneVerified
}

func draftSet(d *grievance.Draft) category.Set {
	return category.Set{Categories: d.Categories, Dismissed: d.Dismissed}
}

func applySet(d *grievance.Draft, set category.Set) {
	d.Categories = set.Categories
	d.Dismissed = set.Dismissed
}

// applyForm copies the fields a form state has resolved into the draft.
func applyForm(d *grievance.Draft, st *collector.State) {
	switch st.Form {
	case "location":
		if st.Consent != grievance.ConsentUnasked {
			d.Location.Consent = st.Consent
		}
		setIfResolved(&d.Location.Municipality, st, collector.FieldMunicipality)
		if st.Field(collector.FieldMunicipality).IsSet() {
			d.Location.MunicipalityUnmatched = st.Unmatched[collector.FieldMunicipality]
		}
		setIfResolved(&d.Location.Village, st, collector.FieldVillage)
		setIfResolved(&d.Location.Address, st, collector.FieldAddress)
	case "contact":
		if st.Consent != grievance.ConsentUnasked {
			d.Contact.Consent = st.Consent
		}
		before := d.Contact.Phone
		setIfResolved(&d.Contact.FullName, st, collector.FieldFullName)
		setIfResolved(&d.Contact.Phone, st, collector.FieldPhone)
		setIfResolved(&d.Contact.Email, st, collector.FieldEmail)
		if d.Contact.Phone != before {
			d.PhoneVerified = false
		}
	}
}

func setIfResolved(dst *grievance.Field, st *collector.State, name string) {
	if f := st.Field(name); f.IsSet() {
		*dst = f
	}
}
