package intake

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/grievanced/internal/category"
	"github.com/fyrsmithlabs/grievanced/internal/collector"
	"github.com/fyrsmithlabs/grievanced/internal/grievance"
	"github.com/fyrsmithlabs/grievanced/internal/logging"
	"github.com/fyrsmithlabs/grievanced/internal/otp"
	"github.com/fyrsmithlabs/grievanced/internal/session"
)

func joinPrompt(lead, body string) string {
	switch {
	case lead == "":
		return body
	case body == "":
		return lead
	}
	return lead + " " + body
}

func (o *Orchestrator) detailsResult(s *session.Session, text string) *StageResult {
	return &StageResult{
		Stage:   StageDetails,
		Prompt:  Prompt{Text: text, QuickReplies: []string{"done", "restart", "exit"}},
		Payload: DetailsPayload{Chars: utf8.RuneCountInString(s.Draft.Details)},
	}
}

func (o *Orchestrator) categoriesResult(s *session.Session, lead string) *StageResult {
	d := s.Draft
	es := s.Category
	if es == nil {
		es = &category.EditSession{Mode: category.ModeIdle}
	}

	var body string
	replies := []string{"yes", "add", "change", "delete", "submit as is"}
	switch es.Mode {
	case category.ModeModifying:
		body = fmt.Sprintf("What should happen to %s? Say change or delete, or no to cancel.", es.Target)
		replies = []string{"change", "delete", "cancel"}
	case category.ModeChanging:
		body = fmt.Sprintf("What should %s be changed to?", es.Target)
		replies = []string{"cancel"}
	default:
		if s.AwaitingAck {
			replies = []string{"yes", "add"}
			break
		}
		if len(d.Categories) == 0 {
			body = `No categories yet. Add one with "add <name>", or say done.`
		} else {
			body = fmt.Sprintf("Categories: %s. Is this right? Say yes, or add, delete or change a category.", joinTags(d.Categories))
		}
	}

	left := -1
	if o.loop.MaxEdits > 0 {
		left = max(o.loop.MaxEdits-es.Edits, 0)
	}
	return &StageResult{
		Stage:  StageCategories,
		Prompt: Prompt{Text: joinPrompt(lead, body), QuickReplies: replies},
		Payload: CategoriesPayload{
			Categories:  d.Categories,
			Dismissed:   d.Dismissed,
			Mode:        es.Mode,
			Target:      es.Target,
			EditsLeft:   left,
			AwaitingAck: s.AwaitingAck,
		},
	}
}

func (o *Orchestrator) editLimitResult(s *session.Session) *StageResult {
	res := o.categoriesResult(s, "")
	res.Prompt = Prompt{
		Text:         fmt.Sprintf("That's the most changes we can make here. Categories: %s. Say done to keep them, submit as is, restart, or exit.", joinTags(s.Draft.Categories)),
		QuickReplies: []string{"done", "submit as is", "restart", "exit"},
	}
	return res
}

func joinTags(tags []grievance.CategoryTag) string {
	if len(tags) == 0 {
		return "none"
	}
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

func (o *Orchestrator) summaryResult(s *session.Session, lead string) *StageResult {
	body := fmt.Sprintf("Here is a short summary: %q. Is this right?", s.Draft.Summary)
	replies := []string{"yes", "no", "back"}
	switch {
	case s.AwaitingSummary:
		body = ""
		replies = []string{"back"}
	case s.Draft.Summary == "":
		body = "Please write a one-line summary, or say skip."
		replies = []string{"skip", "back"}
	}
	return &StageResult{
		Stage:   StageSummary,
		Prompt:  Prompt{Text: joinPrompt(lead, body), QuickReplies: replies},
		Payload: SummaryPayload{Summary: s.Draft.Summary, Editing: s.AwaitingSummary},
	}
}

func formResult(stage Stage, st *collector.State, step collector.Step, lead string) *StageResult {
	text := step.Prompt
	if step.Invalid != "" {
		text = joinPrompt(step.Invalid+".", text)
	}

	var replies []string
	switch step.Phase {
	case collector.PhaseConsent:
		replies = []string{"yes", "no"}
	case collector.PhaseField:
		replies = []string{"skip", "back", "submit as is"}
	case collector.PhaseConfirm:
		replies = []string{"yes", "no", "skip"}
	}
	return &StageResult{
		Stage:  stage,
		Prompt: Prompt{Text: joinPrompt(lead, text), QuickReplies: replies},
		Payload: FormPayload{
			Form:       st.Form,
			Phase:      string(step.Phase),
			Field:      step.Field,
			Invalid:    step.Invalid,
			Suggestion: step.Suggestion,
		},
	}
}

func (o *Orchestrator) otpPayload(s *session.Session) OTPPayload {
	cfg := o.otp.Config()
	return OTPPayload{
		Channel:        logging.MaskPhone(s.OTP.Channel),
		Status:         string(s.OTP.Status),
		AttemptsLeft:   s.OTP.AttemptsLeft(cfg),
		ResendsLeft:    s.OTP.ResendsLeft(cfg),
		DeliveryFailed: s.OTP.DeliveryFailed,
	}
}

func (o *Orchestrator) otpResult(s *session.Session, lead string) *StageResult {
	switch {
	case s.OTP.DeliveryFailed:
		lead = "We couldn't send the code. Say resend to try again."
	case lead == "":
		lead = "Enter the code we sent, or say resend."
	}
	return &StageResult{
		Stage:   StageOTP,
		Prompt:  Prompt{Text: lead, QuickReplies: []string{"resend", "skip", "back"}},
		Payload: o.otpPayload(s),
	}
}

func (o *Orchestrator) exhaustedResult(s *session.Session) *StageResult {
	p := o.otpPayload(s)
	p.Status = string(otp.StatusExhausted)
	return &StageResult{
		Stage: StageOTP,
		Prompt: Prompt{
			Text:         "We couldn't verify your number. Say yes to re-enter your contact details, skip to continue without your phone number, submit as is, or exit.",
			QuickReplies: []string{"yes", "skip", "submit as is", "exit"},
		},
		Payload: p,
	}
}

func (o *Orchestrator) submittedResult(s *session.Session) *StageResult {
	var cats []grievance.CategoryTag
	if s.Draft != nil {
		cats = s.Draft.Categories
	}
	return &StageResult{
		Stage: StageDone,
		Prompt: Prompt{
			Text: fmt.Sprintf("Thank you. Your grievance has been submitted. Your reference number is %s.", s.GrievanceID),
		},
		Payload: SubmittedPayload{GrievanceID: s.GrievanceID, Categories: cats},
	}
}

func (o *Orchestrator) submitFailedResult(text string) *StageResult {
	if text == "" {
		text = "Say yes to try submitting again, or exit."
	}
	return &StageResult{
		Stage:   StageSubmit,
		Prompt:  Prompt{Text: text, QuickReplies: []string{"yes", "exit"}},
		Payload: SubmitFailedPayload{Retryable: true},
	}
}
