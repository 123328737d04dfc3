package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/grievanced/internal/category"
	"github.com/fyrsmithlabs/grievanced/internal/collector"
	"github.com/fyrsmithlabs/grievanced/internal/config"
	"github.com/fyrsmithlabs/grievanced/internal/grievance"
	"github.com/fyrsmithlabs/grievanced/internal/otp"
	"github.com/fyrsmithlabs/grievanced/internal/session"
)

const degradedNotice = "I couldn't auto-categorize, please review."

func (o *Orchestrator) details(ctx context.Context, s *session.Session, sig Signal, text string) (*StageResult, error) {
	d := s.Draft
	switch sig {
	case SignalValue:
		if text == "" {
			return o.detailsResult(s, "Please describe your grievance."), nil
		}
		if limit := o.cfg.MaxDetailsChars; limit > 0 && utf8.RuneCountInString(d.Details)+utf8.RuneCountInString(text) > limit {
			res := o.detailsResult(s, fmt.Sprintf("That would make the description longer than %d characters. Please shorten it, or say done.", limit))
			res.Payload = DetailsPayload{Chars: utf8.RuneCountInString(d.Details), Rejected: true}
			return res, nil
		}
		d.AppendDetails(text)
		if threshold := o.cfg.MinDetailsChars; threshold > 0 && utf8.RuneCountInString(d.Details) >= threshold {
			return o.completeDetails(ctx, s)
		}
		return o.detailsResult(s, "Got it. Add more, or say done when you're finished."), nil

	case SignalDone, SignalYes:
		if strings.TrimSpace(d.Details) == "" {
			return o.detailsResult(s, "Please describe your grievance first."), nil
		}
		return o.completeDetails(ctx, s)
	}

	if strings.TrimSpace(d.Details) == "" {
		return o.detailsResult(s, "A description is needed to file a grievance. Please tell us what happened."), nil
	}
	return o.detailsResult(s, "Add more, or say done when you're finished."), nil
}

// completeDetails seeds categories and summary from the classifier and
// opens the category loop. A degraded classification never blocks.
func (o *Orchestrator) completeDetails(ctx context.Context, s *session.Session) (*StageResult, error) {
	d := s.Draft
	out := o.classifier.Classify(ctx, d.ID, d.Details)

	var suggested []grievance.CategoryTag
	if out.Accept(d.ID) && !out.Degraded {
		suggested = out.Result.Categories
		if d.Summary == "" {
			d.Summary = out.Result.Summary
		}
	}

	set := draftSet(d)
	es := category.Propose(&set, suggested)
	applySet(d, set)

	s.History = append(s.History, s.Stage)
	s.Stage = string(StageCategories)
	s.Category = es

	if out.Degraded {
		res := o.categoriesResult(s, degradedNotice)
		p := res.Payload.(CategoriesPayload)
		p.Degraded = true
		res.Payload = p
		return res, nil
	}
	return o.categoriesResult(s, ""), nil
}

func (o *Orchestrator) categories(ctx context.Context, s *session.Session, sig Signal, text string) (*StageResult, error) {
	if s.Category == nil {
		set := draftSet(s.Draft)
		s.Category = category.Propose(&set, nil)
		applySet(s.Draft, set)
	}
	es := s.Category

	if s.AwaitingAck {
		s.AwaitingAck = false
		if sig == SignalYes || sig == SignalDone {
			return o.finishCategories(ctx, s, true)
		}
	}

	var (
		action  category.Action
		payload grievance.CategoryTag
	)
	switch sig {
	case SignalYes, SignalDone, SignalSkip:
		action = category.ActionFinalize
	case SignalValue:
		a, p, ok := parseCategoryCommand(es.Mode, text)
		if !ok {
			return o.categoriesResult(s, `Say "add <name>", "delete <name>" or "change <name>", or yes to confirm.`), nil
		}
		action, payload = a, p
	case SignalNo:
		if es.Mode != category.ModeIdle {
			action = category.ActionCancel
			break
		}
		return o.categoriesResult(s, `What would you like to change? Say "add <name>", "delete <name>" or "change <name>".`), nil
	default:
		return o.categoriesResult(s, ""), nil
	}

	set := draftSet(s.Draft)
	r, err := o.loop.Apply(&set, es, action, payload)
	if err != nil {
		if errors.Is(err, category.ErrEditLimitReached) {
			return o.editLimitResult(s), nil
		}
		return o.categoriesResult(s, categoryErrorText(err)), nil
	}
	applySet(s.Draft, set)

	if r.Outcome == category.OutcomeFinalized {
		return o.finishCategories(ctx, s, false)
	}
	if o.loop.LimitReached(es) && es.Mode == category.ModeIdle {
		return o.editLimitResult(s), nil
	}
	return o.categoriesResult(s, outcomeText(r.Outcome, payload)), nil
}

// finishCategories applies the zero-category policy and moves on.
func (o *Orchestrator) finishCategories(ctx context.Context, s *session.Session, acknowledged bool) (*StageResult, error) {
	d := s.Draft
	if len(d.Categories) == 0 {
		switch o.cfg.ZeroCategoryPolicy {
		case config.ZeroCategoryReclassify:
			if !s.Reclassified {
				s.Reclassified = true
				out := o.classifier.Classify(ctx, d.ID, d.Details)
				if out.Accept(d.ID) && !out.Degraded && len(out.Result.Categories) > 0 {
					set := draftSet(d)
					es := category.Propose(&set, out.Result.Categories)
					es.Edits = s.Category.Edits
					applySet(d, set)
					s.Category = es
					if len(d.Categories) > 0 {
						return o.categoriesResult(s, "I took another look."), nil
					}
				}
			}
		case config.ZeroCategoryAcknowledge:
			if !acknowledged {
				s.AwaitingAck = true
				return o.categoriesResult(s, "No category is selected. Say yes to continue without one, or add a category."), nil
			}
		}
	}

	s.Category = nil
	s.AwaitingAck = false
	return o.forward(ctx, s, StageSummary)
}

// parseCategoryCommand reads "add <tag>", "delete <tag>", "change <tag>"
// and "cancel". While a change is in progress a bare name is the new tag.
func parseCategoryCommand(mode category.Mode, text string) (category.Action, grievance.CategoryTag, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", "", false
	}
	rest := grievance.CategoryTag(strings.Join(fields[1:], " "))
	switch strings.ToLower(fields[0]) {
	case "add":
		return category.ActionAdd, rest, true
	case "delete", "remove":
		return category.ActionDelete, rest, true
	case "change", "rename", "edit", "modify":
		return category.ActionChange, rest, true
	case "cancel":
		return category.ActionCancel, "", true
	case "finalize":
		return category.ActionFinalize, "", true
	}
	if mode != category.ModeIdle {
		return category.ActionChange, grievance.CategoryTag(text), true
	}
	return "", "", false
}

func categoryErrorText(err error) string {
	switch {
	case errors.Is(err, category.ErrEditInProgress):
		return "Finish or cancel the current change first."
	case errors.Is(err, category.ErrUnknownCategory):
		return "That category isn't in the list."
	case errors.Is(err, category.ErrEmptyTag):
		return "Please name the category."
	}
	return "Sorry, I didn't understand that."
}

func outcomeText(out category.Outcome, tag grievance.CategoryTag) string {
	switch out {
	case category.OutcomeAdded:
		return fmt.Sprintf("Added %s.", tag)
	case category.OutcomeDuplicate:
		return fmt.Sprintf("%s is already in the list.", tag)
	case category.OutcomeDismissedTag:
		return fmt.Sprintf("%s was removed earlier and won't be added back.", tag)
	case category.OutcomeDeleted:
		return "Removed."
	case category.OutcomeChanged, category.OutcomeMerged:
		return "Changed."
	case category.OutcomeReverted:
		return "Change undone."
	case category.OutcomeUnchanged:
		return "Nothing changed."
	case category.OutcomeCancelled:
		return "Cancelled."
	}
	return ""
}

func (o *Orchestrator) summary(ctx context.Context, s *session.Session, sig Signal, text string) (*StageResult, error) {
	switch sig {
	case SignalYes, SignalDone, SignalSkip:
		s.AwaitingSummary = false
		return o.forward(ctx, s, StageLocation)
	case SignalNo:
		s.AwaitingSummary = true
		return o.summaryResult(s, "Type the summary you'd like instead."), nil
	case SignalValue:
		if text == "" {
			return o.summaryResult(s, ""), nil
		}
		s.Draft.Summary = text
		s.AwaitingSummary = false
		return o.forward(ctx, s, StageLocation)
	}
	return o.summaryResult(s, ""), nil
}

func (o *Orchestrator) form(ctx context.Context, s *session.Session, stage Stage, f *collector.Form, sig Signal, text string) (*StageResult, error) {
	if s.Form == nil || s.Form.Form != f.Name {
		st, step := f.Start()
		s.Form = st
		return formResult(stage, st, step, ""), nil
	}

	in, ok := formInput(sig, text)
	if !ok {
		return formResult(stage, s.Form, f.Current(s.Form), "Please answer, or say skip."), nil
	}
	step, err := f.Handle(s.Form, in)
	switch {
	case errors.Is(err, collector.ErrUnexpectedInput):
		return formResult(stage, s.Form, f.Current(s.Form), "Please answer yes or no."), nil
	case err != nil && !errors.Is(err, collector.ErrFormComplete):
		return nil, err
	case err == nil && !step.Done:
		return formResult(stage, s.Form, step, ""), nil
	}

	applyForm(s.Draft, s.Form)
	s.Form = nil
	if stage == StageLocation {
		return o.forward(ctx, s, StageContact)
	}
	if needsOTP(s.Draft) {
		return o.forward(ctx, s, StageOTP)
	}
	return o.forward(ctx, s, StageSubmit)
}

func formInput(sig Signal, text string) (collector.Input, bool) {
	switch sig {
	case SignalYes:
		return collector.Input{Kind: collector.InputYes}, true
	case SignalNo:
		return collector.Input{Kind: collector.InputNo}, true
	case SignalSkip:
		return collector.Input{Kind: collector.InputSkip}, true
	case SignalValue:
		if text == "" {
			return collector.Input{}, false
		}
		return collector.Value(text), true
	}
	return collector.Input{}, false
}

// issue starts a fresh OTP session for the draft's phone.
func (o *Orchestrator) issue(ctx context.Context, s *session.Session) (*StageResult, error) {
	d := s.Draft
	s.Stage = string(StageOTP)
	if err := d.Advance(grievance.StatusAwaitingVerification); err != nil {
		return nil, err
	}
	sess, err := o.otp.Issue(ctx, d.Contact.Phone.Value)
	if err != nil {
		return nil, fmt.Errorf("issue otp: %w", err)
	}
	s.OTP = sess
	OTPEventsTotal.WithLabelValues("issued").Inc()
	return o.otpResult(s, fmt.Sprintf("We sent a %d-digit code to your phone. Enter it here, or say resend.", o.otp.Config().CodeLength)), nil
}

func (o *Orchestrator) verify(ctx context.Context, s *session.Session, sig Signal, text string) (*StageResult, error) {
	if s.OTP == nil {
		return o.issue(ctx, s)
	}
	if s.OTP.Status == otp.StatusExhausted {
		return o.afterExhaustion(ctx, s, sig)
	}

	switch sig {
	case SignalValue:
		code := strings.ReplaceAll(text, " ", "")
		out := o.otp.Verify(s.OTP, code)
		OTPEventsTotal.WithLabelValues(string(out)).Inc()
		switch out {
		case otp.OutcomeVerified:
			s.Draft.PhoneVerified = true
			s.OTP = nil
			return o.forward(ctx, s, StageSubmit)
		case otp.OutcomeMismatch:
			return o.otpResult(s, fmt.Sprintf("That code didn't match. %d attempts left.", s.OTP.AttemptsLeft(o.otp.Config()))), nil
		case otp.OutcomeAttemptExhausted:
			return o.exhaustedResult(s), nil
		}
		if s.OTP.Status == otp.StatusExhausted {
			return o.exhaustedResult(s), nil
		}
		return o.otpResult(s, "That code has expired. Say resend for a new one."), nil

	case SignalResend:
		_, err := o.otp.Resend(ctx, s.OTP)
		var exhausted *otp.ExhaustedError
		if errors.As(err, &exhausted) {
			OTPEventsTotal.WithLabelValues("resend_exhausted").Inc()
			return o.exhaustedResult(s), nil
		}
		if err != nil {
			return nil, fmt.Errorf("resend otp: %w", err)
		}
		OTPEventsTotal.WithLabelValues("resent").Inc()
		return o.otpResult(s, "We sent a new code."), nil

	case SignalSkip:
		return o.withdrawPhone(ctx, s)
	}
	return o.otpResult(s, "Enter the code we sent, say resend, or skip to continue without your phone number."), nil
}

// afterExhaustion offers the ways out of an exhausted OTP session.
func (o *Orchestrator) afterExhaustion(ctx context.Context, s *session.Session, sig Signal) (*StageResult, error) {
	switch sig {
	case SignalYes:
		s.OTP = nil
		if n := len(s.History); n > 0 && s.History[n-1] == string(StageContact) {
			s.History = s.History[:n-1]
		}
		o.logger.Debug("contact stage restarted after otp exhaustion", zap.String("session_id", s.ID))
		return o.enter(ctx, s, StageContact)
	case SignalSkip:
		return o.withdrawPhone(ctx, s)
	}
	return o.exhaustedResult(s), nil
}

// withdrawPhone records the phone as withdrawn and submits without it.
func (o *Orchestrator) withdrawPhone(ctx context.Context, s *session.Session) (*StageResult, error) {
	s.Draft.WithdrawPhone()
	s.OTP = nil
	OTPEventsTotal.WithLabelValues("withdrawn").Inc()
	return o.forward(ctx, s, StageSubmit)
}
