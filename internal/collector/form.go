// Package collector runs a consent question followed by a form of optional
// fields. It is used for both the location and the contact stage.
//
// The collector keeps no state of its own: every call receives the State
// persisted by the caller between turns.
package collector

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
)

var (
	// ErrFormComplete indicates input after the form finished.
	ErrFormComplete = errors.New("form already complete")

	// ErrUnexpectedInput indicates an input kind the current step cannot use.
	ErrUnexpectedInput = errors.New("unexpected input")
)

// InputKind classifies one turn of user input.
type InputKind string

const (
	InputValue InputKind = "value"
	InputSkip  InputKind = "skip"
	InputYes   InputKind = "yes"
	InputNo    InputKind = "no"
)

// Input is one turn routed to the form.
type Input struct {
	Kind  InputKind
	Value string
}

// Value is shorthand for a value input.
func Value(v string) Input { return Input{Kind: InputValue, Value: v} }

// FieldSpec describes one optional field.
type FieldSpec struct {
	Name   string
	Prompt string
	// Normalize validates and canonicalizes the raw value. A non-nil error
	// re-prompts the same field; the error text is shown to the user.
	Normalize func(raw string) (string, error)
	// Suggest proposes a canonical value for confirmation. ok is false when
	// nothing matches and the value is taken as typed.
	Suggest func(value string) (suggestion string, ok bool)
}

// Form is a consent question plus its fields.
type Form struct {
	Name          string
	ConsentPrompt string
	Fields        []FieldSpec
}

// Phase is where the form is waiting.
type Phase string

const (
	PhaseConsent Phase = "consent"
	PhaseField   Phase = "field"
	PhaseConfirm Phase = "confirm"
	PhaseDone    Phase = "done"
)

// State is the persisted progress through a form.
type State struct {
	Form    string                     `json:"form"`
	Phase   Phase                      `json:"phase"`
	Consent grievance.Consent          `json:"consent,omitempty"`
	Index   int                        `json:"index"`
	Values  map[string]grievance.Field `json:"values"`
	// Pending holds the suggestion awaiting a yes/no; Typed holds the
	// value the user entered, kept when the suggestion is rejected.
	Pending string `json:"pending,omitempty"`
	Typed   string `json:"typed,omitempty"`
	// Unmatched lists fields recorded as typed, without a canonical match.
	Unmatched map[string]bool `json:"unmatched,omitempty"`
}

// Step is what the caller should show next.
type Step struct {
	Phase Phase
	// Field is the field being asked for or confirmed.
	Field  string
	Prompt string
	// Invalid carries the re-prompt reason when a value was rejected.
	Invalid string
	// Suggestion is set in PhaseConfirm.
	Suggestion string
	Done       bool
}

// Start returns a fresh state and the consent question.
func (f *Form) Start() (*State, Step) {
	st := &State{Form: f.Name, Phase: PhaseConsent, Values: make(map[string]grievance.Field)}
	return st, Step{Phase: PhaseConsent, Prompt: f.ConsentPrompt}
}

// Current re-renders the step the state is waiting on.
func (f *Form) Current(st *State) Step {
	switch st.Phase {
	case PhaseConsent:
		return Step{Phase: PhaseConsent, Prompt: f.ConsentPrompt}
	case PhaseField:
		fs := f.Fields[st.Index]
		return Step{Phase: PhaseField, Field: fs.Name, Prompt: fs.Prompt}
	case PhaseConfirm:
		fs := f.Fields[st.Index]
		return Step{Phase: PhaseConfirm, Field: fs.Name, Suggestion: st.Pending,
			Prompt: fmt.Sprintf("Did you mean %s? Say no to keep %q.", st.Pending, st.Typed)}
	}
	return Step{Phase: PhaseDone, Done: true}
}

// Handle applies one input and returns the next step.
func (f *Form) Handle(st *State, in Input) (Step, error) {
	if st.Values == nil {
		st.Values = make(map[string]grievance.Field)
	}
	switch st.Phase {
	case PhaseConsent:
		return f.handleConsent(st, in)
	case PhaseField:
		return f.handleField(st, in)
	case PhaseConfirm:
		return f.handleConfirm(st, in)
	}
	return Step{}, ErrFormComplete
}

func (f *Form) handleConsent(st *State, in Input) (Step, error) {
	switch in.Kind {
	case InputYes:
		st.Consent = grievance.ConsentGranted
		if len(f.Fields) == 0 {
			return f.finish(st), nil
		}
		st.Phase, st.Index = PhaseField, 0
		return f.Current(st), nil
	case InputNo, InputSkip:
		st.Consent = grievance.ConsentDeclined
		for _, fs := range f.Fields {
			st.Values[fs.Name] = grievance.Skipped(grievance.ReasonConsentDeclined)
		}
		return f.finish(st), nil
	}
	return Step{}, fmt.Errorf("%w: %s at consent", ErrUnexpectedInput, in.Kind)
}

func (f *Form) handleField(st *State, in Input) (Step, error) {
	fs := f.Fields[st.Index]
	switch in.Kind {
	case InputSkip:
		st.Values[fs.Name] = grievance.Skipped(grievance.ReasonUserSkipped)
		return f.next(st), nil
	case InputValue:
	default:
		return Step{}, fmt.Errorf("%w: %s at %s", ErrUnexpectedInput, in.Kind, fs.Name)
	}

	v := in.Value
	if fs.Normalize != nil {
		norm, err := fs.Normalize(v)
		if err != nil {
			step := f.Current(st)
			step.Invalid = err.Error()
			return step, nil
		}
		v = norm
	}

	if fs.Suggest != nil {
		s, ok := fs.Suggest(v)
		if ok && s != v {
			st.Phase, st.Pending, st.Typed = PhaseConfirm, s, v
			return f.Current(st), nil
		}
		st.setUnmatched(fs.Name, !ok)
	}
	st.Values[fs.Name] = grievance.Provided(v)
	return f.next(st), nil
}

func (f *Form) handleConfirm(st *State, in Input) (Step, error) {
	fs := f.Fields[st.Index]
	switch in.Kind {
	case InputYes:
		st.Values[fs.Name] = grievance.Provided(st.Pending)
		st.setUnmatched(fs.Name, false)
		st.Pending, st.Typed = "", ""
		return f.next(st), nil
	case InputNo:
		// Keep what the user typed.
		st.Values[fs.Name] = grievance.Provided(st.Typed)
		st.setUnmatched(fs.Name, true)
		st.Pending, st.Typed = "", ""
		return f.next(st), nil
	case InputSkip:
		st.Values[fs.Name] = grievance.Skipped(grievance.ReasonUserSkipped)
		st.Pending, st.Typed = "", ""
		return f.next(st), nil
	case InputValue:
		// A fresh value replaces the rejected suggestion.
		st.Phase, st.Pending, st.Typed = PhaseField, "", ""
		return f.handleField(st, in)
	}
	return Step{}, fmt.Errorf("%w: %s at confirm", ErrUnexpectedInput, in.Kind)
}

func (f *Form) next(st *State) Step {
	st.Index++
	if st.Index >= len(f.Fields) {
		return f.finish(st)
	}
	st.Phase = PhaseField
	return f.Current(st)
}

func (f *Form) finish(st *State) Step {
	st.Phase, st.Pending, st.Typed = PhaseDone, "", ""
	return Step{Phase: PhaseDone, Done: true}
}

func (st *State) setUnmatched(name string, unmatched bool) {
	if !unmatched {
		delete(st.Unmatched, name)
		return
	}
	if st.Unmatched == nil {
		st.Unmatched = make(map[string]bool)
	}
	st.Unmatched[name] = true
}

// Field returns the recorded value for name, or the zero Field.
func (st *State) Field(name string) grievance.Field {
	return st.Values[name]
}
