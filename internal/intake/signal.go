package intake

import (
	"strings"
)

// Signal is the intent of one user turn.
type Signal string

const (
	// SignalValue carries free text: details, a field value, a code or a
	// category command.
	SignalValue      Signal = "value"
	SignalSkip       Signal = "skip"
	SignalBack       Signal = "back"
	SignalRestart    Signal = "restart"
	SignalSubmitAsIs Signal = "submit_as_is"
	SignalExit       Signal = "exit"
	SignalDone       Signal = "done"
	SignalYes        Signal = "yes"
	SignalNo         Signal = "no"
	SignalResend     Signal = "resend"
)

// Turn is one utterance. An explicit Signal bypasses keyword parsing.
type Turn struct {
	Text   string `json:"text"`
	Signal Signal `json:"signal,omitempty"`
}

// Resolve returns the turn's signal, parsing Text when none was given.
func (t Turn) Resolve() Signal {
	if t.Signal != "" {
		return t.Signal
	}
	return ParseSignal(t.Text)
}

var keywords = map[string]Signal{
	"skip":          SignalSkip,
	"pass":          SignalSkip,
	"skip it":       SignalSkip,
	"back":          SignalBack,
	"go back":       SignalBack,
	"previous":      SignalBack,
	"restart":       SignalRestart,
	"start over":    SignalRestart,
	"start again":   SignalRestart,
	"submit as is":  SignalSubmitAsIs,
	"submit as-is":  SignalSubmitAsIs,
	"submit_as_is":  SignalSubmitAsIs,
	"submit now":    SignalSubmitAsIs,
	"exit":          SignalExit,
	"quit":          SignalExit,
	"stop":          SignalExit,
	"done":          SignalDone,
	"finished":      SignalDone,
	"that's all":    SignalDone,
	"that is all":   SignalDone,
	"yes":           SignalYes,
	"y":             SignalYes,
	"ok":            SignalYes,
	"okay":          SignalYes,
	"correct":       SignalYes,
	"confirm":       SignalYes,
	"ho":            SignalYes,
	"हो":            SignalYes,
	"no":            SignalNo,
	"n":             SignalNo,
	"nope":          SignalNo,
	"wrong":         SignalNo,
	"hoina":         SignalNo,
	"होइन":          SignalNo,
	"resend":        SignalResend,
	"send again":    SignalResend,
	"resend code":   SignalResend,
	"send new code": SignalResend,
}

// ParseSignal maps an utterance to a signal. Only whole-utterance keywords
// match, optionally in slash form ("/skip"); anything else is a value.
func ParseSignal(text string) Signal {
	s := strings.ToLower(strings.Join(strings.Fields(text), " "))
	s = strings.TrimPrefix(s, "/")
	s = strings.TrimRight(s, ".!")
	if sig, ok := keywords[s]; ok {
		return sig
	}
	return SignalValue
}
