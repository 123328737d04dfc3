package grievance

// FieldState records whether an optional field holds a value.
type FieldState string

const (
	FieldProvided    FieldState = "provided"
	FieldSkipped     FieldState = "skipped"
	FieldNotProvided FieldState = "not_provided"
)

// SkipReason explains why a field has no value.
type SkipReason string

const (
	ReasonUserSkipped      SkipReason = "user_skipped"
	ReasonConsentDeclined  SkipReason = "consent_declined"
	ReasonConsentWithdrawn SkipReason = "consent_withdrawn"
	ReasonSubmittedAsIs    SkipReason = "submitted_as_is"
	ReasonNotReached       SkipReason = "not_reached"
)

// Field is an optional value with an explicit state. The zero Field is
// unset: the flow has not reached it yet.
type Field struct {
	Value  string     `json:"value,omitempty"`
	State  FieldState `json:"state,omitempty"`
	Reason SkipReason `json:"reason,omitempty"`
}

// Provided returns a field holding v.
func Provided(v string) Field {
	return Field{Value: v, State: FieldProvided}
}

// Skipped returns a field the user chose to skip.
func Skipped(reason SkipReason) Field {
	return Field{State: FieldSkipped, Reason: reason}
}

// NotProvided returns a field the flow never filled.
func NotProvided(reason SkipReason) Field {
	return Field{State: FieldNotProvided, Reason: reason}
}

// IsSet reports whether the field has been resolved either way.
func (f Field) IsSet() bool { return f.State != "" }

// Has reports whether the field holds a value.
func (f Field) Has() bool { return f.State == FieldProvided }

// orNotProvided resolves an unset field.
func (f Field) orNotProvided(reason SkipReason) Field {
	if f.IsSet() {
		return f
	}
	return NotProvided(reason)
}
