package otp

import (
	"errors"
	"fmt"
)

// Engine errors.
var (
	// ErrSessionClosed indicates a resend on a verified or exhausted session.
	ErrSessionClosed = errors.New("otp session closed")

	// ErrNoSender indicates the engine was built without a delivery channel.
	ErrNoSender = errors.New("otp sender not configured")
)

// ExhaustedError reports a session that hit one of its caps. The contact
// stage must be restarted to get a new session.
type ExhaustedError struct {
	Resends  int
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("otp exhausted after %d resends and %d failed attempts", e.Resends, e.Attempts)
}
