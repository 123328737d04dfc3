// Package otp issues and verifies one-time codes with independent resend and
// attempt caps.
//
// Transitions:
//
//	pending -> verified | expired | exhausted
//	expired -> pending   (Resend only)
//	verified, exhausted  (terminal)
//
// Expiry is detected lazily by Verify and Resend; there are no timers.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/grievanced/internal/logging"
)

// Status is the OTP session state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusVerified  Status = "verified"
	StatusExpired   Status = "expired"
	StatusExhausted Status = "exhausted"
)

// Outcome is the result of one Verify call.
type Outcome string

const (
	OutcomeVerified         Outcome = "verified"
	OutcomeMismatch         Outcome = "mismatch"
	OutcomeAttemptExhausted Outcome = "attempt_exhausted"
	OutcomeCodeExpired      Outcome = "code_expired"
)

// Session is one verification cycle for a channel. It is persisted with the
// conversation session between turns.
type Session struct {
	Channel        string    `json:"channel"`
	Code           string    `json:"code,omitempty"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	ResendCount    int       `json:"resend_count"`
	AttemptCount   int       `json:"attempt_count"`
	Status         Status    `json:"status"`
	DeliveryFailed bool      `json:"delivery_failed"`
}

// AttemptsLeft returns the remaining verification attempts.
func (s *Session) AttemptsLeft(cfg Config) int {
	return max(cfg.MaxAttempts-s.AttemptCount, 0)
}

// ResendsLeft returns the remaining resends.
func (s *Session) ResendsLeft(cfg Config) int {
	return max(cfg.MaxResends-s.ResendCount, 0)
}

// Sender delivers a code to a channel (phone number or address).
type Sender interface {
	SendCode(ctx context.Context, channel, code string) error
}

// Config holds the engine limits.
type Config struct {
	CodeLength      int
	TTL             time.Duration
	MaxResends      int
	MaxAttempts     int
	DeliveryTimeout time.Duration
}

// DefaultConfig returns the default limits: 6 digits, 5 minutes, 3 resends,
// 5 attempts.
func DefaultConfig() Config {
	return Config{
		CodeLength:      6,
		TTL:             5 * time.Minute,
		MaxResends:      3,
		MaxAttempts:     5,
		DeliveryTimeout: 10 * time.Second,
	}
}

// Engine issues, resends and verifies codes.
type Engine struct {
	cfg    Config
	sender Sender
	logger *zap.Logger
	now    func() time.Time
	rand   io.Reader
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRandom overrides the code entropy source.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) { e.rand = r }
}

// NewEngine creates an engine delivering through sender.
func NewEngine(cfg Config, sender Sender, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if sender == nil {
		return nil, ErrNoSender
	}
	if cfg.CodeLength <= 0 || cfg.TTL <= 0 || cfg.MaxAttempts <= 0 || cfg.MaxResends < 0 {
		return nil, fmt.Errorf("invalid otp config: %+v", cfg)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:    cfg,
		sender: sender,
		logger: logger,
		now:    time.Now,
		rand:   rand.Reader,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine limits.
func (e *Engine) Config() Config { return e.cfg }

// Issue starts a fresh session for channel with zeroed counters and sends
// the first code.
func (e *Engine) Issue(ctx context.Context, channel string) (*Session, error) {
	code, err := e.newCode("")
	if err != nil {
		return nil, err
	}
	now := e.now()
	s := &Session{
		Channel:   channel,
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(e.cfg.TTL),
		Status:    StatusPending,
	}
	e.deliver(ctx, s)
	return s, nil
}

// Resend issues a new code and expiry, keeping the attempt count. Past the
// resend cap the session becomes exhausted and *ExhaustedError is returned.
func (e *Engine) Resend(ctx context.Context, s *Session) (*Session, error) {
	e.expireIfDue(s)

	switch s.Status {
	case StatusVerified, StatusExhausted:
		if s.Status == StatusExhausted {
			return s, &ExhaustedError{Resends: s.ResendCount, Attempts: s.AttemptCount}
		}
		return s, ErrSessionClosed
	}

	if s.ResendCount >= e.cfg.MaxResends {
		s.Status = StatusExhausted
		s.Code = ""
		return s, &ExhaustedError{Resends: s.ResendCount, Attempts: s.AttemptCount}
	}

	code, err := e.newCode(s.Code)
	if err != nil {
		return s, err
	}
	now := e.now()
	s.ResendCount++
	s.Code = code
	s.IssuedAt = now
	s.ExpiresAt = now.Add(e.cfg.TTL)
	s.Status = StatusPending
	s.DeliveryFailed = false
	e.deliver(ctx, s)
	return s, nil
}

// Verify compares code against the session. Only a pending, unexpired
// session consumes an attempt; any other session reports code_expired.
func (e *Engine) Verify(s *Session, code string) Outcome {
	e.expireIfDue(s)

	if s.Status != StatusPending {
		return OutcomeCodeExpired
	}

	if s.Code != "" && subtle.ConstantTimeCompare([]byte(s.Code), []byte(code)) == 1 {
		s.Status = StatusVerified
		s.Code = ""
		return OutcomeVerified
	}

	s.AttemptCount++
	if s.AttemptCount >= e.cfg.MaxAttempts {
		s.Status = StatusExhausted
		s.Code = ""
		return OutcomeAttemptExhausted
	}
	return OutcomeMismatch
}

func (e *Engine) expireIfDue(s *Session) {
	if s.Status == StatusPending && !e.now().Before(s.ExpiresAt) {
		s.Status = StatusExpired
	}
}

// deliver sends the code with a bounded wait. Failures are recorded on the
// session, never returned.
func (e *Engine) deliver(ctx context.Context, s *Session) {
	if e.cfg.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.DeliveryTimeout)
		defer cancel()
	}

	if err := e.sender.SendCode(ctx, s.Channel, s.Code); err != nil {
		s.DeliveryFailed = true
		e.logger.Warn("otp delivery failed",
			logging.Phone("channel", s.Channel),
			zap.Int("resend_count", s.ResendCount),
			zap.Error(err),
		)
		return
	}
	s.DeliveryFailed = false
	e.logger.Debug("otp delivered",
		logging.Phone("channel", s.Channel),
		zap.Int("resend_count", s.ResendCount),
	)
}

// newCode draws a numeric code of the configured length that differs from
// previous.
func (e *Engine) newCode(previous string) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(e.cfg.CodeLength)), nil)
	for i := 0; i < 16; i++ {
		n, err := rand.Int(e.rand, limit)
		if err != nil {
			return "", fmt.Errorf("generate otp code: %w", err)
		}
		code := fmt.Sprintf("%0*d", e.cfg.CodeLength, n)
		if code != previous {
			return code, nil
		}
	}
	return "", fmt.Errorf("generate otp code: entropy source keeps repeating")
}
