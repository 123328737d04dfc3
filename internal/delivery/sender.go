// Package delivery sends one-time codes to citizens.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/grievanced/internal/config"
	"github.com/fyrsmithlabs/grievanced/internal/logging"
	"github.com/fyrsmithlabs/grievanced/internal/otp"
)

var (
	// ErrRejected indicates the gateway refused the message.
	ErrRejected = errors.New("delivery rejected")

	// ErrUnknownProvider indicates an unsupported delivery.provider.
	ErrUnknownProvider = errors.New("unknown delivery provider")
)

// New builds the sender selected by cfg.
func New(cfg config.DeliveryConfig, logger *zap.Logger) (otp.Sender, error) {
	switch cfg.Provider {
	case "", "log":
		return NewLogSender(logger), nil
	case "webhook":
		return NewWebhookSender(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// LogSender writes codes to the log instead of delivering them. For local
// development only.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// SendCode logs the code for the masked channel.
func (s *LogSender) SendCode(ctx context.Context, channel, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("otp code (log delivery)",
		logging.Phone("channel", channel),
		zap.String("dev_otp", code),
	)
	return nil
}

type webhookMessage struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// WebhookSender posts codes to an SMS gateway webhook.
type WebhookSender struct {
	url     string
	token   config.Secret
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewWebhookSender creates a WebhookSender from cfg.
func NewWebhookSender(cfg config.DeliveryConfig, logger *zap.Logger) (*WebhookSender, error) {
	if cfg.WebhookURL == "" {
		return nil, errors.New("delivery.webhook_url is required for the webhook provider")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &WebhookSender{
		url:     cfg.WebhookURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}, nil
}

// SendCode posts the code. Non-2xx responses wrap ErrRejected.
func (s *WebhookSender) SendCode(ctx context.Context, channel, code string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(webhookMessage{
		Channel: channel,
		Message: fmt.Sprintf("Your grievance verification code is %s", code),
		Code:    code,
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token.IsSet() {
		req.Header.Set("Authorization", "Bearer "+s.token.Value())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send code: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	s.logger.Debug("otp code sent", logging.Phone("channel", channel))
	return nil
}
