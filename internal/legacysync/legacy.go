package legacysync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/fyrsmithlabs/grievanced/internal/config"
	"github.com/fyrsmithlabs/grievanced/internal/grievance"
)

// ErrLegacyRejected indicates the legacy API refused the record
// permanently; retrying will not help.
var ErrLegacyRejected = errors.New("legacy system rejected grievance")

// LegacyClient pushes records to the legacy case-management API.
type LegacyClient struct {
	baseURL string
	client  *http.Client
}

// NewLegacyClient builds a client from cfg. When a token URL is set,
// requests carry an OAuth2 client-credentials token.
func NewLegacyClient(ctx context.Context, cfg config.LegacyConfig) (*LegacyClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("legacy.base_url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret.Value(),
			TokenURL:     cfg.TokenURL,
		}
		if cfg.Scope != "" {
			cc.Scopes = strings.Fields(cfg.Scope)
		}
		httpClient = cc.Client(ctx)
		httpClient.Timeout = timeout
	}
	return &LegacyClient{baseURL: strings.TrimRight(cfg.BaseURL, "/"), client: httpClient}, nil
}

type legacyCase struct {
	ExternalID  string   `json:"external_id"`
	Description string   `json:"description"`
	Summary     string   `json:"summary,omitempty"`
	Categories  []string `json:"categories"`
	Location    string   `json:"location,omitempty"`
	ContactName string   `json:"contact_name,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Email       string   `json:"email,omitempty"`
	SubmittedAt string   `json:"submitted_at"`
}

type legacyResponse struct {
	Reference string `json:"reference"`
}

func toLegacyCase(rec *grievance.Record) legacyCase {
	c := legacyCase{
		ExternalID:  string(rec.ID),
		Description: rec.Details,
		Summary:     rec.Summary,
		Categories:  make([]string, 0, len(rec.Categories)),
		SubmittedAt: rec.SubmittedAt.UTC().Format(time.RFC3339),
	}
	for _, t := range rec.Categories {
		c.Categories = append(c.Categories, string(t))
	}
	var place []string
	for _, f := range []grievance.Field{rec.Location.Address, rec.Location.Village, rec.Location.Municipality} {
		if f.Has() {
			place = append(place, f.Value)
		}
	}
	c.Location = strings.Join(place, ", ")
	if rec.Contact.FullName.Has() {
		c.ContactName = rec.Contact.FullName.Value
	}
	if rec.Contact.Phone.Has() && rec.PhoneVerified {
		c.Phone = rec.Contact.Phone.Value
	}
	if rec.Contact.Email.Has() {
		c.Email = rec.Contact.Email.Value
	}
	return c
}

// Push creates the case and returns the legacy reference. 4xx responses
// other than 408 and 429 wrap ErrLegacyRejected.
func (l *LegacyClient) Push(ctx context.Context, rec *grievance.Record) (string, error) {
	body, err := json.Marshal(toLegacyCase(rec))
	if err != nil {
		return "", fmt.Errorf("encode case: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/cases", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", string(rec.ID))

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("push case: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return "", fmt.Errorf("legacy api: status %d", resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: status %d", ErrLegacyRejected, resp.StatusCode)
	}

	var out legacyResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.Reference == "" {
		return "", fmt.Errorf("legacy api: missing reference in response")
	}
	return out.Reference, nil
}
