// Package client is a small HTTP client for the grievanced API, used by the
// grv CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Is maps 404 responses to ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Prompt matches intake.Prompt.
type Prompt struct {
	Text         string   `json:"text"`
	QuickReplies []string `json:"quick_replies,omitempty"`
}

// Result matches intake.StageResult. Payload is left undecoded; its shape
// depends on Stage.
type Result struct {
	Stage   string          `json:"stage"`
	Prompt  Prompt          `json:"prompt"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Submitted decodes the payload of a "done" result.
func (r *Result) Submitted() (id string, categories []string, ok bool) {
	if r == nil || r.Stage != "done" || len(r.Payload) == 0 {
		return "", nil, false
	}
	var p struct {
		GrievanceID string   `json:"grievance_id"`
		Categories  []string `json:"categories"`
	}
	if err := json.Unmarshal(r.Payload, &p); err != nil || p.GrievanceID == "" {
		return "", nil, false
	}
	return p.GrievanceID, p.Categories, true
}

// Session matches the http SessionResponse.
type Session struct {
	SessionID string  `json:"session_id"`
	Result    *Result `json:"result"`
}

// Amendment matches grievance.Amendment.
type Amendment struct {
	ID        int64     `json:"id"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// Tracking matches the http TrackingResponse.
type Tracking struct {
	ID            string      `json:"id"`
	Status        string      `json:"status"`
	Categories    []string    `json:"categories"`
	Summary       string      `json:"summary"`
	Municipality  string      `json:"municipality,omitempty"`
	PhoneVerified bool        `json:"phone_verified"`
	SubmittedAt   time.Time   `json:"submitted_at"`
	SyncStatus    string      `json:"sync_status"`
	LegacyRef     string      `json:"legacy_ref,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Amendments    []Amendment `json:"amendments"`
}

// Client talks to one grievanced server.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Health returns the server's health status string.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// StartSession opens a conversation.
func (c *Client) StartSession(ctx context.Context) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Current re-renders the prompt a session is waiting on.
func (c *Client) Current(ctx context.Context, sessionID string) (*Result, error) {
	var out Session
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// Say sends a free-text turn. The server parses signals such as "skip".
func (c *Client) Say(ctx context.Context, sessionID, text string) (*Result, error) {
	return c.turn(ctx, sessionID, map[string]string{"text": text})
}

// Signal sends an explicit signal with optional text.
func (c *Client) Signal(ctx context.Context, sessionID, signal, text string) (*Result, error) {
	return c.turn(ctx, sessionID, map[string]string{"text": text, "signal": signal})
}

func (c *Client) turn(ctx context.Context, sessionID string, body map[string]string) (*Result, error) {
	var out Session
	path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/turns"
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// EndSession exits a conversation.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(sessionID), nil, nil)
}

// Track loads a submitted grievance.
func (c *Client) Track(ctx context.Context, id string) (*Tracking, error) {
	var out Tracking
	if err := c.do(ctx, http.MethodGet, "/api/v1/grievances/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Amend appends a note to a submitted grievance.
func (c *Client) Amend(ctx context.Context, id, note string) (*Amendment, error) {
	var out Amendment
	path := "/api/v1/grievances/" + url.PathEscape(id) + "/amendments"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"note": note}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError reads echo's {"message": ...} error body.
func decodeError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "failed to read response body"}
	}
	var e struct {
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &e) == nil && e.Message != "" {
		msg = e.Message
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
