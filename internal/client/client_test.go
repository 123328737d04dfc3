package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", time.Second)
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:8080/", 0)
	assert.Equal(t, "http://localhost:8080", c.BaseURL())
	assert.Equal(t, 30*time.Second, c.client.Timeout)
}

func TestClient_StartAndSay(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/sessions":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"session_id":"s-1","result":{"stage":"details","prompt":{"text":"Please describe your grievance."}}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/sessions/s-1/turns":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "skip", body["signal"])
			_, _ = w.Write([]byte(`{"session_id":"s-1","result":{"stage":"contact","prompt":{"text":"What is your name?","quick_replies":["skip"]}}}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
	ctx := context.Background()

	sess, err := c.StartSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s-1", sess.SessionID)
	assert.Equal(t, "details", sess.Result.Stage)

	res, err := c.Signal(ctx, "s-1", "skip", "")
	require.NoError(t, err)
	assert.Equal(t, "contact", res.Stage)
	assert.Equal(t, []string{"skip"}, res.Prompt.QuickReplies)
}

func TestClient_ErrorMapping(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"grievance not found"}`))
	})

	_, err := c.Track(context.Background(), "GR-20250101-000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "grievance not found", apiErr.Message)
}

func TestClient_PlainTextError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream gone", http.StatusBadGateway)
	})

	_, err := c.Health(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream gone", apiErr.Message)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestClient_EndSessionNoContent(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.EndSession(context.Background(), "s-1"))
}

func TestClient_TrackAndAmend(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"id":"GR-20250314-4F7K2Q","status":"published","categories":["Agriculture"],"summary":"Harvest lost.","phone_verified":true,"sync_status":"synced","legacy_ref":"LC-9","amendments":[]}`))
		case http.MethodPost:
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": 1, "grievance_id": "GR-20250314-4F7K2Q", "note": body["note"]})
		}
	})
	ctx := context.Background()

	tr, err := c.Track(ctx, "GR-20250314-4F7K2Q")
	require.NoError(t, err)
	assert.Equal(t, "synced", tr.SyncStatus)
	assert.Equal(t, "LC-9", tr.LegacyRef)
	assert.Equal(t, []string{"Agriculture"}, tr.Categories)

	am, err := c.Amend(ctx, "GR-20250314-4F7K2Q", "The canal is still broken.")
	require.NoError(t, err)
	assert.Equal(t, int64(1), am.ID)
	assert.Equal(t, "The canal is still broken.", am.Note)
}

func TestResult_Submitted(t *testing.T) {
	done := &Result{Stage: "done", Payload: json.RawMessage(`{"grievance_id":"GR-20250314-4F7K2Q","categories":["Agriculture"]}`)}
	id, cats, ok := done.Submitted()
	require.True(t, ok)
	assert.Equal(t, "GR-20250314-4F7K2Q", id)
	assert.Equal(t, []string{"Agriculture"}, cats)

	_, _, ok = (&Result{Stage: "details"}).Submitted()
	assert.False(t, ok)

	var nilResult *Result
	_, _, ok = nilResult.Submitted()
	assert.False(t, ok)
}
