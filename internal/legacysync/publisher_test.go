package legacysync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/grievanced/internal/config"
	"github.com/fyrsmithlabs/grievanced/internal/grievance"
)

func sampleRecord() grievance.Record {
	return grievance.Record{
		ID:         "GR-20250314-7K3QX9",
		DraftID:    "d-1",
		Details:    "Our paddy harvest was lost",
		Categories: []grievance.CategoryTag{"Agriculture"},
		Summary:    "Harvest lost",
		Location: grievance.Location{
			Consent:      grievance.ConsentGranted,
			Municipality: grievance.Provided("Bharatpur Metropolitan City"),
			Village:      grievance.Skipped(grievance.ReasonUserSkipped),
			Address:      grievance.Provided("Ward 4"),
		},
		Contact: grievance.Contact{
			Consent:  grievance.ConsentGranted,
			FullName: grievance.Provided("Sita Sharma"),
			Phone:    grievance.Provided("+9779812345678"),
		},
		PhoneVerified: true,
		Status:        grievance.StatusSubmitted,
		SubmittedAt:   time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC),
	}
}

// startTestNATSServer starts an embedded JetStream server.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func TestNATSPublisher_PublishesOnceForRetries(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	p, err := NewNATSPublisher(nc, "GRIEVANCES", "grievances.submitted", nil)
	require.NoError(t, err)

	rec := sampleRecord()
	require.NoError(t, p.Publish(context.Background(), &rec))
	require.NoError(t, p.Publish(context.Background(), &rec))

	js, err := nc.JetStream()
	require.NoError(t, err)
	info, err := js.StreamInfo("GRIEVANCES")
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.State.Msgs)

	msg, err := js.GetLastMsg("GRIEVANCES", p.Subject(rec.ID))
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, "grievance.submitted", ev.Type)
	assert.Equal(t, rec.ID, ev.Record.ID)

	// A second publisher binds to the existing stream.
	_, err = NewNATSPublisher(nc, "GRIEVANCES", "grievances.submitted", nil)
	require.NoError(t, err)
}

type recordingPublisher struct {
	got []grievance.ID
	err error
}

func (r *recordingPublisher) Publish(ctx context.Context, rec *grievance.Record) error {
	r.got = append(r.got, rec.ID)
	return r.err
}

func TestMulti(t *testing.T) {
	rec := sampleRecord()
	a, b := &recordingPublisher{err: errors.New("nats down")}, &recordingPublisher{}

	err := Multi{a, b}.Publish(context.Background(), &rec)
	assert.Error(t, err)
	assert.Len(t, b.got, 1, "later publishers still run")

	assert.ErrorIs(t, Multi{}.Publish(context.Background(), &rec), ErrNoPublisher)
}

func TestLegacyClient_PushWithClientCredentials(t *testing.T) {
	var gotAuth, gotKey string
	var gotCase legacyCase
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/cases", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotCase)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"reference":"LEG-1001"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewLegacyClient(context.Background(), config.LegacyConfig{
		BaseURL:      srv.URL + "/",
		TokenURL:     srv.URL + "/token",
		ClientID:     "grievanced",
		ClientSecret: config.Secret("s3cret"),
	})
	require.NoError(t, err)

	rec := sampleRecord()
	ref, err := c.Push(context.Background(), &rec)
	require.NoError(t, err)

	assert.Equal(t, "LEG-1001", ref)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, string(rec.ID), gotKey)
	assert.Equal(t, "Ward 4, Bharatpur Metropolitan City", gotCase.Location)
	assert.Equal(t, "+9779812345678", gotCase.Phone)
	assert.Equal(t, []string{"Agriculture"}, gotCase.Categories)
}

func TestLegacyClient_StatusMapping(t *testing.T) {
	status := http.StatusUnprocessableEntity
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c, err := NewLegacyClient(context.Background(), config.LegacyConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	rec := sampleRecord()

	_, err = c.Push(context.Background(), &rec)
	assert.ErrorIs(t, err, ErrLegacyRejected)

	status = http.StatusServiceUnavailable
	_, err = c.Push(context.Background(), &rec)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLegacyRejected)
}
