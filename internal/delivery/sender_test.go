package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/grievanced/internal/config"
)

func TestWebhookSender_PostsCode(t *testing.T) {
	var got webhookMessage
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s, err := NewWebhookSender(config.DeliveryConfig{
		WebhookURL: srv.URL,
		Token:      config.Secret("gw-token"),
		Timeout:    time.Second,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.SendCode(context.Background(), "+9779812345678", "482913"))
	assert.Equal(t, "Bearer gw-token", auth)
	assert.Equal(t, "+9779812345678", got.Channel)
	assert.Equal(t, "482913", got.Code)
	assert.Contains(t, got.Message, "482913")
}

func TestWebhookSender_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, err := NewWebhookSender(config.DeliveryConfig{WebhookURL: srv.URL}, nil)
	require.NoError(t, err)

	err = s.SendCode(context.Background(), "+9779812345678", "000000")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestWebhookSender_RequiresURL(t *testing.T) {
	_, err := NewWebhookSender(config.DeliveryConfig{}, nil)
	assert.Error(t, err)
}

func TestLogSender_MasksChannel(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender(zap.New(core))

	require.NoError(t, s.SendCode(context.Background(), "+9779812345678", "123456"))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "***********78", fields["channel"])
	assert.Equal(t, "123456", fields["dev_otp"])
}

func TestNew_SelectsProvider(t *testing.T) {
	s, err := New(config.DeliveryConfig{Provider: "log"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)

	_, err = New(config.DeliveryConfig{Provider: "pigeon"}, nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
