package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/grievanced/internal/category"
	"github.com/fyrsmithlabs/grievanced/internal/grievance"
	"github.com/fyrsmithlabs/grievanced/internal/otp"
)

func sampleSession() *Session {
	s := New(time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC))
	s.Stage = "otp"
	s.History = []string{"details", "categories", "summary", "location", "contact"}
	s.Draft.AppendDetails("Our paddy harvest was lost")
	s.Draft.Categories = []grievance.CategoryTag{"Agriculture"}
	s.Draft.Contact.Phone = grievance.Provided("+9779812345678")
	s.Category = &category.EditSession{Mode: category.ModeIdle}
	s.OTP = &otp.Session{Channel: "+9779812345678", Code: "123456", Status: otp.StatusPending, ResendCount: 1}
	return s
}

func runStoreSuite(t *testing.T, st Store) {
	ctx := context.Background()
	s := sampleSession()

	_, err := st.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Put(ctx, s))
	got, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Stage, got.Stage)
	assert.Equal(t, s.History, got.History)
	assert.Equal(t, s.Draft.ID, got.Draft.ID)
	assert.Equal(t, s.Draft.Contact.Phone, got.Draft.Contact.Phone)
	assert.Equal(t, 1, got.OTP.ResendCount)

	// Mutating the returned copy does not leak into the store.
	got.Stage = "submit"
	again, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "otp", again.Stage)

	require.NoError(t, st.Delete(ctx, s.ID))
	_, err = st.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore(time.Hour))
}

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	m := NewMemoryStore(time.Minute)
	m.now = func() time.Time { return now }

	s := sampleSession()
	require.NoError(t, m.Put(context.Background(), s))

	now = now.Add(2 * time.Minute)
	_, err := m.Get(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, m.Sweep())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	runStoreSuite(t, NewRedisStore(client, time.Minute))
}
