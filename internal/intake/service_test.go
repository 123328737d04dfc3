package intake

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/grievanced/internal/session"
	"github.com/fyrsmithlabs/grievanced/internal/telemetry"
)

func newTestService(t *testing.T) (*Service, *session.MemoryStore) {
	t.Helper()
	h := newHarness(t, Config{}, nil)
	sessions := session.NewMemoryStore(time.Hour)
	svc, err := NewService(h.orch, sessions, nil)
	require.NoError(t, err)
	return svc, sessions
}

func TestService_StartAndTurn(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, res, err := svc.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, StageDetails, res.Stage)

	_, err = svc.HandleTurn(ctx, sess.ID, Turn{Text: lostHarvest})
	require.NoError(t, err)
	res, err = svc.HandleTurn(ctx, sess.ID, Turn{Text: "done"})
	require.NoError(t, err)
	assert.Equal(t, StageCategories, res.Stage)

	cur, err := svc.Current(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StageCategories, cur.Stage)
}

func TestService_TurnSpans(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	restore := tt.Install()
	defer restore()

	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, _, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.HandleTurn(ctx, sess.ID, Turn{Text: lostHarvest})
	require.NoError(t, err)

	tt.AssertSpanAttribute(t, "intake.start", "session_id", sess.ID)
	tt.AssertSpanAttribute(t, "intake.turn", "session_id", sess.ID)
	tt.AssertSpanAttribute(t, "intake.turn", "stage", string(StageDetails))
	tt.AssertSpanAttribute(t, "intake.turn", "next_stage", string(StageDetails))
}

func TestService_SameSessionTurnsAreSerialized(t *testing.T) {
	svc, sessions := newTestService(t)
	ctx := context.Background()

	sess, _, err := svc.Start(ctx)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.HandleTurn(ctx, sess.ID, Turn{Text: fmt.Sprintf("part %d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, strings.Split(got.Draft.Details, "\n"), n, "no turn may be lost")
	assert.Empty(t, svc.locks.locks)
}

func TestService_UnknownSession(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.HandleTurn(context.Background(), "missing", Turn{Text: "hello"})
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestService_End(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, _, err := svc.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.End(ctx, sess.ID))

	_, err = svc.HandleTurn(ctx, sess.ID, Turn{Text: "hello"})
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.ErrorIs(t, svc.End(ctx, sess.ID), session.ErrNotFound)
}

func TestService_EndedSessionRejectsTurns(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, _, err := svc.Start(ctx)
	require.NoError(t, err)
	res, err := svc.HandleTurn(ctx, sess.ID, Turn{Text: "exit"})
	require.NoError(t, err)
	assert.Equal(t, StageExited, res.Stage)

	_, err = svc.HandleTurn(ctx, sess.ID, Turn{Text: "done"})
	assert.ErrorIs(t, err, session.ErrEnded)

	// Ending an already-ended session still removes it.
	require.NoError(t, svc.End(ctx, sess.ID))
}

func TestNewService_RequiresDeps(t *testing.T) {
	_, err := NewService(nil, session.NewMemoryStore(time.Minute), nil)
	assert.Error(t, err)
}
