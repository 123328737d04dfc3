package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/grievanced/internal/logging"
	"github.com/fyrsmithlabs/grievanced/internal/session"
)

const instrumentationName = "github.com/fyrsmithlabs/grievanced/internal/intake"

// Service runs turns against stored sessions. Turns for one session are
// serialized; different sessions proceed in parallel.
type Service struct {
	orch   *Orchestrator
	store  session.Store
	locks  *keyedMutex
	logger *zap.Logger
	tracer trace.Tracer
}

// NewService creates a service over store.
func NewService(orch *Orchestrator, store session.Store, logger *zap.Logger) (*Service, error) {
	if orch == nil {
		return nil, errors.New("orchestrator is required")
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		orch:   orch,
		store:  store,
		locks:  newKeyedMutex(),
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
	}, nil
}

// Start opens a session and returns its first prompt.
func (s *Service) Start(ctx context.Context) (*session.Session, *StageResult, error) {
	ctx, span := s.tracer.Start(ctx, "intake.start")
	defer span.End()

	sess, res := s.orch.NewSession()
	span.SetAttributes(attribute.String("session_id", sess.ID))
	if err := s.store.Put(ctx, sess); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("store session: %w", err)
	}
	s.logger.Info("intake session started", zap.String("session_id", sess.ID))
	return sess, res, nil
}

// HandleTurn applies one turn to the session id. The session is only
// written back when the turn succeeds.
func (s *Service) HandleTurn(ctx context.Context, id string, turn Turn) (*StageResult, error) {
	ctx = logging.WithSessionID(ctx, id)
	ctx, span := s.tracer.Start(ctx, "intake.turn")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", id))

	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	stage := sess.Stage
	span.SetAttributes(attribute.String("stage", stage))

	start := time.Now()
	res, err := s.orch.Advance(ctx, sess, turn)
	TurnDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, session.ErrEnded) {
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error("turn failed",
				zap.String("session_id", id),
				zap.String("stage", stage),
				zap.Error(err),
			)
		}
		return nil, err
	}

	if err := s.store.Put(ctx, sess); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("store session: %w", err)
	}
	span.SetAttributes(attribute.String("next_stage", string(res.Stage)))
	return res, nil
}

// Current returns the prompt the session is waiting on.
func (s *Service) Current(ctx context.Context, id string) (*StageResult, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.orch.Current(sess), nil
}

// End abandons the session's draft and removes the session.
func (s *Service) End(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !sess.Ended {
		if _, err := s.orch.Advance(ctx, sess, Turn{Signal: SignalExit}); err != nil {
			return err
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
