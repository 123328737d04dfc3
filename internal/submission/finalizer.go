// Package submission turns a verified draft into a stored grievance record.
package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
	"github.com/fyrsmithlabs/grievanced/internal/legacysync"
	"github.com/fyrsmithlabs/grievanced/internal/store"
	"github.com/fyrsmithlabs/grievanced/internal/tasks"
)

const instrumentationName = "github.com/fyrsmithlabs/grievanced/internal/submission"

// ErrIDSpaceExhausted indicates every generated identifier collided.
var ErrIDSpaceExhausted = errors.New("could not allocate a unique grievance identifier")

// IDSource generates candidate grievance identifiers.
type IDSource interface {
	Next() (grievance.ID, error)
}

// Config configures the finalizer.
type Config struct {
	// MaxAttempts bounds identifier generation on duplicate keys (default: 5).
	MaxAttempts int

	// PublishAttempts bounds publish tries per hand-off (default: 5).
	PublishAttempts int

	// PublishBackoff is the wait after the first failed publish; it doubles
	// up to PublishMaxBackoff (defaults: 1s, 30s).
	PublishBackoff    time.Duration
	PublishMaxBackoff time.Duration
}

// Finalizer freezes drafts, stores them and hands them to sync.
type Finalizer struct {
	cfg       Config
	ids       IDSource
	store     store.Store
	publisher legacysync.Publisher
	queue     *tasks.Queue
	logger    *zap.Logger
	now       func() time.Time
	inflight  sync.Map // grievance.ID -> struct{}

	tracer          trace.Tracer
	submitCounter   metric.Int64Counter
	collisionCount  metric.Int64Counter
	publishFailures metric.Int64Counter
}

// Option configures a Finalizer.
type Option func(*Finalizer)

// WithClock overrides the submission timestamp source.
func WithClock(now func() time.Time) Option {
	return func(f *Finalizer) { f.now = now }
}

// WithPublisher hands stored records to pub through q. Without it records
// stay in sync status pending.
func WithPublisher(pub legacysync.Publisher, q *tasks.Queue) Option {
	return func(f *Finalizer) {
		f.publisher = pub
		f.queue = q
	}
}

// New creates a finalizer.
func New(cfg Config, ids IDSource, st store.Store, logger *zap.Logger, opts ...Option) (*Finalizer, error) {
	if ids == nil {
		return nil, errors.New("identifier source is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.PublishAttempts <= 0 {
		cfg.PublishAttempts = 5
	}
	if cfg.PublishBackoff <= 0 {
		cfg.PublishBackoff = time.Second
	}
	if cfg.PublishMaxBackoff < cfg.PublishBackoff {
		cfg.PublishMaxBackoff = max(30*time.Second, cfg.PublishBackoff)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Finalizer{
		cfg:    cfg,
		ids:    ids,
		store:  st,
		logger: logger,
		now:    time.Now,
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.publisher != nil && f.queue == nil {
		return nil, errors.New("publisher requires a task queue")
	}
	f.initMetrics()
	return f, nil
}

func (f *Finalizer) initMetrics() {
	meter := otel.Meter(instrumentationName)
	var err error

	f.submitCounter, err = meter.Int64Counter(
		"grievanced.submission.submissions_total",
		metric.WithDescription("Total number of grievances submitted"),
		metric.WithUnit("{grievance}"),
	)
	if err != nil {
		f.logger.Warn("failed to create submission counter", zap.Error(err))
	}

	f.collisionCount, err = meter.Int64Counter(
		"grievanced.submission.id_collisions_total",
		metric.WithDescription("Generated identifiers rejected as duplicates"),
	)
	if err != nil {
		f.logger.Warn("failed to create collision counter", zap.Error(err))
	}

	f.publishFailures, err = meter.Int64Counter(
		"grievanced.submission.publish_failures_total",
		metric.WithDescription("Records the sync layer could not accept"),
	)
	if err != nil {
		f.logger.Warn("failed to create publish failure counter", zap.Error(err))
	}
}

// Submit stores draft as an immutable record and returns its identifier.
// A *grievance.ValidationError means the draft is not submittable. The
// draft is marked submitted only after the record is stored.
func (f *Finalizer) Submit(ctx context.Context, draft *grievance.Draft) (grievance.ID, error) {
	ctx, span := f.tracer.Start(ctx, "submission.submit")
	defer span.End()
	span.SetAttributes(attribute.String("draft_id", draft.ID))

	if err := draft.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var rec *grievance.Record
	for attempt := 1; ; attempt++ {
		if attempt > f.cfg.MaxAttempts {
			span.SetStatus(codes.Error, ErrIDSpaceExhausted.Error())
			return "", fmt.Errorf("%w after %d attempts", ErrIDSpaceExhausted, f.cfg.MaxAttempts)
		}

		id, err := f.ids.Next()
		if err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("generate identifier: %w", err)
		}
		rec, err = draft.Freeze(id, f.now())
		if err != nil {
			span.RecordError(err)
			return "", err
		}

		err = f.store.Create(ctx, rec)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrDuplicateID) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("store grievance: %w", err)
		}
		if f.collisionCount != nil {
			f.collisionCount.Add(ctx, 1)
		}
		f.logger.Debug("identifier collision, retrying",
			zap.String("grievance_id", string(id)),
			zap.Int("attempt", attempt),
		)
	}

	draft.MarkSubmitted()
	span.SetAttributes(attribute.String("grievance_id", string(rec.ID)))
	if f.submitCounter != nil {
		f.submitCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("phone_verified", rec.PhoneVerified),
		))
	}
	f.logger.Info("grievance submitted",
		zap.String("grievance_id", string(rec.ID)),
		zap.Int("categories", len(rec.Categories)),
	)

	f.publish(rec)
	return rec.ID, nil
}
