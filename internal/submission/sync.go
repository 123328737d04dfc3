package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
)

// ErrNoPublisher indicates Republish was called on a finalizer without a
// sync publisher.
var ErrNoPublisher = errors.New("no sync publisher configured")

// publish hands rec to the sync layer in the background. Failures never
// undo the submission. A record already being handed off is skipped; a
// record whose retries run out stays pending for the next sweep.
func (f *Finalizer) publish(rec *grievance.Record) bool {
	if f.publisher == nil {
		return false
	}
	if _, busy := f.inflight.LoadOrStore(rec.ID, struct{}{}); busy {
		return false
	}
	err := f.queue.Submit("publish "+string(rec.ID), func(ctx context.Context) error {
		defer f.inflight.Delete(rec.ID)
		if err := f.publishWithRetry(ctx, rec); err != nil {
			return err
		}
		return f.markPublished(ctx, rec.ID)
	})
	if err != nil {
		f.inflight.Delete(rec.ID)
		f.logger.Warn("publish not scheduled",
			zap.String("grievance_id", string(rec.ID)),
			zap.Error(err),
		)
		return false
	}
	return true
}

// publishWithRetry calls the publisher up to PublishAttempts times with
// capped exponential backoff. Republishing is safe: NATS dedupes on the
// message ID and Temporal on the workflow ID.
func (f *Finalizer) publishWithRetry(ctx context.Context, rec *grievance.Record) error {
	backoff := f.cfg.PublishBackoff
	var lastErr error
	for attempt := 1; attempt <= f.cfg.PublishAttempts; attempt++ {
		lastErr = f.publisher.Publish(ctx, rec)
		if lastErr == nil {
			if attempt > 1 {
				f.logger.Info("publish recovered after retries",
					zap.String("grievance_id", string(rec.ID)),
					zap.Int("attempts", attempt),
				)
			}
			return nil
		}
		if f.publishFailures != nil {
			f.publishFailures.Add(ctx, 1)
		}
		if attempt == f.cfg.PublishAttempts {
			break
		}
		f.logger.Debug("publish failed, retrying",
			zap.String("grievance_id", string(rec.ID)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("publish %s: %w", rec.ID, ctx.Err())
		case <-timer.C:
		}
		backoff = min(backoff*2, f.cfg.PublishMaxBackoff)
	}
	return fmt.Errorf("publish %s after %d attempts: %w", rec.ID, f.cfg.PublishAttempts, lastErr)
}

// markPublished moves pending records to published. Records the sync
// workflow already settled keep their status.
func (f *Finalizer) markPublished(ctx context.Context, id grievance.ID) error {
	t, err := f.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if t.SyncStatus != grievance.SyncPending {
		return nil
	}
	return f.store.UpdateSyncStatus(ctx, id, grievance.SyncPublished, "")
}

// Republish schedules a hand-off for up to limit records still pending
// and returns how many were scheduled. Records already in flight are
// skipped.
func (f *Finalizer) Republish(ctx context.Context, limit int) (int, error) {
	if f.publisher == nil {
		return 0, ErrNoPublisher
	}
	pending, err := f.store.ListBySyncStatus(ctx, grievance.SyncPending, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending records: %w", err)
	}
	n := 0
	for _, rec := range pending {
		if f.publish(rec) {
			n++
		}
	}
	return n, nil
}

// Sweep republishes pending records once immediately and then every
// interval until ctx is done. It covers records whose hand-off failed
// before a restart or ran out of retries.
func (f *Finalizer) Sweep(ctx context.Context, interval time.Duration, batch int) {
	if f.publisher == nil {
		return
	}
	sweep := func() {
		n, err := f.Republish(ctx, batch)
		switch {
		case err != nil && ctx.Err() == nil:
			f.logger.Warn("sync sweep failed", zap.Error(err))
		case n > 0:
			f.logger.Info("republishing pending records", zap.Int("count", n))
		}
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
