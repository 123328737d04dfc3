package classifier

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/grievanced/internal/tasks"
)

// Outcome is a dispatched classification. Degraded is set when the
// classifier failed or timed out; Result is then empty.
type Outcome struct {
	DraftID  string
	Result   Result
	Degraded bool
	Err      error
}

// Dispatcher runs a Classifier on the task queue with a bounded wait.
type Dispatcher struct {
	classifier Classifier
	queue      *tasks.Queue
	timeout    time.Duration
	logger     *zap.Logger
	onDegraded func(reason string)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// OnDegraded registers a hook called with "timeout" or "error" whenever a
// classification degrades.
func OnDegraded(fn func(reason string)) DispatcherOption {
	return func(d *Dispatcher) { d.onDegraded = fn }
}

// NewDispatcher creates a Dispatcher waiting at most timeout per call.
func NewDispatcher(c Classifier, q *tasks.Queue, timeout time.Duration, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{classifier: c, queue: q, timeout: timeout, logger: logger, onDegraded: func(string) {}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Classify never fails: errors and timeouts degrade to an empty Result.
// A result that arrives after the wait is discarded by the queue.
func (d *Dispatcher) Classify(ctx context.Context, draftID, text string) Outcome {
	res, err := tasks.Run(ctx, d.queue, d.timeout, func(ctx context.Context) (Result, error) {
		return d.classifier.Classify(ctx, text)
	})
	if err == nil {
		return Outcome{DraftID: draftID, Result: res}
	}

	reason := "error"
	if errors.Is(err, tasks.ErrTimeout) {
		reason = "timeout"
	}
	d.onDegraded(reason)
	d.logger.Warn("classification degraded",
		zap.String("draft_id", draftID),
		zap.String("reason", reason),
		zap.Error(err),
	)
	return Outcome{
		DraftID:  draftID,
		Result:   Result{Categories: nil, Summary: ""},
		Degraded: true,
		Err:      err,
	}
}

// Accept reports whether o still belongs to the draft currently being
// edited. Outcomes for a restarted draft are dropped.
func (o Outcome) Accept(currentDraftID string) bool {
	return o.DraftID == currentDraftID
}
