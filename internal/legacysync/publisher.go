// Package legacysync relays submitted grievances to the legacy
// case-management system.
//
// Delivery is at-least-once. Every sink deduplicates on the grievance
// identifier: JetStream through the message ID, Temporal through the
// workflow ID and the legacy API through an Idempotency-Key header.
package legacysync

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
)

// ErrNoPublisher indicates sync is not configured.
var ErrNoPublisher = errors.New("no sync publisher configured")

// Publisher hands a submitted record to a sync sink.
type Publisher interface {
	Publish(ctx context.Context, rec *grievance.Record) error
}

// Event is the payload published for a submission.
type Event struct {
	Type        string           `json:"type"`
	Record      grievance.Record `json:"record"`
	PublishedAt time.Time        `json:"published_at"`
}

const eventSubmitted = "grievance.submitted"

var publishTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "grievanced",
		Subsystem: "sync",
		Name:      "publish_total",
		Help:      "Submissions handed to sync sinks, by sink and result (success, error, duplicate).",
	},
	[]string{"sink", "result"},
)

func recordPublish(sink string, err error) {
	if err != nil {
		publishTotal.WithLabelValues(sink, "error").Inc()
		return
	}
	publishTotal.WithLabelValues(sink, "success").Inc()
}

// Multi fans a record out to several publishers. Every publisher is tried;
// the errors are joined.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, rec *grievance.Record) error {
	if len(m) == 0 {
		return ErrNoPublisher
	}
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
