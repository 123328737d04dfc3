package legacysync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
)

// NATSPublisher publishes submission events to a JetStream stream on
// <prefix>.<grievance id>.
type NATSPublisher struct {
	js     nats.JetStreamContext
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewNATSPublisher binds to stream, creating it over prefix.> if missing.
func NewNATSPublisher(nc *nats.Conn, stream, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	if _, err := js.StreamInfo(stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return nil, fmt.Errorf("stream info %s: %w", stream, err)
		}
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:       stream,
			Subjects:   []string{prefix + ".>"},
			Storage:    nats.FileStorage,
			Duplicates: 24 * time.Hour,
		}); err != nil {
			return nil, fmt.Errorf("create stream %s: %w", stream, err)
		}
		logger.Info("created jetstream stream", zap.String("stream", stream), zap.String("subjects", prefix+".>"))
	}

	return &NATSPublisher{js: js, prefix: prefix, logger: logger, now: time.Now}, nil
}

// Subject returns the subject a record is published on.
func (p *NATSPublisher) Subject(id grievance.ID) string {
	return p.prefix + "." + string(id)
}

// Publish implements Publisher. Republishing the same identifier inside
// the stream's duplicate window is acknowledged without a second message.
func (p *NATSPublisher) Publish(ctx context.Context, rec *grievance.Record) error {
	data, err := json.Marshal(Event{Type: eventSubmitted, Record: *rec, PublishedAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ack, err := p.js.Publish(p.Subject(rec.ID), data, nats.MsgId(string(rec.ID)), nats.Context(ctx))
	if err != nil {
		recordPublish("nats", err)
		return fmt.Errorf("publish %s: %w", rec.ID, err)
	}
	if ack.Duplicate {
		publishTotal.WithLabelValues("nats", "duplicate").Inc()
		p.logger.Debug("duplicate submission event ignored", zap.String("grievance_id", string(rec.ID)))
		return nil
	}
	recordPublish("nats", nil)
	p.logger.Debug("submission event published",
		zap.String("grievance_id", string(rec.ID)),
		zap.Uint64("seq", ack.Sequence),
	)
	return nil
}
