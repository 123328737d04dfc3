package logging

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap/zapcore"
)

const instrumentationName = "github.com/fyrsmithlabs/grievanced/internal/logging"

// samplingCore hands each entry to the sampler configured for its level.
// Error and above, and levels with no configured rate, are never sampled.
type samplingCore struct {
	zapcore.Core
	samplers map[zapcore.Level]zapcore.Core
}

func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled || len(cfg.Levels) == 0 {
		return core
	}

	dropped, _ := otel.Meter(instrumentationName).Int64Counter(
		"grievanced.log.dropped",
		metric.WithDescription("Log entries dropped by sampling"),
	)
	hook := zapcore.SamplerHook(func(ent zapcore.Entry, dec zapcore.SamplingDecision) {
		if dropped != nil && dec&zapcore.LogDropped != 0 {
			dropped.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("level", ent.Level.String())))
		}
	})

	samplers := make(map[zapcore.Level]zapcore.Core, len(cfg.Levels))
	for lvl, rate := range cfg.Levels {
		if lvl >= zapcore.ErrorLevel {
			continue
		}
		samplers[lvl] = zapcore.NewSamplerWithOptions(core, cfg.Tick.Duration(), rate.Initial, rate.Thereafter, hook)
	}
	return &samplingCore{Core: core, samplers: samplers}
}

func (c *samplingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if s, ok := c.samplers[ent.Level]; ok {
		return s.Check(ent, ce)
	}
	return c.Core.Check(ent, ce)
}

// With keeps the samplers' counters shared with the parent, so children
// draw from the same budget.
func (c *samplingCore) With(fields []zapcore.Field) zapcore.Core {
	samplers := make(map[zapcore.Level]zapcore.Core, len(c.samplers))
	for lvl, s := range c.samplers {
		samplers[lvl] = s.With(fields)
	}
	return &samplingCore{Core: c.Core.With(fields), samplers: samplers}
}
