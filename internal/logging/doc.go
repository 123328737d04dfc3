// Package logging provides structured logging for grievanced.
//
// It wraps Zap with:
//   - a Trace level (-2, below Debug)
//   - stdout and optional OpenTelemetry output through the otelzap bridge
//   - correlation fields pulled from context (trace_id, session.id,
//     grievance.id, request.id)
//   - redaction of credentials and citizen contact data in messages and
//     fields, including per-call fields
//   - level-aware sampling (errors never sampled)
//
// Usage:
//
//	cfg, err := logging.FromAppConfig(appCfg.Logging, "grievanced")
//	logger, err := logging.NewLogger(cfg, nil)
//	defer logger.Sync()
//
//	ctx = logging.WithSessionID(ctx, sess.ID)
//	logger.Info(ctx, "otp issued", logging.Phone("phone", phone))
//
// Most domain packages take a plain *zap.Logger; pass Underlying().
package logging
