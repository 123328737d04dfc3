// Package telemetry sets up OpenTelemetry tracing and metrics export for
// grievanced.
//
// Components create their tracers and meters through the global otel API
// (otel.Tracer, otel.Meter). New installs OTLP-backed providers as the
// globals when telemetry is enabled; otherwise the globals stay no-op.
//
//	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability, version), logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Telemetry failures never stop the daemon: a provider that cannot be built
// leaves the instance degraded and the affected signal no-op.
//
// Tests use TestTelemetry, which records spans and metrics in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "intake.turn")
//	span.End()
//	tt.AssertSpanExists(t, "intake.turn")
package telemetry
