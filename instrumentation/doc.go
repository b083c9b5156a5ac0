// Package instrumentation provides OpenTelemetry metrics and tracing for the
// fact-pod gateway.
//
// The package is built around a single Instrumentation value created with New.
// When Config.Enabled is false (the default zero value), no-op providers are
// installed and every recording call becomes free, so callers never need to
// guard metric or span recording with their own flags.
//
// Meters and tracers are scoped per layer ("service", "storage", "provider",
// "security") so exported telemetry can be filtered by component. The Metrics
// holder exposes pre-registered instruments together with Record* helpers for
// the common patterns; tracing helpers in this package are nil-safe and can be
// called with spans from a disabled tracer.
package instrumentation
