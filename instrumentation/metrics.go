package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the gateway
type Metrics struct {
	// Fact-pod flow metrics
	EnableStarted     metric.Int64Counter
	CallbackProcessed metric.Int64Counter
	CodeExchanged     metric.Int64Counter
	FactPodDisabled   metric.Int64Counter
	ClientRegistered  metric.Int64Counter
	StateConflicts    metric.Int64Counter

	// Security metrics
	RateLimitExceeded metric.Int64Counter
	AuditEventsTotal  metric.Int64Counter

	// Storage metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	StorageSizeStates        metric.Int64ObservableGauge
	StorageSizeClientConfigs metric.Int64ObservableGauge
	StorageSizeFactPods      metric.Int64ObservableGauge

	// Provider metrics
	ProviderAPICallsTotal metric.Int64Counter
	ProviderAPIDuration   metric.Float64Histogram
	ProviderAPIErrors     metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	serviceMeter := inst.Meter("service")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")
	providerMeter := inst.Meter("provider")

	var err error
	m.EnableStarted, err = serviceMeter.Int64Counter(
		"factpod.enable.started",
		metric.WithDescription("Number of fact pod enablement flows started"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create enable.started counter: %w", err)
	}

	m.CallbackProcessed, err = serviceMeter.Int64Counter(
		"factpod.callback.processed",
		metric.WithDescription("Number of provider callbacks processed"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callback.processed counter: %w", err)
	}

	m.CodeExchanged, err = serviceMeter.Int64Counter(
		"factpod.code.exchanged",
		metric.WithDescription("Number of authorization codes exchanged for tokens"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code.exchanged counter: %w", err)
	}

	m.FactPodDisabled, err = serviceMeter.Int64Counter(
		"factpod.disabled",
		metric.WithDescription("Number of fact pods disabled"),
		metric.WithUnit("{pod}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create factpod.disabled counter: %w", err)
	}

	m.ClientRegistered, err = serviceMeter.Int64Counter(
		"factpod.client.registered",
		metric.WithDescription("Number of OAuth clients dynamically registered"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client.registered counter: %w", err)
	}

	m.StateConflicts, err = serviceMeter.Int64Counter(
		"factpod.state.conflicts",
		metric.WithDescription("Number of authorization state insert conflicts"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create state.conflicts counter: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"factpod.rate_limit.exceeded",
		metric.WithDescription("Number of rate limit violations"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.AuditEventsTotal, err = securityMeter.Int64Counter(
		"factpod.audit.events.total",
		metric.WithDescription("Total number of audit events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"storage.operation.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.StorageSizeStates, err = storageMeter.Int64ObservableGauge(
		"storage.size.auth_states",
		metric.WithDescription("Current number of pending authorization states"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.size.auth_states gauge: %w", err)
	}

	m.StorageSizeClientConfigs, err = storageMeter.Int64ObservableGauge(
		"storage.size.client_configs",
		metric.WithDescription("Current number of stored client configs"),
		metric.WithUnit("{config}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.size.client_configs gauge: %w", err)
	}

	m.StorageSizeFactPods, err = storageMeter.Int64ObservableGauge(
		"storage.size.fact_pods",
		metric.WithDescription("Current number of fact pod configs"),
		metric.WithUnit("{pod}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.size.fact_pods gauge: %w", err)
	}

	m.ProviderAPICallsTotal, err = providerMeter.Int64Counter(
		"provider.api.calls.total",
		metric.WithDescription("Total number of provider API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.calls.total counter: %w", err)
	}

	m.ProviderAPIDuration, err = providerMeter.Float64Histogram(
		"provider.api.duration",
		metric.WithDescription("Provider API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.duration histogram: %w", err)
	}

	m.ProviderAPIErrors, err = providerMeter.Int64Counter(
		"provider.api.errors.total",
		metric.WithDescription("Total number of provider API errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.errors.total counter: %w", err)
	}

	return m, nil
}

// Helper methods for common metric recording patterns

// RecordEnableStarted records the start of an enablement flow
func (m *Metrics) RecordEnableStarted(ctx context.Context, site string, registered bool) {
	m.EnableStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("site", site),
		attribute.Bool("registered", registered),
	))
}

// RecordCallbackProcessed records a provider callback processing
func (m *Metrics) RecordCallbackProcessed(ctx context.Context, site string, success bool) {
	m.CallbackProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("site", site),
		attribute.Bool("success", success),
	))
}

// RecordCodeExchange records an authorization code exchange
func (m *Metrics) RecordCodeExchange(ctx context.Context, site string) {
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("site", site),
	))
}

// RecordFactPodDisabled records a fact pod being disabled
func (m *Metrics) RecordFactPodDisabled(ctx context.Context, site string) {
	m.FactPodDisabled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("site", site),
	))
}

// RecordClientRegistration records a dynamic client registration
func (m *Metrics) RecordClientRegistration(ctx context.Context, site string) {
	m.ClientRegistered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("site", site),
	))
}

// RecordStateConflict records an authorization state insert conflict
func (m *Metrics) RecordStateConflict(ctx context.Context) {
	m.StateConflicts.Add(ctx, 1)
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, limiterType string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("limiter_type", limiterType),
	))
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("result", result),
	}

	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordProviderAPICall records a provider API call
func (m *Metrics) RecordProviderAPICall(ctx context.Context, site, operation string, statusCode int, durationMs float64, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("site", site),
		attribute.String("operation", operation),
		attribute.Int("status", statusCode),
	}

	m.ProviderAPICallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.ProviderAPIDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("site", site),
		attribute.String("operation", operation),
	))

	if err != nil {
		errorType := "unknown"
		if statusCode >= 400 && statusCode < 500 {
			errorType = "client_error"
		} else if statusCode >= 500 {
			errorType = "server_error"
		}

		m.ProviderAPIErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("site", site),
			attribute.String("operation", operation),
			attribute.String("error_type", errorType),
		))
	}
}
