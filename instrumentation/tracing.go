package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys.
//
// Never put actual credential values (client secrets, authorization codes,
// access tokens, full state values) into span attributes. Traces outlive
// requests, replicate across monitoring infrastructure, and are readable by
// wider audiences than the service itself. Record metadata only: identifiers,
// result flags, durations.
const (
	// Flow attributes
	AttrSite        = "factpod.site"         // Pod site hostname (non-secret)
	AttrUserID      = "factpod.user_id"      // User identifier (non-secret)
	AttrClientID    = "factpod.client_id"    // OAuth client identifier (non-secret)
	AttrScope       = "factpod.scope"        // Requested scopes
	AttrStatePrefix = "factpod.state_prefix" // Truncated state value, never the full state
	AttrRegistered  = "factpod.registered"   // Whether a new client was registered (boolean)

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
	AttrStorageType      = "storage.type"

	// Provider attributes
	AttrProviderSite      = "provider.site"
	AttrProviderOperation = "provider.operation"
	AttrProviderStatus    = "provider.status"
	AttrProviderErrorType = "provider.error_type"

	// Security attributes
	AttrRateLimiterType = "security.rate_limiter.type"
	AttrAuditEventType  = "security.audit.event_type"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span without recording an error
// value (nil-safe)
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddFlowAttributes adds common enablement flow attributes to a span (nil-safe)
func AddFlowAttributes(span trace.Span, userID, site string) {
	if userID != "" {
		SetSpanAttributes(span, attribute.String(AttrUserID, userID))
	}
	if site != "" {
		SetSpanAttributes(span, attribute.String(AttrSite, site))
	}
}

// AddStorageAttributes adds storage operation attributes to a span (nil-safe)
func AddStorageAttributes(span trace.Span, operation, storageType string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, storageType),
	)
}

// AddProviderAttributes adds provider call attributes to a span (nil-safe)
func AddProviderAttributes(span trace.Span, site, operation string) {
	SetSpanAttributes(span,
		attribute.String(AttrProviderSite, site),
		attribute.String(AttrProviderOperation, operation),
	)
}
