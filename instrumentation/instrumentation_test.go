package instrumentation

import (
	"context"
	"testing"
)

func TestNew_Defaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if inst.config.ServiceName != DefaultServiceName {
		t.Errorf("expected default service name %q, got %q", DefaultServiceName, inst.config.ServiceName)
	}
	if inst.config.ServiceVersion != DefaultServiceVersion {
		t.Errorf("expected default service version %q, got %q", DefaultServiceVersion, inst.config.ServiceVersion)
	}
	if inst.Metrics() == nil {
		t.Error("metrics holder should be initialized")
	}
	if inst.Meter("storage") == nil {
		t.Error("meter should never be nil")
	}
	if inst.Tracer("service") == nil {
		t.Error("tracer should never be nil")
	}
}

func TestDisabled_RecordingIsSafe(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	m := inst.Metrics()

	// All recording paths must be no-ops, not panics, when disabled.
	m.RecordEnableStarted(ctx, "pod.example", true)
	m.RecordCallbackProcessed(ctx, "pod.example", false)
	m.RecordCodeExchange(ctx, "pod.example")
	m.RecordStateConflict(ctx)
	m.RecordStorageOperation(ctx, "put_auth_state", "success", 1.5)
	m.RecordProviderAPICall(ctx, "pod.example", "discovery", 502, 20, context.DeadlineExceeded)

	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestRegisterStorageSizeCallbacks(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = inst.RegisterStorageSizeCallbacks(
		func() int64 { return 1 },
		func() int64 { return 2 },
		func() int64 { return 3 },
	)
	if err != nil {
		t.Errorf("RegisterStorageSizeCallbacks failed: %v", err)
	}
}

func TestTracingHelpers_NilSafe(t *testing.T) {
	// Every helper must tolerate a nil span.
	RecordError(nil, context.Canceled)
	SetSpanSuccess(nil)
	SetSpanError(nil, "boom")
	AddFlowAttributes(nil, "user-1", "pod.example")
	AddStorageAttributes(nil, "get", "memory")
	AddProviderAttributes(nil, "pod.example", "registration")
}
