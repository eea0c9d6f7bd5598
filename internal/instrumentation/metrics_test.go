package instrumentation

import (
	"context"
	"testing"
	"time"
)

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/Calendar", 200, 100*time.Millisecond)
	metrics.RecordHTTPRequest(ctx, "POST", "/Calendar", 500, 50*time.Millisecond)
}

func TestMetrics_RecordGraphOperation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	metrics := provider.Metrics()

	// Should not panic
	metrics.RecordGraphOperation(ctx, OperationGetMailboxSettings, StatusSuccess, 200*time.Millisecond)
	metrics.RecordGraphOperation(ctx, OperationListCalendarView, StatusSuccess, 100*time.Millisecond)
	metrics.RecordGraphOperation(ctx, OperationCreateEvent, StatusError, 500*time.Millisecond)
}

func TestMetrics_RecordAuthResult(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	metrics := provider.Metrics()

	// Should not panic
	metrics.RecordAuthResult(ctx, AuthResultAllowed)
	metrics.RecordAuthResult(ctx, AuthResultUnauthorized)
	metrics.RecordAuthResult(ctx, AuthResultForbidden)
}

func TestMetrics_RecordCalendarRequest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	metrics := provider.Metrics()

	// Should not panic
	metrics.RecordCalendarRequest(ctx, "calendar.list", StatusSuccess, 100*time.Millisecond)
	metrics.RecordCalendarRequest(ctx, "calendar.create", StatusError, 500*time.Millisecond)
}

func TestMetrics_RecordCalendarRequestWithDomain(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Test without detailed labels
	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
		DetailedLabels:  false,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	metrics := provider.Metrics()

	// Should not panic - domain should be ignored
	metrics.RecordCalendarRequestWithDomain(ctx, "calendar.list", StatusSuccess, "user@example.com", 100*time.Millisecond)
}

func TestMetrics_RecordCalendarRequestWithDomain_DetailedLabels(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Test with detailed labels
	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
		DetailedLabels:  true,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	metrics := provider.Metrics()

	// Should not panic - domain should be included
	metrics.RecordCalendarRequestWithDomain(ctx, "calendar.list", StatusSuccess, "user@example.com", 100*time.Millisecond)
}

func TestMetrics_NoOp_WhenDisabled(t *testing.T) {
	ctx := context.Background()

	provider, err := NewProvider(ctx, Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        false,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil even when disabled")
	}

	// All these should not panic even with nil underlying metrics
	metrics.RecordHTTPRequest(ctx, "GET", "/Calendar", 200, 100*time.Millisecond)
	metrics.RecordGraphOperation(ctx, OperationListCalendarView, StatusSuccess, 200*time.Millisecond)
	metrics.RecordAuthResult(ctx, AuthResultAllowed)
	metrics.RecordCalendarRequest(ctx, "calendar.list", StatusSuccess, 100*time.Millisecond)
	metrics.RecordCalendarRequestWithDomain(ctx, "calendar.list", StatusSuccess, "user@example.com", 100*time.Millisecond)
}
