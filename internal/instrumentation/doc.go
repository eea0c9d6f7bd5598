// Package instrumentation provides comprehensive OpenTelemetry instrumentation
// for the weekview calendar API.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, authorization checks, and Graph API calls
//   - Distributed tracing for request flows and API calls
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// The package exposes the following metric categories:
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Graph API Metrics:
//   - graph_api_operations_total: Counter of Graph API operations by operation and status
//   - graph_api_operation_duration_seconds: Histogram of Graph API operation durations
//
// Authorization Metrics:
//   - auth_requests_total: Counter of bearer credential authorization checks by result
//
// Calendar Endpoint Metrics:
//   - calendar_requests_total: Counter of calendar endpoint requests by endpoint and status
//   - calendar_request_duration_seconds: Histogram of calendar request durations
//
// # Tracing
//
// Distributed tracing spans are created for:
//   - HTTP request handling
//   - API endpoint requests (endpoint.<name>)
//   - Graph API calls (graph.<operation>)
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: weekview)
//
// # Example Usage
//
//	// Initialize instrumentation
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "weekview",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	// Get metrics recorder
//	recorder := provider.Metrics()
//
//	// Record an HTTP request
//	recorder.RecordHTTPRequest(ctx, "GET", "/Calendar", 200, time.Since(start))
//
//	// Record a Graph API operation
//	recorder.RecordGraphOperation(ctx, "listCalendarView", "success", time.Since(start))
package instrumentation
