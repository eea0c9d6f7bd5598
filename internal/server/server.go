package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/weekview/weekview/internal/instrumentation"
)

const (
	// DefaultAPIAddr is the default address for the API server.
	DefaultAPIAddr = ":8080"

	// DefaultAPIReadTimeout is the default read-header timeout for the API server.
	DefaultAPIReadTimeout = 10 * time.Second

	// DefaultAPIWriteTimeout is the default write timeout for the API server.
	DefaultAPIWriteTimeout = 30 * time.Second

	// DefaultAPIIdleTimeout is the default idle timeout for the API server.
	DefaultAPIIdleTimeout = 120 * time.Second
)

// APIServerConfig holds configuration for the API server.
type APIServerConfig struct {
	// Addr is the address to bind the API server to (e.g., ":8080").
	Addr string

	// Authenticator validates bearer credentials on calendar endpoints.
	Authenticator *Authenticator

	// Calendar serves the calendar endpoints.
	Calendar *CalendarHandler

	// Health serves liveness and readiness probes. Optional.
	Health *HealthChecker

	// Metrics records per-request HTTP metrics. Optional.
	Metrics *instrumentation.Metrics

	// Logger receives server lifecycle logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// APIServer serves the calendar API. Calendar endpoints sit behind scope
// authorization; health endpoints are open for Kubernetes probes.
type APIServer struct {
	httpServer *http.Server
	addr       string
	handler    http.Handler
	logger     *slog.Logger
}

// NewAPIServer creates a new API server with the given configuration.
func NewAPIServer(config APIServerConfig) (*APIServer, error) {
	if config.Addr == "" {
		config.Addr = DefaultAPIAddr
	}
	if config.Authenticator == nil {
		return nil, fmt.Errorf("authenticator is required for API server")
	}
	if config.Calendar == nil {
		return nil, fmt.Errorf("calendar handler is required for API server")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	requireScope := config.Authenticator.RequireScope(RequiredScope)
	mux.Handle("GET /Calendar", requireScope(http.HandlerFunc(config.Calendar.HandleList)))
	mux.Handle("POST /Calendar", requireScope(http.HandlerFunc(config.Calendar.HandleCreate)))

	if config.Health != nil {
		config.Health.RegisterHealthEndpoints(mux)
	}

	var handler http.Handler = mux
	if config.Metrics != nil {
		handler = httpMetricsMiddleware(config.Metrics)(handler)
	}

	return &APIServer{
		addr:    config.Addr,
		handler: handler,
		logger:  logger,
	}, nil
}

// Handler returns the server's root handler. Used by tests to drive the
// full middleware chain without binding a listener.
func (s *APIServer) Handler() http.Handler {
	return s.handler
}

// Start starts the API server in a blocking manner.
// Call this in a goroutine if you need non-blocking operation.
func (s *APIServer) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultAPIReadTimeout,
		WriteTimeout:      DefaultAPIWriteTimeout,
		IdleTimeout:       DefaultAPIIdleTimeout,
	}

	s.logger.Info("starting API server", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// StartWithReadySignal starts the API server and closes ready once the
// listener is bound.
func (s *APIServer) StartWithReadySignal(ready chan<- struct{}) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultAPIReadTimeout,
		WriteTimeout:      DefaultAPIWriteTimeout,
		IdleTimeout:       DefaultAPIIdleTimeout,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind API listener: %w", err)
	}

	s.logger.Info("starting API server", "addr", s.addr)
	close(ready)
	return s.httpServer.Serve(listener)
}

// Shutdown gracefully shuts down the API server.
func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		s.logger.Info("shutting down API server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the configured address for the API server.
func (s *APIServer) Addr() string {
	return s.addr
}

// statusRecorder captures the response status code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// httpMetricsMiddleware records method, path, status, and duration for every
// request.
func httpMetricsMiddleware(metrics *instrumentation.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, recorder.status, time.Since(start))
		})
	}
}
