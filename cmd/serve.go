package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weekview/weekview/internal/graph"
	"github.com/weekview/weekview/internal/instrumentation"
	"github.com/weekview/weekview/internal/logging"
	"github.com/weekview/weekview/internal/server"
)

// ServeConfig holds the settings for the serve command.
type ServeConfig struct {
	// Addr is the address for the API server (e.g., ":8080")
	Addr string

	// JWKSURL is the identity platform's signing-key endpoint.
	// Required; tokens cannot be verified without it.
	JWKSURL string

	// Issuer, when set, is the required iss claim of bearer tokens.
	Issuer string

	// Audience, when set, is the required aud claim of bearer tokens.
	Audience string

	// GraphBaseURL overrides the Microsoft Graph endpoint. Empty means the
	// public v1.0 endpoint. Useful for sovereign clouds and testing.
	GraphBaseURL string

	// Metrics configures the dedicated metrics server.
	Metrics MetricsConfig

	// Debug enables debug logging.
	Debug bool
}

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

func newServeCmd() *cobra.Command {
	var config ServeConfig

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the calendar API server",
		Long: `Start the HTTP server that exposes the calendar API.

Endpoints:
  GET  /Calendar   List the caller's events for the current week
  POST /Calendar   Create an event on the caller's calendar

Every request must carry a bearer credential with the Calendars.ReadWrite
scope. Tokens are verified against the JWKS endpoint before any remote
call is made.

Configuration:
  Token verification (required):
    --jwks-url OR JWKS_URL env var
    Optionally pin --token-issuer / --token-audience

  Metrics:
    Served on a dedicated port (default :9090) so operational data stays
    off the application listener.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadServeEnvVars(cmd, &config)
			if config.JWKSURL == "" {
				return fmt.Errorf("a JWKS endpoint is required: set --jwks-url or JWKS_URL")
			}
			return runServe(config)
		},
	}

	cmd.Flags().StringVar(&config.Addr, "addr", server.DefaultAPIAddr, "API server address. Can also use WEEKVIEW_ADDR env var.")
	cmd.Flags().StringVar(&config.JWKSURL, "jwks-url", "", "JWKS endpoint for bearer token verification (e.g., https://login.microsoftonline.com/common/discovery/v2.0/keys). Can also use JWKS_URL env var.")
	cmd.Flags().StringVar(&config.Issuer, "token-issuer", "", "Required token issuer (iss claim). Can also use TOKEN_ISSUER env var.")
	cmd.Flags().StringVar(&config.Audience, "token-audience", "", "Required token audience (aud claim). Can also use TOKEN_AUDIENCE env var.")
	cmd.Flags().StringVar(&config.GraphBaseURL, "graph-base-url", "", "Microsoft Graph endpoint override. Can also use GRAPH_BASE_URL env var.")
	cmd.Flags().BoolVar(&config.Metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&config.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
	cmd.Flags().BoolVar(&config.Debug, "debug", false, "Enable debug logging")

	return cmd
}

// loadServeEnvVars fills settings from environment variables. Environment
// variables only apply when the corresponding flag was not explicitly set.
func loadServeEnvVars(cmd *cobra.Command, config *ServeConfig) {
	if !cmd.Flags().Changed("addr") {
		if addr := os.Getenv("WEEKVIEW_ADDR"); addr != "" {
			config.Addr = addr
		}
	}
	if !cmd.Flags().Changed("jwks-url") {
		if url := os.Getenv("JWKS_URL"); url != "" {
			config.JWKSURL = url
		}
	}
	if !cmd.Flags().Changed("token-issuer") {
		if issuer := os.Getenv("TOKEN_ISSUER"); issuer != "" {
			config.Issuer = issuer
		}
	}
	if !cmd.Flags().Changed("token-audience") {
		if audience := os.Getenv("TOKEN_AUDIENCE"); audience != "" {
			config.Audience = audience
		}
	}
	if !cmd.Flags().Changed("graph-base-url") {
		if url := os.Getenv("GRAPH_BASE_URL"); url != "" {
			config.GraphBaseURL = url
		}
	}
	if !cmd.Flags().Changed("metrics-enabled") {
		if os.Getenv("METRICS_ENABLED") == "false" {
			config.Metrics.Enabled = false
		}
	}
	if !cmd.Flags().Changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			config.Metrics.Addr = addr
		}
	}
}

func runServe(config ServeConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logLevel := slog.LevelInfo
	if config.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if config.Metrics.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    config.Metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		// Use ready channel to confirm the metrics server started successfully
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		select {
		case <-metricsReady:
			logger.Info("metrics server started", "addr", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}
	}

	// Create server context carrying shared instrumentation
	serverContext := server.NewServerContext(shutdownCtx)
	if provider.Enabled() {
		serverContext.SetMetrics(provider.Metrics())
		serverContext.SetAuditLogger(instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging))
	}
	defer func() {
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("error during metrics server shutdown", logging.Err(err))
			}
		}
		if err := serverContext.Shutdown(); err != nil {
			logger.Error("error during server context shutdown", logging.Err(err))
		}
	}()

	// Token verification against the identity platform's published keys
	verifierOpts := []server.JWKSOption{}
	if config.Issuer != "" {
		verifierOpts = append(verifierOpts, server.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		verifierOpts = append(verifierOpts, server.WithAudience(config.Audience))
	}
	verifier := server.NewJWKSVerifier(config.JWKSURL, logging.NewSlogAdapter(logger), verifierOpts...)

	authenticator := server.NewAuthenticator(verifier, logger)
	if provider.Enabled() {
		authenticator.SetMetrics(provider.Metrics())
	}

	// Per-request Graph clients carry the caller's own bearer token
	clients := func(ctx context.Context, accessToken string) *graph.Client {
		if config.GraphBaseURL != "" {
			return graph.NewClientWithBaseURL(ctx, accessToken, config.GraphBaseURL)
		}
		return graph.NewClient(ctx, accessToken)
	}
	calendar := server.NewCalendarHandler(clients, logger)
	if provider.Enabled() {
		calendar.SetMetrics(serverContext.Metrics())
		calendar.SetAuditLogger(serverContext.AuditLogger())
	}

	healthChecker := server.NewHealthChecker(serverContext)

	apiConfig := server.APIServerConfig{
		Addr:          config.Addr,
		Authenticator: authenticator,
		Calendar:      calendar,
		Health:        healthChecker,
		Logger:        logger,
	}
	if provider.Enabled() {
		apiConfig.Metrics = provider.Metrics()
	}
	apiServer, err := server.NewAPIServer(apiConfig)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	apiReady := make(chan struct{})
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := apiServer.StartWithReadySignal(apiReady); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-apiReady:
		logger.Info("calendar API ready",
			"addr", apiServer.Addr(),
			"endpoints", []string{"GET /Calendar", "POST /Calendar"},
			"jwks_url", config.JWKSURL)
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("API server failed to start: %w", err)
		}
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("API server startup timed out")
	}

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received, stopping API server")
		healthChecker.SetReady(false)
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("error shutting down API server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("API server stopped with error: %w", err)
		}
	}

	logger.Info("API server gracefully stopped")
	return nil
}
