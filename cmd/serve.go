package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/KalharPandya/upstocks-mcp/internal/auth"
	"github.com/KalharPandya/upstocks-mcp/internal/config"
	"github.com/KalharPandya/upstocks-mcp/internal/dispatch"
	"github.com/KalharPandya/upstocks-mcp/internal/instrumentation"
	"github.com/KalharPandya/upstocks-mcp/internal/logging"
	"github.com/KalharPandya/upstocks-mcp/internal/methods"
	"github.com/KalharPandya/upstocks-mcp/internal/server"
	"github.com/KalharPandya/upstocks-mcp/internal/session"
	"github.com/KalharPandya/upstocks-mcp/internal/transport"
	"github.com/KalharPandya/upstocks-mcp/internal/upstox"
)

func newServeCmd() *cobra.Command {
	var (
		transportType  string
		httpAddr       string
		debugMode      bool
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP gateway",
		Long: `Start the Model Context Protocol (MCP) gateway for the Upstox API.

Supports multiple transport types:
  - http: JSON-RPC over HTTP POST and WebSocket (default)
  - stdio: newline-delimited JSON-RPC on standard input/output
  - all: both of the above

Configuration comes from the environment (UPSTOX_ENV, UPSTOX_API_KEY,
UPSTOX_API_SECRET, UPSTOX_ACCESS_TOKEN and their UPSTOX_SANDBOX_*
counterparts). Flags override the corresponding environment settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("debug") {
				cfg.Debug = debugMode
			}
			if cmd.Flags().Changed("metrics-enabled") {
				cfg.MetricsEnabled = metricsEnabled
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			return runServe(transportType, cfg)
		},
	}

	cmd.Flags().StringVar(&transportType, "transport", "http", "Transport type: http, stdio or all")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address. Can also use MCP_HTTP_ADDR env var.")
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging. Can also use DEBUG env var.")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(transportType string, cfg *config.Config) error {
	switch transportType {
	case "http", "stdio", "all":
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: http, stdio, all)", transportType)
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(cfg.Debug)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.Enabled = cfg.MetricsEnabled
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Error("instrumentation shutdown", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	environment, err := auth.ParseEnvironment(cfg.Environment)
	if err != nil {
		return err
	}
	key, secret, token := cfg.ActiveCredentials()
	creds := auth.Credentials{
		Environment: environment,
		APIKey:      key,
		APISecret:   secret,
		AccessToken: token,
		RedirectURI: cfg.RedirectURI,
	}
	authManager := auth.NewManager(creds, logger)

	sessions := session.NewRegistry(logger)
	defer sessions.Stop()

	// The live-session gauge samples the registry at scrape time, so sweeps
	// are reflected without any bookkeeping in the handlers.
	if err := metrics.ObserveActiveSessions(func() int64 { return int64(sessions.Count()) }); err != nil {
		return fmt.Errorf("register session gauge: %w", err)
	}

	broker := upstox.New(creds.BaseURL(), authManager, logger, metrics)

	dispatcher := dispatch.New(sessions, logger, metrics)
	methods.RegisterAll(dispatcher, &methods.Services{
		Sessions: sessions,
		Auth:     authManager,
		Broker:   broker,
		Logger:   logger,
		Metrics:  metrics,
		Version:  version,
	})

	logger.Info("gateway configured",
		logging.KeyEnvironment, string(environment),
		logging.KeyTransport, transportType,
		"methods", len(dispatcher.Methods()))

	if transportType == "stdio" {
		return runStdio(ctx, dispatcher, logger)
	}

	// Dedicated metrics listener, away from the protocol endpoint.
	var metricsServer *server.MetricsServer
	if cfg.MetricsEnabled && provider.Enabled() {
		metricsServer = server.NewMetricsServer(cfg.MetricsAddr, logger)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", logging.Err(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown", logging.Err(err))
			}
		}()
	}

	httpServer := server.New(cfg.HTTPAddr, dispatcher, authManager, sessions, logger, metrics)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	if transportType == "all" {
		stdioDone := make(chan error, 1)
		go func() {
			defer close(stdioDone)
			stdioDone <- runStdio(ctx, dispatcher, logger)
		}()
		defer func() {
			cancel()
			if err := <-stdioDone; err != nil {
				logger.Error("stdio transport", logging.Err(err))
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping gateway")
		if err := httpServer.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("shut down gateway server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("gateway server stopped with error: %w", err)
		}
	}

	logger.Info("gateway stopped")
	return nil
}

func runStdio(ctx context.Context, d *dispatch.Dispatcher, logger *slog.Logger) error {
	t := transport.NewStdio(d, os.Stdin, os.Stdout, logging.WithTransport(logger, "stdio"))
	return t.Run(ctx)
}
