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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bmlt-enabled/tomato/internal/api"
	"github.com/bmlt-enabled/tomato/internal/config"
	"github.com/bmlt-enabled/tomato/internal/domain/formats"
	"github.com/bmlt-enabled/tomato/internal/domain/users"
	"github.com/bmlt-enabled/tomato/internal/geocoding/google"
	"github.com/bmlt-enabled/tomato/internal/importer"
	"github.com/bmlt-enabled/tomato/internal/jobs"
	"github.com/bmlt-enabled/tomato/internal/metrics"
	"github.com/bmlt-enabled/tomato/internal/semantic"
	"github.com/bmlt-enabled/tomato/internal/storage/postgres"
	"github.com/bmlt-enabled/tomato/internal/telemetry"
	"github.com/bmlt-enabled/tomato/internal/upstream"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the aggregator HTTP server",
	Long: `Start the HTTP server and begin answering semantic queries.

The server will:
- Load configuration from environment variables (plus TOMATO_CONFIG overlay)
- Bootstrap the superuser if ADMIN_PASSWORD is set
- Schedule periodic imports through River (unless IMPORT_ENABLED=false)
- Serve the BMLT client_interface endpoints
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  tomato serve

  # Start on a specific host and port
  tomato serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  tomato serve --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	// Server-specific flags
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
}

func runServer() error {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	// Override config with flags if provided
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	// Create logger
	logger := config.NewLogger(cfg.Logging)
	logger.Info().Msg("starting tomato server")

	// Initialize Prometheus metrics with version information
	metrics.Init(Version, GitCommit, BuildDate)

	// Initialize tracing (no-op unless TRACING_ENABLED=true)
	shutdownTracing, err := telemetry.InitTracing(context.Background(), cfg.Tracing, Version)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize tracing")
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				logger.Error().Err(err).Msg("tracing shutdown error")
			}
		}()
	}

	// Create database connection pool
	poolCtx, poolCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := newPool(poolCtx, cfg.Database)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return err
	}

	// Bootstrap superuser if configured
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := bootstrapSuperuser(bootCtx, repo, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("superuser bootstrap failed")
	}
	bootCancel()

	// Pool statistics are read at scrape time, no collector loop.
	metrics.RegisterPool(pool)

	// Assemble the semantic query service
	translations := formats.NewTranslationCache(repo.Formats(), repo.RootServers())
	geocoder := google.NewClient(cfg.Geocoding.APIKey,
		google.WithHTTPClient(&http.Client{Timeout: cfg.Geocoding.RequestTimeout}),
		google.WithRateLimit(cfg.Geocoding.RequestsPerSecond),
	)
	semanticService := semantic.NewService(
		repo.Meetings(),
		repo.ServiceBodies(),
		repo.Formats(),
		translations,
		geocoder,
		cfg.Map,
		logger,
	)

	handler := api.NewRouter(api.Deps{
		Pool:     pool,
		Semantic: semanticService,
		BaseURL:  cfg.Server.BaseURL,
		Debug:    cfg.Debug,
		Version:  Version,
		Logger:   logger,
	})

	// Start the River import scheduler
	if cfg.Import.Enabled {
		client := upstream.NewClient(
			upstream.WithTimeout(cfg.Import.RequestTimeout),
			upstream.WithRateLimit(cfg.Import.RequestsPerSecond),
		)
		imp := importer.New(repo, client, repo, cfg.Import, logger)

		riverClient, err := jobs.NewClient(pool, jobs.NewWorkers(imp), riverLogger(cfg.Logging), jobs.NewPeriodicJobs(cfg.Import.Interval))
		if err != nil {
			return fmt.Errorf("river client: %w", err)
		}

		riverCtx, riverCancel := context.WithCancel(context.Background())
		defer riverCancel()
		if err := riverClient.Start(riverCtx); err != nil {
			return fmt.Errorf("river workers failed to start: %w", err)
		}
		logger.Info().Dur("interval", cfg.Import.Interval).Msg("import scheduler started")
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			if err := riverClient.Stop(stopCtx); err != nil {
				logger.Error().Err(err).Msg("import scheduler shutdown error")
			} else {
				logger.Info().Msg("import scheduler stopped")
			}
		}()
	} else {
		logger.Warn().Msg("imports disabled, serving the existing catalog only")
	}

	// Create HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       10 * time.Second, // Total time to read request
		WriteTimeout:      30 * time.Second, // Total time to write response
		ReadHeaderTimeout: 5 * time.Second,  // Time to read headers
		MaxHeaderBytes:    1 << 20,          // 1 MB max header size
	}

	// Start server in background
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// Wait for shutdown signal
	return gracefulShutdown(server, logger)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	// Override logging from flags if provided
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	return cfg, nil
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MaxIdle > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdle)
	}
	return pgxpool.NewWithConfig(ctx, poolCfg)
}

func bootstrapSuperuser(ctx context.Context, repo *postgres.Repository, cfg config.Config, logger zerolog.Logger) error {
	bootstrap := cfg.AdminBootstrap
	if bootstrap.Password == "" {
		logger.Warn().Msg("ADMIN_PASSWORD not set; skipping superuser bootstrap")
		return nil
	}

	hash, err := users.HashPassword(bootstrap.Password)
	if err != nil {
		return fmt.Errorf("hash superuser password: %w", err)
	}

	created, err := repo.Users().EnsureSuperuser(ctx, users.CreateParams{
		Username:     bootstrap.Username,
		Email:        bootstrap.Email,
		PasswordHash: hash,
		IsSuperuser:  true,
	})
	if err != nil {
		return fmt.Errorf("ensure superuser: %w", err)
	}
	if created {
		logger.Info().Str("username", bootstrap.Username).Msg("bootstrapped superuser")
	}
	return nil
}

// riverLogger adapts the configured log level for River, which speaks
// slog rather than zerolog.
func riverLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func gracefulShutdown(server *http.Server, logger zerolog.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
