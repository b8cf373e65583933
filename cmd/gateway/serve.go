package main

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

	"github.com/MOHCentral/opm-stats-gateway/internal/auth"
	"github.com/MOHCentral/opm-stats-gateway/internal/canonical"
	"github.com/MOHCentral/opm-stats-gateway/internal/config"
	"github.com/MOHCentral/opm-stats-gateway/internal/dlq"
	"github.com/MOHCentral/opm-stats-gateway/internal/handlers"
	"github.com/MOHCentral/opm-stats-gateway/internal/logging"
	"github.com/MOHCentral/opm-stats-gateway/internal/ratelimit"
	"github.com/MOHCentral/opm-stats-gateway/internal/server"
	"github.com/MOHCentral/opm-stats-gateway/internal/service"
	"github.com/MOHCentral/opm-stats-gateway/internal/sink"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion gateway",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(slog.String("service", "gateway"))
	logging.SetDefault(logger)

	slog.Info("Starting stats gateway",
		slog.Int("port", cfg.Server.Port),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("opensearch_url", cfg.OpenSearch.URL),
	)

	resolver, cleanup, err := buildResolver(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var limiter ratelimit.RateLimiter = &ratelimit.NoOpRateLimiter{}
	if cfg.Ingestion.RateLimitEnabled && cfg.Redis.Enabled {
		rl, err := ratelimit.NewRedisRateLimiter(cfg.Redis.URL, cfg.Ingestion.RateLimitRequests, cfg.Ingestion.RateLimitWindow)
		if err != nil {
			slog.Warn("Failed to initialize rate limiter, continuing without", slog.String("error", err.Error()))
		} else {
			limiter = rl
			slog.Info("Rate limiting enabled",
				slog.Int("requests", cfg.Ingestion.RateLimitRequests),
				slog.Duration("window", cfg.Ingestion.RateLimitWindow),
			)
		}
	}
	defer limiter.Close()

	allowed := cfg.Ingestion.AllowedTypes
	if cfg.Ingestion.AllowListFile != "" {
		fromFile, err := canonical.LoadAllowList(cfg.Ingestion.AllowListFile)
		if err != nil {
			return fmt.Errorf("load allow-list: %w", err)
		}
		allowed = append(allowed, fromFile...)
	}
	canon := canonical.New(allowed)

	writer, err := sink.NewOpenSearchWriter(sink.Config{
		URL:           cfg.OpenSearch.URL,
		Username:      cfg.OpenSearch.Username,
		Password:      cfg.OpenSearch.Password,
		TLSSkipVerify: cfg.OpenSearch.TLSSkipVerify,
		IndexPrefix:   cfg.OpenSearch.IndexPrefix,
	})
	if err != nil {
		return fmt.Errorf("create sink writer: %w", err)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := writer.Initialize(initCtx); err != nil {
		slog.Warn("Failed to initialize OpenSearch, events may fail to index", slog.String("error", err.Error()))
	}
	cancel()

	var dlqWriter dlq.Writer
	var queue *dlq.JetStreamQueue
	if cfg.DLQ.Enabled {
		queue, err = dlq.NewJetStreamQueue(context.Background(), cfg.DLQ.NatsURL)
		if err != nil {
			return fmt.Errorf("initialize dlq: %w", err)
		}
		defer queue.Close()
		dlqWriter = queue
		slog.Info("Dead letter queue enabled", slog.String("nats_url", cfg.DLQ.NatsURL))
	}

	ingestor := service.NewIngestor(canon, writer, dlqWriter, cfg.Sink.Timeout, logger)
	handler := handlers.NewIngestHandler(ingestor, resolver, limiter, cfg.Ingestion.MaxBodySize, logger)
	if queue != nil {
		handler.SetDLQStats(queue)
	}
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Gateway listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	slog.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	slog.Info("Server stopped")
	return nil
}

func buildResolver(cfg *config.Config) (auth.Resolver, func(), error) {
	cleanup := func() {}

	var resolver auth.Resolver
	switch cfg.Auth.Mode {
	case "static":
		resolver = auth.NewStaticResolver(cfg.Auth.StaticTokens)
	case "jwt":
		if cfg.Auth.JWTSecret == "" {
			return nil, nil, fmt.Errorf("auth mode jwt requires auth.jwt_secret")
		}
		resolver = auth.NewJWTResolver(cfg.Auth.JWTSecret)
	case "postgres":
		store, err := auth.NewPostgresStore(context.Background(), cfg.Auth.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect token store: %w", err)
		}
		resolver = store
		cleanup = store.Close
	default:
		return nil, nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}

	if cfg.Auth.CacheEnabled && cfg.Redis.Enabled {
		cached, err := auth.NewCachedResolver(resolver, cfg.Redis.URL, cfg.Auth.CacheTTL)
		if err != nil {
			slog.Warn("Failed to initialize token cache, continuing without", slog.String("error", err.Error()))
		} else {
			inner := cleanup
			cleanup = func() {
				cached.Close()
				inner()
			}
			resolver = cached
		}
	}

	return resolver, cleanup, nil
}
