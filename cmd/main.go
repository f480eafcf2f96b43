/**
 * @description
 * This is the main entry point for the interest-service. It initializes and
 * wires together all the components of the application: configuration,
 * database connection and schema, event producer, rate limiter, repository,
 * service, and the HTTP router. Finally it starts the HTTP server and shuts
 * it down gracefully on SIGINT/SIGTERM.
 */
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/scoutalerts/interest-service/internal/api"
	"github.com/scoutalerts/interest-service/internal/app"
	"github.com/scoutalerts/interest-service/internal/config"
	"github.com/scoutalerts/interest-service/internal/store"
	"github.com/scoutalerts/interest-service/pkg/rabbitmq"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load application configuration from environment variables
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.SessionSecret == "" {
		logger.Error("SESSION_SECRET must be set")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Establish connection to the PostgreSQL database
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	if err := applySchema(ctx, dbpool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database schema verified")

	// Event producer; fall back to a no-op publisher when the broker is
	// unreachable so the API stays available.
	var events rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("rabbitmq unavailable, events will be dropped", "error", err)
			events = &rabbitmq.EventProducerFallback{}
		} else {
			events = producer
		}
	} else {
		events = &rabbitmq.EventProducerFallback{}
	}
	defer events.Close()

	// Optional distributed rate limiter
	var limiter app.SubscribeRateLimiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("invalid REDIS_URL, rate limiting disabled", "error", err)
		} else {
			limiter = app.NewRedisSubscribeRateLimiter(redis.NewClient(opts), cfg.RateLimitPrefix)
		}
	}

	// Initialize application layers
	repository := store.NewPostgresRepository(dbpool)
	service := app.NewService(repository, events, cfg.ItemFeedList())
	handlers := api.NewInterestHandlers(service, limiter, cfg.SubscribeLimitPerMinute)
	router := api.NewRouter(handlers, []byte(cfg.SessionSecret), cfg.LoginURL)

	// Configure and start the HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}

// applySchema runs schema.sql against the database. Every statement in the
// file is idempotent, so this is safe on every boot.
func applySchema(ctx context.Context, dbpool *pgxpool.Pool) error {
	sqlBytes, err := os.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = dbpool.Exec(ctx, string(sqlBytes))
	return err
}
