// Package cli provides common CLI initialization utilities shared by
// cmd/savings, cmd/savings-worker and cmd/savings-exporter.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"savings/internal/amqp"
	"savings/internal/backend"
	"savings/internal/config"
	"savings/internal/log"
	"savings/internal/services"
)

// SetupLogger initializes structured logging at the given LOG_LEVEL and sets
// it as the default logger.
func SetupLogger(level string) *log.Logger {
	lvl := log.ParseLevel(level)
	logger := log.New(log.Config{
		Level:     lvl,
		Component: log.ComponentApp,
		Handler:   slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}),
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig loads the environment and configuration, sets up logging and
// validates. It exits the process on validation failure.
func LoadConfig() (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// OpenBackend opens the configured store backend.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(logger.WithComponent(log.ComponentBackend)).CreateBackend(ctx, bcfg)
}

// OpenPublisher connects to AMQP when configured. A broker that cannot be
// reached disables events instead of stopping the process. The returned
// publisher is nil when events are disabled; close is never nil.
func OpenPublisher(logger *log.Logger, cfg *config.Config) (services.EventPublisher, func() error) {
	noop := func() error { return nil }
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - savings will not be exported")
		return nil, noop
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		return nil, noop
	}
	logger.Info("Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)
	return amqp.NewSavingsPublisher(client), client.Close
}

// NewReconciler builds a reconciler over stores using the configured policy,
// pool size, timeout and time zone.
func NewReconciler(logger *log.Logger, cfg *config.Config, stores backend.Stores, publisher services.EventPublisher) (*services.Reconciler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	policy, err := services.GetPolicy(cfg.SavingPolicy, stores)
	if err != nil {
		return nil, err
	}
	return services.NewReconciler(stores, stores, stores, services.Options{
		Workers:      cfg.ReconcileWorkers,
		StoreTimeout: cfg.ReconcileStoreTimeout,
		Location:     loc,
		Policy:       policy,
		Publisher:    publisher,
		Logger:       logger.WithComponent(log.ComponentReconciler),
	})
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that is cancelled on SIGINT or SIGTERM.
func GracefulShutdown(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// WaitWithTimeout waits for done or gives up after timeout.
func WaitWithTimeout(logger *log.Logger, done <-chan struct{}, timeout time.Duration) {
	select {
	case <-done:
		logger.Info("Shutdown complete")
	case <-time.After(timeout):
		logger.Warn("Shutdown timeout reached")
	}
}
