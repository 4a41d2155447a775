package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"savings/internal/cli"
	apphttp "savings/internal/http"
	"savings/internal/log"
	"savings/internal/worker"
)

func main() {
	cfg, logger := cli.LoadConfig()

	logger.Info("Starting savings-worker",
		log.FieldBackend, cfg.DataBackend,
		log.FieldPolicy, cfg.SavingPolicy,
		"timezone", cfg.Timezone)

	ctx, cancel := cli.GracefulShutdown(logger)
	defer cancel()

	res, err := cli.OpenBackend(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()

	publisher, closePublisher := cli.OpenPublisher(logger.WithComponent(log.ComponentAMQP), cfg)
	defer closePublisher()

	reconciler, err := cli.NewReconciler(logger, cfg, res.Stores, publisher)
	if err != nil {
		logger.Error("Failed to initialize reconciler", log.FieldError, err)
		os.Exit(1)
	}

	scheduler := worker.NewScheduler(reconciler, cfg.ReconcileInterval, logger.WithComponent(log.ComponentWorker))
	logger.Info("Reconciliation scheduler configured",
		"interval", cfg.ReconcileInterval,
		"workers", cfg.ReconcileWorkers)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Runner: scheduler,
		Users:  res.Stores,
		Ledger: res.Stores,
		Pinger: res.Stores,
	}, logger.WithComponent(log.ComponentHTTP))

	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", log.FieldError, err)
			cancel()
		}
	}()

	done := make(chan struct{})
	go func() {
		scheduler.Start(ctx)
		close(done)
	}()

	<-ctx.Done()
	logger.Info("Shutting down savings-worker...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", log.FieldError, err)
	}

	// Let an in-flight run record what it has finished.
	cli.WaitWithTimeout(logger, done, 30*time.Second)
}
