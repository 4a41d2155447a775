package main

import (
	"context"
	"errors"
	"os"
	"time"

	"savings/internal/amqp"
	"savings/internal/cli"
	"savings/internal/core"
	"savings/internal/log"
	gsheet "savings/internal/sheets/google"
	"savings/internal/worker"
)

func main() {
	cfg, logger := cli.LoadConfig()

	logger.Info("Starting savings-exporter")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the exporter")
		os.Exit(1)
	}
	if cfg.GoogleSpreadsheetID == "" {
		logger.Error("GOOGLE_SPREADSHEET_ID is required for the exporter")
		os.Exit(1)
	}

	ctx, cancel := cli.GracefulShutdown(logger)
	defer cancel()

	sheetsClient, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSavingsSheet)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSavingsSheet)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	exporter := worker.NewExportWorker(sheetsClient, sheetsClient)

	// On startup, export the last closed month in case events were lost.
	if res, err := cli.OpenBackend(ctx, logger, cfg); err != nil {
		logger.Error("Skipping startup export check, backend unavailable", log.FieldError, err)
	} else {
		loc, _ := cfg.Location()
		month := core.PreviousMonth(time.Now().In(loc))
		logger.Info("Performing startup export check...", log.FieldMonth, month.String())
		if _, err := exporter.ExportMonth(ctx, month, res.Stores, res.Stores); err != nil {
			logger.Error("Failed startup export check", log.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := amqpClient.Consume(ctx, exporter.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down exporter...")
	cli.WaitWithTimeout(logger, done, 10*time.Second)
}
