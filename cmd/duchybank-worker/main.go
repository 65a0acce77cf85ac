package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"duchybank/internal/amqp"
	"duchybank/internal/config"
	applog "duchybank/internal/log"
	"duchybank/internal/storage"
	"duchybank/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     applog.DefaultConfig().Level,
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	appender, err := worker.NewAppender(ctx, worker.SheetsConfig{
		SpreadsheetID: cfg.GoogleSpreadsheetID,
		SheetName:     cfg.GoogleSheetName,
	})
	if err != nil {
		logger.Error("Failed to initialize export destination", "error", err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", "error", err, "url", cfg.AMQPURL)
		os.Exit(1)
	}
	defer amqpClient.Close()

	exportWorker := worker.NewExportWorker(repo, appender, cfg.ExportBatchSize)

	// Catch up on anything committed while the worker was down.
	if err := exportWorker.StartupExportCheck(ctx); err != nil {
		logger.Warn("Startup export check failed", "error", err)
	}

	consumeDone := make(chan error, 1)
	go func() {
		consumeDone <- amqpClient.ConsumeLedgerEvents(ctx, func(msg *amqp.LedgerEventMessage) error {
			return exportWorker.HandleLedgerEvent(ctx, msg)
		})
	}()

	logger.Info("Export worker started",
		"batch_size", cfg.ExportBatchSize,
		"sweep_interval", cfg.ExportInterval.String())

	ticker := time.NewTicker(cfg.ExportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := exportWorker.ProcessPendingSessions(shutdownCtx); err != nil {
				logger.Warn("Final export sweep failed", "error", err)
			}
			cancel()
			logger.Info("Export worker stopped gracefully")
			return
		case err := <-consumeDone:
			if err != nil && ctx.Err() == nil {
				logger.Error("AMQP consumer stopped", "error", err)
				os.Exit(1)
			}
		case <-ticker.C:
			// Periodic sweep catches events lost to broker hiccups.
			if err := exportWorker.ProcessPendingSessions(ctx); err != nil {
				logger.Warn("Export sweep failed", "error", err)
			}
		}
	}
}
