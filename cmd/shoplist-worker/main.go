package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"shoplist/internal/backend"
	"shoplist/internal/cli"
	"shoplist/internal/log"
	"shoplist/internal/sheets"
	gsheet "shoplist/internal/sheets/google"
	memsheet "shoplist/internal/sheets/memory"
	"shoplist/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Startup failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker, os.Stdout)
	logger.Info("Starting shoplist-worker", log.FieldOperation, log.OpStartup)

	// The worker reads what the API wrote, so it needs the shared database.
	if cfg.DataBackend != string(backend.SQLiteBackend) {
		cli.Fatal(logger, "Unsupported backend for worker", fmt.Errorf("DATA_BACKEND must be sqlite, got %q", cfg.DataBackend))
	}

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()
	if be.Events == nil {
		cli.Fatal(logger, "Worker requires a message broker", errors.New("AMQP client unavailable"), "url_set", cfg.AMQPURL != "")
	}

	var exporter sheets.HistoryExporter
	if cfg.ExportEnabled() {
		client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
		}
		exporter = client
		logger.Info("Google Sheets history export enabled",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleSheetName)
	} else {
		exporter = memsheet.New()
		logger.Info("History export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	processor := worker.NewExportProcessor(exporter, worker.ExportProcessorConfig{
		PollInterval: cfg.ExportInterval,
		BatchSize:    cfg.ExportBatchSize,
	})
	// The processor outlives the signal context so Stop can flush what is queued.
	if err := processor.Start(context.Background()); err != nil {
		cli.Fatal(logger, "Failed to start export processor", err)
	}

	listWorker := worker.NewListWorker(be.Store, processor)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := be.Events.ConsumeListRecomputed(gctx, listWorker.HandleListRecomputed)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("consume list events: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return processor.Stop(stopCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		if cerr := be.Cleanup(); cerr != nil {
			logger.Error("Backend cleanup failed", log.FieldError, cerr)
		}
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete", log.FieldOperation, log.OpShutdown)
}
