package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tendant/simple-ocr/internal/common"
	"github.com/tendant/simple-ocr/internal/contentstore"
	"github.com/tendant/simple-ocr/internal/engine"
	"github.com/tendant/simple-ocr/internal/pipeline"
	"github.com/tendant/simple-ocr/internal/repository"
	"github.com/tendant/simple-ocr/internal/worker"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.App)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(cfg.Engine.Name, engine.Config{
		ModelName:    cfg.Engine.ModelName,
		BaseURL:      cfg.Engine.BaseURL,
		APIKey:       cfg.Engine.APIKey,
		Temperature:  cfg.Engine.Temperature,
		MaxTokens:    cfg.Engine.MaxTokens,
		Timeout:      cfg.Engine.Timeout,
		MockDelay:    cfg.Engine.MockDelay,
		MockFailRate: cfg.Engine.MockFailRate,
	})
	if err != nil {
		logger.Error("failed to create OCR engine", "error", err)
		os.Exit(1)
	}

	store := contentstore.NewClient(cfg.ContentAPI.URL, cfg.ContentAPI.Timeout, logger)
	defer store.Close()

	proc := pipeline.NewProcessor(eng, store, logger,
		pipeline.WithTempDir(cfg.Processing.TempDir),
		pipeline.WithCleanup(cfg.Processing.CleanupTempFiles),
	)
	defer func() {
		if err := proc.Close(context.Background()); err != nil {
			logger.Warn("processor close error", "error", err)
		}
	}()

	var opts []worker.Option
	if cfg.Database.DSN != "" {
		pool, err := repository.Open(ctx, cfg.Database, logger)
		if err != nil {
			logger.Error("failed to open job-result store", "error", err)
			os.Exit(1)
		}
		defer repository.Close(pool, logger)
		if err := repository.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to ensure job-result schema", "error", err)
			os.Exit(1)
		}
		opts = append(opts, worker.WithRecorder(repository.NewJobResultRepository(pool, logger)))
	}

	w := worker.New(cfg.NATS, proc, logger, opts...)
	if err := w.Start(ctx); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
