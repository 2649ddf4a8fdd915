// docpiped is the pipeline daemon: it watches the storage root for uploads,
// gates them into job records and queue messages, and runs the dequeuer pool
// that drives each job through extraction, summarization and the terminal
// write. A stuck-job sweeper runs alongside as the durability backstop.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/docpipe/docpipe/internal/common"
	"github.com/docpipe/docpipe/internal/ingest"
	"github.com/docpipe/docpipe/internal/ocr"
	"github.com/docpipe/docpipe/internal/pipeline"
	"github.com/docpipe/docpipe/internal/poll"
	"github.com/docpipe/docpipe/internal/queue"
	"github.com/docpipe/docpipe/internal/repository"
	"github.com/docpipe/docpipe/internal/storage"
	openaisum "github.com/docpipe/docpipe/internal/summarize/openai"
	"github.com/docpipe/docpipe/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	if err := repository.HealthCheck(ctx, pool, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	jobs := repository.NewJobRepository(pool, logger)
	q := queue.NewPGQueue(pool, cfg.Queue, logger)
	store := storage.NewFSStore(cfg.Storage, logger)
	ocrClient := ocr.NewClient(cfg.OCR, logger)

	summarizer, err := openaisum.NewClient(cfg.LLM, logger)
	if err != nil {
		logger.Error("summarizer init failed", "error", err)
		os.Exit(1)
	}

	orch := pipeline.NewOrchestrator(jobs, q, store, ocrClient, summarizer, poll.Config{
		Interval:    cfg.OCR.PollInterval,
		MaxAttempts: cfg.OCR.MaxAttempts,
	}, logger)

	workers := worker.NewPool(q, orch, worker.PoolConfig{
		Workers:        cfg.Worker.Concurrency,
		ReceiveWait:    cfg.Queue.ReceiveInterval,
		ProcessTimeout: cfg.Worker.ProcessTimeout,
	}, logger)
	workers.Start(ctx)

	sweeper := worker.NewSweeper(jobs, cfg.Worker.SweepInterval, cfg.Worker.StuckJobAge, logger)
	go sweeper.Run(ctx)

	gate := pipeline.NewIntakeGate(jobs, q, store, cfg.Storage.Bucket, logger)
	events, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Root:   cfg.Storage.RootDir,
		Bucket: cfg.Storage.Bucket,
	}, logger)
	if err != nil {
		logger.Error("upload watcher failed to start", "root", cfg.Storage.RootDir, "error", err)
		os.Exit(1)
	}

	logger.Info("docpiped started",
		"storage_root", cfg.Storage.RootDir,
		"bucket", cfg.Storage.Bucket,
		"workers", cfg.Worker.Concurrency,
	)

	// Feed watcher events to the intake gate until shutdown. Intake errors are
	// already logged with the object coordinates; the event is dropped here.
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			workers.Wait()
			logger.Info("stopped")
			return
		case n, ok := <-events:
			if !ok {
				logger.Error("upload watcher closed, shutting down")
				stop()
				workers.Wait()
				return
			}
			_ = gate.Handle(ctx, n)
		case werr, ok := <-watchErrs:
			if ok && werr != nil {
				logger.Error("upload watcher error", "error", werr)
			}
		}
	}
}
