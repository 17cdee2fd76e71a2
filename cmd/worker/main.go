package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/bootstrap"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	if cfg.QueueDriver == "memory" || cfg.JobStore == "memory" {
		logger.Warn().
			Str("queue", cfg.QueueDriver).
			Str("job_store", cfg.JobStore).
			Msg("worker: in-process queue or store, jobs enqueued by the api will not reach this worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, bootstrap.RoleWorker, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: bootstrap failed")
	}
	defer rt.Close()

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker: started")
	if err := rt.Orchestrator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker: stopped with error")
		return
	}
	logger.Info().Msg("worker: stopped")
}
