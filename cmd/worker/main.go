/*
main.go - Reorder alert worker

PURPOSE:
  Consumes stock:reorder_alert tasks enqueued by the server's reorder
  scanner. Each task re-reads the current quantity so alerts for pairs that
  were restocked in the meantime are dropped.

REQUIRES:
  REDIS_ADDR and a shared store (sqlite file or postgres). The memory driver
  is rejected because the worker would see an empty store.

SEE ALSO:
  - jobs/tasks.go: Task payload and handler
  - jobs/scanner.go: Producer side
*/
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/warp/stock-engine/config"
	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/jobs"
	"github.com/warp/stock-engine/logging"
	"github.com/warp/stock-engine/store"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(logging.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel}).
		With().Str("service", "worker").Logger()

	worker, closeStore, err := newWorker(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build worker")
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error().Err(err).Msg("failed to close store")
		}
	}()

	logger.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("worker starting")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped")
		return
	}
	logger.Info().Msg("worker stopped")
}

// newWorker opens the shared store and wires the reorder alert handler.
func newWorker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*jobs.Worker, func() error, error) {
	if !cfg.Redis.Enabled() {
		return nil, nil, errors.New("REDIS_ADDR is required")
	}
	if cfg.Store.Driver == config.DriverMemory {
		return nil, nil, errors.New("the memory store cannot be shared with the server")
	}

	backend, closeStore, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	ledger := inventory.NewLedger(backend, backend)
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:    asynq.RedisClientOpt{Addr: cfg.Redis.Addr},
		Concurrency:  cfg.Worker.Concurrency,
		Logger:       logger,
		ReorderAlert: jobs.NewReorderAlertHandler(ledger, backend, logger),
	})
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}
	return worker, closeStore, nil
}
