/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stock engine HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Build the logger
  3. Open the configured store (sqlite, postgres or memory)
  4. Connect to redis when REDIS_ADDR is set (BOM lock + reorder scanner)
  5. Create API handler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional YAML config file. Environment variables override it.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reorder scanner
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close redis and database connections

EXAMPLES:
  # Run with file database
  SQLITE_PATH=./data/stock.db ./server

  # Run against postgres with a shared BOM lock
  STORE_DRIVER=postgres DATABASE_URL=postgres://... REDIS_ADDR=localhost:6379 ./server

SEE ALSO:
  - config/config.go: Keys and defaults
  - api/server.go: Router configuration
  - cmd/worker/main.go: Reorder alert consumer
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/warp/stock-engine/api"
	"github.com/warp/stock-engine/bom"
	"github.com/warp/stock-engine/cache"
	"github.com/warp/stock-engine/config"
	"github.com/warp/stock-engine/jobs"
	"github.com/warp/stock-engine/logging"
	"github.com/warp/stock-engine/store"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// The configured logger needs the config; fall back to the global one.
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := logging.New(logging.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	app, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to start")
	}
	defer app.close()

	if app.scanner != nil {
		app.scanner.Start()
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Str("driver", cfg.Store.Driver).Msg("server starting")
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	if app.scanner != nil {
		app.scanner.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	logger.Info().Msg("server stopped")
}

// app is everything main starts and stops.
type app struct {
	server  *http.Server
	scanner *jobs.ReorderScanner // nil without redis
	closers []func() error
}

// newApp opens the store, connects redis when configured and builds the
// HTTP server. Nothing is listening yet.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	backend, closeStore, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a := &app{closers: []func() error{closeStore}}

	var (
		locker bom.Locker
		queue  *asynq.Client
	)
	if cfg.Redis.Enabled() {
		rdb, err := cache.New(ctx, cfg.Redis.Addr)
		if err != nil {
			a.close()
			return nil, err
		}
		locker = cache.NewRedisLocker(rdb, logger)
		queue = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr})
		a.closers = append(a.closers, rdb.Close, queue.Close)
	} else {
		logger.Info().Msg("redis not configured, using in-process BOM lock and no reorder alerts")
	}

	handler := api.NewHandler(backend, locker, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins:     cfg.HTTP.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
		Development:        cfg.App.Env == "development",
	})

	if queue != nil {
		a.scanner = jobs.NewReorderScanner(handler.Ledger, queue, logger)
		a.scanner.Interval = cfg.Worker.ReorderScanInterval
	}

	a.server = &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

// close releases connections in reverse order of opening.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Error().Err(err).Msg("close failed")
		}
	}
}
