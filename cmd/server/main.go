package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mzlad1/BenchPOS-sub001/internal/config"
	"github.com/mzlad1/BenchPOS-sub001/internal/infra"
	"github.com/mzlad1/BenchPOS-sub001/internal/remote"
	"github.com/mzlad1/BenchPOS-sub001/internal/router"
	syncpkg "github.com/mzlad1/BenchPOS-sub001/internal/sync"
	"github.com/mzlad1/BenchPOS-sub001/internal/worker"
)

func main() {
	// Structured logger. Dev: pretty console, prod: JSON.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Env == "production" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	// Local Postgres is the system of record. Without it the register
	// cannot operate, so a connection failure is fatal.
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	// The remote store may be unreachable at boot; the register works
	// offline. The reconnecting wrapper fails operations as transient until
	// a dial succeeds, so outbox rows stay pending instead of being marked
	// synced against a store that was never reached.
	var store remote.Store = remote.NewReconnectingStore(func(ctx context.Context) (remote.Store, error) {
		mongoDB, err := infra.NewMongo(cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return remote.NewMongoStore(mongoDB), nil
	}, cfg.SyncRetryInterval)
	if err := store.Ping(context.Background()); err != nil {
		log.Warn().Err(err).Msg("remote store unavailable at startup, continuing offline")
	}

	cb := infra.NewCircuitBreaker(infra.DefaultCBConfig())
	hub := syncpkg.NewHub()
	reauth := syncpkg.NewReauthRegistry(hub, cfg.ReauthTimeout)

	r, deps := router.New(cfg, db, rdb, store, cb, hub, reauth)

	// Background loops: worker pool for async jobs (receipt PDFs, email),
	// plus the sync and receipt retry crons.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker.StartWorkerPool(ctx, rdb, deps.WorkerHandlers, cfg.WorkerPoolSize)
	deps.SyncEngine.StartRetryLoop(ctx, rdb)
	deps.ReceiptWorker.StartRetryLoop(ctx, rdb)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Str("device_id", cfg.DeviceID).Msgf("BenchPOS backend listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}
