package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/healthfirst/availability-engine/internal/availability"
	"github.com/healthfirst/availability-engine/internal/config"
	"github.com/healthfirst/availability-engine/internal/db"
	"github.com/healthfirst/availability-engine/internal/logging"
	redisclient "github.com/healthfirst/availability-engine/internal/redis"
)

// The expiry worker periodically cancels slots that are still marked
// available but whose time has already passed, so listings stay truthful.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	log, err := logging.New(cfg.Env)
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("expiry-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.SweepInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to Redis")

	repo := availability.NewPgRepository(pgPool)
	providers := availability.NewPgProviderDirectory(pgPool)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	svc := availability.NewService(repo, providers, locker, log)

	// Run once at startup
	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *availability.Service, log *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	expired, err := svc.ExpireStaleSlots(runCtx)
	if err != nil {
		log.Error("sweep run error", zap.Error(err))
		return
	}
	log.Info("sweep run complete",
		zap.Int("slots_cancelled", expired),
		zap.Duration("took", time.Since(start)),
	)
}
