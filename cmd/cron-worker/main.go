package main

import (
	"context"
	"errors"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/gigmarket-backend/internal/bootstrap"
	"github.com/angelmondragon/gigmarket-backend/internal/cron"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/metrics"
	"github.com/angelmondragon/gigmarket-backend/pkg/migrate"
	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
)

func main() {
	proc := bootstrap.Start("cron-worker")
	cfg, logg := proc.Config, proc.Logger
	ctx, stop := proc.SignalContext()
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	proc.Require(ctx, "database", err)
	defer proc.Close("database", dbClient.Close)
	proc.Require(ctx, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	proc.Require(ctx, "redis", err)
	defer proc.Close("redis", redisClient.Close)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), proc.Instance, 0)
	proc.Require(ctx, "cron lock", err)

	registry, closeJobs, err := buildRegistry(ctx, cfg, logg, dbClient, redisClient)
	proc.Require(ctx, "cron jobs", err)
	defer closeJobs()

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronMetrics(prometheus.DefaultRegisterer),
	})
	proc.Require(ctx, "cron service", err)

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}
