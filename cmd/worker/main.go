package main

import (
	"context"
	"errors"
	"os"

	"github.com/angelmondragon/gigmarket-backend/internal/bootstrap"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/email"
	"github.com/angelmondragon/gigmarket-backend/pkg/fcm"
	"github.com/angelmondragon/gigmarket-backend/pkg/pubsub"
	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
)

// worker consumes domain events: notifications, badge awards and
// transactional email.
func main() {
	proc := bootstrap.Start("worker")
	cfg, logg := proc.Config, proc.Logger
	ctx, stop := proc.SignalContext()
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	proc.Require(ctx, "database", err)
	defer proc.Close("database", dbClient.Close)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	proc.Require(ctx, "redis", err)
	defer proc.Close("redis client", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	proc.Require(ctx, "pubsub", err)
	defer proc.Close("pubsub client", pubsubClient.Close)

	mailer, err := email.NewClient(cfg.Sendgrid, logg)
	proc.Require(ctx, "email", err)

	var pushClient *fcm.Client
	if cfg.FeatureFlags.PushEnabled {
		if pushClient, err = fcm.NewClient(ctx, cfg.GCP, cfg.Push, logg); err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "push delivery disabled")
			pushClient = nil
		}
	}

	service, err := NewService(ServiceParams{
		Config: cfg,
		Logger: logg,
		DB:     dbClient,
		Redis:  redisClient,
		PubSub: pubsubClient,
		Mailer: mailer,
		Push:   pushClient,
	})
	proc.Require(ctx, "worker service", err)

	logg.Info(ctx, "starting worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}
