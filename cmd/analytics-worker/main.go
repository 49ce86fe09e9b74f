package main

import (
	"context"
	"errors"
	"os"

	"github.com/angelmondragon/gigmarket-backend/internal/analytics/router"
	"github.com/angelmondragon/gigmarket-backend/internal/analytics/worker"
	"github.com/angelmondragon/gigmarket-backend/internal/analytics/writer"
	"github.com/angelmondragon/gigmarket-backend/internal/bootstrap"
	"github.com/angelmondragon/gigmarket-backend/pkg/bigquery"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/gigmarket-backend/pkg/pubsub"
	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
)

// analytics-worker drains the analytics subscription into BigQuery.
func main() {
	proc := bootstrap.Start("analytics-worker")
	cfg, logg := proc.Config, proc.Logger
	ctx, stop := proc.SignalContext()
	defer stop()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	proc.Require(ctx, "redis", err)
	defer proc.Close("redis client", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	proc.Require(ctx, "pubsub", err)
	defer proc.Close("pubsub client", pubsubClient.Close)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	proc.Require(ctx, "bigquery", err)
	defer proc.Close("bigquery client", bqClient.Close)

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		proc.Require(ctx, "analytics subscription", errors.New("subscription not configured"))
	}

	dedupe, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	proc.Require(ctx, "idempotency manager", err)

	sink, err := writer.New(bqClient, writer.Config{
		MarketplaceTable: cfg.BigQuery.MarketplaceEventsTable,
		GigViewsTable:    cfg.BigQuery.GigViewsTable,
	})
	proc.Require(ctx, "analytics writer", err)

	routes, err := router.NewRouter(sink, logg)
	proc.Require(ctx, "analytics router", err)

	service, err := worker.NewService(worker.Params{
		Subscription: subscription,
		Handler:      routes,
		Dedupe:       dedupe,
		Logger:       logg,
		Flusher:      sink,
	})
	proc.Require(ctx, "analytics worker", err)

	logg.Info(ctx, "analytics worker ready")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "analytics worker failed", err)
		os.Exit(1)
	}
}
