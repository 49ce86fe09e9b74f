package main

import (
	"context"
	"fmt"

	"github.com/angelmondragon/gigmarket-backend/internal/categories"
	"github.com/angelmondragon/gigmarket-backend/internal/cron"
	"github.com/angelmondragon/gigmarket-backend/internal/documents"
	"github.com/angelmondragon/gigmarket-backend/internal/emergency"
	"github.com/angelmondragon/gigmarket-backend/internal/gigs"
	"github.com/angelmondragon/gigmarket-backend/internal/notifications"
	"github.com/angelmondragon/gigmarket-backend/internal/payments"
	"github.com/angelmondragon/gigmarket-backend/internal/profiles"
	"github.com/angelmondragon/gigmarket-backend/internal/push"
	"github.com/angelmondragon/gigmarket-backend/internal/realtime"
	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
	"github.com/angelmondragon/gigmarket-backend/pkg/storage/gcs"
	"github.com/angelmondragon/gigmarket-backend/pkg/stripe"
)

const (
	emergencyExpirySchedule = "@every 1m"
	escrowReleaseSchedule   = "@hourly"
	uploadCleanupSchedule   = "@every 6h"
)

// buildRegistry wires every maintenance job and returns a func that closes
// the clients the jobs hold.
func buildRegistry(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Registry, func(), error) {
	gdb := dbClient.DB()
	closeFn := func() {}

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, closeFn, fmt.Errorf("stripe client: %w", err)
	}
	gateway, err := stripe.NewGateway(stripeClient)
	if err != nil {
		return nil, closeFn, fmt.Errorf("stripe gateway: %w", err)
	}

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		return nil, closeFn, fmt.Errorf("gcs client: %w", err)
	}
	closeFn = func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing gcs", err)
		}
	}

	outboxRepo := outbox.NewRepository(gdb)
	outboxSvc := outbox.NewService(outboxRepo, logg)
	profileRepo := profiles.NewRepository(gdb)

	fees, err := payments.NewFeePolicy(cfg.Payments.PlatformFeePercent)
	if err != nil {
		return nil, closeFn, fmt.Errorf("fee policy: %w", err)
	}
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		TxRunner:         dbClient,
		Repo:             payments.NewRepository(gdb),
		Gigs:             gigs.NewRepository(gdb),
		Profiles:         profileRepo,
		Gateway:          gateway,
		Outbox:           outboxSvc,
		Logger:           logg,
		Fees:             fees,
		Currency:         cfg.Payments.Currency,
		AutoReleaseAfter: cfg.Payments.AutoReleaseAfter,
	})
	if err != nil {
		return nil, closeFn, fmt.Errorf("payment service: %w", err)
	}

	documentSvc, err := documents.NewService(documents.ServiceParams{
		TxRunner:       dbClient,
		Repo:           documents.NewRepository(gdb),
		Profiles:       profileRepo,
		Storage:        gcsClient,
		Outbox:         outboxSvc,
		Logger:         logg,
		Bucket:         cfg.GCS.BucketName,
		MaxUploadBytes: int64(cfg.Documents.MaxUploadMB) << 20,
		UploadTTL:      cfg.GCS.UploadURLExpiry,
		DownloadTTL:    cfg.GCS.DownloadURLExpiry,
	})
	if err != nil {
		return nil, closeFn, fmt.Errorf("document service: %w", err)
	}

	// Registration and pruning only; the cron worker never delivers pushes.
	pushSvc, err := push.NewService(push.ServiceParams{
		Repo:       push.NewRepository(gdb),
		StaleAfter: cfg.Push.TokenStaleAfter,
		Logger:     logg,
	})
	if err != nil {
		return nil, closeFn, fmt.Errorf("push service: %w", err)
	}

	locations, err := emergency.NewLocationStore(redisClient, cfg.Emergency.LocationTTL)
	if err != nil {
		return nil, closeFn, fmt.Errorf("location store: %w", err)
	}
	emergencySvc, err := emergency.NewService(emergency.ServiceParams{
		TxRunner:   dbClient,
		Repo:       emergency.NewRepository(gdb),
		Providers:  profileRepo,
		Categories: categories.NewRepository(gdb),
		Locations:  locations,
		Realtime:   realtime.NewPublisher(realtime.NewRedisBus(redisClient)),
		Outbox:     outboxSvc,
		Logger:     logg,
		Config:     cfg.Emergency,
	})
	if err != nil {
		return nil, closeFn, fmt.Errorf("emergency service: %w", err)
	}

	notificationJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notifications.NewRepository(gdb),
		Retention:  cfg.Push.NotificationRetention,
	})
	if err != nil {
		return nil, closeFn, err
	}
	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outboxRepo,
		Retention:   cfg.Outbox.Retention,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, closeFn, err
	}
	pushJob, err := cron.NewPushTokenPruneJob(cron.PushTokenPruneJobParams{Logger: logg, Push: pushSvc})
	if err != nil {
		return nil, closeFn, err
	}
	uploadJob, err := cron.NewDocumentUploadCleanupJob(cron.DocumentUploadCleanupJobParams{Logger: logg, Documents: documentSvc})
	if err != nil {
		return nil, closeFn, err
	}
	escrowJob, err := cron.NewEscrowReleaseJob(cron.EscrowReleaseJobParams{Logger: logg, Payments: paymentSvc})
	if err != nil {
		return nil, closeFn, err
	}
	emergencyJob, err := cron.NewEmergencyExpiryJob(cron.EmergencyExpiryJobParams{Logger: logg, Emergency: emergencySvc})
	if err != nil {
		return nil, closeFn, err
	}

	registry := cron.NewRegistry(notificationJob, outboxJob, pushJob)
	scheduled := []struct {
		spec string
		job  cron.Job
	}{
		{uploadCleanupSchedule, uploadJob},
		{escrowReleaseSchedule, escrowJob},
		{emergencyExpirySchedule, emergencyJob},
	}
	for _, s := range scheduled {
		if err := registry.RegisterSchedule(s.spec, s.job); err != nil {
			return nil, closeFn, err
		}
	}
	return registry, closeFn, nil
}
