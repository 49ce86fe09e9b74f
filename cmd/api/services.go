package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/gigmarket-backend/api/controllers"
	"github.com/angelmondragon/gigmarket-backend/api/routes"
	"github.com/angelmondragon/gigmarket-backend/internal/address"
	"github.com/angelmondragon/gigmarket-backend/internal/admin"
	"github.com/angelmondragon/gigmarket-backend/internal/analytics"
	"github.com/angelmondragon/gigmarket-backend/internal/auth"
	"github.com/angelmondragon/gigmarket-backend/internal/badges"
	"github.com/angelmondragon/gigmarket-backend/internal/categories"
	"github.com/angelmondragon/gigmarket-backend/internal/chat"
	"github.com/angelmondragon/gigmarket-backend/internal/documents"
	"github.com/angelmondragon/gigmarket-backend/internal/emailtemplates"
	"github.com/angelmondragon/gigmarket-backend/internal/emergency"
	"github.com/angelmondragon/gigmarket-backend/internal/gigs"
	"github.com/angelmondragon/gigmarket-backend/internal/notifications"
	"github.com/angelmondragon/gigmarket-backend/internal/payments"
	"github.com/angelmondragon/gigmarket-backend/internal/plans"
	"github.com/angelmondragon/gigmarket-backend/internal/profiles"
	"github.com/angelmondragon/gigmarket-backend/internal/proposals"
	"github.com/angelmondragon/gigmarket-backend/internal/push"
	"github.com/angelmondragon/gigmarket-backend/internal/quotas"
	"github.com/angelmondragon/gigmarket-backend/internal/realtime"
	"github.com/angelmondragon/gigmarket-backend/internal/reviews"
	"github.com/angelmondragon/gigmarket-backend/internal/seo"
	"github.com/angelmondragon/gigmarket-backend/internal/users"
	stripewebhook "github.com/angelmondragon/gigmarket-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/gigmarket-backend/pkg/auth/session"
	"github.com/angelmondragon/gigmarket-backend/pkg/bigquery"
	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/email"
	"github.com/angelmondragon/gigmarket-backend/pkg/fcm"
	"github.com/angelmondragon/gigmarket-backend/pkg/genai"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/maps"
	"github.com/angelmondragon/gigmarket-backend/pkg/metrics"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
	"github.com/angelmondragon/gigmarket-backend/pkg/storage/gcs"
	"github.com/angelmondragon/gigmarket-backend/pkg/stripe"
)

const stripeWebhookScope = "stripe-webhook"

type appParams struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              *db.Client
	Redis           *redis.Client
	HTTPMetrics     *metrics.HTTPMetrics
	RealtimeMetrics *metrics.RealtimeMetrics
	MetricsHandler  http.Handler
}

// app holds the wired router dependencies plus the clients that need closing.
type app struct {
	Deps    routes.Deps
	closers []func() error
	logg    *logger.Logger
}

func (a *app) Close() {
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, a.closers[i]())
	}
	if errs != nil {
		a.logg.Error(context.Background(), "error closing clients", errs)
	}
}

func buildApp(ctx context.Context, p appParams) (*app, error) {
	cfg, logg, gdb := p.Config, p.Logger, p.DB.DB()
	out := &app{logg: logg}

	sessionManager, err := session.NewManager(p.Redis, cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, fmt.Errorf("stripe client: %w", err)
	}
	stripeGateway, err := stripe.NewGateway(stripeClient)
	if err != nil {
		return nil, fmt.Errorf("stripe gateway: %w", err)
	}

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	out.closers = append(out.closers, gcsClient.Close)

	mailer, err := email.NewClient(cfg.Sendgrid, logg)
	if err != nil {
		return nil, fmt.Errorf("email client: %w", err)
	}

	health := map[string]controllers.Pinger{
		"database": p.DB,
		"redis":    p.Redis,
		"gcs":      gcsClient,
	}

	// Optional providers stay nil interfaces when unavailable.
	var generator interface {
		GenerateJSON(ctx context.Context, system, prompt string) (string, error)
	}
	if cfg.FeatureFlags.AISuggestions {
		if client, err := genai.New(ctx, cfg.GenAI); err != nil {
			logg.Warn(ctx, "genai disabled: "+err.Error())
		} else {
			generator = client
		}
	}

	var mapsClient *maps.Client
	if client, err := maps.NewClient(cfg.GoogleMaps.APIKey); err != nil {
		logg.Warn(ctx, "google maps disabled: "+err.Error())
	} else {
		mapsClient = client
	}

	var pushSender *fcm.Client
	if cfg.FeatureFlags.PushEnabled {
		if client, err := fcm.NewClient(ctx, cfg.GCP, cfg.Push, logg); err != nil {
			logg.Warn(ctx, "push delivery disabled: "+err.Error())
		} else {
			pushSender = client
		}
	}

	var analyticsSvc analytics.Service
	if bq, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg); err != nil {
		logg.Warn(ctx, "bigquery disabled: "+err.Error())
	} else {
		out.closers = append(out.closers, bq.Close)
		health["bigquery"] = bq
		analyticsSvc, err = analytics.NewService(bq, cfg.GCP.ProjectID, cfg.BigQuery.Dataset, cfg.BigQuery.MarketplaceEventsTable, cfg.BigQuery.GigViewsTable)
		if err != nil {
			return nil, fmt.Errorf("analytics service: %w", err)
		}
	}

	hub, err := realtime.NewHub(realtime.HubParams{
		Bus:            realtime.NewRedisBus(p.Redis),
		Config:         cfg.Realtime,
		Logger:         logg,
		Metrics:        p.RealtimeMetrics,
		AllowedOrigins: cfg.App.AllowedOrigins(),
	})
	if err != nil {
		return nil, fmt.Errorf("realtime hub: %w", err)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), logg)
	userRepo := users.NewRepository(gdb)
	profileRepo := profiles.NewRepository(gdb)
	categoryRepo := categories.NewRepository(gdb)
	gigRepo := gigs.NewRepository(gdb)
	limits := quotas.NewLimits(cfg.Quota)

	authSvc, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		ProfileRepo:    profileRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	registerSvc, err := auth.NewRegisterService(auth.RegisterServiceParams{
		TxRunner:       p.DB,
		PasswordConfig: cfg.Password,
		Outbox:         outboxSvc,
	})
	if err != nil {
		return nil, fmt.Errorf("register service: %w", err)
	}

	catParams := categories.ServiceParams{Repo: categoryRepo, Logger: logg}
	if generator != nil {
		catParams.Generator = generator
	}
	categorySvc, err := categories.NewService(catParams)
	if err != nil {
		return nil, fmt.Errorf("category service: %w", err)
	}

	profileSvc, err := profiles.NewService(profiles.ServiceParams{Repo: profileRepo, Categories: categoryRepo})
	if err != nil {
		return nil, fmt.Errorf("profile service: %w", err)
	}

	quotaSvc, err := quotas.NewService(quotas.ServiceParams{
		TxRunner:    p.DB,
		Limits:      limits,
		UsageRepo:   quotas.NewRepository(gdb),
		ProfileRepo: profileRepo,
	})
	if err != nil {
		return nil, fmt.Errorf("quota service: %w", err)
	}

	gigSvc, err := gigs.NewService(gigs.ServiceParams{
		TxRunner:   p.DB,
		Repo:       gigRepo,
		Categories: categoryRepo,
		Outbox:     outboxSvc,
		Logger:     logg,
		Currency:   cfg.Payments.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("gig service: %w", err)
	}

	proposalSvc, err := proposals.NewService(proposals.ServiceParams{
		TxRunner: p.DB,
		Repo:     proposals.NewRepository(gdb),
		Gigs:     gigRepo,
		Profiles: profileRepo,
		Quotas:   quotaSvc,
		Outbox:   outboxSvc,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("proposal service: %w", err)
	}

	reviewSvc, err := reviews.NewService(reviews.ServiceParams{
		TxRunner: p.DB,
		Repo:     reviews.NewRepository(gdb),
		Profiles: profileRepo,
		Outbox:   outboxSvc,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("review service: %w", err)
	}

	badgeSvc, err := badges.NewService(badges.ServiceParams{
		TxRunner: p.DB,
		Repo:     badges.NewRepository(gdb),
		Outbox:   outboxSvc,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("badge service: %w", err)
	}

	chatSvc, err := chat.NewService(chat.ServiceParams{
		TxRunner: p.DB,
		Repo:     chat.NewRepository(gdb),
		Profiles: profileRepo,
		Gigs:     gigRepo,
		Quotas:   quotaSvc,
		Outbox:   outboxSvc,
		Realtime: hub,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("chat service: %w", err)
	}

	fees, err := payments.NewFeePolicy(cfg.Payments.PlatformFeePercent)
	if err != nil {
		return nil, fmt.Errorf("fee policy: %w", err)
	}
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		TxRunner:         p.DB,
		Repo:             payments.NewRepository(gdb),
		Gigs:             gigRepo,
		Profiles:         profileRepo,
		Gateway:          stripeGateway,
		Outbox:           outboxSvc,
		Logger:           logg,
		Fees:             fees,
		Currency:         cfg.Payments.Currency,
		AutoReleaseAfter: cfg.Payments.AutoReleaseAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("payment service: %w", err)
	}

	planSvc, err := plans.NewService(plans.ServiceParams{
		Profiles: profileRepo,
		Gateway:  stripeGateway,
		Limits:   limits,
		Stripe:   cfg.Stripe,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("plan service: %w", err)
	}

	pushParams := push.ServiceParams{
		Repo:       push.NewRepository(gdb),
		Enabled:    pushSender != nil,
		StaleAfter: cfg.Push.TokenStaleAfter,
		Logger:     logg,
	}
	if pushSender != nil {
		pushParams.Sender = pushSender
	}
	pushSvc, err := push.NewService(pushParams)
	if err != nil {
		return nil, fmt.Errorf("push service: %w", err)
	}

	notificationSvc, err := notifications.NewService(notifications.ServiceParams{
		Repo:     notifications.NewRepository(gdb),
		Realtime: hub,
		Push:     pushSvc,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("notification service: %w", err)
	}

	documentSvc, err := documents.NewService(documents.ServiceParams{
		TxRunner:       p.DB,
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
		return nil, fmt.Errorf("document service: %w", err)
	}

	locations, err := emergency.NewLocationStore(p.Redis, cfg.Emergency.LocationTTL)
	if err != nil {
		return nil, fmt.Errorf("location store: %w", err)
	}
	emergencyParams := emergency.ServiceParams{
		TxRunner:   p.DB,
		Repo:       emergency.NewRepository(gdb),
		Providers:  profileRepo,
		Categories: categoryRepo,
		Locations:  locations,
		Realtime:   hub,
		Outbox:     outboxSvc,
		Logger:     logg,
		Config:     cfg.Emergency,
	}
	if mapsClient != nil {
		emergencyParams.Routes = mapsClient
	}
	emergencySvc, err := emergency.NewService(emergencyParams)
	if err != nil {
		return nil, fmt.Errorf("emergency service: %w", err)
	}

	templateSvc, err := emailtemplates.NewService(emailtemplates.ServiceParams{
		Repo:   emailtemplates.NewRepository(gdb),
		Mailer: mailer,
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("email template service: %w", err)
	}

	adminSvc, err := admin.NewService(admin.ServiceParams{
		Users:    userRepo,
		Sessions: sessionManager,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("admin service: %w", err)
	}

	seoParams := seo.ServiceParams{
		Repo:       seo.NewRepository(gdb),
		Categories: categoryRepo,
		Logger:     logg,
	}
	if analyticsSvc != nil {
		seoParams.Views = analyticsSvc
	}
	seoSvc, err := seo.NewService(seoParams)
	if err != nil {
		return nil, fmt.Errorf("seo service: %w", err)
	}

	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Payments: paymentSvc,
		Plans:    planSvc,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("stripe webhook service: %w", err)
	}
	claims, err := idempotency.NewManager(p.Redis, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("stripe webhook guard: %w", err)
	}
	webhookGuard := claims.Scoped(stripeWebhookScope)

	hub.SetFrameHandler(socketFrames(chatSvc, emergencySvc))

	deps := routes.Deps{
		Sessions:       sessionManager,
		Redis:          p.Redis,
		Health:         health,
		Metrics:        p.HTTPMetrics,
		MetricsHandler: p.MetricsHandler,

		Auth:          authSvc,
		Register:      registerSvc,
		Categories:    categorySvc,
		Gigs:          gigSvc,
		Proposals:     proposalSvc,
		Profiles:      profileSvc,
		Quotas:        quotaSvc,
		Reviews:       reviewSvc,
		Badges:        badgeSvc,
		Chat:          chatSvc,
		Payments:      paymentSvc,
		Plans:         planSvc,
		Push:          pushSvc,
		Notifications: notificationSvc,
		Documents:     documentSvc,
		Emergency:     emergencySvc,
		Analytics:     analyticsSvc,
		Admin:         adminSvc,
		Templates:     templateSvc,
		SEO:           seoSvc,
		Hub:           hub,

		StripeWebhook:      webhookSvc,
		StripeSigner:       stripeClient,
		StripeWebhookGuard: webhookGuard,
	}
	if mapsClient != nil {
		deps.Address = address.NewService(mapsClient)
	}
	out.Deps = deps
	return out, nil
}

// socketFrames routes inbound socket frames to the services that own them.
func socketFrames(chatSvc chat.Service, emergencySvc emergency.Service) realtime.FrameFuncs {
	return realtime.FrameFuncs{
		OnTyping: func(ctx context.Context, userID uuid.UUID, frame realtime.TypingFrame) error {
			return chatSvc.Typing(ctx, userID, frame.ConversationID, frame.IsTyping)
		},
		OnLocation: func(ctx context.Context, userID uuid.UUID, frame realtime.LocationFrame) error {
			if frame.EmergencyID == uuid.Nil {
				return errors.New("emergency_id is required")
			}
			id := frame.EmergencyID
			return emergencySvc.UpdateLocation(ctx, userID, emergency.LocationRequest{
				EmergencyID: &id,
				Lat:         frame.Lat,
				Lng:         frame.Lng,
				Heading:     frame.Heading,
			})
		},
	}
}
