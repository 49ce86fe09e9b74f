package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/gigmarket-backend/internal/badges"
	"github.com/angelmondragon/gigmarket-backend/internal/consumers/domain"
	"github.com/angelmondragon/gigmarket-backend/internal/emailtemplates"
	"github.com/angelmondragon/gigmarket-backend/internal/notifications"
	"github.com/angelmondragon/gigmarket-backend/internal/push"
	"github.com/angelmondragon/gigmarket-backend/internal/realtime"
	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/email"
	"github.com/angelmondragon/gigmarket-backend/pkg/fcm"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/registry"
	"github.com/angelmondragon/gigmarket-backend/pkg/pubsub"
	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
)

type ServiceParams struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Redis  *redis.Client
	PubSub *pubsub.Client
	Mailer *email.Client
	// Push is optional; without it notifications stay in-app and realtime.
	Push *fcm.Client
}

// Service consumes domain events and fans them out to notifications, badges
// and transactional mail.
type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	db       *db.Client
	redis    *redis.Client
	pubsub   *pubsub.Client
	consumer *domain.Consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Mailer == nil {
		return nil, errors.New("email client is required")
	}

	handlers, err := buildHandlers(params)
	if err != nil {
		return nil, err
	}

	subscription := params.PubSub.DomainSubscription()
	if subscription == nil {
		return nil, errors.New("domain subscription not configured")
	}
	events, err := registry.NewEventRegistry(params.Config.PubSub)
	if err != nil {
		return nil, fmt.Errorf("event registry: %w", err)
	}
	manager, err := idempotency.NewManager(params.Redis, params.Config.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("idempotency manager: %w", err)
	}
	consumer, err := domain.NewConsumer(domain.ConsumerParams{
		Subscription: subscription,
		Decoders:     events.Decoders(),
		Idempotency:  manager,
		Handlers:     handlers,
		Logger:       params.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("domain consumer: %w", err)
	}

	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		db:       params.DB,
		redis:    params.Redis,
		pubsub:   params.PubSub,
		consumer: consumer,
	}, nil
}

func buildHandlers(params ServiceParams) ([]domain.Handler, error) {
	gdb, logg := params.DB.DB(), params.Logger

	pushParams := push.ServiceParams{
		Repo:       push.NewRepository(gdb),
		Enabled:    params.Push != nil,
		StaleAfter: params.Config.Push.TokenStaleAfter,
		Logger:     logg,
	}
	if params.Push != nil {
		pushParams.Sender = params.Push
	}
	pushSvc, err := push.NewService(pushParams)
	if err != nil {
		return nil, fmt.Errorf("push service: %w", err)
	}

	notificationSvc, err := notifications.NewService(notifications.ServiceParams{
		Repo:     notifications.NewRepository(gdb),
		Realtime: realtime.NewPublisher(realtime.NewRedisBus(params.Redis)),
		Push:     pushSvc,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("notification service: %w", err)
	}
	notificationRouter, err := notifications.NewRouter(notificationSvc)
	if err != nil {
		return nil, fmt.Errorf("notification router: %w", err)
	}

	badgeSvc, err := badges.NewService(badges.ServiceParams{
		TxRunner: params.DB,
		Repo:     badges.NewRepository(gdb),
		Outbox:   outbox.NewService(outbox.NewRepository(gdb), logg),
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("badge service: %w", err)
	}
	badgeHandler, err := badges.NewEventHandler(badgeSvc)
	if err != nil {
		return nil, fmt.Errorf("badge handler: %w", err)
	}

	templateSvc, err := emailtemplates.NewService(emailtemplates.ServiceParams{
		Repo:   emailtemplates.NewRepository(gdb),
		Mailer: params.Mailer,
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("email template service: %w", err)
	}
	emailHandler, err := emailtemplates.NewEventHandler(templateSvc, logg)
	if err != nil {
		return nil, fmt.Errorf("email handler: %w", err)
	}

	return []domain.Handler{notificationRouter, badgeHandler, emailHandler}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.consumer.Run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "domain consumer stopped unexpectedly", err)
			}
			return err
		case <-ticker.C:
			s.logg.Debug(ctx, "worker.heartbeat")
		}
	}
}
