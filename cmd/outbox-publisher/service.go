package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/registry"
)

const (
	fallbackBatchSize   = 50
	fallbackPoll        = 500 * time.Millisecond
	fallbackMaxAttempts = 10
	publishTimeout      = 15 * time.Second
	idleCeiling         = 10 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// publisher is the slice of *pubsub.Publisher the relay uses. ResumePublish
// unblocks an ordering key after a failed publish.
type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func(topic string) publisher

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
}

// Service relays committed outbox rows to Pub/Sub. Each poll claims a batch
// under SKIP LOCKED, publishes it, and settles every row in the same
// transaction: published, retried later, or moved to the dead letter table.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	pubsub      pubSubClient
	repo        outboxRepository
	registry    registryResolver
	dlq         dlqRepository
	publisherOf publisherFactory
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			if pub := params.PubSub.Publisher(topic); pub != nil {
				return gcpPublisher{pub}
			}
			return nil
		}
	}

	cfg := params.Config.Outbox
	return &Service{
		logg:        params.Logger,
		db:          params.DB,
		pubsub:      params.PubSub,
		repo:        params.Repository,
		registry:    params.Registry,
		dlq:         params.DLQRepository,
		publisherOf: factory,
		batchSize:   positiveOr(cfg.BatchSize, fallbackBatchSize),
		maxAttempts: positiveOr(cfg.MaxAttempts, fallbackMaxAttempts),
		poll:        time.Duration(positiveOr(cfg.PollIntervalMS, int(fallbackPoll/time.Millisecond))) * time.Millisecond,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx ends. An empty poll or a failed batch doubles the wait
// up to idleCeiling; a productive batch polls again at once.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "pubsub": s.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := s.poll
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		claimed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			wait = min(wait*2, idleCeiling)
		case claimed:
			wait = s.poll
			continue
		default:
			wait = s.poll
		}

		timer := time.NewTimer(wait + time.Duration(rand.Int64N(int64(jitterWindow))))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDeadLetter
)

// outcome is the settlement decided for one claimed row.
type outcome struct {
	verdict verdict
	reason  enums.OutboxDLQErrorReason
	err     error
	topics  []string
}

// settleOutcome decides what happens to a row after its publish attempt.
// Resolve errors and NonRetryableError go straight to the dead letter table;
// anything else is retried until maxAttempts.
func settleOutcome(event models.OutboxEvent, topics []string, err error, maxAttempts int) outcome {
	if err == nil {
		return outcome{verdict: verdictPublished, topics: topics}
	}
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return outcome{verdict: verdictDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err, topics: topics}
	}
	if event.AttemptCount+1 >= maxAttempts {
		return outcome{
			verdict: verdictDeadLetter,
			reason:  enums.OutboxDLQReasonMaxAttempts,
			err:     fmt.Errorf("max publish attempts reached: %w", err),
			topics:  topics,
		}
	}
	return outcome{verdict: verdictRetry, err: err, topics: topics}
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events) > 0

		for _, event := range events {
			var topics []string
			resolved, err := s.registry.Resolve(event)
			if err == nil {
				topics = resolved.Descriptor.Topics
				err = s.publish(ctx, event, resolved)
			} else if !errors.As(err, new(registry.NonRetryableError)) {
				err = registry.NewNonRetryableError(err)
			}
			if err := s.settle(ctx, tx, event, resolved, settleOutcome(event, topics, err, s.maxAttempts)); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, resolved *registry.ResolvedEvent, out outcome) error {
	logCtx := s.logg.WithFields(ctx, logFields(event, resolved, out))

	switch out.verdict {
	case verdictPublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(logCtx, "outbox event published")
	case verdictRetry:
		s.logg.Warn(s.logg.WithField(logCtx, "error", out.err.Error()), "outbox publish failed, will retry")
		if err := s.repo.MarkFailedTx(tx, event.ID, out.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	case verdictDeadLetter:
		s.logg.Warn(s.logg.WithField(logCtx, "error", out.err.Error()), "outbox event dead-lettered")
		msg := out.err.Error()
		entry := models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   out.reason,
			ErrorMessage:  &msg,
			AttemptCount:  event.AttemptCount,
			FailedAt:      time.Now().UTC(),
		}
		if err := s.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, event.ID, out.err, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
	}
	return nil
}

// publish fans the row out to every topic concurrently. The aggregate id is
// the ordering key so a gig's events are delivered in commit order. Any topic
// failing fails the row; consumers dedupe on event_id when it is retried.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topics := resolved.Descriptor.Topics
	if len(topics) == 0 {
		return registry.NewNonRetryableError(fmt.Errorf("no topics configured for %s", event.EventType))
	}

	pubs := make([]publisher, len(topics))
	for i, topic := range topics {
		if pubs[i] = s.publisherOf(topic); pubs[i] == nil {
			return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
		}
	}

	orderingKey := event.AggregateID.String()
	msg := &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: orderingKey,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   orderingKey,
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	var g errgroup.Group
	for i, pub := range pubs {
		g.Go(func() error {
			result := pub.Publish(publishCtx, msg)
			if result == nil {
				return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topics[i]))
			}
			if _, err := result.Get(publishCtx); err != nil {
				pub.ResumePublish(orderingKey)
				return fmt.Errorf("publish to %s: %w", topics[i], err)
			}
			return nil
		})
	}
	return g.Wait()
}

func logFields(event models.OutboxEvent, resolved *registry.ResolvedEvent, out outcome) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if out.verdict != verdictPublished {
		fields["attempt_count"] = event.AttemptCount + 1
	}
	if out.reason != "" {
		fields["error_reason"] = out.reason
	}
	if resolved != nil && resolved.Envelope.EventID != "" {
		fields["event_id"] = resolved.Envelope.EventID
		fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if len(out.topics) > 0 {
		fields["topic"] = strings.Join(out.topics, ",")
	}
	return fields
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
