// Package worker consumes the analytics subscription.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/internal/analytics/router"
	"github.com/angelmondragon/gigmarket-backend/internal/analytics/types"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
)

const consumerName = "analytics"

// Handler processes one decoded analytics envelope.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type dedupe interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// flusher is implemented by buffering sinks that must drain on shutdown.
type flusher interface {
	Flush(ctx context.Context) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type Params struct {
	Subscription *gcppubsub.Subscriber
	Handler      Handler
	Dedupe       dedupe
	Logger       *logger.Logger
	// Flusher is optional.
	Flusher flusher
}

// Service acks every message it either handled or can never handle, and
// nacks only on transient failures so Pub/Sub redelivers.
type Service struct {
	sub     receiver
	handler Handler
	dedupe  dedupe
	flusher flusher
	logg    *logger.Logger

	acked  atomic.Int64
	nacked atomic.Int64
}

func NewService(p Params) (*Service, error) {
	switch {
	case p.Subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case p.Handler == nil:
		return nil, errors.New("analytics handler is required")
	case p.Dedupe == nil:
		return nil, errors.New("idempotency manager is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	}
	svc := &Service{sub: p.Subscription, handler: p.Handler, dedupe: p.Dedupe, logg: p.Logger}
	if p.Flusher != nil {
		svc.flusher = p.Flusher
	}
	return svc, nil
}

type disposition bool

const (
	ack  disposition = false
	nack disposition = true
)

// Run receives until ctx ends, then drains any buffered rows.
func (s *Service) Run(ctx context.Context) error {
	err := s.sub.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) == nack {
			s.nacked.Add(1)
			msg.Nack()
			return
		}
		s.acked.Add(1)
		msg.Ack()
	})

	if s.flusher != nil {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if ferr := s.flusher.Flush(flushCtx); ferr != nil {
			s.logg.Error(ctx, "flush analytics rows on shutdown", ferr)
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"acked":  s.acked.Load(),
		"nacked": s.nacked.Load(),
	}), "analytics receive loop stopped")
	return err
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) disposition {
	logCtx := s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := decodeEnvelope(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "dropping malformed analytics message")
		return ack
	}
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event_id":       envelope.EventID,
		"event_type":     envelope.EventType,
		"aggregate_type": envelope.AggregateType,
		"aggregate_id":   envelope.AggregateID,
		"occurred_at":    envelope.OccurredAt.Format(time.RFC3339Nano),
	})

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "dropping analytics message with non-uuid event id")
		return ack
	}

	seen, err := s.dedupe.CheckAndMarkProcessed(logCtx, consumerName, eventID)
	switch {
	case err != nil:
		s.logg.Error(logCtx, "idempotency check failed", err)
		return nack
	case seen:
		s.logg.Debug(logCtx, "duplicate analytics event skipped")
		return ack
	}

	err = s.handler.Handle(logCtx, envelope)
	switch {
	case err == nil:
		s.logg.Debug(logCtx, "analytics event recorded")
		return ack
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Warn(logCtx, "analytics event type not routed")
		return ack
	case errors.Is(err, types.ErrMalformedPayload):
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "dropping analytics event with malformed payload")
		return ack
	default:
		s.logg.Error(logCtx, "analytics handler failed", err)
		if derr := s.dedupe.Delete(logCtx, consumerName, eventID); derr != nil {
			s.logg.Error(logCtx, "release idempotency key", derr)
		}
		return nack
	}
}

// decodeEnvelope combines the stored outbox envelope in the message body
// with the routing attributes the relay sets. The body must carry data and
// only analytics event types are accepted. Envelope metadata is optional:
// the event id falls back to the attribute and occurred_at to created_at.
func decodeEnvelope(msg *gcppubsub.Message) (types.Envelope, error) {
	stored, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		return types.Envelope{}, err
	}
	attr := func(key string) string { return strings.TrimSpace(msg.Attributes[key]) }

	eventType, err := enums.ParseAnalyticsEventType(attr("event_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := attr("aggregate_id")
	if aggregateID == "" {
		return types.Envelope{}, errors.New("aggregate_id missing")
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = attr("event_id")
	}
	if eventID == "" {
		return types.Envelope{}, errors.New("event_id missing")
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		occurredAt, _ = time.Parse(time.RFC3339Nano, attr("created_at"))
	}

	return types.Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       stored.Data,
	}, nil
}
