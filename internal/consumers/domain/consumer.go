package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
)

// Event is a decoded domain event handed to every handler.
type Event struct {
	ID         uuid.UUID
	Type       enums.OutboxEventType
	OccurredAt time.Time
	Actor      *outbox.ActorRef
	// Payload is a pointer to the registered payloads struct for Type.
	Payload any
}

// Handler reacts to domain events. Name scopes its deduplication, so a
// redelivered event only re-runs the handlers that failed.
type Handler interface {
	Name() string
	Handle(ctx context.Context, event Event) error
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type ConsumerParams struct {
	Subscription receiver
	Decoders     payloadDecoder
	Idempotency  idempotencyChecker
	Handlers     []Handler
	Logger       *logger.Logger
}

// Consumer drains the domain subscription and fans each event out to handlers.
type Consumer struct {
	subscription receiver
	decoders     payloadDecoder
	idempotency  idempotencyChecker
	handlers     []Handler
	logg         *logger.Logger
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	switch {
	case params.Subscription == nil:
		return nil, fmt.Errorf("domain subscription required")
	case params.Decoders == nil:
		return nil, fmt.Errorf("payload decoders required")
	case params.Idempotency == nil:
		return nil, fmt.Errorf("idempotency manager required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case len(params.Handlers) == 0:
		return nil, fmt.Errorf("at least one handler required")
	}
	return &Consumer{
		subscription: params.Subscription,
		decoders:     params.Decoders,
		idempotency:  params.Idempotency,
		handlers:     params.Handlers,
		logg:         params.Logger,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether the message should be acked.
func (c *Consumer) process(ctx context.Context, messageID string, attributes map[string]string, data []byte) bool {
	eventType := enums.OutboxEventType(attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	envelope, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "domain.envelope_invalid", err)
		return true
	}
	eventID, err := envelope.ID()
	if err != nil {
		c.logg.Error(logCtx, "domain.event_id_invalid", err)
		return true
	}
	logCtx = c.logg.WithEvent(logCtx, envelope.EventID, string(eventType))

	payload, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "domain.event_undecodable")
		return true
	}

	event := Event{
		ID:         eventID,
		Type:       eventType,
		OccurredAt: envelope.OccurredAt,
		Actor:      envelope.Actor,
		Payload:    payload,
	}

	ack := true
	for _, h := range c.handlers {
		if !c.dispatch(ctx, logCtx, h, event) {
			ack = false
		}
	}
	return ack
}

func (c *Consumer) dispatch(ctx, logCtx context.Context, h Handler, event Event) bool {
	name := "domain:" + h.Name()
	handlerCtx := c.logg.WithField(logCtx, "handler", h.Name())

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, name, event.ID)
	if err != nil {
		c.logg.Error(handlerCtx, "domain.idempotency_failed", err)
		return false
	}
	if already {
		c.logg.Debug(handlerCtx, "domain.event_already_processed")
		return true
	}

	if err := h.Handle(ctx, event); err != nil {
		c.logg.Error(handlerCtx, "domain.handler_failed", err)
		if delErr := c.idempotency.Delete(ctx, name, event.ID); delErr != nil {
			c.logg.Error(handlerCtx, "domain.idempotency_release_failed", delErr)
		}
		return false
	}
	return true
}
