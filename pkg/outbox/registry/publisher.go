package registry

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
)

// route says which Pub/Sub topics an event fans out to.
type route uint8

const (
	toDomain route = 1 << iota
	toAnalytics
)

type catalogEntry struct {
	eventType enums.OutboxEventType
	aggregate enums.OutboxAggregateType
	route     route
	payload   func() any
}

// catalog lists every event producers may emit. Marketplace facts that feed
// reporting are mirrored to the analytics topic; page views go only there.
var catalog = []catalogEntry{
	{enums.EventUserRegistered, enums.AggregateUser, toDomain | toAnalytics, func() any { return &payloads.UserRegisteredEvent{} }},

	{enums.EventGigCreated, enums.AggregateGig, toDomain | toAnalytics, func() any { return &payloads.GigEvent{} }},
	{enums.EventGigApproved, enums.AggregateGig, toDomain, func() any { return &payloads.GigEvent{} }},
	{enums.EventGigRejected, enums.AggregateGig, toDomain, func() any { return &payloads.GigEvent{} }},
	{enums.EventGigCompleted, enums.AggregateGig, toDomain | toAnalytics, func() any { return &payloads.GigEvent{} }},
	{enums.EventGigViewed, enums.AggregateGig, toAnalytics, func() any { return &payloads.GigViewedEvent{} }},

	{enums.EventProposalSubmitted, enums.AggregateProposal, toDomain | toAnalytics, func() any { return &payloads.ProposalEvent{} }},
	{enums.EventProposalAccepted, enums.AggregateProposal, toDomain, func() any { return &payloads.ProposalEvent{} }},

	{enums.EventMessageCreated, enums.AggregateConversation, toDomain, func() any { return &payloads.MessageCreatedEvent{} }},

	{enums.EventPaymentHeld, enums.AggregatePayment, toDomain | toAnalytics, func() any { return &payloads.PaymentEvent{} }},
	{enums.EventPaymentReleased, enums.AggregatePayment, toDomain | toAnalytics, func() any { return &payloads.PaymentEvent{} }},
	{enums.EventPaymentRefunded, enums.AggregatePayment, toDomain | toAnalytics, func() any { return &payloads.PaymentEvent{} }},
	{enums.EventPaymentFailed, enums.AggregatePayment, toDomain | toAnalytics, func() any { return &payloads.PaymentEvent{} }},

	{enums.EventReviewCreated, enums.AggregateReview, toDomain | toAnalytics, func() any { return &payloads.ReviewCreatedEvent{} }},
	{enums.EventBadgeAwarded, enums.AggregateBadge, toDomain, func() any { return &payloads.BadgeAwardedEvent{} }},
	{enums.EventDocumentReviewed, enums.AggregateDocument, toDomain, func() any { return &payloads.DocumentReviewedEvent{} }},

	{enums.EventEmergencyRequested, enums.AggregateEmergency, toDomain | toAnalytics, func() any { return &payloads.EmergencyRequestedEvent{} }},
	{enums.EventEmergencyStatusChanged, enums.AggregateEmergency, toDomain, func() any { return &payloads.EmergencyStatusChangedEvent{} }},

	{enums.EventNotificationRequested, enums.AggregateNotification, toDomain, func() any { return &payloads.NotificationRequestedEvent{} }},
	{enums.EventEmailRequested, enums.AggregateNotification, toDomain, func() any { return &payloads.EmailRequestedEvent{} }},
}

// EventDescriptor is the resolved routing for one event type.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topics         []string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row after validation and payload decoding.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry validates outbox rows on the producer side and supplies the
// matching decoders to consumers.
type EventRegistry struct {
	entries  map[enums.OutboxEventType]EventDescriptor
	decoders *Decoders
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.DomainTopic == "":
		return nil, errors.New("domain topic is required")
	case cfg.AnalyticsTopic == "":
		return nil, errors.New("analytics topic is required")
	}

	reg := &EventRegistry{
		entries:  make(map[enums.OutboxEventType]EventDescriptor, len(catalog)),
		decoders: NewDecoders(),
	}
	for _, entry := range catalog {
		var topics []string
		if entry.route&toDomain != 0 {
			topics = append(topics, cfg.DomainTopic)
		}
		if entry.route&toAnalytics != 0 {
			topics = append(topics, cfg.AnalyticsTopic)
		}
		reg.entries[entry.eventType] = EventDescriptor{
			EventType:      entry.eventType,
			AggregateType:  entry.aggregate,
			Topics:         topics,
			PayloadFactory: entry.payload,
		}
		reg.decoders.Register(entry.eventType, outbox.CurrentVersion, JSONDecoder(entry.payload))
	}
	return reg, nil
}

// Decoders returns the consumer-side decoders for every cataloged event.
func (r *EventRegistry) Decoders() *Decoders {
	return r.decoders
}

// Resolve checks the row against the catalog and decodes its payload. Every
// failure is non-retryable: the row will never become valid.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: %s expects %s, row has %s", event.EventType, desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload, err := r.decoders.Decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
