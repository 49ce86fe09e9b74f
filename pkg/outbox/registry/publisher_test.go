package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	gigID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.ProposalEvent{
		ProposalID: uuid.New(),
		GigID:      gigID,
		ProviderID: uuid.New(),
		PriceCents: 12000,
		Status:     enums.ProposalStatusSubmitted,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventProposalSubmitted,
		AggregateType: enums.AggregateProposal,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resolved.Descriptor.Topics) != 2 || resolved.Descriptor.Topics[0] != "domain-topic" || resolved.Descriptor.Topics[1] != "analytics-topic" {
		t.Fatalf("unexpected topics %v", resolved.Descriptor.Topics)
	}
	payload, ok := resolved.Payload.(*payloads.ProposalEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.GigID != gigID || payload.PriceCents != 12000 {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
	if resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope missing occurred_at")
	}
}

func TestEventRegistryTopicRouting(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := map[enums.OutboxEventType][]string{
		enums.EventGigViewed:             {"analytics-topic"},
		enums.EventMessageCreated:        {"domain-topic"},
		enums.EventPaymentReleased:       {"domain-topic", "analytics-topic"},
		enums.EventNotificationRequested: {"domain-topic"},
	}
	for eventType, want := range cases {
		desc, ok := reg.entries[eventType]
		if !ok {
			t.Fatalf("%s not registered", eventType)
		}
		if len(desc.Topics) != len(want) {
			t.Fatalf("%s: expected topics %v got %v", eventType, want, desc.Topics)
		}
		for i := range want {
			if desc.Topics[i] != want[i] {
				t.Fatalf("%s: expected topics %v got %v", eventType, want, desc.Topics)
			}
		}
	}
}

func TestEventRegistryCoversEveryEventType(t *testing.T) {
	reg := newTestEventRegistry(t)
	for _, eventType := range []enums.OutboxEventType{
		enums.EventUserRegistered, enums.EventGigCreated, enums.EventGigApproved, enums.EventGigRejected,
		enums.EventGigViewed, enums.EventGigCompleted, enums.EventProposalSubmitted, enums.EventProposalAccepted,
		enums.EventMessageCreated, enums.EventPaymentHeld, enums.EventPaymentReleased, enums.EventPaymentRefunded,
		enums.EventPaymentFailed, enums.EventReviewCreated, enums.EventBadgeAwarded, enums.EventDocumentReviewed,
		enums.EventEmergencyRequested, enums.EventEmergencyStatusChanged, enums.EventNotificationRequested,
		enums.EventEmailRequested,
	} {
		if _, ok := reg.entries[eventType]; !ok {
			t.Fatalf("%s missing from registry", eventType)
		}
	}
}

func TestEventRegistryDecoders(t *testing.T) {
	reg := newTestEventRegistry(t)
	out, err := reg.Decoders().Decode(enums.EventBadgeAwarded, 1, json.RawMessage(`{"profile_id":"`+uuid.NewString()+`","code":"top_rated"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	badge, ok := out.(*payloads.BadgeAwardedEvent)
	if !ok || badge.Code != enums.BadgeTopRated {
		t.Fatalf("unexpected decoded payload %#v", out)
	}
}

func TestEventRegistryResolveUnknownVersion(t *testing.T) {
	reg := newTestEventRegistry(t)

	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version: 9,
		EventID: uuid.NewString(),
		Data:    json.RawMessage(`{"gig_id":"` + uuid.NewString() + `"}`),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	_, err = reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventGigCreated,
		AggregateType: enums.AggregateGig,
		AggregateID:   uuid.New(),
		Payload:       envelope,
	})
	if !errors.Is(err, ErrNoDecoder) {
		t.Fatalf("expected ErrNoDecoder, got %v", err)
	}
	if !errors.As(err, new(NonRetryableError)) {
		t.Fatalf("expected non-retryable error, got %T", err)
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{DomainTopic: "domain"}); err == nil {
		t.Fatalf("expected missing analytics topic to fail")
	}
}

func TestEventRegistryResolveUnknownEvent(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.OutboxEventType("ad_clicked"),
		AggregateType: enums.AggregateGig,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
	}

	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %T", err)
	}
}

func TestEventRegistryResolveAggregateMismatch(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventGigCreated,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"gig_id":"00000000-0000-0000-0000-000000000000"}`)),
	}

	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error")
	}
}

func TestEventRegistryResolveMissingAggregateID(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventGigCreated,
		AggregateType: enums.AggregateGig,
		AggregateID:   uuid.Nil,
		Payload:       mustEnvelope(t, []byte(`{}`)),
	}

	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error")
	}
}

func TestEventRegistryResolveNullPayload(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventGigCreated,
		AggregateType: enums.AggregateGig,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte("null")),
	}

	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	cfg := config.PubSubConfig{
		DomainTopic:    "domain-topic",
		AnalyticsTopic: "analytics-topic",
	}
	reg, err := NewEventRegistry(cfg)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
