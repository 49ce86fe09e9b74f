package domain

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/registry"
)

type memoryIdempotency struct {
	seen map[string]bool
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{seen: map[string]bool{}}
}

func (m *memoryIdempotency) CheckAndMarkProcessed(_ context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key := consumer + ":" + eventID.String()
	if m.seen[key] {
		return true, nil
	}
	m.seen[key] = true
	return false, nil
}

func (m *memoryIdempotency) Delete(_ context.Context, consumer string, eventID uuid.UUID) error {
	delete(m.seen, consumer+":"+eventID.String())
	return nil
}

type recordingHandler struct {
	name   string
	events []Event
	err    error
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) Handle(_ context.Context, event Event) error {
	h.events = append(h.events, event)
	return h.err
}

func newTestConsumer(t *testing.T, handlers ...Handler) (*Consumer, *memoryIdempotency) {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.PubSubConfig{DomainTopic: "domain", AnalyticsTopic: "analytics"})
	require.NoError(t, err)
	idem := newMemoryIdempotency()
	c := &Consumer{
		decoders:    reg.Decoders(),
		idempotency: idem,
		handlers:    handlers,
		logg:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	}
	return c, idem
}

func reviewMessage(t *testing.T, eventID uuid.UUID) []byte {
	t.Helper()
	data, err := json.Marshal(payloads.ReviewCreatedEvent{ReviewID: uuid.New(), RevieweeID: uuid.New(), Rating: 5})
	require.NoError(t, err)
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return raw
}

func TestProcessDecodesTypedPayload(t *testing.T) {
	handler := &recordingHandler{name: "badges"}
	c, _ := newTestConsumer(t, handler)

	ack := c.process(context.Background(), "m1", map[string]string{"event_type": string(enums.EventReviewCreated)}, reviewMessage(t, uuid.New()))
	require.True(t, ack)
	require.Len(t, handler.events, 1)
	payload, ok := handler.events[0].Payload.(*payloads.ReviewCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, 5, payload.Rating)
}

func TestProcessRetriesOnlyFailedHandler(t *testing.T) {
	ok := &recordingHandler{name: "notifications"}
	failing := &recordingHandler{name: "email", err: errors.New("sendgrid down")}
	c, _ := newTestConsumer(t, ok, failing)
	eventID := uuid.New()
	attrs := map[string]string{"event_type": string(enums.EventReviewCreated)}

	assert.False(t, c.process(context.Background(), "m1", attrs, reviewMessage(t, eventID)))

	failing.err = nil
	assert.True(t, c.process(context.Background(), "m1", attrs, reviewMessage(t, eventID)))
	assert.Len(t, ok.events, 1, "succeeded handler is not re-run on redelivery")
	assert.Len(t, failing.events, 2)
}

func TestProcessAcksPoisonMessages(t *testing.T) {
	handler := &recordingHandler{name: "notifications"}
	c, _ := newTestConsumer(t, handler)

	assert.True(t, c.process(context.Background(), "m1", nil, []byte("not json")))
	assert.True(t, c.process(context.Background(), "m2", map[string]string{"event_type": "unknown_event"}, reviewMessage(t, uuid.New())))
	assert.Empty(t, handler.events)
}

func TestNewConsumerValidates(t *testing.T) {
	_, err := NewConsumer(ConsumerParams{})
	assert.Error(t, err)
}
