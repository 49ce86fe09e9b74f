package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gigmarket-backend/internal/analytics/router"
	"github.com/angelmondragon/gigmarket-backend/internal/analytics/types"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
)

func TestDecodeEnvelope(t *testing.T) {
	occurred := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := buildMessage(outbox.PayloadEnvelope{
		EventID:    "evt-1",
		OccurredAt: occurred,
		Data:       json.RawMessage(`{"gig_id":"gig-1"}`),
	}, map[string]string{
		"event_type":     "gig_created",
		"aggregate_type": " gig ",
		"aggregate_id":   "gig-1",
	})

	env, err := decodeEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, enums.AnalyticsEventGigCreated, env.EventType)
	assert.Equal(t, enums.AggregateGig, env.AggregateType)
	assert.Equal(t, "gig-1", env.AggregateID)
	assert.Equal(t, "evt-1", env.EventID)
	assert.Equal(t, occurred, env.OccurredAt)
	assert.JSONEq(t, `{"gig_id":"gig-1"}`, string(env.Payload))
}

func TestDecodeEnvelopeFallsBackToAttributes(t *testing.T) {
	created := time.Date(2025, 5, 2, 8, 30, 0, 0, time.UTC)
	id := uuid.NewString()
	msg := buildMessage(outbox.PayloadEnvelope{Data: json.RawMessage(`{"gig_id":"gig-9"}`)}, map[string]string{
		"event_type":     "gig_viewed",
		"aggregate_type": "gig",
		"aggregate_id":   "gig-9",
		"event_id":       id,
		"created_at":     created.Format(time.RFC3339Nano),
	})

	env, err := decodeEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, id, env.EventID)
	assert.Equal(t, created, env.OccurredAt)
}

func TestDecodeEnvelopeRejects(t *testing.T) {
	data := json.RawMessage(`{"gig_id":"g"}`)
	cases := map[string]*gcppubsub.Message{
		"bad json": {Data: []byte("invalid json")},
		"no data": buildMessage(outbox.PayloadEnvelope{EventID: uuid.NewString()}, map[string]string{
			"event_type": "gig_viewed", "aggregate_type": "gig", "aggregate_id": "g",
		}),
		"domain-only event": buildMessage(outbox.PayloadEnvelope{EventID: uuid.NewString(), Data: data}, map[string]string{
			"event_type": "message_created", "aggregate_type": "conversation", "aggregate_id": "c-1",
		}),
		"missing aggregate id": buildMessage(outbox.PayloadEnvelope{EventID: uuid.NewString(), Data: data}, map[string]string{
			"event_type": "gig_viewed", "aggregate_type": "gig",
		}),
		"missing event id": buildMessage(outbox.PayloadEnvelope{Data: data}, map[string]string{
			"event_type": "gig_viewed", "aggregate_type": "gig", "aggregate_id": "g",
		}),
	}
	for name, msg := range cases {
		_, err := decodeEnvelope(msg)
		assert.Error(t, err, name)
	}
}

func TestProcessSkipsDuplicates(t *testing.T) {
	dedupe := &stubDedupe{seen: true}
	handler := &stubHandler{}
	svc := newTestService(handler, dedupe)

	assert.Equal(t, ack, svc.process(context.Background(), analyticsMessage()))
	assert.False(t, handler.called)
	assert.Len(t, dedupe.checked, 1)
}

func TestProcessHandlerErrorReleasesKeyAndNacks(t *testing.T) {
	dedupe := &stubDedupe{}
	handler := &stubHandler{err: errors.New("bigquery down")}
	svc := newTestService(handler, dedupe)

	assert.Equal(t, nack, svc.process(context.Background(), analyticsMessage()))
	assert.True(t, handler.called)
	assert.Len(t, dedupe.deleted, 1)
}

func TestProcessDedupeErrorNacks(t *testing.T) {
	handler := &stubHandler{}
	svc := newTestService(handler, &stubDedupe{err: errors.New("redis down")})

	assert.Equal(t, nack, svc.process(context.Background(), analyticsMessage()))
	assert.False(t, handler.called)
}

func TestProcessMalformedMessageAcks(t *testing.T) {
	dedupe := &stubDedupe{}
	handler := &stubHandler{}
	svc := newTestService(handler, dedupe)

	assert.Equal(t, ack, svc.process(context.Background(), &gcppubsub.Message{Data: []byte("{")}))
	assert.False(t, handler.called)
	assert.Empty(t, dedupe.checked)
}

func TestProcessUnsupportedEventAcks(t *testing.T) {
	dedupe := &stubDedupe{}
	svc := newTestService(&stubHandler{err: router.ErrUnsupportedEventType}, dedupe)

	assert.Equal(t, ack, svc.process(context.Background(), analyticsMessage()))
	assert.Empty(t, dedupe.deleted)
}

func TestProcessMalformedPayloadAcks(t *testing.T) {
	dedupe := &stubDedupe{}
	err := fmt.Errorf("decode gig_viewed payload: %w", types.ErrMalformedPayload)
	svc := newTestService(&stubHandler{err: err}, dedupe)

	assert.Equal(t, ack, svc.process(context.Background(), analyticsMessage()))
	assert.Empty(t, dedupe.deleted)
}

func TestRunFlushesOnShutdown(t *testing.T) {
	sink := &stubFlusher{}
	svc := newTestService(&stubHandler{}, &stubDedupe{})
	svc.sub = stubReceiver{}
	svc.flusher = sink

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, svc.Run(ctx))
	assert.True(t, sink.flushed)
}

func analyticsMessage() *gcppubsub.Message {
	return buildMessage(outbox.PayloadEnvelope{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"gig_id":"abc-123"}`),
	}, map[string]string{
		"event_type":     "gig_viewed",
		"aggregate_type": "gig",
		"aggregate_id":   "abc-123",
	})
}

func buildMessage(payload outbox.PayloadEnvelope, attrs map[string]string) *gcppubsub.Message {
	data, _ := json.Marshal(payload)
	return &gcppubsub.Message{ID: "msg-1", Data: data, Attributes: attrs}
}

func newTestService(handler Handler, dedupe *stubDedupe) *Service {
	return &Service{
		handler: handler,
		dedupe:  dedupe,
		logg:    logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard}),
	}
}

type stubHandler struct {
	called bool
	err    error
}

func (h *stubHandler) Handle(context.Context, types.Envelope) error {
	h.called = true
	return h.err
}

type stubDedupe struct {
	seen    bool
	err     error
	checked []uuid.UUID
	deleted []uuid.UUID
}

func (s *stubDedupe) CheckAndMarkProcessed(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	s.checked = append(s.checked, eventID)
	return s.seen, s.err
}

func (s *stubDedupe) Delete(_ context.Context, _ string, eventID uuid.UUID) error {
	s.deleted = append(s.deleted, eventID)
	return nil
}

type stubReceiver struct{}

func (stubReceiver) Receive(ctx context.Context, _ func(context.Context, *gcppubsub.Message)) error {
	<-ctx.Done()
	return nil
}

type stubFlusher struct {
	flushed bool
}

func (f *stubFlusher) Flush(context.Context) error {
	f.flushed = true
	return nil
}
