package badges

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gigmarket-backend/internal/consumers/domain"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
)

type recordingEvaluator struct {
	profiles []uuid.UUID
	err      error
}

func (r *recordingEvaluator) Evaluate(_ context.Context, profileID uuid.UUID) ([]enums.BadgeCode, error) {
	r.profiles = append(r.profiles, profileID)
	return nil, r.err
}

func TestEventHandlerEvaluatesAffectedProfiles(t *testing.T) {
	provider := uuid.New()
	cases := []struct {
		name  string
		event domain.Event
		want  []uuid.UUID
	}{
		{"review", domain.Event{Type: enums.EventReviewCreated, Payload: &payloads.ReviewCreatedEvent{RevieweeID: provider}}, []uuid.UUID{provider}},
		{"gig completed", domain.Event{Type: enums.EventGigCompleted, Payload: &payloads.GigEvent{ProviderID: &provider}}, []uuid.UUID{provider}},
		{"gig approved", domain.Event{Type: enums.EventGigApproved, Payload: &payloads.GigEvent{ProviderID: &provider}}, nil},
		{"document approved", domain.Event{Type: enums.EventDocumentReviewed, Payload: &payloads.DocumentReviewedEvent{ProviderID: provider, Status: enums.DocumentStatusApproved}}, []uuid.UUID{provider}},
		{"document rejected", domain.Event{Type: enums.EventDocumentReviewed, Payload: &payloads.DocumentReviewedEvent{ProviderID: provider, Status: enums.DocumentStatusRejected}}, nil},
		{"emergency completed", domain.Event{Type: enums.EventEmergencyStatusChanged, Payload: &payloads.EmergencyStatusChangedEvent{ProviderID: &provider, Status: enums.EmergencyStatusCompleted}}, []uuid.UUID{provider}},
		{"message", domain.Event{Type: enums.EventMessageCreated, Payload: &payloads.MessageCreatedEvent{}}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eval := &recordingEvaluator{}
			h, err := NewEventHandler(eval)
			require.NoError(t, err)
			require.NoError(t, h.Handle(context.Background(), tc.event))
			assert.Equal(t, tc.want, eval.profiles)
		})
	}
}

func TestEventHandlerSkipsMissingProfile(t *testing.T) {
	h, _ := NewEventHandler(&recordingEvaluator{err: pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")})
	err := h.Handle(context.Background(), domain.Event{Type: enums.EventReviewCreated, Payload: &payloads.ReviewCreatedEvent{RevieweeID: uuid.New()}})
	assert.NoError(t, err)

	h, _ = NewEventHandler(&recordingEvaluator{err: errors.New("db down")})
	err = h.Handle(context.Background(), domain.Event{Type: enums.EventReviewCreated, Payload: &payloads.ReviewCreatedEvent{RevieweeID: uuid.New()}})
	assert.Error(t, err)
}
