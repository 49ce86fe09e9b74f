package badges

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/internal/consumers/domain"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
)

type evaluator interface {
	Evaluate(ctx context.Context, profileID uuid.UUID) ([]enums.BadgeCode, error)
}

// EventHandler re-evaluates badges whenever a profile's standing may have changed.
type EventHandler struct {
	badges evaluator
}

func NewEventHandler(svc evaluator) (*EventHandler, error) {
	if svc == nil {
		return nil, fmt.Errorf("badge service required")
	}
	return &EventHandler{badges: svc}, nil
}

func (h *EventHandler) Name() string { return "badges" }

func (h *EventHandler) Handle(ctx context.Context, event domain.Event) error {
	for _, profileID := range profilesAffected(event) {
		if _, err := h.badges.Evaluate(ctx, profileID); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				continue
			}
			return err
		}
	}
	return nil
}

func profilesAffected(event domain.Event) []uuid.UUID {
	switch p := event.Payload.(type) {
	case *payloads.ReviewCreatedEvent:
		return []uuid.UUID{p.RevieweeID}
	case *payloads.GigEvent:
		if event.Type == enums.EventGigCompleted && p.ProviderID != nil {
			return []uuid.UUID{*p.ProviderID}
		}
	case *payloads.DocumentReviewedEvent:
		if p.Status == enums.DocumentStatusApproved {
			return []uuid.UUID{p.ProviderID}
		}
	case *payloads.EmergencyStatusChangedEvent:
		if p.Status == enums.EmergencyStatusCompleted && p.ProviderID != nil {
			return []uuid.UUID{*p.ProviderID}
		}
	}
	return nil
}
