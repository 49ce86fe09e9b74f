package router

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/gigmarket-backend/internal/analytics/types"
	analyticswriter "github.com/angelmondragon/gigmarket-backend/internal/analytics/writer"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
)

func projections() map[enums.AnalyticsEventType]projection {
	gig := marketplace[payloads.GigEvent]{fill: func(row *types.MarketplaceEventRow, e *payloads.GigEvent) {
		row.GigID = uuidPtr(e.GigID)
		row.CategoryID = uuidPtr(e.CategoryID)
		row.ClientID = uuidPtr(e.ClientID)
		row.ProviderID = optionalUUIDPtr(e.ProviderID)
		row.City = stringPtr(e.City)
		row.AmountCents = int64Ptr(e.BudgetCents)
	}}
	payment := marketplace[payloads.PaymentEvent]{fill: func(row *types.MarketplaceEventRow, e *payloads.PaymentEvent) {
		row.GigID = uuidPtr(e.GigID)
		row.ClientID = uuidPtr(e.PayerID)
		row.ProviderID = uuidPtr(e.PayeeID)
		row.AmountCents = int64Ptr(e.AmountCents)
		row.FeeCents = int64Ptr(e.FeeCents)
	}}

	return map[enums.AnalyticsEventType]projection{
		// Registration payloads carry the email, so only ids are kept.
		enums.AnalyticsEventUserRegistered: marketplace[payloads.UserRegisteredEvent]{
			private: true,
			fill: func(row *types.MarketplaceEventRow, e *payloads.UserRegisteredEvent) {
				if e.Role == enums.UserRoleProvider {
					row.ProviderID = uuidPtr(e.UserID)
					return
				}
				row.ClientID = uuidPtr(e.UserID)
			},
		},
		enums.AnalyticsEventGigCreated:   gig,
		enums.AnalyticsEventGigCompleted: gig,
		enums.AnalyticsEventGigViewed:    gigViews{},
		enums.AnalyticsEventProposalSubmitted: marketplace[payloads.ProposalEvent]{
			fill: func(row *types.MarketplaceEventRow, e *payloads.ProposalEvent) {
				row.GigID = uuidPtr(e.GigID)
				row.ClientID = uuidPtr(e.ClientID)
				row.ProviderID = uuidPtr(e.ProviderID)
				row.AmountCents = int64Ptr(e.PriceCents)
			},
		},
		enums.AnalyticsEventReviewCreated: marketplace[payloads.ReviewCreatedEvent]{
			fill: func(row *types.MarketplaceEventRow, e *payloads.ReviewCreatedEvent) {
				row.GigID = uuidPtr(e.GigID)
				row.Rating = int64Ptr(int64(e.Rating))
			},
		},
		enums.AnalyticsEventEmergencyRequested: marketplace[payloads.EmergencyRequestedEvent]{
			fill: func(row *types.MarketplaceEventRow, e *payloads.EmergencyRequestedEvent) {
				row.CategoryID = uuidPtr(e.CategoryID)
				row.ClientID = uuidPtr(e.ClientID)
			},
		},
		enums.AnalyticsEventPaymentHeld:     payment,
		enums.AnalyticsEventPaymentReleased: payment,
		enums.AnalyticsEventPaymentRefunded: payment,
		enums.AnalyticsEventPaymentFailed:   payment,
	}
}

// marketplace writes one marketplace_events row per event of payload type T.
type marketplace[T any] struct {
	fill func(row *types.MarketplaceEventRow, event *T)
	// private drops the raw payload column.
	private bool
}

func (m marketplace[T]) project(ctx context.Context, w Writer, env types.Envelope) error {
	var event T
	if err := env.Decode(&event); err != nil {
		return fmt.Errorf("decode %s: %w", env.EventType, err)
	}
	row := types.MarketplaceEventRow{
		EventID:    env.EventID,
		EventType:  string(env.EventType),
		OccurredAt: env.OccurredAt.UTC(),
	}
	if !m.private {
		raw, err := analyticswriter.EncodeJSON(&event)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", env.EventType, err)
		}
		row.Payload = raw
	}
	m.fill(&row, &event)
	return w.InsertMarketplace(ctx, row)
}

type gigViews struct{}

func (gigViews) project(ctx context.Context, w Writer, env types.Envelope) error {
	var event payloads.GigViewedEvent
	if err := env.Decode(&event); err != nil {
		return fmt.Errorf("decode %s: %w", env.EventType, err)
	}
	return w.InsertGigView(ctx, types.GigViewRow{
		EventID:    env.EventID,
		ViewedAt:   recordedAt(event.ViewedAt, env.OccurredAt),
		GigID:      event.GigID.String(),
		CategoryID: event.CategoryID.String(),
		ViewerID:   optionalUUIDPtr(event.ViewerID),
		City:       stringPtr(event.City),
	})
}

// recordedAt prefers the time inside the payload over the envelope time.
func recordedAt(recorded, fallback time.Time) time.Time {
	if recorded.IsZero() {
		return fallback.UTC()
	}
	return recorded.UTC()
}
