package enums

import "slices"

// AnalyticsEventType is the canonical event_type for analytics routing.
// Values mirror the outbox event types mirrored to the analytics topic.
type AnalyticsEventType string

const (
	AnalyticsEventUserRegistered     AnalyticsEventType = "user_registered"
	AnalyticsEventGigCreated         AnalyticsEventType = "gig_created"
	AnalyticsEventGigViewed          AnalyticsEventType = "gig_viewed"
	AnalyticsEventGigCompleted       AnalyticsEventType = "gig_completed"
	AnalyticsEventProposalSubmitted  AnalyticsEventType = "proposal_submitted"
	AnalyticsEventReviewCreated      AnalyticsEventType = "review_created"
	AnalyticsEventEmergencyRequested AnalyticsEventType = "emergency_requested"
	AnalyticsEventPaymentHeld        AnalyticsEventType = "payment_held"
	AnalyticsEventPaymentReleased    AnalyticsEventType = "payment_released"
	AnalyticsEventPaymentRefunded    AnalyticsEventType = "payment_refunded"
	AnalyticsEventPaymentFailed      AnalyticsEventType = "payment_failed"
)

var validAnalyticsEventTypes = []AnalyticsEventType{
	AnalyticsEventUserRegistered,
	AnalyticsEventGigCreated,
	AnalyticsEventGigViewed,
	AnalyticsEventGigCompleted,
	AnalyticsEventProposalSubmitted,
	AnalyticsEventReviewCreated,
	AnalyticsEventEmergencyRequested,
	AnalyticsEventPaymentHeld,
	AnalyticsEventPaymentReleased,
	AnalyticsEventPaymentRefunded,
	AnalyticsEventPaymentFailed,
}

// IsValid reports whether the value matches the canonical analytics event_type enum.
func (a AnalyticsEventType) IsValid() bool {
	return slices.Contains(validAnalyticsEventTypes, a)
}

// ParseAnalyticsEventType converts the raw string to AnalyticsEventType.
func ParseAnalyticsEventType(value string) (AnalyticsEventType, error) {
	return parse("analytics event type", value, validAnalyticsEventTypes)
}
