package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateUser         OutboxAggregateType = "user"
	AggregateGig          OutboxAggregateType = "gig"
	AggregateProposal     OutboxAggregateType = "proposal"
	AggregateConversation OutboxAggregateType = "conversation"
	AggregatePayment      OutboxAggregateType = "payment"
	AggregateReview       OutboxAggregateType = "review"
	AggregateBadge        OutboxAggregateType = "badge"
	AggregateDocument     OutboxAggregateType = "document"
	AggregateEmergency    OutboxAggregateType = "emergency"
	AggregateNotification OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateUser,
	AggregateGig,
	AggregateProposal,
	AggregateConversation,
	AggregatePayment,
	AggregateReview,
	AggregateBadge,
	AggregateDocument,
	AggregateEmergency,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, validAggregateTypes)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventUserRegistered         OutboxEventType = "user_registered"
	EventGigCreated             OutboxEventType = "gig_created"
	EventGigApproved            OutboxEventType = "gig_approved"
	EventGigRejected            OutboxEventType = "gig_rejected"
	EventGigViewed              OutboxEventType = "gig_viewed"
	EventGigCompleted           OutboxEventType = "gig_completed"
	EventProposalSubmitted      OutboxEventType = "proposal_submitted"
	EventProposalAccepted       OutboxEventType = "proposal_accepted"
	EventMessageCreated         OutboxEventType = "message_created"
	EventPaymentHeld            OutboxEventType = "payment_held"
	EventPaymentReleased        OutboxEventType = "payment_released"
	EventPaymentRefunded        OutboxEventType = "payment_refunded"
	EventPaymentFailed          OutboxEventType = "payment_failed"
	EventReviewCreated          OutboxEventType = "review_created"
	EventBadgeAwarded           OutboxEventType = "badge_awarded"
	EventDocumentReviewed       OutboxEventType = "document_reviewed"
	EventEmergencyRequested     OutboxEventType = "emergency_requested"
	EventEmergencyStatusChanged OutboxEventType = "emergency_status_changed"
	EventNotificationRequested  OutboxEventType = "notification_requested"
	EventEmailRequested         OutboxEventType = "email_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventUserRegistered,
	EventGigCreated,
	EventGigApproved,
	EventGigRejected,
	EventGigViewed,
	EventGigCompleted,
	EventProposalSubmitted,
	EventProposalAccepted,
	EventMessageCreated,
	EventPaymentHeld,
	EventPaymentReleased,
	EventPaymentRefunded,
	EventPaymentFailed,
	EventReviewCreated,
	EventBadgeAwarded,
	EventDocumentReviewed,
	EventEmergencyRequested,
	EventEmergencyStatusChanged,
	EventNotificationRequested,
	EventEmailRequested,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, validOutboxEventTypes)
}

// OutboxDLQErrorReason says why an event was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable:
		return true
	}
	return false
}
