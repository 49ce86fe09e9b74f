package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// UserRegisteredEvent triggers the welcome email.
type UserRegisteredEvent struct {
	UserID    uuid.UUID      `json:"user_id"`
	Email     string         `json:"email"`
	FirstName string         `json:"first_name"`
	Role      enums.UserRole `json:"role"`
}

// GigEvent covers gig lifecycle transitions (created, approved, rejected, completed).
type GigEvent struct {
	GigID       uuid.UUID       `json:"gig_id"`
	ClientID    uuid.UUID       `json:"client_id"`
	ProviderID  *uuid.UUID      `json:"provider_id,omitempty"`
	CategoryID  uuid.UUID       `json:"category_id"`
	Title       string          `json:"title"`
	Status      enums.GigStatus `json:"status"`
	City        string          `json:"city,omitempty"`
	BudgetCents int64           `json:"budget_cents"`
	Reason      string          `json:"reason,omitempty"`
}

// GigViewedEvent is an analytics-only page view.
type GigViewedEvent struct {
	GigID      uuid.UUID  `json:"gig_id"`
	CategoryID uuid.UUID  `json:"category_id"`
	ViewerID   *uuid.UUID `json:"viewer_id,omitempty"`
	City       string     `json:"city,omitempty"`
	ViewedAt   time.Time  `json:"viewed_at"`
}

// ProposalEvent is emitted when a proposal is submitted or accepted.
type ProposalEvent struct {
	ProposalID uuid.UUID            `json:"proposal_id"`
	GigID      uuid.UUID            `json:"gig_id"`
	GigTitle   string               `json:"gig_title"`
	ProviderID uuid.UUID            `json:"provider_id"`
	ClientID   uuid.UUID            `json:"client_id"`
	PriceCents int64                `json:"price_cents"`
	Status     enums.ProposalStatus `json:"status"`
}

// MessageCreatedEvent drives offline notification for the recipient.
type MessageCreatedEvent struct {
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	RecipientID    uuid.UUID `json:"recipient_id"`
	Preview        string    `json:"preview"`
}

// PaymentEvent reflects an escrow state change confirmed by the processor.
type PaymentEvent struct {
	PaymentID   uuid.UUID           `json:"payment_id"`
	GigID       uuid.UUID           `json:"gig_id"`
	PayerID     uuid.UUID           `json:"payer_id"`
	PayeeID     uuid.UUID           `json:"payee_id"`
	AmountCents int64               `json:"amount_cents"`
	FeeCents    int64               `json:"fee_cents"`
	Currency    string              `json:"currency"`
	Status      enums.PaymentStatus `json:"status"`
	Reason      string              `json:"reason,omitempty"`
}

// ReviewCreatedEvent triggers badge evaluation and a notification.
type ReviewCreatedEvent struct {
	ReviewID   uuid.UUID `json:"review_id"`
	GigID      uuid.UUID `json:"gig_id"`
	ReviewerID uuid.UUID `json:"reviewer_id"`
	RevieweeID uuid.UUID `json:"reviewee_id"`
	Rating     int       `json:"rating"`
}

// BadgeAwardedEvent notifies the profile owner of a new badge.
type BadgeAwardedEvent struct {
	ProfileID uuid.UUID       `json:"profile_id"`
	Code      enums.BadgeCode `json:"code"`
}

// DocumentReviewedEvent reports an admin decision on a provider document.
type DocumentReviewedEvent struct {
	DocumentID uuid.UUID            `json:"document_id"`
	ProviderID uuid.UUID            `json:"provider_id"`
	Kind       enums.DocumentKind   `json:"kind"`
	Status     enums.DocumentStatus `json:"status"`
	Note       string               `json:"note,omitempty"`
}

// EmergencyRequestedEvent fans a new dispatch out to candidate providers.
type EmergencyRequestedEvent struct {
	RequestID    uuid.UUID   `json:"request_id"`
	ClientID     uuid.UUID   `json:"client_id"`
	CategoryID   uuid.UUID   `json:"category_id"`
	CandidateIDs []uuid.UUID `json:"candidate_ids"`
	Lat          float64     `json:"lat"`
	Lng          float64     `json:"lng"`
	Description  string      `json:"description"`
}

// EmergencyStatusChangedEvent tells the counterpart about dispatch progress.
type EmergencyStatusChangedEvent struct {
	RequestID  uuid.UUID             `json:"request_id"`
	ClientID   uuid.UUID             `json:"client_id"`
	ProviderID *uuid.UUID            `json:"provider_id,omitempty"`
	Status     enums.EmergencyStatus `json:"status"`
}

// NotificationRequestedEvent asks the worker to create an in-app notification for a user.
type NotificationRequestedEvent struct {
	UserID  uuid.UUID              `json:"user_id"`
	Type    enums.NotificationType `json:"type"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Link    string                 `json:"link,omitempty"`
	Data    map[string]string      `json:"data,omitempty"`
}

// EmailRequestedEvent asks the worker to render and send a template.
type EmailRequestedEvent struct {
	To          string            `json:"to"`
	TemplateKey string            `json:"template_key"`
	Vars        map[string]string `json:"vars,omitempty"`
}
