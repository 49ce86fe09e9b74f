package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// Payment tracks an escrowed Stripe PaymentIntent for a gig.
type Payment struct {
	ID                    uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	GigID                 uuid.UUID           `gorm:"column:gig_id;type:uuid;not null"`
	PayerID               uuid.UUID           `gorm:"column:payer_id;type:uuid;not null"`
	PayeeID               uuid.UUID           `gorm:"column:payee_id;type:uuid;not null"`
	AmountCents           int64               `gorm:"column:amount_cents;not null"`
	FeeCents              int64               `gorm:"column:fee_cents;not null;default:0"`
	Currency              string              `gorm:"column:currency;not null"`
	Status                enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:requires_payment"`
	StripePaymentIntentID *string             `gorm:"column:stripe_payment_intent_id"`
	StripeRefundID        *string             `gorm:"column:stripe_refund_id"`
	FailureReason         *string             `gorm:"column:failure_reason"`
	HeldAt                *time.Time          `gorm:"column:held_at"`
	ReleasedAt            *time.Time          `gorm:"column:released_at"`
	RefundedAt            *time.Time          `gorm:"column:refunded_at"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
