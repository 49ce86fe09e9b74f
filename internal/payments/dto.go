package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

type CreateEscrowRequest struct {
	GigID uuid.UUID `json:"gig_id" validate:"required"`
}

type RefundRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type OnboardRequest struct {
	ReturnURL  string `json:"return_url" validate:"required,url"`
	RefreshURL string `json:"refresh_url" validate:"required,url"`
}

type PaymentDTO struct {
	ID            uuid.UUID           `json:"id"`
	GigID         uuid.UUID           `json:"gig_id"`
	PayerID       uuid.UUID           `json:"payer_id"`
	PayeeID       uuid.UUID           `json:"payee_id"`
	AmountCents   int64               `json:"amount_cents"`
	FeeCents      int64               `json:"fee_cents"`
	PayoutCents   int64               `json:"payout_cents"`
	Currency      string              `json:"currency"`
	Status        enums.PaymentStatus `json:"status"`
	FailureReason *string             `json:"failure_reason,omitempty"`
	HeldAt        *time.Time          `json:"held_at,omitempty"`
	ReleasedAt    *time.Time          `json:"released_at,omitempty"`
	RefundedAt    *time.Time          `json:"refunded_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// EscrowDTO is returned once, when the client must confirm the PaymentIntent.
type EscrowDTO struct {
	Payment      PaymentDTO `json:"payment"`
	ClientSecret string     `json:"client_secret"`
}

type OnboardingDTO struct {
	AccountID      string `json:"account_id"`
	URL            string `json:"url"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

// Actor identifies who asked for a refund.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func FromModel(p models.Payment) PaymentDTO {
	return PaymentDTO{
		ID:            p.ID,
		GigID:         p.GigID,
		PayerID:       p.PayerID,
		PayeeID:       p.PayeeID,
		AmountCents:   p.AmountCents,
		FeeCents:      p.FeeCents,
		PayoutCents:   p.AmountCents - p.FeeCents,
		Currency:      p.Currency,
		Status:        p.Status,
		FailureReason: p.FailureReason,
		HeldAt:        p.HeldAt,
		ReleasedAt:    p.ReleasedAt,
		RefundedAt:    p.RefundedAt,
		CreatedAt:     p.CreatedAt,
	}
}
