package proposals

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// SubmitRequest is a provider's offer on an open gig.
type SubmitRequest struct {
	Message    string `json:"message" validate:"required,min=10,max=2000"`
	PriceCents int64  `json:"price_cents" validate:"required,gt=0"`
}

// ProviderSummary is shown to the client next to each proposal.
type ProviderSummary struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	RatingAvg   float64   `json:"rating_avg"`
	RatingCount int       `json:"rating_count"`
	Verified    bool      `json:"verified"`
}

type ProposalDTO struct {
	ID         uuid.UUID            `json:"id"`
	GigID      uuid.UUID            `json:"gig_id"`
	ProviderID uuid.UUID            `json:"provider_id"`
	Provider   *ProviderSummary     `json:"provider,omitempty"`
	Message    string               `json:"message"`
	PriceCents int64                `json:"price_cents"`
	Status     enums.ProposalStatus `json:"status"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// AcceptResult carries the accepted proposal and the conversation opened for it.
type AcceptResult struct {
	Proposal       ProposalDTO `json:"proposal"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	DeclinedCount  int         `json:"declined_count"`
}

func FromModel(p models.Proposal) ProposalDTO {
	return ProposalDTO{
		ID:         p.ID,
		GigID:      p.GigID,
		ProviderID: p.ProviderID,
		Message:    p.Message,
		PriceCents: p.PriceCents,
		Status:     p.Status,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func summaryFromProfile(p models.Profile) *ProviderSummary {
	return &ProviderSummary{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		RatingAvg:   p.RatingAvg,
		RatingCount: p.RatingCount,
		Verified:    p.IsVerified,
	}
}
