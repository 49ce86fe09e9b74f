package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// Proposal is a provider's response to an open gig.
type Proposal struct {
	ID         uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	GigID      uuid.UUID            `gorm:"column:gig_id;type:uuid;not null"`
	ProviderID uuid.UUID            `gorm:"column:provider_id;type:uuid;not null"`
	Message    string               `gorm:"column:message;not null"`
	PriceCents int64                `gorm:"column:price_cents;not null"`
	Status     enums.ProposalStatus `gorm:"column:status;type:proposal_status;not null;default:submitted"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
