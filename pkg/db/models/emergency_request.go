package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// EmergencyRequest is an urgent dispatch from a client to nearby providers.
type EmergencyRequest struct {
	ID          uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ClientID    uuid.UUID             `gorm:"column:client_id;type:uuid;not null"`
	CategoryID  uuid.UUID             `gorm:"column:category_id;type:uuid;not null"`
	ProviderID  *uuid.UUID            `gorm:"column:provider_id;type:uuid"`
	Description string                `gorm:"column:description;not null"`
	Address     *string               `gorm:"column:address"`
	Lat         float64               `gorm:"column:lat;not null"`
	Lng         float64               `gorm:"column:lng;not null"`
	Status      enums.EmergencyStatus `gorm:"column:status;type:emergency_status;not null;default:searching"`
	AcceptedAt  *time.Time            `gorm:"column:accepted_at"`
	ArrivedAt   *time.Time            `gorm:"column:arrived_at"`
	CompletedAt *time.Time            `gorm:"column:completed_at"`
	CancelledAt *time.Time            `gorm:"column:cancelled_at"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
