package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// Gig is a service request posted by a client.
type Gig struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ClientID        uuid.UUID       `gorm:"column:client_id;type:uuid;not null"`
	CategoryID      uuid.UUID       `gorm:"column:category_id;type:uuid;not null"`
	ProviderID      *uuid.UUID      `gorm:"column:provider_id;type:uuid"`
	Title           string          `gorm:"column:title;not null"`
	Description     string          `gorm:"column:description;not null"`
	BudgetCents     int64           `gorm:"column:budget_cents;not null"`
	Currency        string          `gorm:"column:currency;not null;default:usd"`
	City            *string         `gorm:"column:city"`
	Lat             *float64        `gorm:"column:lat"`
	Lng             *float64        `gorm:"column:lng"`
	IsUrgent        bool            `gorm:"column:is_urgent;not null;default:false"`
	Status          enums.GigStatus `gorm:"column:status;type:gig_status;not null;default:pending"`
	RejectionReason *string         `gorm:"column:rejection_reason"`
	AgreedCents     *int64          `gorm:"column:agreed_cents"`
	ApprovedAt      *time.Time      `gorm:"column:approved_at"`
	CompletedAt     *time.Time      `gorm:"column:completed_at"`
	CancelledAt     *time.Time      `gorm:"column:cancelled_at"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
