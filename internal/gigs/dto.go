package gigs

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// GigDTO is the API representation of a gig.
type GigDTO struct {
	ID              uuid.UUID       `json:"id"`
	ClientID        uuid.UUID       `json:"client_id"`
	CategoryID      uuid.UUID       `json:"category_id"`
	ProviderID      *uuid.UUID      `json:"provider_id,omitempty"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	BudgetCents     int64           `json:"budget_cents"`
	Currency        string          `json:"currency"`
	City            *string         `json:"city,omitempty"`
	Lat             *float64        `json:"lat,omitempty"`
	Lng             *float64        `json:"lng,omitempty"`
	IsUrgent        bool            `json:"is_urgent"`
	Status          enums.GigStatus `json:"status"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	AgreedCents     *int64          `json:"agreed_cents,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CreateGigRequest is the client payload for posting a gig.
type CreateGigRequest struct {
	Title       string    `json:"title" validate:"required,min=5,max=120"`
	Description string    `json:"description" validate:"required,min=20,max=5000"`
	CategoryID  uuid.UUID `json:"category_id" validate:"required"`
	BudgetCents int64     `json:"budget_cents" validate:"required,gt=0,lte=100000000"`
	City        *string   `json:"city" validate:"omitempty,max=120"`
	Lat         *float64  `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lng         *float64  `json:"lng" validate:"omitempty,gte=-180,lte=180"`
	IsUrgent    bool      `json:"is_urgent"`
}

// UpdateGigRequest patches an editable gig; nil fields are left untouched.
type UpdateGigRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=5,max=120"`
	Description *string    `json:"description" validate:"omitempty,min=20,max=5000"`
	CategoryID  *uuid.UUID `json:"category_id"`
	BudgetCents *int64     `json:"budget_cents" validate:"omitempty,gt=0,lte=100000000"`
	City        *string    `json:"city" validate:"omitempty,max=120"`
	Lat         *float64   `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lng         *float64   `json:"lng" validate:"omitempty,gte=-180,lte=180"`
	IsUrgent    *bool      `json:"is_urgent"`
}

// RejectGigRequest carries the moderation reason shown to the client.
type RejectGigRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// ListFilter narrows gig listings.
type ListFilter struct {
	CategoryID *uuid.UUID
	City       string
	Query      string
	MinBudget  *int64
	MaxBudget  *int64
	Status     enums.GigStatus
	Limit      int
	Cursor     string
}

// Viewer identifies who is reading a gig. The zero value is an anonymous visitor.
type Viewer struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (v Viewer) isAnonymous() bool {
	return v.UserID == uuid.Nil
}

func FromModel(m models.Gig) GigDTO {
	return GigDTO{
		ID:              m.ID,
		ClientID:        m.ClientID,
		CategoryID:      m.CategoryID,
		ProviderID:      m.ProviderID,
		Title:           m.Title,
		Description:     m.Description,
		BudgetCents:     m.BudgetCents,
		Currency:        m.Currency,
		City:            m.City,
		Lat:             m.Lat,
		Lng:             m.Lng,
		IsUrgent:        m.IsUrgent,
		Status:          m.Status,
		RejectionReason: m.RejectionReason,
		AgreedCents:     m.AgreedCents,
		ApprovedAt:      m.ApprovedAt,
		CompletedAt:     m.CompletedAt,
		CancelledAt:     m.CancelledAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
