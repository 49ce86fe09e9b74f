package emergency

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

type CreateRequest struct {
	CategoryID  uuid.UUID `json:"category_id" validate:"required"`
	Description string    `json:"description" validate:"required,min=10,max=2000"`
	Lat         float64   `json:"lat" validate:"gte=-90,lte=90"`
	Lng         float64   `json:"lng" validate:"gte=-180,lte=180"`
	Address     string    `json:"address" validate:"max=500"`
}

// LocationRequest is a provider position update. EmergencyID is optional: an
// available provider reports position between jobs too so dispatch can find
// them.
type LocationRequest struct {
	EmergencyID *uuid.UUID `json:"emergency_id"`
	Lat         float64    `json:"lat" validate:"gte=-90,lte=90"`
	Lng         float64    `json:"lng" validate:"gte=-180,lte=180"`
	Heading     *float64   `json:"heading" validate:"omitempty,gte=0,lt=360"`
}

type RequestDTO struct {
	ID          uuid.UUID             `json:"id"`
	ClientID    uuid.UUID             `json:"client_id"`
	CategoryID  uuid.UUID             `json:"category_id"`
	ProviderID  *uuid.UUID            `json:"provider_id,omitempty"`
	Description string                `json:"description"`
	Address     *string               `json:"address,omitempty"`
	Lat         float64               `json:"lat"`
	Lng         float64               `json:"lng"`
	Status      enums.EmergencyStatus `json:"status"`
	Candidates  int                   `json:"candidates_notified,omitempty"`
	AcceptedAt  *time.Time            `json:"accepted_at,omitempty"`
	ArrivedAt   *time.Time            `json:"arrived_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	CancelledAt *time.Time            `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

type LocationDTO struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Heading   *float64  `json:"heading,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RouteDTO struct {
	Polyline        string    `json:"polyline"`
	DistanceMeters  int       `json:"distance_meters"`
	DurationSeconds int       `json:"duration_seconds"`
	ETA             time.Time `json:"eta"`
}

type TrackingDTO struct {
	RequestID        uuid.UUID             `json:"request_id"`
	Status           enums.EmergencyStatus `json:"status"`
	ProviderLocation *LocationDTO          `json:"provider_location,omitempty"`
	StraightLineKM   *float64              `json:"straight_line_km,omitempty"`
	Route            *RouteDTO             `json:"route,omitempty"`
}

// statusSignal is the realtime payload for emergency.status.
type statusSignal struct {
	RequestID  uuid.UUID             `json:"request_id"`
	Status     enums.EmergencyStatus `json:"status"`
	ProviderID *uuid.UUID            `json:"provider_id,omitempty"`
}

// locationSignal is the realtime payload for emergency.location.
type locationSignal struct {
	RequestID uuid.UUID `json:"request_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Heading   *float64  `json:"heading,omitempty"`
	At        time.Time `json:"at"`
}

func FromModel(m models.EmergencyRequest) RequestDTO {
	return RequestDTO{
		ID:          m.ID,
		ClientID:    m.ClientID,
		CategoryID:  m.CategoryID,
		ProviderID:  m.ProviderID,
		Description: m.Description,
		Address:     m.Address,
		Lat:         m.Lat,
		Lng:         m.Lng,
		Status:      m.Status,
		AcceptedAt:  m.AcceptedAt,
		ArrivedAt:   m.ArrivedAt,
		CompletedAt: m.CompletedAt,
		CancelledAt: m.CancelledAt,
		CreatedAt:   m.CreatedAt,
	}
}
