package profiles

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// ProfileDTO is the owner's view of their profile.
type ProfileDTO struct {
	ID                   uuid.UUID      `json:"id"`
	Role                 enums.UserRole `json:"role"`
	FirstName            string         `json:"first_name"`
	LastName             string         `json:"last_name"`
	DisplayName          string         `json:"display_name"`
	Email                string         `json:"email"`
	Phone                *string        `json:"phone,omitempty"`
	Bio                  *string        `json:"bio,omitempty"`
	AvatarURL            *string        `json:"avatar_url,omitempty"`
	City                 *string        `json:"city,omitempty"`
	Lat                  *float64       `json:"lat,omitempty"`
	Lng                  *float64       `json:"lng,omitempty"`
	Skills               []string       `json:"skills"`
	CategoryIDs          []string       `json:"category_ids"`
	HourlyRateCents      *int64         `json:"hourly_rate_cents,omitempty"`
	EmergencyAvailable   bool           `json:"emergency_available"`
	IsVerified           bool           `json:"is_verified"`
	Plan                 enums.PlanTier `json:"plan"`
	PayoutsEnabled       bool           `json:"payouts_enabled"`
	RatingAvg            float64        `json:"rating_avg"`
	RatingCount          int            `json:"rating_count"`
	CompletedGigs        int            `json:"completed_gigs"`
	CompletedEmergencies int            `json:"completed_emergencies"`
	CompletionPercent    int            `json:"completion_percent"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// PublicProfileDTO hides contact fields; those are unlocked through a contact view.
type PublicProfileDTO struct {
	ID                   uuid.UUID      `json:"id"`
	Role                 enums.UserRole `json:"role"`
	DisplayName          string         `json:"display_name"`
	Bio                  *string        `json:"bio,omitempty"`
	AvatarURL            *string        `json:"avatar_url,omitempty"`
	City                 *string        `json:"city,omitempty"`
	Skills               []string       `json:"skills"`
	CategoryIDs          []string       `json:"category_ids"`
	HourlyRateCents      *int64         `json:"hourly_rate_cents,omitempty"`
	EmergencyAvailable   bool           `json:"emergency_available"`
	IsVerified           bool           `json:"is_verified"`
	RatingAvg            float64        `json:"rating_avg"`
	RatingCount          int            `json:"rating_count"`
	CompletedGigs        int            `json:"completed_gigs"`
	CompletedEmergencies int            `json:"completed_emergencies"`
	MemberSince          time.Time      `json:"member_since"`
	// ContactUnlocked is only set for signed-in callers.
	ContactUnlocked      *bool          `json:"contact_unlocked,omitempty"`
}

// ContactDTO carries the fields unlocked by a contact view.
type ContactDTO struct {
	ProfileID   uuid.UUID `json:"profile_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Phone       *string   `json:"phone,omitempty"`
}

// UpdateProfileRequest is a partial update; nil fields are left untouched.
type UpdateProfileRequest struct {
	FirstName          *string      `json:"first_name,omitempty" validate:"omitempty,min=1,max=80"`
	LastName           *string      `json:"last_name,omitempty" validate:"omitempty,min=1,max=80"`
	DisplayName        *string      `json:"display_name,omitempty" validate:"omitempty,min=2,max=80"`
	Phone              *string      `json:"phone,omitempty" validate:"omitempty,max=32"`
	Bio                *string      `json:"bio,omitempty" validate:"omitempty,max=2000"`
	AvatarURL          *string      `json:"avatar_url,omitempty" validate:"omitempty,url"`
	City               *string      `json:"city,omitempty" validate:"omitempty,max=120"`
	Lat                *float64     `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lng                *float64     `json:"lng,omitempty" validate:"omitempty,longitude"`
	Skills             *[]string    `json:"skills,omitempty" validate:"omitempty,max=30,dive,min=1,max=60"`
	CategoryIDs        *[]uuid.UUID `json:"category_ids,omitempty" validate:"omitempty,max=10"`
	HourlyRateCents    *int64       `json:"hourly_rate_cents,omitempty" validate:"omitempty,min=0"`
	EmergencyAvailable *bool        `json:"emergency_available,omitempty"`
}

// FromModel maps the persisted profile to the owner DTO.
func FromModel(p *models.Profile) *ProfileDTO {
	if p == nil {
		return nil
	}
	return &ProfileDTO{
		ID:                   p.ID,
		Role:                 p.Role,
		FirstName:            p.FirstName,
		LastName:             p.LastName,
		DisplayName:          p.DisplayName,
		Email:                p.Email,
		Phone:                p.Phone,
		Bio:                  p.Bio,
		AvatarURL:            p.AvatarURL,
		City:                 p.City,
		Lat:                  p.Lat,
		Lng:                  p.Lng,
		Skills:               nonNil(p.Skills),
		CategoryIDs:          nonNil(p.CategoryIDs),
		HourlyRateCents:      p.HourlyRateCents,
		EmergencyAvailable:   p.EmergencyAvailable,
		IsVerified:           p.IsVerified,
		Plan:                 p.Plan,
		PayoutsEnabled:       p.PayoutsEnabled,
		RatingAvg:            p.RatingAvg,
		RatingCount:          p.RatingCount,
		CompletedGigs:        p.CompletedGigs,
		CompletedEmergencies: p.CompletedEmergencies,
		CompletionPercent:    p.CompletionPercent,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

// PublicFromModel maps the profile to the contact-free public view.
func PublicFromModel(p *models.Profile) *PublicProfileDTO {
	if p == nil {
		return nil
	}
	return &PublicProfileDTO{
		ID:                   p.ID,
		Role:                 p.Role,
		DisplayName:          p.DisplayName,
		Bio:                  p.Bio,
		AvatarURL:            p.AvatarURL,
		City:                 p.City,
		Skills:               nonNil(p.Skills),
		CategoryIDs:          nonNil(p.CategoryIDs),
		HourlyRateCents:      p.HourlyRateCents,
		EmergencyAvailable:   p.EmergencyAvailable,
		IsVerified:           p.IsVerified,
		RatingAvg:            p.RatingAvg,
		RatingCount:          p.RatingCount,
		CompletedGigs:        p.CompletedGigs,
		CompletedEmergencies: p.CompletedEmergencies,
		MemberSince:          p.CreatedAt,
	}
}

// ContactFromModel exposes the contact fields of a profile.
func ContactFromModel(p *models.Profile) *ContactDTO {
	if p == nil {
		return nil
	}
	return &ContactDTO{
		ProfileID:   p.ID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		Phone:       p.Phone,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return append([]string(nil), values...)
}
