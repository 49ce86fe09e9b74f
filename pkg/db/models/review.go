package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// Review is a rating left by one party of a completed gig for the other.
type Review struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	GigID      uuid.UUID `gorm:"column:gig_id;type:uuid;not null"`
	ReviewerID uuid.UUID `gorm:"column:reviewer_id;type:uuid;not null"`
	RevieweeID uuid.UUID `gorm:"column:reviewee_id;type:uuid;not null"`
	Rating     int       `gorm:"column:rating;not null"`
	Comment    *string   `gorm:"column:comment"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Badge is an achievement awarded to a profile.
type Badge struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProfileID uuid.UUID       `gorm:"column:profile_id;type:uuid;not null"`
	Code      enums.BadgeCode `gorm:"column:code;type:badge_code;not null"`
	AwardedAt time.Time       `gorm:"column:awarded_at;autoCreateTime"`
}
