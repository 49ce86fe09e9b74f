package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// QuotaUsage counts metered actions per profile, calendar month and kind.
type QuotaUsage struct {
	ProfileID uuid.UUID       `gorm:"column:profile_id;type:uuid;primaryKey"`
	Period    string          `gorm:"column:period;primaryKey"`
	Kind      enums.QuotaKind `gorm:"column:kind;type:quota_kind;primaryKey"`
	Used      int             `gorm:"column:used;not null;default:0"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// ContactView records that viewer has unlocked target's contact details.
type ContactView struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ViewerID  uuid.UUID `gorm:"column:viewer_id;type:uuid;not null"`
	TargetID  uuid.UUID `gorm:"column:target_id;type:uuid;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
