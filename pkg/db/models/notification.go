package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// Notification stores in-app notification payloads scoped to a user.
type Notification struct {
	ID        uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	Type      enums.NotificationType `gorm:"type:notification_type;not null"`
	Title     string                 `gorm:"type:text;not null"`
	Message   string                 `gorm:"type:text;not null"`
	Link      *string                `gorm:"type:text"`
	Data      json.RawMessage        `gorm:"column:data;type:jsonb"`
	ReadAt    *time.Time             `gorm:"type:timestamptz"`
	CreatedAt time.Time              `gorm:"type:timestamptz;default:now()"`
}

// PushToken is a device registration for push delivery.
type PushToken struct {
	ID         uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID          `gorm:"column:user_id;type:uuid;not null"`
	Token      string             `gorm:"column:token;not null;uniqueIndex"`
	Platform   enums.PushPlatform `gorm:"column:platform;type:push_platform;not null"`
	LastSeenAt time.Time          `gorm:"column:last_seen_at;not null"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
}
