package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Category groups gigs and drives AI/keyword suggestions.
type Category struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Slug        string         `gorm:"column:slug;not null;uniqueIndex"`
	Name        string         `gorm:"column:name;not null"`
	Description *string        `gorm:"column:description"`
	Icon        *string        `gorm:"column:icon"`
	Keywords    pq.StringArray `gorm:"column:keywords;type:text[];not null;default:'{}'"`
	IsActive    bool           `gorm:"column:is_active;not null;default:true"`
	SortOrder   int            `gorm:"column:sort_order;not null;default:0"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
