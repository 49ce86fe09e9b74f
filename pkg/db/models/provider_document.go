package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// ProviderDocument is a verification upload stored in GCS.
type ProviderDocument struct {
	ID         uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProviderID uuid.UUID            `gorm:"column:provider_id;type:uuid;not null"`
	Kind       enums.DocumentKind   `gorm:"column:kind;type:document_kind;not null"`
	Status     enums.DocumentStatus `gorm:"column:status;type:document_status;not null;default:pending_upload"`
	FileName   string               `gorm:"column:file_name;not null"`
	MimeType   string               `gorm:"column:mime_type;not null"`
	SizeBytes  int64                `gorm:"column:size_bytes;not null"`
	GCSKey     string               `gorm:"column:gcs_key;not null"`
	ReviewNote *string              `gorm:"column:review_note"`
	ReviewedBy *uuid.UUID           `gorm:"column:reviewed_by;type:uuid"`
	ReviewedAt *time.Time           `gorm:"column:reviewed_at"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
