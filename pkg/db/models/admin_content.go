package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailTemplate is an admin-editable transactional email keyed by purpose.
type EmailTemplate struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Key         string     `gorm:"column:key;not null;uniqueIndex"`
	Subject     string     `gorm:"column:subject;not null"`
	HTMLBody    string     `gorm:"column:html_body;not null"`
	TextBody    *string    `gorm:"column:text_body"`
	Description *string    `gorm:"column:description"`
	UpdatedBy   *uuid.UUID `gorm:"column:updated_by;type:uuid"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// SEOPage holds search metadata for a public landing path.
type SEOPage struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Path            string     `gorm:"column:path;not null;uniqueIndex"`
	Title           string     `gorm:"column:title;not null"`
	MetaDescription string     `gorm:"column:meta_description;not null"`
	CategoryID      *uuid.UUID `gorm:"column:category_id;type:uuid"`
	NoIndex         bool       `gorm:"column:noindex;not null;default:false"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name gorm would otherwise pluralize as s_e_o_pages.
func (SEOPage) TableName() string {
	return "seo_pages"
}
