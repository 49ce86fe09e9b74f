package seo

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
)

// PageDTO is the API shape of an SEO page.
type PageDTO struct {
	ID              uuid.UUID  `json:"id"`
	Path            string     `json:"path"`
	Title           string     `json:"title"`
	MetaDescription string     `json:"meta_description"`
	CategoryID      *uuid.UUID `json:"category_id,omitempty"`
	NoIndex         bool       `json:"noindex"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type CreatePageRequest struct {
	Path            string     `json:"path" validate:"required,max=255"`
	Title           string     `json:"title" validate:"required,max=120"`
	MetaDescription string     `json:"meta_description" validate:"max=320"`
	CategoryID      *uuid.UUID `json:"category_id"`
	NoIndex         bool       `json:"noindex"`
}

type UpdatePageRequest struct {
	Path            *string    `json:"path" validate:"omitempty,max=255"`
	Title           *string    `json:"title" validate:"omitempty,max=120"`
	MetaDescription *string    `json:"meta_description" validate:"omitempty,max=320"`
	CategoryID      *uuid.UUID `json:"category_id"`
	NoIndex         *bool      `json:"noindex"`
}

// CategoryStats is one landing row of the dashboard.
type CategoryStats struct {
	CategoryID  uuid.UUID `json:"category_id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	LandingPath string    `json:"landing_path"`
	HasPage     bool      `json:"has_page"`
	MissingMeta bool      `json:"missing_meta"`
	NoIndex     bool      `json:"noindex"`
	OpenGigs    int64     `json:"open_gigs"`
	Providers   int64     `json:"providers"`
	Views30d    int64     `json:"views_30d"`
}

type DashboardTotals struct {
	Categories  int   `json:"categories"`
	Pages       int   `json:"pages"`
	MissingMeta int   `json:"missing_meta"`
	NoIndex     int   `json:"noindex"`
	OpenGigs    int64 `json:"open_gigs"`
	Providers   int64 `json:"providers"`
	Views30d    int64 `json:"views_30d"`
}

// DashboardDTO reports per-category landing health. ViewsAvailable is false
// when the warehouse could not be reached and view counts are zero.
type DashboardDTO struct {
	Categories     []CategoryStats `json:"categories"`
	Totals         DashboardTotals `json:"totals"`
	ViewsAvailable bool            `json:"views_available"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

func FromModel(p models.SEOPage) PageDTO {
	return PageDTO{
		ID:              p.ID,
		Path:            p.Path,
		Title:           p.Title,
		MetaDescription: p.MetaDescription,
		CategoryID:      p.CategoryID,
		NoIndex:         p.NoIndex,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}
