package categories

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
)

// CategoryDTO is the API shape of a category.
type CategoryDTO struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Icon        *string   `json:"icon,omitempty"`
	Keywords    []string  `json:"keywords"`
	IsActive    bool      `json:"is_active"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateCategoryRequest is the admin payload for a new category.
type CreateCategoryRequest struct {
	Slug        string   `json:"slug" validate:"required,min=2,max=60"`
	Name        string   `json:"name" validate:"required,min=2,max=80"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	Icon        *string  `json:"icon" validate:"omitempty,max=120"`
	Keywords    []string `json:"keywords" validate:"omitempty,max=50,dive,min=2,max=40"`
	SortOrder   int      `json:"sort_order" validate:"gte=0"`
}

// UpdateCategoryRequest patches an existing category.
type UpdateCategoryRequest struct {
	Slug        *string   `json:"slug" validate:"omitempty,min=2,max=60"`
	Name        *string   `json:"name" validate:"omitempty,min=2,max=80"`
	Description *string   `json:"description" validate:"omitempty,max=500"`
	Icon        *string   `json:"icon" validate:"omitempty,max=120"`
	Keywords    *[]string `json:"keywords" validate:"omitempty,max=50,dive,min=2,max=40"`
	IsActive    *bool     `json:"is_active"`
	SortOrder   *int      `json:"sort_order" validate:"omitempty,gte=0"`
}

// SuggestRequest carries the draft gig text to classify.
type SuggestRequest struct {
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"max=5000"`
}

// SuggestionSource tells the caller which strategy produced a suggestion.
type SuggestionSource string

const (
	SourceAI      SuggestionSource = "ai"
	SourceKeyword SuggestionSource = "keyword"
)

// Suggestion is one ranked category candidate.
type Suggestion struct {
	Category   CategoryDTO      `json:"category"`
	Confidence float64          `json:"confidence"`
	Source     SuggestionSource `json:"source"`
}

func FromModel(m models.Category) CategoryDTO {
	keywords := []string(m.Keywords)
	if keywords == nil {
		keywords = []string{}
	}
	return CategoryDTO{
		ID:          m.ID,
		Slug:        m.Slug,
		Name:        m.Name,
		Description: m.Description,
		Icon:        m.Icon,
		Keywords:    keywords,
		IsActive:    m.IsActive,
		SortOrder:   m.SortOrder,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
