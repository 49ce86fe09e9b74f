package reviews

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
)

type CreateRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"omitempty,max=2000"`
}

type ReviewDTO struct {
	ID           uuid.UUID `json:"id"`
	GigID        uuid.UUID `json:"gig_id"`
	ReviewerID   uuid.UUID `json:"reviewer_id"`
	ReviewerName string    `json:"reviewer_name,omitempty"`
	RevieweeID   uuid.UUID `json:"reviewee_id"`
	Rating       int       `json:"rating"`
	Comment      *string   `json:"comment,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func FromModel(r models.Review) ReviewDTO {
	return ReviewDTO{
		ID:         r.ID,
		GigID:      r.GigID,
		ReviewerID: r.ReviewerID,
		RevieweeID: r.RevieweeID,
		Rating:     r.Rating,
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt,
	}
}
