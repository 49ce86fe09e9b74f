package reviews

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

// UniqueGigReviewer is the one-review-per-reviewer-per-gig constraint.
const UniqueGigReviewer = "reviews_gig_reviewer_key"

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).Create(review).Error
}

func (r *Repository) ListForReviewee(ctx context.Context, revieweeID uuid.UUID, params pagination.Params) ([]models.Review, error) {
	q := r.db.WithContext(ctx).Where("reviewee_id = ?", revieweeID)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	q = q.Scopes(pagination.After(cursor, true))
	var rows []models.Review
	err = q.Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	return rows, err
}

// Aggregate recomputes the reviewee's average rating and review count.
func (r *Repository) Aggregate(ctx context.Context, revieweeID uuid.UUID) (float64, int, error) {
	var agg struct {
		Avg   float64
		Total int
	}
	err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS total").
		Where("reviewee_id = ?", revieweeID).
		Scan(&agg).Error
	return agg.Avg, agg.Total, err
}
