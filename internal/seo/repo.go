package seo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// Repository persists seo_pages and reads the marketplace counts the
// dashboard needs.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context) ([]models.SEOPage, error) {
	var rows []models.SEOPage
	err := r.db.WithContext(ctx).Order("path ASC").Find(&rows).Error
	return rows, err
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SEOPage, error) {
	var page models.SEOPage
	if err := r.db.WithContext(ctx).First(&page, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &page, nil
}

func (r *Repository) Create(ctx context.Context, page *models.SEOPage) error {
	return r.db.WithContext(ctx).Create(page).Error
}

// Update applies column changes and reports gorm.ErrRecordNotFound when nothing matched.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.SEOPage{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.SEOPage{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type categoryCount struct {
	CategoryID uuid.UUID
	Total      int64
}

// CountOpenGigsByCategory counts gigs currently accepting proposals.
func (r *Repository) CountOpenGigsByCategory(ctx context.Context) (map[uuid.UUID]int64, error) {
	var rows []categoryCount
	err := r.db.WithContext(ctx).
		Model(&models.Gig{}).
		Select("category_id, COUNT(*) AS total").
		Where("status = ?", enums.GigStatusOpen).
		Group("category_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toCountMap(rows), nil
}

// CountProvidersByCategory counts active providers offering each category.
func (r *Repository) CountProvidersByCategory(ctx context.Context) (map[uuid.UUID]int64, error) {
	var rows []categoryCount
	err := r.db.WithContext(ctx).Raw(`
SELECT c.category_id::uuid AS category_id, COUNT(*) AS total
FROM profiles p
JOIN users u ON u.id = p.id
CROSS JOIN LATERAL unnest(p.category_ids) AS c(category_id)
WHERE p.role = ? AND u.status = ?
GROUP BY c.category_id`, enums.UserRoleProvider, enums.UserStatusActive).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toCountMap(rows), nil
}

func toCountMap(rows []categoryCount) map[uuid.UUID]int64 {
	out := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		out[row.CategoryID] = row.Total
	}
	return out
}
