package documents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, doc *models.ProviderDocument) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ProviderDocument, error) {
	var doc models.ProviderDocument
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ProviderDocument, error) {
	var doc models.ProviderDocument
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		First(&doc, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *Repository) ListForProvider(ctx context.Context, providerID uuid.UUID) ([]models.ProviderDocument, error) {
	var rows []models.ProviderDocument
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND status <> ?", providerID, enums.DocumentStatusPendingUpload).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

// ListPendingReview returns the moderation queue oldest first.
func (r *Repository) ListPendingReview(ctx context.Context, params pagination.Params) ([]models.ProviderDocument, error) {
	q := r.db.WithContext(ctx).Where("status = ?", enums.DocumentStatusPendingReview)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	q = q.Scopes(pagination.After(cursor, false))
	var rows []models.ProviderDocument
	err = q.Order("created_at ASC").Order("id ASC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	return rows, err
}

// ListAbandonedUploads finds documents whose upload was never confirmed.
func (r *Repository) ListAbandonedUploads(ctx context.Context, cutoff time.Time, limit int) ([]models.ProviderDocument, error) {
	var rows []models.ProviderDocument
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.DocumentStatusPendingUpload, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.ProviderDocument{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.ProviderDocument{}, "id = ?", id).Error
}
