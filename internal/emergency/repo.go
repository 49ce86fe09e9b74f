package emergency

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

func (r *Repository) Create(ctx context.Context, req *models.EmergencyRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.EmergencyRequest, error) {
	var row models.EmergencyRequest
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.EmergencyRequest, error) {
	var row models.EmergencyRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		First(&row, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Transition moves the request to next only while it is in one of from. The
// returned bool is false when another writer got there first.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from []enums.EmergencyStatus, next enums.EmergencyStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{"status": next, "updated_at": time.Now().UTC()}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.EmergencyRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Claim assigns the provider if the request is still searching and unclaimed.
func (r *Repository) Claim(ctx context.Context, id, providerID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.EmergencyRequest{}).
		Where("id = ? AND status = ? AND provider_id IS NULL", id, enums.EmergencyStatusSearching).
		Updates(map[string]any{
			"status":      enums.EmergencyStatusAccepted,
			"provider_id": providerID,
			"accepted_at": at,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListForUser returns requests the user opened or was assigned, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.EmergencyRequest, error) {
	q := r.db.WithContext(ctx).Where("client_id = ? OR provider_id = ?", userID, userID)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	q = q.Scopes(pagination.After(cursor, true))
	var rows []models.EmergencyRequest
	err = q.Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	return rows, err
}

// ListSearchingBefore returns searching requests created before cutoff.
func (r *Repository) ListSearchingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.EmergencyRequest, error) {
	var rows []models.EmergencyRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.EmergencyStatusSearching, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
