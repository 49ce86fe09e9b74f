package push

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert registers token for its user. A token that moved devices or accounts
// is reassigned rather than duplicated.
func (r *Repository) Upsert(ctx context.Context, token *models.PushToken) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "last_seen_at"}),
		}).
		Create(token).Error
}

func (r *Repository) Delete(ctx context.Context, userID uuid.UUID, token string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND token = ?", userID, token).
		Delete(&models.PushToken{})
	return res.RowsAffected, res.Error
}

func (r *Repository) TokensForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var tokens []string
	err := r.db.WithContext(ctx).
		Model(&models.PushToken{}).
		Where("user_id = ?", userID).
		Order("last_seen_at DESC").
		Pluck("token", &tokens).Error
	return tokens, err
}

func (r *Repository) DeleteTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("token IN ?", tokens).
		Delete(&models.PushToken{})
	return res.RowsAffected, res.Error
}

// DeleteStaleBefore drops tokens no device has refreshed since cutoff.
func (r *Repository) DeleteStaleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("last_seen_at < ?", cutoff).
		Delete(&models.PushToken{})
	return res.RowsAffected, res.Error
}
