package badges

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListForProfile(ctx context.Context, profileID uuid.UUID) ([]models.Badge, error) {
	var rows []models.Badge
	err := r.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("awarded_at ASC").
		Find(&rows).Error
	return rows, err
}

// Award inserts the badge unless the profile already holds it and reports
// whether a row was written.
func (r *Repository) Award(ctx context.Context, profileID uuid.UUID, code enums.BadgeCode) (bool, error) {
	badge := models.Badge{ID: uuid.New(), ProfileID: profileID, Code: code}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "profile_id"}, {Name: "code"}},
			DoNothing: true,
		}).
		Create(&badge)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
