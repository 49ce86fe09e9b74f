package emailtemplates

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
)

const UniqueTemplateKey = "email_templates_key_key"

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context) ([]models.EmailTemplate, error) {
	var rows []models.EmailTemplate
	err := r.db.WithContext(ctx).Order("key ASC").Find(&rows).Error
	return rows, err
}

func (r *Repository) FindByKey(ctx context.Context, key string) (*models.EmailTemplate, error) {
	var row models.EmailTemplate
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) Create(ctx context.Context, tpl *models.EmailTemplate) error {
	return r.db.WithContext(ctx).Create(tpl).Error
}

func (r *Repository) Save(ctx context.Context, tpl *models.EmailTemplate) error {
	return r.db.WithContext(ctx).Save(tpl).Error
}

func (r *Repository) DeleteByKey(ctx context.Context, key string) (int64, error) {
	res := r.db.WithContext(ctx).Where("key = ?", key).Delete(&models.EmailTemplate{})
	return res.RowsAffected, res.Error
}
