package gigs

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

// Repository persists gigs.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, gig *models.Gig) error {
	return r.db.WithContext(ctx).Create(gig).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Gig, error) {
	var gig models.Gig
	if err := r.db.WithContext(ctx).First(&gig, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &gig, nil
}

// FindByIDForUpdate row-locks the gig inside the caller's transaction.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Gig, error) {
	var gig models.Gig
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		First(&gig, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &gig, nil
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Gig{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Transition moves the gig to next only while it is still in one of from.
// It returns false when another writer changed the status first.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from []enums.GigStatus, next enums.GigStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{"status": next, "updated_at": time.Now().UTC()}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Gig{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// List returns gigs newest first with one extra row for cursor detection.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Gig, error) {
	q := r.db.WithContext(ctx).Model(&models.Gig{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	return r.page(applyFilter(q, filter), filter)
}

// ListByClient returns gigs posted by clientID.
func (r *Repository) ListByClient(ctx context.Context, clientID uuid.UUID, filter ListFilter) ([]models.Gig, error) {
	q := r.db.WithContext(ctx).Model(&models.Gig{}).Where("client_id = ?", clientID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	return r.page(q, filter)
}

// ListByProvider returns gigs assigned to providerID.
func (r *Repository) ListByProvider(ctx context.Context, providerID uuid.UUID, filter ListFilter) ([]models.Gig, error) {
	q := r.db.WithContext(ctx).Model(&models.Gig{}).Where("provider_id = ?", providerID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	return r.page(q, filter)
}

// likeEscaper keeps user search terms literal inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func applyFilter(q *gorm.DB, filter ListFilter) *gorm.DB {
	if filter.CategoryID != nil {
		q = q.Where("category_id = ?", *filter.CategoryID)
	}
	if city := strings.TrimSpace(filter.City); city != "" {
		q = q.Where("LOWER(city) = LOWER(?)", city)
	}
	if term := strings.TrimSpace(filter.Query); term != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", like, like)
	}
	if filter.MinBudget != nil {
		q = q.Where("budget_cents >= ?", *filter.MinBudget)
	}
	if filter.MaxBudget != nil {
		q = q.Where("budget_cents <= ?", *filter.MaxBudget)
	}
	return q
}

func (r *Repository) page(q *gorm.DB, filter ListFilter) ([]models.Gig, error) {
	cursor, err := pagination.ParseCursor(filter.Cursor)
	if err != nil {
		return nil, err
	}
	q = q.Scopes(pagination.After(cursor, true))
	var rows []models.Gig
	err = q.Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(filter.Limit)).
		Find(&rows).Error
	return rows, err
}
