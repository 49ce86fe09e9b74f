package proposals

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

// UniqueGigProvider is the constraint that allows one proposal per provider per gig.
const UniqueGigProvider = "proposals_gig_provider_key"

// Repository persists proposals.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, proposal *models.Proposal) error {
	return r.db.WithContext(ctx).Create(proposal).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	var proposal models.Proposal
	if err := r.db.WithContext(ctx).First(&proposal, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &proposal, nil
}

func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	var proposal models.Proposal
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		First(&proposal, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &proposal, nil
}

// ListForGig returns every proposal on a gig, oldest first.
func (r *Repository) ListForGig(ctx context.Context, gigID uuid.UUID) ([]models.Proposal, error) {
	var rows []models.Proposal
	err := r.db.WithContext(ctx).
		Where("gig_id = ?", gigID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) ListByProvider(ctx context.Context, providerID uuid.UUID, params pagination.Params) ([]models.Proposal, error) {
	q := r.db.WithContext(ctx).Where("provider_id = ?", providerID)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	q = q.Scopes(pagination.After(cursor, true))
	var rows []models.Proposal
	err = q.Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	return rows, err
}

// Transition is a conditional status update; false means the row was no longer in from.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from, next enums.ProposalStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Proposal{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": next, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeclineOthers declines every still-submitted proposal on the gig except keep.
func (r *Repository) DeclineOthers(ctx context.Context, gigID, keep uuid.UUID) ([]models.Proposal, error) {
	var declined []models.Proposal
	err := r.db.WithContext(ctx).
		Model(&declined).
		Clauses(clause.Returning{}).
		Where("gig_id = ? AND id <> ? AND status = ?", gigID, keep, enums.ProposalStatusSubmitted).
		Updates(map[string]any{"status": enums.ProposalStatusDeclined, "updated_at": time.Now().UTC()}).Error
	return declined, err
}
