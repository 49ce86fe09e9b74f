package payments

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

// UniqueActiveGig guards one live escrow per gig.
const UniqueActiveGig = "payments_active_gig_key"

// Repository persists escrow payments.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		First(&payment, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByIntentForUpdate locks the payment backing a Stripe PaymentIntent.
func (r *Repository) FindByIntentForUpdate(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		First(&payment, "stripe_payment_intent_id = ?", intentID).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Transition is a conditional status update; false means another writer got there first.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from []enums.PaymentStatus, next enums.PaymentStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{"status": next, "updated_at": time.Now().UTC()}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListForUser returns payments where the user is payer or payee, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Payment, error) {
	q := r.db.WithContext(ctx).Where("payer_id = ? OR payee_id = ?", userID, userID)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	q = q.Scopes(pagination.After(cursor, true))
	var rows []models.Payment
	err = q.Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	return rows, err
}

// ListHeldForCompletedGigs returns escrows still held although their gig was
// completed before cutoff.
func (r *Repository) ListHeldForCompletedGigs(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Table("payments AS p").
		Select("p.*").
		Joins("JOIN gigs g ON g.id = p.gig_id").
		Where("p.status = ? AND g.status = ? AND g.completed_at < ?", enums.PaymentStatusHeld, enums.GigStatusCompleted, cutoff).
		Order("g.completed_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
