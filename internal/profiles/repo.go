package profiles

import (
	"context"
	"time"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists marketplace profiles.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the profile repo to a GORM handle (pool or transaction).
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the profile that shares its ID with the owning user.
func (r *Repository) Create(ctx context.Context, profile *models.Profile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

// FindByID loads a profile.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).First(&profile, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindByIDForUpdate locks the profile row inside the caller's transaction.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		First(&profile, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindByIDs loads several profiles keyed by ID.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Profile, error) {
	out := make(map[uuid.UUID]models.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Profile
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// FindByStripeAccount resolves the provider that owns a connected account.
func (r *Repository) FindByStripeAccount(ctx context.Context, accountID string) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).First(&profile, "stripe_account_id = ?", accountID).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update applies the provided column changes.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetPlan stores the subscription tier and subscription reference.
func (r *Repository) SetPlan(ctx context.Context, id uuid.UUID, plan enums.PlanTier, subscriptionID *string) error {
	return r.Update(ctx, id, map[string]any{
		"plan":                   plan,
		"stripe_subscription_id": subscriptionID,
	})
}

// DowngradeBySubscription returns a cancelled subscriber to the free plan.
func (r *Repository) DowngradeBySubscription(ctx context.Context, subscriptionID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("stripe_subscription_id = ?", subscriptionID).
		Updates(map[string]any{
			"plan":                   enums.PlanTierFree,
			"stripe_subscription_id": nil,
			"updated_at":             time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// SetPlanBySubscription moves the subscriber to plan when a subscription changes price.
func (r *Repository) SetPlanBySubscription(ctx context.Context, subscriptionID string, plan enums.PlanTier) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("stripe_subscription_id = ?", subscriptionID).
		Updates(map[string]any{"plan": plan, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// SetPayoutsEnabledByAccount mirrors the connected account capability flag.
func (r *Repository) SetPayoutsEnabledByAccount(ctx context.Context, accountID string, enabled bool) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("stripe_account_id = ?", accountID).
		Updates(map[string]any{"payouts_enabled": enabled, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// UpdateRating stores the recomputed review aggregate.
func (r *Repository) UpdateRating(ctx context.Context, id uuid.UUID, avg float64, count int) error {
	return r.Update(ctx, id, map[string]any{"rating_avg": avg, "rating_count": count})
}

// IncrementCompletedGigs bumps the provider's completed gig counter.
func (r *Repository) IncrementCompletedGigs(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", id).
		UpdateColumn("completed_gigs", gorm.Expr("completed_gigs + 1")).Error
}

// IncrementCompletedEmergencies bumps the provider's completed emergency counter.
func (r *Repository) IncrementCompletedEmergencies(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", id).
		UpdateColumn("completed_emergencies", gorm.Expr("completed_emergencies + 1")).Error
}

// ListEmergencyProviders filters the candidate IDs down to available providers serving the category.
func (r *Repository) ListEmergencyProviders(ctx context.Context, categoryID uuid.UUID, candidateIDs []uuid.UUID) ([]models.Profile, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}
	var rows []models.Profile
	err := r.db.WithContext(ctx).
		Where("id IN ?", candidateIDs).
		Where("role = ?", enums.UserRoleProvider).
		Where("emergency_available = true").
		Where("? = ANY(category_ids)", categoryID.String()).
		Find(&rows).Error
	return rows, err
}
