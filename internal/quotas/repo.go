package quotas

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// Repository reads and writes quota counters and contact unlocks.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

const incrementGuardedSQL = `
INSERT INTO quota_usages (profile_id, period, kind, used, updated_at)
VALUES (?, ?, ?, 1, ?)
ON CONFLICT (profile_id, period, kind)
DO UPDATE SET used = quota_usages.used + 1, updated_at = excluded.updated_at
WHERE quota_usages.used < ?
RETURNING used`

const incrementUnguardedSQL = `
INSERT INTO quota_usages (profile_id, period, kind, used, updated_at)
VALUES (?, ?, ?, 1, ?)
ON CONFLICT (profile_id, period, kind)
DO UPDATE SET used = quota_usages.used + 1, updated_at = excluded.updated_at
RETURNING used`

type usedRow struct {
	Used int
}

// Increment bumps the counter in a single statement. The conflict branch only
// fires while used is below limit, so concurrent callers can never overshoot.
// ok is false when the allowance is exhausted. A negative limit is unlimited.
func (r *Repository) Increment(ctx context.Context, profileID uuid.UUID, period string, kind enums.QuotaKind, limit int) (int, bool, error) {
	if limit == 0 {
		return 0, false, nil
	}
	now := time.Now().UTC()

	var rows []usedRow
	var err error
	if limit < 0 {
		err = r.db.WithContext(ctx).Raw(incrementUnguardedSQL, profileID, period, kind, now).Scan(&rows).Error
	} else {
		err = r.db.WithContext(ctx).Raw(incrementGuardedSQL, profileID, period, kind, now, limit).Scan(&rows).Error
	}
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return limit, false, nil
	}
	return rows[0].Used, true, nil
}

// UsageForPeriod returns counters keyed by kind for one period.
func (r *Repository) UsageForPeriod(ctx context.Context, profileID uuid.UUID, period string) (map[enums.QuotaKind]int, error) {
	var rows []models.QuotaUsage
	err := r.db.WithContext(ctx).
		Where("profile_id = ? AND period = ?", profileID, period).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[enums.QuotaKind]int, len(rows))
	for _, row := range rows {
		out[row.Kind] = row.Used
	}
	return out, nil
}

// InsertContactView records the unlock and reports whether it is new.
func (r *Repository) InsertContactView(ctx context.Context, viewerID, targetID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO contact_views (id, viewer_id, target_id, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (viewer_id, target_id) DO NOTHING`,
		uuid.New(), viewerID, targetID, time.Now().UTC(),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// HasViewed reports whether viewer already unlocked target.
func (r *Repository) HasViewed(ctx context.Context, viewerID, targetID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ContactView{}).
		Where("viewer_id = ? AND target_id = ?", viewerID, targetID).
		Count(&count).Error
	return count > 0, err
}
