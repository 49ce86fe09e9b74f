package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// Profile is the public-facing marketplace identity of a user.
type Profile struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Role                 enums.UserRole `gorm:"column:role;type:user_role;not null"`
	FirstName            string         `gorm:"column:first_name;not null"`
	LastName             string         `gorm:"column:last_name;not null"`
	DisplayName          string         `gorm:"column:display_name;not null"`
	Email                string         `gorm:"column:email;not null"`
	Phone                *string        `gorm:"column:phone"`
	Bio                  *string        `gorm:"column:bio"`
	AvatarURL            *string        `gorm:"column:avatar_url"`
	City                 *string        `gorm:"column:city"`
	Lat                  *float64       `gorm:"column:lat"`
	Lng                  *float64       `gorm:"column:lng"`
	Skills               pq.StringArray `gorm:"column:skills;type:text[];not null;default:'{}'"`
	CategoryIDs          pq.StringArray `gorm:"column:category_ids;type:text[];not null;default:'{}'"`
	HourlyRateCents      *int64         `gorm:"column:hourly_rate_cents"`
	EmergencyAvailable   bool           `gorm:"column:emergency_available;not null;default:false"`
	IsVerified           bool           `gorm:"column:is_verified;not null;default:false"`
	Plan                 enums.PlanTier `gorm:"column:plan;type:plan_tier;not null;default:free"`
	StripeAccountID      *string        `gorm:"column:stripe_account_id"`
	PayoutsEnabled       bool           `gorm:"column:payouts_enabled;not null;default:false"`
	StripeSubscriptionID *string        `gorm:"column:stripe_subscription_id"`
	RatingAvg            float64        `gorm:"column:rating_avg;not null;default:0"`
	RatingCount          int            `gorm:"column:rating_count;not null;default:0"`
	CompletedGigs        int            `gorm:"column:completed_gigs;not null;default:0"`
	CompletedEmergencies int            `gorm:"column:completed_emergencies;not null;default:0"`
	CompletionPercent    int            `gorm:"column:completion_percent;not null;default:0"`
	CreatedAt            time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// IsProvider reports whether the profile offers services.
func (p Profile) IsProvider() bool {
	return p.Role == enums.UserRoleProvider
}
