package quotas

import "github.com/angelmondragon/gigmarket-backend/pkg/enums"

// UsageDTO summarizes the current period for every metered kind.
type UsageDTO struct {
	Plan   enums.PlanTier `json:"plan"`
	Period string         `json:"period"`
	Items  []KindUsage    `json:"items"`
}

// KindUsage reports one allowance. Limit and Remaining are -1 when unlimited.
type KindUsage struct {
	Kind      enums.QuotaKind `json:"kind"`
	Used      int             `json:"used"`
	Limit     int             `json:"limit"`
	Remaining int             `json:"remaining"`
	Unlimited bool            `json:"unlimited"`
}

func newKindUsage(kind enums.QuotaKind, used, limit int) KindUsage {
	if limit < 0 {
		return KindUsage{Kind: kind, Used: used, Limit: Unlimited, Remaining: Unlimited, Unlimited: true}
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return KindUsage{Kind: kind, Used: used, Limit: limit, Remaining: remaining}
}
