package quotas

import (
	"time"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// Unlimited marks a plan allowance without a monthly cap.
const Unlimited = -1

// Limits resolves the monthly allowance of a plan for a quota kind.
type Limits struct {
	table map[enums.PlanTier]map[enums.QuotaKind]int
}

func NewLimits(cfg config.QuotaConfig) Limits {
	return Limits{table: map[enums.PlanTier]map[enums.QuotaKind]int{
		enums.PlanTierFree: {
			enums.QuotaKindContactView: cfg.FreeContactViews,
			enums.QuotaKindProposal:    cfg.FreeProposals,
			enums.QuotaKindResponse:    cfg.FreeResponses,
		},
		enums.PlanTierPro: {
			enums.QuotaKindContactView: cfg.ProContactViews,
			enums.QuotaKindProposal:    cfg.ProProposals,
			enums.QuotaKindResponse:    cfg.ProResponses,
		},
		enums.PlanTierBusiness: {
			enums.QuotaKindContactView: cfg.BusinessContactViews,
			enums.QuotaKindProposal:    cfg.BusinessProposals,
			enums.QuotaKindResponse:    cfg.BusinessResponses,
		},
	}}
}

// For returns the limit; unknown plans fall back to the free tier and any
// negative value is normalized to Unlimited.
func (l Limits) For(plan enums.PlanTier, kind enums.QuotaKind) int {
	perKind, ok := l.table[plan]
	if !ok {
		perKind = l.table[enums.PlanTierFree]
	}
	limit := perKind[kind]
	if limit < 0 {
		return Unlimited
	}
	return limit
}

// Period is the calendar-month bucket (UTC) counters are kept in.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}
