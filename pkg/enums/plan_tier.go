package enums

import "slices"

// PlanTier names the subscription plan a profile is on.
type PlanTier string

const (
	PlanTierFree     PlanTier = "free"
	PlanTierPro      PlanTier = "pro"
	PlanTierBusiness PlanTier = "business"
)

var validPlanTiers = []PlanTier{
	PlanTierFree,
	PlanTierPro,
	PlanTierBusiness,
}

// String implements fmt.Stringer.
func (p PlanTier) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanTier.
func (p PlanTier) IsValid() bool {
	return slices.Contains(validPlanTiers, p)
}

// ParsePlanTier converts raw input into a PlanTier.
func ParsePlanTier(value string) (PlanTier, error) {
	return parse("plan tier", value, validPlanTiers)
}
