package plans

import "github.com/angelmondragon/gigmarket-backend/pkg/enums"

type CheckoutRequest struct {
	Plan       enums.PlanTier `json:"plan" validate:"required,oneof=pro business"`
	SuccessURL string         `json:"success_url" validate:"required,url"`
	CancelURL  string         `json:"cancel_url" validate:"required,url"`
}

// CheckoutDTO is the hosted Stripe Checkout the client redirects to.
type CheckoutDTO struct {
	SessionID string         `json:"session_id"`
	URL       string         `json:"url"`
	Plan      enums.PlanTier `json:"plan"`
}

// PlanDTO describes one purchasable tier and its monthly allowances.
type PlanDTO struct {
	Plan         enums.PlanTier `json:"plan"`
	ContactViews int            `json:"contact_views"`
	Proposals    int            `json:"proposals"`
	Responses    int            `json:"responses"`
	Current      bool           `json:"current"`
}
