package plans

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/quotas"
	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/gigmarket-backend/pkg/stripe"
)

// Service sells plan upgrades through Stripe subscriptions and mirrors the
// subscription state onto profiles.
type Service interface {
	List(ctx context.Context, profileID uuid.UUID) ([]PlanDTO, error)
	CreateCheckout(ctx context.Context, profileID uuid.UUID, req CheckoutRequest) (*CheckoutDTO, error)
	Cancel(ctx context.Context, profileID uuid.UUID) error
	ActivateFromCheckout(ctx context.Context, profileID uuid.UUID, plan enums.PlanTier, subscriptionID string) error
	SyncSubscription(ctx context.Context, subscriptionID, priceID string, active bool) error
	Downgrade(ctx context.Context, subscriptionID string) error
	PlanForPrice(priceID string) (enums.PlanTier, bool)
}

type profileStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	SetPlan(ctx context.Context, id uuid.UUID, plan enums.PlanTier, subscriptionID *string) error
	SetPlanBySubscription(ctx context.Context, subscriptionID string, plan enums.PlanTier) (int64, error)
	DowngradeBySubscription(ctx context.Context, subscriptionID string) (int64, error)
}

type checkoutGateway interface {
	CreateSubscriptionCheckout(ctx context.Context, in pkgstripe.CheckoutInput) (*pkgstripe.CheckoutResult, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

type ServiceParams struct {
	Profiles profileStore
	Gateway  checkoutGateway
	Limits   quotas.Limits
	Stripe   config.StripeConfig
	Logger   *logger.Logger
}

type service struct {
	profiles profileStore
	gateway  checkoutGateway
	limits   quotas.Limits
	prices   map[enums.PlanTier]string
	logg     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Profiles == nil:
		return nil, fmt.Errorf("profile store is required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("checkout gateway is required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	prices := map[enums.PlanTier]string{}
	if id := strings.TrimSpace(params.Stripe.ProPriceID); id != "" {
		prices[enums.PlanTierPro] = id
	}
	if id := strings.TrimSpace(params.Stripe.BusinessPrice); id != "" {
		prices[enums.PlanTierBusiness] = id
	}
	return &service{
		profiles: params.Profiles,
		gateway:  params.Gateway,
		limits:   params.Limits,
		prices:   prices,
		logg:     params.Logger,
	}, nil
}

func (s *service) List(ctx context.Context, profileID uuid.UUID) ([]PlanDTO, error) {
	profile, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	tiers := []enums.PlanTier{enums.PlanTierFree, enums.PlanTierPro, enums.PlanTierBusiness}
	out := make([]PlanDTO, 0, len(tiers))
	for _, tier := range tiers {
		out = append(out, PlanDTO{
			Plan:         tier,
			ContactViews: s.limits.For(tier, enums.QuotaKindContactView),
			Proposals:    s.limits.For(tier, enums.QuotaKindProposal),
			Responses:    s.limits.For(tier, enums.QuotaKindResponse),
			Current:      profile.Plan == tier,
		})
	}
	return out, nil
}

func (s *service) CreateCheckout(ctx context.Context, profileID uuid.UUID, req CheckoutRequest) (*CheckoutDTO, error) {
	priceID, ok := s.prices[req.Plan]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan is not available for purchase").
			WithDetails(map[string]any{"plan": req.Plan})
	}
	profile, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile.Plan == req.Plan {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "already subscribed to this plan")
	}

	session, err := s.gateway.CreateSubscriptionCheckout(ctx, pkgstripe.CheckoutInput{
		PriceID:           priceID,
		ClientReferenceID: profile.ID.String(),
		CustomerEmail:     profile.Email,
		SuccessURL:        req.SuccessURL,
		CancelURL:         req.CancelURL,
		Metadata: map[string]string{
			"profile_id": profile.ID.String(),
			"plan":       string(req.Plan),
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return &CheckoutDTO{SessionID: session.ID, URL: session.URL, Plan: req.Plan}, nil
}

// Cancel ends the subscription now and drops the profile to free.
func (s *service) Cancel(ctx context.Context, profileID uuid.UUID) error {
	profile, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return err
	}
	if profile.StripeSubscriptionID == nil || *profile.StripeSubscriptionID == "" {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no active subscription")
	}
	if err := s.gateway.CancelSubscription(ctx, *profile.StripeSubscriptionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel subscription")
	}
	return s.Downgrade(ctx, *profile.StripeSubscriptionID)
}

func (s *service) ActivateFromCheckout(ctx context.Context, profileID uuid.UUID, plan enums.PlanTier, subscriptionID string) error {
	if plan != enums.PlanTierPro && plan != enums.PlanTierBusiness {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout carried an unknown plan").
			WithDetails(map[string]any{"plan": plan})
	}
	var sub *string
	if subscriptionID != "" {
		sub = &subscriptionID
	}
	if err := s.profiles.SetPlan(ctx, profileID, plan, sub); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "profile_id", profileID.String()), "plans.checkout.unknown_profile")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "activate plan")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"profile_id": profileID.String(),
		"plan":       string(plan),
	}), "plans.activated")
	return nil
}

// SyncSubscription follows price changes and lapses reported by Stripe.
func (s *service) SyncSubscription(ctx context.Context, subscriptionID, priceID string, active bool) error {
	if !active {
		return s.Downgrade(ctx, subscriptionID)
	}
	plan, ok := s.PlanForPrice(priceID)
	if !ok {
		s.logg.Warn(s.logg.WithField(ctx, "price_id", priceID), "plans.subscription.unknown_price")
		return nil
	}
	if _, err := s.profiles.SetPlanBySubscription(ctx, subscriptionID, plan); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sync plan")
	}
	return nil
}

func (s *service) Downgrade(ctx context.Context, subscriptionID string) error {
	n, err := s.profiles.DowngradeBySubscription(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "downgrade plan")
	}
	if n > 0 {
		s.logg.Info(s.logg.WithField(ctx, "subscription_id", subscriptionID), "plans.downgraded")
	}
	return nil
}

func (s *service) PlanForPrice(priceID string) (enums.PlanTier, bool) {
	for plan, id := range s.prices {
		if id == priceID {
			return plan, true
		}
	}
	return "", false
}

func (s *service) loadProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile")
	}
	return profile, nil
}
