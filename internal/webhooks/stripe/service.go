package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/gigmarket-backend/internal/payments"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

type paymentSink interface {
	ApplyIntentUpdate(ctx context.Context, update payments.IntentUpdate) (bool, error)
	SyncConnectedAccount(ctx context.Context, accountID string, payoutsEnabled bool) error
}

type planSink interface {
	ActivateFromCheckout(ctx context.Context, profileID uuid.UUID, plan enums.PlanTier, subscriptionID string) error
	SyncSubscription(ctx context.Context, subscriptionID, priceID string, active bool) error
	Downgrade(ctx context.Context, subscriptionID string) error
}

type ServiceParams struct {
	Payments paymentSink
	Plans    planSink
	Logger   *logger.Logger
}

// Service applies verified Stripe events to escrow payments, connected
// accounts and plan subscriptions.
type Service struct {
	payments paymentSink
	plans    planSink
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if params.Plans == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plans service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		payments: params.Payments,
		plans:    params.Plans,
		logg:     params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
	})

	switch event.Type {
	case stripe.EventTypePaymentIntentAmountCapturableUpdated:
		return s.intentEvent(ctx, event, enums.PaymentStatusHeld)
	case stripe.EventTypePaymentIntentSucceeded:
		return s.intentEvent(ctx, event, enums.PaymentStatusReleased)
	case stripe.EventTypePaymentIntentPaymentFailed:
		return s.intentEvent(ctx, event, enums.PaymentStatusFailed)
	case stripe.EventTypePaymentIntentCanceled:
		return s.intentEvent(ctx, event, enums.PaymentStatusCancelled)
	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := decode(event, &charge); err != nil {
			return err
		}
		if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
			s.logg.Warn(ctx, "stripe.charge.no_intent")
			return nil
		}
		if !charge.Refunded {
			// partial refunds are not modelled; the escrow stays released
			return nil
		}
		update := payments.IntentUpdate{IntentID: charge.PaymentIntent.ID, Status: enums.PaymentStatusRefunded}
		if charge.Refunds != nil && len(charge.Refunds.Data) > 0 {
			update.RefundID = charge.Refunds.Data[0].ID
		}
		_, err := s.payments.ApplyIntentUpdate(ctx, update)
		return err
	case stripe.EventTypeAccountUpdated:
		var account stripe.Account
		if err := decode(event, &account); err != nil {
			return err
		}
		return s.payments.SyncConnectedAccount(ctx, account.ID, account.PayoutsEnabled)
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := decode(event, &session); err != nil {
			return err
		}
		return s.checkoutCompleted(ctx, &session)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := decode(event, &sub); err != nil {
			return err
		}
		return s.plans.SyncSubscription(ctx, sub.ID, determinePriceID(&sub), isActiveSubscription(sub.Status))
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := decode(event, &sub); err != nil {
			return err
		}
		return s.plans.Downgrade(ctx, sub.ID)
	default:
		s.logg.Debug(ctx, "stripe.event.ignored")
		return nil
	}
}

func (s *Service) intentEvent(ctx context.Context, event *stripe.Event, status enums.PaymentStatus) error {
	var intent stripe.PaymentIntent
	if err := decode(event, &intent); err != nil {
		return err
	}
	update := payments.IntentUpdate{IntentID: intent.ID, Status: status}
	switch status {
	case enums.PaymentStatusFailed:
		if intent.LastPaymentError != nil {
			update.Reason = intent.LastPaymentError.Msg
		}
	case enums.PaymentStatusCancelled:
		update.Reason = string(intent.CancellationReason)
	}
	_, err := s.payments.ApplyIntentUpdate(ctx, update)
	return err
}

func (s *Service) checkoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	if session.Mode != stripe.CheckoutSessionModeSubscription {
		return nil
	}
	rawProfile := session.Metadata["profile_id"]
	if rawProfile == "" {
		rawProfile = session.ClientReferenceID
	}
	profileID, err := uuid.Parse(rawProfile)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session missing profile reference")
	}
	subscriptionID := ""
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}
	return s.plans.ActivateFromCheckout(ctx, profileID, enums.PlanTier(session.Metadata["plan"]), subscriptionID)
}

func decode(event *stripe.Event, dst any) error {
	if err := json.Unmarshal(event.Data.Raw, dst); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode stripe event object")
	}
	return nil
}

// past_due keeps the plan while Stripe retries the invoice.
func isActiveSubscription(status stripe.SubscriptionStatus) bool {
	switch status {
	case stripe.SubscriptionStatusActive,
		stripe.SubscriptionStatusTrialing,
		stripe.SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}

func determinePriceID(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	if sub.Items.Data[0].Price != nil {
		return sub.Items.Data[0].Price.ID
	}
	return ""
}
