package stripewebhook

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/gigmarket-backend/internal/payments"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

type recordingPayments struct {
	updates  []payments.IntentUpdate
	accounts map[string]bool
}

func (r *recordingPayments) ApplyIntentUpdate(_ context.Context, update payments.IntentUpdate) (bool, error) {
	r.updates = append(r.updates, update)
	return true, nil
}

func (r *recordingPayments) SyncConnectedAccount(_ context.Context, accountID string, payoutsEnabled bool) error {
	if r.accounts == nil {
		r.accounts = map[string]bool{}
	}
	r.accounts[accountID] = payoutsEnabled
	return nil
}

type activation struct {
	profileID      uuid.UUID
	plan           enums.PlanTier
	subscriptionID string
}

type syncCall struct {
	subscriptionID string
	priceID        string
	active         bool
}

type recordingPlans struct {
	activations []activation
	syncs       []syncCall
	downgrades  []string
}

func (r *recordingPlans) ActivateFromCheckout(_ context.Context, profileID uuid.UUID, plan enums.PlanTier, subscriptionID string) error {
	r.activations = append(r.activations, activation{profileID, plan, subscriptionID})
	return nil
}

func (r *recordingPlans) SyncSubscription(_ context.Context, subscriptionID, priceID string, active bool) error {
	r.syncs = append(r.syncs, syncCall{subscriptionID, priceID, active})
	return nil
}

func (r *recordingPlans) Downgrade(_ context.Context, subscriptionID string) error {
	r.downgrades = append(r.downgrades, subscriptionID)
	return nil
}

func newTestService(t *testing.T) (*Service, *recordingPayments, *recordingPlans) {
	t.Helper()
	pay := &recordingPayments{}
	plans := &recordingPlans{}
	svc, err := NewService(ServiceParams{
		Payments: pay,
		Plans:    plans,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc, pay, plans
}

func eventOf(t *testing.T, typ stripe.EventType, obj any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(obj)
	require.NoError(t, err)
	return &stripe.Event{ID: "evt_" + uuid.NewString(), Type: typ, Data: &stripe.EventData{Raw: raw}}
}

func TestService_PaymentIntentEventsMapToEscrowStatus(t *testing.T) {
	svc, pay, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		typ    stripe.EventType
		intent *stripe.PaymentIntent
		want   payments.IntentUpdate
	}{
		{
			typ:    stripe.EventTypePaymentIntentAmountCapturableUpdated,
			intent: &stripe.PaymentIntent{ID: "pi_1"},
			want:   payments.IntentUpdate{IntentID: "pi_1", Status: enums.PaymentStatusHeld},
		},
		{
			typ:    stripe.EventTypePaymentIntentSucceeded,
			intent: &stripe.PaymentIntent{ID: "pi_1"},
			want:   payments.IntentUpdate{IntentID: "pi_1", Status: enums.PaymentStatusReleased},
		},
		{
			typ:    stripe.EventTypePaymentIntentPaymentFailed,
			intent: &stripe.PaymentIntent{ID: "pi_2", LastPaymentError: &stripe.Error{Msg: "card declined"}},
			want:   payments.IntentUpdate{IntentID: "pi_2", Status: enums.PaymentStatusFailed, Reason: "card declined"},
		},
		{
			typ:    stripe.EventTypePaymentIntentCanceled,
			intent: &stripe.PaymentIntent{ID: "pi_3", CancellationReason: stripe.PaymentIntentCancellationReasonAbandoned},
			want:   payments.IntentUpdate{IntentID: "pi_3", Status: enums.PaymentStatusCancelled, Reason: "abandoned"},
		},
	}
	for _, tc := range cases {
		require.NoError(t, svc.HandleEvent(ctx, eventOf(t, tc.typ, tc.intent)))
	}
	require.Len(t, pay.updates, len(cases))
	for i, tc := range cases {
		assert.Equal(t, tc.want, pay.updates[i], string(tc.typ))
	}
}

func TestService_ChargeRefundedCarriesRefundID(t *testing.T) {
	svc, pay, _ := newTestService(t)
	charge := &stripe.Charge{
		ID:            "ch_1",
		Refunded:      true,
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_9"},
		Refunds:       &stripe.RefundList{Data: []*stripe.Refund{{ID: "re_1"}}},
	}
	require.NoError(t, svc.HandleEvent(context.Background(), eventOf(t, stripe.EventTypeChargeRefunded, charge)))
	require.Len(t, pay.updates, 1)
	assert.Equal(t, payments.IntentUpdate{IntentID: "pi_9", Status: enums.PaymentStatusRefunded, RefundID: "re_1"}, pay.updates[0])

	partial := &stripe.Charge{ID: "ch_2", PaymentIntent: &stripe.PaymentIntent{ID: "pi_10"}}
	require.NoError(t, svc.HandleEvent(context.Background(), eventOf(t, stripe.EventTypeChargeRefunded, partial)))
	assert.Len(t, pay.updates, 1)
}

func TestService_AccountUpdatedSyncsPayouts(t *testing.T) {
	svc, pay, _ := newTestService(t)
	account := &stripe.Account{ID: "acct_1", PayoutsEnabled: true}
	require.NoError(t, svc.HandleEvent(context.Background(), eventOf(t, stripe.EventTypeAccountUpdated, account)))
	assert.True(t, pay.accounts["acct_1"])
}

func TestService_CheckoutCompletedActivatesPlan(t *testing.T) {
	svc, _, plans := newTestService(t)
	profileID := uuid.New()
	session := &stripe.CheckoutSession{
		ID:                "cs_1",
		Mode:              stripe.CheckoutSessionModeSubscription,
		ClientReferenceID: profileID.String(),
		Metadata:          map[string]string{"plan": "business"},
		Subscription:      &stripe.Subscription{ID: "sub_1"},
	}
	require.NoError(t, svc.HandleEvent(context.Background(), eventOf(t, stripe.EventTypeCheckoutSessionCompleted, session)))
	require.Len(t, plans.activations, 1)
	assert.Equal(t, activation{profileID, enums.PlanTierBusiness, "sub_1"}, plans.activations[0])

	payment := &stripe.CheckoutSession{ID: "cs_2", Mode: stripe.CheckoutSessionModePayment}
	require.NoError(t, svc.HandleEvent(context.Background(), eventOf(t, stripe.EventTypeCheckoutSessionCompleted, payment)))
	assert.Len(t, plans.activations, 1)
}

func TestService_SubscriptionEvents(t *testing.T) {
	svc, _, plans := newTestService(t)
	ctx := context.Background()

	updated := &stripe.Subscription{
		ID:     "sub_1",
		Status: stripe.SubscriptionStatusUnpaid,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{Price: &stripe.Price{ID: "price_pro"}}},
		},
	}
	require.NoError(t, svc.HandleEvent(ctx, eventOf(t, stripe.EventTypeCustomerSubscriptionUpdated, updated)))
	require.Len(t, plans.syncs, 1)
	assert.Equal(t, syncCall{"sub_1", "price_pro", false}, plans.syncs[0])

	deleted := &stripe.Subscription{ID: "sub_1", Status: stripe.SubscriptionStatusCanceled}
	require.NoError(t, svc.HandleEvent(ctx, eventOf(t, stripe.EventTypeCustomerSubscriptionDeleted, deleted)))
	assert.Equal(t, []string{"sub_1"}, plans.downgrades)
}

func TestService_UnknownEventAcknowledged(t *testing.T) {
	svc, pay, plans := newTestService(t)
	require.NoError(t, svc.HandleEvent(context.Background(), eventOf(t, stripe.EventTypeInvoicePaid, map[string]any{"id": "in_1"})))
	assert.Empty(t, pay.updates)
	assert.Empty(t, plans.syncs)
}

func TestService_RequiresEventData(t *testing.T) {
	svc, _, _ := newTestService(t)
	assert.Error(t, svc.HandleEvent(context.Background(), &stripe.Event{}))
}
