package stripe

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"
)

// EscrowIntentInput describes a manual-capture PaymentIntent routed to a
// provider's connected account.
type EscrowIntentInput struct {
	AmountCents        int64
	FeeCents           int64
	Currency           string
	DestinationAccount string
	Description        string
	IdempotencyKey     string
	Metadata           map[string]string
}

// IntentResult is the subset of a PaymentIntent the marketplace persists.
type IntentResult struct {
	ID           string
	ClientSecret string
	Status       string
}

// CheckoutInput describes a subscription Checkout Session.
type CheckoutInput struct {
	PriceID           string
	ClientReferenceID string
	CustomerEmail     string
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
}

// CheckoutResult carries the hosted checkout redirect.
type CheckoutResult struct {
	ID  string
	URL string
}

// Gateway performs the Stripe resource calls used by payments and plans.
type Gateway struct {
	client *Client
}

// NewGateway binds resource calls to an initialized client.
func NewGateway(client *Client) (*Gateway, error) {
	if client == nil || client.api == nil {
		return nil, errors.New("stripe client is required")
	}
	return &Gateway{client: client}, nil
}

// CreateEscrowIntent creates a PaymentIntent that authorizes now and captures on release.
func (g *Gateway) CreateEscrowIntent(ctx context.Context, in EscrowIntentInput) (*IntentResult, error) {
	if in.AmountCents <= 0 {
		return nil, errors.New("amount must be positive")
	}
	if strings.TrimSpace(in.DestinationAccount) == "" {
		return nil, errors.New("destination account is required")
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(in.AmountCents),
		Currency:      stripe.String(strings.ToLower(in.Currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		TransferData: &stripe.PaymentIntentCreateTransferDataParams{
			Destination: stripe.String(in.DestinationAccount),
		},
		Metadata: in.Metadata,
	}
	if in.FeeCents > 0 {
		params.ApplicationFeeAmount = stripe.Int64(in.FeeCents)
	}
	if in.Description != "" {
		params.Description = stripe.String(in.Description)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	pi, err := g.client.api.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	return &IntentResult{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

// CaptureIntent captures previously authorized funds.
func (g *Gateway) CaptureIntent(ctx context.Context, intentID string) (*IntentResult, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.SetIdempotencyKey("capture-" + intentID)
	pi, err := g.client.api.V1PaymentIntents.Capture(ctx, intentID, params)
	if err != nil {
		return nil, err
	}
	return &IntentResult{ID: pi.ID, Status: string(pi.Status)}, nil
}

// CancelIntent voids an uncaptured authorization.
func (g *Gateway) CancelIntent(ctx context.Context, intentID string) (*IntentResult, error) {
	pi, err := g.client.api.V1PaymentIntents.Cancel(ctx, intentID, &stripe.PaymentIntentCancelParams{})
	if err != nil {
		return nil, err
	}
	return &IntentResult{ID: pi.ID, Status: string(pi.Status)}, nil
}

// RefundIntent refunds a captured PaymentIntent in full and reverses the transfer.
func (g *Gateway) RefundIntent(ctx context.Context, intentID string) (string, error) {
	params := &stripe.RefundCreateParams{
		PaymentIntent:        stripe.String(intentID),
		ReverseTransfer:      stripe.Bool(true),
		RefundApplicationFee: stripe.Bool(true),
	}
	params.SetIdempotencyKey("refund-" + intentID)
	r, err := g.client.api.V1Refunds.Create(ctx, params)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// CreateExpressAccount opens a connected account able to receive transfers.
func (g *Gateway) CreateExpressAccount(ctx context.Context, email string, metadata map[string]string) (string, error) {
	params := &stripe.AccountCreateParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
		Capabilities: &stripe.AccountCreateCapabilitiesParams{
			Transfers: &stripe.AccountCreateCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	acct, err := g.client.api.V1Accounts.Create(ctx, params)
	if err != nil {
		return "", err
	}
	return acct.ID, nil
}

// CreateOnboardingLink returns a one-time hosted onboarding URL.
func (g *Gateway) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkCreateParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	link, err := g.client.api.V1AccountLinks.Create(ctx, params)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

// CreateSubscriptionCheckout starts a hosted checkout for a plan price.
func (g *Gateway) CreateSubscriptionCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if in.PriceID == "" {
		return nil, errors.New("price id is required")
	}
	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{Price: stripe.String(in.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(in.SuccessURL),
		CancelURL:         stripe.String(in.CancelURL),
		ClientReferenceID: stripe.String(in.ClientReferenceID),
		Metadata:          in.Metadata,
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: in.Metadata,
		},
	}
	if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	sess, err := g.client.api.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{ID: sess.ID, URL: sess.URL}, nil
}

// CancelSubscription ends a plan subscription immediately.
func (g *Gateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	_, err := g.client.api.V1Subscriptions.Cancel(ctx, subscriptionID, &stripe.SubscriptionCancelParams{})
	return err
}
