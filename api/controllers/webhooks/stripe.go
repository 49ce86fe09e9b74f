package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/gigmarket-backend/api/responses"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

// maxStripePayload matches the size Stripe documents for webhook bodies.
const maxStripePayload = 65536

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// StripeWebhookGuard dedupes Stripe event ids.
type StripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type StripeSigner interface {
	SigningSecret() string
}

// StripeWebhook verifies and dedupes Stripe deliveries before handing them to
// the escrow and plan handlers. A failed handler releases the event id so
// Stripe's retry is processed.
func StripeWebhook(svc StripeWebhookService, signer StripeSigner, guard StripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || signer == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
			return
		}

		event, err := verifyStripeEvent(w, r, signer.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		seen, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event"))
			return
		}
		if seen {
			responses.WriteSuccess(w, map[string]any{"duplicate": true})
			return
		}

		fields := map[string]any{
			"stripe_event_id":   event.ID,
			"stripe_event_type": string(event.Type),
		}
		if err := svc.HandleEvent(ctx, event); err != nil {
			if relErr := guard.Delete(context.WithoutCancel(ctx), event.ID); relErr != nil && logg != nil {
				logg.Error(logg.WithFields(ctx, fields), "release stripe event", relErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithFields(ctx, fields), "stripe webhook handled")
		}
		responses.WriteSuccess(w, nil)
	}
}

func verifyStripeEvent(w http.ResponseWriter, r *http.Request, secret string) (*stripe.Event, error) {
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxStripePayload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe payload too large")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read stripe payload")
	}

	// Events keep the API version of the endpoint that produced them, which
	// may lag the library's pinned version.
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature")
	}
	return &event, nil
}
