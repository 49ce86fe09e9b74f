package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

type mode string

const (
	modeTest mode = "test"
	modeLive mode = "live"
)

// keyPrefixes lists the secret and restricted key prefixes accepted per mode.
var keyPrefixes = map[mode][]string{
	modeTest: {"sk_test_", "rk_test_"},
	modeLive: {"sk_live_", "rk_live_"},
}

// Client wraps a per-instance Stripe API client. Nothing touches the
// package-level stripe.Key, so test and live clients can coexist.
type Client struct {
	api           *stripe.Client
	mode          mode
	signingSecret string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	m := mode(cfg.Environment())
	prefixes, ok := keyPrefixes[m]
	if !ok {
		return nil, fmt.Errorf("stripe environment must be %q or %q, got %q", modeTest, modeLive, m)
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case apiKey == "":
		return nil, errors.New("stripe api key is required")
	case secret == "":
		return nil, errors.New("stripe webhook secret is required")
	case !hasAnyPrefix(apiKey, prefixes):
		return nil, fmt.Errorf("stripe %s mode needs a key starting with %s", m, strings.Join(prefixes, " or "))
	}

	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(max(cfg.MaxRetries, 0)),
	})
	client := &Client{
		api:           stripe.NewClient(apiKey, stripe.WithBackends(backends)),
		mode:          m,
		signingSecret: secret,
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_mode", string(m)), "stripe client ready")
	}
	return client, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return string(c.mode)
}

// SigningSecret is the webhook endpoint secret used to verify deliveries.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
