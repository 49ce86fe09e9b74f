package stripe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
)

func TestNewClientValidatesKeysPerEnvironment(t *testing.T) {
	cases := []struct {
		name     string
		cfg      config.StripeConfig
		wantMode string
		wantErr  string
	}{
		{name: "test key in test env", cfg: config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_1", Env: "test"}, wantMode: "test"},
		{name: "env defaults to test", cfg: config.StripeConfig{APIKey: "rk_test_123", Secret: "whsec_1"}, wantMode: "test"},
		{name: "restricted live key", cfg: config.StripeConfig{APIKey: "rk_live_123", Secret: "whsec_1", Env: "LIVE"}, wantMode: "live"},
		{name: "live key in test env", cfg: config.StripeConfig{APIKey: "sk_live_123", Secret: "whsec_1", Env: "test"}, wantErr: "sk_test_ or rk_test_"},
		{name: "publishable key", cfg: config.StripeConfig{APIKey: "pk_test_123", Secret: "whsec_1"}, wantErr: "test mode"},
		{name: "missing secret", cfg: config.StripeConfig{APIKey: "sk_test_123"}, wantErr: "webhook secret"},
		{name: "missing key", cfg: config.StripeConfig{Secret: "whsec_1"}, wantErr: "api key"},
		{name: "unknown env", cfg: config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_1", Env: "staging"}, wantErr: "staging"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tc.cfg, nil)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantMode, client.Environment())
			assert.Equal(t, "whsec_1", client.SigningSecret())

			_, err = NewGateway(client)
			assert.NoError(t, err)
		})
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.Empty(t, c.Environment())
	assert.Empty(t, c.SigningSecret())

	_, err := NewGateway(nil)
	assert.Error(t, err)
	_, err = NewGateway(&Client{mode: modeTest})
	assert.Error(t, err, "client without api handle")
}

func TestGatewayValidatesBeforeCallingStripe(t *testing.T) {
	gw := &Gateway{client: &Client{mode: modeTest}}
	ctx := context.Background()

	_, err := gw.CreateEscrowIntent(ctx, EscrowIntentInput{AmountCents: 0, DestinationAccount: "acct_1"})
	assert.ErrorContains(t, err, "amount")
	_, err = gw.CreateEscrowIntent(ctx, EscrowIntentInput{AmountCents: 500})
	assert.ErrorContains(t, err, "destination")
	_, err = gw.CreateSubscriptionCheckout(ctx, CheckoutInput{})
	assert.ErrorContains(t, err, "price")
}
