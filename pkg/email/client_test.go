package email

import (
	"context"
	"errors"
	"io"
	"testing"

	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(config.SendgridConfig{DefaultFrom: "no-reply@gigmarket.app", FromName: "GigMarket"}, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NoError(t, err)
	return c
}

func TestSendBuildsSingleEmail(t *testing.T) {
	c := newTestClient(t)
	var sent *sgmail.SGMailV3
	c.send = func(_ context.Context, msg *sgmail.SGMailV3) (int, string, error) {
		sent = msg
		return 202, "", nil
	}

	require.NoError(t, c.Send(context.Background(), Message{To: "ana@example.com", Subject: "Welcome", HTML: "<p>Hi</p>", Text: "Hi"}))
	require.NotNil(t, sent)
	assert.Equal(t, "Welcome", sent.Subject)
	assert.Equal(t, "no-reply@gigmarket.app", sent.From.Address)
	require.Len(t, sent.Personalizations, 1)
	assert.Equal(t, "ana@example.com", sent.Personalizations[0].To[0].Address)
}

func TestSendSurfacesProviderErrors(t *testing.T) {
	c := newTestClient(t)
	c.send = func(context.Context, *sgmail.SGMailV3) (int, string, error) {
		return 400, `{"errors":[{"message":"bad"}]}`, nil
	}
	assert.Error(t, c.Send(context.Background(), Message{To: "ana@example.com", Subject: "x"}))

	c.send = func(context.Context, *sgmail.SGMailV3) (int, string, error) {
		return 0, "", errors.New("timeout")
	}
	assert.Error(t, c.Send(context.Background(), Message{To: "ana@example.com", Subject: "x"}))
}

func TestSendWithoutAPIKeyIsNoop(t *testing.T) {
	c := newTestClient(t)
	assert.NoError(t, c.Send(context.Background(), Message{To: "ana@example.com", Subject: "x"}))
	assert.Error(t, c.Send(context.Background(), Message{To: "not-an-address", Subject: "x"}))
}

func TestNewClientRejectsBadFrom(t *testing.T) {
	_, err := NewClient(config.SendgridConfig{DefaultFrom: "nope"}, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	assert.Error(t, err)
}
