package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

// Message is one rendered transactional email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type sendFunc func(ctx context.Context, msg *sgmail.SGMailV3) (status int, body string, err error)

// Client sends mail through SendGrid. Without an API key it logs instead of sending.
type Client struct {
	send     sendFunc
	fromName string
	fromAddr string
	logg     *logger.Logger
}

func NewClient(cfg config.SendgridConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	from := strings.TrimSpace(cfg.DefaultFrom)
	if _, err := mail.ParseAddress(from); err != nil {
		return nil, fmt.Errorf("invalid sendgrid from address %q: %w", from, err)
	}
	c := &Client{fromName: cfg.FromName, fromAddr: from, logg: logg}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		sg := sendgrid.NewSendClient(key)
		c.send = func(ctx context.Context, msg *sgmail.SGMailV3) (int, string, error) {
			resp, err := sg.SendWithContext(ctx, msg)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		}
	}
	return c, nil
}

func (c *Client) Send(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.To)
	if _, err := mail.ParseAddress(to); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{"to_domain": domainOf(to), "subject": msg.Subject})

	if c.send == nil {
		c.logg.Info(logCtx, "email.skipped_no_api_key")
		return nil
	}

	text := msg.Text
	if strings.TrimSpace(text) == "" {
		text = " "
	}
	payload := sgmail.NewSingleEmail(
		sgmail.NewEmail(c.fromName, c.fromAddr),
		msg.Subject,
		sgmail.NewEmail("", to),
		text,
		msg.HTML,
	)
	status, body, err := c.send(ctx, payload)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if status >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", status, strings.TrimSpace(body))
	}
	c.logg.Info(logCtx, "email.sent")
	return nil
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return ""
}
