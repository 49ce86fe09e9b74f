package fcm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

// maxMulticastTokens is the FCM limit for one multicast request.
const maxMulticastTokens = 500

// Message is the notification rendered on the device.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Result summarises a multicast; InvalidTokens should be forgotten by the caller.
type Result struct {
	Sent          int
	Failed        int
	InvalidTokens []string
}

type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Client delivers push notifications through Firebase Cloud Messaging.
type Client struct {
	sender multicastSender
	logg   *logger.Logger
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PushConfig, logg *logger.Logger) (*Client, error) {
	opts := gcp.ClientOptions()
	if strings.TrimSpace(cfg.CredentialsJSON) != "" {
		opts = []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))}
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: gcp.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	msg, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "fcm client initialized")
	}
	return &Client{sender: msg, logg: logg}, nil
}

// SendMulticast fans msg out to tokens in FCM-sized batches.
func (c *Client) SendMulticast(ctx context.Context, tokens []string, msg Message) (*Result, error) {
	if c == nil || c.sender == nil {
		return nil, errors.New("fcm client not initialized")
	}
	result := &Result{}
	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := start + maxMulticastTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]
		resp, err := c.sender.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens:       batch,
			Notification: &messaging.Notification{Title: msg.Title, Body: msg.Body},
			Data:         msg.Data,
		})
		if err != nil {
			return result, fmt.Errorf("fcm multicast: %w", err)
		}
		result.Sent += resp.SuccessCount
		result.Failed += resp.FailureCount
		for i, r := range resp.Responses {
			if r == nil || r.Success || i >= len(batch) {
				continue
			}
			if messaging.IsUnregistered(r.Error) || messaging.IsInvalidArgument(r.Error) {
				result.InvalidTokens = append(result.InvalidTokens, batch[i])
			}
		}
	}
	return result, nil
}
