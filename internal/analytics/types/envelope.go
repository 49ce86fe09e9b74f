package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// ErrMalformedPayload marks a payload no retry can fix; consumers ack it.
var ErrMalformedPayload = errors.New("malformed analytics payload")

// Envelope is one analytics event as read off the subscription: routing
// fields from the message attributes, Payload from the outbox envelope data.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	EventType     enums.AnalyticsEventType  `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Payload       json.RawMessage           `json:"payload"`
}

func (e Envelope) Decode(dst any) error {
	body := bytes.TrimSpace(e.Payload)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
