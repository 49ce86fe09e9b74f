package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Server-to-client event types.
const (
	EventMessageCreated      = "message.created"
	EventMessageRead         = "message.read"
	EventTyping              = "typing"
	EventNotificationCreated = "notification.created"
	EventEmergencyLocation   = "emergency.location"
	EventEmergencyStatus     = "emergency.status"
	EventPong                = "pong"
	EventError               = "error"
)

// Client-to-server frame types.
const (
	FrameTyping   = "typing"
	FrameLocation = "location"
	FramePing     = "ping"
)

// Event is one message delivered to a user's sockets.
type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data,omitempty"`
	At   time.Time `json:"at"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType string, data any) Event {
	return Event{Type: eventType, Data: data, At: time.Now().UTC()}
}

// envelope is what travels over Redis between instances.
type envelope struct {
	UserID uuid.UUID       `json:"user_id"`
	Type   string          `json:"type"`
	Event  json.RawMessage `json:"event"`
}

func encodeEnvelope(userID uuid.UUID, event Event) ([]byte, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal realtime event: %w", err)
	}
	payload, err := json.Marshal(envelope{UserID: userID, Type: event.Type, Event: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal realtime envelope: %w", err)
	}
	return payload, nil
}

// Publisher puts events on the bus from processes that hold no sockets.
type Publisher struct {
	bus Bus
}

func NewPublisher(bus Bus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) Publish(ctx context.Context, userID uuid.UUID, event Event) error {
	if p == nil || p.bus == nil {
		return fmt.Errorf("realtime publisher not configured")
	}
	payload, err := encodeEnvelope(userID, event)
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, userID, payload)
}

// Frame is an inbound client message.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// TypingFrame is the payload of a typing frame.
type TypingFrame struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	IsTyping       bool      `json:"is_typing"`
}

// LocationFrame is the payload of a location frame.
type LocationFrame struct {
	EmergencyID uuid.UUID `json:"emergency_id"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Heading     *float64  `json:"heading,omitempty"`
}
