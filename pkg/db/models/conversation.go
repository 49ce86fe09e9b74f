package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a two-party chat between a client and a provider.
type Conversation struct {
	ID                  uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	GigID               *uuid.UUID `gorm:"column:gig_id;type:uuid"`
	ClientID            uuid.UUID  `gorm:"column:client_id;type:uuid;not null"`
	ProviderID          uuid.UUID  `gorm:"column:provider_id;type:uuid;not null"`
	StartedBy           uuid.UUID  `gorm:"column:started_by;type:uuid;not null"`
	LastMessageAt       *time.Time `gorm:"column:last_message_at"`
	LastMessagePreview  *string    `gorm:"column:last_message_preview"`
	ClientLastReadAt    *time.Time `gorm:"column:client_last_read_at"`
	ProviderLastReadAt  *time.Time `gorm:"column:provider_last_read_at"`
	ProviderRespondedAt *time.Time `gorm:"column:provider_responded_at"`
	CreatedAt           time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// HasParticipant reports whether userID is one of the two parties.
func (c Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.ClientID == userID || c.ProviderID == userID
}

// Counterpart returns the other party for userID.
func (c Conversation) Counterpart(userID uuid.UUID) uuid.UUID {
	if c.ClientID == userID {
		return c.ProviderID
	}
	return c.ClientID
}

// Message is a single chat message.
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ConversationID uuid.UUID `gorm:"column:conversation_id;type:uuid;not null"`
	SenderID       uuid.UUID `gorm:"column:sender_id;type:uuid;not null"`
	Body           string    `gorm:"column:body;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
