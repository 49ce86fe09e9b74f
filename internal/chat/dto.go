package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
)

// StartConversationRequest opens (or reopens) a chat with another profile.
type StartConversationRequest struct {
	GigID          *uuid.UUID `json:"gig_id"`
	OtherProfileID uuid.UUID  `json:"other_profile_id" validate:"required"`
}

// SendMessageRequest is the body of a new chat message.
type SendMessageRequest struct {
	Body string `json:"body" validate:"required,min=1,max=4000"`
}

// TypingRequest toggles the typing indicator.
type TypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// ParticipantDTO is the public face of the other party.
type ParticipantDTO struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
}

// ConversationDTO describes a conversation from the reader's point of view.
type ConversationDTO struct {
	ID                 uuid.UUID      `json:"id"`
	GigID              *uuid.UUID     `json:"gig_id,omitempty"`
	ClientID           uuid.UUID      `json:"client_id"`
	ProviderID         uuid.UUID      `json:"provider_id"`
	Counterpart        ParticipantDTO `json:"counterpart"`
	LastMessageAt      *time.Time     `json:"last_message_at,omitempty"`
	LastMessagePreview *string        `json:"last_message_preview,omitempty"`
	UnreadCount        int64          `json:"unread_count"`
	CreatedAt          time.Time      `json:"created_at"`
}

// MessageDTO is one chat message.
type MessageDTO struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReadReceipt is pushed to the counterpart when a conversation is read.
type ReadReceipt struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	ReaderID       uuid.UUID `json:"reader_id"`
	ReadAt         time.Time `json:"read_at"`
}

// TypingSignal is pushed to the counterpart while someone types.
type TypingSignal struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	IsTyping       bool      `json:"is_typing"`
}

func messageFromModel(m models.Message) MessageDTO {
	return MessageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
}

func conversationFromModel(c models.Conversation, reader uuid.UUID, counterpart *models.Profile, unread int64) ConversationDTO {
	dto := ConversationDTO{
		ID:                 c.ID,
		GigID:              c.GigID,
		ClientID:           c.ClientID,
		ProviderID:         c.ProviderID,
		Counterpart:        ParticipantDTO{ID: c.Counterpart(reader)},
		LastMessageAt:      c.LastMessageAt,
		LastMessagePreview: c.LastMessagePreview,
		UnreadCount:        unread,
		CreatedAt:          c.CreatedAt,
	}
	if counterpart != nil {
		dto.Counterpart.DisplayName = counterpart.DisplayName
		dto.Counterpart.AvatarURL = counterpart.AvatarURL
	}
	return dto
}
