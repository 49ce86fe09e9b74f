package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/realtime"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

const previewRunes = 140

// Service is the chat layer: conversations, messages, read receipts and typing.
type Service interface {
	StartConversation(ctx context.Context, userID uuid.UUID, req StartConversationRequest) (*ConversationDTO, error)
	ListConversations(ctx context.Context, userID uuid.UUID, limit int) ([]ConversationDTO, error)
	ListMessages(ctx context.Context, userID, conversationID uuid.UUID, params pagination.Params) (pagination.Page[MessageDTO], error)
	SendMessage(ctx context.Context, senderID, conversationID uuid.UUID, body string) (*MessageDTO, error)
	MarkRead(ctx context.Context, userID, conversationID uuid.UUID) error
	Typing(ctx context.Context, userID, conversationID uuid.UUID, isTyping bool) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type conversationRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	GetOrCreate(ctx context.Context, conv *models.Conversation) (*models.Conversation, bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]ConversationRow, error)
	InsertMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID, params pagination.Params) ([]models.Message, error)
	TouchLastMessage(ctx context.Context, conversationID uuid.UUID, at time.Time, preview string) error
	MarkRead(ctx context.Context, conversationID uuid.UUID, asClient bool, at time.Time) error
	MarkProviderResponded(ctx context.Context, conversationID uuid.UUID, at time.Time) (bool, error)
}

type profileLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Profile, error)
}

type gigLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Gig, error)
}

type quotaConsumer interface {
	Consume(ctx context.Context, tx *gorm.DB, profileID uuid.UUID, kind enums.QuotaKind) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, event realtime.Event) error
}

// ServiceParams bundles chat dependencies.
type ServiceParams struct {
	TxRunner    txRunner
	Repo        conversationRepository
	Profiles    profileLookup
	Gigs        gigLookup
	Quotas      quotaConsumer
	Outbox      outboxEmitter
	Realtime    publisher
	Logger      *logger.Logger
	RepoFactory func(tx *gorm.DB) conversationRepository
}

type service struct {
	tx          txRunner
	repo        conversationRepository
	profiles    profileLookup
	gigs        gigLookup
	quotas      quotaConsumer
	outbox      outboxEmitter
	realtime    publisher
	logg        *logger.Logger
	repoFactory func(tx *gorm.DB) conversationRepository
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TxRunner == nil:
		return nil, fmt.Errorf("tx runner is required")
	case params.Repo == nil:
		return nil, fmt.Errorf("conversation repository is required")
	case params.Profiles == nil:
		return nil, fmt.Errorf("profile lookup is required")
	case params.Gigs == nil:
		return nil, fmt.Errorf("gig lookup is required")
	case params.Quotas == nil:
		return nil, fmt.Errorf("quota consumer is required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter is required")
	case params.Realtime == nil:
		return nil, fmt.Errorf("realtime publisher is required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	if params.RepoFactory == nil {
		params.RepoFactory = func(tx *gorm.DB) conversationRepository { return NewRepository(tx) }
	}
	return &service{
		tx:          params.TxRunner,
		repo:        params.Repo,
		profiles:    params.Profiles,
		gigs:        params.Gigs,
		quotas:      params.Quotas,
		outbox:      params.Outbox,
		realtime:    params.Realtime,
		logg:        params.Logger,
		repoFactory: params.RepoFactory,
	}, nil
}

// StartConversation gets or creates the chat between a client and a provider,
// optionally scoped to one of the client's gigs.
func (s *service) StartConversation(ctx context.Context, userID uuid.UUID, req StartConversationRequest) (*ConversationDTO, error) {
	if req.OtherProfileID == userID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot start a conversation with yourself")
	}
	me, err := s.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	other, err := s.loadProfile(ctx, req.OtherProfileID)
	if err != nil {
		return nil, err
	}

	var clientID, providerID uuid.UUID
	switch {
	case me.Role == enums.UserRoleClient && other.Role == enums.UserRoleProvider:
		clientID, providerID = me.ID, other.ID
	case me.Role == enums.UserRoleProvider && other.Role == enums.UserRoleClient:
		clientID, providerID = other.ID, me.ID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "conversations are between a client and a provider")
	}

	if req.GigID != nil {
		gig, err := s.gigs.FindByID(ctx, *req.GigID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gig not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load gig")
		}
		if gig.ClientID != clientID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "gig does not belong to the client in this conversation")
		}
	}

	conv, _, err := s.repo.GetOrCreate(ctx, &models.Conversation{
		ID:         uuid.New(),
		GigID:      req.GigID,
		ClientID:   clientID,
		ProviderID: providerID,
		StartedBy:  userID,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open conversation")
	}
	dto := conversationFromModel(*conv, userID, other, 0)
	return &dto, nil
}

func (s *service) ListConversations(ctx context.Context, userID uuid.UUID, limit int) ([]ConversationDTO, error) {
	rows, err := s.repo.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list conversations")
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.Counterpart(userID))
	}
	people, err := s.profiles.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load participants")
	}

	out := make([]ConversationDTO, 0, len(rows))
	for _, row := range rows {
		var counterpart *models.Profile
		if p, ok := people[row.Counterpart(userID)]; ok {
			counterpart = &p
		}
		out = append(out, conversationFromModel(row.Conversation, userID, counterpart, row.UnreadCount))
	}
	return out, nil
}

func (s *service) ListMessages(ctx context.Context, userID, conversationID uuid.UUID, params pagination.Params) (pagination.Page[MessageDTO], error) {
	if _, err := s.loadForParticipant(ctx, s.repo, userID, conversationID, false); err != nil {
		return pagination.Page[MessageDTO]{}, err
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[MessageDTO]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListMessages(ctx, conversationID, params)
	if err != nil {
		return pagination.Page[MessageDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list messages")
	}
	dtos := make([]MessageDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, messageFromModel(row))
	}
	return pagination.BuildPage(dtos, params.Limit, func(m MessageDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	}), nil
}

// SendMessage persists a message, charges a response credit on a provider's
// first reply to a client-started conversation, and fans the message out.
func (s *service) SendMessage(ctx context.Context, senderID, conversationID uuid.UUID, body string) (*MessageDTO, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message body is required")
	}

	var (
		msg  *models.Message
		conv *models.Conversation
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repoFactory(tx)
		var err error
		conv, err = s.loadForParticipant(ctx, repo, senderID, conversationID, true)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if senderID == conv.ProviderID && conv.StartedBy == conv.ClientID && conv.ProviderRespondedAt == nil {
			first, err := repo.MarkProviderResponded(ctx, conv.ID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark provider response")
			}
			if first {
				if err := s.quotas.Consume(ctx, tx, senderID, enums.QuotaKindResponse); err != nil {
					return err
				}
			}
		}

		msg = &models.Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			SenderID:       senderID,
			Body:           body,
			CreatedAt:      now,
		}
		if err := repo.InsertMessage(ctx, msg); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert message")
		}
		preview := truncate(body, previewRunes)
		if err := repo.TouchLastMessage(ctx, conv.ID, now, preview); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update conversation")
		}

		senderName := ""
		if sender, err := s.profiles.FindByID(ctx, senderID); err == nil {
			senderName = sender.DisplayName
		}
		return s.emitMessage(ctx, tx, conv, msg, senderName, preview)
	})
	if err != nil {
		return nil, err
	}

	dto := messageFromModel(*msg)
	event := realtime.NewEvent(realtime.EventMessageCreated, dto)
	s.publish(ctx, conv.ClientID, event)
	s.publish(ctx, conv.ProviderID, event)
	return &dto, nil
}

func (s *service) MarkRead(ctx context.Context, userID, conversationID uuid.UUID) error {
	conv, err := s.loadForParticipant(ctx, s.repo, userID, conversationID, false)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := s.repo.MarkRead(ctx, conv.ID, userID == conv.ClientID, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark conversation read")
	}
	s.publish(ctx, conv.Counterpart(userID), realtime.NewEvent(realtime.EventMessageRead, ReadReceipt{
		ConversationID: conv.ID,
		ReaderID:       userID,
		ReadAt:         now,
	}))
	return nil
}

// Typing relays the indicator to the counterpart. Nothing is persisted.
func (s *service) Typing(ctx context.Context, userID, conversationID uuid.UUID, isTyping bool) error {
	conv, err := s.loadForParticipant(ctx, s.repo, userID, conversationID, false)
	if err != nil {
		return err
	}
	s.publish(ctx, conv.Counterpart(userID), realtime.NewEvent(realtime.EventTyping, TypingSignal{
		ConversationID: conv.ID,
		UserID:         userID,
		IsTyping:       isTyping,
	}))
	return nil
}

func (s *service) emitMessage(ctx context.Context, tx *gorm.DB, conv *models.Conversation, msg *models.Message, senderName, preview string) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventMessageCreated,
		AggregateType: enums.AggregateConversation,
		AggregateID:   conv.ID,
		Actor:         &outbox.ActorRef{UserID: msg.SenderID},
		Data: payloads.MessageCreatedEvent{
			MessageID:      msg.ID,
			ConversationID: conv.ID,
			SenderID:       msg.SenderID,
			SenderName:     senderName,
			RecipientID:    conv.Counterpart(msg.SenderID),
			Preview:        preview,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit message event")
	}
	return nil
}

// publish is best effort; the outbox covers offline delivery.
func (s *service) publish(ctx context.Context, userID uuid.UUID, event realtime.Event) {
	if err := s.realtime.Publish(ctx, userID, event); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"recipient_id": userID.String(),
			"event":        event.Type,
			"error":        err.Error(),
		}), "chat.realtime_publish_failed")
	}
}

func (s *service) loadForParticipant(ctx context.Context, repo conversationRepository, userID, conversationID uuid.UUID, lock bool) (*models.Conversation, error) {
	var (
		conv *models.Conversation
		err  error
	)
	if lock {
		conv, err = repo.FindByIDForUpdate(ctx, conversationID)
	} else {
		conv, err = repo.FindByID(ctx, conversationID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "conversation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load conversation")
	}
	if !conv.HasParticipant(userID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "conversation not found")
	}
	return conv, nil
}

func (s *service) loadProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile")
	}
	return profile, nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
