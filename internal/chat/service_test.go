package chat

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

type stubTxRunner struct{}

func (stubTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type memoryChatRepo struct {
	convs    map[uuid.UUID]*models.Conversation
	messages []models.Message
}

func newMemoryChatRepo() *memoryChatRepo {
	return &memoryChatRepo{convs: map[uuid.UUID]*models.Conversation{}}
}

func (m *memoryChatRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv, ok := m.convs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *conv
	return &cp, nil
}

func (m *memoryChatRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	return m.FindByID(ctx, id)
}

func (m *memoryChatRepo) GetOrCreate(_ context.Context, conv *models.Conversation) (*models.Conversation, bool, error) {
	for _, existing := range m.convs {
		sameGig := (existing.GigID == nil && conv.GigID == nil) ||
			(existing.GigID != nil && conv.GigID != nil && *existing.GigID == *conv.GigID)
		if sameGig && existing.ClientID == conv.ClientID && existing.ProviderID == conv.ProviderID {
			cp := *existing
			return &cp, false, nil
		}
	}
	cp := *conv
	m.convs[conv.ID] = &cp
	return conv, true, nil
}

func (m *memoryChatRepo) ListForUser(_ context.Context, userID uuid.UUID, _ int) ([]ConversationRow, error) {
	out := []ConversationRow{}
	for _, conv := range m.convs {
		if conv.HasParticipant(userID) {
			out = append(out, ConversationRow{Conversation: *conv, UnreadCount: m.unread(*conv, userID)})
		}
	}
	return out, nil
}

func (m *memoryChatRepo) unread(conv models.Conversation, userID uuid.UUID) int64 {
	lastRead := conv.ProviderLastReadAt
	if userID == conv.ClientID {
		lastRead = conv.ClientLastReadAt
	}
	var n int64
	for _, msg := range m.messages {
		if msg.ConversationID != conv.ID || msg.SenderID == userID {
			continue
		}
		if lastRead == nil || msg.CreatedAt.After(*lastRead) {
			n++
		}
	}
	return n
}

func (m *memoryChatRepo) InsertMessage(_ context.Context, msg *models.Message) error {
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memoryChatRepo) ListMessages(_ context.Context, conversationID uuid.UUID, _ pagination.Params) ([]models.Message, error) {
	out := []models.Message{}
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].ConversationID == conversationID {
			out = append(out, m.messages[i])
		}
	}
	return out, nil
}

func (m *memoryChatRepo) TouchLastMessage(_ context.Context, conversationID uuid.UUID, at time.Time, preview string) error {
	conv := m.convs[conversationID]
	conv.LastMessageAt = &at
	conv.LastMessagePreview = &preview
	return nil
}

func (m *memoryChatRepo) MarkRead(_ context.Context, conversationID uuid.UUID, asClient bool, at time.Time) error {
	conv := m.convs[conversationID]
	if asClient {
		conv.ClientLastReadAt = &at
	} else {
		conv.ProviderLastReadAt = &at
	}
	return nil
}

func (m *memoryChatRepo) MarkProviderResponded(_ context.Context, conversationID uuid.UUID, at time.Time) (bool, error) {
	conv := m.convs[conversationID]
	if conv.ProviderRespondedAt != nil {
		return false, nil
	}
	conv.ProviderRespondedAt = &at
	return true, nil
}

type stubProfiles map[uuid.UUID]models.Profile

func (s stubProfiles) FindByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	p, ok := s[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (s stubProfiles) FindByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Profile, error) {
	out := map[uuid.UUID]models.Profile{}
	for _, id := range ids {
		if p, ok := s[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type stubGigs map[uuid.UUID]models.Gig

func (s stubGigs) FindByID(_ context.Context, id uuid.UUID) (*models.Gig, error) {
	g, ok := s[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &g, nil
}

type countingQuotas struct {
	charged map[uuid.UUID]int
	deny    bool
}

func (c *countingQuotas) Consume(_ context.Context, _ *gorm.DB, profileID uuid.UUID, kind enums.QuotaKind) error {
	if kind != enums.QuotaKindResponse {
		return pkgerrors.New(pkgerrors.CodeInternal, "unexpected quota kind")
	}
	if c.deny {
		return pkgerrors.New(pkgerrors.CodeQuotaExceeded, "monthly response limit reached")
	}
	c.charged[profileID]++
	return nil
}

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type published struct {
	userID uuid.UUID
	event  realtime.Event
}

type recordingPublisher struct {
	sent []published
}

func (r *recordingPublisher) Publish(_ context.Context, userID uuid.UUID, event realtime.Event) error {
	r.sent = append(r.sent, published{userID: userID, event: event})
	return nil
}

type chatFixture struct {
	svc      Service
	repo     *memoryChatRepo
	quotas   *countingQuotas
	outbox   *recordingOutbox
	realtime *recordingPublisher
	client   models.Profile
	provider models.Profile
	other    models.Profile
	gig      models.Gig
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	client := models.Profile{ID: uuid.New(), Role: enums.UserRoleClient, DisplayName: "Dana R."}
	provider := models.Profile{ID: uuid.New(), Role: enums.UserRoleProvider, DisplayName: "Sam P."}
	other := models.Profile{ID: uuid.New(), Role: enums.UserRoleClient, DisplayName: "Lee K."}
	gig := models.Gig{ID: uuid.New(), ClientID: client.ID}

	repo := newMemoryChatRepo()
	quotas := &countingQuotas{charged: map[uuid.UUID]int{}}
	box := &recordingOutbox{}
	pub := &recordingPublisher{}

	svc, err := NewService(ServiceParams{
		TxRunner:    stubTxRunner{},
		Repo:        repo,
		Profiles:    stubProfiles{client.ID: client, provider.ID: provider, other.ID: other},
		Gigs:        stubGigs{gig.ID: gig},
		Quotas:      quotas,
		Outbox:      box,
		Realtime:    pub,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		RepoFactory: func(*gorm.DB) conversationRepository { return repo },
	})
	require.NoError(t, err)
	return &chatFixture{svc: svc, repo: repo, quotas: quotas, outbox: box, realtime: pub, client: client, provider: provider, other: other, gig: gig}
}

func TestStartConversationIsIdempotent(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	first, err := f.svc.StartConversation(ctx, f.client.ID, StartConversationRequest{GigID: &f.gig.ID, OtherProfileID: f.provider.ID})
	require.NoError(t, err)
	assert.Equal(t, f.client.ID, first.ClientID)
	assert.Equal(t, f.provider.ID, first.ProviderID)
	assert.Equal(t, "Sam P.", first.Counterpart.DisplayName)

	again, err := f.svc.StartConversation(ctx, f.provider.ID, StartConversationRequest{GigID: &f.gig.ID, OtherProfileID: f.client.ID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, f.repo.convs, 1)
}

func TestStartConversationValidation(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartConversation(ctx, f.client.ID, StartConversationRequest{OtherProfileID: f.client.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.StartConversation(ctx, f.client.ID, StartConversationRequest{OtherProfileID: f.other.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "two clients cannot chat")

	_, err = f.svc.StartConversation(ctx, f.other.ID, StartConversationRequest{GigID: &f.gig.ID, OtherProfileID: f.provider.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "gig must belong to the client")

	missing := uuid.New()
	_, err = f.svc.StartConversation(ctx, f.client.ID, StartConversationRequest{GigID: &missing, OtherProfileID: f.provider.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestProviderFirstReplyConsumesOneResponseCredit(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	conv, err := f.svc.StartConversation(ctx, f.client.ID, StartConversationRequest{OtherProfileID: f.provider.ID})
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, f.client.ID, conv.ID, "Are you free on Saturday?")
	require.NoError(t, err)
	assert.Zero(t, f.quotas.charged[f.provider.ID])

	_, err = f.svc.SendMessage(ctx, f.provider.ID, conv.ID, "Yes, morning works.")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, f.provider.ID, conv.ID, "I will bring the parts.")
	require.NoError(t, err)

	assert.Equal(t, 1, f.quotas.charged[f.provider.ID])
	assert.Len(t, f.repo.messages, 3)
}

func TestProviderStartedConversationIsFree(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	conv, err := f.svc.StartConversation(ctx, f.provider.ID, StartConversationRequest{OtherProfileID: f.client.ID})
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, f.provider.ID, conv.ID, "Saw your post, happy to help.")
	require.NoError(t, err)
	assert.Zero(t, f.quotas.charged[f.provider.ID])
}

func TestReplyBlockedWhenResponseQuotaExhausted(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	conv, err := f.svc.StartConversation(ctx, f.client.ID, StartConversationRequest{OtherProfileID: f.provider.ID})
	require.NoError(t, err)
	f.quotas.deny = true

	_, err = f.svc.SendMessage(ctx, f.provider.ID, conv.ID, "Hello")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeQuotaExceeded))
	assert.Empty(t, f.realtime.sent)
}

func TestSendMessageFansOut(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	conv, err := f.svc.StartConversation(ctx, f.client.ID, StartConversationRequest{OtherProfileID: f.provider.ID})
	require.NoError(t, err)

	msg, err := f.svc.SendMessage(ctx, f.client.ID, conv.ID, "  Need help with a sink  ")
	require.NoError(t, err)
	assert.Equal(t, "Need help with a sink", msg.Body)

	require.Len(t, f.realtime.sent, 2)
	recipients := []uuid.UUID{f.realtime.sent[0].userID, f.realtime.sent[1].userID}
	assert.ElementsMatch(t, []uuid.UUID{f.client.ID, f.provider.ID}, recipients)
	assert.Equal(t, realtime.EventMessageCreated, f.realtime.sent[0].event.Type)

	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.EventMessageCreated, f.outbox.events[0].EventType)
	payload, ok := f.outbox.events[0].Data.(payloads.MessageCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, f.provider.ID, payload.RecipientID)
	assert.Equal(t, "Dana R.", payload.SenderName)

	stored := f.repo.convs[conv.ID]
	require.NotNil(t, stored.LastMessagePreview)
	assert.Equal(t, "Need help with a sink", *stored.LastMessagePreview)
}

func TestNonParticipantCannotReadOrWrite(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	conv, err := f.svc.StartConversation(ctx, f.client.ID, StartConversationRequest{OtherProfileID: f.provider.ID})
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, f.other.ID, conv.ID, "hi")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.ListMessages(ctx, f.other.ID, conv.ID, pagination.Params{Limit: 10})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMarkReadClearsUnreadAndNotifiesCounterpart(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	conv, err := f.svc.StartConversation(ctx, f.client.ID, StartConversationRequest{OtherProfileID: f.provider.ID})
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, f.client.ID, conv.ID, "First")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, f.client.ID, conv.ID, "Second")
	require.NoError(t, err)

	list, err := f.svc.ListConversations(ctx, f.provider.ID, 20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.EqualValues(t, 2, list[0].UnreadCount)
	assert.Equal(t, "Dana R.", list[0].Counterpart.DisplayName)

	f.realtime.sent = nil
	require.NoError(t, f.svc.MarkRead(ctx, f.provider.ID, conv.ID))
	require.Len(t, f.realtime.sent, 1)
	assert.Equal(t, f.client.ID, f.realtime.sent[0].userID)
	assert.Equal(t, realtime.EventMessageRead, f.realtime.sent[0].event.Type)

	list, err = f.svc.ListConversations(ctx, f.provider.ID, 20)
	require.NoError(t, err)
	assert.Zero(t, list[0].UnreadCount)
}

func TestTypingIsRelayedOnly(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	conv, err := f.svc.StartConversation(ctx, f.client.ID, StartConversationRequest{OtherProfileID: f.provider.ID})
	require.NoError(t, err)

	require.NoError(t, f.svc.Typing(ctx, f.provider.ID, conv.ID, true))
	require.Len(t, f.realtime.sent, 1)
	assert.Equal(t, f.client.ID, f.realtime.sent[0].userID)
	signal, ok := f.realtime.sent[0].event.Data.(TypingSignal)
	require.True(t, ok)
	assert.True(t, signal.IsTyping)
	assert.Empty(t, f.repo.messages)
	assert.Empty(t, f.outbox.events)
}

func TestTruncatePreview(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
