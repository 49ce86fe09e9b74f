package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

// Repository persists conversations and messages.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindByParticipants looks up the conversation for a pair, scoped to a gig when given.
func (r *Repository) FindByParticipants(ctx context.Context, gigID *uuid.UUID, clientID, providerID uuid.UUID) (*models.Conversation, error) {
	q := r.db.WithContext(ctx).Where("client_id = ? AND provider_id = ?", clientID, providerID)
	if gigID == nil {
		q = q.Where("gig_id IS NULL")
	} else {
		q = q.Where("gig_id = ?", *gigID)
	}
	var conv models.Conversation
	if err := q.First(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetOrCreate returns the existing conversation for the pair or inserts conv.
// The insert never raises a unique violation, so it is safe inside a caller's
// transaction: losing a concurrent race falls back to the winner's row.
func (r *Repository) GetOrCreate(ctx context.Context, conv *models.Conversation) (*models.Conversation, bool, error) {
	existing, err := r.FindByParticipants(ctx, conv.GigID, conv.ClientID, conv.ProviderID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return r.insertOrFind(ctx, conv)
}

func (r *Repository) insertOrFind(ctx context.Context, conv *models.Conversation) (*models.Conversation, bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(conv)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return conv, true, nil
	}
	existing, err := r.FindByParticipants(ctx, conv.GigID, conv.ClientID, conv.ProviderID)
	return existing, false, err
}

// ConversationRow is a conversation plus the reader's unread count.
type ConversationRow struct {
	models.Conversation
	UnreadCount int64
}

const listForUserSQL = `
SELECT c.*,
  (SELECT COUNT(*) FROM messages m
    WHERE m.conversation_id = c.id
      AND m.sender_id <> @user
      AND m.created_at > COALESCE(
        CASE WHEN c.client_id = @user THEN c.client_last_read_at ELSE c.provider_last_read_at END,
        'epoch'::timestamptz)
  ) AS unread_count
FROM conversations c
WHERE c.client_id = @user OR c.provider_id = @user
ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC
LIMIT @limit`

// ListForUser returns the user's conversations, most recently active first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]ConversationRow, error) {
	var rows []ConversationRow
	err := r.db.WithContext(ctx).
		Raw(listForUserSQL, map[string]any{"user": userID, "limit": pagination.NormalizeLimit(limit)}).
		Scan(&rows).Error
	return rows, err
}

func (r *Repository) InsertMessage(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// ListMessages returns messages newest first with one extra row for cursor detection.
func (r *Repository) ListMessages(ctx context.Context, conversationID uuid.UUID, params pagination.Params) ([]models.Message, error) {
	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	q = q.Scopes(pagination.After(cursor, true))
	var rows []models.Message
	err = q.Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) TouchLastMessage(ctx context.Context, conversationID uuid.UUID, at time.Time, preview string) error {
	return r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]any{"last_message_at": at, "last_message_preview": preview}).Error
}

// MarkRead stamps the reader's last-read column.
func (r *Repository) MarkRead(ctx context.Context, conversationID uuid.UUID, asClient bool, at time.Time) error {
	column := "provider_last_read_at"
	if asClient {
		column = "client_last_read_at"
	}
	return r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update(column, at).Error
}

// MarkProviderResponded stamps the first provider reply and reports whether
// this call was the one that did it.
func (r *Repository) MarkProviderResponded(ctx context.Context, conversationID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ? AND provider_responded_at IS NULL", conversationID).
		Update("provider_responded_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
