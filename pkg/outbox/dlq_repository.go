package outbox

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

const (
	maxDLQErrorLen   = 1024
	defaultDLQListed = 50
)

// DLQRepository stores outbox rows the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx records a dead letter. Long error messages are cut at a rune
// boundary so the column never holds broken UTF-8.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := clipUTF8(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// DLQFilter narrows List. Zero values match everything.
type DLQFilter struct {
	EventType enums.OutboxEventType
	Reason    enums.OutboxDLQErrorReason
	Limit     int
}

// List returns dead letters newest first.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	q := r.db.WithContext(ctx).Order("failed_at DESC")
	if filter.EventType != "" {
		q = q.Where("event_type = ?", filter.EventType)
	}
	if filter.Reason != "" {
		q = q.Where("error_reason = ?", filter.Reason)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDLQListed
	}

	var rows []models.OutboxDLQ
	err := q.Limit(limit).Find(&rows).Error
	return rows, err
}

// FindByEventIDTx returns gorm.ErrRecordNotFound when the event was never
// dead-lettered.
func (r *DLQRepository) FindByEventIDTx(tx *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	if err := tx.Where("event_id = ?", eventID).Order("failed_at DESC").First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteByEventIDTx drops every dead letter recorded for eventID.
func (r *DLQRepository) DeleteByEventIDTx(tx *gorm.DB, eventID uuid.UUID) error {
	return tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{}).Error
}

func clipUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
