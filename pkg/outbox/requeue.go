package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Requeuer hands dead-lettered events back to the publisher.
type Requeuer struct {
	tx     txRunner
	outbox *Repository
	dlq    *DLQRepository
}

func NewRequeuer(tx txRunner, outbox *Repository, dlq *DLQRepository) *Requeuer {
	return &Requeuer{tx: tx, outbox: outbox, dlq: dlq}
}

// Requeue resets the outbox row for eventID so the next poll publishes it
// again. When retention already removed the row it is rebuilt from the dead
// letter copy under the same id, which keeps consumer dedupe keys stable.
func (q *Requeuer) Requeue(ctx context.Context, eventID uuid.UUID) error {
	return q.tx.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err := q.dlq.FindByEventIDTx(tx.WithContext(ctx), eventID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("event %s is not dead-lettered", eventID))
		}
		if err != nil {
			return fmt.Errorf("load dead letter: %w", err)
		}

		reset, err := q.outbox.ResetTx(tx, eventID)
		if err != nil {
			return fmt.Errorf("reset outbox row: %w", err)
		}
		if !reset {
			if err := q.outbox.Insert(tx, models.OutboxEvent{
				ID:            entry.EventID,
				EventType:     entry.EventType,
				AggregateType: entry.AggregateType,
				AggregateID:   entry.AggregateID,
				Payload:       entry.Payload,
			}); err != nil {
				return fmt.Errorf("restore outbox row: %w", err)
			}
		}
		return q.dlq.DeleteByEventIDTx(tx, eventID)
	})
}
