package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

const (
	defaultRetention   = 30 * 24 * time.Hour
	outboxMinAttempts  = 5
	notificationsTable = "notifications"
	outboxTable        = "outbox_events"
)

// purgeFunc deletes rows older than cutoff inside tx and reports how many.
type purgeFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

// retentionJob trims one table to a rolling window. Each run computes the
// cutoff from the injected clock and deletes in a single transaction.
type retentionJob struct {
	name   string
	table  string
	logg   *logger.Logger
	db     txRunner
	window time.Duration
	purge  purgeFunc
	now    func() time.Time
}

func newRetentionJob(name, table string, logg *logger.Logger, db txRunner, window time.Duration, purge purgeFunc) (*retentionJob, error) {
	switch {
	case logg == nil:
		return nil, errors.New("logger required")
	case db == nil:
		return nil, errors.New("db runner required")
	case purge == nil:
		return nil, fmt.Errorf("%s repository required", table)
	}
	if window <= 0 {
		window = defaultRetention
	}
	return &retentionJob{
		name:   name,
		table:  table,
		logg:   logg,
		db:     db,
		window: window,
		purge:  purge,
		now:    time.Now,
	}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)

	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.purge(ctx, tx, cutoff)
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"table":       j.table,
		"cutoff":      cutoff,
		"rows_deleted": deleted,
	}), "retention sweep complete")
	return nil
}

type notificationsPurger interface {
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository notificationsPurger
	Retention  time.Duration
}

// NewNotificationCleanupJob removes read notifications past the retention
// window. Unread notifications are never swept.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	var purge purgeFunc
	if params.Repository != nil {
		purge = params.Repository.DeleteOlderThan
	}
	return newRetentionJob("notification-cleanup", notificationsTable, params.Logger, params.DB, params.Retention, purge)
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Repository  outboxPurger
	Retention   time.Duration
	MinAttempts int
}

// NewOutboxRetentionJob removes delivered outbox rows, plus rows that gave up
// after MinAttempts deliveries, once they fall outside the retention window.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	minAttempts := params.MinAttempts
	if minAttempts <= 0 {
		minAttempts = outboxMinAttempts
	}
	var purge purgeFunc
	if params.Repository != nil {
		purge = func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return params.Repository.DeletePublishedBefore(ctx, tx, cutoff, minAttempts)
		}
	}
	return newRetentionJob("outbox-retention", outboxTable, params.Logger, params.DB, params.Retention, purge)
}
