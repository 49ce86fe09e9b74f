package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

type PushTokenPruneJobParams struct {
	Logger *logger.Logger
	Push   staleTokenPruner
}

type staleTokenPruner interface {
	PruneStale(ctx context.Context, now time.Time) (int64, error)
}

func NewPushTokenPruneJob(params PushTokenPruneJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Push == nil {
		return nil, fmt.Errorf("push service required")
	}
	return &pushTokenPruneJob{logg: params.Logger, push: params.Push, now: time.Now}, nil
}

type pushTokenPruneJob struct {
	logg *logger.Logger
	push staleTokenPruner
	now  func() time.Time
}

func (j *pushTokenPruneJob) Name() string { return "push-token-prune" }

func (j *pushTokenPruneJob) Run(ctx context.Context) error {
	deleted, err := j.push.PruneStale(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("push token prune: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "tokens_deleted", deleted), "push token prune complete")
	return nil
}
