package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

const escrowReleaseBatch = 50

type EscrowReleaseJobParams struct {
	Logger    *logger.Logger
	Payments  escrowReleaser
	BatchSize int
}

type escrowReleaser interface {
	AutoRelease(ctx context.Context, now time.Time, limit int) (int, error)
}

// NewEscrowReleaseJob captures held escrows for gigs completed longer ago than
// the payments auto-release window.
func NewEscrowReleaseJob(params EscrowReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = escrowReleaseBatch
	}
	return &escrowReleaseJob{
		logg:     params.Logger,
		payments: params.Payments,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type escrowReleaseJob struct {
	logg     *logger.Logger
	payments escrowReleaser
	batch    int
	now      func() time.Time
}

func (j *escrowReleaseJob) Name() string { return "escrow-auto-release" }

func (j *escrowReleaseJob) Run(ctx context.Context) error {
	released, err := j.payments.AutoRelease(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("escrow auto release: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"batch_size": j.batch,
		"released":   released,
	}), "escrow auto release complete")
	return nil
}
