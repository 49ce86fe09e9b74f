package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

type EmergencyExpiryJobParams struct {
	Logger    *logger.Logger
	Emergency emergencyExpirer
}

type emergencyExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// NewEmergencyExpiryJob closes emergency requests nobody accepted in time.
func NewEmergencyExpiryJob(params EmergencyExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Emergency == nil {
		return nil, fmt.Errorf("emergency service required")
	}
	return &emergencyExpiryJob{logg: params.Logger, emergency: params.Emergency, now: time.Now}, nil
}

type emergencyExpiryJob struct {
	logg      *logger.Logger
	emergency emergencyExpirer
	now       func() time.Time
}

func (j *emergencyExpiryJob) Name() string { return "emergency-expiry" }

func (j *emergencyExpiryJob) Run(ctx context.Context) error {
	expired, err := j.emergency.ExpireStale(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("emergency expiry: %w", err)
	}
	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "requests_expired", expired), "emergency expiry complete")
	}
	return nil
}
