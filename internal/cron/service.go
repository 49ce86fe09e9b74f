package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/metrics"
)

const (
	defaultTick    = time.Minute
	defaultRefresh = 2 * time.Minute
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronMetrics
	// Tick is how often schedules are checked.
	Tick time.Duration
	// Refresh is how often the lease is extended while jobs run. It must
	// stay well below the lease TTL.
	Refresh time.Duration
}

// Service wakes every tick, takes the shared lease and runs whichever
// registered jobs are due. Instances that lose the race skip the tick.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronMetrics
	tick     time.Duration
	refresh  time.Duration
	now      func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.Lock == nil:
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:     p.Logger,
		registry: p.Registry,
		lock:     p.Lock,
		metrics:  p.Metrics,
		tick:     p.Tick,
		refresh:  p.Refresh,
		now:      time.Now,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.tick <= 0 {
		s.tick = defaultTick
	}
	if s.refresh <= 0 {
		s.refresh = defaultRefresh
	}
	return s, nil
}

// Run blocks until ctx is canceled. The first tick fires immediately.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron tick failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	now := s.now().UTC()
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cron lease: %w", err)
	}
	if !held {
		for _, name := range s.registry.pending(now) {
			s.metrics.Skipped(name)
		}
		s.logg.Debug(ctx, "cron lease held elsewhere")
		return nil
	}

	jobsCtx, stopKeepalive := context.WithCancel(ctx)
	keepaliveDone := make(chan struct{})
	go func() {
		defer close(keepaliveDone)
		s.keepalive(jobsCtx, stopKeepalive)
	}()
	defer func() {
		stopKeepalive()
		<-keepaliveDone
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "release cron lease", err)
		}
	}()

	due := s.registry.due(now)
	if len(due) == 0 {
		return nil
	}
	s.logg.Debug(s.logg.WithField(ctx, "jobs_due", len(due)), "cron jobs due")
	for _, e := range due {
		if jobsCtx.Err() != nil {
			return fmt.Errorf("cron lease lost before %s", e.job.Name())
		}
		s.runJob(s.logg.WithField(jobsCtx, "schedule", e.spec), e.job)
	}
	return nil
}

// keepalive extends the lease every refresh period and cancels the running
// jobs once it cannot.
func (s *Service) keepalive(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.lock.Extend(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logg.Error(ctx, "cron lease extend failed; aborting run", err)
				cancel()
				return
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, job Job) {
	ctx = s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	s.logg.Info(ctx, "job start")
	start := time.Now()
	err := job.Run(ctx)
	took := time.Since(start)
	s.metrics.Observe(job.Name(), took, err)

	ctx = s.logg.WithField(ctx, "elapsed_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		return
	}
	s.logg.Info(ctx, "job completed")
}
