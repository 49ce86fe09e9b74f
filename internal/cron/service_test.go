package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/metrics"
)

type stubLock struct {
	mu        sync.Mutex
	busy      bool
	held      bool
	extendErr error
	releases  int
}

func (l *stubLock) Acquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy || l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *stubLock) Extend(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.extendErr
}

func (l *stubLock) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.releases++
	return nil
}

type countingJob struct {
	name string
	err  error
	runs int
	run  func(ctx context.Context) error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs++
	if j.run != nil {
		return j.run(ctx)
	}
	return j.err
}

func newTestService(t *testing.T, reg *Registry, lock Lock, m *metrics.CronMetrics) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: reg,
		Lock:     lock,
		Metrics:  m,
		Refresh:  5 * time.Millisecond,
	})
	require.NoError(t, err)
	return svc
}

func TestRunCycleContinuesPastFailures(t *testing.T) {
	ok := &countingJob{name: "escrow_release"}
	bad := &countingJob{name: "emergency_expiry", err: errors.New("boom")}
	lock := &stubLock{}
	svc := newTestService(t, NewRegistry(ok, bad), lock, nil)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, bad.runs)
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)
}

func TestRunCycleHonoursSchedules(t *testing.T) {
	reg := NewRegistry()
	hourly := &countingJob{name: "hourly"}
	require.NoError(t, reg.RegisterSchedule("@hourly", hourly))
	svc := newTestService(t, reg, &stubLock{}, nil)

	now := time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	for range 3 {
		require.NoError(t, svc.runCycle(context.Background()))
		now = now.Add(time.Minute)
	}
	assert.Equal(t, 1, hourly.runs, "first tick runs everything once")

	now = time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC)
	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 2, hourly.runs)
}

func TestRunCycleSkipsWhenLeaseHeldElsewhere(t *testing.T) {
	job := &countingJob{name: "notification_cleanup"}
	reg := prometheus.NewRegistry()
	svc := newTestService(t, NewRegistry(job), &stubLock{busy: true}, metrics.NewCronMetrics(reg))

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Zero(t, job.runs)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 1)
	assert.Equal(t, "gigmarket_cron_job_runs_total", mfs[0].GetName())
	assert.Equal(t, float64(1), mfs[0].GetMetric()[0].GetCounter().GetValue())
}

func TestRunCycleAbortsWhenLeaseLost(t *testing.T) {
	long := &countingJob{name: "long", run: func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return nil
		}
	}}
	after := &countingJob{name: "after"}
	lock := &stubLock{extendErr: errLeaseLost}
	svc := newTestService(t, NewRegistry(long, after), lock, nil)

	err := svc.runCycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, long.runs)
	assert.Zero(t, after.runs)
	assert.Equal(t, 1, lock.releases)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &stubLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "x"})})
	assert.Error(t, err)
}
