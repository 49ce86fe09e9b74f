package cron

import (
	"context"
	"fmt"
	"time"

	robfigcron "github.com/robfig/cron/v3"
)

// DefaultSchedule is used for jobs registered without an explicit schedule.
const DefaultSchedule = "@daily"

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job      Job
	spec     string
	schedule robfigcron.Schedule
	next     time.Time
}

// Registry tracks registered cron jobs and when each is next due.
type Registry struct {
	entries []*entry
}

// NewRegistry builds a registry preloaded with the provided jobs on the
// default schedule.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a job on the default schedule.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	schedule, _ := robfigcron.ParseStandard(DefaultSchedule)
	r.entries = append(r.entries, &entry{job: job, spec: DefaultSchedule, schedule: schedule})
}

// RegisterSchedule adds a job with a standard cron spec ("*/5 * * * *",
// "@hourly", "@every 10m").
func (r *Registry) RegisterSchedule(spec string, job Job) error {
	if job == nil {
		return nil
	}
	schedule, err := robfigcron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q for %s: %w", spec, job.Name(), err)
	}
	r.entries = append(r.entries, &entry{job: job, spec: spec, schedule: schedule})
	return nil
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}

// pending lists the names of jobs due at now without advancing them.
func (r *Registry) pending(now time.Time) []string {
	var out []string
	for _, e := range r.entries {
		if e.next.IsZero() || !now.Before(e.next) {
			out = append(out, e.job.Name())
		}
	}
	return out
}

// due returns the jobs whose next run is at or before now and advances their
// schedules. Every job is due on the first call.
func (r *Registry) due(now time.Time) []*entry {
	var out []*entry
	for _, e := range r.entries {
		if e.next.IsZero() || !now.Before(e.next) {
			out = append(out, e)
			e.next = e.schedule.Next(now)
		}
	}
	return out
}
