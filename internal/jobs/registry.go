// Package jobs tracks long-running background work so HTTP handlers can
// reject duplicate starts and cancel in-flight runs cooperatively.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

/* Job lifecycle statuses */
const (
	StatusRunning  = "RUNNING"
	StatusDone     = "DONE"
	StatusFailed   = "FAILED"
	StatusCanceled = "CANCELED"
)

/* Job is one tracked background task */
type Job struct {
	ID         string     `json:"id"`
	Key        string     `json:"key"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	cancel context.CancelFunc
}

// Registry tracks background jobs by ID and by logical key. A key names the
// resource a job works on ("run:<id>:execute"), so at most one active job per
// key is the caller's concurrency rule to enforce via HasActiveJob.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewRegistry creates an empty job registry
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Run starts task in a goroutine and tracks it under jobID and key. The task
// receives a cancelable context; a panic inside the task is recorded as a
// FAILED job rather than crashing the process.
func (r *Registry) Run(jobID, key string, task func(ctx context.Context) error) *Job {
	ctx, cancel := context.WithCancel(context.Background())

	job := &Job{
		ID:        jobID,
		Key:       key,
		Status:    StatusRunning,
		StartedAt: time.Now(),
		cancel:    cancel,
	}

	r.mu.Lock()
	r.jobs[jobID] = job
	r.mu.Unlock()

	go func() {
		defer cancel()

		err := runTask(ctx, task)

		r.mu.Lock()
		defer r.mu.Unlock()

		now := time.Now()
		job.FinishedAt = &now

		switch {
		case ctx.Err() == context.Canceled:
			job.Status = StatusCanceled
		case err != nil:
			job.Status = StatusFailed
			job.Error = err.Error()
		default:
			job.Status = StatusDone
		}
	}()

	return job
}

func runTask(ctx context.Context, task func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return task(ctx)
}

// HasActiveJob reports whether a RUNNING job exists for key. Finished jobs
// older than an hour are pruned on the way through.
func (r *Registry) HasActiveJob(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked()

	for _, job := range r.jobs {
		if job.Key == key && job.Status == StatusRunning {
			return true
		}
	}
	return false
}

// Get returns a job by ID
func (r *Registry) Get(jobID string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	return job, ok
}

// CancelByKey cancels the RUNNING job for key, if any, and reports whether
// one was found. Cancellation is cooperative: the task observes its context.
func (r *Registry) CancelByKey(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, job := range r.jobs {
		if job.Key == key && job.Status == StatusRunning {
			job.cancel()
			return true
		}
	}
	return false
}

func (r *Registry) pruneLocked() {
	cutoff := time.Now().Add(-1 * time.Hour)
	for id, job := range r.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(r.jobs, id)
		}
	}
}
