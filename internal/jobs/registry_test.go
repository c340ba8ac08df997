package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitStatus(t *testing.T, r *Registry, jobID string, want string) *Job {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := r.Get(jobID)
		require.True(t, ok)
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := r.Get(jobID)
	t.Fatalf("job %s never reached %s, last status %s", jobID, want, job.Status)
	return nil
}

func TestRunCompletes(t *testing.T) {
	r := NewRegistry()

	r.Run("j1", "run:1:execute", func(ctx context.Context) error {
		return nil
	})

	job := waitStatus(t, r, "j1", StatusDone)
	assert.Empty(t, job.Error)
	assert.NotNil(t, job.FinishedAt)
}

func TestRunFailure(t *testing.T) {
	r := NewRegistry()

	r.Run("j1", "run:1:execute", func(ctx context.Context) error {
		return errors.New("agent unreachable")
	})

	job := waitStatus(t, r, "j1", StatusFailed)
	assert.Equal(t, "agent unreachable", job.Error)
}

func TestRunPanicBecomesFailure(t *testing.T) {
	r := NewRegistry()

	r.Run("j1", "run:1:execute", func(ctx context.Context) error {
		panic("boom")
	})

	job := waitStatus(t, r, "j1", StatusFailed)
	assert.Contains(t, job.Error, "boom")
}

func TestHasActiveJob(t *testing.T) {
	r := NewRegistry()
	release := make(chan struct{})

	r.Run("j1", "run:1:execute", func(ctx context.Context) error {
		<-release
		return nil
	})

	assert.True(t, r.HasActiveJob("run:1:execute"))
	assert.False(t, r.HasActiveJob("run:2:execute"))

	close(release)
	waitStatus(t, r, "j1", StatusDone)
	assert.False(t, r.HasActiveJob("run:1:execute"))
}

func TestCancelByKey(t *testing.T) {
	r := NewRegistry()

	r.Run("j1", "run:1:execute", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.True(t, r.CancelByKey("run:1:execute"))
	job := waitStatus(t, r, "j1", StatusCanceled)
	assert.NotEqual(t, StatusFailed, job.Status)

	assert.False(t, r.CancelByKey("run:1:execute"))
	assert.False(t, r.CancelByKey("no-such-key"))
}
