package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/carbuddy/internal/retry"
)

func TestRunOnce_RetriesUnderPolicy(t *testing.T) {
	var calls int32
	job := Job{
		Name:   "daily",
		Policy: retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond},
		Run: func(ctx context.Context) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errors.New("db unavailable")
			}
			return nil
		},
	}

	var recorded []Outcome
	s := New(func(o Outcome) { recorded = append(recorded, o) }, job)
	out := s.RunOnce(context.Background(), job)

	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, 3, out.Attempts)
	assert.Empty(t, out.Error)
	require.Len(t, recorded, 1)

	last, ok := s.Last("daily")
	require.True(t, ok)
	assert.Equal(t, out, last)
}

func TestRunOnce_ReportsFailureWithoutRetry(t *testing.T) {
	job := Job{
		Name:   "hourly",
		Policy: retry.None,
		Run:    func(ctx context.Context) error { return errors.New("maps quota exceeded") },
	}

	out := New(nil, job).RunOnce(context.Background(), job)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, "maps quota exceeded", out.Error)
}

func TestRunOnce_AppliesTimeout(t *testing.T) {
	job := Job{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Policy:  retry.None,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}

	out := New(nil, job).RunOnce(context.Background(), job)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Error, "deadline exceeded")
}

func TestStart_RunsJobsPeriodically(t *testing.T) {
	var calls int32
	job := Job{
		Name:       "tick",
		Interval:   5 * time.Millisecond,
		Policy:     retry.None,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := New(nil, job, Job{Name: "disabled"})
	s.Start(ctx)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, time.Millisecond)
	cancel()
	s.Wait()

	_, ok := s.Last("disabled")
	assert.False(t, ok)
}
