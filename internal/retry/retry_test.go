package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Policy{MaxAttempts: 4, InitialInterval: time.Millisecond, Multiplier: 2, MaxInterval: 5 * time.Millisecond}

func TestPolicy_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	attempts, err := fast.Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestPolicy_StopsAtMaxAttempts(t *testing.T) {
	boom := errors.New("still broken")
	attempts, err := fast.Do(context.Background(), "test", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, attempts)
}

func TestPolicy_NoneRunsOnce(t *testing.T) {
	attempts, err := None.Do(context.Background(), "test", func(ctx context.Context) error {
		return errors.New("nope")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)

	zero := Policy{}
	attempts, _ = zero.Do(context.Background(), "test", func(ctx context.Context) error {
		return errors.New("nope")
	})
	assert.Equal(t, 1, attempts)
}

func TestPolicy_PermanentErrorStopsImmediately(t *testing.T) {
	bad := errors.New("bad input")
	attempts, err := fast.Do(context.Background(), "test", func(ctx context.Context) error {
		return Permanent(bad)
	})
	assert.ErrorIs(t, err, bad)
	assert.Equal(t, 1, attempts)
}

func TestPolicy_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := Policy{MaxAttempts: 10, InitialInterval: time.Hour}

	attempts, err := slow.Do(ctx, "test", func(ctx context.Context) error {
		cancel()
		return errors.New("fails")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestPolicy_BackOffIntervalsDouble(t *testing.T) {
	b := Daily.BackOff()
	assert.Equal(t, 60*time.Second, b.NextBackOff())
	assert.Equal(t, 120*time.Second, b.NextBackOff())
	assert.Equal(t, 240*time.Second, b.NextBackOff())
	assert.Less(t, b.NextBackOff(), time.Duration(0))
}
