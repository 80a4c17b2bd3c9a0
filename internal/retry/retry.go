// Package retry runs an operation under a bounded exponential backoff policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// Policy bounds how often and how patiently an operation is retried.
// MaxAttempts counts the first try; values below 1 mean a single attempt.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// None runs the operation exactly once.
var None = Policy{MaxAttempts: 1}

// Daily retries three times, waiting 60s, 120s, then 240s.
var Daily = Policy{
	MaxAttempts:     4,
	InitialInterval: 60 * time.Second,
	Multiplier:      2,
	MaxInterval:     10 * time.Minute,
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// BackOff builds a fresh backoff for one run of the policy.
func (p Policy) BackOff() backoff.BackOff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	if attempts == 1 {
		return &backoff.StopBackOff{}
	}

	bo := backoff.NewExponentialBackOff()
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.Multiplier >= 1 {
		bo.Multiplier = p.Multiplier
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	bo.Reset()
	return backoff.WithMaxRetries(bo, uint64(attempts-1))
}

// Do runs op until it succeeds, returns a Permanent error, ctx ends, or the
// policy is exhausted. It returns the number of attempts made and the last error.
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) (int, error) {
	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		return op(ctx)
	}, backoff.WithContext(p.BackOff(), ctx), func(err error, wait time.Duration) {
		log.WithFields(log.Fields{
			"operation": name,
			"attempt":   attempts,
			"retry_in":  wait,
		}).WithError(err).Warn("Operation failed, retrying")
	})
	return attempts, err
}
