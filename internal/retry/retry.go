// Package retry runs an operation a bounded number of times with a linearly
// growing pause between attempts (Base, 2*Base, 3*Base, ...).
package retry

import (
	"context"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

const (
	DefaultAttempts = 3
	DefaultBase     = time.Second
)

type Policy struct {
	Attempts uint
	Base     time.Duration
}

// Default is three attempts with 1s then 2s between them.
func Default() Policy {
	return Policy{Attempts: DefaultAttempts, Base: DefaultBase}
}

// Once is a single attempt with no waiting.
func Once() Policy {
	return Policy{Attempts: 1}
}

// Delay returns the pause after failed attempt n (zero based).
func (p Policy) Delay(n uint) time.Duration {
	return time.Duration(n+1) * p.Base
}

// Do calls op until it succeeds, the attempts are used up or ctx is done.
// The error of the last attempt is returned unchanged so callers can match it.
// onRetry may be nil.
func Do(ctx context.Context, p Policy, op func() error, onRetry func(attempt uint, err error)) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}

	// Count waits and failures ourselves so the schedule does not depend on
	// how retry-go numbers its attempts.
	var waits, failures uint
	opts := []retrygo.Option{
		retrygo.Context(ctx),
		retrygo.Attempts(attempts),
		retrygo.LastErrorOnly(true),
		retrygo.DelayType(func(_ uint, _ error, _ *retrygo.Config) time.Duration {
			d := p.Delay(waits)
			waits++
			return d
		}),
	}
	if onRetry != nil {
		opts = append(opts, retrygo.OnRetry(func(_ uint, err error) {
			failures++
			onRetry(failures, err)
		}))
	}

	return retrygo.Do(op, opts...)
}

// Permanent marks err so Do stops retrying immediately.
func Permanent(err error) error {
	return retrygo.Unrecoverable(err)
}
