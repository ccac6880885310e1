// Package retrier implements the exponential-backoff retry loop wrapped
// around backend I/O.
package retrier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Permanent marks an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string {
	return p.Err.Error()
}

func (p *Permanent) Unwrap() error {
	return p.Err
}

// Stop wraps err so the retrier gives up immediately.
func Stop(err error) error {
	return &Permanent{Err: err}
}

type Retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	factor      float64
	jitter      float64
}

func New(maxAttempts int, baseDelay, maxDelay time.Duration, factor, jitter float64) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrier{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		factor:      factor,
		jitter:      jitter,
	}
}

// FromBackoff builds a retrier whose attempt count and base delay follow an
// explicit backoff schedule.
func FromBackoff(backoff []time.Duration) *Retrier {
	if len(backoff) == 0 {
		return New(1, 0, 0, 1, 0)
	}
	return New(len(backoff)+1, backoff[0], backoff[len(backoff)-1], 2, 0.1)
}

// Run invokes fn until it succeeds, returns a permanent error, exhausts the
// attempt budget, or the context is done.
func (r *Retrier) Run(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}

		if attempt == r.maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.calculateDelay(attempt)):
		}
	}
	return fmt.Errorf("max retry attempts reached: %w", err)
}

func (r *Retrier) calculateDelay(attempt int) time.Duration {
	delay := float64(r.baseDelay) * math.Pow(r.factor, float64(attempt))
	if delay > float64(r.maxDelay) {
		delay = float64(r.maxDelay)
	}
	delay += rand.Float64() * r.jitter * delay
	return time.Duration(delay)
}
