// Package retry runs an operation again after transient failures, with
// exponential backoff and jitter between attempts. Callers classify their
// own errors: wrap with Retryable to ask for another attempt, with
// Permanent to stop immediately. Unclassified errors are not retried.
// No external dependencies - uses only standard library.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Retryable marks err as transient. Do will attempt the operation again.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// Permanent marks err as final. Do returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Config controls attempt count and backoff shape.
type Config struct {
	MaxAttempts  int           // including the first attempt
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // backoff ceiling
	Multiplier   float64       // delay growth factor per attempt
	Jitter       float64       // 0..1, fraction of the delay randomized
}

// Retrier executes operations under a fixed retry policy.
type Retrier struct {
	cfg Config
}

// New creates a Retrier. Zero or invalid fields fall back to 3 attempts,
// 100ms initial delay, 30s ceiling, doubling, 10% jitter.
func New(cfg Config) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		cfg.Jitter = 0.1
	}
	return &Retrier{cfg: cfg}
}

// OracleRetrier is tuned for scoring oracle calls. Delays start high
// enough that a rate-limited upstream has time to recover.
func OracleRetrier() *Retrier {
	return New(Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Jitter:       0.2,
	})
}

// Do runs op until it succeeds, returns a non-retryable error, exhausts
// the attempt budget, or ctx is cancelled. Retryable and Permanent
// wrappers are stripped from the returned error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return pe.err
		}
		if !IsRetryable(err) {
			return err
		}

		last = errors.Unwrap(err)
		if attempt == r.cfg.MaxAttempts {
			return last
		}

		select {
		case <-ctx.Done():
			return last
		case <-time.After(r.delay(attempt)):
		}
	}
}

func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.Multiplier, float64(attempt-1))
	if d > float64(r.cfg.MaxDelay) {
		d = float64(r.cfg.MaxDelay)
	}
	if r.cfg.Jitter > 0 {
		d += d * r.cfg.Jitter * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
