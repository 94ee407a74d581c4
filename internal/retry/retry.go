// Package retry runs an operation again after transient failures,
// with exponential backoff and jitter. Only errors explicitly marked
// with Transient are retried; everything else fails immediately.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config holds retry behavior.
type Config struct {
	MaxAttempts int           // total attempts, including the first (0 = 1)
	InitialWait time.Duration // wait before the second attempt
	MaxWait     time.Duration // backoff cap
	Multiplier  float64
	Jitter      float64 // 0..1 fraction of the wait randomized
}

// DefaultConfig matches the portal read path: one original attempt
// plus one silent retry.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 2,
		InitialWait: 200 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// TransientError marks an error as worth retrying.
type TransientError struct {
	Err error
}

func (e TransientError) Error() string { return e.Err.Error() }
func (e TransientError) Unwrap() error { return e.Err }

// Transient wraps err so Do will retry it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return TransientError{Err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var te TransientError
	return errors.As(err, &te)
}

// Do executes fn until it succeeds, fails permanently, or attempts
// are exhausted. Returns the last error.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsTransient(err) || attempt == cfg.MaxAttempts {
			break
		}
		if err := sleep(ctx, cfg, attempt); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

func sleep(ctx context.Context, cfg Config, attempt int) error {
	wait := float64(cfg.InitialWait) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if max := float64(cfg.MaxWait); cfg.MaxWait > 0 && wait > max {
		wait = max
	}
	if cfg.Jitter > 0 {
		wait += wait * cfg.Jitter * (rand.Float64()*2 - 1)
	}

	timer := time.NewTimer(time.Duration(wait))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
