// Package recovery wraps fallible engine operations with retry,
// exponential backoff with jitter, degraded-fallback reads, and
// memory-pressure handling.
//
// Success-with-degradation is representable without exceptions: every
// outcome is a Result carrying the strategy that produced it.
package recovery

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	eerrors "github.com/dshills/streamview/internal/engine/errors"
	"github.com/dshills/streamview/internal/logging"
)

// Strategy identifies how a resilient operation reached its outcome.
type Strategy int

const (
	// StrategyRetry means the primary operation succeeded, possibly
	// after retries.
	StrategyRetry Strategy = iota
	// StrategyFallback means a degraded fallback path produced the
	// result.
	StrategyFallback
	// StrategyGracefulDegradation means the operation failed but was
	// contained instead of propagating.
	StrategyGracefulDegradation
	// StrategyUserIntervention means the caller cancelled the
	// operation.
	StrategyUserIntervention
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyRetry:
		return "retry"
	case StrategyFallback:
		return "fallback"
	case StrategyGracefulDegradation:
		return "graceful-degradation"
	case StrategyUserIntervention:
		return "user-intervention"
	default:
		return "unknown"
	}
}

// Result is the outcome of one resilient operation. It is consumed
// immediately by the caller and never persisted.
type Result[T any] struct {
	Success      bool
	Strategy     Strategy
	Value        T
	Err          error
	ErrorMessage string
	Attempts     uint32
	OperationID  string
}

// Defaults for the retry policy.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 100 * time.Millisecond
	DefaultMaxDelay    = 2 * time.Second

	// jitterFraction is the maximum extra delay added to each backoff
	// step to avoid thundering-herd retries.
	jitterFraction = 0.10
)

// Limits for the degraded read fallbacks.
const (
	// fallbackChunkSize is the read size for the bounded streaming
	// fallback.
	fallbackChunkSize = 64 * 1024

	// DefaultStreamReadCap bounds memory for the streaming fallback.
	DefaultStreamReadCap = 100 * 1024 * 1024

	// DefaultHeadReadLimit is how much the head-only fallback reads.
	DefaultHeadReadLimit = 10 * 1024 * 1024
)

// Truncation markers appended to degraded results.
const (
	TruncationMarker = "\n[... content truncated to bound memory use ...]"
	HeadOnlyMarker   = "\n[... only the beginning of the file could be read ...]"
)

// Recoverer executes operations under the retry policy.
type Recoverer struct {
	log         *logging.Logger
	maxAttempts uint32
	baseDelay   time.Duration
	maxDelay    time.Duration

	// sleep waits for d or until ctx is done. Injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Recoverer.
type Option func(*Recoverer)

// WithMaxAttempts sets the retry attempt limit.
func WithMaxAttempts(n uint32) Option {
	return func(r *Recoverer) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithDelays sets the base and maximum backoff delays.
func WithDelays(base, max time.Duration) Option {
	return func(r *Recoverer) {
		if base > 0 {
			r.baseDelay = base
		}
		if max > 0 {
			r.maxDelay = max
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(r *Recoverer) {
		if log != nil {
			r.log = log
		}
	}
}

// withSleep replaces the backoff sleep. Used by tests to avoid real
// waits.
func withSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Recoverer) {
		r.sleep = sleep
	}
}

// New creates a Recoverer with the default policy.
func New(opts ...Option) *Recoverer {
	r := &Recoverer{
		log:         logging.NullLogger,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
	}
	r.sleep = func(ctx context.Context, d time.Duration) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithComponent("recovery")
	return r
}

// MaxAttempts returns the configured attempt limit.
func (r *Recoverer) MaxAttempts() uint32 { return r.maxAttempts }

// backoffDelay computes the wait before the given retry attempt
// (1-based): base*2^(attempt-1), capped, plus up to 10% jitter.
func (r *Recoverer) backoffDelay(attempt uint32) time.Duration {
	d := r.baseDelay
	for i := uint32(1); i < attempt; i++ {
		d *= 2
		if d >= r.maxDelay {
			d = r.maxDelay
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(float64(d)*jitterFraction) + 1))
	return d + jitter
}

// ExecuteWithRetry runs op up to the recoverer's attempt limit.
//
// Non-retryable errors (bad input, missing file, permission, memory
// exhaustion) stop immediately. Retryable I/O errors wait out an
// exponential backoff between attempts. Cancellation during a wait is
// honored immediately and reported as StrategyUserIntervention.
func ExecuteWithRetry[T any](ctx context.Context, r *Recoverer, name string, op func(ctx context.Context) (T, error)) Result[T] {
	res := Result[T]{
		Strategy:    StrategyRetry,
		OperationID: uuid.New().String(),
	}

	var lastErr error
	for attempt := uint32(1); attempt <= r.maxAttempts; attempt++ {
		res.Attempts = attempt

		if err := ctx.Err(); err != nil {
			res.Strategy = StrategyUserIntervention
			res.Err = eerrors.Classify(err)
			res.ErrorMessage = res.Err.Error()
			return res
		}

		value, err := op(ctx)
		if err == nil {
			res.Success = true
			res.Value = value
			return res
		}
		lastErr = err

		if eerrors.IsCancelled(err) {
			res.Strategy = StrategyUserIntervention
			res.Err = eerrors.Classify(err)
			res.ErrorMessage = res.Err.Error()
			return res
		}
		if !eerrors.IsRetryable(err) {
			r.log.WithField("op", name).WithField("id", res.OperationID).
				Debug("non-retryable failure on attempt %d: %v", attempt, err)
			break
		}

		if attempt < r.maxAttempts {
			delay := r.backoffDelay(attempt)
			r.log.WithField("op", name).WithField("id", res.OperationID).
				Debug("attempt %d failed, retrying in %v: %v", attempt, delay, err)
			if err := r.sleep(ctx, delay); err != nil {
				res.Strategy = StrategyUserIntervention
				res.Err = eerrors.Classify(err)
				res.ErrorMessage = res.Err.Error()
				return res
			}
		}
	}

	res.Err = lastErr
	if lastErr != nil {
		res.ErrorMessage = lastErr.Error()
	}
	r.log.WithField("op", name).WithField("id", res.OperationID).
		Warn("operation failed after %d attempts: %v", res.Attempts, lastErr)
	return res
}

// RecoverMemoryOperation forces a collection pass before attempting op.
// On a memory-exhaustion condition it collects aggressively and invokes
// fallback, if supplied. A failing fallback yields a
// GracefulDegradation failure rather than a propagated error, because
// memory exhaustion during text processing should degrade
// functionality, not crash the process.
func RecoverMemoryOperation[T any](r *Recoverer, op func() (T, error), fallback func() (T, error)) Result[T] {
	res := Result[T]{
		Strategy:    StrategyRetry,
		Attempts:    1,
		OperationID: uuid.New().String(),
	}

	runtime.GC()

	value, err := op()
	if err == nil {
		res.Success = true
		res.Value = value
		return res
	}

	if !errors.Is(err, eerrors.ErrMemoryExhausted) {
		res.Err = err
		res.ErrorMessage = err.Error()
		return res
	}

	r.log.WithField("id", res.OperationID).
		Warn("memory exhausted, collecting and degrading: %v", err)
	debug.FreeOSMemory()

	if fallback != nil {
		res.Attempts++
		if value, err = fallback(); err == nil {
			res.Success = true
			res.Strategy = StrategyFallback
			res.Value = value
			return res
		}
	}

	res.Strategy = StrategyGracefulDegradation
	res.Err = eerrors.ErrMemoryExhausted
	if err != nil {
		res.ErrorMessage = err.Error()
	}
	return res
}
