package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"folio/internal/backend"
	"folio/internal/services"
)

// Policy retries transient failures with exponential backoff and jitter.
// Permanent and content-policy failures return immediately with zero retries.
// The zero value is unusable; construct with New.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      func() float64
	sleeper     func(context.Context, time.Duration) error
}

// Option customizes a policy.
type Option func(*Policy)

// WithJitterSource injects the randomness used for jitter (for tests).
// The function must return values in [0, 1).
func WithJitterSource(source func() float64) Option {
	return func(p *Policy) {
		if source != nil {
			p.jitter = source
		}
	}
}

// WithSleeper overrides how retry delays are waited out (for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(p *Policy) {
		if sleeper != nil {
			p.sleeper = sleeper
		}
	}
}

// New constructs a retry policy. maxAttempts counts the initial call, so a
// value of 1 disables retries entirely.
func New(maxAttempts int, baseDelay, maxDelay time.Duration, opts ...Option) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay < 0 {
		baseDelay = 0
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	policy := Policy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		jitter:      rand.Float64,
		sleeper:     sleepContext,
	}
	for _, opt := range opts {
		opt(&policy)
	}
	return policy
}

// Do invokes fn until it succeeds, fails non-transiently, the context ends,
// or attempts are exhausted. The final error preserves the original failure
// classification in its chain.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !services.IsTransient(err) {
			return err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
		if attempt == p.maxAttempts {
			break
		}
		if sleepErr := p.sleeper(ctx, p.delayFor(err, attempt)); sleepErr != nil {
			return sleepErr
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", p.maxAttempts, lastErr)
}

// delayFor computes the pause before the next attempt: a provider
// Retry-After hint when present, otherwise exponential backoff from the base
// delay, capped at the ceiling, with proportional jitter so many workers
// hitting the same rate limit do not retry in lockstep.
func (p Policy) delayFor(err error, attempt int) time.Duration {
	if hint, ok := services.RetryAfterHint(err); ok {
		return p.cap(hint)
	}

	delay := p.baseDelay
	for i := 1; i < attempt; i++ {
		if delay > p.maxDelay/2 {
			delay = p.maxDelay
			break
		}
		delay *= 2
	}
	delay = p.cap(delay)
	if delay <= 0 {
		return 0
	}

	// Half fixed, half jittered.
	half := delay / 2
	return half + time.Duration(p.jitter()*float64(delay-half))
}

func (p Policy) cap(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if p.maxDelay > 0 && delay > p.maxDelay {
		return p.maxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wrap decorates a backend so every Submit goes through the policy.
func Wrap(inner backend.Backend, policy Policy) backend.Backend {
	return &retryingBackend{inner: inner, policy: policy}
}

type retryingBackend struct {
	inner  backend.Backend
	policy Policy
}

func (b *retryingBackend) Provider() string {
	return b.inner.Provider()
}

func (b *retryingBackend) Submit(ctx context.Context, image []byte, req backend.Request) (backend.Result, error) {
	var result backend.Result
	err := b.policy.Do(ctx, func(ctx context.Context) error {
		var submitErr error
		result, submitErr = b.inner.Submit(ctx, image, req)
		return submitErr
	})
	if err != nil {
		return backend.Result{}, err
	}
	return result, nil
}
