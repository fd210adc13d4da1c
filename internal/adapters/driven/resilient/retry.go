package resilient

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/logger"
)

// Default retry limits, used when the context carries none.
const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = 500 * time.Millisecond
	DefaultMaxBackoff  = 10 * time.Second
)

// Policy bounds retries of one call.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultPolicy returns the limits used outside a pipeline run.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseBackoff: DefaultBaseBackoff,
		MaxBackoff:  DefaultMaxBackoff,
	}
}

// forContext overlays the limits a run attached to ctx.
func (p Policy) forContext(ctx context.Context) Policy {
	if t, ok := domain.TransportFromContext(ctx); ok {
		if t.MaxAttempts > 0 {
			p.MaxAttempts = t.MaxAttempts
		}
		if t.BaseBackoffMillis > 0 {
			p.BaseBackoff = t.BaseBackoff()
		}
	}
	p.MaxAttempts = min(max(p.MaxAttempts, 1), domain.MaxTransportAttempts)
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	return p
}

// Backoff returns the delay before retry n (1-based), doubling from the base
// and capped at MaxBackoff.
func (p Policy) Backoff(n int) time.Duration {
	d := p.BaseBackoff
	for i := 1; i < n && d < p.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, p.MaxBackoff)
}

type retrier struct {
	name    string
	policy  Policy
	limiter *RateLimiter
	sleep   func(context.Context, time.Duration) error
}

func newRetrier(name string, policy Policy, limiter *RateLimiter) retrier {
	return retrier{name: name, policy: policy, limiter: limiter, sleep: sleepContext}
}

func (r retrier) do(ctx context.Context, op string, call func(context.Context) error) error {
	policy := r.policy.forContext(ctx)

	var err error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if werr := r.limiter.Wait(ctx); werr != nil {
			return classifyWait(werr, err)
		}

		err = call(ctx)
		if err == nil || !errors.Is(err, domain.ErrProviderUnavailable) || ctx.Err() != nil {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.Backoff(attempt)
		logger.Debug("%s %s: attempt %d/%d failed, retrying in %s: %v",
			r.name, op, attempt, policy.MaxAttempts, delay, err)
		r.limiter.Cooldown(delay)
		if serr := r.sleep(ctx, delay); serr != nil {
			return classifyWait(serr, err)
		}
	}
	return err
}

// classifyWait reports an interrupted wait. A run deadline is a provider
// timeout; caller cancellation passes through.
func classifyWait(waitErr, last error) error {
	if errors.Is(waitErr, context.Canceled) {
		return waitErr
	}
	if last != nil {
		return last
	}
	return errors.Join(domain.ErrProviderUnavailable, waitErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
