package resilient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

var errUnavailable = fmt.Errorf("%w: upstream 503", domain.ErrProviderUnavailable)

// scriptedLLM returns errs in order, then "ok".
type scriptedLLM struct {
	errs  []error
	calls int
}

func (m *scriptedLLM) Generate(ctx context.Context, _ string, _ driven.GenerateOptions) (string, error) {
	return m.next()
}

func (m *scriptedLLM) Chat(ctx context.Context, _ []driven.ChatMessage, _ driven.ChatOptions) (string, error) {
	return m.next()
}

func (m *scriptedLLM) next() (string, error) {
	m.calls++
	if m.calls <= len(m.errs) {
		return "", m.errs[m.calls-1]
	}
	return "ok", nil
}

func (m *scriptedLLM) ModelName() string              { return "scripted" }
func (m *scriptedLLM) Ping(ctx context.Context) error { return nil }
func (m *scriptedLLM) Close() error                   { return nil }

type scriptedEmbedder struct {
	errs  []error
	calls int
}

func (m *scriptedEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	m.calls++
	if m.calls <= len(m.errs) {
		return nil, m.errs[m.calls-1]
	}
	return []float32{1, 0}, nil
}

func (m *scriptedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	v, err := m.Embed(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = v
	}
	return out, nil
}

func (m *scriptedEmbedder) Dimensions() int                { return 2 }
func (m *scriptedEmbedder) ModelName() string              { return "scripted" }
func (m *scriptedEmbedder) Ping(ctx context.Context) error { return nil }
func (m *scriptedEmbedder) Close() error                   { return nil }

// noSleep records requested delays without waiting.
func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func newTestLLM(inner driven.LLMService, delays *[]time.Duration) *LLMService {
	s := NewLLMService(inner, DefaultPolicy(), nil)
	s.retry.sleep = noSleep(delays)
	return s
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{BaseBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(4))
	assert.Equal(t, time.Second, p.Backoff(5))
	assert.Equal(t, time.Second, p.Backoff(50))
}

func TestPolicy_ForContext(t *testing.T) {
	base := DefaultPolicy()

	got := base.forContext(context.Background())
	assert.Equal(t, base, got)

	ctx := domain.WithTransport(context.Background(), domain.TransportParams{MaxAttempts: 5, BaseBackoffMillis: 20})
	got = base.forContext(ctx)
	assert.Equal(t, 5, got.MaxAttempts)
	assert.Equal(t, 20*time.Millisecond, got.BaseBackoff)
	assert.Equal(t, DefaultMaxBackoff, got.MaxBackoff)

	got = Policy{}.forContext(context.Background())
	assert.Equal(t, 1, got.MaxAttempts)

	ctx = domain.WithTransport(context.Background(), domain.TransportParams{MaxAttempts: 1000})
	got = base.forContext(ctx)
	assert.Equal(t, domain.MaxTransportAttempts, got.MaxAttempts)
}

func TestLLM_AttemptsCappedForOversizedRunLimits(t *testing.T) {
	errs := make([]error, 100)
	for i := range errs {
		errs[i] = errUnavailable
	}
	inner := &scriptedLLM{errs: errs}
	var delays []time.Duration
	svc := newTestLLM(inner, &delays)

	ctx := domain.WithTransport(context.Background(), domain.TransportParams{MaxAttempts: 50})
	_, err := svc.Chat(ctx, nil, driven.ChatOptions{})
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Equal(t, domain.MaxTransportAttempts, inner.calls)
}

func TestLLM_RetriesUnavailableThenSucceeds(t *testing.T) {
	inner := &scriptedLLM{errs: []error{errUnavailable, errUnavailable}}
	var delays []time.Duration
	svc := newTestLLM(inner, &delays)

	out, err := svc.Chat(context.Background(), nil, driven.ChatOptions{})
	require.NoError(t, err)

	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, []time.Duration{DefaultBaseBackoff, 2 * DefaultBaseBackoff}, delays)
}

func TestLLM_GivesUpAfterMaxAttempts(t *testing.T) {
	inner := &scriptedLLM{errs: []error{errUnavailable, errUnavailable, errUnavailable, errUnavailable}}
	var delays []time.Duration
	svc := newTestLLM(inner, &delays)

	_, err := svc.Generate(context.Background(), "p", driven.GenerateOptions{})

	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Equal(t, DefaultMaxAttempts, inner.calls)
	assert.Len(t, delays, DefaultMaxAttempts-1)
}

func TestLLM_RunLimitsOverrideDefault(t *testing.T) {
	inner := &scriptedLLM{errs: []error{errUnavailable, errUnavailable, errUnavailable}}
	var delays []time.Duration
	svc := newTestLLM(inner, &delays)

	ctx := domain.WithTransport(context.Background(), domain.TransportParams{MaxAttempts: 1})
	_, err := svc.Chat(ctx, nil, driven.ChatOptions{})

	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Equal(t, 1, inner.calls)
	assert.Empty(t, delays)
}

func TestLLM_DoesNotRetryOtherErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"malformed", domain.Malformed("bad json")},
		{"bad request", errors.New("openai returned status 400")},
		{"cancelled", context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &scriptedLLM{errs: []error{tt.err}}
			var delays []time.Duration
			svc := newTestLLM(inner, &delays)

			_, err := svc.Chat(context.Background(), nil, driven.ChatOptions{})
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, inner.calls)
		})
	}
}

func TestLLM_CancelDuringBackoff(t *testing.T) {
	inner := &scriptedLLM{errs: []error{errUnavailable, errUnavailable}}
	svc := NewLLMService(inner, DefaultPolicy(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	svc.retry.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := svc.Chat(ctx, nil, driven.ChatOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestLLM_DeadlineDuringBackoffKeepsProviderError(t *testing.T) {
	inner := &scriptedLLM{errs: []error{errUnavailable, errUnavailable}}
	svc := NewLLMService(inner, DefaultPolicy(), nil)
	svc.retry.sleep = func(context.Context, time.Duration) error {
		return context.DeadlineExceeded
	}

	_, err := svc.Chat(context.Background(), nil, driven.ChatOptions{})
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestLLM_Delegates(t *testing.T) {
	svc := NewLLMService(&scriptedLLM{}, DefaultPolicy(), nil)
	assert.Equal(t, "scripted", svc.ModelName())
	assert.NoError(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Close())
}

func TestEmbedding_Retries(t *testing.T) {
	inner := &scriptedEmbedder{errs: []error{errUnavailable}}
	svc := NewEmbeddingService(inner, DefaultPolicy(), nil)
	var delays []time.Duration
	svc.retry.sleep = noSleep(&delays)

	vecs, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Len(t, vecs, 2)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 2, svc.Dimensions())
	assert.Equal(t, "scripted", svc.ModelName())
}

func TestRateLimiter_NilIsNoop(t *testing.T) {
	var r *RateLimiter
	assert.NoError(t, r.Wait(context.Background()))
	r.Cooldown(time.Second)
}

func TestRateLimiter_Throttles(t *testing.T) {
	r := NewRateLimiter(20, 1)
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		require.NoError(t, r.Wait(ctx))
	}
	// Burst of one, then two waits of 50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestRateLimiter_UnlimitedWhenRateNotPositive(t *testing.T) {
	r := NewRateLimiter(0, 0)
	start := time.Now()
	for range 100 {
		require.NoError(t, r.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimiter_CooldownBlocksUntilCancelled(t *testing.T) {
	r := NewRateLimiter(0, 0)
	r.Cooldown(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
