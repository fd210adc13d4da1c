package domain

import (
	"context"
	"time"
)

type transportKey struct{}

// WithTransport attaches the retry limits of a snapshot to a run's context.
func WithTransport(ctx context.Context, p TransportParams) context.Context {
	return context.WithValue(ctx, transportKey{}, p)
}

// TransportFromContext returns the limits attached by WithTransport.
func TransportFromContext(ctx context.Context) (TransportParams, bool) {
	p, ok := ctx.Value(transportKey{}).(TransportParams)
	return p, ok
}

// BaseBackoff returns the first retry delay.
func (p TransportParams) BaseBackoff() time.Duration {
	return time.Duration(p.BaseBackoffMillis) * time.Millisecond
}
