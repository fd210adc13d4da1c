package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

// Ensure ReviewQueue implements the interface.
var _ driven.ReviewQueue = (*ReviewQueue)(nil)

// ReviewQueue collects review items in memory.
type ReviewQueue struct {
	mu    sync.Mutex
	items []domain.ReviewItem
	err   error
}

// NewReviewQueue creates a new in-memory review queue.
func NewReviewQueue() *ReviewQueue {
	return &ReviewQueue{}
}

// Push enqueues one review item.
func (q *ReviewQueue) Push(_ context.Context, item domain.ReviewItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, item)
	return nil
}

// FailWith makes every following Push return err. Nil restores normal behaviour.
func (q *ReviewQueue) FailWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

// Items returns a copy of the queued items in push order.
func (q *ReviewQueue) Items() []domain.ReviewItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.ReviewItem(nil), q.items...)
}

// Close releases resources.
func (q *ReviewQueue) Close() error {
	return nil
}
