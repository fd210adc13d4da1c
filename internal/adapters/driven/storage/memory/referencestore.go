package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

// Ensure ReferenceStore implements the interface.
var _ driven.ReferenceStore = (*ReferenceStore)(nil)

// ReferenceStore is an in-memory implementation of driven.ReferenceStore.
type ReferenceStore struct {
	mu   sync.RWMutex
	refs map[string]domain.Reference
}

// NewReferenceStore creates a new in-memory reference store.
func NewReferenceStore() *ReferenceStore {
	return &ReferenceStore{refs: make(map[string]domain.Reference)}
}

// SaveReferences inserts or replaces references by ID.
func (s *ReferenceStore) SaveReferences(_ context.Context, refs []domain.Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range refs {
		if ref.ID == "" {
			return fmt.Errorf("%w: reference without ID", domain.ErrInvalidInput)
		}
		ref.Embedding = append([]float32(nil), ref.Embedding...)
		s.refs[ref.ID] = ref
	}
	return nil
}

// ListReferences returns every reference ordered by ID.
func (s *ReferenceStore) ListReferences(_ context.Context) ([]domain.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Reference, 0, len(s.refs))
	for _, ref := range s.refs {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteReference removes a reference.
func (s *ReferenceStore) DeleteReference(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refs[id]; !ok {
		return fmt.Errorf("reference %s: %w", id, domain.ErrNotFound)
	}
	delete(s.refs, id)
	return nil
}
