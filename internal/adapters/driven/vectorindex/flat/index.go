// Package flat provides an exact, in-process nearest-neighbour index.
// It implements the driven.ReferenceIndex interface.
//
// Searches scan an immutable snapshot published through an atomic pointer,
// so readers never lock and always see a consistent corpus. Writers copy the
// snapshot, apply their change and publish the copy.
package flat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.ReferenceIndex = (*Index)(nil)

// entry is one indexed reference. Vectors are stored unit-normalised so a
// dot product is the cosine similarity.
type entry struct {
	id  string
	vec []float32
}

// snapshot is an immutable view of the index.
type snapshot struct {
	dims    int
	entries []entry
	pos     map[string]int
}

// Index is an exact cosine-similarity index.
type Index struct {
	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
	closed  atomic.Bool
}

// New creates an empty index. dims may be zero, in which case the first
// vector added fixes the dimensionality.
func New(dims int) *Index {
	idx := &Index{}
	idx.current.Store(&snapshot{dims: dims, pos: map[string]int{}})
	return idx
}

// Search returns up to k references scoring at least floor, ordered by
// descending similarity then ascending ID.
func (i *Index) Search(ctx context.Context, query []float32, k int, floor float64) ([]driven.VectorHit, error) {
	if i.closed.Load() {
		return nil, errors.New("flat: index closed")
	}
	snap := i.current.Load()
	if len(snap.entries) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != snap.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, len(query), snap.dims)
	}
	q, ok := normalise(query)
	if !ok {
		return nil, fmt.Errorf("%w: zero query vector", domain.ErrInvalidInput)
	}

	hits := make([]driven.VectorHit, 0, k)
	for n, e := range snap.entries {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		score := dot(q, e.vec)
		if score < floor {
			continue
		}
		hits = append(hits, driven.VectorHit{ID: e.id, Similarity: score})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Similarity != hits[b].Similarity {
			return hits[a].Similarity > hits[b].Similarity
		}
		return hits[a].ID < hits[b].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Add inserts or replaces references and publishes a new snapshot.
// The batch is applied atomically: on error nothing changes.
func (i *Index) Add(_ context.Context, refs ...domain.Reference) error {
	if i.closed.Load() {
		return errors.New("flat: index closed")
	}
	if len(refs) == 0 {
		return nil
	}

	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	old := i.current.Load()
	next := old.clone()
	for _, ref := range refs {
		if ref.ID == "" {
			return fmt.Errorf("%w: reference without ID", domain.ErrInvalidInput)
		}
		if next.dims == 0 {
			next.dims = len(ref.Embedding)
		}
		if len(ref.Embedding) != next.dims {
			return fmt.Errorf("%w: reference %s has %d dimensions, index has %d",
				domain.ErrDimensionMismatch, ref.ID, len(ref.Embedding), next.dims)
		}
		vec, ok := normalise(ref.Embedding)
		if !ok {
			return fmt.Errorf("%w: reference %s has a zero vector", domain.ErrInvalidInput, ref.ID)
		}
		if n, exists := next.pos[ref.ID]; exists {
			next.entries[n].vec = vec
			continue
		}
		next.pos[ref.ID] = len(next.entries)
		next.entries = append(next.entries, entry{id: ref.ID, vec: vec})
	}
	i.current.Store(next)
	return nil
}

// Delete removes a reference and publishes a new snapshot.
func (i *Index) Delete(_ context.Context, id string) error {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	old := i.current.Load()
	n, ok := old.pos[id]
	if !ok {
		return fmt.Errorf("reference %s: %w", id, domain.ErrNotFound)
	}
	next := old.clone()
	last := len(next.entries) - 1
	next.entries[n] = next.entries[last]
	next.pos[next.entries[n].id] = n
	next.entries = next.entries[:last]
	delete(next.pos, id)
	i.current.Store(next)
	return nil
}

// Len returns the number of indexed references.
func (i *Index) Len() int {
	return len(i.current.Load().entries)
}

// Dimensions returns the vector size, or zero while unset.
func (i *Index) Dimensions() int {
	return i.current.Load().dims
}

// Close releases resources. Further searches fail.
func (i *Index) Close() error {
	i.closed.Store(true)
	return nil
}

// clone copies the slice headers and position map. Entry vectors are
// shared; they are replaced, never mutated in place.
func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		dims:    s.dims,
		entries: make([]entry, len(s.entries), len(s.entries)+1),
		pos:     make(map[string]int, len(s.pos)+1),
	}
	copy(next.entries, s.entries)
	for k, v := range s.pos {
		next.pos[k] = v
	}
	return next
}

func normalise(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, false
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for n, x := range v {
		out[n] = float32(float64(x) / norm)
	}
	return out, true
}

func dot(a, b []float32) float64 {
	var sum float64
	for n := range a {
		sum += float64(a[n]) * float64(b[n])
	}
	// Rounding can push identical vectors a hair past one.
	return math.Max(-1, math.Min(1, sum))
}

// cosine returns the cosine similarity of a and b as the index scores it.
// Zero vectors and mismatched lengths score zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	na, ok := normalise(a)
	if !ok {
		return 0
	}
	nb, ok := normalise(b)
	if !ok {
		return 0
	}
	return dot(na, nb)
}
