package normalisers

import (
	"context"
	"mime"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
	"github.com/custodia-labs/ruleforge/internal/normalisers/html"
	"github.com/custodia-labs/ruleforge/internal/normalisers/markdown"
	"github.com/custodia-labs/ruleforge/internal/normalisers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry selects a normaliser by MIME type and priority.
type Registry struct {
	mu          sync.RWMutex
	normalisers []driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Default returns a registry with the built-in normalisers.
func Default() *Registry {
	r := NewRegistry()
	r.Register(html.New())
	r.Register(markdown.New())
	r.Register(plaintext.New())
	return r
}

// Register adds a normaliser to the registry.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalisers = append(r.normalisers, n)
	// Stable so equal priorities keep registration order.
	sort.SliceStable(r.normalisers, func(i, j int) bool {
		return r.normalisers[i].Priority() > r.normalisers[j].Priority()
	})
}

// Normalise runs the best matching normaliser. Items nothing matches are
// returned unchanged.
func (r *Registry) Normalise(ctx context.Context, item domain.ContentItem) (domain.ContentItem, error) {
	n := r.pick(mediaType(item.Metadata[driven.MetadataContentType]))
	if n == nil {
		return item, nil
	}
	return n.Normalise(ctx, item)
}

// SupportedMIMETypes returns all MIME types that can be normalised, sorted.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, n := range r.normalisers {
		for _, t := range n.SupportedMIMETypes() {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				out = append(out, t)
			}
		}
	}
	sort.Strings(out)
	return out
}

// pick returns the highest priority normaliser for mediaType, falling back
// to the highest priority fallback normaliser.
func (r *Registry) pick(mediaType string) driven.Normaliser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var fallback driven.Normaliser
	for _, n := range r.normalisers {
		types := n.SupportedMIMETypes()
		if len(types) == 0 {
			if fallback == nil {
				fallback = n
			}
			continue
		}
		for _, t := range types {
			if t == mediaType {
				return n
			}
		}
	}
	return fallback
}

// mediaType strips parameters such as charset and lowercases the type.
func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
