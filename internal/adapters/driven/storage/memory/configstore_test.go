package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

func TestConfigStore_Seeded(t *testing.T) {
	seed := map[string]any{"llm.provider": "ollama", "pipeline.workers": int64(2)}
	store := NewConfigStore(seed)

	assert.Equal(t, "ollama", store.GetString("llm.provider"))
	assert.Equal(t, 2, store.GetInt("pipeline.workers"))

	// The seed map is copied.
	seed["llm.provider"] = "openai"
	assert.Equal(t, "ollama", store.GetString("llm.provider"))
	assert.Equal(t, []string{"llm.provider", "pipeline.workers"}, store.Keys())
}

func TestConfigStore_SetAndGet(t *testing.T) {
	store := NewConfigStore()

	require.NoError(t, store.Set("review.kind", "file"))
	require.NoError(t, store.Set("review.kind", "minio"))

	val, ok := store.Get("review.kind")
	assert.True(t, ok)
	assert.Equal(t, "minio", val)

	_, ok = store.Get("review.bucket")
	assert.False(t, ok)
}

func TestConfigStore_Set_EmptyKey(t *testing.T) {
	store := NewConfigStore()

	err := store.Set("", "value")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, store.Keys())
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store := NewConfigStore(map[string]any{
		"s":       "text",
		"i":       7,
		"i64":     int64(8),
		"f64":     float64(9),
		"b":       true,
		"wrong":   []int{1},
		"strings": []any{"a", 1, "b"},
	})

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"string", store.GetString("s"), "text"},
		{"string wrong type", store.GetString("i"), ""},
		{"int", store.GetInt("i"), 7},
		{"int from int64", store.GetInt("i64"), 8},
		{"int from float64", store.GetInt("f64"), 9},
		{"int wrong type", store.GetInt("s"), 0},
		{"int missing", store.GetInt("missing"), 0},
		{"bool", store.GetBool("b"), true},
		{"bool wrong type", store.GetBool("s"), false},
		{"slice from any", store.GetStringSlice("strings"), []string{"a", "b"}},
		{"slice wrong type", store.GetStringSlice("wrong"), []string(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestConfigStore_StringSliceIsolation(t *testing.T) {
	store := NewConfigStore()
	in := []string{"a", "b"}
	require.NoError(t, store.Set("list", in))

	in[0] = "changed"
	out := store.GetStringSlice("list")
	assert.Equal(t, []string{"a", "b"}, out)

	out[1] = "changed"
	assert.Equal(t, []string{"a", "b"}, store.GetStringSlice("list"))
}

func TestConfigStore_NoOpPersistence(t *testing.T) {
	store := NewConfigStore(map[string]any{"k": "v"})

	assert.NoError(t, store.Save())
	assert.NoError(t, store.Load())
	assert.Equal(t, "v", store.GetString("k"))
	assert.Equal(t, ":memory:", store.Path())
}

func TestConfigStore_Concurrency(t *testing.T) {
	store := NewConfigStore()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Set("pipeline.workers", i)
		}()
		go func() {
			defer wg.Done()
			_ = store.GetInt("pipeline.workers")
			_ = store.Keys()
		}()
	}
	wg.Wait()

	_, ok := store.Get("pipeline.workers")
	assert.True(t, ok)
}
