package reviewqueue

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

func testItem(runID, artifactID string, duplicate bool) domain.ReviewItem {
	item := domain.ReviewItem{
		ArtifactID: artifactID,
		Title:      "Suspicious certutil download",
		Body:       "process.name == certutil.exe and cmdline contains -urlcache",
		Duplicate:  duplicate,
		Provenance: domain.Provenance{RunID: runID, ContentID: "post-1", ConfigVersion: 3},
	}
	if duplicate {
		item.Matches = []domain.SimilarityMatch{{CandidateID: artifactID, ReferenceID: "ref-9", Score: 0.97, Rank: 1}}
	}
	return item
}

// ==================== Spool Tests ====================

func TestNewSpool_RequiresDir(t *testing.T) {
	_, err := NewSpool("")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSpool_PushAndRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "review")
	spool, err := NewSpool(dir)
	require.NoError(t, err)
	spool.now = func() time.Time { return time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	require.NoError(t, spool.Push(ctx, testItem("run-1", "a1", false)))
	require.NoError(t, spool.Push(ctx, testItem("run-1", "a2", true)))

	_, err = os.Stat(filepath.Join(dir, "review-20260402.ndjson"))
	require.NoError(t, err)

	items, err := ReadSpool(dir)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a1", items[0].ArtifactID)
	assert.Equal(t, "a2", items[1].ArtifactID)
	assert.True(t, items[1].Duplicate)
	assert.Equal(t, "ref-9", items[1].Matches[0].ReferenceID)
	assert.Equal(t, int64(3), items[1].Provenance.ConfigVersion)
	assert.False(t, items[0].QueuedAt.IsZero())
}

func TestSpool_FilesReadInDayOrder(t *testing.T) {
	dir := t.TempDir()
	spool, err := NewSpool(dir)
	require.NoError(t, err)
	ctx := context.Background()

	spool.now = func() time.Time { return time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, spool.Push(ctx, testItem("run-2", "later", false)))
	spool.now = func() time.Time { return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, spool.Push(ctx, testItem("run-1", "earlier", false)))

	items, err := ReadSpool(dir)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "earlier", items[0].ArtifactID)
	assert.Equal(t, "later", items[1].ArtifactID)
}

func TestSpool_ConcurrentPushes(t *testing.T) {
	spool, err := NewSpool(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, spool.Push(context.Background(), testItem("run", string(rune('a'+i)), false)))
		}()
	}
	wg.Wait()

	items, err := ReadSpool(spool.Dir())
	require.NoError(t, err)
	assert.Len(t, items, 20)
}

func TestSpool_CancelledContext(t *testing.T) {
	spool, err := NewSpool(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, spool.Push(ctx, testItem("run", "a", false)), context.Canceled)
}

func TestReadSpool_MissingDir(t *testing.T) {
	items, err := ReadSpool(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestReadSpool_CorruptLine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "review-20260101.ndjson"), []byte("{not json}\n"), 0600))
	_, err := ReadSpool(dir)
	assert.ErrorContains(t, err, "review-20260101.ndjson:1")
}

// ==================== ObjectQueue Tests ====================

type fakePutter struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakePutter() *fakePutter {
	return &fakePutter{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakePutter) PutObject(_ context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = data
	f.types[bucket+"/"+key] = contentType
	return nil
}

func TestObjectQueue_PushWritesOneObjectPerArtifact(t *testing.T) {
	putter := newFakePutter()
	q := NewObjectQueue(putter, "rules", "")

	ctx := context.Background()
	require.NoError(t, q.Push(ctx, testItem("run-1", "a1", false)))
	require.NoError(t, q.Push(ctx, testItem("run-1", "a2", true)))

	assert.Len(t, putter.objects, 2)
	assert.Contains(t, putter.objects, "rules/review/run-1/a1.json")
	assert.Contains(t, string(putter.objects["rules/review/run-1/a2.json"]), `"duplicate":true`)
	assert.Equal(t, "application/json", putter.types["rules/review/run-1/a1.json"])
}

func TestObjectQueue_CustomPrefix(t *testing.T) {
	q := NewObjectQueue(newFakePutter(), "rules", "/pending/")
	assert.Equal(t, "pending/run-1/a1.json", q.Key(testItem("run-1", "a1", false)))
}

func TestObjectQueue_RejectsMissingArtifactID(t *testing.T) {
	q := NewObjectQueue(newFakePutter(), "rules", "")
	err := q.Push(context.Background(), domain.ReviewItem{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestObjectQueue_PutFailure(t *testing.T) {
	putter := newFakePutter()
	putter.err = errors.New("bucket gone")
	q := NewObjectQueue(putter, "rules", "")

	err := q.Push(context.Background(), testItem("run-1", "a1", false))
	assert.ErrorContains(t, err, "bucket gone")
}

func TestObjectConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ObjectConfig
		wantErr bool
	}{
		{"complete", ObjectConfig{Endpoint: "localhost:9000", Bucket: "b", AccessKey: "k", SecretKey: "s"}, false},
		{"no endpoint", ObjectConfig{Bucket: "b", AccessKey: "k", SecretKey: "s"}, true},
		{"no bucket", ObjectConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"}, true},
		{"no secret", ObjectConfig{Endpoint: "localhost:9000", Bucket: "b", AccessKey: "k"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClassify_PlainErrorIsUnavailable(t *testing.T) {
	err := classify(errors.New("dial tcp: connection refused"))
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestNewMinIOQueue_InvalidConfig(t *testing.T) {
	_, err := NewMinIOQueue(context.Background(), ObjectConfig{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
