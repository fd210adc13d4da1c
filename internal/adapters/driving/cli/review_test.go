package cli

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ruleforge/internal/adapters/driven/reviewqueue"
	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

func spoolWith(t *testing.T, items ...domain.ReviewItem) string {
	t.Helper()
	dir := t.TempDir()
	spool, err := reviewqueue.NewSpool(dir)
	require.NoError(t, err)
	for _, item := range items {
		require.NoError(t, spool.Push(context.Background(), item))
	}
	return dir
}

func TestReviewList(t *testing.T) {
	dir := spoolWith(t,
		domain.ReviewItem{ArtifactID: "a1", Title: "Certutil Download", Duplicate: true,
			Provenance: domain.Provenance{RunID: "run-1", ContentID: "report-17", ConfigVersion: 2}},
		domain.ReviewItem{ArtifactID: "a2", Title: "Rundll32 Proxy",
			Provenance: domain.Provenance{RunID: "run-1", ContentID: "report-17", ConfigVersion: 2}},
	)
	withServices(t, Services{ReviewSpoolDir: dir})

	out, err := execute(t, "review", "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "D a1  Certutil Download  (run run-1, content report-17, config v2)", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "  a2"))
	assert.Contains(t, out, "2 item(s)")
}

func TestReviewList_JSON(t *testing.T) {
	dir := spoolWith(t, domain.ReviewItem{ArtifactID: "a1", Title: "One"})
	withServices(t, Services{ReviewSpoolDir: dir})

	out, err := execute(t, "review", "list", "--json")
	require.NoError(t, err)

	var item domain.ReviewItem
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &item))
	assert.Equal(t, "a1", item.ArtifactID)
	assert.False(t, item.QueuedAt.IsZero())
}

func TestReviewList_Empty(t *testing.T) {
	withServices(t, Services{ReviewSpoolDir: t.TempDir()})

	out, err := execute(t, "review", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Review queue is empty.")
}

func TestReviewList_NotASpool(t *testing.T) {
	withServices(t, Services{})

	_, err := execute(t, "review", "list")
	assert.EqualError(t, err, "review queue is not a file spool")
}
