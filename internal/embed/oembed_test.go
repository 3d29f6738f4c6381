package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const slideshareMarkup = `<iframe src="https://www.slideshare.net/slideshow/embed_code/key/abc" width="427" height="356"` +
	` frameborder="0" style="border:1px solid #CCC" allowfullscreen> </iframe>` +
	` <div style="margin-bottom:5px"><strong><a href="https://www.slideshare.net/user/deck">Deck</a></strong></div>`

func oembedServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Query().Get("format") != "json" {
			http.Error(w, "format", http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("url") == "" {
			http.Error(w, "url", http.StatusBadRequest)
			return
		}
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

type memStore struct {
	rows   map[string]string
	puts   int
	getErr error
}

func (m *memStore) GetEmbed(_ context.Context, u string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	html, ok := m.rows[u]
	return html, ok, nil
}

func (m *memStore) PutEmbed(_ context.Context, u, html string, _ time.Time) error {
	if m.rows == nil {
		m.rows = map[string]string{}
	}
	m.rows[u] = html
	m.puts++
	return nil
}

func TestNewOEmbedClient_RequiresEndpoint(t *testing.T) {
	_, err := NewOEmbedClient("  ")
	require.Error(t, err)
}

func TestOEmbedLookup_RewritesAndSanitizes(t *testing.T) {
	srv, _ := oembedServer(t, http.StatusOK, fmt.Sprintf(`{"html": %q}`, slideshareMarkup))
	c, err := NewOEmbedClient(srv.URL)
	require.NoError(t, err)

	html, ok := c.Lookup(context.Background(), "https://www.slideshare.net/user/deck")
	require.True(t, ok)
	assert.Contains(t, html, `src="https://www.slideshare.net/slideshow/embed_code/key/abc"`)
	assert.Contains(t, html, `class="slides"`)
	assert.NotContains(t, html, "style=")
	assert.NotContains(t, html, "<div")
	assert.NotContains(t, html, "Deck")
	assert.Regexp(t, `^<iframe .*></iframe>$`, html)
}

func TestOEmbedLookup_Memoized(t *testing.T) {
	srv, hits := oembedServer(t, http.StatusOK, `{"html": "<iframe src=\"https://www.slideshare.net/e/1\"></iframe>"}`)
	c, err := NewOEmbedClient(srv.URL, WithCacheTTL(time.Minute))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, ok := c.Lookup(context.Background(), "https://www.slideshare.net/user/deck")
		require.True(t, ok)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestOEmbedLookup_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"not found", http.StatusNotFound, `{"html": "<iframe></iframe>"}`},
		{"malformed", http.StatusOK, `{not json`},
		{"no html", http.StatusOK, `{"title": "deck"}`},
		{"script only", http.StatusOK, `{"html": "<script>alert(1)</script>"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, hits := oembedServer(t, tt.status, tt.body)
			c, err := NewOEmbedClient(srv.URL)
			require.NoError(t, err)

			_, ok := c.Lookup(context.Background(), "https://www.slideshare.net/user/deck")
			assert.False(t, ok)

			// failures are not memoized
			_, _ = c.Lookup(context.Background(), "https://www.slideshare.net/user/deck")
			assert.Equal(t, int32(2), atomic.LoadInt32(hits))
		})
	}
}

func TestOEmbedLookup_Unreachable(t *testing.T) {
	c, err := NewOEmbedClient("http://127.0.0.1:1/oembed", WithHTTPClient(&http.Client{Timeout: time.Second}))
	require.NoError(t, err)

	_, ok := c.Lookup(context.Background(), "https://www.slideshare.net/user/deck")
	assert.False(t, ok)
}

func TestOEmbedLookup_PersistsRawMarkup(t *testing.T) {
	srv, hits := oembedServer(t, http.StatusOK, fmt.Sprintf(`{"html": %q}`, slideshareMarkup))
	store := &memStore{}

	c, err := NewOEmbedClient(srv.URL, WithStore(store))
	require.NoError(t, err)
	_, ok := c.Lookup(context.Background(), "https://www.slideshare.net/user/deck")
	require.True(t, ok)
	assert.Equal(t, 1, store.puts)
	assert.Equal(t, slideshareMarkup, store.rows["https://www.slideshare.net/user/deck"])

	// a fresh client with the same store does not hit the network
	c2, err := NewOEmbedClient(srv.URL, WithStore(store))
	require.NoError(t, err)
	html, ok := c2.Lookup(context.Background(), "https://www.slideshare.net/user/deck")
	require.True(t, ok)
	assert.Contains(t, html, `class="slides"`)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	assert.Equal(t, 1, store.puts)
}

func TestOEmbedLookup_StoreErrorFallsBackToFetch(t *testing.T) {
	srv, hits := oembedServer(t, http.StatusOK, fmt.Sprintf(`{"html": %q}`, slideshareMarkup))
	store := &memStore{getErr: errors.New("disk gone")}

	c, err := NewOEmbedClient(srv.URL, WithStore(store))
	require.NoError(t, err)
	_, ok := c.Lookup(context.Background(), "https://www.slideshare.net/user/deck")
	assert.True(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestOEmbedLookup_CancelledContext(t *testing.T) {
	srv, hits := oembedServer(t, http.StatusOK, fmt.Sprintf(`{"html": %q}`, slideshareMarkup))
	c, err := NewOEmbedClient(srv.URL, WithRateLimit(0.001))
	require.NoError(t, err)

	// consume the single burst token
	_, ok := c.Lookup(context.Background(), "https://www.slideshare.net/a")
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok = c.Lookup(ctx, "https://www.slideshare.net/b")
	assert.False(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestExtractor_WithOEmbedClient(t *testing.T) {
	srv, _ := oembedServer(t, http.StatusOK, fmt.Sprintf(`{"html": %q}`, slideshareMarkup))
	c, err := NewOEmbedClient(srv.URL)
	require.NoError(t, err)

	e := NewExtractor(c, nil)
	tags := e.Extract(context.Background(), "slides at https://www.slideshare.net/user/deck")
	require.Len(t, tags, 1)
	assert.Equal(t, SlideShare, tags[0].Provider)
	assert.Contains(t, tags[0].HTML, `class="slides"`)
}
