package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/unwatched/internal/config"
	"github.com/pders01/unwatched/internal/plugins"
)

type stubResolver struct {
	channelID string
	err       error
	gotURL    string
}

func (r *stubResolver) EnhanceFeed(_ context.Context, url string) (*plugins.FeedInfo, error) {
	r.gotURL = url
	if r.err != nil {
		return nil, r.err
	}
	return &plugins.FeedInfo{ChannelID: r.channelID}, nil
}

func oembedServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") == "https://www.youtube.com/watch?v=missingvide" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Never Gonna","author_name":"Rick","author_url":"https://www.youtube.com/@rick","thumbnail_url":"https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg"}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOEmbedFetcher_VideoInfo(t *testing.T) {
	server := oembedServer(t)
	resolver := &stubResolver{channelID: testChannelID}
	f := NewOEmbedFetcher(config.TestConfig(t.TempDir()), server.URL, resolver)

	info, err := f.VideoInfo(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)

	assert.Equal(t, "Never Gonna", info.Title)
	assert.Equal(t, "Rick", info.ChannelTitle)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", info.URL)
	assert.Equal(t, "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg", info.ThumbnailURL)
	assert.Equal(t, testChannelID, info.ChannelID)
	assert.Equal(t, "https://www.youtube.com/@rick", resolver.gotURL)
}

func TestOEmbedFetcher_ResolverFailureIsNotFatal(t *testing.T) {
	server := oembedServer(t)
	f := NewOEmbedFetcher(nil, server.URL, &stubResolver{err: errors.New("page unavailable")})

	info, err := f.VideoInfo(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Empty(t, info.ChannelID)
	assert.Equal(t, "Never Gonna", info.Title)
}

func TestOEmbedFetcher_NotFound(t *testing.T) {
	server := oembedServer(t)
	f := NewOEmbedFetcher(nil, server.URL, nil)

	_, err := f.VideoInfo(context.Background(), "missingvide")
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorContains(t, err, "HTTP 404")
}
