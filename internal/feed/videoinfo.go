package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pders01/unwatched/internal/config"
	"github.com/pders01/unwatched/internal/debuglog"
	"github.com/pders01/unwatched/internal/plugins"
)

// DefaultOEmbedURL is YouTube's oEmbed endpoint.
const DefaultOEmbedURL = "https://www.youtube.com/oembed"

// VideoInfo is the metadata known about a single video looked up on demand.
type VideoInfo struct {
	YoutubeID    string
	Title        string
	URL          string
	ThumbnailURL string
	ChannelID    string
	ChannelTitle string
	AuthorURL    string
	Duration     *float64
	Description  string
	IsShort      bool
}

// VideoInfoFetcher looks up a single video by id.
type VideoInfoFetcher interface {
	VideoInfo(ctx context.Context, youtubeID string) (*VideoInfo, error)
}

// ChannelResolver turns a channel page URL into feed information.
// *plugins.Registry implements it.
type ChannelResolver interface {
	EnhanceFeed(ctx context.Context, url string) (*plugins.FeedInfo, error)
}

type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	AuthorURL    string `json:"author_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// OEmbedFetcher resolves video metadata through the oEmbed endpoint. oEmbed
// names the author's page but not the channel id; when a resolver is set the
// page is resolved to find it.
type OEmbedFetcher struct {
	endpoint  string
	client    *http.Client
	userAgent string
	resolver  ChannelResolver
}

func NewOEmbedFetcher(cfg *config.Config, endpoint string, resolver ChannelResolver) *OEmbedFetcher {
	if endpoint == "" {
		endpoint = DefaultOEmbedURL
	}
	f := &OEmbedFetcher{
		endpoint:  endpoint,
		client:    &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		resolver:  resolver,
	}
	if cfg != nil {
		if cfg.Feed.HTTPTimeout > 0 {
			f.client.Timeout = cfg.Feed.HTTPTimeout
		}
		if cfg.Feed.UserAgent != "" {
			f.userAgent = cfg.Feed.UserAgent
		}
	}
	return f
}

func (f *OEmbedFetcher) VideoInfo(ctx context.Context, youtubeID string) (*VideoInfo, error) {
	watchURL := "https://www.youtube.com/watch?v=" + youtubeID
	q := url.Values{}
	q.Set("url", watchURL)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: oembed HTTP %d for %s", ErrFetchFailed, resp.StatusCode, youtubeID)
	}

	var body oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding oembed response: %w", err)
	}

	info := &VideoInfo{
		YoutubeID:    youtubeID,
		Title:        body.Title,
		URL:          watchURL,
		ThumbnailURL: body.ThumbnailURL,
		ChannelTitle: body.AuthorName,
		AuthorURL:    body.AuthorURL,
	}

	if f.resolver != nil && body.AuthorURL != "" {
		feedInfo, err := f.resolver.EnhanceFeed(ctx, body.AuthorURL)
		if err != nil {
			debuglog.WithFields(map[string]interface{}{"video": youtubeID}).
				Warnf("resolving channel %s: %v", body.AuthorURL, err)
		} else {
			info.ChannelID = feedInfo.ChannelID
		}
	}
	return info, nil
}
