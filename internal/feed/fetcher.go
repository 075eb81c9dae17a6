package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pders01/unwatched/internal/config"
)

const (
	defaultUserAgent = "unwatched/1.0 (feed reader; github.com/pders01/unwatched)"
	defaultTimeout   = 30 * time.Second
)

// ErrFetchFailed wraps every transport or HTTP status failure of a feed fetch.
var ErrFetchFailed = errors.New("feed fetch failed")

type validators struct {
	etag         string
	lastModified string
}

// Fetcher performs conditional GETs, remembering ETag and Last-Modified per URL
// for the lifetime of the process.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	mu          sync.Mutex
	cache       map[string]validators
	ignoreCache bool
}

func NewFetcher(cfg *config.Config) *Fetcher {
	timeout := defaultTimeout
	userAgent := defaultUserAgent
	if cfg != nil {
		if cfg.Feed.HTTPTimeout > 0 {
			timeout = cfg.Feed.HTTPTimeout
		}
		if cfg.Feed.UserAgent != "" {
			userAgent = cfg.Feed.UserAgent
		}
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		cache:     make(map[string]validators),
	}
}

// SetIgnoreCache makes every fetch unconditional.
func (f *Fetcher) SetIgnoreCache(ignore bool) {
	f.mu.Lock()
	f.ignoreCache = ignore
	f.mu.Unlock()
}

// Fetch requests url. It returns (nil, false, nil) when the server answers
// 304 Not Modified. The caller closes the body of a non-nil response.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*http.Response, bool, error) {
	return f.fetch(ctx, url, true)
}

// FetchFresh requests url without conditional headers.
func (f *Fetcher) FetchFresh(ctx context.Context, url string) (*http.Response, error) {
	resp, _, err := f.fetch(ctx, url, false)
	return resp, err
}

func (f *Fetcher) fetch(ctx context.Context, url string, conditional bool) (*http.Response, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/xml, text/xml")

	f.mu.Lock()
	cached, ok := f.cache[url]
	useCache := conditional && ok && !f.ignoreCache
	f.mu.Unlock()

	if useCache {
		if cached.etag != "" {
			req.Header.Set("If-None-Match", cached.etag)
		}
		if cached.lastModified != "" {
			req.Header.Set("If-Modified-Since", cached.lastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		return nil, false, nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retry := retryAfter(resp)
		resp.Body.Close()
		return nil, false, fmt.Errorf("%w: HTTP 429, retry after %s", ErrFetchFailed, retry)
	}

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, false, fmt.Errorf("%w: HTTP %d", ErrFetchFailed, resp.StatusCode)
	}

	if conditional {
		f.remember(url, resp)
	}
	return resp, true, nil
}

func (f *Fetcher) remember(url string, resp *http.Response) {
	v := validators{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}
	if v.etag == "" && v.lastModified == "" {
		return
	}
	f.mu.Lock()
	f.cache[url] = v
	f.mu.Unlock()
}

// Forget drops the validators for url so the next fetch is unconditional.
func (f *Fetcher) Forget(url string) {
	f.mu.Lock()
	delete(f.cache, url)
	f.mu.Unlock()
}

func retryAfter(resp *http.Response) time.Duration {
	if value := resp.Header.Get("Retry-After"); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if at, err := http.ParseTime(value); err == nil {
			return time.Until(at).Round(time.Second)
		}
	}
	return 15 * time.Minute
}
