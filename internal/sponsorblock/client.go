// Package sponsorblock talks to the SponsorBlock API to find crowd-sourced
// skip segments for a video.
package sponsorblock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pders01/unwatched/internal/debuglog"
	"github.com/pders01/unwatched/internal/storage"
)

const DefaultBaseURL = "https://sponsor.ajay.app/api/"

var (
	// ErrNoValidEndpoint is returned when no request URL can be built.
	ErrNoValidEndpoint = errors.New("sponsorblock: no valid endpoint")
	// ErrFetchFailed wraps transport-level failures.
	ErrFetchFailed = errors.New("sponsorblock: fetch failed")
	// ErrDecodeFailed is wrapped by RequestFailedError when the body is not a
	// segment list.
	ErrDecodeFailed = errors.New("sponsorblock: decode failed")
)

// RequestFailedError carries the raw response of an unusable reply.
type RequestFailedError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sponsorblock: request failed (status %d): %v: %s", e.StatusCode, e.Err, e.Body)
	}
	return fmt.Sprintf("sponsorblock: request failed (status %d): %s", e.StatusCode, e.Body)
}

func (e *RequestFailedError) Unwrap() error {
	return e.Err
}

// Segment is one skip segment as returned by /skipSegments.
type Segment struct {
	Category      string    `json:"category"`
	ActionType    string    `json:"actionType"`
	Segment       []float64 `json:"segment"`
	UUID          string    `json:"UUID"`
	VideoDuration float64   `json:"videoDuration"`
	Locked        int       `json:"locked"`
	Votes         int       `json:"votes"`
	Description   string    `json:"description"`
}

// Client fetches skip segments.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero or less disables the
// limit.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) endpoint(videoID string) (string, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return "", fmt.Errorf("%w: empty video id", ErrNoValidEndpoint)
	}
	base, err := url.Parse(c.baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("%w: base url %q", ErrNoValidEndpoint, c.baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	endpoint := base.ResolveReference(&url.URL{Path: "skipSegments"})
	params := url.Values{}
	params.Set("videoID", videoID)
	endpoint.RawQuery = params.Encode()
	return endpoint.String(), nil
}

// FetchSegments returns the skip segments for videoID. Any non-2xx reply,
// including the 404 SponsorBlock sends for a video without segments, is a
// *RequestFailedError carrying the body.
func (c *Client) FetchSegments(ctx context.Context, videoID string) ([]Segment, error) {
	endpoint, err := c.endpoint(videoID)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoValidEndpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("%w (latency=%v): %w", ErrFetchFailed, latency, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrFetchFailed, err)
	}

	debuglog.WithFields(map[string]interface{}{
		"video":   videoID,
		"status":  resp.StatusCode,
		"latency": latency,
	}).Debugf("sponsorblock: skipSegments")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestFailedError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var segments []Segment
	if err := json.Unmarshal(body, &segments); err != nil {
		return nil, &RequestFailedError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        fmt.Errorf("%w: %v", ErrDecodeFailed, err),
		}
	}
	return segments, nil
}

// ToChapters maps segments to sponsor chapters. Segments without a start
// point are skipped.
func ToChapters(segments []Segment) []storage.Chapter {
	chapters := make([]storage.Chapter, 0, len(segments))
	for _, s := range segments {
		if len(s.Segment) == 0 {
			debuglog.WithFields(map[string]interface{}{"uuid": s.UUID}).Warnf("sponsorblock: segment has no start time")
			continue
		}
		chapters = append(chapters, storage.Chapter{
			StartTime: s.Segment[0],
			EndTime:   storage.Float(s.Segment[len(s.Segment)-1]),
			Category:  storage.CategorySponsor,
		})
	}
	return chapters
}

// SponsorChapters fetches and maps the segments of a video in one call.
func (c *Client) SponsorChapters(ctx context.Context, youtubeID string) ([]storage.Chapter, error) {
	segments, err := c.FetchSegments(ctx, youtubeID)
	if err != nil {
		return nil, err
	}
	return ToChapters(segments), nil
}
