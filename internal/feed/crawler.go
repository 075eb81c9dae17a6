package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/pders01/unwatched/internal/config"
)

// Descriptor is one feed item before it becomes a stored video.
type Descriptor struct {
	YoutubeID     string
	Title         string
	URL           string
	ThumbnailURL  string
	PublishedDate *time.Time
	UpdatedDate   *time.Time
	ChannelID     string
	Description   string
	IsShort       bool
}

// Crawler returns the items of a feed published strictly after since. A nil
// since returns everything the feed holds. Order is not guaranteed.
type Crawler interface {
	Fetch(ctx context.Context, feedURL string, since *time.Time) ([]Descriptor, error)
}

// Describer is implemented by crawlers that can report a feed's own title and
// channel id, used when subscribing.
type Describer interface {
	Describe(ctx context.Context, feedURL string) (*ParsedFeed, error)
}

// Invalidator is implemented by crawlers that cache between runs. Invalidate
// is called when fetched items could not be stored, so the next run sees them
// again.
type Invalidator interface {
	Invalidate(feedURL string)
}

// YouTubeCrawler reads YouTube channel and playlist Atom feeds.
type YouTubeCrawler struct {
	fetcher *Fetcher
	parser  *Parser
}

func NewYouTubeCrawler(cfg *config.Config) *YouTubeCrawler {
	return &YouTubeCrawler{
		fetcher: NewFetcher(cfg),
		parser:  NewParser(),
	}
}

// SetForceRefresh makes the crawler ignore ETag/Last-Modified validators.
func (c *YouTubeCrawler) SetForceRefresh(force bool) {
	c.fetcher.SetIgnoreCache(force)
}

func (c *YouTubeCrawler) Fetch(ctx context.Context, feedURL string, since *time.Time) ([]Descriptor, error) {
	resp, updated, err := c.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, nil
	}
	defer resp.Body.Close()

	parsed, err := c.parser.Parse(resp.Body)
	if err != nil {
		c.fetcher.Forget(feedURL)
		return nil, err
	}

	if since == nil {
		return parsed.Descriptors, nil
	}
	newer := parsed.Descriptors[:0]
	for _, d := range parsed.Descriptors {
		if d.PublishedDate != nil && d.PublishedDate.After(*since) {
			newer = append(newer, d)
		}
	}
	return newer, nil
}

func (c *YouTubeCrawler) Describe(ctx context.Context, feedURL string) (*ParsedFeed, error) {
	resp, err := c.fetcher.FetchFresh(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	parsed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("describing %s: %w", feedURL, err)
	}
	return parsed, nil
}

func (c *YouTubeCrawler) Invalidate(feedURL string) {
	c.fetcher.Forget(feedURL)
}
