// Package plugins resolves user-supplied subscription URLs (channel pages,
// handles, playlists) into the feed URLs the crawler can read.
package plugins

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// FeedInfo is what a plugin learned about a subscription URL.
type FeedInfo struct {
	// OriginalURL is the URL that was requested
	OriginalURL string
	// FeedURL is the Atom/RSS endpoint to crawl
	FeedURL string
	// ChannelID is the source's own channel id, when known
	ChannelID string
	Title     string
	// Metadata holds plugin-specific details (handle, playlist id, ...)
	Metadata map[string]string
}

// Plugin defines the interface that host-specific plugins must implement
type Plugin interface {
	Name() string

	// CanHandle returns true if this plugin can handle the given URL
	CanHandle(url string) bool

	// EnhanceFeed resolves a URL to feed information. This may involve HTTP
	// requests to fetch metadata.
	EnhanceFeed(ctx context.Context, url string, client *http.Client) (*FeedInfo, error)

	// Priority breaks ties when several plugins handle a URL (higher wins).
	Priority() int
}

// Registry manages all registered plugins
type Registry struct {
	plugins []Plugin
	client  *http.Client
}

func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		plugins: make([]Plugin, 0),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}


func (r *Registry) Register(plugin Plugin) {
	r.plugins = append(r.plugins, plugin)
}

// FindPlugin returns the plugin with the highest priority that can handle
// url, or nil.
func (r *Registry) FindPlugin(url string) Plugin {
	var bestPlugin Plugin
	highestPriority := -1

	for _, plugin := range r.plugins {
		if plugin.CanHandle(url) && plugin.Priority() > highestPriority {
			bestPlugin = plugin
			highestPriority = plugin.Priority()
		}
	}

	return bestPlugin
}

// EnhanceFeed resolves url with the best plugin. Without one, the URL is
// assumed to already be a feed.
func (r *Registry) EnhanceFeed(ctx context.Context, url string) (*FeedInfo, error) {
	plugin := r.FindPlugin(url)
	if plugin == nil {
		return &FeedInfo{
			OriginalURL: url,
			FeedURL:     url,
			Metadata:    make(map[string]string),
		}, nil
	}

	info, err := plugin.EnhanceFeed(ctx, url, r.client)
	if err != nil {
		return nil, err
	}
	if info.OriginalURL == "" {
		info.OriginalURL = url
	}
	if info.Metadata == nil {
		info.Metadata = make(map[string]string)
	}
	info.Metadata["plugin"] = plugin.Name()
	return info, nil
}

// ListPlugins returns all registered plugins, highest priority first.
func (r *Registry) ListPlugins() []Plugin {
	out := append([]Plugin(nil), r.plugins...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() > out[j].Priority()
	})
	return out
}
