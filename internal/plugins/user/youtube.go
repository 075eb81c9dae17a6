package user

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/pders01/unwatched/internal/plugins"
	"github.com/pders01/unwatched/internal/validation"
)

// DefaultFeedBase is YouTube's Atom feed endpoint.
const DefaultFeedBase = "https://www.youtube.com/feeds/videos.xml"

var (
	channelIDInPage = []*regexp.Regexp{
		regexp.MustCompile(`<meta itemprop="(?:channelId|identifier)" content="(UC[A-Za-z0-9_-]{22})"`),
		regexp.MustCompile(`<link rel="canonical" href="https://www\.youtube\.com/channel/(UC[A-Za-z0-9_-]{22})"`),
		regexp.MustCompile(`"(?:channelId|externalId)":"(UC[A-Za-z0-9_-]{22})"`),
	}
	ogTitle = regexp.MustCompile(`<meta property="og:title" content="([^"]*)"`)
)

// YouTubePlugin turns channel pages, handles and playlists into feed URLs.
type YouTubePlugin struct {
	feedBase string
	pageBase string
}

// NewYouTubePlugin creates the plugin. An empty feedBase uses DefaultFeedBase.
func NewYouTubePlugin(feedBase string) *YouTubePlugin {
	if feedBase == "" {
		feedBase = DefaultFeedBase
	}
	return &YouTubePlugin{feedBase: feedBase, pageBase: "https://www.youtube.com"}
}

func (p *YouTubePlugin) Name() string {
	return "youtube"
}

func (p *YouTubePlugin) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return validation.IsYouTubeHost(u.Host)
}

func (p *YouTubePlugin) Priority() int {
	return 100
}

func (p *YouTubePlugin) feedURL(param, value string) string {
	q := url.Values{}
	q.Set(param, value)
	return p.feedBase + "?" + q.Encode()
}

// EnhanceFeed resolves rawURL. Feed and /channel/ URLs resolve offline;
// handles, /c/ and /user/ URLs need the channel page to find the id.
func (p *YouTubePlugin) EnhanceFeed(ctx context.Context, rawURL string, client *http.Client) (*plugins.FeedInfo, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing youtube url: %w", err)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	info := &plugins.FeedInfo{OriginalURL: rawURL, Metadata: map[string]string{}}

	switch {
	case strings.HasPrefix(u.Path, "/feeds/videos.xml"):
		info.FeedURL = rawURL
		info.ChannelID = u.Query().Get("channel_id")
		return info, nil

	case segments[0] == "channel" && len(segments) >= 2:
		if err := validation.ValidateChannelID(segments[1]); err != nil {
			return nil, err
		}
		info.ChannelID = segments[1]
		info.FeedURL = p.feedURL("channel_id", segments[1])
		return info, nil

	case segments[0] == "playlist" && u.Query().Get("list") != "":
		list := u.Query().Get("list")
		info.FeedURL = p.feedURL("playlist_id", list)
		info.Metadata["playlist"] = list
		return info, nil

	case strings.HasPrefix(segments[0], "@"):
		info.Metadata["handle"] = segments[0]
	case (segments[0] == "c" || segments[0] == "user") && len(segments) >= 2:
		info.Metadata["name"] = segments[1]
	default:
		return nil, fmt.Errorf("unsupported youtube url %q: use a channel, handle or playlist url", rawURL)
	}

	pagePath := segments[0]
	if !strings.HasPrefix(pagePath, "@") {
		pagePath += "/" + segments[1]
	}
	pageURL := p.pageBase + "/" + pagePath
	page, err := fetchPage(ctx, client, pageURL)
	if err != nil {
		return nil, err
	}

	channelID, title := parseChannelPage(page)
	if channelID == "" {
		return nil, fmt.Errorf("no channel id found on %s", pageURL)
	}
	info.ChannelID = channelID
	info.Title = title
	info.FeedURL = p.feedURL("channel_id", channelID)
	return info, nil
}

func fetchPage(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	// Without a consent cookie EU requests land on an interstitial.
	req.AddCookie(&http.Cookie{Name: "CONSENT", Value: "YES+1"})
	req.Header.Set("Accept-Language", "en")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching channel page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetching channel page: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("reading channel page: %w", err)
	}
	return string(body), nil
}

// parseChannelPage extracts the channel id and title from channel page HTML.
func parseChannelPage(page string) (channelID, title string) {
	for _, re := range channelIDInPage {
		if m := re.FindStringSubmatch(page); m != nil {
			channelID = m[1]
			break
		}
	}
	if m := ogTitle.FindStringSubmatch(page); m != nil {
		title = html.UnescapeString(m[1])
	}
	return channelID, title
}
