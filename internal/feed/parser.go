package feed

import (
	"fmt"
	"io"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/pders01/unwatched/internal/validation"
)

// ParsedFeed is a decoded channel or playlist feed.
type ParsedFeed struct {
	Title       string
	ChannelID   string
	Descriptors []Descriptor
}

type Parser struct {
	parser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		parser: gofeed.NewParser(),
	}
}

// Parse decodes a YouTube Atom feed. Plain RSS and Atom feeds work too as
// long as item links carry a recognizable video id.
func (p *Parser) Parse(reader io.Reader) (*ParsedFeed, error) {
	feed, err := p.parser.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	parsed := &ParsedFeed{
		Title:     feed.Title,
		ChannelID: normalizeChannelID(extensionValue(feed.Extensions, "yt", "channelId")),
	}

	parsed.Descriptors = make([]Descriptor, 0, len(feed.Items))
	for _, item := range feed.Items {
		videoID := videoIDFor(item)
		if videoID == "" {
			continue
		}

		d := Descriptor{
			YoutubeID:   videoID,
			Title:       item.Title,
			URL:         item.Link,
			ChannelID:   normalizeChannelID(extensionValue(item.Extensions, "yt", "channelId")),
			Description: item.Description,
		}
		if d.ChannelID == "" {
			d.ChannelID = parsed.ChannelID
		}
		if d.URL == "" {
			d.URL = "https://www.youtube.com/watch?v=" + videoID
		}

		if group := mediaGroup(item.Extensions); group != nil {
			if thumbs := group.Children["thumbnail"]; len(thumbs) > 0 {
				d.ThumbnailURL = thumbs[0].Attrs["url"]
			}
			if descs := group.Children["description"]; len(descs) > 0 && d.Description == "" {
				d.Description = descs[0].Value
			}
		}
		if d.ThumbnailURL == "" && item.Image != nil {
			d.ThumbnailURL = item.Image.URL
		}

		if item.PublishedParsed != nil {
			published := item.PublishedParsed.UTC()
			d.PublishedDate = &published
		}
		if item.UpdatedParsed != nil {
			updated := item.UpdatedParsed.UTC()
			d.UpdatedDate = &updated
		}
		if d.PublishedDate == nil {
			d.PublishedDate = d.UpdatedDate
		}

		d.IsShort = isShort(d.URL, d.Title, d.Description)
		parsed.Descriptors = append(parsed.Descriptors, d)
	}

	return parsed, nil
}

func videoIDFor(item *gofeed.Item) string {
	if id := extensionValue(item.Extensions, "yt", "videoId"); id != "" {
		return id
	}
	if id, ok := strings.CutPrefix(item.GUID, "yt:video:"); ok {
		return id
	}
	if id, err := validation.ExtractVideoID(item.Link); err == nil {
		return id
	}
	return ""
}

func extensionValue(exts ext.Extensions, prefix, name string) string {
	if exts == nil {
		return ""
	}
	values := exts[prefix][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

func mediaGroup(exts ext.Extensions) *ext.Extension {
	if exts == nil {
		return nil
	}
	groups := exts["media"]["group"]
	if len(groups) == 0 {
		return nil
	}
	return &groups[0]
}

// normalizeChannelID restores the "UC" prefix some feeds omit.
func normalizeChannelID(id string) string {
	if len(id) == 22 && !strings.HasPrefix(id, "UC") {
		return "UC" + id
	}
	return id
}

func isShort(link, title, description string) bool {
	if validation.IsShortsURL(link) {
		return true
	}
	tag := "#shorts"
	return strings.Contains(strings.ToLower(title), tag) ||
		strings.Contains(strings.ToLower(description), tag)
}
