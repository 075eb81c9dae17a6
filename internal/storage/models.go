package storage

import (
	"fmt"
	"strings"
	"time"
)

// Placement names the collection newly ingested videos are routed to.
type Placement string

const (
	PlacementDefault Placement = "default"
	PlacementInbox   Placement = "inbox"
	PlacementQueue   Placement = "queue"
)

// ParsePlacement accepts the config/CLI spelling of a placement.
func ParsePlacement(s string) (Placement, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return PlacementDefault, nil
	case "inbox":
		return PlacementInbox, nil
	case "queue":
		return PlacementQueue, nil
	default:
		return "", fmt.Errorf("unknown placement %q", s)
	}
}

// Resolve substitutes fallback when p defers to the source default.
func (p Placement) Resolve(fallback Placement) Placement {
	if p == "" || p == PlacementDefault {
		return fallback
	}
	return p
}

type VideoStatus string

const (
	StatusNone    VideoStatus = ""
	StatusQueued  VideoStatus = "queued"
	StatusInbox   VideoStatus = "inbox"
	StatusWatched VideoStatus = "watched"
)

type ChapterCategory string

const (
	CategoryNormal  ChapterCategory = "normal"
	CategorySponsor ChapterCategory = "sponsor"
	CategoryFiller  ChapterCategory = "filler"
)

type Chapter struct {
	Title     string          `json:"title,omitempty"`
	StartTime float64         `json:"start_time"`
	EndTime   *float64        `json:"end_time,omitempty"`
	Duration  *float64        `json:"duration,omitempty"`
	Category  ChapterCategory `json:"category"`
}

// End returns the chapter end time and whether it is known.
func (c Chapter) End() (float64, bool) {
	if c.EndTime == nil {
		return 0, false
	}
	return *c.EndTime, true
}

func (c Chapter) String() string {
	end := "?"
	if c.EndTime != nil {
		end = fmt.Sprintf("%.1f", *c.EndTime)
	}
	return fmt.Sprintf("{%.1f-%s %s}", c.StartTime, end, c.Category)
}

type Subscription struct {
	ID                  string     `json:"id"`
	Link                string     `json:"link"`
	Title               string     `json:"title"`
	YoutubeChannelID    string     `json:"youtube_channel_id"`
	PlaceVideosIn       Placement  `json:"place_videos_in"`
	MostRecentVideoDate *time.Time `json:"most_recent_video_date,omitempty"`
	VideoIDs            []string   `json:"video_ids"`
	CreatedAt           time.Time  `json:"created_at"`
}

type Video struct {
	YoutubeID                 string      `json:"youtube_id"`
	Title                     string      `json:"title"`
	URL                       string      `json:"url"`
	ThumbnailURL              string      `json:"thumbnail_url,omitempty"`
	YoutubeChannelID          string      `json:"youtube_channel_id,omitempty"`
	FeedTitle                 string      `json:"feed_title,omitempty"`
	SubscriptionID            string      `json:"subscription_id,omitempty"`
	Duration                  *float64    `json:"duration,omitempty"`
	PublishedDate             *time.Time  `json:"published_date,omitempty"`
	Status                    VideoStatus `json:"status,omitempty"`
	SponsorBlockLastRefreshed *time.Time  `json:"sponsorblock_last_refreshed,omitempty"`
	Chapters                  []Chapter   `json:"chapters,omitempty"`
	AuthorChapters            []Chapter   `json:"author_chapters,omitempty"`
	Description               string      `json:"description,omitempty"`
	IsShort                   bool        `json:"is_short,omitempty"`
	WatchedDate               *time.Time  `json:"watched_date,omitempty"`
	CreatedAt                 time.Time   `json:"created_at"`
}

type QueueEntry struct {
	ID        string `json:"id"`
	YoutubeID string `json:"youtube_id"`
	Order     int    `json:"order"`
}

type InboxEntry struct {
	ID        string    `json:"id"`
	YoutubeID string    `json:"youtube_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshState holds the timestamps the refresh orchestrator schedules by.
type RefreshState struct {
	LastAutoRefresh *time.Time `json:"last_auto_refresh,omitempty"`
	LastAutoBackup  *time.Time `json:"last_auto_backup,omitempty"`
}

// Float returns a pointer to v, for optional chapter and duration fields.
func Float(v float64) *float64 {
	return &v
}

// Time returns a pointer to t.
func Time(t time.Time) *time.Time {
	return &t
}
