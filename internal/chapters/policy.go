package chapters

import (
	"time"

	"github.com/pders01/unwatched/internal/storage"
)

// Policy decides when sponsor segments for a video are fetched again.
type Policy struct {
	// RecentWindow: videos published within it are always refreshed.
	RecentWindow time.Duration
	// StaleAfter: older videos are refreshed once the last attempt is this old.
	StaleAfter time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		RecentWindow: 24 * time.Hour,
		StaleAfter:   3 * 24 * time.Hour,
	}
}

// ShouldRefresh reports whether sponsor data for video should be fetched at now.
func (p Policy) ShouldRefresh(video *storage.Video, now time.Time) bool {
	if video.PublishedDate != nil && now.Sub(*video.PublishedDate) < p.RecentWindow {
		return true
	}
	if video.SponsorBlockLastRefreshed == nil {
		return true
	}
	return now.Sub(*video.SponsorBlockLastRefreshed) > p.StaleAfter
}
