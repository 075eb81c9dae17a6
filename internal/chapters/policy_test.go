package chapters

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pders01/unwatched/internal/storage"
)

func TestPolicy_ShouldRefresh(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time { return storage.Time(now.Add(-d)) }
	policy := DefaultPolicy()

	tests := []struct {
		name          string
		published     *time.Time
		lastRefreshed *time.Time
		want          bool
	}{
		{"never refreshed", ago(30 * 24 * time.Hour), nil, true},
		{"no publish date, never refreshed", nil, nil, true},
		{"recent video refreshed a minute ago", ago(2 * time.Hour), ago(time.Minute), true},
		{"old video refreshed yesterday", ago(10 * 24 * time.Hour), ago(24 * time.Hour), false},
		{"old video refreshed four days ago", ago(10 * 24 * time.Hour), ago(4 * 24 * time.Hour), true},
		{"just outside recent window", ago(25 * time.Hour), ago(time.Hour), false},
		{"no publish date, stale", nil, ago(73 * time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			video := &storage.Video{PublishedDate: tt.published, SponsorBlockLastRefreshed: tt.lastRefreshed}
			assert.Equal(t, tt.want, policy.ShouldRefresh(video, now))
		})
	}
}
