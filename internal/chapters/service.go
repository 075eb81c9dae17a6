package chapters

import (
	"context"
	"fmt"
	"time"

	"github.com/pders01/unwatched/internal/debuglog"
	"github.com/pders01/unwatched/internal/storage"
)

// SponsorSource provides sponsor chapters for a video.
type SponsorSource interface {
	SponsorChapters(ctx context.Context, youtubeID string) ([]storage.Chapter, error)
}

// Service applies the refresh policy and stores reconciled timelines.
type Service struct {
	store     *storage.Store
	source    SponsorSource
	policy    Policy
	tolerance float64
	now       func() time.Time
}

func NewService(store *storage.Store, source SponsorSource, policy Policy, tolerance float64) *Service {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Service{
		store:     store,
		source:    source,
		policy:    policy,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Result describes one sponsor refresh.
type Result struct {
	Refreshed bool
	Chapters  []storage.Chapter
}

// RefreshSponsorChapters fetches sponsor segments for the video when the
// policy (or force) asks for it, merges them into the author chapters and
// stores the result. The attempt is recorded before the network call, so a
// failed fetch still delays the next one. On fetch failure the stored
// chapters are left untouched.
func (s *Service) RefreshSponsorChapters(ctx context.Context, youtubeID string, force bool) (*Result, error) {
	log := debuglog.WithFields(map[string]interface{}{"video": youtubeID})

	var video *storage.Video
	refresh := false
	err := s.store.Update(func(tx *storage.Tx) error {
		var err error
		video, err = tx.Video(youtubeID)
		if err != nil {
			return err
		}
		now := s.now()
		refresh = force || s.policy.ShouldRefresh(video, now)
		if !refresh {
			return nil
		}
		video.SponsorBlockLastRefreshed = &now
		return tx.PutVideo(video)
	})
	if err != nil {
		return nil, fmt.Errorf("loading video: %w", err)
	}
	if !refresh {
		log.Debugf("sponsorblock: not refreshing")
		return &Result{Chapters: video.Chapters}, nil
	}

	sponsor, err := s.source.SponsorChapters(ctx, youtubeID)
	if err != nil {
		log.Warnf("sponsorblock: fetch failed: %v", err)
		return nil, fmt.Errorf("fetching sponsor segments: %w", err)
	}

	merged := Reconcile(authorChapters(video), sponsor, video.Duration, s.tolerance)
	log.Infof("sponsorblock: %d author, %d sponsor -> %d chapters", len(authorChapters(video)), len(sponsor), len(merged))

	err = s.store.Update(func(tx *storage.Tx) error {
		current, err := tx.Video(youtubeID)
		if err != nil {
			return err
		}
		current.Chapters = merged
		return tx.PutVideo(current)
	})
	if err != nil {
		return nil, fmt.Errorf("saving chapters: %w", err)
	}
	return &Result{Refreshed: true, Chapters: merged}, nil
}

// authorChapters returns the author's own markers: the dedicated field when
// set, otherwise the non-derived chapters of the current timeline.
func authorChapters(video *storage.Video) []storage.Chapter {
	if len(video.AuthorChapters) > 0 {
		return video.AuthorChapters
	}
	var out []storage.Chapter
	for _, c := range video.Chapters {
		if c.Category == storage.CategoryNormal || c.Category == "" {
			out = append(out, c)
		}
	}
	return out
}
