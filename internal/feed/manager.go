package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pders01/unwatched/internal/chapters"
	"github.com/pders01/unwatched/internal/config"
	"github.com/pders01/unwatched/internal/debuglog"
	"github.com/pders01/unwatched/internal/plugins"
	"github.com/pders01/unwatched/internal/plugins/user"
	"github.com/pders01/unwatched/internal/storage"
	"github.com/pders01/unwatched/internal/validation"
)

// VideoIndex is notified about stored and deleted videos.
type VideoIndex interface {
	OnVideosUpdated(videos []*storage.Video)
	OnVideoDeleted(youtubeID string)
}

// ChapterRefresher refreshes sponsor chapters for a stored video.
type ChapterRefresher interface {
	RefreshSponsorChapters(ctx context.Context, youtubeID string, force bool) (*chapters.Result, error)
}

type Manager struct {
	store        *storage.Store
	config       *config.Config
	crawler      Crawler
	videoInfo    VideoInfoFetcher
	registry     *plugins.Registry
	index        VideoIndex
	chapters     ChapterRefresher
	urlValidator *validation.URLValidator
	now          func() time.Time
}

type Option func(*Manager)

func WithCrawler(c Crawler) Option {
	return func(m *Manager) {
		if c != nil {
			m.crawler = c
		}
	}
}

func WithVideoInfoFetcher(f VideoInfoFetcher) Option {
	return func(m *Manager) {
		if f != nil {
			m.videoInfo = f
		}
	}
}

func WithRegistry(r *plugins.Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

func WithIndex(index VideoIndex) Option {
	return func(m *Manager) {
		m.index = index
	}
}

// WithChapterRefresher enables sponsor chapter refreshes for newly ingested
// videos when sponsorblock.on_ingest is set.
func WithChapterRefresher(r ChapterRefresher) Option {
	return func(m *Manager) {
		m.chapters = r
	}
}

func NewManager(store *storage.Store, cfg *config.Config, opts ...Option) *Manager {
	registry := plugins.NewRegistry(cfg.Feed.HTTPTimeout)
	registry.Register(user.NewYouTubePlugin(cfg.Feed.BaseURL))

	m := &Manager{
		store:        store,
		config:       cfg,
		crawler:      NewYouTubeCrawler(cfg),
		registry:     registry,
		urlValidator: validation.NewURLValidator(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.videoInfo == nil {
		m.videoInfo = NewOEmbedFetcher(cfg, "", m.registry)
	}
	return m
}

// SetForceRefresh configures the crawler to ignore ETag/Last-Modified headers
func (m *Manager) SetForceRefresh(force bool) {
	if c, ok := m.crawler.(interface{ SetForceRefresh(bool) }); ok {
		c.SetForceRefresh(force)
	}
}

// SetPermissiveValidation enables permissive URL validation for development/testing
func (m *Manager) SetPermissiveValidation(permissive bool) {
	if permissive {
		m.urlValidator = validation.NewPermissiveURLValidator()
	} else {
		m.urlValidator = validation.NewURLValidator()
	}
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	Subscriptions int
	NewVideos     int
	Placed        int
	Failed        map[string]error
}

type crawlResult struct {
	descriptors []Descriptor
	err         error
}

// Ingest fetches new videos for the given subscriptions, or all of them when
// ids is nil. Each subscription commits in its own transaction, so one
// failure leaves the others intact; failures are reported per id and joined
// into the returned error.
func (m *Manager) Ingest(ctx context.Context, ids []string) (*IngestReport, error) {
	report := &IngestReport{Failed: make(map[string]error)}

	subs, err := m.resolveSubscriptions(ids, report)
	if err != nil {
		return report, err
	}
	report.Subscriptions = len(subs)

	results := make([]crawlResult, len(subs))
	var g errgroup.Group
	g.SetLimit(max(m.config.Refresh.Concurrency, 1))
	for i, sub := range subs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].err = err
				return nil
			}
			results[i].descriptors, results[i].err = m.crawler.Fetch(ctx, sub.Link, sub.MostRecentVideoDate)
			return nil
		})
	}
	_ = g.Wait()

	var created []*storage.Video
	for i, sub := range subs {
		log := debuglog.WithFields(map[string]interface{}{"subscription": sub.ID})
		if err := results[i].err; err != nil {
			log.Warnf("crawl failed: %v", err)
			report.Failed[sub.ID] = fmt.Errorf("crawling %s: %w", sub.Link, err)
			continue
		}

		videos, placed, err := m.ingestSubscription(sub.ID, results[i].descriptors)
		if err != nil {
			log.Errorf("ingest failed: %v", err)
			report.Failed[sub.ID] = err
			if inv, ok := m.crawler.(Invalidator); ok {
				inv.Invalidate(sub.Link)
			}
			continue
		}
		if len(videos) > 0 {
			log.Infof("ingested %d new videos, placed %d", len(videos), placed)
		}
		report.NewVideos += len(videos)
		report.Placed += placed
		created = append(created, videos...)
	}

	m.afterStore(ctx, created)
	return report, joinFailures(report.Failed)
}

func (m *Manager) resolveSubscriptions(ids []string, report *IngestReport) ([]*storage.Subscription, error) {
	if ids == nil {
		subs, err := m.store.GetAllSubscriptions()
		if err != nil {
			return nil, fmt.Errorf("getting subscriptions: %w", err)
		}
		return subs, nil
	}
	subs := make([]*storage.Subscription, 0, len(ids))
	for _, id := range ids {
		sub, err := m.store.GetSubscription(id)
		if err != nil {
			report.Failed[id] = err
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// ingestSubscription stores the new videos for one subscription, advances its
// cursor and places them, all in one transaction.
func (m *Manager) ingestSubscription(subID string, descriptors []Descriptor) ([]*storage.Video, int, error) {
	var videos []*storage.Video
	placed := 0

	err := m.store.Update(func(tx *storage.Tx) error {
		sub, err := tx.Subscription(subID)
		if err != nil {
			return err
		}
		firstSync := sub.MostRecentVideoDate == nil

		videos = m.materialize(tx, sub, descriptors)
		if len(videos) == 0 {
			return nil
		}

		for _, video := range videos {
			sub.VideoIDs = append(sub.VideoIDs, video.YoutubeID)
			if video.PublishedDate != nil &&
				(sub.MostRecentVideoDate == nil || video.PublishedDate.After(*sub.MostRecentVideoDate)) {
				sub.MostRecentVideoDate = storage.Time(*video.PublishedDate)
			}
			if err := tx.PutVideo(video); err != nil {
				return err
			}
		}

		toPlace := videos
		if limit := m.config.Feed.BackfillLimit; firstSync && limit > 0 && len(toPlace) > limit {
			toPlace = newest(videos, limit)
		}

		var inbox, queue []*storage.Video
		for _, video := range toPlace {
			switch m.placementFor(sub, video) {
			case storage.PlacementQueue:
				queue = append(queue, video)
			default:
				inbox = append(inbox, video)
			}
		}
		if err := tx.AddToInbox(inbox); err != nil {
			return fmt.Errorf("adding to inbox: %w", err)
		}
		if len(queue) > 0 {
			if err := tx.InsertQueueEntries(0, queue); err != nil {
				return fmt.Errorf("queueing: %w", err)
			}
		}
		placed = len(inbox) + len(queue)

		return tx.PutSubscription(sub)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("storing subscription %s: %w", subID, err)
	}
	return videos, placed, nil
}

// materialize turns descriptors into videos, dropping any already stored or
// repeated in the batch. Descriptor order is kept.
func (m *Manager) materialize(tx *storage.Tx, sub *storage.Subscription, descriptors []Descriptor) []*storage.Video {
	seen := make(map[string]bool, len(descriptors))
	now := m.now()
	var videos []*storage.Video

	for _, d := range descriptors {
		if d.YoutubeID == "" || seen[d.YoutubeID] || tx.HasVideo(d.YoutubeID) {
			continue
		}
		seen[d.YoutubeID] = true

		channelID := d.ChannelID
		if channelID == "" {
			channelID = sub.YoutubeChannelID
		}
		author := chapters.ParseDescription(d.Description, nil)
		videos = append(videos, &storage.Video{
			YoutubeID:        d.YoutubeID,
			Title:            d.Title,
			URL:              d.URL,
			ThumbnailURL:     d.ThumbnailURL,
			YoutubeChannelID: channelID,
			FeedTitle:        sub.Title,
			SubscriptionID:   sub.ID,
			PublishedDate:    d.PublishedDate,
			Description:      d.Description,
			IsShort:          d.IsShort,
			AuthorChapters:   author,
			Chapters:         chapters.Normalize(author, nil),
			CreatedAt:        now,
		})
	}

	return videos
}

// newest returns the limit most recently published videos in their original
// order. Undated videos count as oldest.
func newest(videos []*storage.Video, limit int) []*storage.Video {
	byDate := append([]*storage.Video(nil), videos...)
	sort.SliceStable(byDate, func(i, j int) bool {
		return publishedBefore(byDate[j], byDate[i])
	})
	keep := make(map[string]bool, limit)
	for _, v := range byDate[:limit] {
		keep[v.YoutubeID] = true
	}

	out := make([]*storage.Video, 0, limit)
	for _, v := range videos {
		if keep[v.YoutubeID] {
			out = append(out, v)
		}
	}
	return out
}

func publishedBefore(a, b *storage.Video) bool {
	switch {
	case a.PublishedDate == nil:
		return b.PublishedDate != nil
	case b.PublishedDate == nil:
		return false
	default:
		return a.PublishedDate.Before(*b.PublishedDate)
	}
}

// placementFor resolves where a new video of sub goes.
func (m *Manager) placementFor(sub *storage.Subscription, video *storage.Video) storage.Placement {
	return m.resolvePlacement(sub.PlaceVideosIn, video)
}

func (m *Manager) resolvePlacement(p storage.Placement, video *storage.Video) storage.Placement {
	if p != storage.PlacementDefault && p != "" {
		return p
	}
	if video.IsShort && m.config.Placement.HandleShortsDifferently {
		return m.config.Placement.ShortsPlacement()
	}
	return m.config.Placement.VideoPlacement()
}

// afterStore notifies the index and, when enabled, refreshes sponsor chapters
// for freshly stored videos. Failures here are logged only.
func (m *Manager) afterStore(ctx context.Context, videos []*storage.Video) {
	if len(videos) == 0 {
		return
	}
	if m.index != nil {
		m.index.OnVideosUpdated(videos)
	}
	if m.chapters == nil || !m.config.SponsorBlock.OnIngest {
		return
	}
	for _, video := range videos {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.chapters.RefreshSponsorChapters(ctx, video.YoutubeID, false); err != nil {
			debuglog.WithFields(map[string]interface{}{"video": video.YoutubeID}).
				Warnf("sponsor chapters: %v", err)
		}
	}
}

func joinFailures(failed map[string]error) error {
	if len(failed) == 0 {
		return nil
	}
	ids := make([]string, 0, len(failed))
	for id := range failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, fmt.Errorf("subscription %s: %w", id, failed[id]))
	}
	return errors.Join(errs...)
}

// Subscribe validates rawURL, resolves it to a feed and stores a new
// subscription with no cursor. Subscribing twice to the same feed or channel
// returns the existing subscription.
func (m *Manager) Subscribe(ctx context.Context, rawURL string, placement storage.Placement) (*storage.Subscription, error) {
	sub, _, err := m.subscribe(ctx, rawURL, "", placement)
	return sub, err
}

func (m *Manager) subscribe(ctx context.Context, rawURL, title string, placement storage.Placement) (*storage.Subscription, bool, error) {
	normalized, err := m.urlValidator.ValidateAndNormalize(rawURL)
	if err != nil {
		return nil, false, fmt.Errorf("invalid subscription URL: %w", err)
	}

	info, err := m.registry.EnhanceFeed(ctx, normalized)
	if err != nil {
		return nil, false, fmt.Errorf("resolving %s: %w", normalized, err)
	}
	if info.Title != "" {
		title = info.Title
	}
	channelID := info.ChannelID

	if describer, ok := m.crawler.(Describer); ok && (title == "" || channelID == "") {
		parsed, err := describer.Describe(ctx, info.FeedURL)
		if err != nil {
			return nil, false, fmt.Errorf("reading feed: %w", err)
		}
		if title == "" {
			title = parsed.Title
		}
		if channelID == "" {
			channelID = parsed.ChannelID
		}
	}

	var sub *storage.Subscription
	created := false
	err = m.store.Update(func(tx *storage.Tx) error {
		existing, err := tx.SubscriptionByLink(info.FeedURL)
		if err != nil {
			return err
		}
		if existing == nil {
			if existing, err = tx.SubscriptionByChannelID(channelID); err != nil {
				return err
			}
		}
		if existing != nil {
			sub = existing
			return nil
		}

		sub = &storage.Subscription{
			ID:               uuid.NewString(),
			Link:             info.FeedURL,
			Title:            title,
			YoutubeChannelID: channelID,
			PlaceVideosIn:    placement,
			VideoIDs:         []string{},
			CreatedAt:        m.now(),
		}
		created = true
		return tx.PutSubscription(sub)
	})
	if err != nil {
		return nil, false, fmt.Errorf("saving subscription: %w", err)
	}
	if created {
		debuglog.WithFields(map[string]interface{}{"subscription": sub.ID}).
			Infof("subscribed to %s (%s)", sub.Title, sub.Link)
		if l, ok := m.index.(interface{ OnSubscriptionUpdated(*storage.Subscription) }); ok {
			l.OnSubscriptionUpdated(sub)
		}
	}
	return sub, created, nil
}

// ImportReport lists the outcome of a subscription import.
type ImportReport struct {
	Added    []*storage.Subscription
	Existing []*storage.Subscription
	Failed   map[string]error
}

// ImportSubscriptions subscribes to every entry of a TOML subscription list.
// Entries fail independently.
func (m *Manager) ImportSubscriptions(ctx context.Context, r io.Reader) (*ImportReport, error) {
	list, err := ReadSubscriptionList(r)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{Failed: make(map[string]error)}
	for _, entry := range list.Subscriptions {
		placement, _ := storage.ParsePlacement(entry.Placement)
		sub, created, err := m.subscribe(ctx, entry.URL, entry.Title, placement)
		switch {
		case err != nil:
			report.Failed[entry.URL] = err
		case created:
			report.Added = append(report.Added, sub)
		default:
			report.Existing = append(report.Existing, sub)
		}
	}
	return report, joinFailures(report.Failed)
}

// ExportSubscriptions writes every subscription in the import format.
func (m *Manager) ExportSubscriptions(w io.Writer) error {
	subs, err := m.store.GetAllSubscriptions()
	if err != nil {
		return fmt.Errorf("getting subscriptions: %w", err)
	}
	return WriteSubscriptionList(w, subs)
}

// Unsubscribe deletes a subscription. With keepVideos its videos stay in the
// store, detached from it; otherwise they are deleted from every collection.
func (m *Manager) Unsubscribe(id string, keepVideos bool) error {
	var deleted []string
	err := m.store.Update(func(tx *storage.Tx) error {
		sub, err := tx.Subscription(id)
		if err != nil {
			return err
		}
		for _, videoID := range append([]string(nil), sub.VideoIDs...) {
			video, err := tx.Video(videoID)
			if errors.Is(err, storage.ErrVideoNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if keepVideos {
				video.SubscriptionID = ""
				if err := tx.PutVideo(video); err != nil {
					return err
				}
				continue
			}
			if err := tx.DeleteVideo(videoID); err != nil {
				return err
			}
			deleted = append(deleted, videoID)
		}
		return tx.DeleteSubscription(id)
	})
	if err != nil {
		return fmt.Errorf("unsubscribing %s: %w", id, err)
	}
	if m.index != nil {
		for _, videoID := range deleted {
			m.index.OnVideoDeleted(videoID)
		}
	}
	return nil
}

// AddVideo adds a single video by URL or id and places it. index is the
// queue position for queue placement. A known channel links the video to the
// matching subscription.
func (m *Manager) AddVideo(ctx context.Context, raw string, placement storage.Placement, index int) (*storage.Video, error) {
	youtubeID, err := validation.ExtractVideoID(raw)
	if err != nil {
		return nil, err
	}

	var video *storage.Video
	if existing, err := m.store.GetVideo(youtubeID); err == nil {
		video = existing
	} else if !errors.Is(err, storage.ErrVideoNotFound) {
		return nil, err
	}

	fresh := video == nil
	if fresh {
		info, err := m.videoInfo.VideoInfo(ctx, youtubeID)
		if err != nil {
			return nil, fmt.Errorf("looking up video %s: %w", youtubeID, err)
		}
		video = &storage.Video{
			YoutubeID:        youtubeID,
			Title:            info.Title,
			URL:              info.URL,
			ThumbnailURL:     info.ThumbnailURL,
			YoutubeChannelID: info.ChannelID,
			FeedTitle:        info.ChannelTitle,
			Duration:         info.Duration,
			Description:      info.Description,
			IsShort:          info.IsShort || validation.IsShortsURL(raw),
			CreatedAt:        m.now(),
		}
		if author := chapters.ParseDescription(info.Description, info.Duration); len(author) > 0 {
			video.AuthorChapters = author
			video.Chapters = chapters.Normalize(author, info.Duration)
		}
	}

	err = m.store.Update(func(tx *storage.Tx) error {
		if fresh {
			sub, err := tx.SubscriptionByChannelID(video.YoutubeChannelID)
			if err != nil {
				return err
			}
			if sub != nil {
				video.SubscriptionID = sub.ID
				video.FeedTitle = sub.Title
				video.YoutubeChannelID = sub.YoutubeChannelID
				sub.VideoIDs = append(sub.VideoIDs, video.YoutubeID)
				if err := tx.PutSubscription(sub); err != nil {
					return err
				}
			}
		}
		if err := tx.PutVideo(video); err != nil {
			return err
		}
		if m.resolvePlacement(placement, video) == storage.PlacementQueue {
			return tx.InsertQueueEntries(index, []*storage.Video{video})
		}
		return tx.AddToInbox([]*storage.Video{video})
	})
	if err != nil {
		return nil, fmt.Errorf("adding video %s: %w", youtubeID, err)
	}

	if fresh {
		m.afterStore(ctx, []*storage.Video{video})
	}
	return video, nil
}

// Resolvers lists the URL resolvers used by Subscribe, highest priority first.
func (m *Manager) Resolvers() []plugins.Plugin {
	return m.registry.ListPlugins()
}

func (m *Manager) Subscriptions() ([]*storage.Subscription, error) {
	return m.store.GetAllSubscriptions()
}

func (m *Manager) Queue() ([]*storage.Video, error) {
	return m.store.QueueVideos()
}

func (m *Manager) Inbox() ([]*storage.Video, error) {
	return m.store.InboxVideos()
}

// RemoveFromQueue reports whether the video was queued.
func (m *Manager) RemoveFromQueue(youtubeID string) (bool, error) {
	var removed bool
	err := m.store.Update(func(tx *storage.Tx) error {
		var err error
		removed, err = tx.RemoveFromQueue(youtubeID)
		return err
	})
	return removed, err
}

func (m *Manager) MoveQueueEntry(from, to int) error {
	return m.store.Update(func(tx *storage.Tx) error {
		return tx.MoveQueueEntry(from, to)
	})
}

func (m *Manager) ClearFromEverywhere(youtubeID string) error {
	return m.store.Update(func(tx *storage.Tx) error {
		return tx.ClearFromEverywhere(youtubeID)
	})
}

// ClearInbox empties the inbox and returns how many entries were removed.
func (m *Manager) ClearInbox() (int, error) {
	var n int
	err := m.store.Update(func(tx *storage.Tx) error {
		var err error
		n, err = tx.ClearInbox()
		return err
	})
	return n, err
}

func (m *Manager) MarkWatched(youtubeID string) error {
	return m.store.Update(func(tx *storage.Tx) error {
		return tx.MarkWatched(youtubeID, m.now())
	})
}

func (m *Manager) DeleteVideo(youtubeID string) error {
	err := m.store.Update(func(tx *storage.Tx) error {
		return tx.DeleteVideo(youtubeID)
	})
	if err != nil {
		return err
	}
	if m.index != nil {
		m.index.OnVideoDeleted(youtubeID)
	}
	return nil
}
