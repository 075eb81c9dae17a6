package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/unwatched/internal/chapters"
	"github.com/pders01/unwatched/internal/config"
	"github.com/pders01/unwatched/internal/storage"
	"github.com/pders01/unwatched/internal/validation"
)

// fakeCrawler returns the configured descriptors verbatim and records the
// cursor it was called with.
type fakeCrawler struct {
	mu    sync.Mutex
	feeds map[string][]Descriptor
	errs  map[string]error
	since map[string]*time.Time
}

func newFakeCrawler() *fakeCrawler {
	return &fakeCrawler{
		feeds: make(map[string][]Descriptor),
		errs:  make(map[string]error),
		since: make(map[string]*time.Time),
	}
}

func (c *fakeCrawler) Fetch(_ context.Context, feedURL string, since *time.Time) ([]Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.since[feedURL] = since
	if err := c.errs[feedURL]; err != nil {
		return nil, err
	}
	return append([]Descriptor(nil), c.feeds[feedURL]...), nil
}

type fakeVideoInfo struct {
	infos map[string]*VideoInfo
}

func (f *fakeVideoInfo) VideoInfo(_ context.Context, youtubeID string) (*VideoInfo, error) {
	if info, ok := f.infos[youtubeID]; ok {
		return info, nil
	}
	return nil, fmt.Errorf("%w: no such video", ErrFetchFailed)
}

type recordingIndex struct {
	updated []string
	deleted []string
}

func (r *recordingIndex) OnVideosUpdated(videos []*storage.Video) {
	for _, v := range videos {
		r.updated = append(r.updated, v.YoutubeID)
	}
}

func (r *recordingIndex) OnVideoDeleted(youtubeID string) {
	r.deleted = append(r.deleted, youtubeID)
}

type countingRefresher struct {
	ids []string
}

func (c *countingRefresher) RefreshSponsorChapters(_ context.Context, youtubeID string, _ bool) (*chapters.Result, error) {
	c.ids = append(c.ids, youtubeID)
	return &chapters.Result{Refreshed: true}, nil
}

func setupManager(t *testing.T, crawler Crawler, configure func(*config.Config), opts ...Option) (*Manager, *storage.Store) {
	t.Helper()
	cfg := config.TestConfig(t.TempDir())
	if configure != nil {
		configure(cfg)
	}
	store, err := storage.NewStore(cfg.Database.Path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	opts = append([]Option{WithCrawler(crawler), WithVideoInfoFetcher(&fakeVideoInfo{})}, opts...)
	return NewManager(store, cfg, opts...), store
}

func addSubscription(t *testing.T, store *storage.Store, id string, placement storage.Placement) *storage.Subscription {
	t.Helper()
	sub := &storage.Subscription{
		ID:            id,
		Link:          "https://www.youtube.com/feeds/videos.xml?channel_id=" + id,
		Title:         "Channel " + id,
		PlaceVideosIn: placement,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, store.SaveSubscription(sub))
	return sub
}

// descriptors builds n items published an hour apart starting at base,
// returned newest first as feeds list them.
func descriptors(prefix string, n int, base time.Time) []Descriptor {
	out := make([]Descriptor, 0, n)
	for i := n - 1; i >= 0; i-- {
		published := base.Add(time.Duration(i) * time.Hour)
		id := fmt.Sprintf("%s%08d", prefix, i)
		out = append(out, Descriptor{
			YoutubeID:     id,
			Title:         "video " + id,
			URL:           "https://www.youtube.com/watch?v=" + id,
			PublishedDate: &published,
		})
	}
	return out
}

func ids(videos []*storage.Video) []string {
	out := make([]string, 0, len(videos))
	for _, v := range videos {
		out = append(out, v.YoutubeID)
	}
	return out
}

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestIngest_FirstSyncBackfill(t *testing.T) {
	crawler := newFakeCrawler()
	m, store := setupManager(t, crawler, nil)
	sub := addSubscription(t, store, "sub1", storage.PlacementDefault)
	crawler.feeds[sub.Link] = descriptors("abc", 12, base)

	report, err := m.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Subscriptions)
	assert.Equal(t, 12, report.NewVideos)
	assert.Equal(t, 5, report.Placed)
	assert.Nil(t, crawler.since[sub.Link], "never-synced subscription crawls without cursor")

	inbox, err := store.InboxVideos()
	require.NoError(t, err)
	assert.Equal(t, []string{"abc00000011", "abc00000010", "abc00000009", "abc00000008", "abc00000007"}, ids(inbox))
	for _, v := range inbox {
		assert.Equal(t, storage.StatusInbox, v.Status)
		assert.Equal(t, "Channel sub1", v.FeedTitle)
		assert.Equal(t, "sub1", v.SubscriptionID)
	}

	stored, err := store.GetSubscription("sub1")
	require.NoError(t, err)
	require.NotNil(t, stored.MostRecentVideoDate)
	assert.True(t, base.Add(11*time.Hour).Equal(*stored.MostRecentVideoDate))
	require.Len(t, stored.VideoIDs, 12)
	assert.Equal(t, "abc00000011", stored.VideoIDs[0], "videos are stored in feed order")

	unplaced, err := store.GetVideo("abc00000000")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusNone, unplaced.Status)
}

func TestIngest_LaterSyncHasNoCap(t *testing.T) {
	crawler := newFakeCrawler()
	m, store := setupManager(t, crawler, nil)
	sub := addSubscription(t, store, "sub1", storage.PlacementInbox)
	cursor := base
	sub.MostRecentVideoDate = &cursor
	require.NoError(t, store.SaveSubscription(sub))

	crawler.feeds[sub.Link] = descriptors("new", 7, base.Add(time.Hour))

	report, err := m.Ingest(context.Background(), []string{"sub1"})
	require.NoError(t, err)
	assert.Equal(t, 7, report.Placed)
	require.NotNil(t, crawler.since[sub.Link])
	assert.True(t, base.Equal(*crawler.since[sub.Link]))

	inbox, err := store.InboxVideos()
	require.NoError(t, err)
	assert.Len(t, inbox, 7)
}

func TestIngest_PlacementKeepsFeedOrder(t *testing.T) {
	crawler := newFakeCrawler()
	m, store := setupManager(t, crawler, func(cfg *config.Config) {
		cfg.Feed.BackfillLimit = 2
	})
	sub := addSubscription(t, store, "sub1", storage.PlacementInbox)

	at := func(h int) *time.Time {
		ts := base.Add(time.Duration(h) * time.Hour)
		return &ts
	}
	crawler.feeds[sub.Link] = []Descriptor{
		{YoutubeID: "ord00000001", PublishedDate: at(1)},
		{YoutubeID: "ord00000000", PublishedDate: at(0)},
		{YoutubeID: "ord00000002", PublishedDate: at(2)},
	}

	report, err := m.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, report.NewVideos)
	assert.Equal(t, 2, report.Placed)

	inbox, err := store.InboxVideos()
	require.NoError(t, err)
	assert.Equal(t, []string{"ord00000001", "ord00000002"}, ids(inbox), "the two newest, in feed order")

	stored, err := store.GetSubscription("sub1")
	require.NoError(t, err)
	assert.True(t, at(2).Equal(*stored.MostRecentVideoDate))

	// A later sync has no cap and keeps the newest-first listing.
	crawler.feeds[sub.Link] = []Descriptor{
		{YoutubeID: "ord00000005", PublishedDate: at(5)},
		{YoutubeID: "ord00000004", PublishedDate: at(4)},
		{YoutubeID: "ord00000003", PublishedDate: at(3)},
	}
	_, err = m.Ingest(context.Background(), nil)
	require.NoError(t, err)

	inbox, err = store.InboxVideos()
	require.NoError(t, err)
	assert.Equal(t, []string{"ord00000001", "ord00000002", "ord00000005", "ord00000004", "ord00000003"}, ids(inbox))
}

func TestIngest_Deduplicates(t *testing.T) {
	crawler := newFakeCrawler()
	m, store := setupManager(t, crawler, nil)
	sub := addSubscription(t, store, "sub1", storage.PlacementInbox)

	require.NoError(t, store.SaveVideo(&storage.Video{YoutubeID: "dup00000001", Title: "already here"}))

	batch := descriptors("dup", 3, base)
	batch = append(batch, batch[0])
	crawler.feeds[sub.Link] = batch

	report, err := m.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.NewVideos)

	existing, err := store.GetVideo("dup00000001")
	require.NoError(t, err)
	assert.Equal(t, "already here", existing.Title)

	inbox, err := store.InboxVideos()
	require.NoError(t, err)
	assert.Equal(t, []string{"dup00000002", "dup00000000"}, ids(inbox))

	// A second run over the same feed adds nothing.
	report, err = m.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.NewVideos)
}

func TestIngest_FailureIsolation(t *testing.T) {
	crawler := newFakeCrawler()
	m, store := setupManager(t, crawler, nil)
	broken := addSubscription(t, store, "broken", storage.PlacementInbox)
	healthy := addSubscription(t, store, "healthy", storage.PlacementInbox)

	errBoom := errors.New("boom")
	crawler.errs[broken.Link] = errBoom
	crawler.feeds[healthy.Link] = descriptors("okk", 2, base)

	report, err := m.Ingest(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, report.Failed, "broken")
	assert.NotContains(t, report.Failed, "healthy")
	assert.Equal(t, 2, report.NewVideos)

	stored, err := store.GetSubscription("broken")
	require.NoError(t, err)
	assert.Nil(t, stored.MostRecentVideoDate)
}

func TestIngest_UnknownSubscription(t *testing.T) {
	m, _ := setupManager(t, newFakeCrawler(), nil)

	report, err := m.Ingest(context.Background(), []string{"missing"})
	assert.ErrorIs(t, err, storage.ErrSubscriptionNotFound)
	assert.Contains(t, report.Failed, "missing")
}

func TestIngest_CursorNeverRegresses(t *testing.T) {
	crawler := newFakeCrawler()
	m, store := setupManager(t, crawler, nil)
	sub := addSubscription(t, store, "sub1", storage.PlacementInbox)
	cursor := base.Add(48 * time.Hour)
	sub.MostRecentVideoDate = &cursor
	require.NoError(t, store.SaveSubscription(sub))

	crawler.feeds[sub.Link] = descriptors("old", 2, base)

	_, err := m.Ingest(context.Background(), nil)
	require.NoError(t, err)

	stored, err := store.GetSubscription("sub1")
	require.NoError(t, err)
	assert.True(t, cursor.Equal(*stored.MostRecentVideoDate))
}

func TestIngest_QueuePlacement(t *testing.T) {
	crawler := newFakeCrawler()
	m, store := setupManager(t, crawler, nil)
	sub := addSubscription(t, store, "sub1", storage.PlacementQueue)

	existing := &storage.Video{YoutubeID: "queued00001"}
	require.NoError(t, store.Update(func(tx *storage.Tx) error {
		return tx.InsertQueueEntries(0, []*storage.Video{existing})
	}))

	crawler.feeds[sub.Link] = descriptors("que", 3, base)

	_, err := m.Ingest(context.Background(), nil)
	require.NoError(t, err)

	queue, err := store.QueueVideos()
	require.NoError(t, err)
	assert.Equal(t, []string{"que00000002", "que00000001", "que00000000", "queued00001"}, ids(queue))

	require.NoError(t, store.View(func(tx *storage.Tx) error {
		entries, err := tx.QueueEntries()
		require.NoError(t, err)
		for i, e := range entries {
			assert.Equal(t, i, e.Order)
		}
		return nil
	}))
}

func TestIngest_ShortsPlacement(t *testing.T) {
	crawler := newFakeCrawler()
	m, store := setupManager(t, crawler, func(cfg *config.Config) {
		cfg.Placement.HandleShortsDifferently = true
		cfg.Placement.DefaultShorts = "queue"
	})
	sub := addSubscription(t, store, "sub1", storage.PlacementDefault)

	batch := descriptors("vid", 2, base)
	batch[0].IsShort = true
	crawler.feeds[sub.Link] = batch

	_, err := m.Ingest(context.Background(), nil)
	require.NoError(t, err)

	queue, err := store.QueueVideos()
	require.NoError(t, err)
	assert.Equal(t, []string{batch[0].YoutubeID}, ids(queue))

	inbox, err := store.InboxVideos()
	require.NoError(t, err)
	assert.Equal(t, []string{batch[1].YoutubeID}, ids(inbox))
}

func TestIngest_NotifiesIndexAndChapters(t *testing.T) {
	crawler := newFakeCrawler()
	index := &recordingIndex{}
	refresher := &countingRefresher{}
	m, store := setupManager(t, crawler, func(cfg *config.Config) {
		cfg.SponsorBlock.OnIngest = true
	}, WithIndex(index), WithChapterRefresher(refresher))
	sub := addSubscription(t, store, "sub1", storage.PlacementInbox)

	batch := descriptors("idx", 2, base)
	batch[0].Description = "0:00 Intro\n2:30 Topic\n10:00 Outro"
	crawler.feeds[sub.Link] = batch

	_, err := m.Ingest(context.Background(), nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"idx00000000", "idx00000001"}, index.updated)
	assert.ElementsMatch(t, []string{"idx00000000", "idx00000001"}, refresher.ids)

	video, err := store.GetVideo(batch[0].YoutubeID)
	require.NoError(t, err)
	require.Len(t, video.AuthorChapters, 3)
	assert.Equal(t, 150.0, video.AuthorChapters[1].StartTime)
	require.Len(t, video.Chapters, 3)
	end, ok := video.Chapters[0].End()
	require.True(t, ok)
	assert.Equal(t, 150.0, end)
}

func TestIngest_ChaptersOffByDefault(t *testing.T) {
	crawler := newFakeCrawler()
	refresher := &countingRefresher{}
	m, store := setupManager(t, crawler, nil, WithChapterRefresher(refresher))
	sub := addSubscription(t, store, "sub1", storage.PlacementInbox)
	crawler.feeds[sub.Link] = descriptors("off", 1, base)

	_, err := m.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, refresher.ids)
}

func TestAddVideo_LinksSubscription(t *testing.T) {
	info := &fakeVideoInfo{infos: map[string]*VideoInfo{
		"dQw4w9WgXcQ": {
			YoutubeID: "dQw4w9WgXcQ",
			Title:     "Never Gonna",
			URL:       "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			ChannelID: testChannelID,
		},
	}}
	m, store := setupManager(t, newFakeCrawler(), nil, WithVideoInfoFetcher(info))

	sub := addSubscription(t, store, "sub1", storage.PlacementInbox)
	sub.YoutubeChannelID = strings.TrimPrefix(testChannelID, "UC")
	require.NoError(t, store.SaveSubscription(sub))

	require.NoError(t, store.Update(func(tx *storage.Tx) error {
		return tx.InsertQueueEntries(0, []*storage.Video{{YoutubeID: "first000001"}, {YoutubeID: "second00001"}})
	}))

	video, err := m.AddVideo(context.Background(), "https://youtu.be/dQw4w9WgXcQ", storage.PlacementQueue, 1)
	require.NoError(t, err)
	assert.Equal(t, "sub1", video.SubscriptionID)
	assert.Equal(t, "Channel sub1", video.FeedTitle)
	assert.Equal(t, sub.YoutubeChannelID, video.YoutubeChannelID)

	queue, err := m.Queue()
	require.NoError(t, err)
	assert.Equal(t, []string{"first000001", "dQw4w9WgXcQ", "second00001"}, ids(queue))

	stored, err := store.GetSubscription("sub1")
	require.NoError(t, err)
	assert.Contains(t, stored.VideoIDs, "dQw4w9WgXcQ")
}

func TestAddVideo_MovesExistingVideo(t *testing.T) {
	m, store := setupManager(t, newFakeCrawler(), nil)
	require.NoError(t, store.Update(func(tx *storage.Tx) error {
		return tx.AddToInbox([]*storage.Video{{YoutubeID: "dQw4w9WgXcQ", Title: "stored"}})
	}))

	video, err := m.AddVideo(context.Background(), "dQw4w9WgXcQ", storage.PlacementQueue, 0)
	require.NoError(t, err)
	assert.Equal(t, "stored", video.Title)
	assert.Equal(t, storage.StatusQueued, video.Status)

	inbox, err := m.Inbox()
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

func TestAddVideo_Errors(t *testing.T) {
	m, _ := setupManager(t, newFakeCrawler(), nil)

	_, err := m.AddVideo(context.Background(), "https://example.com/nothing", storage.PlacementInbox, 0)
	assert.ErrorIs(t, err, validation.ErrNoVideoID)

	_, err = m.AddVideo(context.Background(), "dQw4w9WgXcQ", storage.PlacementInbox, 0)
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func feedServer(t *testing.T, feeds map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := feeds[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSubscribeAndIngestFromFeed(t *testing.T) {
	server := feedServer(t, map[string]string{
		"/feeds/one.xml": atomFeed("Channel One", testChannelID,
			testEntry{id: "aaaaaaaaaaa", title: "a", published: base},
			testEntry{id: "bbbbbbbbbbb", title: "b", published: base.Add(time.Hour)},
		),
	})

	cfg := config.TestConfig(t.TempDir())
	store, err := storage.NewStore(cfg.Database.Path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	m := NewManager(store, cfg, WithVideoInfoFetcher(&fakeVideoInfo{}))

	_, err = m.Subscribe(context.Background(), server.URL+"/feeds/one.xml", storage.PlacementDefault)
	assert.ErrorIs(t, err, validation.ErrHostNotAllowed)

	m.SetPermissiveValidation(true)
	sub, err := m.Subscribe(context.Background(), server.URL+"/feeds/one.xml", storage.PlacementQueue)
	require.NoError(t, err)
	assert.Equal(t, "Channel One", sub.Title)
	assert.Equal(t, testChannelID, sub.YoutubeChannelID)
	assert.Nil(t, sub.MostRecentVideoDate)

	again, err := m.Subscribe(context.Background(), server.URL+"/feeds/one.xml#frag", storage.PlacementInbox)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)

	report, err := m.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.NewVideos)

	queue, err := m.Queue()
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaaaaaaaaa", "bbbbbbbbbbb"}, ids(queue))
}

func TestImportAndExportSubscriptions(t *testing.T) {
	server := feedServer(t, map[string]string{
		"/one.xml": atomFeed("One", "UCaaaaaaaaaaaaaaaaaaaaaa"),
		"/two.xml": atomFeed("Two", "UCbbbbbbbbbbbbbbbbbbbbbb"),
	})
	m, _ := setupManager(t, NewYouTubeCrawler(config.TestConfig(t.TempDir())), nil)
	m.SetPermissiveValidation(true)

	list := fmt.Sprintf(`
[[subscription]]
url = "%[1]s/one.xml"
placement = "queue"

[[subscription]]
url = "%[1]s/two.xml"

[[subscription]]
url = "%[1]s/one.xml"

[[subscription]]
url = "%[1]s/missing.xml"
`, server.URL)

	report, err := m.ImportSubscriptions(context.Background(), strings.NewReader(list))
	require.Error(t, err)
	assert.Len(t, report.Added, 2)
	assert.Len(t, report.Existing, 1)
	assert.Contains(t, report.Failed, server.URL+"/missing.xml")
	assert.Equal(t, storage.PlacementQueue, report.Added[0].PlaceVideosIn)

	var out strings.Builder
	require.NoError(t, m.ExportSubscriptions(&out))
	assert.Contains(t, out.String(), server.URL+"/one.xml")
	assert.Contains(t, out.String(), "[[subscription]]")
	assert.Contains(t, out.String(), "queue")
}

func TestUnsubscribe(t *testing.T) {
	for _, keep := range []bool{false, true} {
		t.Run(fmt.Sprintf("keepVideos=%v", keep), func(t *testing.T) {
			crawler := newFakeCrawler()
			index := &recordingIndex{}
			m, store := setupManager(t, crawler, nil, WithIndex(index))
			sub := addSubscription(t, store, "sub1", storage.PlacementInbox)
			crawler.feeds[sub.Link] = descriptors("uns", 2, base)

			_, err := m.Ingest(context.Background(), nil)
			require.NoError(t, err)

			require.NoError(t, m.Unsubscribe("sub1", keep))

			_, err = store.GetSubscription("sub1")
			assert.ErrorIs(t, err, storage.ErrSubscriptionNotFound)

			video, err := store.GetVideo("uns00000000")
			if keep {
				require.NoError(t, err)
				assert.Empty(t, video.SubscriptionID)
				assert.Empty(t, index.deleted)
				return
			}
			assert.ErrorIs(t, err, storage.ErrVideoNotFound)
			inbox, err := store.InboxVideos()
			require.NoError(t, err)
			assert.Empty(t, inbox)
			assert.ElementsMatch(t, []string{"uns00000000", "uns00000001"}, index.deleted)
		})
	}

	m, _ := setupManager(t, newFakeCrawler(), nil)
	assert.ErrorIs(t, m.Unsubscribe("missing", false), storage.ErrSubscriptionNotFound)
}

func TestManagerCollections(t *testing.T) {
	crawler := newFakeCrawler()
	m, store := setupManager(t, crawler, nil)
	sub := addSubscription(t, store, "sub1", storage.PlacementInbox)
	crawler.feeds[sub.Link] = descriptors("col", 3, base)
	_, err := m.Ingest(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, m.MarkWatched("col00000000"))
	watched, err := store.GetVideo("col00000000")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusWatched, watched.Status)
	assert.NotNil(t, watched.WatchedDate)

	_, err = m.AddVideo(context.Background(), "col00000001", storage.PlacementQueue, 0)
	require.NoError(t, err)
	_, err = m.AddVideo(context.Background(), "col00000002", storage.PlacementQueue, 5)
	require.NoError(t, err)

	require.NoError(t, m.MoveQueueEntry(1, 0))
	queue, err := m.Queue()
	require.NoError(t, err)
	assert.Equal(t, []string{"col00000002", "col00000001"}, ids(queue))

	removed, err := m.RemoveFromQueue("col00000002")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = m.RemoveFromQueue("col00000002")
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, m.ClearFromEverywhere("col00000001"))
	require.NoError(t, m.ClearFromEverywhere("col00000001"))

	_, err = m.AddVideo(context.Background(), "col00000001", storage.PlacementInbox, 0)
	require.NoError(t, err)
	n, err := m.ClearInbox()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, m.DeleteVideo("col00000001"))
	_, err = store.GetVideo("col00000001")
	assert.ErrorIs(t, err, storage.ErrVideoNotFound)
}
