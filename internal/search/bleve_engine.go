package search

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/gofrs/flock"

	"github.com/pders01/unwatched/internal/debuglog"
	"github.com/pders01/unwatched/internal/storage"
)

// ErrIndexBusy is returned when another process holds the index.
var ErrIndexBusy = errors.New("search index in use by another process")

// BleveEngine keeps a persistent full-text index of subscriptions and videos.
type BleveEngine struct {
	store *storage.Store
	idx   bleve.Index
	lock  *flock.Flock
}

// NewBleveEngine creates or opens a Bleve index at indexPath and indexes
// current data. The index is opened by one process at a time; a second
// caller gets ErrIndexBusy instead of blocking.
func NewBleveEngine(store *storage.Store, indexPath string) (*BleveEngine, error) {
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	lock := flock.New(indexPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking search index: %w", err)
	}
	if !locked {
		return nil, ErrIndexBusy
	}

	idx, err := bleve.Open(indexPath)
	if err != nil {
		idx, err = bleve.New(indexPath, buildIndexMapping())
	}
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("opening search index: %w", err)
	}

	be := &BleveEngine{store: store, idx: idx, lock: lock}
	if err := be.reindexAll(); err != nil {
		_ = be.Close()
		return nil, fmt.Errorf("indexing: %w", err)
	}
	return be, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	title.Store = true
	title.IncludeTermVectors = true

	feedTitle := bleve.NewTextFieldMapping()
	feedTitle.Analyzer = standard.Name
	feedTitle.Store = true

	desc := bleve.NewTextFieldMapping()
	desc.Analyzer = standard.Name
	desc.Store = false

	chapters := bleve.NewTextFieldMapping()
	chapters.Analyzer = standard.Name
	chapters.Store = false

	url := bleve.NewTextFieldMapping()
	url.Analyzer = standard.Name
	url.Store = true

	// Keyword fields are matched exactly.
	keyword := bleve.NewKeywordFieldMapping()
	keyword.Store = true

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("feed_title", feedTitle)
	dm.AddFieldMappingsAt("description", desc)
	dm.AddFieldMappingsAt("chapters", chapters)
	dm.AddFieldMappingsAt("url", url)
	dm.AddFieldMappingsAt("type", keyword)
	dm.AddFieldMappingsAt("subscription_id", keyword)

	im.DefaultMapping = dm
	return im
}

func subscriptionDoc(sub *storage.Subscription) map[string]any {
	return map[string]any{
		"type":            "subscription",
		"subscription_id": sub.ID,
		"title":           sub.Title,
		"url":             sub.Link,
	}
}

func videoDoc(video *storage.Video) map[string]any {
	titles := make([]string, 0, len(video.Chapters))
	for _, c := range video.Chapters {
		if c.Title != "" {
			titles = append(titles, c.Title)
		}
	}
	return map[string]any{
		"type":            "video",
		"subscription_id": video.SubscriptionID,
		"title":           video.Title,
		"feed_title":      video.FeedTitle,
		"description":     video.Description,
		"chapters":        strings.Join(titles, "\n"),
		"url":             video.URL,
	}
}

func (b *BleveEngine) reindexAll() error {
	subs, err := b.store.GetAllSubscriptions()
	if err != nil {
		return err
	}
	videos, err := b.store.GetAllVideos()
	if err != nil {
		return err
	}

	batch := b.idx.NewBatch()
	for _, sub := range subs {
		if err := batch.Index(docIDForSubscription(sub.ID), subscriptionDoc(sub)); err != nil {
			return err
		}
	}
	for _, video := range videos {
		if err := batch.Index(docIDForVideo(video.YoutubeID), videoDoc(video)); err != nil {
			return err
		}
	}
	return b.idx.Batch(batch)
}

func (b *BleveEngine) Search(query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []*Result{}, nil
	}
	// OR of per-term match and prefix queries across fields, with boosts
	fields := []struct {
		name  string
		boost float64
	}{
		{"title", 4.0},
		{"feed_title", 2.0},
		{"chapters", 1.5},
		{"description", 1.0},
		{"url", 0.5},
	}
	var qs []bleveQuery.Query
	for _, tok := range tokenize(query) {
		for _, f := range fields {
			mq := bleve.NewMatchQuery(tok)
			mq.SetField(f.name)
			mq.SetBoost(f.boost)
			qs = append(qs, mq)

			pq := bleve.NewPrefixQuery(tok)
			pq.SetField(f.name)
			pq.SetBoost(f.boost * 0.8)
			qs = append(qs, pq)
		}
	}
	if len(qs) == 0 {
		return []*Result{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	req.Fields = []string{"title", "feed_title", "url", "subscription_id"}
	res, err := b.idx.Search(req)
	if err != nil {
		return nil, err
	}

	out := make([]*Result, 0, len(res.Hits))
	for _, h := range res.Hits {
		r := &Result{Score: h.Score}
		subID, _ := h.Fields["subscription_id"].(string)
		if subID != "" {
			if sub, err := b.store.GetSubscription(subID); err == nil {
				r.Subscription = sub
			}
		}

		switch {
		case strings.HasPrefix(h.ID, "video:"):
			id := strings.TrimPrefix(h.ID, "video:")
			video, err := b.store.GetVideo(id)
			if err != nil {
				// Stale document; the video is gone from the store.
				continue
			}
			r.Video = video
			r.IsVideo = true
		case strings.HasPrefix(h.ID, "subscription:"):
			if r.Subscription == nil {
				continue
			}
		}
		for _, field := range []string{"title", "feed_title"} {
			if text, ok := h.Fields[field].(string); ok && text != "" {
				r.Matches = append(r.Matches, Match{Field: field, Text: text})
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (b *BleveEngine) SearchInVideo(video *storage.Video, query string) ([]*Result, error) {
	return NewEngine(b.store).SearchInVideo(video, query)
}

// OnVideosUpdated indexes the provided videos.
func (b *BleveEngine) OnVideosUpdated(videos []*storage.Video) {
	batch := b.idx.NewBatch()
	for _, v := range videos {
		_ = batch.Index(docIDForVideo(v.YoutubeID), videoDoc(v))
	}
	if err := b.idx.Batch(batch); err != nil {
		debuglog.Warnf("search: indexing %d videos: %v", len(videos), err)
	}
}

// OnSubscriptionUpdated indexes a subscription.
func (b *BleveEngine) OnSubscriptionUpdated(sub *storage.Subscription) {
	if err := b.idx.Index(docIDForSubscription(sub.ID), subscriptionDoc(sub)); err != nil {
		debuglog.Warnf("search: indexing subscription %s: %v", sub.ID, err)
	}
}

// OnVideoDeleted removes the video's document.
func (b *BleveEngine) OnVideoDeleted(youtubeID string) {
	if err := b.idx.Delete(docIDForVideo(youtubeID)); err != nil {
		debuglog.Warnf("search: deleting %s: %v", youtubeID, err)
	}
}

// DocCount reports total documents in the index.
func (b *BleveEngine) DocCount() (int, error) {
	n, err := b.idx.DocCount()
	return int(n), err
}

func (b *BleveEngine) Close() error {
	err := b.idx.Close()
	if unlockErr := b.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}

func docIDForSubscription(id string) string { return "subscription:" + id }
func docIDForVideo(youtubeID string) string { return "video:" + youtubeID }
