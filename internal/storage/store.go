package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	subscriptionsBucket = []byte("subscriptions")
	videosBucket        = []byte("videos")
	queueBucket         = []byte("queue")
	inboxBucket         = []byte("inbox")
	settingsBucket      = []byte("settings")

	refreshStateKey = []byte("refresh_state")
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrVideoNotFound        = errors.New("video not found")
	ErrQueueEntryNotFound   = errors.New("queue entry not found")
)

type Store struct {
	db *bolt.DB
}

func NewStore(dbPath string) (*Store, error) {
	return NewStoreWithTimeout(dbPath, 1*time.Second)
}

// NewStoreWithTimeout opens the database, waiting at most timeout for the file lock.
func NewStoreWithTimeout(dbPath string, timeout time.Duration) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{subscriptionsBucket, videosBucket, queueBucket, inboxBucket, settingsBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn in a read-write transaction. Returning an error from fn rolls
// back every mutation fn made.
func (s *Store) Update(fn func(tx *Tx) error) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}

// View runs fn in a read-only transaction.
func (s *Store) View(fn func(tx *Tx) error) error {
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}

// Backup writes a consistent snapshot of the database to w.
func (s *Store) Backup(w io.Writer) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		n, err = tx.WriteTo(w)
		return err
	})
	return n, err
}

// BackupToFile writes a snapshot into dir and returns the file path.
func (s *Store) BackupToFile(dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("unwatched-%s.db", now.Format("20060102-150405")))
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(path, 0o600)
	})
	if err != nil {
		return "", fmt.Errorf("writing backup: %w", err)
	}
	return path, nil
}

func (s *Store) GetSubscription(id string) (*Subscription, error) {
	var sub *Subscription
	err := s.View(func(tx *Tx) error {
		var err error
		sub, err = tx.Subscription(id)
		return err
	})
	return sub, err
}

func (s *Store) GetAllSubscriptions() ([]*Subscription, error) {
	var subs []*Subscription
	err := s.View(func(tx *Tx) error {
		var err error
		subs, err = tx.Subscriptions()
		return err
	})
	return subs, err
}

func (s *Store) SaveSubscription(sub *Subscription) error {
	return s.Update(func(tx *Tx) error {
		return tx.PutSubscription(sub)
	})
}

func (s *Store) GetVideo(youtubeID string) (*Video, error) {
	var video *Video
	err := s.View(func(tx *Tx) error {
		var err error
		video, err = tx.Video(youtubeID)
		return err
	})
	return video, err
}

func (s *Store) SaveVideo(video *Video) error {
	return s.Update(func(tx *Tx) error {
		return tx.PutVideo(video)
	})
}

func (s *Store) GetAllVideos() ([]*Video, error) {
	var videos []*Video
	err := s.View(func(tx *Tx) error {
		var err error
		videos, err = tx.Videos()
		return err
	})
	return videos, err
}

// QueueVideos returns queued videos in queue order.
func (s *Store) QueueVideos() ([]*Video, error) {
	var videos []*Video
	err := s.View(func(tx *Tx) error {
		entries, err := tx.QueueEntries()
		if err != nil {
			return err
		}
		videos, err = tx.videosFor(entryIDs(entries))
		return err
	})
	return videos, err
}

// InboxVideos returns inboxed videos in insertion order.
func (s *Store) InboxVideos() ([]*Video, error) {
	var videos []*Video
	err := s.View(func(tx *Tx) error {
		entries, err := tx.InboxEntries()
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.YoutubeID)
		}
		videos, err = tx.videosFor(ids)
		return err
	})
	return videos, err
}

func (s *Store) GetRefreshState() (RefreshState, error) {
	var state RefreshState
	err := s.View(func(tx *Tx) error {
		var err error
		state, err = tx.RefreshState()
		return err
	})
	return state, err
}

func (s *Store) SaveRefreshState(state RefreshState) error {
	return s.Update(func(tx *Tx) error {
		return tx.PutRefreshState(state)
	})
}

// Tx exposes typed entity operations inside one bolt transaction.
type Tx struct {
	tx *bolt.Tx
}

func (t *Tx) Subscription(id string) (*Subscription, error) {
	data := t.tx.Bucket(subscriptionsBucket).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	var sub Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (t *Tx) Subscriptions() ([]*Subscription, error) {
	var subs []*Subscription
	err := t.tx.Bucket(subscriptionsBucket).ForEach(func(_ []byte, v []byte) error {
		var sub Subscription
		if err := json.Unmarshal(v, &sub); err != nil {
			return err
		}
		subs = append(subs, &sub)
		return nil
	})
	// Sort by Title (case-insensitive), fallback to Link
	sort.Slice(subs, func(i, j int) bool {
		ti, tj := subs[i].Title, subs[j].Title
		if ti == "" {
			ti = subs[i].Link
		}
		if tj == "" {
			tj = subs[j].Link
		}
		return strings.ToLower(ti) < strings.ToLower(tj)
	})
	return subs, err
}

func (t *Tx) PutSubscription(sub *Subscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return t.tx.Bucket(subscriptionsBucket).Put([]byte(sub.ID), data)
}

func (t *Tx) DeleteSubscription(id string) error {
	b := t.tx.Bucket(subscriptionsBucket)
	if b.Get([]byte(id)) == nil {
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	return b.Delete([]byte(id))
}

// SubscriptionByChannelID finds the subscription for a channel id, also
// trying the id without its two-character prefix. A nil result with a nil
// error means no subscription matches.
func (t *Tx) SubscriptionByChannelID(channelID string) (*Subscription, error) {
	if channelID == "" {
		return nil, nil
	}
	candidates := []string{channelID}
	if len(channelID) > 2 {
		candidates = append(candidates, channelID[2:])
	}
	subs, err := t.Subscriptions()
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		for _, c := range candidates {
			if sub.YoutubeChannelID != "" && sub.YoutubeChannelID == c {
				return sub, nil
			}
		}
	}
	return nil, nil
}

// SubscriptionByLink returns the subscription with the given feed link, or nil.
func (t *Tx) SubscriptionByLink(link string) (*Subscription, error) {
	subs, err := t.Subscriptions()
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		if sub.Link == link {
			return sub, nil
		}
	}
	return nil, nil
}

func (t *Tx) Video(youtubeID string) (*Video, error) {
	data := t.tx.Bucket(videosBucket).Get([]byte(youtubeID))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, youtubeID)
	}
	var video Video
	if err := json.Unmarshal(data, &video); err != nil {
		return nil, err
	}
	return &video, nil
}

// Videos returns every stored video, newest published first.
func (t *Tx) Videos() ([]*Video, error) {
	var videos []*Video
	err := t.tx.Bucket(videosBucket).ForEach(func(_ []byte, v []byte) error {
		var video Video
		if err := json.Unmarshal(v, &video); err != nil {
			return err
		}
		videos = append(videos, &video)
		return nil
	})
	sort.SliceStable(videos, func(i, j int) bool {
		a, b := videos[i].PublishedDate, videos[j].PublishedDate
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})
	return videos, err
}

func (t *Tx) HasVideo(youtubeID string) bool {
	return t.tx.Bucket(videosBucket).Get([]byte(youtubeID)) != nil
}

func (t *Tx) PutVideo(video *Video) error {
	data, err := json.Marshal(video)
	if err != nil {
		return err
	}
	return t.tx.Bucket(videosBucket).Put([]byte(video.YoutubeID), data)
}

// DeleteVideo removes a video from every collection, from its subscription
// and finally from the store.
func (t *Tx) DeleteVideo(youtubeID string) error {
	video, err := t.Video(youtubeID)
	if err != nil {
		return err
	}
	if err := t.ClearFromEverywhere(youtubeID); err != nil {
		return err
	}
	if video.SubscriptionID != "" {
		sub, err := t.Subscription(video.SubscriptionID)
		if err == nil {
			sub.VideoIDs = removeString(sub.VideoIDs, youtubeID)
			if err := t.PutSubscription(sub); err != nil {
				return err
			}
		} else if !errors.Is(err, ErrSubscriptionNotFound) {
			return err
		}
	}
	return t.tx.Bucket(videosBucket).Delete([]byte(youtubeID))
}

func (t *Tx) videosFor(ids []string) ([]*Video, error) {
	videos := make([]*Video, 0, len(ids))
	for _, id := range ids {
		video, err := t.Video(id)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}
	return videos, nil
}

// QueueEntries returns all queue entries sorted by order.
func (t *Tx) QueueEntries() ([]*QueueEntry, error) {
	var entries []*QueueEntry
	err := t.tx.Bucket(queueBucket).ForEach(func(_ []byte, v []byte) error {
		var entry QueueEntry
		if err := json.Unmarshal(v, &entry); err != nil {
			return err
		}
		entries = append(entries, &entry)
		return nil
	})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Order < entries[j].Order
	})
	return entries, err
}

func (t *Tx) putQueueEntry(entry *QueueEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return t.tx.Bucket(queueBucket).Put([]byte(entry.ID), data)
}

// renumber rewrites orders so they match slice positions.
func (t *Tx) renumber(entries []*QueueEntry) error {
	for i, entry := range entries {
		if entry.Order == i {
			continue
		}
		entry.Order = i
		if err := t.putQueueEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

// InsertQueueEntries queues videos starting at index, shifting existing
// entries back. Videos already in the queue or inbox are moved, not duplicated,
// and a video listed twice is queued once at its first position.
func (t *Tx) InsertQueueEntries(index int, videos []*Video) error {
	videos = uniqueVideos(videos)
	for _, video := range videos {
		if err := t.ClearFromEverywhere(video.YoutubeID); err != nil {
			return err
		}
	}

	queue, err := t.QueueEntries()
	if err != nil {
		return err
	}
	if index < 0 {
		index = 0
	}
	if index > len(queue) {
		index = len(queue)
	}

	inserted := make([]*QueueEntry, 0, len(videos))
	for _, video := range videos {
		if err := t.placeVideo(video, StatusQueued); err != nil {
			return err
		}
		inserted = append(inserted, &QueueEntry{ID: newID(), YoutubeID: video.YoutubeID, Order: -1})
	}

	merged := make([]*QueueEntry, 0, len(queue)+len(inserted))
	merged = append(merged, queue[:index]...)
	merged = append(merged, inserted...)
	merged = append(merged, queue[index:]...)
	return t.renumber(merged)
}

// RemoveFromQueue deletes the video's queue entry, clears its status and
// closes the gap in the order sequence. Absent entries are not an error.
func (t *Tx) RemoveFromQueue(youtubeID string) (bool, error) {
	queue, err := t.QueueEntries()
	if err != nil {
		return false, err
	}
	removed := false
	remaining := queue[:0]
	for _, entry := range queue {
		if entry.YoutubeID != youtubeID {
			remaining = append(remaining, entry)
			continue
		}
		if err := t.tx.Bucket(queueBucket).Delete([]byte(entry.ID)); err != nil {
			return false, err
		}
		removed = true
	}
	if !removed {
		return false, nil
	}
	if err := t.setStatus(youtubeID, StatusNone); err != nil {
		return false, err
	}
	return true, t.renumber(remaining)
}

// MoveQueueEntry moves the entry at position from to position to.
func (t *Tx) MoveQueueEntry(from, to int) error {
	queue, err := t.QueueEntries()
	if err != nil {
		return err
	}
	if from < 0 || from >= len(queue) {
		return fmt.Errorf("%w: position %d", ErrQueueEntryNotFound, from)
	}
	if to < 0 {
		to = 0
	}
	if to >= len(queue) {
		to = len(queue) - 1
	}
	entry := queue[from]
	queue = append(queue[:from], queue[from+1:]...)
	queue = append(queue[:to], append([]*QueueEntry{entry}, queue[to:]...)...)
	return t.renumber(queue)
}

// InboxEntries returns inbox entries in insertion order.
func (t *Tx) InboxEntries() ([]*InboxEntry, error) {
	var entries []*InboxEntry
	err := t.tx.Bucket(inboxBucket).ForEach(func(_ []byte, v []byte) error {
		var entry InboxEntry
		if err := json.Unmarshal(v, &entry); err != nil {
			return err
		}
		entries = append(entries, &entry)
		return nil
	})
	return entries, err
}

// AddToInbox marks each video inboxed and appends an entry in the given order.
func (t *Tx) AddToInbox(videos []*Video) error {
	b := t.tx.Bucket(inboxBucket)
	for _, video := range uniqueVideos(videos) {
		if err := t.ClearFromEverywhere(video.YoutubeID); err != nil {
			return err
		}
		if err := t.placeVideo(video, StatusInbox); err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(&InboxEntry{ID: newID(), YoutubeID: video.YoutubeID, CreatedAt: time.Now()})
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return err
		}
	}
	return nil
}

// RemoveFromInbox deletes the video's inbox entries. Absent entries are not an error.
func (t *Tx) RemoveFromInbox(youtubeID string) (bool, error) {
	b := t.tx.Bucket(inboxBucket)
	var keys [][]byte
	err := b.ForEach(func(k, v []byte) error {
		var entry InboxEntry
		if err := json.Unmarshal(v, &entry); err != nil {
			return nil
		}
		if entry.YoutubeID == youtubeID {
			keys = append(keys, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	// bolt cursors skip an element after Delete, so delete after iterating.
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return false, err
		}
	}
	removed := len(keys) > 0
	if removed {
		if err := t.setStatus(youtubeID, StatusNone); err != nil {
			return false, err
		}
	}
	return removed, nil
}

// ClearInbox removes every inbox entry and returns how many were removed.
func (t *Tx) ClearInbox() (int, error) {
	entries, err := t.InboxEntries()
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if _, err := t.RemoveFromInbox(entry.YoutubeID); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// ClearFromEverywhere removes the video from queue and inbox. It is idempotent.
func (t *Tx) ClearFromEverywhere(youtubeID string) error {
	if _, err := t.RemoveFromQueue(youtubeID); err != nil {
		return err
	}
	_, err := t.RemoveFromInbox(youtubeID)
	return err
}

// MarkWatched clears the video from every collection and flags it watched.
func (t *Tx) MarkWatched(youtubeID string, at time.Time) error {
	if err := t.ClearFromEverywhere(youtubeID); err != nil {
		return err
	}
	video, err := t.Video(youtubeID)
	if err != nil {
		return err
	}
	video.Status = StatusWatched
	video.WatchedDate = &at
	return t.PutVideo(video)
}

// placeVideo saves video with status. The stored copy wins over the caller's
// when there is one, so earlier writes in the transaction are kept; video's
// own Status is updated to match.
func (t *Tx) placeVideo(video *Video, status VideoStatus) error {
	stored, err := t.Video(video.YoutubeID)
	switch {
	case errors.Is(err, ErrVideoNotFound):
		stored = video
	case err != nil:
		return err
	}
	stored.Status = status
	video.Status = status
	return t.PutVideo(stored)
}

func uniqueVideos(videos []*Video) []*Video {
	seen := make(map[string]bool, len(videos))
	out := make([]*Video, 0, len(videos))
	for _, v := range videos {
		if seen[v.YoutubeID] {
			continue
		}
		seen[v.YoutubeID] = true
		out = append(out, v)
	}
	return out
}

func (t *Tx) setStatus(youtubeID string, status VideoStatus) error {
	video, err := t.Video(youtubeID)
	if errors.Is(err, ErrVideoNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if video.Status == status {
		return nil
	}
	video.Status = status
	return t.PutVideo(video)
}

func (t *Tx) RefreshState() (RefreshState, error) {
	var state RefreshState
	data := t.tx.Bucket(settingsBucket).Get(refreshStateKey)
	if data == nil {
		return state, nil
	}
	err := json.Unmarshal(data, &state)
	return state, err
}

func (t *Tx) PutRefreshState(state RefreshState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return t.tx.Bucket(settingsBucket).Put(refreshStateKey, data)
}

func entryIDs(entries []*QueueEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.YoutubeID)
	}
	return ids
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func newID() string {
	return uuid.NewString()
}
