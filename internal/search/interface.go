package search

import "github.com/pders01/unwatched/internal/storage"

// Searcher defines the minimal search API used by the CLI.
type Searcher interface {
	Search(query string, limit int) ([]*Result, error)
	SearchInVideo(video *storage.Video, query string) ([]*Result, error)
}

// UpdateListener can be implemented by search engines that maintain
// an external index and want to be notified about new or changed videos.
type UpdateListener interface {
	OnVideosUpdated(videos []*storage.Video)
}

// DeleteListener can be implemented to get notified when a video is deleted.
type DeleteListener interface {
	OnVideoDeleted(youtubeID string)
}

// DebugStatser provides lightweight stats for visibility/debugging.
// Implemented by engines that can report index doc counts, etc.
type DebugStatser interface {
	DocCount() (int, error)
}
