package chapters

import (
	"sort"

	"github.com/pders01/unwatched/internal/debuglog"
	"github.com/pders01/unwatched/internal/storage"
)

// Generate builds a full timeline from sponsor chapters alone by inserting
// filler chapters wherever a gap wider than tolerance exists, including a
// trailing filler up to videoDuration.
func Generate(sponsor []storage.Chapter, videoDuration *float64, tolerance float64) []storage.Chapter {
	sorted := copyChapters(sponsor)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime < sorted[j].StartTime
	})

	out := make([]storage.Chapter, 0, len(sorted)*2+1)
	previousEnd := 0.0

	for _, chapter := range sorted {
		end, ok := chapter.End()
		if !ok {
			debuglog.Infof("generating chapters: skipping chapter at %.1f: %v", chapter.StartTime, ErrMalformedChapter)
			continue
		}
		if chapter.StartTime-previousEnd > tolerance {
			out = append(out, filler(previousEnd, chapter.StartTime))
		}
		out = append(out, chapter)
		previousEnd = end
	}

	if f, ok := fillerForEnd(videoDuration, previousEnd, tolerance); ok {
		out = append(out, f)
	}
	return out
}

func fillerForEnd(videoDuration *float64, previousEnd, tolerance float64) (storage.Chapter, bool) {
	if videoDuration == nil || *videoDuration-previousEnd <= tolerance {
		return storage.Chapter{}, false
	}
	return filler(previousEnd, *videoDuration), true
}

func filler(start, end float64) storage.Chapter {
	return storage.Chapter{
		StartTime: start,
		EndTime:   storage.Float(end),
		Duration:  storage.Float(end - start),
		Category:  storage.CategoryFiller,
	}
}
