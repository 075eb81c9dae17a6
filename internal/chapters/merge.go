// Package chapters reconciles author chapter markers with crowd-sourced
// sponsor segments into one ordered, non-overlapping timeline per video.
package chapters

import (
	"errors"
	"math"
	"sort"

	"github.com/pders01/unwatched/internal/debuglog"
	"github.com/pders01/unwatched/internal/storage"
)

// DefaultTolerance is the boundary epsilon in seconds.
const DefaultTolerance = 1.0

// ErrMalformedChapter marks a chapter that reached the merge without an end time.
var ErrMalformedChapter = errors.New("chapter has no end time")

// Reconcile combines author chapters and sponsor chapters for a video.
//
// With no sponsor chapters the author list is returned with end times and
// durations filled in. With only sponsor chapters the gaps between them are
// filled with filler chapters. Otherwise both lists are merged and overlaps
// resolved.
func Reconcile(author, sponsor []storage.Chapter, videoDuration *float64, tolerance float64) []storage.Chapter {
	if len(sponsor) == 0 {
		return Normalize(author, videoDuration)
	}
	if len(author) == 0 {
		return Normalize(Generate(sponsor, videoDuration, tolerance), videoDuration)
	}

	chapters := Normalize(author, videoDuration)
	chapters = append(chapters, copyChapters(sponsor)...)
	sort.SliceStable(chapters, func(i, j int) bool {
		return chapters[i].StartTime < chapters[j].StartTime
	})
	return Normalize(Cleanup(chapters, tolerance), videoDuration)
}

// Cleanup resolves overlaps in chapters, which must be sorted by start time.
// Each chapter is compared only with the last chapter already placed.
func Cleanup(chapters []storage.Chapter, tolerance float64) []storage.Chapter {
	out := make([]storage.Chapter, 0, len(chapters))

	for _, chapter := range chapters {
		if len(out) == 0 {
			out = append(out, chapter)
			continue
		}
		idx := len(out) - 1
		last := out[idx]

		lastEnd, lastOK := last.End()
		chapterEnd, chapterOK := chapter.End()
		if !lastOK || !chapterOK {
			debuglog.WithFields(map[string]interface{}{
				"title": chapter.Title,
				"start": chapter.StartTime,
			}).Warnf("merging chapters: %v", ErrMalformedChapter)
			out = append(out, chapter)
			continue
		}

		switch {
		// same start, different end
		case math.Abs(chapter.StartTime-last.StartTime) <= tolerance &&
			math.Abs(chapterEnd-lastEnd) > tolerance:
			if lastEnd < chapterEnd {
				chapter.StartTime = lastEnd
				out = append(out, chapter)
			} else {
				out[idx].StartTime = chapterEnd
				out = insertAt(out, idx, chapter)
			}

		// same end, different start
		case math.Abs(chapterEnd-lastEnd) <= tolerance &&
			chapter.StartTime-last.StartTime > tolerance:
			out[idx].EndTime = storage.Float(chapter.StartTime)
			out = append(out, chapter)

		// chapter nested inside last
		case chapter.StartTime-last.StartTime > tolerance &&
			lastEnd-chapterEnd > tolerance:
			before := last
			before.EndTime = storage.Float(chapter.StartTime)
			after := last
			after.StartTime = chapterEnd
			out[idx] = before
			out = append(out, chapter, after)

		// boundaries disagree: move both to one split point
		case lastEnd != chapter.StartTime:
			border := chapter.StartTime
			if last.Category == storage.CategorySponsor {
				border = lastEnd
			}
			out[idx].EndTime = storage.Float(border)
			chapter.StartTime = border
			out = append(out, chapter)

		default:
			out = append(out, chapter)
		}
	}

	return out
}

func insertAt(chapters []storage.Chapter, i int, c storage.Chapter) []storage.Chapter {
	chapters = append(chapters, storage.Chapter{})
	copy(chapters[i+1:], chapters[i:])
	chapters[i] = c
	return chapters
}

func copyChapters(chapters []storage.Chapter) []storage.Chapter {
	return append([]storage.Chapter(nil), chapters...)
}
