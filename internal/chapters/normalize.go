package chapters

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pders01/unwatched/internal/storage"
)

// Normalize returns a copy of chapters with missing end times taken from the
// next chapter's start (or videoDuration for the last chapter) and every
// duration recomputed from start and end.
func Normalize(chapters []storage.Chapter, videoDuration *float64) []storage.Chapter {
	out := copyChapters(chapters)
	for i := range out {
		if out[i].EndTime == nil {
			if i+1 < len(out) {
				out[i].EndTime = storage.Float(out[i+1].StartTime)
			} else if videoDuration != nil {
				out[i].EndTime = storage.Float(*videoDuration)
			}
		}
		if out[i].Category == "" {
			out[i].Category = storage.CategoryNormal
		}
		if end, ok := out[i].End(); ok {
			out[i].Duration = storage.Float(end - out[i].StartTime)
		} else {
			out[i].Duration = nil
		}
	}
	return out
}

var timestampLine = regexp.MustCompile(`^\s*[\[(]?((?:\d{1,2}:)?\d{1,2}:\d{2})[\])]?\s*(?:[-–—:|]\s*)?(.*)$`)

// ParseDescription extracts author chapters from timestamp lines such as
// "0:00 Intro" or "1:02:03 - Outro" in a video description. Fewer than two
// timestamps yield no chapters.
func ParseDescription(description string, videoDuration *float64) []storage.Chapter {
	var out []storage.Chapter
	for _, line := range strings.Split(description, "\n") {
		m := timestampLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		start, ok := parseTimestamp(m[1])
		if !ok {
			continue
		}
		if len(out) > 0 && start <= out[len(out)-1].StartTime {
			continue
		}
		out = append(out, storage.Chapter{
			Title:     strings.TrimSpace(m[2]),
			StartTime: start,
			Category:  storage.CategoryNormal,
		})
	}
	if len(out) < 2 {
		return nil
	}
	return Normalize(out, videoDuration)
}

func parseTimestamp(s string) (float64, bool) {
	total := 0
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, false
		}
		total = total*60 + n
	}
	return float64(total), true
}
