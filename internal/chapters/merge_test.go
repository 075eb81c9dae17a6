package chapters

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/unwatched/internal/storage"
)

func ch(start, end float64, category storage.ChapterCategory) storage.Chapter {
	return storage.Chapter{StartTime: start, EndTime: storage.Float(end), Category: category}
}

type span struct {
	start, end float64
	category   storage.ChapterCategory
}

func spans(t *testing.T, chapters []storage.Chapter) []span {
	t.Helper()
	out := make([]span, 0, len(chapters))
	for _, c := range chapters {
		end, ok := c.End()
		require.True(t, ok, "chapter %v has no end time", c)
		out = append(out, span{c.StartTime, end, c.Category})
	}
	return out
}

func TestReconcile_MergeScenario(t *testing.T) {
	author := []storage.Chapter{
		ch(0, 50, storage.CategoryNormal),
		ch(50, 120, storage.CategoryNormal),
	}
	sponsor := []storage.Chapter{ch(40, 60, storage.CategorySponsor)}

	got := Reconcile(author, sponsor, nil, 1)

	assert.Equal(t, []span{
		{0, 40, storage.CategoryNormal},
		{40, 60, storage.CategorySponsor},
		{60, 120, storage.CategoryNormal},
	}, spans(t, got))
	assert.Equal(t, 40.0, *got[0].Duration)
	assert.Equal(t, 60.0, *got[2].Duration)
}

func TestReconcile_GenerateScenario(t *testing.T) {
	sponsor := []storage.Chapter{ch(30, 45, storage.CategorySponsor)}

	got := Reconcile(nil, sponsor, storage.Float(100), 1)

	assert.Equal(t, []span{
		{0, 30, storage.CategoryFiller},
		{30, 45, storage.CategorySponsor},
		{45, 100, storage.CategoryFiller},
	}, spans(t, got))
}

func TestReconcile_AuthorOnlyRoundTrip(t *testing.T) {
	author := []storage.Chapter{
		{Title: "Intro", StartTime: 0, Category: storage.CategoryNormal},
		{Title: "Main", StartTime: 15, Category: storage.CategoryNormal},
		{Title: "Outro", StartTime: 80, Category: storage.CategoryNormal},
	}

	got := Reconcile(author, nil, storage.Float(95), 1)

	require.Len(t, got, 3)
	for i := range author {
		assert.Equal(t, author[i].Title, got[i].Title)
		assert.Equal(t, author[i].StartTime, got[i].StartTime)
	}
	assert.Equal(t, []span{
		{0, 15, storage.CategoryNormal},
		{15, 80, storage.CategoryNormal},
		{80, 95, storage.CategoryNormal},
	}, spans(t, got))
	assert.Nil(t, author[0].EndTime, "input must not be mutated")
}

func TestCleanup(t *testing.T) {
	tests := []struct {
		name  string
		input []storage.Chapter
		want  []span
	}{
		{
			name: "same start, incoming ends later",
			input: []storage.Chapter{
				ch(0, 10, storage.CategorySponsor),
				ch(0.5, 30, storage.CategoryNormal),
			},
			want: []span{
				{0, 10, storage.CategorySponsor},
				{10, 30, storage.CategoryNormal},
			},
		},
		{
			name: "same start, last ends later",
			input: []storage.Chapter{
				ch(0, 30, storage.CategoryNormal),
				ch(0, 10, storage.CategorySponsor),
			},
			want: []span{
				{0, 10, storage.CategorySponsor},
				{10, 30, storage.CategoryNormal},
			},
		},
		{
			name: "same end, different start",
			input: []storage.Chapter{
				ch(0, 30, storage.CategoryNormal),
				ch(20, 30.5, storage.CategorySponsor),
			},
			want: []span{
				{0, 20, storage.CategoryNormal},
				{20, 30.5, storage.CategorySponsor},
			},
		},
		{
			name: "nested chapter splits the outer one",
			input: []storage.Chapter{
				ch(0, 100, storage.CategoryNormal),
				ch(40, 60, storage.CategorySponsor),
			},
			want: []span{
				{0, 40, storage.CategoryNormal},
				{40, 60, storage.CategorySponsor},
				{60, 100, storage.CategoryNormal},
			},
		},
		{
			name: "partial overlap after sponsor keeps sponsor end",
			input: []storage.Chapter{
				ch(10, 40, storage.CategorySponsor),
				ch(30, 90, storage.CategoryNormal),
			},
			want: []span{
				{10, 40, storage.CategorySponsor},
				{40, 90, storage.CategoryNormal},
			},
		},
		{
			name: "partial overlap after normal keeps incoming start",
			input: []storage.Chapter{
				ch(0, 40, storage.CategoryNormal),
				ch(30, 90, storage.CategorySponsor),
			},
			want: []span{
				{0, 30, storage.CategoryNormal},
				{30, 90, storage.CategorySponsor},
			},
		},
		{
			name: "contiguous chapters are appended",
			input: []storage.Chapter{
				ch(0, 40, storage.CategoryNormal),
				ch(40, 90, storage.CategoryNormal),
			},
			want: []span{
				{0, 40, storage.CategoryNormal},
				{40, 90, storage.CategoryNormal},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, spans(t, Cleanup(tt.input, 1)))
		})
	}
}

func TestCleanup_MissingEndTimeKeepsChapter(t *testing.T) {
	input := []storage.Chapter{
		ch(0, 40, storage.CategoryNormal),
		{StartTime: 30, Category: storage.CategoryNormal},
		ch(50, 60, storage.CategorySponsor),
	}

	got := Cleanup(input, 1)

	require.Len(t, got, 3)
	assert.Equal(t, 30.0, got[1].StartTime)
	assert.Nil(t, got[1].EndTime)
	assert.Equal(t, 50.0, got[2].StartTime)
}

func TestGenerate_SkipsChaptersWithoutEnd(t *testing.T) {
	sponsor := []storage.Chapter{
		ch(50, 60, storage.CategorySponsor),
		{StartTime: 5, Category: storage.CategorySponsor},
		ch(10, 20, storage.CategorySponsor),
	}

	got := Generate(sponsor, storage.Float(60.5), 1)

	assert.Equal(t, []span{
		{0, 10, storage.CategoryFiller},
		{10, 20, storage.CategorySponsor},
		{20, 50, storage.CategoryFiller},
		{50, 60, storage.CategorySponsor},
	}, spans(t, got), "trailing gap within tolerance gets no filler")
}

func TestNormalize(t *testing.T) {
	got := Normalize([]storage.Chapter{
		{StartTime: 0},
		{StartTime: 10, EndTime: storage.Float(12)},
		{StartTime: 20},
	}, nil)

	require.Len(t, got, 3)
	assert.Equal(t, 10.0, *got[0].EndTime)
	assert.Equal(t, 2.0, *got[1].Duration)
	assert.Nil(t, got[2].EndTime, "last end stays unknown without a video duration")
	assert.Nil(t, got[2].Duration)
	assert.Equal(t, storage.CategoryNormal, got[0].Category)
}

func TestParseDescription(t *testing.T) {
	desc := `Thanks for watching!

0:00 Intro
(1:30) - Setup
12:05 | Deep dive
1:02:03 Outro
not a chapter 5:00`

	got := ParseDescription(desc, storage.Float(4000))

	require.Len(t, got, 4)
	assert.Equal(t, "Intro", got[0].Title)
	assert.Equal(t, 90.0, got[1].StartTime)
	assert.Equal(t, "Setup", got[1].Title)
	assert.Equal(t, 725.0, got[2].StartTime)
	assert.Equal(t, "Deep dive", got[2].Title)
	assert.Equal(t, 3723.0, got[3].StartTime)
	assert.Equal(t, 4000.0, *got[3].EndTime)

	assert.Nil(t, ParseDescription("0:00 only one", nil))
}

// TestReconcile_TimelineProperties checks generated author partitions and
// disjoint sponsor segments always reconcile into a sorted, gap-free,
// non-overlapping timeline covering the whole video. An author chapter that
// ends within tolerance of a sponsor segment may collapse, so every check
// allows one tolerance of slack.
func TestReconcile_TimelineProperties(t *testing.T) {
	const eps = 1.0
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 300; iter++ {
		duration := float64(300 + rng.Intn(600))

		var author []storage.Chapter
		if rng.Intn(4) > 0 {
			for start := 0.0; start < duration; {
				end := start + float64(5+rng.Intn(120))
				if end > duration-5 {
					end = duration
				}
				c := storage.Chapter{StartTime: start, Category: storage.CategoryNormal}
				if rng.Intn(2) == 0 {
					c.EndTime = storage.Float(end)
				}
				author = append(author, c)
				start = end
			}
		}

		var sponsor []storage.Chapter
		for t0 := float64(rng.Intn(30)); ; {
			start := t0 + float64(rng.Intn(80))
			end := start + float64(5+rng.Intn(40))
			if end > duration {
				break
			}
			sponsor = append(sponsor, ch(start, end, storage.CategorySponsor))
			t0 = end
		}
		rng.Shuffle(len(sponsor), func(i, j int) { sponsor[i], sponsor[j] = sponsor[j], sponsor[i] })

		got := Reconcile(author, sponsor, storage.Float(duration), eps)
		if len(author) == 0 && len(sponsor) == 0 {
			assert.Empty(t, got)
			continue
		}

		require.NotEmpty(t, got, "iteration %d", iter)
		s := spans(t, got)
		assert.LessOrEqual(t, math.Abs(s[0].start), eps, "iteration %d: timeline must start at 0: %v", iter, got)
		assert.LessOrEqual(t, math.Abs(s[len(s)-1].end-duration), eps, "iteration %d: timeline must end at duration: %v", iter, got)
		for i := range s {
			assert.GreaterOrEqual(t, s[i].end+eps, s[i].start, "iteration %d: negative chapter %v", iter, got)
			if i == 0 {
				continue
			}
			assert.GreaterOrEqual(t, s[i].start+eps, s[i-1].start, "iteration %d: unsorted %v", iter, got)
			assert.LessOrEqual(t, math.Abs(s[i].start-s[i-1].end), eps, "iteration %d: gap or overlap %v", iter, got)
		}
	}
}
