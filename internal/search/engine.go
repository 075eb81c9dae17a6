package search

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/pders01/unwatched/internal/storage"
)

// Result is a search match with relevance scoring. Video is nil for
// subscription matches.
type Result struct {
	Subscription *storage.Subscription
	Video        *storage.Video
	IsVideo      bool
	Score        float64
	Matches      []Match
}

// Match represents where text was found
type Match struct {
	Field  string // "title", "description", "chapter", "url"
	Text   string // matched text snippet
	Weight float64
}

// Engine scans the store directly. It needs no index, which makes it the
// fallback when the bleve index cannot be opened.
type Engine struct {
	store *storage.Store
	now   func() time.Time
}

// NewEngine creates a new search engine
func NewEngine(store *storage.Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Search performs search across subscriptions and videos
func (e *Engine) Search(query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []*Result{}, nil
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return []*Result{}, nil
	}

	var results []*Result

	subs, err := e.store.GetAllSubscriptions()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*storage.Subscription, len(subs))
	for _, sub := range subs {
		byID[sub.ID] = sub
		if result := e.searchSubscription(sub, terms); result != nil {
			results = append(results, result)
		}
	}

	videos, err := e.store.GetAllVideos()
	if err != nil {
		return nil, err
	}
	for _, video := range videos {
		if result := e.searchVideo(byID[video.SubscriptionID], video, terms); result != nil {
			results = append(results, result)
		}
	}

	// Sort by relevance score (highest first)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// SearchInVideo searches a single video's title, description and chapters.
func (e *Engine) SearchInVideo(video *storage.Video, query string) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 || video == nil {
		return []*Result{}, nil
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return []*Result{}, nil
	}

	if result := e.searchVideo(nil, video, terms); result != nil {
		return []*Result{result}, nil
	}

	return []*Result{}, nil
}

func (e *Engine) searchSubscription(sub *storage.Subscription, terms []string) *Result {
	var matches []Match
	var totalScore float64

	if titleScore := e.scoreField(sub.Title, terms, 3.0); titleScore > 0 {
		matches = append(matches, Match{Field: "title", Text: sub.Title, Weight: titleScore})
		totalScore += titleScore
	}

	if urlScore := e.scoreField(sub.Link, terms, 0.5); urlScore > 0 {
		matches = append(matches, Match{Field: "url", Text: sub.Link, Weight: urlScore})
		totalScore += urlScore
	}

	if totalScore > 0 {
		return &Result{
			Subscription: sub,
			Score:        totalScore,
			Matches:      matches,
		}
	}

	return nil
}

func (e *Engine) searchVideo(sub *storage.Subscription, video *storage.Video, terms []string) *Result {
	var matches []Match
	var totalScore float64

	if titleScore := e.scoreField(video.Title, terms, 4.0); titleScore > 0 {
		matches = append(matches, Match{Field: "title", Text: video.Title, Weight: titleScore})
		totalScore += titleScore
	}

	if feedScore := e.scoreField(video.FeedTitle, terms, 1.5); feedScore > 0 {
		matches = append(matches, Match{Field: "feed_title", Text: video.FeedTitle, Weight: feedScore})
		totalScore += feedScore
	}

	for _, chapter := range video.Chapters {
		if score := e.scoreField(chapter.Title, terms, 1.5); score > 0 {
			matches = append(matches, Match{Field: "chapter", Text: chapter.Title, Weight: score})
			totalScore += score
		}
	}

	if descScore := e.scoreField(video.Description, terms, 1.0); descScore > 0 {
		matches = append(matches, Match{
			Field:  "description",
			Text:   e.findBestSnippet(video.Description, terms, 200),
			Weight: descScore,
		})
		totalScore += descScore
	}

	if totalScore == 0 {
		return nil
	}

	if video.PublishedDate != nil {
		totalScore *= 1.0 + recencyBoost(e.now().Sub(*video.PublishedDate))
	}

	return &Result{
		Subscription: sub,
		Video:        video,
		IsVideo:      true,
		Score:        totalScore,
		Matches:      matches,
	}
}

// scoreField calculates relevance score for a field
func (e *Engine) scoreField(text string, terms []string, weight float64) float64 {
	if text == "" {
		return 0
	}

	lower := strings.ToLower(text)
	words := tokenize(text)
	if len(words) == 0 {
		return 0
	}

	var score float64
	matchedTerms := 0

	for _, term := range terms {
		// Exact phrase match (highest score)
		if strings.Contains(lower, term) {
			score += 2.0
			matchedTerms++
		}

		// Word boundary matches (medium score)
		for _, word := range words {
			if word == term {
				score += 1.5
				matchedTerms++
			} else if strings.HasPrefix(word, term) || strings.HasSuffix(word, term) {
				score += 1.0
				matchedTerms++
			} else if strings.Contains(word, term) {
				score += 0.5
				matchedTerms++
			}
		}
	}

	// Boost score if multiple terms match
	if len(terms) > 1 && matchedTerms > 1 {
		score *= 1.0 + float64(matchedTerms)/float64(len(terms))
	}

	tf := float64(matchedTerms) / float64(len(words))
	score *= 1.0 + math.Log(1.0+tf)

	return score * weight
}

// findBestSnippet finds the most relevant text snippet containing search terms
func (e *Engine) findBestSnippet(text string, terms []string, maxLength int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	windowSize := maxLength / 8 // Approximate words in snippet
	if windowSize >= len(words) {
		return truncate(text, maxLength)
	}

	bestScore := 0
	bestStart := 0
	for i := 0; i <= len(words)-windowSize; i++ {
		window := strings.ToLower(strings.Join(words[i:i+windowSize], " "))
		score := 0
		for _, term := range terms {
			if strings.Contains(window, term) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestStart = i
		}
	}

	return truncate(strings.Join(words[bestStart:bestStart+windowSize], " "), maxLength)
}

// tokenize breaks text into lower-cased searchable terms
func tokenize(text string) []string {
	var terms []string
	current := strings.Builder{}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
		} else if current.Len() > 0 {
			if term := current.String(); len(term) > 1 { // Skip single chars
				terms = append(terms, term)
			}
			current.Reset()
		}
	}

	if current.Len() > 1 {
		terms = append(terms, current.String())
	}

	return terms
}

// truncate limits text length with ellipsis
func truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen-1]) + "…"
}

// recencyBoost favors videos from the last week, up to 10%.
func recencyBoost(age time.Duration) float64 {
	const week = 7 * 24 * time.Hour
	if age < 0 || age >= week {
		return 0
	}
	return 0.1 * (1 - float64(age)/float64(week))
}
