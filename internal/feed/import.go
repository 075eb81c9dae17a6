package feed

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"

	"github.com/pders01/unwatched/internal/storage"
)

// SubscriptionList is the TOML document used to import and export
// subscriptions:
//
//	[[subscription]]
//	url = "https://www.youtube.com/@veritasium"
//	placement = "queue"
type SubscriptionList struct {
	Subscriptions []SubscriptionEntry `toml:"subscription"`
}

type SubscriptionEntry struct {
	URL       string `toml:"url"`
	Title     string `toml:"title,omitempty"`
	Placement string `toml:"placement,omitempty"`
}

// ReadSubscriptionList decodes a subscription list. Unknown keys are rejected
// so typos do not silently drop settings.
func ReadSubscriptionList(r io.Reader) (*SubscriptionList, error) {
	var list SubscriptionList
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding subscription list: %w", err)
	}
	for i, entry := range list.Subscriptions {
		if entry.URL == "" {
			return nil, fmt.Errorf("subscription %d: missing url", i+1)
		}
		if _, err := storage.ParsePlacement(entry.Placement); err != nil {
			return nil, fmt.Errorf("subscription %d: %w", i+1, err)
		}
	}
	return &list, nil
}

// WriteSubscriptionList encodes subs in the import format.
func WriteSubscriptionList(w io.Writer, subs []*storage.Subscription) error {
	list := SubscriptionList{Subscriptions: make([]SubscriptionEntry, 0, len(subs))}
	for _, sub := range subs {
		entry := SubscriptionEntry{URL: sub.Link, Title: sub.Title}
		if sub.PlaceVideosIn != storage.PlacementDefault && sub.PlaceVideosIn != "" {
			entry.Placement = string(sub.PlaceVideosIn)
		}
		list.Subscriptions = append(list.Subscriptions, entry)
	}
	return toml.NewEncoder(w).Encode(list)
}
