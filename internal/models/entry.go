package models

import "time"

// Entry is a single feed item as produced by the fetcher, before any
// classification or persistence.
type Entry struct {
	Title       string
	Link        string
	Description string
	Content     string
	Published   *time.Time
	Updated     *time.Time
	Source      string // URL of the feed this entry came from
}

// EffectiveTime returns the best publication instant the feed offered:
// the published time when present, otherwise the updated time,
// otherwise nil.
func (e *Entry) EffectiveTime() *time.Time {
	if e.Published != nil {
		return e.Published
	}
	return e.Updated
}
