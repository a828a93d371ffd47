package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// DateFormat is the day-granularity format used for article dates and
// per-day stat buckets.
const DateFormat = "2006-01-02"

// Article represents one entry in the persisted news collection. The
// link is the natural key: two items with the same link are the same
// article no matter which feed or run produced them.
type Article struct {
	ID        string    `json:"id"`
	Link      string    `json:"link"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Source    string    `json:"source"`
	Date      string    `json:"date"`
	Timestamp time.Time `json:"timestamp"`
}

// NewArticle creates an Article for a link with a fresh random ID.
func NewArticle(link string) *Article {
	return &Article{
		ID:   uuid.NewString(),
		Link: link,
	}
}

// SetTimestamp records the publication instant and keeps the derived
// day-granularity date in sync with it.
func (a *Article) SetTimestamp(t time.Time) {
	a.Timestamp = t
	a.Date = t.Format(DateFormat)
}

// SortArticles orders a collection newest first. The sort is stable so
// articles sharing an instant keep their stored order.
func SortArticles(articles []*Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].Timestamp.After(articles[j].Timestamp)
	})
}
