package feed

import (
	"context"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"newsbrief/internal/models"
)

// UserAgent identifies feed requests to upstream servers.
const UserAgent = "newsbrief/1.0"

// Fetcher retrieves RSS and Atom feeds and flattens their items into
// entries the pipeline can consume.
type Fetcher struct {
	parser *gofeed.Parser
}

// NewFetcher creates a Fetcher whose HTTP requests time out after the
// given duration.
func NewFetcher(timeout time.Duration) *Fetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = UserAgent
	parser.Client = &http.Client{Timeout: timeout}
	return &Fetcher{parser: parser}
}

// Fetch downloads and parses one feed.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]models.Entry, error) {
	parsed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]models.Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}

		entry := models.Entry{
			Title:       item.Title,
			Link:        item.Link,
			Description: item.Description,
			Content:     item.Content,
			Published:   item.PublishedParsed,
			Updated:     item.UpdatedParsed,
			Source:      url,
		}
		if entry.Title == "" {
			entry.Title = NoTitle
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
