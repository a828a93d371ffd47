package models

import "time"

// TotalSource is the bucket under which every new article is counted
// in addition to its own feed source.
const TotalSource = "Total"

// Stats records pipeline activity: when the last automatic run
// completed and how many articles each source contributed per day.
type Stats struct {
	LastAutoScrape time.Time                 `json:"last_auto_scrape"`
	ScrapedCount   map[string]map[string]int `json:"scraped_count"`
}

// AddScraped counts n newly collected articles for a source on a given
// day, keeping the per-day Total in step.
func (s *Stats) AddScraped(day, source string, n int) {
	if n <= 0 {
		return
	}
	if s.ScrapedCount == nil {
		s.ScrapedCount = make(map[string]map[string]int)
	}
	if s.ScrapedCount[day] == nil {
		s.ScrapedCount[day] = make(map[string]int)
	}
	s.ScrapedCount[day][source] += n
	if source != TotalSource {
		s.ScrapedCount[day][TotalSource] += n
	}
}
