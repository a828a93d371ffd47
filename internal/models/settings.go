package models

import (
	"fmt"
	"time"
)

// Defaults applied field by field whenever the stored settings
// document is missing or partial.
const (
	DefaultUpdateIntervalMinutes = 180
	DefaultDaysToScrape          = 3
	DefaultModel                 = "gpt-4o-mini"
	DefaultFallbackModel         = "gpt-4o-mini"
	DefaultLanguage              = "Korean"
	DefaultFilterPrompt          = "Is this article related to Artificial Intelligence, Machine Learning, or LLMs?"
)

// DefaultFeeds seeds a fresh install with a pair of general tech feeds.
var DefaultFeeds = []string{
	"https://feeds.feedburner.com/TechCrunch/startups",
	"https://www.theverge.com/rss/index.xml",
}

// Settings is the dynamic pipeline configuration. It lives in the
// document store so edits take effect on the next run without a
// restart.
type Settings struct {
	RSSURLs               []string `json:"rss_urls"`
	UpdateIntervalMinutes int      `json:"update_interval_minutes"`
	DaysToScrape          int      `json:"days_to_scrape"`
	Model                 string   `json:"model"`
	FallbackModel         string   `json:"fallback_model"`
	AIFilterPrompt        string   `json:"ai_filter_prompt"`
	Language              string   `json:"language"`
	EnableAutoScrape      bool     `json:"enable_auto_scrape"`
}

// DefaultSettings returns the settings used before any document has
// been saved. Automatic scraping stays off until switched on
// explicitly.
func DefaultSettings() Settings {
	s := Settings{}
	s.ApplyDefaults()
	return s
}

// ApplyDefaults fills zero-valued fields so a partial document never
// yields an empty model name or a zero interval. EnableAutoScrape is
// left alone: false is a meaningful stored value.
func (s *Settings) ApplyDefaults() {
	if len(s.RSSURLs) == 0 {
		s.RSSURLs = append([]string(nil), DefaultFeeds...)
	}
	if s.UpdateIntervalMinutes <= 0 {
		s.UpdateIntervalMinutes = DefaultUpdateIntervalMinutes
	}
	if s.DaysToScrape <= 0 {
		s.DaysToScrape = DefaultDaysToScrape
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if s.FallbackModel == "" {
		s.FallbackModel = DefaultFallbackModel
	}
	if s.AIFilterPrompt == "" {
		s.AIFilterPrompt = DefaultFilterPrompt
	}
	if s.Language == "" {
		s.Language = DefaultLanguage
	}
}

// UpdateInterval returns the configured gap between automatic runs.
func (s *Settings) UpdateInterval() time.Duration {
	return time.Duration(s.UpdateIntervalMinutes) * time.Minute
}

// Validate rejects settings that would leave the pipeline inoperable.
func (s *Settings) Validate() error {
	if len(s.RSSURLs) == 0 {
		return fmt.Errorf("at least one RSS feed URL is required")
	}
	for i, u := range s.RSSURLs {
		if u == "" {
			return fmt.Errorf("rss_urls[%d] is empty", i)
		}
	}
	if s.UpdateIntervalMinutes < 1 {
		return fmt.Errorf("update_interval_minutes must be at least 1, got %d", s.UpdateIntervalMinutes)
	}
	if s.DaysToScrape < 1 {
		return fmt.Errorf("days_to_scrape must be at least 1, got %d", s.DaysToScrape)
	}
	if s.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	return nil
}
