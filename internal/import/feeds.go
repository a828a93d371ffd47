package importfeeds

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"newsbrief/internal/config"
	"newsbrief/internal/docstore"
	"newsbrief/internal/models"
)

// Importer administers the feed list inside the stored settings
// document.
type Importer struct {
	store docstore.Store
}

// NewImporter creates a new feed importer
func NewImporter(store docstore.Store) *Importer {
	return &Importer{store: store}
}

func (i *Importer) settings(ctx context.Context) models.Settings {
	var settings models.Settings
	docstore.LoadOr(ctx, i.store, config.DocSettings, &settings)
	settings.ApplyDefaults()
	return settings
}

func (i *Importer) save(ctx context.Context, settings models.Settings, note string) error {
	if _, err := i.store.Save(ctx, config.DocSettings, settings, "", note); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// List prints the configured feed URLs.
func (i *Importer) List(ctx context.Context) error {
	settings := i.settings(ctx)
	for _, u := range settings.RSSURLs {
		fmt.Println(u)
	}
	fmt.Printf("%d feeds configured\n", len(settings.RSSURLs))
	return nil
}

// Add appends a feed URL to the settings document.
func (i *Importer) Add(ctx context.Context, feedURL string) error {
	if err := validateFeedURL(feedURL); err != nil {
		return err
	}

	settings := i.settings(ctx)
	if slices.Contains(settings.RSSURLs, feedURL) {
		return fmt.Errorf("feed already configured: %s", feedURL)
	}
	settings.RSSURLs = append(settings.RSSURLs, feedURL)

	if err := i.save(ctx, settings, "Update Config: Add RSS"); err != nil {
		return err
	}
	log.Info().Str("url", feedURL).Msg("Feed added")
	return nil
}

// Remove deletes a feed URL from the settings document.
func (i *Importer) Remove(ctx context.Context, feedURL string) error {
	settings := i.settings(ctx)
	idx := slices.Index(settings.RSSURLs, feedURL)
	if idx < 0 {
		return fmt.Errorf("feed not configured: %s", feedURL)
	}
	settings.RSSURLs = slices.Delete(settings.RSSURLs, idx, idx+1)

	if err := i.save(ctx, settings, "Update Config: Delete RSS"); err != nil {
		return err
	}
	log.Info().Str("url", feedURL).Msg("Feed removed")
	return nil
}

// ImportCSV merges feed URLs from a CSV file into the settings
// document. The file must carry a header with a url column; rows with
// problems are reported and skipped rather than aborting the import.
func (i *Importer) ImportCSV(ctx context.Context, csvPath string) error {
	log.Info().Str("csv", csvPath).Msg("Starting feed import")

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	added, errs, err := i.mergeCSV(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to import feeds: %w", err)
	}

	fmt.Printf("Imported %d feeds successfully\n", added)
	if len(errs) > 0 {
		fmt.Printf("Encountered %d errors:\n", len(errs))
		for _, e := range errs {
			fmt.Printf("  - %s\n", e)
		}
	}

	log.Info().Int("added", added).Int("errors", len(errs)).Msg("Import summary")
	return nil
}

func (i *Importer) mergeCSV(ctx context.Context, csvData io.Reader) (int, []string, error) {
	reader := csv.NewReader(csvData)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, nil, err
	}

	log.Debug().Strs("header", header).Msg("CSV header read")

	urlIdx := findColumnIndex(header, "url")
	if urlIdx < 0 {
		return 0, nil, fmt.Errorf("required column 'url' not found in CSV header")
	}

	settings := i.settings(ctx)
	known := make(map[string]struct{}, len(settings.RSSURLs))
	for _, u := range settings.RSSURLs {
		known[u] = struct{}{}
	}

	lineCount := 1 // Header was already read
	added := 0
	var errs []string

	for {
		lineCount++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("line", lineCount).Msg("Error reading CSV line")
			errs = append(errs, fmt.Sprintf("line %d: %v", lineCount, err))
			continue
		}

		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			log.Debug().Int("line", lineCount).Msg("Skipping empty row")
			continue
		}

		feedURL := ""
		if urlIdx < len(record) {
			feedURL = strings.TrimSpace(record[urlIdx])
		}
		if feedURL == "" {
			log.Warn().Int("line", lineCount).Msg("Skipping row with empty URL")
			errs = append(errs, fmt.Sprintf("line %d: empty URL", lineCount))
			continue
		}
		if err := validateFeedURL(feedURL); err != nil {
			errs = append(errs, fmt.Sprintf("line %d: %v", lineCount, err))
			continue
		}
		if _, dup := known[feedURL]; dup {
			log.Warn().Int("line", lineCount).Str("url", feedURL).Msg("Duplicate URL")
			errs = append(errs, fmt.Sprintf("line %d: duplicate URL: %s", lineCount, feedURL))
			continue
		}

		known[feedURL] = struct{}{}
		settings.RSSURLs = append(settings.RSSURLs, feedURL)
		added++
		log.Debug().Int("line", lineCount).Str("url", feedURL).Msg("Feed added")
	}

	if added == 0 {
		return 0, errs, nil
	}
	if err := i.save(ctx, settings, "Update Config: Import RSS"); err != nil {
		return 0, errs, err
	}
	return added, errs, nil
}

func findColumnIndex(header []string, columnName string) int {
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), columnName) {
			return i
		}
	}
	return -1
}

func validateFeedURL(feedURL string) error {
	parsed, err := url.Parse(feedURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("invalid feed URL: %s", feedURL)
	}
	return nil
}
