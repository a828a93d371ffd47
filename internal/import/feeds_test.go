package importfeeds

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsbrief/internal/config"
	"newsbrief/internal/docstore"
	"newsbrief/internal/models"
)

func openTestStore(t *testing.T) *docstore.SQLiteStore {
	t.Helper()

	store, err := docstore.OpenSQLite(docstore.NewSQLiteConfig(filepath.Join(t.TempDir(), "feeds.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func storedSettings(t *testing.T, store docstore.Store) models.Settings {
	t.Helper()

	var settings models.Settings
	_, err := store.Load(context.Background(), config.DocSettings, &settings)
	require.NoError(t, err)
	return settings
}

func TestAddFeed(t *testing.T) {
	store := openTestStore(t)
	importer := NewImporter(store)

	require.NoError(t, importer.Add(context.Background(), "https://new.example.com/rss"))

	settings := storedSettings(t, store)
	assert.Contains(t, settings.RSSURLs, "https://new.example.com/rss")
	assert.Contains(t, settings.RSSURLs, models.DefaultFeeds[0], "defaults are materialized alongside the addition")
}

func TestAddFeedRejectsDuplicate(t *testing.T) {
	store := openTestStore(t)
	importer := NewImporter(store)

	err := importer.Add(context.Background(), models.DefaultFeeds[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already configured")
}

func TestAddFeedRejectsInvalidURL(t *testing.T) {
	store := openTestStore(t)
	importer := NewImporter(store)

	for _, bad := range []string{"", "not-a-url", "ftp://example.com/feed", "https://"} {
		assert.Error(t, importer.Add(context.Background(), bad), "url %q", bad)
	}
}

func TestRemoveFeed(t *testing.T) {
	store := openTestStore(t)
	importer := NewImporter(store)

	require.NoError(t, importer.Remove(context.Background(), models.DefaultFeeds[1]))

	settings := storedSettings(t, store)
	assert.NotContains(t, settings.RSSURLs, models.DefaultFeeds[1])
	assert.Contains(t, settings.RSSURLs, models.DefaultFeeds[0])

	err := importer.Remove(context.Background(), "https://gone.example.com/rss")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestImportCSV(t *testing.T) {
	store := openTestStore(t)
	importer := NewImporter(store)

	csvPath := filepath.Join(t.TempDir(), "feeds.csv")
	content := "url,comments\n" +
		"https://one.example.com/rss,tech news\n" +
		models.DefaultFeeds[0] + ",duplicate of a default\n" +
		",missing url\n" +
		"not-a-url,broken\n" +
		"https://two.example.com/rss,\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(content), 0o644))

	require.NoError(t, importer.ImportCSV(context.Background(), csvPath))

	settings := storedSettings(t, store)
	assert.Contains(t, settings.RSSURLs, "https://one.example.com/rss")
	assert.Contains(t, settings.RSSURLs, "https://two.example.com/rss")
	assert.Len(t, settings.RSSURLs, len(models.DefaultFeeds)+2, "bad rows are skipped, not imported")
}

func TestImportCSVRequiresURLColumn(t *testing.T) {
	store := openTestStore(t)
	importer := NewImporter(store)

	csvPath := filepath.Join(t.TempDir(), "feeds.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("link,comments\nhttps://x.example.com/rss,\n"), 0o644))

	err := importer.ImportCSV(context.Background(), csvPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required column 'url'")
}

func TestImportCSVMissingFile(t *testing.T) {
	store := openTestStore(t)
	importer := NewImporter(store)

	err := importer.ImportCSV(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open CSV file")
}
