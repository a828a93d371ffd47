package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsbrief/internal/config"
	"newsbrief/internal/docstore"
	"newsbrief/internal/models"
	"newsbrief/internal/oracle"
)

func openRunnerStore(t *testing.T) *docstore.SQLiteStore {
	t.Helper()

	store, err := docstore.OpenSQLite(docstore.NewSQLiteConfig(filepath.Join(t.TempDir(), "runner.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestRunner(store docstore.Store, feeds map[string][]models.Entry, o oracle.Oracle) *Runner {
	p := newTestPipeline(&fakeFetcher{feeds: feeds}, o)
	return NewRunner(store, p)
}

func TestRunnerPersistsArticles(t *testing.T) {
	store := openRunnerStore(t)

	feedURL := models.DefaultFeeds[0]
	feeds := map[string][]models.Entry{
		feedURL: {entryAt("저장 기사", "https://example.com/persist", timePtr(testNow.Add(-time.Hour)))},
	}
	runner := newTestRunner(store, feeds, &fakeOracle{})

	res, err := runner.Run(context.Background(), "Manual Update", Hooks{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.New)

	var stored []*models.Article
	rev, err := store.Load(context.Background(), config.DocArticles, &stored)
	require.NoError(t, err)
	assert.Equal(t, docstore.Revision("1"), rev)
	require.Len(t, stored, 1)
	assert.Equal(t, "https://example.com/persist", stored[0].Link)
	assert.Equal(t, "처리됨: 저장 기사", stored[0].Title)
}

func TestRunnerSkipsWriteWithoutChanges(t *testing.T) {
	store := openRunnerStore(t)

	feedURL := models.DefaultFeeds[0]
	published := testNow.Add(-time.Hour)
	feeds := map[string][]models.Entry{
		feedURL: {entryAt("안정 기사", "https://example.com/stable", timePtr(published))},
	}
	runner := newTestRunner(store, feeds, &fakeOracle{})

	_, err := runner.Run(context.Background(), "Manual Update", Hooks{})
	require.NoError(t, err)

	res, err := runner.Run(context.Background(), "Manual Update", Hooks{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Changes())

	rev, err := store.Load(context.Background(), config.DocArticles, &[]*models.Article{})
	require.NoError(t, err)
	assert.Equal(t, docstore.Revision("1"), rev, "unchanged run must not bump the stored revision")
}

// racingStore lets a competing writer land between the runner's load
// and its save, forcing the conditional write into a conflict.
type racingStore struct {
	inner   docstore.Store
	racer   func(ctx context.Context) error
	raced   bool
	saves   []string
	notes   []string
	saveErr error
}

func (s *racingStore) Load(ctx context.Context, name string, out any) (docstore.Revision, error) {
	return s.inner.Load(ctx, name, out)
}

func (s *racingStore) Save(ctx context.Context, name string, doc any, rev docstore.Revision, note string) (docstore.Revision, error) {
	s.saves = append(s.saves, name)
	s.notes = append(s.notes, note)
	if s.saveErr != nil {
		return "", s.saveErr
	}
	if s.racer != nil && !s.raced {
		s.raced = true
		if err := s.racer(ctx); err != nil {
			return "", err
		}
	}
	return s.inner.Save(ctx, name, doc, rev, note)
}

func TestRunnerRetriesAfterConflict(t *testing.T) {
	inner := openRunnerStore(t)

	seed := models.NewArticle("https://example.com/seed")
	seed.Title = "기존 기사"
	seed.Summary = "이미 충분한 한국어 요약입니다."
	seed.SetTimestamp(testNow.Add(-2 * time.Hour))
	_, err := inner.Save(context.Background(), config.DocArticles, []*models.Article{seed}, "", "seed")
	require.NoError(t, err)

	racer := models.NewArticle("https://example.com/racer")
	racer.Title = "경쟁 기사"
	racer.Summary = "동시에 저장된 한국어 요약입니다."
	racer.SetTimestamp(testNow.Add(-90 * time.Minute))

	store := &racingStore{
		inner: inner,
		racer: func(ctx context.Context) error {
			_, err := inner.Save(ctx, config.DocArticles, []*models.Article{seed, racer}, "", "concurrent update")
			return err
		},
	}

	o := &fakeOracle{}
	feedURL := models.DefaultFeeds[0]
	feeds := map[string][]models.Entry{
		feedURL: {entryAt("새 기사", "https://example.com/incoming", timePtr(testNow.Add(-time.Hour)))},
	}
	runner := newTestRunner(store, feeds, o)

	var lines []string
	res, err := runner.Run(context.Background(), "Manual Update", statusRecorder(&lines))
	require.NoError(t, err)
	assert.Equal(t, 1, res.New)

	var stored []*models.Article
	_, err = inner.Load(context.Background(), config.DocArticles, &stored)
	require.NoError(t, err)

	var links []string
	for _, a := range stored {
		links = append(links, a.Link)
	}
	assert.ElementsMatch(t, []string{
		"https://example.com/seed",
		"https://example.com/racer",
		"https://example.com/incoming",
	}, links, "a re-merged save must keep the competing writer's article")

	assert.Len(t, o.calls, 1, "the oracle verdict is reused across the re-merge")
	assert.Equal(t, []string{config.DocArticles, config.DocArticles}, store.saves)
	assert.Equal(t, []string{"Manual Update", "Manual Update"}, store.notes)
	assert.Contains(t, strings.Join(lines, "\n"), "Collection changed underneath, re-merging...")
}

func TestRunnerAbortsWhenArticlesUnreadable(t *testing.T) {
	store := &brokenStore{loadErr: errors.New("backend unavailable")}

	feeds := map[string][]models.Entry{
		models.DefaultFeeds[0]: {entryAt("기사", "https://example.com/a", timePtr(testNow))},
	}
	runner := newTestRunner(store, feeds, &fakeOracle{})

	_, err := runner.Run(context.Background(), "Manual Update", Hooks{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load articles")
	assert.Zero(t, store.saveCalls, "a merge against unknown state must never be written back")
}

// brokenStore fails article loads while leaving settings missing, so
// runs still start from default settings.
type brokenStore struct {
	loadErr   error
	saveCalls int
}

func (s *brokenStore) Load(ctx context.Context, name string, out any) (docstore.Revision, error) {
	if name == config.DocArticles {
		return "", s.loadErr
	}
	return "", docstore.ErrNotFound
}

func (s *brokenStore) Save(ctx context.Context, name string, doc any, rev docstore.Revision, note string) (docstore.Revision, error) {
	s.saveCalls++
	return "", nil
}

func TestRunnerSettingsDefaults(t *testing.T) {
	store := openRunnerStore(t)
	runner := NewRunner(store, newTestPipeline(&fakeFetcher{}, &fakeOracle{}))

	settings := runner.Settings(context.Background())

	assert.Equal(t, models.DefaultFeeds, settings.RSSURLs)
	assert.Equal(t, models.DefaultModel, settings.Model)
	assert.Equal(t, models.DefaultLanguage, settings.Language)
	assert.False(t, settings.EnableAutoScrape)
}

func TestRunnerSettingsMergeStored(t *testing.T) {
	store := openRunnerStore(t)

	stored := models.Settings{Model: "gpt-5-mini", EnableAutoScrape: true}
	_, err := store.Save(context.Background(), config.DocSettings, stored, "", "test settings")
	require.NoError(t, err)

	runner := NewRunner(store, newTestPipeline(&fakeFetcher{}, &fakeOracle{}))
	settings := runner.Settings(context.Background())

	assert.Equal(t, "gpt-5-mini", settings.Model)
	assert.True(t, settings.EnableAutoScrape)
	assert.Equal(t, models.DefaultFeeds, settings.RSSURLs, "missing fields fall back to defaults")
	assert.Equal(t, models.DefaultDaysToScrape, settings.DaysToScrape)
}
