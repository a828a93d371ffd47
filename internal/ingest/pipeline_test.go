package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsbrief/internal/models"
	"newsbrief/internal/oracle"
)

type fakeFetcher struct {
	feeds map[string][]models.Entry
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]models.Entry, error) {
	f.calls = append(f.calls, url)
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	return f.feeds[url], nil
}

type fakeOracle struct {
	outcomes map[string]oracle.Outcome
	calls    []oracle.Request
}

func (f *fakeOracle) Process(ctx context.Context, req oracle.Request) oracle.Outcome {
	f.calls = append(f.calls, req)
	if out, ok := f.outcomes[req.Title]; ok {
		return out
	}
	return oracle.Processed("처리됨: "+req.Title, "한국어 요약: "+req.Title)
}

var testNow = time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)

func newTestPipeline(fetcher Fetcher, o oracle.Oracle) *Pipeline {
	p := NewPipeline(fetcher, o)
	p.now = func() time.Time { return testNow }
	return p
}

func testSettings(urls ...string) models.Settings {
	settings := models.DefaultSettings()
	settings.RSSURLs = urls
	return settings
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func entryAt(title, link string, published *time.Time) models.Entry {
	return models.Entry{
		Title:       title,
		Link:        link,
		Description: "본문이 스무 글자를 넘도록 길게 적어 둔 설명입니다.",
		Published:   published,
		Source:      "https://example.com/rss",
	}
}

func statusRecorder(lines *[]string) Hooks {
	return Hooks{Status: func(msg string) { *lines = append(*lines, msg) }}
}

func TestCollectFiltersWindow(t *testing.T) {
	feedURL := "https://example.com/rss"
	fetcher := &fakeFetcher{feeds: map[string][]models.Entry{
		feedURL: {
			entryAt("fresh", "https://example.com/fresh", timePtr(testNow.Add(-1*time.Hour))),
			entryAt("edge", "https://example.com/edge", timePtr(testNow.Add(-3*24*time.Hour))),
			entryAt("almost", "https://example.com/almost", timePtr(testNow.Add(-4*24*time.Hour+time.Minute))),
			entryAt("stale", "https://example.com/stale", timePtr(testNow.Add(-4*24*time.Hour))),
			entryAt("undated", "https://example.com/undated", nil),
			entryAt("linkless", "", timePtr(testNow)),
		},
	}}
	p := newTestPipeline(fetcher, &fakeOracle{})

	var lines []string
	entries := p.Collect(context.Background(), testSettings(feedURL), statusRecorder(&lines))

	var links []string
	for _, e := range entries {
		links = append(links, e.Link)
	}
	assert.Equal(t, []string{
		"https://example.com/fresh",
		"https://example.com/edge",
		"https://example.com/almost",
		"https://example.com/undated",
	}, links)

	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "Fetching RSS feeds...")
	assert.Contains(t, joined, "Found 4 articles within the last 3 days. Starting processing...")
}

func TestCollectSkipsFailingFeed(t *testing.T) {
	badURL := "https://down.example.com/rss"
	goodURL := "https://up.example.com/rss"
	fetcher := &fakeFetcher{
		feeds: map[string][]models.Entry{
			goodURL: {entryAt("alive", "https://up.example.com/alive", timePtr(testNow))},
		},
		errs: map[string]error{badURL: errors.New("connection refused")},
	}
	p := newTestPipeline(fetcher, &fakeOracle{})

	var lines []string
	entries := p.Collect(context.Background(), testSettings(badURL, goodURL), statusRecorder(&lines))

	require.Len(t, entries, 1)
	assert.Equal(t, "https://up.example.com/alive", entries[0].Link)
	assert.Equal(t, []string{badURL, goodURL}, fetcher.calls)
	assert.Contains(t, strings.Join(lines, "\n"), "[WARN] Failed to fetch feed https://down.example.com/rss")
}

func TestMergeCreatesArticle(t *testing.T) {
	o := &fakeOracle{outcomes: map[string]oracle.Outcome{
		"GPU 뉴스": oracle.Processed("번역된 제목", "새 GPU 아키텍처에 대한 한국어 요약입니다."),
	}}
	p := newTestPipeline(&fakeFetcher{}, o)

	published := testNow.Add(-2 * time.Hour)
	entries := []models.Entry{entryAt("GPU 뉴스", "https://example.com/gpu", timePtr(published))}

	var lines []string
	res := p.Merge(context.Background(), entries, nil, testSettings(), nil, statusRecorder(&lines))

	assert.Equal(t, 1, res.New)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, map[string]int{"https://example.com/rss": 1}, res.NewBySource)
	require.Len(t, res.Articles, 1)

	article := res.Articles[0]
	assert.NotEmpty(t, article.ID)
	assert.Equal(t, "https://example.com/gpu", article.Link)
	assert.Equal(t, "번역된 제목", article.Title)
	assert.Equal(t, "새 GPU 아키텍처에 대한 한국어 요약입니다.", article.Summary)
	assert.Equal(t, "https://example.com/rss", article.Source)
	assert.True(t, article.Timestamp.Equal(published))
	assert.Equal(t, published.Format(models.DateFormat), article.Date)

	require.Len(t, o.calls, 1)
	assert.Equal(t, "GPU 뉴스", o.calls[0].Title)
	assert.Equal(t, models.DefaultFilterPrompt, o.calls[0].Criterion)
	assert.Equal(t, models.DefaultLanguage, o.calls[0].Language)
	assert.Contains(t, strings.Join(lines, "\n"), "[SUCCESS] Processed: 번역된 제목")
}

func TestMergeDeduplicatesWithinRun(t *testing.T) {
	o := &fakeOracle{}
	p := newTestPipeline(&fakeFetcher{}, o)

	link := "https://example.com/dup"
	entries := []models.Entry{
		entryAt("중복 기사", link, timePtr(testNow.Add(-time.Hour))),
		entryAt("중복 기사", link, timePtr(testNow.Add(-time.Hour))),
	}

	res := p.Merge(context.Background(), entries, nil, testSettings(), make(map[string]oracle.Outcome), Hooks{})

	assert.Equal(t, 1, res.New)
	assert.Len(t, res.Articles, 1)
	assert.Len(t, o.calls, 1)
}

func TestNeedsReprocess(t *testing.T) {
	tests := []struct {
		name    string
		summary string
		want    bool
	}{
		{name: "empty", summary: "", want: true},
		{name: "whitespace only", summary: "   \n", want: true},
		{name: "failure marker", summary: "Error using AI model: timeout", want: true},
		{name: "untranslated english", summary: "An English summary that slipped through.", want: true},
		{name: "too short placeholder", summary: TooShortSummary, want: true},
		{name: "korean summary", summary: "정상적인 한국어 요약입니다.", want: false},
		{name: "leading digit", summary: "3가지 소식을 정리했습니다.", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, needsReprocess(tt.summary))
		})
	}
}

func TestMergeReprocessesBrokenSummary(t *testing.T) {
	o := &fakeOracle{outcomes: map[string]oracle.Outcome{
		"복구 기사": oracle.Processed("복구된 제목", "이제는 정상적인 한국어 요약입니다."),
	}}
	p := newTestPipeline(&fakeFetcher{}, o)

	published := testNow.Add(-3 * time.Hour)
	existing := models.NewArticle("https://example.com/broken")
	existing.Title = "복구 기사"
	existing.Summary = FailureSummary("timeout")
	existing.SetTimestamp(published)

	entries := []models.Entry{entryAt("복구 기사", existing.Link, timePtr(published))}

	var lines []string
	res := p.Merge(context.Background(), entries, []*models.Article{existing}, testSettings(), nil, statusRecorder(&lines))

	assert.Equal(t, 0, res.New)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, "복구된 제목", existing.Title)
	assert.Equal(t, "이제는 정상적인 한국어 요약입니다.", existing.Summary)
	assert.Len(t, o.calls, 1)
	assert.Contains(t, strings.Join(lines, "\n"), "Reprocessing: 복구 기사")
}

func TestMergeLeavesHealthyArticleAlone(t *testing.T) {
	o := &fakeOracle{}
	p := newTestPipeline(&fakeFetcher{}, o)

	published := testNow.Add(-3 * time.Hour)
	existing := models.NewArticle("https://example.com/healthy")
	existing.Title = "멀쩡한 기사"
	existing.Summary = "이미 충분한 한국어 요약입니다."
	existing.SetTimestamp(published)

	entries := []models.Entry{entryAt("멀쩡한 기사", existing.Link, timePtr(published))}
	res := p.Merge(context.Background(), entries, []*models.Article{existing}, testSettings(), nil, Hooks{})

	assert.Equal(t, 0, res.Changes())
	assert.Empty(t, o.calls)
	assert.Equal(t, "이미 충분한 한국어 요약입니다.", existing.Summary)
}

func TestMergeRefreshesTimestamp(t *testing.T) {
	o := &fakeOracle{}
	p := newTestPipeline(&fakeFetcher{}, o)

	existing := models.NewArticle("https://example.com/bumped")
	existing.Title = "갱신 기사"
	existing.Summary = "이미 충분한 한국어 요약입니다."
	existing.SetTimestamp(testNow.Add(-48 * time.Hour))

	bumped := testNow.Add(-time.Hour)
	entries := []models.Entry{entryAt("갱신 기사", existing.Link, timePtr(bumped))}

	var lines []string
	res := p.Merge(context.Background(), entries, []*models.Article{existing}, testSettings(), nil, statusRecorder(&lines))

	assert.Equal(t, 1, res.Updated)
	assert.True(t, existing.Timestamp.Equal(bumped))
	assert.Equal(t, bumped.Format(models.DateFormat), existing.Date)
	assert.Empty(t, o.calls)
	assert.Contains(t, strings.Join(lines, "\n"), "[INFO] Timestamp updated for: 갱신 기사")
}

func TestMergeDropsIrrelevantNewArticle(t *testing.T) {
	o := &fakeOracle{outcomes: map[string]oracle.Outcome{
		"스포츠 소식": oracle.Irrelevant(),
	}}
	p := newTestPipeline(&fakeFetcher{}, o)

	entries := []models.Entry{entryAt("스포츠 소식", "https://example.com/sports", timePtr(testNow))}

	var lines []string
	res := p.Merge(context.Background(), entries, nil, testSettings(), nil, statusRecorder(&lines))

	assert.Equal(t, 0, res.Changes())
	assert.Empty(t, res.Articles)
	assert.Contains(t, strings.Join(lines, "\n"), "[SKIP] Irrelevant (AI Filter): 스포츠 소식")
}

func TestMergeKeepsIrrelevantExistingArticle(t *testing.T) {
	o := &fakeOracle{outcomes: map[string]oracle.Outcome{
		"경계선 기사": oracle.Irrelevant(),
	}}
	p := newTestPipeline(&fakeFetcher{}, o)

	existing := models.NewArticle("https://example.com/borderline")
	existing.Title = "경계선 기사"
	existing.Summary = "A summary that still needs translating."
	existing.SetTimestamp(testNow.Add(-36 * time.Hour))

	bumped := testNow.Add(-time.Hour)
	entries := []models.Entry{entryAt("경계선 기사", existing.Link, timePtr(bumped))}

	res := p.Merge(context.Background(), entries, []*models.Article{existing}, testSettings(), nil, Hooks{})

	// The verdict does not erase what is already stored.
	assert.Equal(t, "경계선 기사", existing.Title)
	assert.Equal(t, "A summary that still needs translating.", existing.Summary)
	assert.True(t, existing.Timestamp.Equal(bumped))
	assert.Equal(t, 1, res.Updated)
}

func TestMergeShortContentSkipsOracle(t *testing.T) {
	o := &fakeOracle{}
	p := newTestPipeline(&fakeFetcher{}, o)

	entry := entryAt("짧은 기사", "https://example.com/short", timePtr(testNow))
	entry.Description = "짧음"

	var lines []string
	res := p.Merge(context.Background(), []models.Entry{entry}, nil, testSettings(), nil, statusRecorder(&lines))

	assert.Equal(t, 1, res.New)
	assert.Empty(t, o.calls)
	require.Len(t, res.Articles, 1)
	assert.Equal(t, TooShortSummary, res.Articles[0].Summary)
	assert.Equal(t, "짧은 기사", res.Articles[0].Title)
	assert.Contains(t, strings.Join(lines, "\n"), "[SKIP] Content too short: 짧은 기사...")
}

func TestMergeStoresFailureMarker(t *testing.T) {
	o := &fakeOracle{outcomes: map[string]oracle.Outcome{
		"실패 기사": oracle.Failed("rate limited"),
	}}
	p := newTestPipeline(&fakeFetcher{}, o)

	entries := []models.Entry{entryAt("실패 기사", "https://example.com/failed", timePtr(testNow))}

	var lines []string
	res := p.Merge(context.Background(), entries, nil, testSettings(), nil, statusRecorder(&lines))

	assert.Equal(t, 1, res.New)
	require.Len(t, res.Articles, 1)
	assert.Equal(t, "실패 기사", res.Articles[0].Title)
	assert.Equal(t, "Error using AI model: rate limited", res.Articles[0].Summary)
	assert.True(t, needsReprocess(res.Articles[0].Summary))
	assert.Contains(t, strings.Join(lines, "\n"), "[WARN] Processing failed: 실패 기사")
}

func TestMergeMemoizesVerdicts(t *testing.T) {
	o := &fakeOracle{}
	p := newTestPipeline(&fakeFetcher{}, o)

	entries := []models.Entry{entryAt("메모 기사", "https://example.com/memo", timePtr(testNow))}
	memo := make(map[string]oracle.Outcome)

	first := p.Merge(context.Background(), entries, nil, testSettings(), memo, Hooks{})
	second := p.Merge(context.Background(), entries, nil, testSettings(), memo, Hooks{})

	assert.Equal(t, 1, first.New)
	assert.Equal(t, 1, second.New)
	assert.Len(t, o.calls, 1)
}

func TestMergeReportsProgress(t *testing.T) {
	o := &fakeOracle{}
	p := newTestPipeline(&fakeFetcher{}, o)

	var entries []models.Entry
	for _, link := range []string{"a", "b", "c", "d"} {
		entries = append(entries, entryAt("기사 "+link, "https://example.com/"+link, timePtr(testNow)))
	}

	var fracs []float64
	hooks := Hooks{Progress: func(frac float64) { fracs = append(fracs, frac) }}
	p.Merge(context.Background(), entries, nil, testSettings(), nil, hooks)

	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, fracs)
}

func TestMergeSortsNewestFirst(t *testing.T) {
	o := &fakeOracle{}
	p := newTestPipeline(&fakeFetcher{}, o)

	entries := []models.Entry{
		entryAt("오래된 기사", "https://example.com/old", timePtr(testNow.Add(-40*time.Hour))),
		entryAt("최신 기사", "https://example.com/new", timePtr(testNow.Add(-time.Hour))),
		entryAt("중간 기사", "https://example.com/mid", timePtr(testNow.Add(-20*time.Hour))),
	}

	res := p.Merge(context.Background(), entries, nil, testSettings(), nil, Hooks{})

	require.Len(t, res.Articles, 3)
	assert.Equal(t, "https://example.com/new", res.Articles[0].Link)
	assert.Equal(t, "https://example.com/mid", res.Articles[1].Link)
	assert.Equal(t, "https://example.com/old", res.Articles[2].Link)
}

func TestMergeWithoutEntries(t *testing.T) {
	p := newTestPipeline(&fakeFetcher{}, &fakeOracle{})

	var lines []string
	var fracs []float64
	hooks := Hooks{
		Status:   func(msg string) { lines = append(lines, msg) },
		Progress: func(frac float64) { fracs = append(fracs, frac) },
	}

	res := p.Merge(context.Background(), nil, nil, testSettings(), nil, hooks)

	assert.Equal(t, 0, res.Changes())
	assert.Equal(t, []float64{1}, fracs)
	assert.Contains(t, strings.Join(lines, "\n"), "Completed! New: 0, Updated: 0")
}
