package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"newsbrief/internal/feed"
	"newsbrief/internal/models"
	"newsbrief/internal/oracle"
)

// feedFetchTimeout bounds how long a single feed may take before the
// run moves on to the next one.
const feedFetchTimeout = 2 * time.Minute

// TooShortSummary marks articles whose feed body was too thin to be
// worth sending out for summarizing.
const TooShortSummary = "Content too short to summarize."

// FailureSummary renders the stored marker for a failed verdict. The
// marker keeps the word Error in front so the reprocess heuristic
// picks these articles up again on a later run.
func FailureSummary(reason string) string {
	return "Error using AI model: " + reason
}

// StatusFunc receives human-readable progress lines.
type StatusFunc func(msg string)

// ProgressFunc receives completion fractions in [0, 1].
type ProgressFunc func(frac float64)

// Hooks carries optional observers for one run. Nil fields are
// silently skipped.
type Hooks struct {
	Status   StatusFunc
	Progress ProgressFunc
}

func (h Hooks) status(msg string) {
	if h.Status != nil {
		h.Status(msg)
	}
}

func (h Hooks) statusf(format string, args ...any) {
	h.status(fmt.Sprintf(format, args...))
}

func (h Hooks) progress(frac float64) {
	if h.Progress != nil {
		h.Progress(frac)
	}
}

// Fetcher retrieves the entries of one feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]models.Entry, error)
}

// Pipeline turns feed entries into a reconciled article collection.
type Pipeline struct {
	fetcher Fetcher
	oracle  oracle.Oracle
	now     func() time.Time
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(fetcher Fetcher, o oracle.Oracle) *Pipeline {
	return &Pipeline{fetcher: fetcher, oracle: o, now: time.Now}
}

// Result summarizes one merge pass.
type Result struct {
	Articles    []*models.Article
	New         int
	Updated     int
	NewBySource map[string]int
}

// Changes returns how many articles were added or modified.
func (r *Result) Changes() int {
	return r.New + r.Updated
}

// Collect fetches every configured feed and keeps the entries that
// fall within the scrape window. The full candidate set is gathered
// before any processing so progress fractions have a stable
// denominator. A failing feed is logged and skipped; it cannot sink
// the run.
func (p *Pipeline) Collect(ctx context.Context, settings models.Settings, hooks Hooks) []models.Entry {
	hooks.status("Fetching RSS feeds...")

	var entries []models.Entry
	for _, url := range settings.RSSURLs {
		feedCtx, cancel := context.WithTimeout(ctx, feedFetchTimeout)
		fetched, err := p.fetcher.Fetch(feedCtx, url)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("feed", url).Msg("Failed to fetch feed")
			hooks.statusf("[WARN] Failed to fetch feed %s: %v", url, err)
			continue
		}

		now := p.now()
		for _, entry := range fetched {
			if withinWindow(&entry, now, settings.DaysToScrape) {
				entries = append(entries, entry)
			}
		}
	}

	hooks.statusf("Found %d articles within the last %d days. Starting processing...",
		len(entries), settings.DaysToScrape)
	return entries
}

// withinWindow reports whether an entry belongs in this run: it must
// carry a link, and when it carries a publication time that time must
// be at most days whole days old. Entries without any time pass
// through so feeds with sparse metadata still flow; they get "now" as
// their effective time later.
func withinWindow(e *models.Entry, now time.Time, days int) bool {
	if e.Link == "" {
		return false
	}
	ts := e.EffectiveTime()
	if ts == nil {
		return true
	}
	return int(now.Sub(*ts).Hours()/24) <= days
}

// needsReprocess reports whether a stored summary should be rebuilt:
// summaries that are empty, carry an error marker, or never got
// translated (they still start with an ASCII letter) all qualify.
func needsReprocess(summary string) bool {
	trimmed := strings.TrimSpace(summary)
	if trimmed == "" {
		return true
	}
	if strings.Contains(trimmed, "Error") {
		return true
	}
	r, _ := utf8.DecodeRuneInString(trimmed)
	return r < utf8.RuneSelf && unicode.IsLetter(r)
}

// Merge folds collected entries into the article collection, mutating
// articles in place and appending new ones. Existing articles are
// matched by link; their timestamps always follow the feed while their
// content is rebuilt only when the stored summary needs it. Verdicts
// are memoized by link in memo so a re-merge after a storage conflict
// does not consult the oracle twice for the same article.
func (p *Pipeline) Merge(ctx context.Context, entries []models.Entry, articles []*models.Article, settings models.Settings, memo map[string]oracle.Outcome, hooks Hooks) Result {
	res := Result{Articles: articles, NewBySource: make(map[string]int)}

	byLink := make(map[string]*models.Article, len(articles))
	for _, a := range articles {
		if _, ok := byLink[a.Link]; !ok {
			byLink[a.Link] = a
		}
	}

	total := len(entries)
	for i := range entries {
		entry := &entries[i]
		hooks.progress(float64(i) / float64(total))

		existing := byLink[entry.Link]
		isNew := existing == nil
		shouldProcess := isNew || needsReprocess(existing.Summary)

		var title, summary string
		applyContent := false
		if shouldProcess {
			if !isNew {
				hooks.statusf("Reprocessing: %s", entry.Title)
			}

			body := feed.BodyText(entry)
			if feed.TooShort(body) {
				title, summary = entry.Title, TooShortSummary
				applyContent = true
				hooks.statusf("[SKIP] Content too short: %s...", feed.Truncate(entry.Title, 30))
			} else {
				hooks.statusf("[PROCESSING] Analyzing: %s...", entry.Title)

				out := p.consult(ctx, memo, entry, body, settings)
				switch out.Kind {
				case oracle.KindIrrelevant:
					hooks.statusf("[SKIP] Irrelevant (AI Filter): %s", entry.Title)
					if isNew {
						// Filtered-out articles are never created.
						continue
					}
					// Existing article on a borderline re-evaluation:
					// keep its content, still refresh the timestamp.
				case oracle.KindFailed:
					title, summary = entry.Title, FailureSummary(out.Reason)
					applyContent = true
					hooks.statusf("[WARN] Processing failed: %s (%s)", entry.Title, out.Reason)
				default:
					title, summary = out.Title, out.Summary
					applyContent = true
					hooks.statusf("[SUCCESS] Processed: %s\n  > Summary: %s...", title, summarySnippet(summary))
				}
			}
		}

		ts := p.effectiveTimestamp(entry)

		if isNew {
			article := models.NewArticle(entry.Link)
			article.Title = title
			article.Summary = summary
			article.Source = entry.Source
			article.SetTimestamp(ts)
			res.Articles = append(res.Articles, article)
			byLink[entry.Link] = article
			res.New++
			res.NewBySource[entry.Source]++
			continue
		}

		changed := applyContent
		if applyContent {
			existing.Title = title
			existing.Summary = summary
		}
		if !existing.Timestamp.Equal(ts) {
			hooks.statusf("[INFO] Timestamp updated for: %s", entry.Title)
			changed = true
		}
		existing.SetTimestamp(ts)
		if changed {
			res.Updated++
		}
	}

	hooks.progress(1.0)

	models.SortArticles(res.Articles)
	hooks.statusf("Completed! New: %d, Updated: %d", res.New, res.Updated)
	return res
}

func (p *Pipeline) consult(ctx context.Context, memo map[string]oracle.Outcome, entry *models.Entry, body string, settings models.Settings) oracle.Outcome {
	if out, ok := memo[entry.Link]; ok {
		return out
	}

	out := p.oracle.Process(ctx, oracle.Request{
		Title:         entry.Title,
		Body:          body,
		Criterion:     settings.AIFilterPrompt,
		Language:      settings.Language,
		Model:         settings.Model,
		FallbackModel: settings.FallbackModel,
	})
	if memo != nil {
		memo[entry.Link] = out
	}
	return out
}

// effectiveTimestamp returns the feed's claim about publication time,
// falling back to the current instant when the feed offered none.
func (p *Pipeline) effectiveTimestamp(e *models.Entry) time.Time {
	if ts := e.EffectiveTime(); ts != nil {
		return *ts
	}
	return p.now()
}

func summarySnippet(s string) string {
	return strings.ReplaceAll(feed.Truncate(s, 50), "\n", " ")
}
