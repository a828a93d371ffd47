package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"newsbrief/internal/config"
	"newsbrief/internal/docstore"
	"newsbrief/internal/models"
	"newsbrief/internal/oracle"
)

// saveAttempts bounds how often a run re-merges after losing a
// conditional save to a concurrent writer.
const saveAttempts = 3

// Runner executes full collection runs against a document store.
type Runner struct {
	store    docstore.Store
	pipeline *Pipeline
}

// NewRunner wires a runner from its collaborators.
func NewRunner(store docstore.Store, pipeline *Pipeline) *Runner {
	return &Runner{store: store, pipeline: pipeline}
}

// Settings loads the stored settings document and fills in defaults
// for anything missing. A store that cannot produce the document
// yields pure defaults so a fresh deployment works out of the box.
func (r *Runner) Settings(ctx context.Context) models.Settings {
	var settings models.Settings
	docstore.LoadOr(ctx, r.store, config.DocSettings, &settings)
	settings.ApplyDefaults()
	return settings
}

// Run performs one collection pass: fetch feeds, merge into the
// stored article collection, and persist the result under the given
// commit note. Feeds are fetched and the oracle consulted at most once
// per article even when a storage conflict forces a re-merge against a
// fresher copy of the collection. A run that produced no changes does
// not write at all.
func (r *Runner) Run(ctx context.Context, note string, hooks Hooks) (Result, error) {
	settings := r.Settings(ctx)

	hooks.status("Initializing...")
	entries := r.pipeline.Collect(ctx, settings, hooks)

	memo := make(map[string]oracle.Outcome)
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		articles, rev, err := r.loadArticles(ctx)
		if err != nil {
			return Result{}, err
		}

		res := r.pipeline.Merge(ctx, entries, articles, settings, memo, hooks)
		if res.Changes() == 0 {
			return res, nil
		}

		_, err = r.store.Save(ctx, config.DocArticles, res.Articles, rev, note)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, docstore.ErrConflict) && attempt < saveAttempts {
			log.Warn().Int("attempt", attempt).Msg("Article collection changed underneath, re-merging")
			hooks.status("Collection changed underneath, re-merging...")
			continue
		}
		return Result{}, fmt.Errorf("failed to save articles: %w", err)
	}

	return Result{}, fmt.Errorf("failed to save articles after %d attempts: %w", saveAttempts, docstore.ErrConflict)
}

// loadArticles reads the stored collection. A missing document is an
// empty collection; any other load error aborts the run so a flaky
// backend cannot make a merge clobber existing data.
func (r *Runner) loadArticles(ctx context.Context) ([]*models.Article, docstore.Revision, error) {
	var articles []*models.Article
	rev, err := r.store.Load(ctx, config.DocArticles, &articles)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to load articles: %w", err)
	}
	return articles, rev, nil
}
