package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"newsbrief/internal/config"
	"newsbrief/internal/docstore"
	"newsbrief/internal/ingest"
	"newsbrief/internal/models"
)

// ErrAlreadyStarted is returned when a second Start overlaps a running
// scheduler.
var ErrAlreadyStarted = errors.New("scheduler: already started")

// Scheduler periodically checks whether an automatic collection run is
// due and executes it. Whether runs happen at all, and how far apart,
// is governed by the stored settings, re-read on every poll so edits
// take effect without a restart.
type Scheduler struct {
	store    docstore.Store
	runner   *ingest.Runner
	interval time.Duration
	now      func() time.Time
	running  atomic.Bool
}

// New builds a scheduler polling at the given interval.
func New(store docstore.Store, runner *ingest.Runner, pollInterval time.Duration) *Scheduler {
	return &Scheduler{
		store:    store,
		runner:   runner,
		interval: pollInterval,
		now:      time.Now,
	}
}

// Start polls until ctx is cancelled. Only one Start may be active per
// scheduler; a run in flight when a poll fires is never doubled
// because polls execute sequentially on this loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer s.running.Store(false)

	log.Info().Dur("poll_interval", s.interval).Msg("Scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one poll: re-read settings, decide whether a run is due,
// and execute it if so.
func (s *Scheduler) tick(ctx context.Context) {
	settings := s.runner.Settings(ctx)
	if !settings.EnableAutoScrape {
		return
	}

	var stats models.Stats
	docstore.LoadOr(ctx, s.store, config.DocStats, &stats)

	if s.now().Sub(stats.LastAutoScrape) <= settings.UpdateInterval() {
		return
	}
	s.runOnce(ctx, &stats)
}

func (s *Scheduler) runOnce(ctx context.Context, stats *models.Stats) {
	log.Info().Msg("Starting automatic collection run")

	rl := newRunLog(s.store, s.now)
	rl.Add(ctx, "Starting automatic background collection...")

	res, err := s.runner.Run(ctx, "Auto-Scrape Update", ingest.Hooks{
		Status: func(msg string) { rl.Add(ctx, msg) },
	})
	if err != nil {
		log.Error().Err(err).Msg("Automatic collection run failed")
		rl.Addf(ctx, "Error during auto-scrape: %v", err)
		// Record the attempt anyway so a persistently failing run
		// waits out the configured interval instead of retrying on
		// every poll.
		s.recordRun(ctx, stats, res)
		rl.Finish(ctx, models.StatusError)
		return
	}

	if n := res.Changes(); n > 0 {
		rl.Addf(ctx, "Saved %d changes.", n)
	} else {
		rl.Add(ctx, "No changes found.")
	}
	s.recordRun(ctx, stats, res)
	rl.Add(ctx, "Auto-Scrape Finished Successfully.")
	rl.Finish(ctx, models.StatusIdle)

	log.Info().Int("changes", res.Changes()).Msg("Automatic collection run finished")
}

// recordRun persists the run's footprint in the stats document: the
// per-source counts of new articles and the completion instant the
// next poll measures the interval against.
func (s *Scheduler) recordRun(ctx context.Context, stats *models.Stats, res ingest.Result) {
	finished := s.now()
	day := finished.Format(models.DateFormat)
	for source, n := range res.NewBySource {
		stats.AddScraped(day, source, n)
	}
	stats.LastAutoScrape = finished

	if _, err := s.store.Save(ctx, config.DocStats, stats, "", "Update stats: Auto-Scrape"); err != nil {
		log.Warn().Err(err).Msg("Failed to save stats")
	}
}
