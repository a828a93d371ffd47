package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"newsbrief/internal/config"
	"newsbrief/internal/docstore"
	"newsbrief/internal/models"
)

const (
	// flushBatch is how many new lines accumulate before an
	// incremental flush.
	flushBatch = 5
	// flushWindow bounds the persisted tail during a run.
	flushWindow = 20
	// finalFlushWindow bounds the persisted tail once a run ends.
	finalFlushWindow = 50
)

// runLog buffers the status lines of one run and writes the tail to
// the document store in batches, so the run can be followed remotely
// without a write per line. Flush failures are logged and ignored; a
// broken log channel must never sink a run.
type runLog struct {
	store docstore.Store
	now   func() time.Time
	lines []models.LogEntry
	since int
}

func newRunLog(store docstore.Store, now func() time.Time) *runLog {
	return &runLog{store: store, now: now}
}

func (l *runLog) Add(ctx context.Context, msg string) {
	l.lines = append(l.lines, models.LogEntry{
		Timestamp: l.now().Format(models.LogTimeFormat),
		Message:   msg,
	})
	l.since++
	if l.since >= flushBatch {
		l.flush(ctx, models.StatusRunning, flushWindow)
	}
}

func (l *runLog) Addf(ctx context.Context, format string, args ...any) {
	l.Add(ctx, fmt.Sprintf(format, args...))
}

// Finish writes the final tail with the run's terminal status. It
// always flushes, even when nothing was added since the last batch.
func (l *runLog) Finish(ctx context.Context, status string) {
	l.flush(ctx, status, finalFlushWindow)
}

func (l *runLog) flush(ctx context.Context, status string, window int) {
	l.since = 0

	lines := l.lines
	if len(lines) > window {
		lines = lines[len(lines)-window:]
	}

	doc := models.RunLog{
		Status:      status,
		LastUpdated: l.now().Format(models.LogTimeFormat),
		Logs:        lines,
	}
	if _, err := l.store.Save(ctx, config.DocRunLog, doc, "", "Update execution logs"); err != nil {
		log.Warn().Err(err).Msg("Failed to save run log")
	}
}
