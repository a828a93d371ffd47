package models

// LogTimeFormat is the human-readable timestamp format used in run-log
// entries and the last_updated marker.
const LogTimeFormat = "2006-01-02 15:04:05"

// Run-log status values.
const (
	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusError   = "error"
)

// LogEntry is one timestamped line of run output.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// RunLog is the persisted tail of the most recent automatic run. It is
// rewritten in batches while the run progresses so the activity can be
// followed remotely without appending to an ever-growing file.
type RunLog struct {
	Status      string     `json:"status"`
	LastUpdated string     `json:"last_updated"`
	Logs        []LogEntry `json:"logs"`
}

// NewRunLog returns an idle run log with no entries.
func NewRunLog() RunLog {
	return RunLog{Status: StatusIdle, Logs: []LogEntry{}}
}
