package store

import "time"

// DownloadRun records one supervisor invocation
type DownloadRun struct {
	ID           int64
	URL          string
	OutputPath   string
	StartTime    time.Time
	EndTime      time.Time
	Attempts     int
	Bytes        int64
	LastMirror   string
	Status       string // "running", "success", "failed", "fatal"
	ErrorMessage string
}

// DownloadAttempt records a single attempt within a run
type DownloadAttempt struct {
	ID      int64
	RunID   int64
	Number  int
	Mirror  string // mirror base URL, or "direct"
	Outcome string // "success", "slow", "exit-error", "fatal"
	Detail  string
	EndTime time.Time
}
