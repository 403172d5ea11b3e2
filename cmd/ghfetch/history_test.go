package main

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghfetch/ghfetch/internal/config"
	"github.com/ghfetch/ghfetch/internal/store"
)

// seedHistory points the global config at a temp database and records one
// finished run with two attempts, returning its ID.
func seedHistory(t *testing.T) int64 {
	t.Helper()

	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	globalCfg = config.DefaultConfig()
	globalCfg.History.DBPath = filepath.Join(t.TempDir(), "history.db")
	t.Cleanup(func() { globalCfg = nil })

	st, err := store.New(globalCfg.History.DBPath, logger)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer st.Close()

	run := &store.DownloadRun{
		URL:        "https://github.com/owner/repo/archive/main.zip",
		OutputPath: "/tmp/main.zip",
		StartTime:  time.Now().Add(-time.Minute),
		Status:     "running",
	}
	if err := st.CreateDownloadRun(run); err != nil {
		t.Fatalf("CreateDownloadRun: %v", err)
	}

	for i, outcome := range []string{"slow", "success"} {
		att := &store.DownloadAttempt{
			RunID:   run.ID,
			Number:  i,
			Mirror:  "https://mirror.example.com/",
			Outcome: outcome,
			EndTime: time.Now(),
		}
		if err := st.AddDownloadAttempt(att); err != nil {
			t.Fatalf("AddDownloadAttempt: %v", err)
		}
	}

	run.EndTime = time.Now()
	run.Attempts = 2
	run.Bytes = 4096
	run.LastMirror = "https://mirror.example.com/"
	run.Status = "success"
	if err := st.UpdateDownloadRun(run); err != nil {
		t.Fatalf("UpdateDownloadRun: %v", err)
	}

	return run.ID
}

func TestHistoryListsRuns(t *testing.T) {
	seedHistory(t)

	historyLimit = 20
	if err := historyRun(nil, nil); err != nil {
		t.Fatalf("historyRun: %v", err)
	}
}

func TestHistoryDetailShowsAttempts(t *testing.T) {
	id := seedHistory(t)

	historyID = id
	t.Cleanup(func() { historyID = 0 })

	if err := historyRun(nil, nil); err != nil {
		t.Fatalf("historyRun --id %d: %v", id, err)
	}
}

func TestHistoryDetailMissingRun(t *testing.T) {
	seedHistory(t)

	historyID = 99999
	t.Cleanup(func() { historyID = 0 })

	if err := historyRun(nil, nil); err == nil {
		t.Error("expected error for a run ID that does not exist")
	}
}
