package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ghfetch/ghfetch/internal/mirror"
	"github.com/ghfetch/ghfetch/internal/store"
)

// Request describes one download operation. Immutable for its lifetime.
type Request struct {
	OutputPath string
	URL        string
}

// Options configures the retry and throughput policy.
type Options struct {
	// MaxRetries is the attempt ceiling: attempts run from 0 to MaxRetries
	// inclusive.
	MaxRetries int
	// MinSpeedKB is the throughput floor in KB/s below which a mirrored
	// attempt is aborted.
	MinSpeedKB int
	// CheckInterval is the sampling period of the throughput monitor.
	CheckInterval time.Duration
	// HTTPClient issues the status probe for failed direct attempts. Nil
	// gets a short-timeout default.
	HTTPClient *http.Client
}

// FatalURLError reports an authoritative client error (403/404) on a direct,
// unmirrored URL. Retrying through mirrors cannot fix it.
type FatalURLError struct {
	StatusCode int
	URL        string
}

func (e *FatalURLError) Error() string {
	return fmt.Sprintf("url returned %d and is not mirrored: %s", e.StatusCode, e.URL)
}

// Supervisor drives the retry loop around the external transfer process:
// mirror selection, launch, throughput monitoring, result classification, and
// cleanup. Exactly one transfer process is alive at any time; retries are
// strictly serial.
type Supervisor struct {
	registry *mirror.Registry
	runner   Runner
	opts     Options
	client   *http.Client
	history  *store.Store // nil disables run recording
	logger   *slog.Logger
}

// New creates a Supervisor. history may be nil.
func New(registry *mirror.Registry, runner Runner, opts Options, history *store.Store, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 10 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Supervisor{
		registry: registry,
		runner:   runner,
		opts:     opts,
		client:   client,
		history:  history,
		logger:   logger,
	}
}

type attemptOutcome int

const (
	outcomeSuccess attemptOutcome = iota
	outcomeSlow
	outcomeExitError
)

// Run executes the download operation, retrying through different mirrors up
// to the configured ceiling. It returns nil on success, a *FatalURLError for
// authoritative direct-link failures, and a wrapped exhaustion error
// otherwise.
func (s *Supervisor) Run(ctx context.Context, req Request) error {
	run := s.beginRun(req)
	sidecar := req.OutputPath + SidecarSuffix

	lastIndex := mirror.NoIndex
	var lastErr error

	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		final := attempt == s.opts.MaxRetries

		res := s.registry.Rewrite(req.URL, lastIndex)
		if res.Mirrored {
			lastIndex = res.Index
		}

		s.logger.Info("starting attempt",
			"attempt", attempt,
			"via", res.Description,
			"final", final,
		)

		if attempt == 0 {
			s.backupStaleOutput(req.OutputPath, sidecar)
		}

		start := time.Now()
		outcome, waitErr := s.runAttempt(ctx, req, res, final)
		if ctx.Err() != nil {
			s.finishRun(run, req, attempt+1, res.Description, "failed", ctx.Err())
			return ctx.Err()
		}

		switch outcome {
		case outcomeSuccess:
			size := fileSize(req.OutputPath)
			s.logger.Info("download complete",
				"output", req.OutputPath,
				"size", humanize.Bytes(uint64(size)),
				"duration", time.Since(start).Round(time.Second),
			)
			s.recordAttempt(run, attempt, res.Description, "success", "")
			s.finishRun(run, req, attempt+1, res.Description, "success", nil)
			return nil

		case outcomeSlow:
			s.logger.Warn("attempt aborted for low throughput, retrying", "attempt", attempt)
			s.recordAttempt(run, attempt, res.Description, "slow", "")
			removeArtifacts(req.OutputPath, sidecar)
			lastErr = fmt.Errorf("throughput below %d KB/s", s.opts.MinSpeedKB)

		case outcomeExitError:
			code := exitCode(waitErr)
			s.logger.Warn("transfer process failed", "attempt", attempt, "exit_code", code)

			if !res.Mirrored {
				if status := s.probe(ctx, res.EffectiveURL); status == http.StatusForbidden || status == http.StatusNotFound {
					removeArtifacts(req.OutputPath, sidecar)
					err := &FatalURLError{StatusCode: status, URL: req.URL}
					s.recordAttempt(run, attempt, res.Description, "fatal", err.Error())
					s.finishRun(run, req, attempt+1, res.Description, "fatal", err)
					return err
				}
			}

			s.recordAttempt(run, attempt, res.Description, "exit-error", fmt.Sprintf("exit code %d", code))
			if !final {
				removeArtifacts(req.OutputPath, sidecar)
			} else {
				// Terminal exhaustion keeps partial state for diagnosis
				// and manual resume.
				s.logger.Info("preserving partial output", "output", req.OutputPath)
			}
			lastErr = fmt.Errorf("transfer exited with code %d: %w", code, waitErr)
		}
	}

	err := fmt.Errorf("download failed after %d attempts: %w", s.opts.MaxRetries+1, lastErr)
	s.finishRun(run, req, s.opts.MaxRetries+1, "", "failed", err)
	return err
}

// runAttempt launches a transfer process and supervises it until it exits or
// the monitor kills it. The first sampled interval is a warm-up grace period.
// Speed evaluation is skipped on the final attempt and on direct attempts.
func (s *Supervisor) runAttempt(ctx context.Context, req Request, res mirror.Result, final bool) (attemptOutcome, error) {
	handle, err := s.runner.Start(ctx, res.EffectiveURL, req.OutputPath)
	if err != nil {
		return outcomeExitError, err
	}

	done := make(chan error, 1)
	go func() { done <- handle.Wait() }()

	baseline := fileSize(req.OutputPath)
	floorBytes := float64(s.opts.MinSpeedKB) * 1024 * s.opts.CheckInterval.Seconds()
	warmup := true

	ticker := time.NewTicker(s.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case waitErr := <-done:
			if waitErr == nil {
				return outcomeSuccess, nil
			}
			return outcomeExitError, waitErr

		case <-ctx.Done():
			// Kill then wait, in that order, before anyone touches the
			// output files.
			_ = handle.Kill()
			<-done
			return outcomeExitError, ctx.Err()

		case <-ticker.C:
			current := fileSize(req.OutputPath)
			delta := current - baseline
			baseline = current

			if warmup {
				warmup = false
				continue
			}
			if final || !res.Mirrored {
				continue
			}

			if float64(delta) < floorBytes {
				s.logger.Warn("throughput below floor",
					"received", humanize.Bytes(uint64(max64(delta, 0))),
					"interval", s.opts.CheckInterval,
					"floor_kbps", s.opts.MinSpeedKB,
				)
				_ = handle.Kill()
				<-done
				return outcomeSlow, nil
			}

			s.logger.Debug("transfer progressing",
				"received", humanize.Bytes(uint64(max64(delta, 0))),
				"total", humanize.Bytes(uint64(current)),
			)
		}
	}
}

// probe issues a HEAD request against the URL of a failed direct attempt.
// Only an authoritative client status matters; network errors return 0 and
// the caller keeps retrying.
func (s *Supervisor) probe(ctx context.Context, url string) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0
	}
	req.Header.Set("User-Agent", "ghfetch/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0
	}
	resp.Body.Close()
	return resp.StatusCode
}

// backupStaleOutput renames aside an output file left behind by an unrelated
// earlier run. An output file with no sidecar cannot be resumed, so it is a
// stale remnant; it is preserved under a timestamped name rather than
// deleted.
func (s *Supervisor) backupStaleOutput(outputPath, sidecar string) {
	if _, err := os.Stat(outputPath); err != nil {
		return
	}
	if _, err := os.Stat(sidecar); err == nil {
		// Sidecar present: the transfer tool will resume it.
		return
	}

	backup := fmt.Sprintf("%s.%s.bak", outputPath, time.Now().Format("20060102-150405"))
	if err := os.Rename(outputPath, backup); err != nil {
		s.logger.Warn("could not back up stale output", "path", outputPath, "error", err)
		return
	}
	s.logger.Info("backed up stale output file", "backup", backup)
}

func removeArtifacts(outputPath, sidecar string) {
	_ = os.Remove(outputPath)
	_ = os.Remove(sidecar)
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// --- history recording (best effort, nil store disables) ---

func (s *Supervisor) beginRun(req Request) *store.DownloadRun {
	if s.history == nil {
		return nil
	}
	run := &store.DownloadRun{
		URL:        req.URL,
		OutputPath: req.OutputPath,
		StartTime:  time.Now(),
		Status:     "running",
	}
	if err := s.history.CreateDownloadRun(run); err != nil {
		s.logger.Debug("could not record download run", "error", err)
		return nil
	}
	return run
}

func (s *Supervisor) recordAttempt(run *store.DownloadRun, number int, via, outcome, detail string) {
	if run == nil {
		return
	}
	att := &store.DownloadAttempt{
		RunID:   run.ID,
		Number:  number,
		Mirror:  via,
		Outcome: outcome,
		Detail:  detail,
		EndTime: time.Now(),
	}
	if err := s.history.AddDownloadAttempt(att); err != nil {
		s.logger.Debug("could not record attempt", "error", err)
	}
}

func (s *Supervisor) finishRun(run *store.DownloadRun, req Request, attempts int, lastMirror, status string, cause error) {
	if run == nil {
		return
	}
	run.EndTime = time.Now()
	run.Attempts = attempts
	run.Bytes = fileSize(req.OutputPath)
	run.LastMirror = lastMirror
	run.Status = status
	if cause != nil {
		run.ErrorMessage = cause.Error()
	}
	if err := s.history.UpdateDownloadRun(run); err != nil {
		s.logger.Debug("could not finish download run record", "error", err)
	}
}
