package update

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ghfetch/ghfetch/internal/mirror"
)

// VersionMarker is the token that identifies the release-version line inside
// a ghfetch build. The remote copy and the installed copy both carry one line
// of the form "marker version vX.Y"; the third whitespace-delimited field of
// that line is the version.
const VersionMarker = "ghfetch-release"

// Outcome reports what a version check decided.
type Outcome int

const (
	// OutcomeSkipped means the cooldown window suppressed the check.
	OutcomeSkipped Outcome = iota
	// OutcomeUpToDate means the remote copy is not newer.
	OutcomeUpToDate
	// OutcomeUpdated means the installed copy was replaced; the user must
	// re-invoke to pick it up.
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeUpToDate:
		return "up to date"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// Options configures a Checker.
type Options struct {
	// SourceURL is the canonical remote location of the tool itself.
	SourceURL string
	// InstallPath is the file to replace on update. Defaults to the running
	// executable.
	InstallPath string
	// StateFile persists the epoch-seconds timestamp of the last check.
	StateFile string
	// Cooldown suppresses passive checks more frequent than this.
	Cooldown time.Duration
	// LocalVersion is the running copy's version (e.g. "v1.4.0").
	LocalVersion string
	// ConnectTimeout bounds the remote fetch.
	ConnectTimeout time.Duration
}

// Checker fetches the remote copy of the tool, compares versions, and stages
// a replacement when the remote is newer. The fetch is routed through the
// same mirror registry the downloader uses.
type Checker struct {
	opts     Options
	registry *mirror.Registry
	client   *http.Client
	logger   *slog.Logger

	now func() time.Time
}

// NewChecker creates a Checker. The registry may route the source URL through
// a mirror; client may be nil, in which case one bounded by ConnectTimeout is
// built.
func NewChecker(opts Options, registry *mirror.Registry, client *http.Client, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: opts.ConnectTimeout}
	}
	return &Checker{
		opts:     opts,
		registry: registry,
		client:   client,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckPassive runs a cooldown-gated check. Failures are logged and
// swallowed: a broken update channel must never block a download run. The
// caller should stop and ask for a re-invoke on OutcomeUpdated.
func (c *Checker) CheckPassive(ctx context.Context) Outcome {
	due, err := c.due()
	if err != nil {
		c.logger.Debug("could not read update state, checking anyway", "error", err)
	}
	if !due {
		return OutcomeSkipped
	}

	outcome, err := c.check(ctx)
	if err != nil {
		c.logger.Debug("passive update check failed", "error", err)
		return OutcomeUpToDate
	}
	return outcome
}

// CheckForced runs an unconditional check. Fetch or parse failures are
// returned to the caller and are fatal in this mode.
func (c *Checker) CheckForced(ctx context.Context) (Outcome, error) {
	return c.check(ctx)
}

// due reports whether the cooldown window has elapsed since the last check.
func (c *Checker) due() (bool, error) {
	data, err := os.ReadFile(c.opts.StateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return true, err
	}
	last, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return true, fmt.Errorf("parsing update state: %w", err)
	}
	return c.now().Unix()-last >= int64(c.opts.Cooldown/time.Second), nil
}

// check fetches the remote copy, compares versions, and replaces the install
// path if the remote is newer. The state timestamp is written after every
// attempt, success or failure, so persistent failures do not retry on every
// run.
func (c *Checker) check(ctx context.Context) (Outcome, error) {
	defer c.writeState()

	tmpPath, err := c.fetchToTemp(ctx)
	if err != nil {
		return OutcomeUpToDate, fmt.Errorf("fetching update source: %w", err)
	}
	defer os.Remove(tmpPath)

	remote, err := versionFromFile(tmpPath)
	if err != nil {
		return OutcomeUpToDate, fmt.Errorf("parsing remote version: %w", err)
	}

	local, err := c.localVersion()
	if err != nil {
		return OutcomeUpToDate, fmt.Errorf("determining local version: %w", err)
	}

	c.logger.Debug("version check", "local", local, "remote", remote)

	if CompareVersions(remote, local) <= 0 {
		return OutcomeUpToDate, nil
	}

	if err := c.apply(tmpPath); err != nil {
		return OutcomeUpToDate, fmt.Errorf("applying update: %w", err)
	}
	c.logger.Info("installed new version", "version", remote)
	return OutcomeUpdated, nil
}

// fetchToTemp downloads the update source to a temp file next to the install
// path, so the later rename stays on one filesystem.
func (c *Checker) fetchToTemp(ctx context.Context) (string, error) {
	effectiveURL := c.opts.SourceURL
	if c.registry != nil {
		res := c.registry.Rewrite(c.opts.SourceURL, mirror.NoIndex)
		effectiveURL = res.EffectiveURL
		c.logger.Debug("fetching update source", "via", res.Description)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, effectiveURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "ghfetch/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("update source returned %s", resp.Status)
	}

	installPath, err := c.installPath()
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(installPath), ".ghfetch-update-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return tmp.Name(), nil
}

// apply stages the fetched copy over the install path. The rename is atomic;
// the running process keeps executing its old image and the next invocation
// picks up the replacement.
func (c *Checker) apply(tmpPath string) error {
	installPath, err := c.installPath()
	if err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0o755); err != nil {
		return fmt.Errorf("marking executable: %w", err)
	}
	if err := os.Rename(tmpPath, installPath); err != nil {
		return fmt.Errorf("replacing %s: %w", installPath, err)
	}
	return nil
}

func (c *Checker) installPath() (string, error) {
	if c.opts.InstallPath != "" {
		return c.opts.InstallPath, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating running executable: %w", err)
	}
	return exe, nil
}

// localVersion prefers the compiled-in version and falls back to parsing the
// installed file.
func (c *Checker) localVersion() (string, error) {
	if c.opts.LocalVersion != "" {
		return c.opts.LocalVersion, nil
	}
	installPath, err := c.installPath()
	if err != nil {
		return "", err
	}
	return versionFromFile(installPath)
}

// writeState records the current epoch seconds, creating parent directories
// as needed. Best effort.
func (c *Checker) writeState() {
	if c.opts.StateFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.opts.StateFile), 0o755); err != nil {
		c.logger.Debug("could not create update state directory", "error", err)
		return
	}
	line := strconv.FormatInt(c.now().Unix(), 10) + "\n"
	if err := os.WriteFile(c.opts.StateFile, []byte(line), 0o644); err != nil {
		c.logger.Debug("could not write update state", "error", err)
	}
}

// versionFromFile scans for the first line containing VersionMarker and
// returns its third whitespace-delimited field.
func versionFromFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return ParseVersion(f)
}

// ParseVersion extracts the version token from a reader. The version line has
// the shape "<marker> version vX.Y"; the third field is the token.
func ParseVersion(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, VersionMarker) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return "", fmt.Errorf("malformed version line %q", line)
		}
		return fields[2], nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scanning for version line: %w", err)
	}
	return "", fmt.Errorf("no version line found")
}

// CompareVersions compares two version strings numerically per dot-separated
// component after stripping a leading "v". Returns -1, 0, or 1. Numeric
// comparison matters: v3.10 is newer than v3.2.
func CompareVersions(a, b string) int {
	pa := versionComponents(a)
	pb := versionComponents(b)
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var va, vb int
		if i < len(pa) {
			va = pa[i]
		}
		if i < len(pb) {
			vb = pb[i]
		}
		if va < vb {
			return -1
		}
		if va > vb {
			return 1
		}
	}
	return 0
}

func versionComponents(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			// Non-numeric components sort as zero.
			n = 0
		}
		out[i] = n
	}
	return out
}
