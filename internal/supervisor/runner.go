package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// SidecarSuffix is the extension of the resume/progress file the external
// transfer tool maintains next to the output file. The supervisor inspects
// and deletes it but never writes it.
const SidecarSuffix = ".aria2"

// Handle controls one running transfer process. Kill must always be followed
// by Wait before any cleanup touches the output files.
type Handle interface {
	// Wait blocks until the process exits and returns its exit error, if any.
	Wait() error
	// Kill terminates the process. The caller must still Wait.
	Kill() error
}

// Runner launches the external segmented-transfer process for one attempt.
type Runner interface {
	Start(ctx context.Context, url, outputPath string) (Handle, error)
}

// Aria2Runner runs aria2c as the transfer process.
type Aria2Runner struct {
	Binary      string
	Connections int
	Logger      *slog.Logger
}

// NewAria2Runner creates a runner with defaults filled in.
func NewAria2Runner(binary string, connections int, logger *slog.Logger) *Aria2Runner {
	if binary == "" {
		binary = "aria2c"
	}
	if connections <= 0 {
		connections = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aria2Runner{Binary: binary, Connections: connections, Logger: logger}
}

// Start launches aria2c against the effective URL. The flags keep partial
// files and the .aria2 control file on interruption so a later attempt can
// resume.
func (r *Aria2Runner) Start(ctx context.Context, url, outputPath string) (Handle, error) {
	n := strconv.Itoa(r.Connections)
	args := []string{
		"-c",
		"-x", n,
		"-s", n,
		"--auto-file-renaming=false",
		"--allow-overwrite=true",
		"--summary-interval=0",
		"-d", filepath.Dir(outputPath),
		"-o", filepath.Base(outputPath),
		url,
	}

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	r.Logger.Debug("launching transfer process", "binary", r.Binary, "connections", r.Connections)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", r.Binary, err)
	}
	return &processHandle{cmd: cmd}, nil
}

type processHandle struct {
	cmd *exec.Cmd
}

func (h *processHandle) Wait() error {
	return h.cmd.Wait()
}

func (h *processHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

// exitCode extracts the process exit code from a Wait error. Returns -1 when
// the process was killed or the error carries no exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
