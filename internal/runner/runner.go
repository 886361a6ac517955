package runner

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/schererja/drovah/pkg/logger"
)

// LogFileName is the combined stdout/stderr capture written to the working directory
const LogFileName = "build.log"

var (
	ErrEmptyCommand      = errors.New("empty command line")
	ErrProgramNotFound   = errors.New("program not found")
	ErrProgramNotSpawned = errors.New("program could not be started")
)

// Runner executes manifest command lines on the host
type Runner struct {
	logger *logger.Logger
}

// NewRunner creates a new command Runner
func NewRunner(logger *logger.Logger) *Runner {
	return &Runner{logger: logger}
}

// Split breaks a command line on single spaces. There is no quoting, so an
// argument containing a space cannot be expressed.
func Split(line string) (program string, args []string, err error) {
	parts := strings.Split(line, " ")
	if parts[0] == "" {
		return "", nil, fmt.Errorf("%w: %q", ErrEmptyCommand, line)
	}
	return parts[0], parts[1:], nil
}

// Run executes commands sequentially in dir. Every command runs even after a
// failure; the result is true only when all of them exit 0.
//
// With captureLog the combined output of every command is appended to a fresh
// build.log in dir, otherwise it is discarded. A command that cannot be
// parsed or started aborts the list with an error.
func (r *Runner) Run(commands []string, dir string, captureLog bool) (bool, error) {
	var out io.Writer
	if captureLog {
		f, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return false, fmt.Errorf("failed to create %s: %w", LogFileName, err)
		}
		defer f.Close()
		out = f
	}

	succeeded := 0
	for _, line := range commands {
		ok, err := r.runOne(line, dir, out)
		if err != nil {
			return false, err
		}
		if ok {
			succeeded++
		}
	}

	return succeeded == len(commands), nil
}

func (r *Runner) runOne(line, dir string, out io.Writer) (bool, error) {
	program, args, err := Split(line)
	if err != nil {
		return false, err
	}

	cmd := exec.Command(program, args...)
	cmd.Dir = dir
	if out != nil {
		cmd.Stdout = out
		cmd.Stderr = out
	}

	start := time.Now()
	r.logger.Debug("running command", slog.String("command", line), slog.String("dir", dir))

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("%w: %s: %v", ErrProgramNotFound, program, err)
		}
		return false, fmt.Errorf("%w: %s: %v", ErrProgramNotSpawned, program, err)
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return false, fmt.Errorf("command %q died unexpectedly: %w", line, err)
		}
		r.logger.Info("command failed",
			slog.String("command", line),
			slog.Int("exit_code", exitErr.ExitCode()),
			slog.Duration("duration", time.Since(start)))
		return false, nil
	}

	r.logger.Debug("command succeeded", slog.String("command", line), slog.Duration("duration", time.Since(start)))
	return true, nil
}
