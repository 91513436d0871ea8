// Package schtasks runs the Windows Task Scheduler command-line tool.
package schtasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/shortrun/shortrun/internal/logging"
)

var log = logging.L("schtasks")

// MaxOutputSize caps captured stdout/stderr per invocation.
const MaxOutputSize = 4 * 1024 * 1024

// Runner executes one scheduler CLI invocation and waits for it to exit.
// A nonzero exit status is reported as *CommandError.
type Runner interface {
	Run(ctx context.Context, args ...string) (*Result, error)
}

// Result holds the decoded output of a successful invocation.
type Result struct {
	Stdout string
	Stderr string
}

// CommandError is returned when the scheduler tool exits nonzero. Its
// message is the tool's own diagnostic text.
type CommandError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandError) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(e.Stdout); msg != "" {
		return msg
	}
	return fmt.Sprintf("schtasks exited with status %d", e.ExitCode)
}

// Verb returns the subcommand, e.g. "/Create".
func (e *CommandError) Verb() string {
	if len(e.Args) == 0 {
		return ""
	}
	return e.Args[0]
}

var notFoundMarkers = []string{
	"cannot find the file specified",
	"does not exist",
	"cannot find the path specified",
}

// IsNotFound reports whether err is the tool complaining that the named
// task does not exist.
func IsNotFound(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	msg := strings.ToLower(cmdErr.Stderr + " " + cmdErr.Stdout)
	for _, marker := range notFoundMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ExecRunner runs the real tool as a child process with no console window.
// There is no timeout beyond the caller's context.
type ExecRunner struct {
	// Path is the executable; empty means "schtasks".
	Path string
}

// NewExecRunner returns a runner for schtasks.exe on PATH.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Path: "schtasks"}
}

func (r *ExecRunner) Run(ctx context.Context, args ...string) (*Result, error) {
	path := r.Path
	if path == "" {
		path = "schtasks"
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &stdout, limit: MaxOutputSize}
	cmd.Stderr = &limitedWriter{buf: &stderr, limit: MaxOutputSize}
	hideWindow(cmd)

	err := cmd.Run()
	out := DecodeOutput(stdout.Bytes())
	errOut := DecodeOutput(stderr.Bytes())

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cmdErr := &CommandError{
				Args:     append([]string(nil), args...),
				ExitCode: exitErr.ExitCode(),
				Stdout:   out,
				Stderr:   errOut,
			}
			log.Debug("command failed",
				logging.KeyArgs, strings.Join(args, " "),
				logging.KeyExitCode, cmdErr.ExitCode,
				logging.KeyDurationMs, time.Since(start).Milliseconds(),
				logging.KeyError, cmdErr.Error())
			return nil, cmdErr
		}
		return nil, fmt.Errorf("run %s: %w", path, err)
	}

	log.Debug("command completed",
		logging.KeyArgs, strings.Join(args, " "),
		logging.KeyDurationMs, time.Since(start).Milliseconds())
	return &Result{Stdout: out, Stderr: errOut}, nil
}

// limitedWriter wraps a buffer with a size limit
type limitedWriter struct {
	buf     *bytes.Buffer
	limit   int
	written int
}

func (w *limitedWriter) Write(p []byte) (n int, err error) {
	total := len(p)
	if w.written >= w.limit {
		// Discard additional data but don't error
		return total, nil
	}

	remaining := w.limit - w.written
	if len(p) > remaining {
		p = p[:remaining]
	}

	n, err = w.buf.Write(p)
	w.written += n
	return total, err // report the full length to avoid short write errors
}
