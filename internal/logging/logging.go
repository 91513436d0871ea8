// Package logging configures slog for the CLI. Package-level loggers are
// created with L before flags and config are read; Init and Setup later
// swap the handler underneath them.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"
)

// Key constants for structured log fields.
const (
	KeyComponent  = "component"
	KeyTask       = "task"
	KeyAlias      = "alias"
	KeyArgs       = "args"
	KeyExitCode   = "exitCode"
	KeyDurationMs = "durationMs"
	KeyError      = "error"
)

const (
	logFileMaxSizeMB  = 5
	logFileMaxBackups = 3
)

// The CLI writes its own output to stdout, so diagnostics default to stderr
// at warn level until Init runs.
var (
	level   = new(slog.LevelVar)
	current atomic.Pointer[slog.Handler]
	root    = slog.New(&deferred{})
)

func init() {
	level.Set(slog.LevelWarn)
	install(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(root)
}

func install(h slog.Handler) {
	current.Store(&h)
}

// deferred looks up the installed handler on every record and replays the
// attrs and groups added to it since, in their original order.
type deferred struct {
	ops []func(slog.Handler) slog.Handler
}

func (d *deferred) resolve() slog.Handler {
	h := *current.Load()
	for _, op := range d.ops {
		h = op(h)
	}
	return h
}

func (d *deferred) with(op func(slog.Handler) slog.Handler) *deferred {
	ops := make([]func(slog.Handler) slog.Handler, len(d.ops), len(d.ops)+1)
	copy(ops, d.ops)
	return &deferred{ops: append(ops, op)}
}

func (d *deferred) Enabled(_ context.Context, l slog.Level) bool {
	return l >= level.Level()
}

func (d *deferred) Handle(ctx context.Context, r slog.Record) error {
	return d.resolve().Handle(ctx, r)
}

func (d *deferred) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return d
	}
	return d.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (d *deferred) WithGroup(name string) slog.Handler {
	if name == "" {
		return d
	}
	return d.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

// Init points every logger at output (nil means stderr) in format "json" or
// "text", filtered at level ("debug", "info", "warn", "error").
func Init(format, lvl string, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}
	level.Set(parseLevel(lvl))

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		install(slog.NewJSONHandler(output, opts))
	} else {
		install(slog.NewTextHandler(output, opts))
	}
}

// Setup calls Init and, when logFile is set, also appends to a rotating
// file on fsys. The returned closer must be called on exit. If the file
// cannot be opened, logging still goes to stderr and the error is returned.
func Setup(fsys afero.Fs, format, lvl, logFile string) (io.Closer, error) {
	if logFile == "" {
		Init(format, lvl, os.Stderr)
		return io.NopCloser(nil), nil
	}

	rw, err := NewRotatingWriter(fsys, logFile, logFileMaxSizeMB, logFileMaxBackups)
	if err != nil {
		Init(format, lvl, os.Stderr)
		return io.NopCloser(nil), err
	}
	Init(format, lvl, io.MultiWriter(os.Stderr, rw))
	return rw, nil
}

// L returns a logger tagged with the given component name.
func L(component string) *slog.Logger {
	return root.With(slog.String(KeyComponent, component))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
