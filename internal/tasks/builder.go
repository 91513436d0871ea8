// Package tasks turns alias schedules into Windows Task Scheduler tasks by
// driving schtasks.exe, and reads them back.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/shortrun/shortrun/internal/audit"
	"github.com/shortrun/shortrun/internal/logging"
	"github.com/shortrun/shortrun/internal/schtasks"
	"github.com/shortrun/shortrun/internal/taskxml"
)

var log = logging.L("tasks")

// DefaultAuthor tags every task this tool creates.
const DefaultAuthor = "ShortRun"

// Options configures a Scheduler. Zero values pick the production defaults.
type Options struct {
	// Fs holds the temporary XML files used for re-import.
	Fs afero.Fs
	// TempDir is where those files go; defaults to os.TempDir().
	TempDir string
	// Author is written to RegistrationInfo/Author after creation.
	Author string
	// Lock guards the delete/create/patch sequence across processes.
	Lock Locker
	// Workers bounds the author-search fan-out; 0 sizes it from the CPU count.
	Workers int
	// Audit journals every change. Nil disables it.
	Audit *audit.Logger
}

// Scheduler creates, inspects and manages tasks through a schtasks.Runner.
type Scheduler struct {
	runner  schtasks.Runner
	fs      afero.Fs
	tempDir string
	author  string
	lock    Locker
	workers int
	audit   *audit.Logger

	// mu serialises delete/create/patch within this process.
	mu sync.Mutex
}

// New creates a Scheduler.
func New(runner schtasks.Runner, opts Options) *Scheduler {
	s := &Scheduler{
		runner:  runner,
		fs:      opts.Fs,
		tempDir: opts.TempDir,
		author:  opts.Author,
		lock:    opts.Lock,
		workers: opts.Workers,
		audit:   opts.Audit,
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.tempDir == "" {
		s.tempDir = os.TempDir()
	}
	if s.author == "" {
		s.author = DefaultAuthor
	}
	if s.lock == nil {
		s.lock = NewProcessLock()
	}
	return s
}

// Author returns the tag written into created tasks.
func (s *Scheduler) Author() string { return s.author }

// Created describes a task that now exists. Patches reports each
// best-effort XML embellishment; none of them affect success.
type Created struct {
	Name    string
	Trigger Trigger
	Patches []taskxml.Outcome
}

// Extras carries the options shared by every per-kind helper.
type Extras struct {
	Window             *Window
	Repeat             *Repeat
	RandomDelayMinutes int
	DelayMinutes       int
	StopAtDurationEnd  bool
	Elevated           bool
}

func (x Extras) apply(t Trigger) Trigger {
	t.Window = x.Window
	t.Repeat = x.Repeat
	t.RandomDelayMinutes = x.RandomDelayMinutes
	t.DelayMinutes = x.DelayMinutes
	t.StopAtDurationEnd = x.StopAtDurationEnd
	return t
}

// Create validates trig, replaces any task with the same computed name and
// applies the XML embellishments. Validation failures return
// *ValidationError before anything is spawned; a failed /Create returns the
// tool's *schtasks.CommandError unchanged.
func (s *Scheduler) Create(ctx context.Context, alias, exe string, trig Trigger, elevated bool) (*Created, error) {
	t, err := trig.Normalize()
	if err != nil {
		return nil, err
	}
	if Sanitize(alias) == "" {
		return nil, invalid("alias", "alias is required")
	}
	if strings.Trim(strings.TrimSpace(exe), `"`) == "" {
		return nil, invalid("exe", "executable path is required")
	}
	name := t.Name(alias)

	unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := time.Now()
	s.deleteQuiet(ctx, name)
	if _, err := s.runner.Run(ctx, t.Args(name, exe, elevated)...); err != nil {
		log.Warn("create task failed", logging.KeyTask, name, logging.KeyError, err.Error())
		return nil, err
	}

	patches := []taskxml.Patch{taskxml.Author(s.author)}
	if t.RandomDelayMinutes > 0 {
		patches = append(patches, taskxml.RandomDelay(t.RandomDelayMinutes))
	}
	if t.StopAtDurationEnd {
		patches = append(patches, taskxml.StopAtDurationEnd(true))
	}
	if t.DelayMinutes > 0 {
		patches = append(patches, taskxml.TriggerDelay(t.DelayMinutes))
	}
	outcomes := s.patch(ctx, name, patches...)
	s.audit.Log(audit.EventTaskCreated, name, map[string]any{
		"alias":    alias,
		"kind":     string(t.Kind),
		"exe":      exe,
		"elevated": elevated,
	})

	log.Info("task created",
		logging.KeyTask, name,
		logging.KeyAlias, alias,
		"kind", string(t.Kind),
		logging.KeyDurationMs, time.Since(start).Milliseconds())
	return &Created{Name: name, Trigger: t, Patches: outcomes}, nil
}

// EnsureLogon creates the alias's logon task, or deletes it when enabled is
// false (returning nil, nil).
func (s *Scheduler) EnsureLogon(ctx context.Context, alias, exe string, enabled bool, x Extras) (*Created, error) {
	return s.ensureSingleton(ctx, alias, exe, KindLogon, enabled, x)
}

// EnsureOnStart is EnsureLogon for the boot trigger.
func (s *Scheduler) EnsureOnStart(ctx context.Context, alias, exe string, enabled bool, x Extras) (*Created, error) {
	return s.ensureSingleton(ctx, alias, exe, KindOnStart, enabled, x)
}

func (s *Scheduler) ensureSingleton(ctx context.Context, alias, exe string, kind Kind, enabled bool, x Extras) (*Created, error) {
	if !enabled {
		return nil, s.Delete(ctx, TaskName(alias, kind, ""))
	}
	return s.Create(ctx, alias, exe, x.apply(Trigger{Kind: kind}), x.Elevated)
}

// CreateDaily schedules exe every day at hhmm.
func (s *Scheduler) CreateDaily(ctx context.Context, alias, exe, hhmm string, x Extras) (*Created, error) {
	return s.Create(ctx, alias, exe, x.apply(Trigger{Kind: KindDaily, Time: hhmm, Interval: 1}), x.Elevated)
}

// CreateMinutely schedules exe every n minutes starting at start.
func (s *Scheduler) CreateMinutely(ctx context.Context, alias, exe string, every int, start string, x Extras) (*Created, error) {
	return s.Create(ctx, alias, exe, x.apply(Trigger{Kind: KindMinute, Interval: every, Time: start}), x.Elevated)
}

// CreateHourly schedules exe every n hours starting at start.
func (s *Scheduler) CreateHourly(ctx context.Context, alias, exe string, every int, start string, x Extras) (*Created, error) {
	return s.Create(ctx, alias, exe, x.apply(Trigger{Kind: KindHourly, Interval: every, Time: start}), x.Elevated)
}

// CreateWeekly schedules exe on days (MON..SUN) every weeks weeks.
func (s *Scheduler) CreateWeekly(ctx context.Context, alias, exe, hhmm string, days []string, weeks int, x Extras) (*Created, error) {
	return s.Create(ctx, alias, exe, x.apply(Trigger{Kind: KindWeekly, Time: hhmm, Days: days, Interval: weeks}), x.Elevated)
}

// CreateMonthly schedules exe on days of the month (1-31, LAST), optionally
// restricted to months, every n months.
func (s *Scheduler) CreateMonthly(ctx context.Context, alias, exe, hhmm string, days, months []string, every int, x Extras) (*Created, error) {
	return s.Create(ctx, alias, exe, x.apply(Trigger{Kind: KindMonthly, Time: hhmm, Days: days, Months: months, Interval: every}), x.Elevated)
}

// CreateOnIdle runs exe after the machine has been idle for idle minutes.
func (s *Scheduler) CreateOnIdle(ctx context.Context, alias, exe string, idle int, x Extras) (*Created, error) {
	return s.Create(ctx, alias, exe, x.apply(Trigger{Kind: KindOnIdle, IdleMinutes: idle}), x.Elevated)
}

// CreateOnce runs exe once at date hhmm.
func (s *Scheduler) CreateOnce(ctx context.Context, alias, exe, date, hhmm string, x Extras) (*Created, error) {
	return s.Create(ctx, alias, exe, x.apply(Trigger{Kind: KindOnce, Date: date, Time: hhmm}), x.Elevated)
}

func (s *Scheduler) acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()
	release, err := s.lock.Lock(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	return func() {
		release()
		s.mu.Unlock()
	}, nil
}

// deleteQuiet removes name ahead of a create. A missing task is the steady
// state; anything else is logged and ignored so /Create gets to report.
func (s *Scheduler) deleteQuiet(ctx context.Context, name string) {
	_, err := s.runner.Run(ctx, "/Delete", "/TN", name, "/F")
	if err != nil && !schtasks.IsNotFound(err) {
		log.Debug("pre-create delete failed", logging.KeyTask, name, logging.KeyError, err.Error())
	}
}

// patch exports name, applies the patches and re-imports the result. Every
// failure becomes a Failed outcome for each patch; nothing is returned as an
// error.
func (s *Scheduler) patch(ctx context.Context, name string, patches ...taskxml.Patch) []taskxml.Outcome {
	if len(patches) == 0 {
		return nil
	}
	failAll := func(err error) []taskxml.Outcome {
		outcomes := make([]taskxml.Outcome, len(patches))
		for i, p := range patches {
			_, o := p("")
			outcomes[i] = taskxml.Failed(o.Patch, err)
		}
		log.Debug("xml patch failed", logging.KeyTask, name, logging.KeyError, err.Error())
		return outcomes
	}

	doc, err := s.exportXML(ctx, name)
	if err != nil {
		return failAll(err)
	}
	patched, outcomes := taskxml.Apply(doc, patches...)
	if !taskxml.Changed(outcomes) {
		return outcomes
	}
	if err := s.importXML(ctx, name, patched); err != nil {
		return failAll(err)
	}
	for _, o := range outcomes {
		log.Debug("xml patch", logging.KeyTask, name, "patch", o.Patch, "status", o.Status.String(), "reason", o.Reason)
	}
	return outcomes
}

func (s *Scheduler) exportXML(ctx context.Context, name string) (string, error) {
	res, err := s.runner.Run(ctx, "/Query", "/TN", name, "/XML")
	if err != nil {
		return "", fmt.Errorf("export %s: %w", name, err)
	}
	if !strings.Contains(res.Stdout, "<Task") {
		return "", fmt.Errorf("export %s: no task definition in output", name)
	}
	return res.Stdout, nil
}

// importXML writes doc as UTF-16 to a temp file and re-creates name from it.
func (s *Scheduler) importXML(ctx context.Context, name, doc string) error {
	raw, err := taskxml.Encode(doc)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.tempDir, 0o700); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	f, err := afero.TempFile(s.fs, s.tempDir, "shortrun-*.xml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	defer func() {
		if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Debug("remove temp xml", "path", path, logging.KeyError, err.Error())
		}
	}()
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if _, err := s.runner.Run(ctx, "/Create", "/TN", name, "/XML", filepath.Clean(path), "/F"); err != nil {
		return fmt.Errorf("import %s: %w", name, err)
	}
	return nil
}
