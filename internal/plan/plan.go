// Package plan exports the aliases and schedules on this machine to a YAML
// document and applies such a document back.
package plan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/shortrun/shortrun/internal/aliases"
	"github.com/shortrun/shortrun/internal/audit"
	"github.com/shortrun/shortrun/internal/logging"
	"github.com/shortrun/shortrun/internal/tasks"
	"github.com/shortrun/shortrun/internal/taskxml"
)

var log = logging.L("plan")

// Version is the document format written by Encode.
const Version = 1

// Plan is the exported document.
type Plan struct {
	Version int     `yaml:"version"`
	Aliases []Alias `yaml:"aliases"`
}

// Alias is one alias and its schedules. TasksOnly marks tasks whose alias
// was removed from the registry while the tasks were kept; applying it
// recreates the tasks without registering the alias.
type Alias struct {
	Alias      string     `yaml:"alias"`
	Exe        string     `yaml:"exe"`
	RunAsAdmin bool       `yaml:"run_as_admin,omitempty"`
	TasksOnly  bool       `yaml:"tasks_only,omitempty"`
	Schedules  []Schedule `yaml:"schedules,omitempty"`
}

// Schedule is a trigger plus the per-task state that is not part of it.
type Schedule struct {
	tasks.Trigger `yaml:",inline"`
	Elevated      bool `yaml:"elevated,omitempty"`
	Disabled      bool `yaml:"disabled,omitempty"`
}

// AliasStore is the part of *aliases.Store a plan needs.
type AliasStore interface {
	List() ([]aliases.Entry, error)
	Add(alias, exe string, overwrite bool) (*aliases.Entry, error)
	SetRunAsAdmin(alias string, on bool) error
}

// Scheduler is the part of *tasks.Scheduler a plan needs.
type Scheduler interface {
	ListTasks(ctx context.Context, alias string) ([]tasks.TaskRow, error)
	Details(ctx context.Context, name string) (*taskxml.Details, error)
	Create(ctx context.Context, alias, exe string, trig tasks.Trigger, elevated bool) (*tasks.Created, error)
	SetEnabled(ctx context.Context, name string, enabled bool) error
}

// Export builds a plan from every owned alias and every task under the
// tool's prefix. Tasks whose XML cannot be turned back into a trigger are
// returned by name in skipped.
func Export(ctx context.Context, store AliasStore, sched Scheduler) (p *Plan, skipped []string, err error) {
	entries, err := store.List()
	if err != nil {
		return nil, nil, fmt.Errorf("list aliases: %w", err)
	}
	rows, err := sched.ListTasks(ctx, "")
	if err != nil {
		return nil, nil, fmt.Errorf("list tasks: %w", err)
	}

	p = &Plan{Version: Version}
	index := make(map[string]int, len(entries))
	for _, e := range entries {
		index[strings.ToLower(tasks.Sanitize(e.Alias))] = len(p.Aliases)
		p.Aliases = append(p.Aliases, Alias{Alias: e.Alias, Exe: e.ExePath, RunAsAdmin: e.RunAsAdmin})
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		alias, _, ok := tasks.AliasFromTaskName(row.Name)
		if !ok {
			skipped = append(skipped, row.Name)
			continue
		}
		d, err := sched.Details(ctx, row.Name)
		if err != nil {
			log.Warn("export: task unreadable", logging.KeyTask, row.Name, logging.KeyError, err.Error())
			skipped = append(skipped, row.Name)
			continue
		}
		trig, err := tasks.TriggerFromDetails(d)
		if err != nil {
			log.Warn("export: trigger not recoverable", logging.KeyTask, row.Name, logging.KeyError, err.Error())
			skipped = append(skipped, row.Name)
			continue
		}

		i, ok := index[strings.ToLower(alias)]
		if !ok {
			i = len(p.Aliases)
			index[strings.ToLower(alias)] = i
			p.Aliases = append(p.Aliases, Alias{Alias: alias, Exe: commandPath(d.Command), TasksOnly: true})
		}
		p.Aliases[i].Schedules = append(p.Aliases[i].Schedules, Schedule{
			Trigger:  trig,
			Elevated: d.Elevated,
			Disabled: !d.Enabled,
		})
	}

	for i := range p.Aliases {
		s := p.Aliases[i].Schedules
		sort.SliceStable(s, func(a, b int) bool {
			return s[a].Name(p.Aliases[i].Alias) < s[b].Name(p.Aliases[i].Alias)
		})
	}
	return p, skipped, nil
}

// ApplyOptions tunes Apply.
type ApplyOptions struct {
	// Overwrite replaces existing aliases of the same name.
	Overwrite bool
	Audit     *audit.Logger
}

// Result lists what Apply changed.
type Result struct {
	Aliases []string
	Tasks   []string
}

// Apply validates the whole plan first and changes nothing if any alias or
// trigger is invalid. It then registers each alias and creates its tasks,
// carrying on past individual failures, which are joined into the returned
// error. An alias that already exists is kept as is unless Overwrite is set;
// its schedules are still applied.
func Apply(ctx context.Context, p *Plan, store AliasStore, sched Scheduler, opts ApplyOptions) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	var errs []error
	for _, a := range p.Aliases {
		if err := ctx.Err(); err != nil {
			return res, errors.Join(append(errs, err)...)
		}
		if !a.TasksOnly {
			_, err := store.Add(a.Alias, a.Exe, opts.Overwrite)
			switch {
			case err == nil:
				res.Aliases = append(res.Aliases, a.Alias)
				if a.RunAsAdmin {
					if err := store.SetRunAsAdmin(a.Alias, true); err != nil {
						errs = append(errs, fmt.Errorf("alias %s: %w", a.Alias, err))
					}
				}
			case errors.Is(err, aliases.ErrAliasExists):
				log.Info("plan: alias kept", logging.KeyAlias, a.Alias)
			default:
				errs = append(errs, fmt.Errorf("alias %s: %w", a.Alias, err))
				continue
			}
		}

		for _, s := range a.Schedules {
			created, err := sched.Create(ctx, a.Alias, a.Exe, s.Trigger, s.Elevated)
			if err != nil {
				errs = append(errs, fmt.Errorf("alias %s %s: %w", a.Alias, s.Kind, err))
				continue
			}
			res.Tasks = append(res.Tasks, created.Name)
			if s.Disabled {
				if err := sched.SetEnabled(ctx, created.Name, false); err != nil {
					errs = append(errs, fmt.Errorf("disable %s: %w", created.Name, err))
				}
			}
		}
	}

	opts.Audit.Log(audit.EventPlanApplied, "", map[string]any{
		"aliases": len(res.Aliases),
		"tasks":   len(res.Tasks),
		"errors":  len(errs),
	})
	return res, errors.Join(errs...)
}

// Validate checks the version, every alias name, and every trigger.
func (p *Plan) Validate() error {
	if p == nil {
		return errors.New("empty plan")
	}
	if p.Version != Version {
		return fmt.Errorf("unsupported plan version %d", p.Version)
	}
	var errs []error
	for i, a := range p.Aliases {
		if a.TasksOnly {
			if tasks.Sanitize(a.Alias) == "" {
				errs = append(errs, fmt.Errorf("aliases[%d]: alias is required", i))
			}
		} else if err := aliases.ValidateAlias(a.Alias); err != nil {
			errs = append(errs, fmt.Errorf("aliases[%d]: %w", i, err))
		}
		if strings.TrimSpace(a.Exe) == "" {
			errs = append(errs, fmt.Errorf("aliases[%d] %s: exe is required", i, a.Alias))
		}
		for j, s := range a.Schedules {
			if err := s.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("aliases[%d] %s schedules[%d]: %w", i, a.Alias, j, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Encode writes p as YAML.
func Encode(w io.Writer, p *Plan) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return enc.Close()
}

// Decode reads a YAML plan. Unknown keys are rejected, and calendar
// schedules without an interval default to 1.
func Decode(r io.Reader) (*Plan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var p Plan
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("plan is empty")
		}
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	// An omitted interval on a calendar schedule means every day, week or
	// month. An explicit zero is indistinguishable and gets the same default.
	for i := range p.Aliases {
		for j := range p.Aliases[i].Schedules {
			s := &p.Aliases[i].Schedules[j]
			s.Trigger = s.Trigger.WithDefaultInterval()
		}
	}
	return &p, nil
}

// ReadFile decodes the plan at path on fsys.
func ReadFile(fsys afero.Fs, path string) (*Plan, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// WriteFile encodes p to path on fsys, creating the directory if needed.
func WriteFile(fsys afero.Fs, path string, p *Plan) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := Encode(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// commandPath returns the executable part of a task command line.
func commandPath(command string) string {
	command = strings.TrimSpace(command)
	if strings.HasPrefix(command, `"`) {
		if end := strings.Index(command[1:], `"`); end >= 0 {
			return command[1 : end+1]
		}
		return strings.Trim(command, `"`)
	}
	if i := strings.IndexByte(command, ' '); i >= 0 {
		return command[:i]
	}
	return command
}
