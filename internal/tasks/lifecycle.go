package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shortrun/shortrun/internal/audit"
	"github.com/shortrun/shortrun/internal/logging"
	"github.com/shortrun/shortrun/internal/schtasks"
	"github.com/shortrun/shortrun/internal/taskxml"
)

// Rename re-imports the definition of oldName under newName and then deletes
// oldName. It is not atomic: if the delete fails both names exist and the
// error says so.
func (s *Scheduler) Rename(ctx context.Context, oldName, newName string) error {
	oldName = strings.TrimLeft(strings.TrimSpace(oldName), `\`)
	newName = strings.TrimLeft(strings.TrimSpace(newName), `\`)
	if newName == "" {
		return invalid("name", "new task name is required")
	}
	if strings.EqualFold(oldName, newName) {
		return nil
	}

	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.exportXML(ctx, oldName)
	if err != nil {
		return err
	}
	// URI is cosmetic; the /TN of the import decides the real name.
	doc, o := taskxml.SetURI(doc, newName)
	if o.Status != taskxml.StatusApplied {
		log.Debug("rename uri", logging.KeyTask, newName, "outcome", o.String())
	}
	if err := s.importXML(ctx, newName, doc); err != nil {
		return err
	}
	if _, err := s.runner.Run(ctx, "/Delete", "/TN", oldName, "/F"); err != nil {
		return fmt.Errorf("renamed to %s but could not delete %s: %w", newName, oldName, err)
	}
	s.audit.Log(audit.EventTaskRenamed, newName, map[string]any{"from": oldName})
	log.Info("task renamed", logging.KeyTask, newName, "from", oldName)
	return nil
}

// SetEnabled enables or disables name.
func (s *Scheduler) SetEnabled(ctx context.Context, name string, enabled bool) error {
	flag := "/DISABLE"
	if enabled {
		flag = "/ENABLE"
	}
	if _, err := s.runner.Run(ctx, "/Change", "/TN", name, flag); err != nil {
		return err
	}
	event := audit.EventTaskDisabled
	if enabled {
		event = audit.EventTaskEnabled
	}
	s.audit.Log(event, name, nil)
	log.Info("task state changed", logging.KeyTask, name, "enabled", enabled)
	return nil
}

// Delete removes name. A task that does not exist is not an error.
func (s *Scheduler) Delete(ctx context.Context, name string) error {
	_, err := s.runner.Run(ctx, "/Delete", "/TN", name, "/F")
	if err != nil {
		if s.missing(ctx, name, err) {
			return nil
		}
		return err
	}
	s.audit.Log(audit.EventTaskDeleted, name, nil)
	log.Info("task deleted", logging.KeyTask, name)
	return nil
}

// DeleteAllForAlias deletes every task under the alias's name prefix and
// returns the names it removed. Individual failures are joined.
func (s *Scheduler) DeleteAllForAlias(ctx context.Context, alias string) ([]string, error) {
	rows, err := s.ListTasks(ctx, alias)
	if err != nil {
		return nil, err
	}
	var (
		deleted []string
		errs    []error
	)
	for _, r := range rows {
		if err := s.Delete(ctx, r.Name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
			continue
		}
		deleted = append(deleted, r.Name)
	}
	return deleted, errors.Join(errs...)
}

// missing reports whether err, from a command on name, means the task does
// not exist. The tool's diagnostics are localized, so a failure the English
// markers do not recognise is settled against the task list.
func (s *Scheduler) missing(ctx context.Context, name string, err error) bool {
	if schtasks.IsNotFound(err) {
		return true
	}
	var cmdErr *schtasks.CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	rows, qerr := s.queryAll(ctx)
	if qerr != nil {
		return false
	}
	want := strings.TrimLeft(name, `\`)
	for _, r := range rows {
		if strings.EqualFold(r.Name, want) {
			return false
		}
	}
	return true
}
