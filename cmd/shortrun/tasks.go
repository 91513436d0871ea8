package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/shortrun/shortrun/internal/dispatch"
	"github.com/shortrun/shortrun/internal/tasks"
	"github.com/shortrun/shortrun/internal/taskxml"
	"github.com/shortrun/shortrun/internal/workerpool"
)

func newTasksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and manage ShortRun scheduled tasks",
	}
	cmd.AddCommand(
		newTasksListCmd(a),
		newTasksShowCmd(a),
		newTasksRenameCmd(a),
		newTasksEnableCmd(a, true),
		newTasksEnableCmd(a, false),
		newTasksDeleteCmd(a),
		newTasksPurgeCmd(a),
		newTasksByAuthorCmd(a),
	)
	return cmd
}

func newTasksListCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list [alias]",
		Short: "List tasks, optionally for one alias",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias := ""
			if len(args) == 1 {
				alias = args[0]
			}
			rows, err := a.sched.ListTasks(cmd.Context(), alias)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "no tasks")
				return nil
			}
			for _, r := range rows {
				fmt.Fprintf(out, "%-50s %-22s %s\n", r.Name, r.NextRunTime, r.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newTasksShowCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <task>",
		Short: "Show the trigger of one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.sched.Details(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), d)
			}
			writeDetails(cmd.OutOrStdout(), d)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeDetails(w io.Writer, d *taskxml.Details) {
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(w, "%-14s %s\n", label+":", value)
		}
	}
	num := func(label string, n int) {
		if n > 0 {
			field(label, fmt.Sprint(n))
		}
	}
	field("Name", d.Name)
	field("Kind", d.Kind)
	field("Enabled", fmt.Sprint(d.Enabled))
	field("Elevated", fmt.Sprint(d.Elevated))
	field("Author", d.Author)
	field("Command", d.Command)
	field("Start", strings.TrimSpace(d.StartDate+" "+d.StartTime))
	field("End", strings.TrimSpace(d.EndDate+" "+d.EndTime))
	num("Interval", d.Interval)
	field("Weekdays", strings.Join(d.Weekdays, ","))
	field("Days", strings.Join(d.DaysOfMonth, ","))
	field("Months", strings.Join(d.Months, ","))
	num("Idle minutes", d.IdleMinutes)
	if d.RepeatEveryMinutes > 0 {
		field("Repeat", fmt.Sprintf("every %d min for %s", d.RepeatEveryMinutes, d.RepeatDuration))
	}
	field("Random delay", d.RandomDelay)
	field("Delay", d.Delay)
}

func newTasksRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <task> <new-name>",
		Short: "Rename a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.sched.Rename(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renamed %s -> %s\n", args[0], args[1])
			return nil
		},
	}
}

func newTasksEnableCmd(a *app, enable bool) *cobra.Command {
	use, verb := "enable", "enabled"
	if !enable {
		use, verb = "disable", "disabled"
	}
	return &cobra.Command{
		Use:   use + " <task>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.sched.SetEnabled(cmd.Context(), args[0], enable); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, args[0])
			return nil
		},
	}
}

func newTasksDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.sched.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newTasksPurgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <alias>",
		Short: "Delete every task of an alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := a.sched.DeleteAllForAlias(cmd.Context(), args[0])
			out := cmd.OutOrStdout()
			for _, name := range deleted {
				fmt.Fprintf(out, "deleted %s\n", name)
			}
			if err == nil && len(deleted) == 0 {
				fmt.Fprintln(out, "no tasks")
			}
			return err
		},
	}
}

func newTasksByAuthorCmd(a *app) *cobra.Command {
	var asJSON, quiet bool
	cmd := &cobra.Command{
		Use:   "by-author [author]",
		Short: "Find tasks by their registration author (default from config)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			author := a.sched.Author()
			if len(args) == 1 {
				author = args[0]
			}
			var progress io.Writer
			if !quiet {
				progress = cmd.ErrOrStderr()
			}
			found, err := a.searchByAuthor(cmd, author, progress)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, found)
			}
			if len(found) == 0 {
				fmt.Fprintf(out, "no tasks authored by %s\n", author)
				return nil
			}
			for _, t := range found {
				state := "enabled"
				if !t.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(out, "%-50s %s\n", t.Name, state)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "no progress bar")
	return cmd
}

// searchByAuthor runs the author search off the command goroutine. Progress
// and the result are handled on the dispatch loop, so the bar is only
// touched from one goroutine. A nil progress writer disables the bar.
func (a *app) searchByAuthor(cmd *cobra.Command, author string, progress io.Writer) ([]tasks.TaskSummary, error) {
	ctx := cmd.Context()
	loop := dispatch.New(dispatch.DefaultQueueSize)
	pool := workerpool.New(1, 1)
	defer pool.Drain(ctx)

	var bar authorBar
	if progress != nil {
		bar.p = mpb.NewWithContext(ctx, mpb.WithOutput(progress), mpb.WithWidth(48))
	}
	onProgress := func(done, total int) {
		loop.Post(func() { bar.update(done, total) })
	}

	var (
		found  []tasks.TaskSummary
		jobErr error
	)
	ok := dispatch.Background(loop, pool,
		func(context.Context) ([]tasks.TaskSummary, error) {
			return a.sched.ListByAuthor(ctx, author, onProgress)
		},
		func(res []tasks.TaskSummary, err error) {
			found, jobErr = res, err
			loop.Stop()
		},
	)
	if !ok {
		return nil, errors.New("author search could not be started")
	}
	runErr := loop.Run(ctx)
	// Unblocks workers still posting progress after a cancel.
	loop.Stop()

	bar.finish()
	if runErr != nil {
		return nil, runErr
	}
	return found, jobErr
}

// authorBar is the author-search progress bar. Workers report completions
// out of order, so the bar only ever moves forward. It is used only from the
// dispatch loop.
type authorBar struct {
	p    *mpb.Progress
	bar  *mpb.Bar
	high int
}

func (b *authorBar) update(done, total int) {
	if b.p == nil || total == 0 {
		return
	}
	if b.bar == nil {
		b.bar = b.p.AddBar(int64(total),
			mpb.PrependDecorators(
				decor.Name("tasks", decor.WC{W: 6, C: decor.DindentRight}),
				decor.CountersNoUnit("%d / %d", decor.WC{W: 12}),
			),
			mpb.AppendDecorators(decor.Percentage(decor.WC{W: 5})),
		)
	}
	if done <= b.high {
		return
	}
	b.high = done
	b.bar.SetCurrent(int64(done))
}

// finish aborts an incomplete bar and waits for rendering to stop.
func (b *authorBar) finish() {
	if b.p == nil {
		return
	}
	if b.bar != nil && !b.bar.Completed() {
		b.bar.Abort(false)
	}
	b.p.Wait()
}
