package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shortrun/shortrun/internal/privilege"
	"github.com/shortrun/shortrun/internal/tasks"
)

// scheduleFlags holds every flag a schedule subcommand may register.
type scheduleFlags struct {
	exe      string
	elevated bool
	disabled bool
	remove   bool
	preview  int

	time   string
	date   string
	every  int
	days   []string
	months []string
	idle   int

	startDate   string
	endDate     string
	endTime     string
	duration    string
	repeatEvery int
	repeatFor   string
	randomDelay int
	delay       int
	stopAtEnd   bool
}

// trigger assembles the flags for kind. Range checks happen in
// Trigger.Normalize.
func (f *scheduleFlags) trigger(kind tasks.Kind) tasks.Trigger {
	t := tasks.Trigger{
		Kind:               kind,
		Time:               f.time,
		Date:               f.date,
		Interval:           f.every,
		Days:               splitList(f.days),
		Months:             splitList(f.months),
		IdleMinutes:        f.idle,
		RandomDelayMinutes: f.randomDelay,
		DelayMinutes:       f.delay,
		StopAtDurationEnd:  f.stopAtEnd,
	}
	w := tasks.Window{StartDate: f.startDate, EndDate: f.endDate, EndTime: f.endTime, Duration: f.duration}
	if w != (tasks.Window{}) {
		t.Window = &w
	}
	if f.repeatEvery > 0 || f.repeatFor != "" {
		t.Repeat = &tasks.Repeat{EveryMinutes: f.repeatEvery, For: f.repeatFor}
	}
	return t
}

func newScheduleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Create a scheduled task that launches an alias",
	}
	cmd.AddCommand(
		newKindCmd(a, tasks.KindLogon, "logon", "Run at user logon"),
		newKindCmd(a, tasks.KindOnStart, "boot", "Run at system start"),
		newKindCmd(a, tasks.KindDaily, "daily", "Run every N days at a time"),
		newKindCmd(a, tasks.KindMinute, "minute", "Run every N minutes"),
		newKindCmd(a, tasks.KindHourly, "hourly", "Run every N hours"),
		newKindCmd(a, tasks.KindWeekly, "weekly", "Run on weekdays every N weeks"),
		newKindCmd(a, tasks.KindMonthly, "monthly", "Run on days of the month"),
		newKindCmd(a, tasks.KindOnIdle, "idle", "Run when the machine is idle"),
		newKindCmd(a, tasks.KindOnce, "once", "Run once at a date and time"),
	)
	return cmd
}

func newKindCmd(a *app, kind tasks.Kind, use, short string) *cobra.Command {
	f := &scheduleFlags{}
	cmd := &cobra.Command{
		Use:   use + " <alias>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSchedule(cmd, kind, args[0], f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.exe, "exe", "", "program to run (default is the alias's target)")
	fl.BoolVar(&f.elevated, "elevated", false, "register with the highest run level (default from run_elevated)")
	fl.BoolVar(&f.disabled, "disabled", false, "create the task disabled")

	switch kind {
	case tasks.KindLogon, tasks.KindOnStart:
		fl.IntVar(&f.delay, "delay", 0, "minutes to wait after the event")
		fl.BoolVar(&f.remove, "remove", false, "delete the task instead of creating it")
		return cmd
	case tasks.KindOnIdle:
		fl.IntVar(&f.idle, "idle", 0, "idle minutes before the task runs (1-999)")
		return cmd
	case tasks.KindDaily:
		fl.StringVar(&f.time, "time", "", "start time HH:MM")
		fl.IntVar(&f.every, "every", 1, "run every N days (1-365)")
	case tasks.KindMinute:
		fl.StringVar(&f.time, "start", "", "first run HH:MM")
		fl.IntVar(&f.every, "every", 1, "run every N minutes (1-1439)")
	case tasks.KindHourly:
		fl.StringVar(&f.time, "start", "", "first run HH:MM")
		fl.IntVar(&f.every, "every", 1, "run every N hours (1-168)")
	case tasks.KindWeekly:
		fl.StringVar(&f.time, "time", "", "start time HH:MM")
		fl.StringSliceVar(&f.days, "days", nil, "weekdays, e.g. MON,WED,FRI")
		fl.IntVar(&f.every, "every", 1, "run every N weeks (1-52)")
	case tasks.KindMonthly:
		fl.StringVar(&f.time, "time", "", "start time HH:MM")
		fl.StringSliceVar(&f.days, "days", nil, "days of the month, 1-31 or LAST")
		fl.StringSliceVar(&f.months, "months", nil, "months, 1-12 or JAN..DEC")
		fl.IntVar(&f.every, "every", 1, "run every N months (1-12)")
	case tasks.KindOnce:
		fl.StringVar(&f.date, "date", "", "run date YYYY-MM-DD")
		fl.StringVar(&f.time, "time", "", "run time HH:MM")
	}

	fl.IntVar(&f.preview, "preview", 0, "print the next N run times and exit without creating")
	fl.IntVar(&f.randomDelay, "random-delay", 0, "random delay in minutes")
	fl.BoolVar(&f.stopAtEnd, "stop-at-end", false, "stop the running program when the repetition ends")
	fl.StringVar(&f.startDate, "start-date", "", "first day the task is active")
	fl.StringVar(&f.endDate, "end-date", "", "last day the task is active")
	if kind != tasks.KindOnce {
		fl.StringVar(&f.endTime, "end-time", "", "daily end time HH:MM")
		fl.StringVar(&f.duration, "duration", "", "daily active span HHHH:MM")
	}
	if kind != tasks.KindMinute && kind != tasks.KindHourly {
		fl.IntVar(&f.repeatEvery, "repeat-every", 0, "repeat every N minutes after each start")
		fl.StringVar(&f.repeatFor, "repeat-for", "", "repeat for HHHH:MM")
	}
	return cmd
}

func (a *app) runSchedule(cmd *cobra.Command, kind tasks.Kind, alias string, f *scheduleFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	trig := f.trigger(kind)

	if f.preview > 0 {
		runs, err := trig.NextRuns(a.now(), f.preview)
		if err != nil {
			return err
		}
		for _, t := range runs {
			fmt.Fprintln(out, t.Format("Mon 2006-01-02 15:04"))
		}
		return nil
	}

	if f.remove {
		name := tasks.TaskName(alias, kind, "")
		if err := a.sched.Delete(ctx, name); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s\n", name)
		return nil
	}

	exe, err := a.scheduleTarget(alias, f.exe)
	if err != nil {
		return err
	}
	elevated := a.cfg.RunElevated
	if cmd.Flags().Changed("elevated") {
		elevated = f.elevated
	}
	if msg := privilege.HighestWarning(elevated); msg != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", msg)
	}

	created, err := a.sched.Create(ctx, alias, exe, trig, elevated)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created %s\n", created.Name)
	for _, o := range created.Patches {
		fmt.Fprintf(out, "  %s\n", o)
	}
	if f.disabled {
		if err := a.sched.SetEnabled(ctx, created.Name, false); err != nil {
			return err
		}
		fmt.Fprintln(out, "  disabled")
	}
	return nil
}

// scheduleTarget prefers an explicit --exe and otherwise looks the alias up.
func (a *app) scheduleTarget(alias, exe string) (string, error) {
	if exe != "" {
		return a.targetOf(exe)
	}
	e, err := a.aliases.Get(alias)
	if err != nil {
		return "", fmt.Errorf("%w (pass --exe to schedule a program without an alias)", err)
	}
	return e.ExePath, nil
}

// splitList accepts repeated flags and comma or space separated values.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, part)
		}
	}
	return out
}
