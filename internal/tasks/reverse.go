package tasks

import (
	"fmt"

	"github.com/shortrun/shortrun/internal/taskxml"
)

// TriggerFromDetails rebuilds the Trigger that would recreate the task d
// was parsed from. The result is normalised; an error means the details do
// not describe a schedule this package can express.
func TriggerFromDetails(d *taskxml.Details) (Trigger, error) {
	if d == nil {
		return Trigger{}, invalid("kind", "no task details")
	}
	kind, err := ParseKind(d.Kind)
	if err != nil {
		return Trigger{}, err
	}
	t := Trigger{Kind: kind}

	switch kind {
	case KindLogon, KindOnStart:
		t.DelayMinutes, _ = taskxml.ParseMinutes(d.Delay)
		return t.Normalize()
	case KindOnIdle:
		t.IdleMinutes = d.IdleMinutes
		return t.Normalize()
	}

	t.Time = d.StartTime
	t.RandomDelayMinutes, _ = taskxml.ParseMinutes(d.RandomDelay)
	t.StopAtDurationEnd = d.StopAtDurationEnd

	switch kind {
	case KindOnce:
		t.Date = d.StartDate
	case KindMinute, KindHourly, KindDaily:
		t.Interval = d.Interval
	case KindWeekly:
		t.Interval = d.Interval
		t.Days = d.Weekdays
	case KindMonthly:
		t.Interval = d.Interval
		t.Days = d.DaysOfMonth
		// An every-N-months schedule is stored as an expanded month list.
		if t.Interval <= 1 {
			t.Months = d.Months
		}
	}

	if kind.windowed() && (d.StartDate != "" || d.EndDate != "") {
		t.Window = &Window{StartDate: d.StartDate, EndDate: d.EndDate}
	}

	duration := ""
	if m, ok := taskxml.ParseMinutes(d.RepeatDuration); ok && m > 0 {
		duration = fmt.Sprintf("%d:%02d", m/60, m%60)
	}
	switch {
	case kind == KindMinute || kind == KindHourly:
		if duration != "" {
			if t.Window == nil {
				t.Window = &Window{}
			}
			t.Window.Duration = duration
		}
	case d.RepeatEveryMinutes > 0:
		t.Repeat = &Repeat{EveryMinutes: d.RepeatEveryMinutes, For: duration}
	}
	return t.Normalize()
}
