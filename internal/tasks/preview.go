package tasks

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrPreviewUnsupported is returned by NextRuns for kinds whose firing
// depends on machine events (logon, boot, idle) or that cron cannot express.
var ErrPreviewUnsupported = errors.New("preview not supported for this trigger")

var previewParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// maxPreviewSteps bounds the search when interval filters reject most
// candidate times.
const maxPreviewSteps = 20000

// NextRuns lists up to n start times at or after from, in from's location.
// Repetition within a day is not expanded.
func (t Trigger) NextRuns(from time.Time, n int) ([]time.Time, error) {
	t, err := t.Normalize()
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	switch t.Kind {
	case KindDaily, KindWeekly, KindMonthly, KindOnce:
	default:
		return nil, ErrPreviewUnsupported
	}
	loc := from.Location()

	var notBefore, notAfter time.Time
	if t.Window != nil {
		if t.Window.StartDate != "" {
			notBefore, _ = time.ParseInLocation("2006/01/02", t.Window.StartDate, loc)
		}
		if t.Window.EndDate != "" {
			end, _ := time.ParseInLocation("2006/01/02", t.Window.EndDate, loc)
			notAfter = end.AddDate(0, 0, 1)
		}
	}

	if t.Kind == KindOnce {
		at, err := time.ParseInLocation("2006/01/02 15:04", t.Date+" "+t.Time, loc)
		if err != nil {
			return nil, err
		}
		if at.Before(from) {
			return nil, nil
		}
		return []time.Time{at}, nil
	}

	spec, err := t.cronSpec()
	if err != nil {
		return nil, err
	}
	sched, err := previewParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w", spec, err)
	}

	anchor := from
	if !notBefore.IsZero() {
		anchor = notBefore
	}
	cursor := from.Add(-time.Second)
	if notBefore.After(from) {
		cursor = notBefore.Add(-time.Second)
	}

	var out []time.Time
	for step := 0; step < maxPreviewSteps && len(out) < n; step++ {
		next := sched.Next(cursor)
		if next.IsZero() || (!notAfter.IsZero() && !next.Before(notAfter)) {
			break
		}
		cursor = next
		if t.keep(anchor, next) {
			out = append(out, next)
		}
	}
	return out, nil
}

// cronSpec renders the calendar part of t as a five-field cron expression.
func (t Trigger) cronSpec() (string, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(t.Time, "%d:%d", &hour, &minute); err != nil {
		return "", fmt.Errorf("preview time %q: %w", t.Time, err)
	}
	switch t.Kind {
	case KindDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case KindWeekly:
		return fmt.Sprintf("%d %d * * %s", minute, hour, strings.Join(t.Days, ",")), nil
	case KindMonthly:
		for _, d := range t.Days {
			if d == "LAST" {
				return "", ErrPreviewUnsupported
			}
		}
		months := "*"
		switch {
		case len(t.Months) > 0:
			months = strings.Join(t.Months, ",")
		case t.Interval > 1:
			months = fmt.Sprintf("1-12/%d", t.Interval)
		}
		return fmt.Sprintf("%d %d %s %s *", minute, hour, strings.Join(t.Days, ","), months), nil
	default:
		return "", ErrPreviewUnsupported
	}
}

// keep applies the day and week intervals cron cannot express, counted
// from anchor.
func (t Trigger) keep(anchor, at time.Time) bool {
	if t.Interval <= 1 {
		return true
	}
	start := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, at.Location())
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	days := int(day.Sub(start).Hours()+12) / 24
	switch t.Kind {
	case KindDaily:
		return days%t.Interval == 0
	case KindWeekly:
		// Weeks start on Monday.
		offset := (int(start.Weekday()) + 6) % 7
		return ((days+offset)/7)%t.Interval == 0
	}
	return true
}
