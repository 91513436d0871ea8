package tasks

import (
	"regexp"
	"strings"
)

// TaskPrefix namespaces every task this tool creates.
const TaskPrefix = "ShortRun_"

const maxSanitized = 60

var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Sanitize trims s, collapses each run of characters outside [A-Za-z0-9_-]
// into one underscore and truncates to 60 characters.
func Sanitize(s string) string {
	s = unsafeRun.ReplaceAllString(strings.TrimSpace(s), "_")
	if len(s) > maxSanitized {
		s = s[:maxSanitized]
	}
	return s
}

// TaskName builds ShortRun_<alias>_<KIND>[_<suffix>].
func TaskName(alias string, kind Kind, suffix string) string {
	name := TaskPrefix + Sanitize(alias) + "_" + string(kind)
	if suffix != "" {
		name += "_" + Sanitize(suffix)
	}
	return name
}

// AliasPrefix is the name prefix shared by every task of one alias. The
// trailing underscore keeps alias "note" from matching "notepad" tasks.
func AliasPrefix(alias string) string {
	return TaskPrefix + Sanitize(alias) + "_"
}

// Name returns the deterministic task name for t under alias. t must
// already be normalised.
func (t Trigger) Name(alias string) string {
	return TaskName(alias, t.Kind, t.suffix())
}

func (t Trigger) suffix() string {
	clock := strings.ReplaceAll(t.Time, ":", "-")
	switch t.Kind {
	case KindDaily:
		if t.Interval > 1 {
			return clock + "_every" + itoa(t.Interval)
		}
		return clock
	case KindOnce:
		return strings.ReplaceAll(t.Date, "/", "-") + "_" + clock
	case KindMinute, KindHourly:
		return "every" + itoa(t.Interval) + "_at_" + clock
	case KindWeekly:
		return strings.Join(t.Days, ",") + "_" + clock + "_every" + itoa(t.Interval)
	case KindMonthly:
		s := "days_" + strings.Join(t.Days, ",") + "_at_" + clock + "_every" + itoa(t.Interval)
		if len(t.Months) > 0 {
			s += "_" + strings.Join(t.Months, ",")
		}
		return s
	case KindOnIdle:
		return "after" + itoa(t.IdleMinutes) + "m"
	default:
		return ""
	}
}

// AliasFromTaskName splits a name built by TaskName into its sanitized alias
// and kind. The kind token nearest the end wins, so aliases that contain
// underscores or kind words still split correctly.
func AliasFromTaskName(name string) (string, Kind, bool) {
	name = strings.TrimLeft(name, `\`)
	if !strings.HasPrefix(name, TaskPrefix) {
		return "", "", false
	}
	rest := name[len(TaskPrefix):]
	best, at := Kind(""), -1
	for _, k := range Kinds {
		marker := "_" + string(k)
		for from := len(rest); from > 0; {
			idx := strings.LastIndex(rest[:from], marker)
			if idx <= 0 {
				break
			}
			end := idx + len(marker)
			if end == len(rest) || rest[end] == '_' {
				if idx > at {
					best, at = k, idx
				}
				break
			}
			from = idx
		}
	}
	if at <= 0 {
		return "", "", false
	}
	return rest[:at], best, true
}
