package taskxml

import (
	"fmt"
	"strings"
)

// Patch names, as reported in Outcome.Patch.
const (
	PatchAuthor            = "author"
	PatchRandomDelay       = "random_delay"
	PatchStopAtDurationEnd = "stop_at_duration_end"
	PatchTriggerDelay      = "trigger_delay"
	PatchURI               = "uri"
)

// Patch is a pure document edit.
type Patch func(doc string) (string, Outcome)

// Apply runs patches in order, threading the document through each one.
func Apply(doc string, patches ...Patch) (string, []Outcome) {
	outcomes := make([]Outcome, 0, len(patches))
	for _, p := range patches {
		var o Outcome
		doc, o = p(doc)
		outcomes = append(outcomes, o)
	}
	return doc, outcomes
}

// Changed reports whether any outcome was applied.
func Changed(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Status == StatusApplied {
			return true
		}
	}
	return false
}

var calendarTriggers = []string{"CalendarTrigger", "TimeTrigger"}

// SetAuthor writes RegistrationInfo/Author.
func SetAuthor(doc, author string) (string, Outcome) {
	if strings.TrimSpace(author) == "" {
		return doc, Skipped(PatchAuthor, "empty author")
	}
	out, n := replaceSpans(doc, func(_, block string) string {
		return setChild(block, "Author", author, "URI", "Description", "Version", "Documentation", "Source", "SecurityDescriptor")
	}, "RegistrationInfo")
	if n == 0 {
		return doc, Skipped(PatchAuthor, "no RegistrationInfo element")
	}
	return out, Applied(PatchAuthor)
}

// SetURI rewrites RegistrationInfo/URI to \name.
func SetURI(doc, name string) (string, Outcome) {
	name = strings.TrimLeft(strings.TrimSpace(name), `\`)
	if name == "" {
		return doc, Skipped(PatchURI, "empty task name")
	}
	out, n := replaceSpans(doc, func(_, block string) string {
		return setChild(block, "URI", `\`+name)
	}, "RegistrationInfo")
	if n == 0 {
		return doc, Skipped(PatchURI, "no RegistrationInfo element")
	}
	return out, Applied(PatchURI)
}

// SetRandomDelay writes RandomDelay into every CalendarTrigger or
// TimeTrigger. Other trigger kinds are left alone.
func SetRandomDelay(doc string, minutes int) (string, Outcome) {
	if minutes <= 0 {
		return doc, Skipped(PatchRandomDelay, "no delay requested")
	}
	value := FormatMinutes(minutes)
	out, n := replaceSpans(doc, func(tag, block string) string {
		if tag == "CalendarTrigger" {
			// RandomDelay precedes the ScheduleBy* choice.
			return setChild(block, "RandomDelay", value, "ScheduleByDay", "ScheduleByWeek", "ScheduleByMonth", "ScheduleByMonthDayOfWeek")
		}
		return setChild(block, "RandomDelay", value)
	}, calendarTriggers...)
	if n == 0 {
		return doc, Skipped(PatchRandomDelay, "no CalendarTrigger or TimeTrigger element")
	}
	return out, Applied(PatchRandomDelay)
}

// SetStopAtDurationEnd sets Repetition/StopAtDurationEnd inside calendar and
// time triggers. Triggers without a Repetition block are skipped.
func SetStopAtDurationEnd(doc string, stop bool) (string, Outcome) {
	value := fmt.Sprintf("%t", stop)
	touched := 0
	out, n := replaceSpans(doc, func(_, trigger string) string {
		patched, m := replaceSpans(trigger, func(_, rep string) string {
			return setChild(rep, "StopAtDurationEnd", value)
		}, "Repetition")
		touched += m
		return patched
	}, calendarTriggers...)
	switch {
	case n == 0:
		return doc, Skipped(PatchStopAtDurationEnd, "no CalendarTrigger or TimeTrigger element")
	case touched == 0:
		return doc, Skipped(PatchStopAtDurationEnd, "trigger has no Repetition element")
	}
	return out, Applied(PatchStopAtDurationEnd)
}

// SetTriggerDelay writes Delay into LogonTrigger and BootTrigger blocks.
func SetTriggerDelay(doc string, minutes int) (string, Outcome) {
	if minutes <= 0 {
		return doc, Skipped(PatchTriggerDelay, "no delay requested")
	}
	value := FormatMinutes(minutes)
	out, n := replaceSpans(doc, func(_, block string) string {
		return setChild(block, "Delay", value)
	}, "LogonTrigger", "BootTrigger")
	if n == 0 {
		return doc, Skipped(PatchTriggerDelay, "no LogonTrigger or BootTrigger element")
	}
	return out, Applied(PatchTriggerDelay)
}

// Author returns SetAuthor as a Patch.
func Author(author string) Patch {
	return func(doc string) (string, Outcome) { return SetAuthor(doc, author) }
}

// URI returns SetURI as a Patch.
func URI(name string) Patch {
	return func(doc string) (string, Outcome) { return SetURI(doc, name) }
}

// RandomDelay returns SetRandomDelay as a Patch.
func RandomDelay(minutes int) Patch {
	return func(doc string) (string, Outcome) { return SetRandomDelay(doc, minutes) }
}

// StopAtDurationEnd returns SetStopAtDurationEnd as a Patch.
func StopAtDurationEnd(stop bool) Patch {
	return func(doc string) (string, Outcome) { return SetStopAtDurationEnd(doc, stop) }
}

// TriggerDelay returns SetTriggerDelay as a Patch.
func TriggerDelay(minutes int) Patch {
	return func(doc string) (string, Outcome) { return SetTriggerDelay(doc, minutes) }
}
