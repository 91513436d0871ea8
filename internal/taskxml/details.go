package taskxml

import (
	"regexp"
	"strconv"
	"strings"
)

// Details is a best-effort reconstruction of one task's trigger. Fields the
// probes could not find stay at their zero value.
type Details struct {
	Name      string
	Kind      string
	StartDate string // YYYY/MM/DD
	StartTime string // HH:MM
	EndDate   string
	EndTime   string

	// Interval is the /MO value: minutes for MINUTE, hours for HOURLY, days
	// for DAILY, weeks for WEEKLY, months for MONTHLY.
	Interval      int
	WeeksInterval int
	Weekdays      []string
	DaysOfMonth   []string
	Months        []string
	IdleMinutes   int

	RepeatEveryMinutes int
	RepeatDuration     string
	StopAtDurationEnd  bool
	RandomDelay        string
	Delay              string

	Enabled bool
	// Elevated is true for the HighestAvailable run level.
	Elevated bool
	Author   string
	Command  string
}

var (
	weekdayAbbr = map[string]string{
		"Monday": "MON", "Tuesday": "TUE", "Wednesday": "WED", "Thursday": "THU",
		"Friday": "FRI", "Saturday": "SAT", "Sunday": "SUN",
	}
	monthAbbr = map[string]string{
		"January": "JAN", "February": "FEB", "March": "MAR", "April": "APR",
		"May": "MAY", "June": "JUN", "July": "JUL", "August": "AUG",
		"September": "SEP", "October": "OCT", "November": "NOV", "December": "DEC",
	}
	kindTokens = []string{"LOGON", "ONSTART", "DAILY", "MINUTE", "HOURLY", "WEEKLY", "MONTHLY", "ONCE", "ONIDLE"}
	everyRe    = regexp.MustCompile(`_every(\d+)(?:_|$)`)
	boundaryRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})T(\d{2}):(\d{2})`)
)

// Parse reverse-engineers the trigger of a task this tool created. name is
// the task name and is used as a hint where the XML alone is ambiguous
// (ONCE with repetition looks like MINUTE, month intervals are expanded into
// month lists). Tasks from other tools are classified on a best-effort basis.
func Parse(name, doc string) *Details {
	d := &Details{Name: strings.TrimLeft(name, `\`), Enabled: true}
	var idleDuration string

	if reg, ok := Block(doc, "RegistrationInfo"); ok {
		d.Author, _ = ChildText(reg, "Author")
	}
	if principal, ok := Block(doc, "Principal"); ok {
		level, _ := ChildText(principal, "RunLevel")
		d.Elevated = strings.EqualFold(level, "HighestAvailable")
	}
	if settings, ok := Block(doc, "Settings"); ok {
		if v, ok := directChildText(settings, "Enabled", "IdleSettings", "RestartOnFailure"); ok {
			d.Enabled = !strings.EqualFold(v, "false")
		}
		if idle, ok := Block(settings, "IdleSettings"); ok {
			idleDuration, _ = ChildText(idle, "Duration")
		}
	}
	if exec, ok := Block(doc, "Exec"); ok {
		d.Command, _ = ChildText(exec, "Command")
		if args, ok := ChildText(exec, "Arguments"); ok && args != "" {
			d.Command += " " + args
		}
	}

	trigger, tag := firstTrigger(doc)
	d.Kind = kindFromName(d.Name)

	switch tag {
	case "LogonTrigger":
		d.Kind = "LOGON"
		d.Delay, _ = ChildText(trigger, "Delay")
		return d
	case "BootTrigger":
		d.Kind = "ONSTART"
		d.Delay, _ = ChildText(trigger, "Delay")
		return d
	case "IdleTrigger":
		d.Kind = "ONIDLE"
		d.IdleMinutes, _ = ParseMinutes(idleDuration)
		return d
	case "":
		return d
	}

	if v, ok := ChildText(trigger, "StartBoundary"); ok {
		d.StartDate, d.StartTime = splitBoundary(v)
	}
	if v, ok := ChildText(trigger, "EndBoundary"); ok {
		d.EndDate, d.EndTime = splitBoundary(v)
	}
	if v, ok := directChildText(trigger, "Enabled", "Repetition"); ok && strings.EqualFold(v, "false") {
		d.Enabled = false
	}
	d.RandomDelay, _ = ChildText(trigger, "RandomDelay")

	repeatEvery := 0
	if rep, ok := Block(trigger, "Repetition"); ok {
		if v, ok := ChildText(rep, "Interval"); ok {
			repeatEvery, _ = ParseMinutes(v)
		}
		d.RepeatDuration, _ = ChildText(rep, "Duration")
		if v, ok := ChildText(rep, "StopAtDurationEnd"); ok {
			d.StopAtDurationEnd = strings.EqualFold(v, "true")
		}
	}

	switch {
	case Has(trigger, "ScheduleByWeek"):
		d.Kind = "WEEKLY"
		week, _ := Block(trigger, "ScheduleByWeek")
		d.WeeksInterval = atoiDefault(childTextOr(week, "WeeksInterval"), 1)
		d.Interval = d.WeeksInterval
		for _, day := range ChildNames(week, "DaysOfWeek") {
			if abbr, ok := weekdayAbbr[day]; ok {
				d.Weekdays = append(d.Weekdays, abbr)
			}
		}
		d.RepeatEveryMinutes = repeatEvery
	case Has(trigger, "ScheduleByMonth"):
		d.Kind = "MONTHLY"
		month, _ := Block(trigger, "ScheduleByMonth")
		if days, ok := Block(month, "DaysOfMonth"); ok {
			for _, v := range ChildTexts(days, "Day") {
				if strings.EqualFold(v, "Last") {
					v = "LAST"
				}
				d.DaysOfMonth = append(d.DaysOfMonth, v)
			}
		}
		for _, m := range ChildNames(month, "Months") {
			if abbr, ok := monthAbbr[m]; ok {
				d.Months = append(d.Months, abbr)
			}
		}
		d.Interval = intervalFromName(d.Name, "MONTHLY", 1)
		d.RepeatEveryMinutes = repeatEvery
	case Has(trigger, "ScheduleByDay"):
		d.Kind = "DAILY"
		day, _ := Block(trigger, "ScheduleByDay")
		d.Interval = atoiDefault(childTextOr(day, "DaysInterval"), 1)
		d.RepeatEveryMinutes = repeatEvery
	case tag == "TimeTrigger" && repeatEvery > 0 && d.Kind != "ONCE":
		if d.Kind == "HOURLY" || (d.Kind != "MINUTE" && repeatEvery%60 == 0) {
			d.Kind = "HOURLY"
			d.Interval = repeatEvery / 60
		} else {
			d.Kind = "MINUTE"
			d.Interval = repeatEvery
		}
	default:
		d.Kind = "ONCE"
		d.RepeatEveryMinutes = repeatEvery
	}
	return d
}

func firstTrigger(doc string) (string, string) {
	triggers, ok := Block(doc, "Triggers")
	if !ok {
		triggers = doc
	}
	spans := findAll(triggers, "LogonTrigger", "BootTrigger", "IdleTrigger", "CalendarTrigger", "TimeTrigger")
	if len(spans) == 0 {
		return "", ""
	}
	return triggers[spans[0].start:spans[0].end], spans[0].tag
}

// kindFromName extracts the kind token from ShortRun_<alias>_<KIND>[_...].
// Aliases may themselves contain underscores, so the last token wins.
func kindFromName(name string) string {
	best, at := "", -1
	for _, k := range kindTokens {
		marker := "_" + k
		idx := strings.LastIndex(name, marker)
		if idx < 0 {
			continue
		}
		end := idx + len(marker)
		if end != len(name) && name[end] != '_' {
			continue
		}
		if idx > at {
			best, at = k, idx
		}
	}
	return best
}

// intervalFromName reads _everyN from the part of name after the kind
// token, so an alias such as backup_every2 is not mistaken for it.
func intervalFromName(name, kind string, def int) int {
	marker := "_" + kind + "_"
	idx := strings.LastIndex(name, marker)
	if idx < 0 {
		return def
	}
	m := everyRe.FindStringSubmatch(name[idx+len(marker)-1:])
	if m == nil {
		return def
	}
	return atoiDefault(m[1], def)
}

// directChildText looks up tag in block after removing the nested elements
// named in skip, so Settings/Enabled is not confused with a nested Enabled.
func directChildText(block, tag string, skip ...string) (string, bool) {
	stripped, _ := replaceSpans(block, func(_, _ string) string { return "" }, skip...)
	// Drop the outer tag so a self-match is impossible.
	if open := strings.Index(stripped, ">"); open >= 0 {
		stripped = stripped[open+1:]
	}
	return ChildText(stripped, tag)
}

func splitBoundary(v string) (date, clock string) {
	m := boundaryRe.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return "", ""
	}
	return m[1] + "/" + m[2] + "/" + m[3], m[4] + ":" + m[5]
}

func childTextOr(block, tag string) string {
	v, _ := ChildText(block, tag)
	return v
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
