package tasks

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Kind is the schedule type of a task.
type Kind string

const (
	KindLogon   Kind = "LOGON"
	KindOnStart Kind = "ONSTART"
	KindDaily   Kind = "DAILY"
	KindMinute  Kind = "MINUTE"
	KindHourly  Kind = "HOURLY"
	KindWeekly  Kind = "WEEKLY"
	KindMonthly Kind = "MONTHLY"
	KindOnce    Kind = "ONCE"
	KindOnIdle  Kind = "ONIDLE"
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindLogon, KindOnStart, KindDaily, KindMinute, KindHourly, KindWeekly, KindMonthly, KindOnce, KindOnIdle}

// ParseKind accepts a kind name case-insensitively. BOOT and ONLOGON are
// accepted as aliases.
func ParseKind(s string) (Kind, error) {
	switch up := strings.ToUpper(strings.TrimSpace(s)); up {
	case "BOOT":
		return KindOnStart, nil
	case "ONLOGON":
		return KindLogon, nil
	default:
		if slices.Contains(Kinds, Kind(up)) {
			return Kind(up), nil
		}
	}
	return "", &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown trigger kind %q", s)}
}

// schedule is the /SC value for k.
func (k Kind) schedule() string {
	if k == KindLogon {
		return "ONLOGON"
	}
	return string(k)
}

func (k Kind) calendar() bool {
	switch k {
	case KindDaily, KindMinute, KindHourly, KindWeekly, KindMonthly, KindOnce:
		return true
	}
	return false
}

func (k Kind) windowed() bool {
	switch k {
	case KindMinute, KindHourly, KindDaily, KindWeekly, KindMonthly:
		return true
	}
	return false
}

func (k Kind) repeatable() bool {
	switch k {
	case KindDaily, KindWeekly, KindMonthly, KindOnce:
		return true
	}
	return false
}

// Window bounds a schedule: start and end date, plus either an end time or a
// duration. Maps to /SD /ED /ET /DU.
type Window struct {
	StartDate string `yaml:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate   string `yaml:"end_date,omitempty" json:"end_date,omitempty"`
	EndTime   string `yaml:"end_time,omitempty" json:"end_time,omitempty"`
	Duration  string `yaml:"duration,omitempty" json:"duration,omitempty"`
}

func (w *Window) empty() bool {
	return w == nil || *w == Window{}
}

// Repeat re-runs the task every EveryMinutes for For (H:MM). Maps to /RI
// and /DU, which is why it cannot be combined with Window.Duration.
type Repeat struct {
	EveryMinutes int    `yaml:"every_minutes" json:"every_minutes"`
	For          string `yaml:"for,omitempty" json:"for,omitempty"`
}

// Trigger describes one schedule for an alias.
type Trigger struct {
	Kind Kind `yaml:"kind" json:"kind"`
	// Time is HH:MM. For MINUTE and HOURLY it is the start time.
	Time string `yaml:"time,omitempty" json:"time,omitempty"`
	// Date is the ONCE run date, YYYY/MM/DD or YYYY-MM-DD.
	Date string `yaml:"date,omitempty" json:"date,omitempty"`
	// Interval is /MO: minutes, hours, days, weeks or months by kind.
	Interval    int      `yaml:"interval,omitempty" json:"interval,omitempty"`
	Days        []string `yaml:"days,omitempty" json:"days,omitempty"`
	Months      []string `yaml:"months,omitempty" json:"months,omitempty"`
	IdleMinutes int      `yaml:"idle_minutes,omitempty" json:"idle_minutes,omitempty"`

	Window *Window `yaml:"window,omitempty" json:"window,omitempty"`
	Repeat *Repeat `yaml:"repeat,omitempty" json:"repeat,omitempty"`

	RandomDelayMinutes int  `yaml:"random_delay_minutes,omitempty" json:"random_delay_minutes,omitempty"`
	DelayMinutes       int  `yaml:"delay_minutes,omitempty" json:"delay_minutes,omitempty"`
	StopAtDurationEnd  bool `yaml:"stop_at_duration_end,omitempty" json:"stop_at_duration_end,omitempty"`
}

// ValidationError reports the first rejected trigger field. Nothing has
// been sent to the scheduler when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var (
	hhmmRe     = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)
	durationRe = regexp.MustCompile(`^\d{1,4}:[0-5]\d(:[0-5]\d)?$`)
	weekdays   = []string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"}
	monthAbbrs = []string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN", "JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}
)

const (
	maxRepeatMinutes = 599940
	maxDelayMinutes  = 999
)

// Validate reports the first violated constraint as *ValidationError.
func (t Trigger) Validate() error {
	_, err := t.Normalize()
	return err
}

// Normalize validates t and returns the canonical form used for naming and
// argument rendering: zero-padded times, slash dates, upper-case day and
// month tokens in calendar order. A zero interval is rejected like any other
// out-of-range value; callers that allow it to be omitted apply
// WithDefaultInterval first.
func (t Trigger) Normalize() (Trigger, error) {
	n := t
	n.Days = nil
	n.Months = nil
	if t.Window != nil {
		w := *t.Window
		n.Window = &w
	}
	if t.Repeat != nil {
		r := *t.Repeat
		n.Repeat = &r
	}

	kind, err := ParseKind(string(t.Kind))
	if err != nil {
		return Trigger{}, err
	}
	n.Kind = kind

	needsTime := kind.calendar()
	if needsTime {
		clock, err := normalizeClock("time", t.Time)
		if err != nil {
			return Trigger{}, err
		}
		n.Time = clock
	} else {
		n.Time = ""
	}

	switch kind {
	case KindMinute:
		if err := checkRange("interval", "minute interval", t.Interval, 1, 1439); err != nil {
			return Trigger{}, err
		}
	case KindHourly:
		if err := checkRange("interval", "hour interval", t.Interval, 1, 168); err != nil {
			return Trigger{}, err
		}
	case KindDaily:
		if err := checkRange("interval", "day interval", t.Interval, 1, 365); err != nil {
			return Trigger{}, err
		}
	case KindWeekly:
		if err := checkRange("interval", "week interval", t.Interval, 1, 52); err != nil {
			return Trigger{}, err
		}
		days, err := normalizeWeekdays(t.Days)
		if err != nil {
			return Trigger{}, err
		}
		n.Days = days
	case KindMonthly:
		if err := checkRange("interval", "month interval", t.Interval, 1, 12); err != nil {
			return Trigger{}, err
		}
		days, err := normalizeMonthDays(t.Days)
		if err != nil {
			return Trigger{}, err
		}
		n.Days = days
		months, err := normalizeMonths(t.Months)
		if err != nil {
			return Trigger{}, err
		}
		n.Months = months
	case KindOnIdle:
		if err := checkRange("idle_minutes", "idle minutes", t.IdleMinutes, 1, 999); err != nil {
			return Trigger{}, err
		}
		n.Interval = 0
	case KindOnce:
		date, err := normalizeDate("date", t.Date)
		if err != nil {
			return Trigger{}, err
		}
		n.Date = date
		n.Interval = 0
	default:
		n.Interval = 0
	}
	if kind != KindOnce {
		n.Date = ""
	}
	if kind != KindOnIdle {
		n.IdleMinutes = 0
	}

	if !n.Window.empty() {
		if !kind.windowed() {
			return Trigger{}, invalid("window", "start/end boundaries are not supported for %s", kind)
		}
		w := n.Window
		if w.StartDate != "" {
			if w.StartDate, err = normalizeDate("window.start_date", w.StartDate); err != nil {
				return Trigger{}, err
			}
		}
		if w.EndDate != "" {
			if w.EndDate, err = normalizeDate("window.end_date", w.EndDate); err != nil {
				return Trigger{}, err
			}
		}
		if w.EndTime != "" {
			if w.EndTime, err = normalizeClock("window.end_time", w.EndTime); err != nil {
				return Trigger{}, err
			}
		}
		if w.Duration != "" && !durationRe.MatchString(w.Duration) {
			return Trigger{}, invalid("window.duration", "duration %q must look like HHHH:MM", w.Duration)
		}
		if w.EndTime != "" && w.Duration != "" {
			return Trigger{}, invalid("window", "end time and duration are mutually exclusive")
		}
		if w.StartDate != "" && w.EndDate != "" && w.EndDate < w.StartDate {
			return Trigger{}, invalid("window.end_date", "end date %s is before start date %s", w.EndDate, w.StartDate)
		}
	} else {
		n.Window = nil
	}

	if n.Repeat != nil {
		if !kind.repeatable() {
			return Trigger{}, invalid("repeat", "repetition is not supported for %s", kind)
		}
		if err := checkRange("repeat.every_minutes", "repeat interval", n.Repeat.EveryMinutes, 1, maxRepeatMinutes); err != nil {
			return Trigger{}, err
		}
		if n.Repeat.For != "" && !durationRe.MatchString(n.Repeat.For) {
			return Trigger{}, invalid("repeat.for", "duration %q must look like HHHH:MM", n.Repeat.For)
		}
		if n.Window != nil && n.Window.Duration != "" {
			return Trigger{}, invalid("repeat", "repetition and window duration are mutually exclusive")
		}
		if n.Window != nil && n.Window.EndTime != "" && n.Repeat.For != "" {
			return Trigger{}, invalid("repeat", "repetition duration and window end time are mutually exclusive")
		}
	}

	if t.RandomDelayMinutes != 0 {
		if !kind.calendar() {
			return Trigger{}, invalid("random_delay_minutes", "random delay is not supported for %s", kind)
		}
		if err := checkRange("random_delay_minutes", "random delay", t.RandomDelayMinutes, 1, maxDelayMinutes); err != nil {
			return Trigger{}, err
		}
	}
	if t.DelayMinutes != 0 {
		if kind != KindLogon && kind != KindOnStart {
			return Trigger{}, invalid("delay_minutes", "trigger delay is only supported for LOGON and ONSTART")
		}
		if err := checkRange("delay_minutes", "trigger delay", t.DelayMinutes, 1, maxDelayMinutes); err != nil {
			return Trigger{}, err
		}
	}
	if t.StopAtDurationEnd && !n.hasRepetition() {
		return Trigger{}, invalid("stop_at_duration_end", "requires a duration window or repetition")
	}
	return n, nil
}

// WithDefaultInterval returns t with Interval set to 1 when it is zero on a
// DAILY, WEEKLY or MONTHLY trigger. Other kinds are returned unchanged.
func (t Trigger) WithDefaultInterval() Trigger {
	if t.Interval != 0 {
		return t
	}
	switch k, _ := ParseKind(string(t.Kind)); k {
	case KindDaily, KindWeekly, KindMonthly:
		t.Interval = 1
	}
	return t
}

// hasRepetition reports whether the created task will carry a Repetition
// element for StopAtDurationEnd to act on.
func (t Trigger) hasRepetition() bool {
	switch {
	case t.Kind == KindMinute || t.Kind == KindHourly:
		return true
	case t.Repeat != nil:
		return true
	case t.Window != nil && (t.Window.Duration != "" || t.Window.EndTime != ""):
		return true
	}
	return false
}

// Args renders the /Create invocation. t must be normalised. A window
// duration and a repetition are never both emitted.
func (t Trigger) Args(name, command string, elevated bool) []string {
	args := []string{"/Create", "/TN", name, "/SC", t.Kind.schedule()}

	switch t.Kind {
	case KindMinute, KindHourly:
		args = append(args, "/MO", itoa(t.Interval))
	case KindDaily:
		if t.Interval > 1 {
			args = append(args, "/MO", itoa(t.Interval))
		}
	case KindWeekly:
		args = append(args, "/MO", itoa(t.Interval), "/D", strings.Join(t.Days, ","))
	case KindMonthly:
		args = append(args, "/MO", itoa(t.Interval), "/D", strings.Join(t.Days, ","))
		if len(t.Months) > 0 {
			args = append(args, "/M", strings.Join(t.Months, ","))
		}
	case KindOnIdle:
		args = append(args, "/I", itoa(t.IdleMinutes))
	}

	var w Window
	if t.Window != nil {
		w = *t.Window
	}
	if t.Kind == KindOnce {
		w.StartDate = t.Date
	}
	if w.StartDate != "" {
		args = append(args, "/SD", w.StartDate)
	}
	if t.Time != "" {
		args = append(args, "/ST", t.Time)
	}
	if w.EndDate != "" {
		args = append(args, "/ED", w.EndDate)
	}
	if w.EndTime != "" {
		args = append(args, "/ET", w.EndTime)
	}
	if t.Repeat != nil {
		if t.Repeat.For != "" {
			args = append(args, "/DU", t.Repeat.For)
		}
		args = append(args, "/RI", itoa(t.Repeat.EveryMinutes))
	} else if w.Duration != "" {
		args = append(args, "/DU", w.Duration)
	}

	level := "LIMITED"
	if elevated {
		level = "HIGHEST"
	}
	return append(args, "/TR", Quote(command), "/RL", level, "/F")
}

// Quote wraps an executable path in double quotes for /TR.
func Quote(path string) string {
	return `"` + strings.Trim(strings.TrimSpace(path), `"`) + `"`
}

func checkRange(field, what string, v, lo, hi int) error {
	if v < lo || v > hi {
		return invalid(field, "%s must be between %d and %d, got %d", what, lo, hi, v)
	}
	return nil
}

func normalizeClock(field, s string) (string, error) {
	m := hhmmRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", invalid(field, "time %q must be HH:MM (24h)", s)
	}
	h, _ := strconv.Atoi(m[1])
	return fmt.Sprintf("%02d:%s", h, m[2]), nil
}

func normalizeDate(field, s string) (string, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "-", "/")
	d, err := time.Parse("2006/01/02", s)
	if err != nil {
		return "", invalid(field, "date %q must be YYYY/MM/DD or YYYY-MM-DD", s)
	}
	return d.Format("2006/01/02"), nil
}

func normalizeWeekdays(days []string) ([]string, error) {
	want := map[string]bool{}
	for _, d := range days {
		d = strings.ToUpper(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if !slices.Contains(weekdays, d) {
			return nil, invalid("days", "weekday %q must be one of %s", d, strings.Join(weekdays, ","))
		}
		want[d] = true
	}
	if len(want) == 0 {
		return nil, invalid("days", "at least one weekday is required")
	}
	var out []string
	for _, d := range weekdays {
		if want[d] {
			out = append(out, d)
		}
	}
	return out, nil
}

func normalizeMonthDays(days []string) ([]string, error) {
	want := map[int]bool{}
	last := false
	for _, d := range days {
		d = strings.ToUpper(strings.TrimSpace(d))
		switch {
		case d == "":
			continue
		case d == "LAST":
			last = true
			continue
		}
		v, err := strconv.Atoi(d)
		if err != nil || v < 1 || v > 31 {
			return nil, invalid("days", "day of month %q must be 1-31 or LAST", d)
		}
		want[v] = true
	}
	if len(want) == 0 && !last {
		return nil, invalid("days", "at least one day of month (1-31 or LAST) is required")
	}
	var out []string
	for v := 1; v <= 31; v++ {
		if want[v] {
			out = append(out, itoa(v))
		}
	}
	if last {
		out = append(out, "LAST")
	}
	return out, nil
}

func normalizeMonths(months []string) ([]string, error) {
	want := map[int]bool{}
	for _, m := range months {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if v, err := strconv.Atoi(m); err == nil {
			if v < 1 || v > 12 {
				return nil, invalid("months", "month %q must be 1-12 or JAN-DEC", m)
			}
			want[v-1] = true
			continue
		}
		idx := slices.Index(monthAbbrs, m)
		if idx < 0 {
			return nil, invalid("months", "month %q must be 1-12 or JAN-DEC", m)
		}
		want[idx] = true
	}
	var out []string
	for i, abbr := range monthAbbrs {
		if want[i] {
			out = append(out, abbr)
		}
	}
	return out, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
