package schtaskstest

import (
	"fmt"
	"strings"

	"github.com/shortrun/shortrun/internal/taskxml"
)

var (
	weekdayNames = map[string]string{
		"MON": "Monday", "TUE": "Tuesday", "WED": "Wednesday", "THU": "Thursday",
		"FRI": "Friday", "SAT": "Saturday", "SUN": "Sunday",
	}
	weekdayOrder = []string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"}
	monthNames   = []string{"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December"}
	monthIndex = map[string]int{
		"JAN": 0, "FEB": 1, "MAR": 2, "APR": 3, "MAY": 4, "JUN": 5,
		"JUL": 6, "AUG": 7, "SEP": 8, "OCT": 9, "NOV": 10, "DEC": 11,
	}
	// /RI is rejected by the real tool for these schedule types.
	noRepeat = map[string]bool{"MINUTE": true, "HOURLY": true, "ONLOGON": true, "ONSTART": true, "ONIDLE": true}
	// /SD /ED /ET /DU only apply to these.
	windowed = map[string]bool{"MINUTE": true, "HOURLY": true, "DAILY": true, "WEEKLY": true, "MONTHLY": true}
	moRange  = map[string][2]int{"MINUTE": {1, 1439}, "HOURLY": {1, 168}, "DAILY": {1, 365}, "WEEKLY": {1, 52}, "MONTHLY": {1, 12}}
)

// render builds the exported definition for a /Create without /XML. A
// non-empty second return is the diagnostic the real tool would print.
func render(name string, flags map[string]string) (string, string) {
	sc := strings.ToUpper(flags["/SC"])
	switch sc {
	case "MINUTE", "HOURLY", "DAILY", "WEEKLY", "MONTHLY", "ONCE", "ONLOGON", "ONSTART", "ONIDLE":
	default:
		return "", "ERROR: Invalid value for /SC option.\r\n"
	}
	if _, ok := flags["/TR"]; !ok {
		return "", "ERROR: The /TR option is required.\r\n"
	}
	if _, ok := flags["/RI"]; ok && noRepeat[sc] {
		return "", "ERROR: /RI is not applicable for the schedule type.\r\n"
	}
	_, hasET := flags["/ET"]
	_, hasDU := flags["/DU"]
	if hasET && hasDU {
		return "", "ERROR: /ET and /DU are mutually exclusive.\r\n"
	}
	if !windowed[sc] {
		for _, f := range []string{"/ED", "/ET"} {
			if _, ok := flags[f]; ok {
				return "", fmt.Sprintf("ERROR: %s is not applicable for the schedule type.\r\n", f)
			}
		}
		if _, ok := flags["/DU"]; ok && flags["/RI"] == "" {
			return "", "ERROR: /DU is not applicable for the schedule type.\r\n"
		}
	}
	if mo, ok := flags["/MO"]; ok {
		r, ranged := moRange[sc]
		n := atoi(mo, -1)
		if ranged && (n < r[0] || n > r[1]) {
			return "", "ERROR: Invalid value for /MO option.\r\n"
		}
	}
	if sc == "ONCE" && flags["/ST"] == "" {
		return "", "ERROR: /ST is required for the ONCE schedule type.\r\n"
	}
	if sc == "ONIDLE" && flags["/I"] == "" {
		return "", "ERROR: /I is required for the ONIDLE schedule type.\r\n"
	}

	runLevel := "LeastPrivilege"
	if strings.EqualFold(flags["/RL"], "HIGHEST") {
		runLevel = "HighestAvailable"
	}
	idle := 10
	if sc == "ONIDLE" {
		idle = atoi(flags["/I"], 10)
	}

	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-16\"?>\n")
	b.WriteString("<Task version=\"1.2\" xmlns=\"http://schemas.microsoft.com/windows/2004/02/mit/task\">\n")
	b.WriteString("  <RegistrationInfo>\n")
	fmt.Fprintf(&b, "    <Date>%sT00:00:00</Date>\n", defaultDate)
	fmt.Fprintf(&b, "    <Author>%s</Author>\n", escapeText(defaultAuthor))
	fmt.Fprintf(&b, "    <URI>\\%s</URI>\n", escapeText(strings.TrimLeft(name, `\`)))
	b.WriteString("  </RegistrationInfo>\n")
	b.WriteString("  <Triggers>\n")
	b.WriteString(trigger(sc, flags))
	b.WriteString("  </Triggers>\n")
	b.WriteString("  <Principals>\n")
	b.WriteString("    <Principal id=\"Author\">\n")
	b.WriteString("      <LogonType>InteractiveToken</LogonType>\n")
	fmt.Fprintf(&b, "      <RunLevel>%s</RunLevel>\n", runLevel)
	b.WriteString("    </Principal>\n")
	b.WriteString("  </Principals>\n")
	b.WriteString("  <Settings>\n")
	b.WriteString("    <MultipleInstancesPolicy>IgnoreNew</MultipleInstancesPolicy>\n")
	b.WriteString("    <DisallowStartIfOnBatteries>true</DisallowStartIfOnBatteries>\n")
	b.WriteString("    <StopIfGoingOnBatteries>true</StopIfGoingOnBatteries>\n")
	b.WriteString("    <AllowHardTerminate>true</AllowHardTerminate>\n")
	b.WriteString("    <StartWhenAvailable>false</StartWhenAvailable>\n")
	b.WriteString("    <RunOnlyIfNetworkAvailable>false</RunOnlyIfNetworkAvailable>\n")
	b.WriteString("    <IdleSettings>\n")
	fmt.Fprintf(&b, "      <Duration>%s</Duration>\n", taskxml.FormatMinutes(idle))
	b.WriteString("      <WaitTimeout>PT1H</WaitTimeout>\n")
	b.WriteString("      <StopOnIdleEnd>true</StopOnIdleEnd>\n")
	b.WriteString("      <RestartOnIdle>false</RestartOnIdle>\n")
	b.WriteString("    </IdleSettings>\n")
	b.WriteString("    <AllowStartOnDemand>true</AllowStartOnDemand>\n")
	b.WriteString("    <Enabled>true</Enabled>\n")
	b.WriteString("    <Hidden>false</Hidden>\n")
	fmt.Fprintf(&b, "    <RunOnlyIfIdle>%t</RunOnlyIfIdle>\n", sc == "ONIDLE")
	b.WriteString("    <WakeToRun>false</WakeToRun>\n")
	b.WriteString("    <ExecutionTimeLimit>PT72H</ExecutionTimeLimit>\n")
	b.WriteString("    <Priority>7</Priority>\n")
	b.WriteString("  </Settings>\n")
	b.WriteString("  <Actions Context=\"Author\">\n")
	b.WriteString("    <Exec>\n")
	fmt.Fprintf(&b, "      <Command>%s</Command>\n", escapeText(flags["/TR"]))
	b.WriteString("    </Exec>\n")
	b.WriteString("  </Actions>\n")
	b.WriteString("</Task>\n")
	return b.String(), ""
}

func trigger(sc string, flags map[string]string) string {
	var b strings.Builder
	switch sc {
	case "ONLOGON":
		b.WriteString("    <LogonTrigger>\n      <Enabled>true</Enabled>\n    </LogonTrigger>\n")
		return b.String()
	case "ONSTART":
		b.WriteString("    <BootTrigger>\n      <Enabled>true</Enabled>\n    </BootTrigger>\n")
		return b.String()
	case "ONIDLE":
		b.WriteString("    <IdleTrigger>\n      <Enabled>true</Enabled>\n    </IdleTrigger>\n")
		return b.String()
	}

	element := "CalendarTrigger"
	if sc == "MINUTE" || sc == "HOURLY" || sc == "ONCE" {
		element = "TimeTrigger"
	}
	mo := atoi(flags["/MO"], 1)

	fmt.Fprintf(&b, "    <%s>\n", element)
	b.WriteString(repetition(sc, mo, flags))
	fmt.Fprintf(&b, "      <StartBoundary>%s</StartBoundary>\n", boundary(flags["/SD"], flags["/ST"], "00:00"))
	if ed, ok := flags["/ED"]; ok {
		fmt.Fprintf(&b, "      <EndBoundary>%s</EndBoundary>\n", boundary(ed, "23:59", "23:59"))
	}
	b.WriteString("      <Enabled>true</Enabled>\n")

	switch sc {
	case "DAILY":
		fmt.Fprintf(&b, "      <ScheduleByDay>\n        <DaysInterval>%d</DaysInterval>\n      </ScheduleByDay>\n", mo)
	case "WEEKLY":
		b.WriteString("      <ScheduleByWeek>\n        <DaysOfWeek>\n")
		for _, d := range weekdays(flags["/D"]) {
			fmt.Fprintf(&b, "          <%s />\n", d)
		}
		fmt.Fprintf(&b, "        </DaysOfWeek>\n        <WeeksInterval>%d</WeeksInterval>\n      </ScheduleByWeek>\n", mo)
	case "MONTHLY":
		b.WriteString("      <ScheduleByMonth>\n        <DaysOfMonth>\n")
		for _, d := range splitList(flags["/D"], "1") {
			if strings.EqualFold(d, "LAST") {
				d = "Last"
			}
			fmt.Fprintf(&b, "          <Day>%s</Day>\n", d)
		}
		b.WriteString("        </DaysOfMonth>\n        <Months>\n")
		for _, m := range months(flags["/M"], mo) {
			fmt.Fprintf(&b, "          <%s />\n", m)
		}
		b.WriteString("        </Months>\n      </ScheduleByMonth>\n")
	}
	fmt.Fprintf(&b, "    </%s>\n", element)
	return b.String()
}

func repetition(sc string, mo int, flags map[string]string) string {
	every := 0
	switch sc {
	case "MINUTE":
		every = mo
	case "HOURLY":
		every = mo * 60
	default:
		every = atoi(flags["/RI"], 0)
	}
	if every <= 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("      <Repetition>\n")
	fmt.Fprintf(&b, "        <Interval>%s</Interval>\n", taskxml.FormatMinutes(every))
	if du, ok := flags["/DU"]; ok {
		fmt.Fprintf(&b, "        <Duration>%s</Duration>\n", taskxml.FormatMinutes(clockMinutes(du)))
	} else if et, ok := flags["/ET"]; ok {
		span := clockMinutes(et) - clockMinutes(flags["/ST"])
		if span <= 0 {
			span += 24 * 60
		}
		fmt.Fprintf(&b, "        <Duration>%s</Duration>\n", taskxml.FormatMinutes(span))
	}
	b.WriteString("        <StopAtDurationEnd>false</StopAtDurationEnd>\n")
	b.WriteString("      </Repetition>\n")
	return b.String()
}

// boundary renders YYYY/MM/DD + HH:MM as an XML dateTime.
func boundary(date, clock, defClock string) string {
	if date == "" {
		date = defaultDate
	}
	if clock == "" {
		clock = defClock
	}
	return strings.ReplaceAll(date, "/", "-") + "T" + clock + ":00"
}

// clockMinutes converts H:MM or HHHH:MM[:SS] to minutes.
func clockMinutes(s string) int {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0
	}
	return atoi(parts[0], 0)*60 + atoi(parts[1], 0)
}

func weekdays(list string) []string {
	want := map[string]bool{}
	for _, d := range splitList(list, "MON") {
		want[strings.ToUpper(d)] = true
	}
	var out []string
	for _, d := range weekdayOrder {
		if want[d] || want["*"] {
			out = append(out, weekdayNames[d])
		}
	}
	return out
}

func months(list string, every int) []string {
	var out []string
	if list != "" {
		for _, m := range splitList(list, "") {
			if i, ok := monthIndex[strings.ToUpper(m)]; ok {
				out = append(out, monthNames[i])
			}
		}
		return out
	}
	if every < 1 {
		every = 1
	}
	for i := 0; i < 12; i += every {
		out = append(out, monthNames[i])
	}
	return out
}

func splitList(list, def string) []string {
	if strings.TrimSpace(list) == "" {
		if def == "" {
			return nil
		}
		return []string{def}
	}
	var out []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func escapeText(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
