package tasks

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	assert.Equal(t, "my_app_", Sanitize("  my app!! "))
	assert.Equal(t, "note-pad_2", Sanitize("note-pad_2"))
	assert.Equal(t, "a_b", Sanitize("a:/\\b"))
	assert.Len(t, Sanitize(strings.Repeat("x", 100)), 60)
}

func TestTaskNames(t *testing.T) {
	cases := []struct {
		trig Trigger
		want string
	}{
		{Trigger{Kind: KindDaily, Interval: 1, Time: "08:30"}, "ShortRun_notepad_DAILY_08-30"},
		{Trigger{Kind: KindDaily, Time: "8:30", Interval: 3}, "ShortRun_notepad_DAILY_08-30_every3"},
		{Trigger{Kind: KindLogon}, "ShortRun_notepad_LOGON"},
		{Trigger{Kind: KindOnStart}, "ShortRun_notepad_ONSTART"},
		{Trigger{Kind: KindOnce, Date: "2025-06-01", Time: "12:00"}, "ShortRun_notepad_ONCE_2025-06-01_12-00"},
		{Trigger{Kind: KindMinute, Interval: 15, Time: "09:00"}, "ShortRun_notepad_MINUTE_every15_at_09-00"},
		{Trigger{Kind: KindHourly, Interval: 2, Time: "00:10"}, "ShortRun_notepad_HOURLY_every2_at_00-10"},
		{Trigger{Kind: KindWeekly, Time: "18:00", Days: []string{"fri", "MON", "wed"}, Interval: 2}, "ShortRun_notepad_WEEKLY_MON_WED_FRI_18-00_every2"},
		{Trigger{Kind: KindMonthly, Interval: 1, Time: "07:00", Days: []string{"LAST", "1"}}, "ShortRun_notepad_MONTHLY_days_1_LAST_at_07-00_every1"},
		{Trigger{Kind: KindMonthly, Time: "07:00", Days: []string{"15"}, Months: []string{"7", "jan"}, Interval: 1}, "ShortRun_notepad_MONTHLY_days_15_at_07-00_every1_JAN_JUL"},
		{Trigger{Kind: KindOnIdle, IdleMinutes: 25}, "ShortRun_notepad_ONIDLE_after25m"},
	}
	for _, tc := range cases {
		n, err := tc.trig.Normalize()
		require.NoError(t, err, tc.want)
		assert.Equal(t, tc.want, n.Name("notepad"))
	}
}

func TestNameChangesWithParameters(t *testing.T) {
	a, _ := Trigger{Kind: KindDaily, Interval: 1, Time: "09:00"}.Normalize()
	b, _ := Trigger{Kind: KindDaily, Interval: 1, Time: "09:05"}.Normalize()
	assert.NotEqual(t, a.Name("x"), b.Name("x"))
	c, _ := Trigger{Kind: KindDaily, Interval: 1, Time: "09:00"}.Normalize()
	assert.Equal(t, a.Name("x"), c.Name("x"))
}

func TestAliasPrefixDoesNotOverlap(t *testing.T) {
	assert.Equal(t, "ShortRun_note_", AliasPrefix("note"))
	assert.False(t, strings.HasPrefix("ShortRun_notepad_DAILY_08-30", AliasPrefix("note")))
	assert.True(t, strings.HasPrefix("ShortRun_notepad_DAILY_08-30", AliasPrefix("notepad")))
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]struct {
		trig  Trigger
		field string
	}{
		"minute 0":              {Trigger{Kind: KindMinute, Interval: 0, Time: "09:00"}, "interval"},
		"minute 1440":           {Trigger{Kind: KindMinute, Interval: 1440, Time: "09:00"}, "interval"},
		"hourly 169":            {Trigger{Kind: KindHourly, Interval: 169, Time: "09:00"}, "interval"},
		"daily 0":               {Trigger{Kind: KindDaily, Time: "09:00"}, "interval"},
		"weekly 0":              {Trigger{Kind: KindWeekly, Time: "09:00", Days: []string{"MON"}}, "interval"},
		"weekly 53":             {Trigger{Kind: KindWeekly, Interval: 53, Time: "09:00", Days: []string{"MON"}}, "interval"},
		"monthly 0":             {Trigger{Kind: KindMonthly, Time: "09:00", Days: []string{"1"}}, "interval"},
		"monthly 13":            {Trigger{Kind: KindMonthly, Interval: 13, Time: "09:00", Days: []string{"1"}}, "interval"},
		"monthly -1":            {Trigger{Kind: KindMonthly, Interval: -1, Time: "09:00", Days: []string{"1"}}, "interval"},
		"idle 0":                {Trigger{Kind: KindOnIdle}, "idle_minutes"},
		"idle 1000":             {Trigger{Kind: KindOnIdle, IdleMinutes: 1000}, "idle_minutes"},
		"bad time":              {Trigger{Kind: KindDaily, Time: "24:00"}, "time"},
		"missing time":          {Trigger{Kind: KindDaily}, "time"},
		"bad weekday":           {Trigger{Kind: KindWeekly, Interval: 1, Time: "09:00", Days: []string{"MON", "FUN"}}, "days"},
		"no weekday":            {Trigger{Kind: KindWeekly, Interval: 1, Time: "09:00"}, "days"},
		"bad month day":         {Trigger{Kind: KindMonthly, Interval: 1, Time: "09:00", Days: []string{"32"}}, "days"},
		"bad month":             {Trigger{Kind: KindMonthly, Interval: 1, Time: "09:00", Days: []string{"1"}, Months: []string{"13"}}, "months"},
		"bad month name":        {Trigger{Kind: KindMonthly, Interval: 1, Time: "09:00", Days: []string{"1"}, Months: []string{"JANUARY"}}, "months"},
		"bad once date":         {Trigger{Kind: KindOnce, Date: "2024-02-30", Time: "09:00"}, "date"},
		"window on once":        {Trigger{Kind: KindOnce, Date: "2024-02-03", Time: "09:00", Window: &Window{EndDate: "2024-03-01"}}, "window"},
		"window on logon":       {Trigger{Kind: KindLogon, Window: &Window{StartDate: "2024-03-01"}}, "window"},
		"et and du":             {Trigger{Kind: KindDaily, Interval: 1, Time: "09:00", Window: &Window{EndTime: "10:00", Duration: "1:00"}}, "window"},
		"bad duration":          {Trigger{Kind: KindDaily, Interval: 1, Time: "09:00", Window: &Window{Duration: "1h"}}, "window.duration"},
		"end before start":      {Trigger{Kind: KindDaily, Interval: 1, Time: "09:00", Window: &Window{StartDate: "2024/05/01", EndDate: "2024/04/01"}}, "window.end_date"},
		"repeat on minute":      {Trigger{Kind: KindMinute, Interval: 5, Time: "09:00", Repeat: &Repeat{EveryMinutes: 10}}, "repeat"},
		"repeat zero":           {Trigger{Kind: KindDaily, Interval: 1, Time: "09:00", Repeat: &Repeat{EveryMinutes: 0}}, "repeat.every_minutes"},
		"repeat and duration":   {Trigger{Kind: KindDaily, Interval: 1, Time: "09:00", Window: &Window{Duration: "2:00"}, Repeat: &Repeat{EveryMinutes: 10}}, "repeat"},
		"random delay on logon": {Trigger{Kind: KindLogon, RandomDelayMinutes: 5}, "random_delay_minutes"},
		"random delay 1000":     {Trigger{Kind: KindDaily, Interval: 1, Time: "09:00", RandomDelayMinutes: 1000}, "random_delay_minutes"},
		"delay on daily":        {Trigger{Kind: KindDaily, Interval: 1, Time: "09:00", DelayMinutes: 5}, "delay_minutes"},
		"stop without duration": {Trigger{Kind: KindDaily, Interval: 1, Time: "09:00", StopAtDurationEnd: true}, "stop_at_duration_end"},
		"unknown kind":          {Trigger{Kind: "YEARLY"}, "kind"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.trig.Validate()
			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %T", err)
			assert.Equal(t, tc.field, verr.Field)
			assert.NotEmpty(t, verr.Message)
		})
	}
}

func TestNormalize(t *testing.T) {
	n, err := Trigger{
		Kind:     "monthly",
		Time:     "7:05",
		Interval: 1,
		Days:     []string{"last", "15", "1", "15"},
		Months:   []string{"12", "jan", " "},
		Window:   &Window{StartDate: "2024-01-01", EndDate: "2024-12-31"},
	}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, KindMonthly, n.Kind)
	assert.Equal(t, "07:05", n.Time)
	assert.Equal(t, []string{"1", "15", "LAST"}, n.Days)
	assert.Equal(t, []string{"JAN", "DEC"}, n.Months)
	assert.Equal(t, 1, n.Interval)
	assert.Equal(t, "2024/01/01", n.Window.StartDate)
	assert.Equal(t, "2024/12/31", n.Window.EndDate)
}

func TestWithDefaultInterval(t *testing.T) {
	for _, k := range []Kind{KindDaily, KindWeekly, "monthly"} {
		assert.Equal(t, 1, Trigger{Kind: k}.WithDefaultInterval().Interval, k)
	}
	assert.Equal(t, 3, Trigger{Kind: KindWeekly, Interval: 3}.WithDefaultInterval().Interval)
	assert.Equal(t, -1, Trigger{Kind: KindMonthly, Interval: -1}.WithDefaultInterval().Interval)
	assert.Zero(t, Trigger{Kind: KindMinute}.WithDefaultInterval().Interval)
	assert.Zero(t, Trigger{Kind: "bogus"}.WithDefaultInterval().Interval)
}

func TestNormalizeDoesNotAliasInput(t *testing.T) {
	w := &Window{StartDate: "2024-01-01"}
	in := Trigger{Kind: KindDaily, Interval: 1, Time: "09:00", Window: w}
	n, err := in.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "2024/01/01", n.Window.StartDate)
	assert.Equal(t, "2024-01-01", w.StartDate)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("boot")
	require.NoError(t, err)
	assert.Equal(t, KindOnStart, k)
	k, err = ParseKind("OnLogon")
	require.NoError(t, err)
	assert.Equal(t, KindLogon, k)
	_, err = ParseKind("")
	assert.Error(t, err)
}

func TestArgsDaily(t *testing.T) {
	n, err := Trigger{Kind: KindDaily, Interval: 1, Time: "08:30"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/Create", "/TN", "ShortRun_notepad_DAILY_08-30", "/SC", "DAILY",
		"/ST", "08:30",
		"/TR", `"C:\Windows\System32\notepad.exe"`, "/RL", "LIMITED", "/F",
	}, n.Args("ShortRun_notepad_DAILY_08-30", `C:\Windows\System32\notepad.exe`, false))
}

func TestArgsMonthlyElevated(t *testing.T) {
	n, err := Trigger{Kind: KindMonthly, Interval: 1, Time: "07:00", Days: []string{"1", "LAST"}, Months: []string{"JUL", "1"}}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/Create", "/TN", "x", "/SC", "MONTHLY",
		"/MO", "1", "/D", "1,LAST", "/M", "JAN,JUL",
		"/ST", "07:00",
		"/TR", `"C:\a b\c.exe"`, "/RL", "HIGHEST", "/F",
	}, n.Args("x", `"C:\a b\c.exe"`, true))
}

func TestArgsLogonAndIdle(t *testing.T) {
	n, _ := Trigger{Kind: KindLogon}.Normalize()
	assert.Equal(t, []string{"/Create", "/TN", "x", "/SC", "ONLOGON", "/TR", `"c.exe"`, "/RL", "LIMITED", "/F"}, n.Args("x", "c.exe", false))

	n, _ = Trigger{Kind: KindOnIdle, IdleMinutes: 12}.Normalize()
	assert.Equal(t, []string{"/Create", "/TN", "x", "/SC", "ONIDLE", "/I", "12", "/TR", `"c.exe"`, "/RL", "LIMITED", "/F"}, n.Args("x", "c.exe", false))
}

func TestArgsWindow(t *testing.T) {
	n, err := Trigger{Kind: KindMinute, Interval: 5, Time: "09:00",
		Window: &Window{StartDate: "2024-01-01", EndDate: "2024-02-01", Duration: "2:00"}}.Normalize()
	require.NoError(t, err)
	args := n.Args("x", "c.exe", false)
	assert.Equal(t, []string{
		"/Create", "/TN", "x", "/SC", "MINUTE", "/MO", "5",
		"/SD", "2024/01/01", "/ST", "09:00", "/ED", "2024/02/01", "/DU", "2:00",
		"/TR", `"c.exe"`, "/RL", "LIMITED", "/F",
	}, args)
	assert.NotContains(t, args, "/RI")
}

func TestArgsRepeatRoutesDuration(t *testing.T) {
	n, err := Trigger{Kind: KindOnce, Date: "2025-06-01", Time: "12:00",
		Repeat: &Repeat{EveryMinutes: 30, For: "4:00"}}.Normalize()
	require.NoError(t, err)
	args := n.Args("x", "c.exe", false)
	assert.Equal(t, []string{
		"/Create", "/TN", "x", "/SC", "ONCE",
		"/SD", "2025/06/01", "/ST", "12:00", "/DU", "4:00", "/RI", "30",
		"/TR", `"c.exe"`, "/RL", "LIMITED", "/F",
	}, args)
}

func TestArgsNeverCarryWindowDurationAndRepeat(t *testing.T) {
	kinds := []Trigger{
		{Kind: KindDaily, Interval: 1, Time: "09:00", Repeat: &Repeat{EveryMinutes: 15, For: "1:00"}, Window: &Window{EndDate: "2030/01/01"}},
		{Kind: KindWeekly, Interval: 1, Time: "09:00", Days: []string{"MON"}, Repeat: &Repeat{EveryMinutes: 15}},
		{Kind: KindMonthly, Interval: 1, Time: "09:00", Days: []string{"1"}, Window: &Window{Duration: "3:00"}},
	}
	for _, trig := range kinds {
		n, err := trig.Normalize()
		require.NoError(t, err)
		args := n.Args("x", "c.exe", false)
		du := 0
		for _, a := range args {
			if a == "/DU" {
				du++
			}
		}
		assert.LessOrEqual(t, du, 1)
		if trig.Window != nil && trig.Window.Duration != "" {
			assert.NotContains(t, args, "/RI")
		}
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"C:\x.exe"`, Quote(`C:\x.exe`))
	assert.Equal(t, `"C:\x.exe"`, Quote(` "C:\x.exe" `))
}

func TestAliasFromTaskName(t *testing.T) {
	cases := []struct {
		name  string
		alias string
		kind  Kind
		ok    bool
	}{
		{"ShortRun_notepad_DAILY_08-30", "notepad", KindDaily, true},
		{`\ShortRun_notepad_LOGON`, "notepad", KindLogon, true},
		{"ShortRun_my_LOGON_DAILY_08-30", "my_LOGON", KindDaily, true},
		{"ShortRun_x_DAILYish_ONCE_2030-06-01_12-00", "x_DAILYish", KindOnce, true},
		{"ShortRun_ed_MONTHLY_days_LAST_at_07-00_every3", "ed", KindMonthly, true},
		{"ShortRun_ed_ONIDLE_after10m", "ed", KindOnIdle, true},
		{"ShortRun__DAILY_08-30", "", "", false},
		{"ShortRun_nokind", "", "", false},
		{"GoogleUpdateTaskMachineUA", "", "", false},
	}
	for _, c := range cases {
		alias, kind, ok := AliasFromTaskName(c.name)
		assert.Equal(t, c.ok, ok, c.name)
		assert.Equal(t, c.alias, alias, c.name)
		assert.Equal(t, c.kind, kind, c.name)
	}

	for _, trig := range []Trigger{
		{Kind: KindWeekly, Time: "18:00", Days: []string{"MON", "FRI"}, Interval: 1},
		{Kind: KindMinute, Time: "09:00", Interval: 15},
	} {
		n, err := trig.Normalize()
		require.NoError(t, err)
		alias, kind, ok := AliasFromTaskName(n.Name("tool_x"))
		assert.True(t, ok)
		assert.Equal(t, "tool_x", alias)
		assert.Equal(t, trig.Kind, kind)
	}
}
