package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNextRunsDaily(t *testing.T) {
	runs, err := Trigger{Kind: KindDaily, Interval: 1, Time: "08:30"}.NextRuns(at("2024-01-01 09:00"), 3)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at("2024-01-02 08:30"), at("2024-01-03 08:30"), at("2024-01-04 08:30")}, runs)
}

func TestNextRunsIncludesFromInstant(t *testing.T) {
	runs, err := Trigger{Kind: KindDaily, Interval: 1, Time: "08:30"}.NextRuns(at("2024-01-01 08:30"), 1)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at("2024-01-01 08:30")}, runs)
}

func TestNextRunsDailyInterval(t *testing.T) {
	trig := Trigger{Kind: KindDaily, Time: "06:00", Interval: 3, Window: &Window{StartDate: "2024-01-01"}}
	runs, err := trig.NextRuns(at("2024-01-01 00:00"), 3)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at("2024-01-01 06:00"), at("2024-01-04 06:00"), at("2024-01-07 06:00")}, runs)
}

func TestNextRunsWeeklyEveryOtherWeek(t *testing.T) {
	// 2024-01-01 is a Monday.
	trig := Trigger{Kind: KindWeekly, Time: "18:00", Days: []string{"MON", "FRI"}, Interval: 2, Window: &Window{StartDate: "2024-01-01"}}
	runs, err := trig.NextRuns(at("2024-01-01 00:00"), 4)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		at("2024-01-01 18:00"), at("2024-01-05 18:00"),
		at("2024-01-15 18:00"), at("2024-01-19 18:00"),
	}, runs)
}

func TestNextRunsMonthly(t *testing.T) {
	trig := Trigger{Kind: KindMonthly, Interval: 1, Time: "07:00", Days: []string{"15"}, Months: []string{"JAN", "JUL"}}
	runs, err := trig.NextRuns(at("2024-02-01 00:00"), 2)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at("2024-07-15 07:00"), at("2025-01-15 07:00")}, runs)
}

func TestNextRunsMonthlyLastUnsupported(t *testing.T) {
	_, err := Trigger{Kind: KindMonthly, Interval: 1, Time: "07:00", Days: []string{"LAST"}}.NextRuns(at("2024-02-01 00:00"), 2)
	assert.ErrorIs(t, err, ErrPreviewUnsupported)
}

func TestNextRunsOnce(t *testing.T) {
	trig := Trigger{Kind: KindOnce, Date: "2030/06/01", Time: "12:00"}
	runs, err := trig.NextRuns(at("2024-01-01 00:00"), 5)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at("2030-06-01 12:00")}, runs)

	runs, err = trig.NextRuns(at("2031-01-01 00:00"), 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestNextRunsStopsAtEndDate(t *testing.T) {
	trig := Trigger{Kind: KindDaily, Interval: 1, Time: "08:00", Window: &Window{EndDate: "2024-01-02"}}
	runs, err := trig.NextRuns(at("2024-01-01 00:00"), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestNextRunsEventKindsUnsupported(t *testing.T) {
	for _, k := range []Kind{KindLogon, KindOnStart} {
		_, err := Trigger{Kind: k}.NextRuns(time.Now(), 1)
		assert.ErrorIs(t, err, ErrPreviewUnsupported, string(k))
	}
	_, err := Trigger{Kind: KindOnIdle, IdleMinutes: 5}.NextRuns(time.Now(), 1)
	assert.ErrorIs(t, err, ErrPreviewUnsupported)
	_, err = Trigger{Kind: KindMinute, Interval: 5, Time: "09:00"}.NextRuns(time.Now(), 1)
	assert.ErrorIs(t, err, ErrPreviewUnsupported)
}

func TestNextRunsInvalidTrigger(t *testing.T) {
	_, err := Trigger{Kind: KindDaily, Interval: 1, Time: "25:00"}.NextRuns(time.Now(), 1)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
