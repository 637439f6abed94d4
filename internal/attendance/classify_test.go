package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin/internal/schedule"
)

var mondayClass = schedule.Window{
	ID:        "sched-1",
	Name:      "Sunflowers AM",
	Day:       time.Monday,
	TimeIn:    schedule.MustClock("08:00"),
	TimeOut:   schedule.MustClock("11:30"),
	SectionID: "sec-sunflower",
}

// 2026-10-19 is a Monday.
func monday(hh, mm, ss int) time.Time {
	return time.Date(2026, 10, 19, hh, mm, ss, 0, time.UTC)
}

func TestClassify_Scenario(t *testing.T) {
	cases := []struct {
		at   time.Time
		want Status
	}{
		{monday(8, 10, 0), StatusPresent},
		{monday(8, 20, 0), StatusLate},
		{monday(7, 55, 0), StatusPresent},
	}
	for _, tc := range cases {
		c, err := Classify(mondayClass, TimeIn, tc.at, 15*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, tc.want, c.Status, tc.at.Format(time.Kitchen))
	}
}

func TestClassify_OnOrBeforeTimeInIsPresent(t *testing.T) {
	for m := 0; m <= 120; m += 5 {
		at := monday(8, 0, 0).Add(-time.Duration(m) * time.Minute)
		c, err := Classify(mondayClass, TimeIn, at, DefaultGracePeriod)
		require.NoError(t, err)
		assert.Equal(t, StatusPresent, c.Status, "at %s", at.Format("15:04"))
	}
}

func TestClassify_WithinGraceIsPresent(t *testing.T) {
	for s := 1; s <= 15*60; s += 37 {
		at := monday(8, 0, 0).Add(time.Duration(s) * time.Second)
		c, err := Classify(mondayClass, TimeIn, at, DefaultGracePeriod)
		require.NoError(t, err)
		assert.Equal(t, StatusPresent, c.Status, "at %s", at.Format("15:04:05"))
	}
	c, err := Classify(mondayClass, TimeIn, monday(8, 15, 0), DefaultGracePeriod)
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, c.Status, "boundary is inclusive")
}

func TestClassify_AfterGraceIsLate(t *testing.T) {
	for m := 16; m <= 300; m += 7 {
		at := monday(8, 0, 0).Add(time.Duration(m) * time.Minute)
		c, err := Classify(mondayClass, TimeIn, at, DefaultGracePeriod)
		require.NoError(t, err)
		assert.Equal(t, StatusLate, c.Status, "at %s", at.Format("15:04"))
		assert.Equal(t, time.Duration(m)*time.Minute, c.Delta)
	}
}

func TestClassify_DeltaCountsWholeMinutes(t *testing.T) {
	c, err := Classify(mondayClass, TimeIn, monday(8, 15, 59), DefaultGracePeriod)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, c.Delta)
	assert.Equal(t, StatusPresent, c.Status)
}

func TestClassify_TimeOutLeavesStatusAlone(t *testing.T) {
	c, err := Classify(mondayClass, TimeOut, monday(12, 0, 0), DefaultGracePeriod)
	require.NoError(t, err)
	assert.Empty(t, c.Status)
	assert.Equal(t, monday(11, 30, 0), c.Scheduled)
	assert.Equal(t, 30*time.Minute, c.Delta)
}

func TestClassify_WrongDay(t *testing.T) {
	tuesday := monday(8, 0, 0).AddDate(0, 0, 1)
	_, err := Classify(mondayClass, TimeIn, tuesday, DefaultGracePeriod)
	assert.ErrorIs(t, err, ErrNoScheduleToday)
}

func TestClassify_UsesScanLocation(t *testing.T) {
	manila := time.FixedZone("PHT", 8*3600)
	// 00:10 UTC Monday is 08:10 Monday in Manila.
	at := time.Date(2026, 10, 19, 0, 10, 0, 0, time.UTC).In(manila)
	c, err := Classify(mondayClass, TimeIn, at, DefaultGracePeriod)
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, c.Status)
	assert.Equal(t, 10*time.Minute, c.Delta)
}

func TestClassify_NegativeGraceActsAsZero(t *testing.T) {
	c, err := Classify(mondayClass, TimeIn, monday(8, 1, 0), -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StatusLate, c.Status)
}

func TestParseScanType(t *testing.T) {
	for _, s := range []string{"time_in", "timeIn", "TIME-IN", " in "} {
		got, err := ParseScanType(s)
		require.NoError(t, err, s)
		assert.Equal(t, TimeIn, got)
	}
	for _, s := range []string{"time_out", "timeOut", "out"} {
		got, err := ParseScanType(s)
		require.NoError(t, err, s)
		assert.Equal(t, TimeOut, got)
	}
	_, err := ParseScanType("lunch")
	assert.ErrorIs(t, err, ErrInvalidScan)
}
