package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("08:15")
	require.NoError(t, err)
	assert.Equal(t, ClockTime(8*3600+15*60), c)
	assert.Equal(t, "08:15", c.String())

	c, err = ParseClock("13:05:30")
	require.NoError(t, err)
	assert.Equal(t, "13:05:30", c.String())

	for _, bad := range []string{"", "8", "24:00", "08:60", "aa:bb", "1:2:3:4"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestClockTime_On(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	day := time.Date(2026, 10, 19, 23, 59, 0, 0, loc)
	got := MustClock("08:00").On(day)
	assert.Equal(t, time.Date(2026, 10, 19, 8, 0, 0, 0, loc), got)
}

func TestWindow_Validate(t *testing.T) {
	w := Window{ID: "s1", Day: time.Monday, TimeIn: MustClock("08:00"), TimeOut: MustClock("11:00")}
	assert.NoError(t, w.Validate())

	w.TimeOut = MustClock("08:00")
	assert.Error(t, w.Validate())
}

func TestWindow_JSONClockFields(t *testing.T) {
	w := Window{ID: "s1", TimeIn: MustClock("08:00"), TimeOut: MustClock("09:30")}
	b, err := json.Marshal(w)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"time_in":"08:00"`)
	assert.Contains(t, string(b), `"time_out":"09:30"`)
}
