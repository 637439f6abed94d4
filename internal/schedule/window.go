// Package schedule reads class schedules owned by the admin portal. The kiosk service
// never writes them.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when a schedule id does not resolve.
var ErrNotFound = errors.New("schedule not found")

// ClockTime is a wall-clock time of day without a date, in seconds since midnight.
type ClockTime int

// ParseClock accepts "HH:MM" or "HH:MM:SS".
func ParseClock(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	limits := []int{24, 60, 60}
	total := 0
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n >= limits[i] {
			return 0, fmt.Errorf("invalid clock time %q", s)
		}
		total = total*60 + n
	}
	if len(parts) == 2 {
		total *= 60
	}
	return ClockTime(total), nil
}

// MustClock is ParseClock for literals.
func MustClock(s string) ClockTime {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// On places the clock time on the calendar day of day, in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	secs := int(c)
	return time.Date(y, m, d, secs/3600, secs/60%60, secs%60, 0, day.Location())
}

func (c ClockTime) String() string {
	secs := int(c)
	if secs%60 != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
	}
	return fmt.Sprintf("%02d:%02d", secs/3600, secs/60%60)
}

func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ClockTime) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Window is one weekly class slot.
type Window struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Day       time.Weekday `json:"day"`
	TimeIn    ClockTime    `json:"time_in"`
	TimeOut   ClockTime    `json:"time_out"`
	SectionID string       `json:"section_id"`
	TeacherID string       `json:"teacher_id"`
	SubjectID string       `json:"subject_id"`
}

// Validate checks the same-day ordering of the window.
func (w Window) Validate() error {
	if w.Day < time.Sunday || w.Day > time.Saturday {
		return fmt.Errorf("schedule %s: invalid day %d", w.ID, w.Day)
	}
	if w.TimeIn >= w.TimeOut {
		return fmt.Errorf("schedule %s: time in %s not before time out %s", w.ID, w.TimeIn, w.TimeOut)
	}
	return nil
}

// Directory is the read-only schedule lookup.
type Directory interface {
	ResolveSchedule(ctx context.Context, scheduleID string) (Window, error)
	SchedulesForDay(ctx context.Context, day time.Weekday) ([]Window, error)
}
