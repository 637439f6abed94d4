package attendance

import (
	"fmt"
	"time"

	"checkin/internal/schedule"
)

// DefaultGracePeriod is how late a time-in may be and still count as present.
const DefaultGracePeriod = 15 * time.Minute

// Classification is the result of comparing a scan with its scheduled time.
type Classification struct {
	// Status is empty for time-out scans, which never change attendance status.
	Status    Status
	Scheduled time.Time
	// Delta is the scan time minus the scheduled time, truncated to whole minutes.
	Delta time.Duration
}

// Classify maps a scan against window. at must already be in the center's time zone;
// the scheduled time is placed on at's calendar day. It fails with ErrNoScheduleToday
// when at falls on another weekday than the window.
func Classify(w schedule.Window, typ ScanType, at time.Time, grace time.Duration) (Classification, error) {
	if at.Weekday() != w.Day {
		return Classification{}, ErrNoScheduleToday
	}
	if grace < 0 {
		grace = 0
	}

	var c Classification
	switch typ {
	case TimeIn:
		c.Scheduled = w.TimeIn.On(at)
	case TimeOut:
		c.Scheduled = w.TimeOut.On(at)
	default:
		return Classification{}, fmt.Errorf("%w: attendance type %q", ErrInvalidScan, typ)
	}
	c.Delta = at.Sub(c.Scheduled).Truncate(time.Minute)

	if typ == TimeIn {
		if c.Delta <= grace {
			c.Status = StatusPresent
		} else {
			c.Status = StatusLate
		}
	}
	return c, nil
}

// note is the human-readable remark stored with a time-in.
func (c Classification) note() string {
	if c.Status == StatusLate {
		return fmt.Sprintf("late by %d min", int(c.Delta/time.Minute))
	}
	return ""
}
