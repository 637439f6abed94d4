package attendance

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the calendar-day format of Key.Date.
const DateLayout = "2006-01-02"

var (
	ErrNoScheduleToday  = errors.New("no class scheduled today for this kiosk")
	ErrUnknownBadge     = errors.New("badge not registered")
	ErrNoOpenAttendance = errors.New("no time-in recorded to check out from")
	ErrInvalidScan      = errors.New("invalid scan")
	ErrInvalidDate      = errors.New("invalid date")
)

// ScanType is the intent declared by the kiosk for a scan.
type ScanType string

const (
	TimeIn  ScanType = "time_in"
	TimeOut ScanType = "time_out"
)

// ParseScanType accepts the snake, kebab and camel spellings used by kiosk builds.
func ParseScanType(s string) (ScanType, error) {
	norm := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch norm {
	case "timein", "in":
		return TimeIn, nil
	case "timeout", "out":
		return TimeOut, nil
	}
	return "", ErrInvalidScan
}

// Status is the attendance status fixed at time-in.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
)

// Key identifies the single record a student may have for a class day.
type Key struct {
	StudentID  string
	ScheduleID string
	Date       string
}

// Record is one student's attendance for one schedule on one day.
type Record struct {
	ID         string     `json:"id"`
	StudentID  string     `json:"student_id"`
	ScheduleID string     `json:"schedule_id"`
	Date       string     `json:"date"`
	TimeIn     *time.Time `json:"time_in,omitempty"`
	TimeOut    *time.Time `json:"time_out,omitempty"`
	Status     Status     `json:"status"`
	Note       string     `json:"note,omitempty"`
	Version    int        `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Key returns the uniqueness key of the record.
func (r Record) Key() Key {
	return Key{StudentID: r.StudentID, ScheduleID: r.ScheduleID, Date: r.Date}
}

// ScanEvent is a single badge read submitted by a kiosk.
type ScanEvent struct {
	RFID         string
	Type         ScanType
	OccurredAt   time.Time
	SessionToken string
}

// Outcome is what a kiosk receives for an accepted scan.
type Outcome struct {
	Record       Record    `json:"record"`
	Status       Status    `json:"status"`
	Type         ScanType  `json:"attendance_type"`
	Duplicate    bool      `json:"duplicate"`
	ScheduleID   string    `json:"schedule_id"`
	ScheduleName string    `json:"schedule_name"`
	KioskID      string    `json:"kiosk_id,omitempty"`
	RFID         string    `json:"rfid"`
	OccurredAt   time.Time `json:"occurred_at"`
}
