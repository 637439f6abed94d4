package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"checkin/internal/kiosk"
	"checkin/internal/metrics"
	"checkin/internal/roster"
	"checkin/internal/schedule"
	"checkin/internal/store"
)

// DefaultScanTimeout bounds one resolve end to end.
const DefaultScanTimeout = 5 * time.Second

// SessionLookup is the part of the kiosk session service the resolver needs.
type SessionLookup interface {
	Get(ctx context.Context, token string) (kiosk.Session, error)
}

// Notifier receives every accepted outcome, duplicates included. Implementations must
// not block the scan for long and handle their own failures.
type Notifier interface {
	Notify(ctx context.Context, o Outcome)
}

// Options tune a Resolver; zero values select the defaults.
type Options struct {
	GracePeriod time.Duration
	Timeout     time.Duration
	Location    *time.Location
	Notifier    Notifier
}

// Resolver turns kiosk scans into attendance records.
type Resolver struct {
	sessions  SessionLookup
	schedules schedule.Directory
	roster    roster.Directory
	store     Store
	notifier  Notifier

	grace   time.Duration
	timeout time.Duration
	loc     *time.Location

	// Now stamps scans submitted without a time; tests replace it.
	Now func() time.Time
}

// NewResolver wires the collaborators of the scan path.
func NewResolver(sessions SessionLookup, schedules schedule.Directory, people roster.Directory, st Store, opts Options) *Resolver {
	r := &Resolver{
		sessions:  sessions,
		schedules: schedules,
		roster:    people,
		store:     st,
		notifier:  opts.Notifier,
		grace:     opts.GracePeriod,
		timeout:   opts.Timeout,
		loc:       opts.Location,
		Now:       time.Now,
	}
	if r.grace == 0 {
		r.grace = DefaultGracePeriod
	}
	if r.timeout <= 0 {
		r.timeout = DefaultScanTimeout
	}
	if r.loc == nil {
		r.loc = time.Local
	}
	return r
}

// Resolve validates, classifies and records one scan. Re-submitting an identical scan
// returns the stored record with Duplicate set and writes nothing.
func (r *Resolver) Resolve(ctx context.Context, ev ScanEvent) (out Outcome, err error) {
	start := time.Now()
	defer func() {
		metrics.ScanDuration.Observe(time.Since(start).Seconds())
		code := "recorded"
		if err != nil {
			code = ErrorCode(err)
		} else if out.Duplicate {
			code = "duplicate"
		}
		metrics.ScansTotal.WithLabelValues(string(ev.Type), code).Inc()
	}()

	if ev, err = r.normalize(ev); err != nil {
		return Outcome{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	sess, err := r.sessions.Get(ctx, ev.SessionToken)
	if err != nil {
		return Outcome{}, err
	}

	studentID, err := r.roster.ResolveBadge(ctx, ev.RFID)
	if errors.Is(err, roster.ErrBadgeNotFound) {
		return Outcome{}, ErrUnknownBadge
	}
	if err != nil {
		return Outcome{}, store.Transient(fmt.Errorf("resolve badge: %w", err))
	}

	w, err := r.schedules.ResolveSchedule(ctx, sess.ScheduleID)
	if errors.Is(err, schedule.ErrNotFound) {
		return Outcome{}, kiosk.ErrScheduleNotFound
	}
	if err != nil {
		return Outcome{}, store.Transient(fmt.Errorf("resolve schedule: %w", err))
	}

	at := ev.OccurredAt.In(r.loc)
	cls, err := Classify(w, ev.Type, at, r.grace)
	if err != nil {
		return Outcome{}, err
	}

	key := Key{StudentID: studentID, ScheduleID: sess.ScheduleID, Date: at.Format(DateLayout)}
	var (
		rec Record
		dup bool
	)
	if ev.Type == TimeIn {
		rec, dup, err = r.checkIn(ctx, key, at, cls)
	} else {
		rec, dup, err = r.checkOut(ctx, key, at)
	}
	if err != nil {
		return Outcome{}, err
	}

	out = Outcome{
		Record:       rec,
		Status:       rec.Status,
		Type:         ev.Type,
		Duplicate:    dup,
		ScheduleID:   sess.ScheduleID,
		ScheduleName: sess.ScheduleName,
		KioskID:      sess.KioskID,
		RFID:         ev.RFID,
		OccurredAt:   at,
	}
	if r.notifier != nil {
		r.notifier.Notify(ctx, out)
	}
	return out, nil
}

func (r *Resolver) normalize(ev ScanEvent) (ScanEvent, error) {
	ev.RFID = roster.NormalizeRFID(ev.RFID)
	ev.SessionToken = strings.TrimSpace(ev.SessionToken)
	switch {
	case ev.RFID == "":
		return ev, fmt.Errorf("%w: rfid required", ErrInvalidScan)
	case ev.SessionToken == "":
		return ev, fmt.Errorf("%w: session token required", ErrInvalidScan)
	case ev.Type != TimeIn && ev.Type != TimeOut:
		return ev, fmt.Errorf("%w: attendance type %q", ErrInvalidScan, ev.Type)
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = r.Now()
	}
	return ev, nil
}

// checkIn creates the day's record, or reports the existing one as a duplicate.
func (r *Resolver) checkIn(ctx context.Context, key Key, at time.Time, cls Classification) (Record, bool, error) {
	existing, err := r.store.Get(ctx, key)
	switch {
	case err == nil:
		if existing.TimeIn != nil {
			return existing, true, nil
		}
		return r.fillTimeIn(ctx, existing, at, cls)
	case !errors.Is(err, ErrRecordNotFound):
		return Record{}, false, store.Transient(fmt.Errorf("get record: %w", err))
	}

	rec := Record{
		StudentID:  key.StudentID,
		ScheduleID: key.ScheduleID,
		Date:       key.Date,
		TimeIn:     &at,
		Status:     cls.Status,
		Note:       cls.note(),
	}
	stored, created, err := r.store.Create(ctx, rec)
	if err != nil {
		return Record{}, false, store.Transient(fmt.Errorf("create record: %w", err))
	}
	if created {
		return stored, false, nil
	}
	// Lost the race to a concurrent scan or to an absence placeholder.
	if stored.TimeIn != nil {
		return stored, true, nil
	}
	return r.fillTimeIn(ctx, stored, at, cls)
}

// fillTimeIn turns a placeholder record (marked absent before the child arrived) into a
// real check-in.
func (r *Resolver) fillTimeIn(ctx context.Context, rec Record, at time.Time, cls Classification) (Record, bool, error) {
	rec.TimeIn = &at
	rec.Status = cls.Status
	rec.Note = cls.note()
	updated, err := r.store.Update(ctx, rec)
	if err == nil {
		log.Printf("student %s checked in after being marked absent for %s on %s", rec.StudentID, rec.ScheduleID, rec.Date)
		return updated, false, nil
	}
	if !errors.Is(err, ErrVersionConflict) {
		return Record{}, false, store.Transient(fmt.Errorf("update record: %w", err))
	}
	current, err := r.store.Get(ctx, rec.Key())
	if err != nil {
		return Record{}, false, store.Transient(fmt.Errorf("reread record: %w", err))
	}
	if current.TimeIn != nil {
		return current, true, nil
	}
	return Record{}, false, store.Transient(ErrVersionConflict)
}

// checkOut stamps the checkout time on the open record; status is left as recorded.
func (r *Resolver) checkOut(ctx context.Context, key Key, at time.Time) (Record, bool, error) {
	existing, err := r.store.Get(ctx, key)
	if errors.Is(err, ErrRecordNotFound) {
		return Record{}, false, ErrNoOpenAttendance
	}
	if err != nil {
		return Record{}, false, store.Transient(fmt.Errorf("get record: %w", err))
	}
	if existing.TimeIn == nil {
		return Record{}, false, ErrNoOpenAttendance
	}
	if existing.TimeOut != nil {
		return existing, true, nil
	}

	existing.TimeOut = &at
	updated, err := r.store.Update(ctx, existing)
	if err == nil {
		return updated, false, nil
	}
	if !errors.Is(err, ErrVersionConflict) {
		return Record{}, false, store.Transient(fmt.Errorf("update record: %w", err))
	}
	current, err := r.store.Get(ctx, key)
	if err != nil {
		return Record{}, false, store.Transient(fmt.Errorf("reread record: %w", err))
	}
	if current.TimeOut != nil {
		return current, true, nil
	}
	return Record{}, false, store.Transient(ErrVersionConflict)
}

// MarkAbsent closes out a class day: every student of the schedule's section who has no
// record for date gets an absent one. Existing records are never touched. It returns the
// number of records created.
func (r *Resolver) MarkAbsent(ctx context.Context, scheduleID, date string) (int, error) {
	w, err := r.schedules.ResolveSchedule(ctx, scheduleID)
	if errors.Is(err, schedule.ErrNotFound) {
		return 0, kiosk.ErrScheduleNotFound
	}
	if err != nil {
		return 0, store.Transient(fmt.Errorf("resolve schedule: %w", err))
	}
	day, err := time.ParseInLocation(DateLayout, date, r.loc)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if day.Weekday() != w.Day {
		return 0, ErrNoScheduleToday
	}

	students, err := r.roster.StudentsInSection(ctx, w.SectionID)
	if err != nil {
		return 0, store.Transient(fmt.Errorf("list section: %w", err))
	}
	created := 0
	for _, id := range students {
		_, ok, err := r.store.Create(ctx, Record{
			StudentID:  id,
			ScheduleID: scheduleID,
			Date:       date,
			Status:     StatusAbsent,
			Note:       "no scan recorded",
		})
		if err != nil {
			return created, store.Transient(fmt.Errorf("create absence: %w", err))
		}
		if ok {
			created++
		}
	}
	log.Printf("marked %d of %d students absent for %s on %s", created, len(students), scheduleID, date)
	return created, nil
}

// List returns the records of a class day.
func (r *Resolver) List(ctx context.Context, scheduleID, date string) ([]Record, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	recs, err := r.store.List(ctx, scheduleID, date)
	if err != nil {
		return nil, store.Transient(fmt.Errorf("list records: %w", err))
	}
	return recs, nil
}

// Today is the current calendar day in the center's time zone.
func (r *Resolver) Today() time.Time {
	return r.Now().In(r.loc)
}

// ErrorCode is the stable machine-readable name of a scan or session failure.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, kiosk.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, kiosk.ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, kiosk.ErrSessionEnded):
		return "session_ended"
	case errors.Is(err, kiosk.ErrScheduleNotFound):
		return "schedule_not_found"
	case errors.Is(err, ErrNoScheduleToday):
		return "no_schedule_today"
	case errors.Is(err, ErrUnknownBadge):
		return "unknown_badge"
	case errors.Is(err, ErrNoOpenAttendance):
		return "no_open_attendance"
	case errors.Is(err, ErrInvalidScan):
		return "invalid_scan"
	case errors.Is(err, ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, store.ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return "transient_store_error"
	}
	return "internal_error"
}
