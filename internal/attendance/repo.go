package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists attendance records in Postgres. The unique constraint on
// (student_id, schedule_id, attendance_date) is what serializes concurrent time-ins.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, student_id, schedule_id, to_char(attendance_date, 'YYYY-MM-DD'), time_in, time_out, status, note, version, created_at, updated_at`

// Get returns the record for key.
func (r *Repository) Get(ctx context.Context, key Key) (Record, error) {
	day, err := dateParam(key.Date)
	if err != nil {
		return Record{}, err
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE student_id = $1 AND schedule_id = $2 AND attendance_date = $3
	`, key.StudentID, key.ScheduleID, day)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

// Create inserts rec unless the key is taken, in which case the stored row is returned.
func (r *Repository) Create(ctx context.Context, rec Record) (Record, bool, error) {
	day, err := dateParam(rec.Date)
	if err != nil {
		return Record{}, false, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, student_id, schedule_id, attendance_date, time_in, time_out, status, note, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
		ON CONFLICT (student_id, schedule_id, attendance_date) DO NOTHING
		RETURNING version, created_at, updated_at
	`, rec.ID, rec.StudentID, rec.ScheduleID, day, rec.TimeIn, rec.TimeOut, string(rec.Status), rec.Note)
	if err := row.Scan(&rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, err
		}
		// Another scan won the insert; its row is committed by the time ON CONFLICT fires.
		existing, err := r.Get(ctx, rec.Key())
		if err != nil {
			return Record{}, false, fmt.Errorf("read conflicting record: %w", err)
		}
		return existing, false, nil
	}
	return rec, true, nil
}

// Update writes the mutable columns when the row still carries rec.Version.
func (r *Repository) Update(ctx context.Context, rec Record) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance_records
		SET time_in = $3, time_out = $4, status = $5, note = $6,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`, rec.ID, rec.Version, rec.TimeIn, rec.TimeOut, string(rec.Status), rec.Note)
	if err := row.Scan(&rec.Version, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrVersionConflict
		}
		return Record{}, err
	}
	return rec, nil
}

// List returns a class day's records.
func (r *Repository) List(ctx context.Context, scheduleID, date string) ([]Record, error) {
	day, err := dateParam(date)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE schedule_id = $1 AND attendance_date = $2
		ORDER BY student_id
	`, scheduleID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// ScanLogEntry is one line of the scan audit trail.
type ScanLogEntry struct {
	ID         string
	KioskID    string
	RFID       string
	StudentID  string
	ScheduleID string
	Type       ScanType
	Status     Status
	Duplicate  bool
	OccurredAt time.Time
}

// LogEntry flattens an outcome for the audit trail.
func (o Outcome) LogEntry() ScanLogEntry {
	return ScanLogEntry{
		KioskID:    o.KioskID,
		RFID:       o.RFID,
		StudentID:  o.Record.StudentID,
		ScheduleID: o.ScheduleID,
		Type:       o.Type,
		Status:     o.Status,
		Duplicate:  o.Duplicate,
		OccurredAt: o.OccurredAt,
	}
}

// InsertScan appends an entry to scan_log.
func (r *Repository) InsertScan(ctx context.Context, e ScanLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scan_log (id, kiosk_id, rfid, student_id, schedule_id, attendance_type, status, duplicate, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.KioskID, e.RFID, e.StudentID, e.ScheduleID, string(e.Type), string(e.Status), e.Duplicate, e.OccurredAt)
	return err
}

// AuditLog appends o to scan_log.
func (r *Repository) AuditLog(ctx context.Context, o Outcome) error {
	return r.InsertScan(ctx, o.LogEntry())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (Record, error) {
	var (
		rec    Record
		status string
	)
	if err := s.Scan(&rec.ID, &rec.StudentID, &rec.ScheduleID, &rec.Date, &rec.TimeIn, &rec.TimeOut, &status, &rec.Note, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}

// dateParam turns a Key date into a value the DATE column accepts.
func dateParam(date string) (time.Time, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return d, nil
}
