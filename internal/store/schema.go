package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates the tables the kiosk service reads and writes. Schedules and students
// are owned by the admin portal; the statements only make a fresh database usable.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS class_schedules (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			day_of_week SMALLINT NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
			time_in     TIME NOT NULL,
			time_out    TIME NOT NULL,
			section_id  TEXT NOT NULL,
			teacher_id  TEXT NOT NULL DEFAULT '',
			subject_id  TEXT NOT NULL DEFAULT '',
			CHECK (time_in < time_out)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_class_schedules_day ON class_schedules(day_of_week)`,
		`CREATE TABLE IF NOT EXISTS students (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			rfid       TEXT UNIQUE,
			section_id TEXT NOT NULL DEFAULT '',
			active     BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_students_section ON students(section_id)`,
		`CREATE TABLE IF NOT EXISTS attendance_records (
			id              UUID PRIMARY KEY,
			student_id      TEXT NOT NULL,
			schedule_id     TEXT NOT NULL,
			attendance_date DATE NOT NULL,
			time_in         TIMESTAMPTZ,
			time_out        TIMESTAMPTZ,
			status          TEXT NOT NULL CHECK (status IN ('present', 'late', 'absent')),
			note            TEXT NOT NULL DEFAULT '',
			version         INTEGER NOT NULL DEFAULT 1,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (student_id, schedule_id, attendance_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_schedule_date ON attendance_records(schedule_id, attendance_date)`,
		`CREATE TABLE IF NOT EXISTS scan_log (
			id              UUID PRIMARY KEY,
			kiosk_id        TEXT NOT NULL DEFAULT '',
			rfid            TEXT NOT NULL,
			student_id      TEXT NOT NULL,
			schedule_id     TEXT NOT NULL,
			attendance_type TEXT NOT NULL,
			status          TEXT NOT NULL,
			duplicate       BOOLEAN NOT NULL DEFAULT FALSE,
			occurred_at     TIMESTAMPTZ NOT NULL,
			logged_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
