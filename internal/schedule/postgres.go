package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Postgres reads class_schedules.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a directory over the portal database.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const windowColumns = `id, name, day_of_week, to_char(time_in, 'HH24:MI:SS'), to_char(time_out, 'HH24:MI:SS'), section_id, teacher_id, subject_id`

// ResolveSchedule returns the window for scheduleID or ErrNotFound.
func (p *Postgres) ResolveSchedule(ctx context.Context, scheduleID string) (Window, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+windowColumns+` FROM class_schedules WHERE id = $1`, scheduleID)
	w, err := scanWindow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Window{}, ErrNotFound
	}
	return w, err
}

// SchedulesForDay lists every window held on day, ordered by start time.
func (p *Postgres) SchedulesForDay(ctx context.Context, day time.Weekday) ([]Window, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+windowColumns+`
		FROM class_schedules
		WHERE day_of_week = $1
		ORDER BY time_in, id
	`, int(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWindow(s scanner) (Window, error) {
	var (
		w       Window
		day     int
		in, out string
	)
	if err := s.Scan(&w.ID, &w.Name, &day, &in, &out, &w.SectionID, &w.TeacherID, &w.SubjectID); err != nil {
		return Window{}, err
	}
	w.Day = time.Weekday(day)
	var err error
	if w.TimeIn, err = ParseClock(in); err != nil {
		return Window{}, fmt.Errorf("schedule %s: %w", w.ID, err)
	}
	if w.TimeOut, err = ParseClock(out); err != nil {
		return Window{}, fmt.Errorf("schedule %s: %w", w.ID, err)
	}
	return w, nil
}
