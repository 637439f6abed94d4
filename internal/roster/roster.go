// Package roster resolves RFID badges and section membership against the portal's
// student table.
package roster

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// ErrBadgeNotFound is returned when no active student carries the badge.
var ErrBadgeNotFound = errors.New("badge not registered")

// Directory is the identity lookup used by the kiosk.
type Directory interface {
	ResolveBadge(ctx context.Context, rfid string) (studentID string, err error)
	StudentsInSection(ctx context.Context, sectionID string) ([]string, error)
}

// NormalizeRFID trims reader noise and upper-cases hex badge ids so "0a1b" and " 0A1B\n"
// resolve to the same student.
func NormalizeRFID(rfid string) string {
	return strings.ToUpper(strings.TrimSpace(rfid))
}

// Postgres looks students up in the portal database.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a roster over the portal database.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// ResolveBadge maps an RFID to the student id.
func (p *Postgres) ResolveBadge(ctx context.Context, rfid string) (string, error) {
	var id string
	err := p.db.QueryRowContext(ctx, `
		SELECT id FROM students
		WHERE UPPER(rfid) = $1 AND active
	`, NormalizeRFID(rfid)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrBadgeNotFound
	}
	return id, err
}

// StudentsInSection lists active students of a section.
func (p *Postgres) StudentsInSection(ctx context.Context, sectionID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id FROM students
		WHERE section_id = $1 AND active
		ORDER BY id
	`, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
