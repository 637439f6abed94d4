// Package kiosk owns kiosk sessions: the token-authorized binding between a physical
// check-in device and one class schedule.
package kiosk

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

var (
	ErrSessionNotFound  = errors.New("kiosk session not found")
	ErrSessionExpired   = errors.New("kiosk session expired")
	ErrSessionEnded     = errors.New("kiosk session ended")
	ErrScheduleNotFound = errors.New("schedule not found")
)

// errTokenCollision means a freshly generated token already exists. With 256 random bits it
// signals a broken random source rather than bad luck.
var errTokenCollision = errors.New("session token collision")

// Status of a kiosk session. Ended and expired are terminal.
type Status string

const (
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
	StatusExpired Status = "expired"
)

// Session is a kiosk session as persisted by a Store.
type Session struct {
	Token        string     `json:"token"`
	ScheduleID   string     `json:"schedule_id"`
	ScheduleName string     `json:"schedule_name"`
	KioskID      string     `json:"kiosk_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Status       Status     `json:"status"`
}

// observe applies the lazy expiry transition as of now. It reports whether the session
// changed and must be written back.
func (s Session) observe(now time.Time) (Session, bool) {
	if s.Status == StatusActive && !now.Before(s.ExpiresAt) {
		s.Status = StatusExpired
		return s, true
	}
	return s, false
}

// end applies the staff end transition as of now; expiry takes precedence.
func (s Session) end(now time.Time) (Session, bool) {
	s, changed := s.observe(now)
	if s.Status != StatusActive {
		return s, changed
	}
	s.Status = StatusEnded
	s.EndedAt = &now
	return s, true
}

// Err maps a terminal status to its sentinel; nil for an active session.
func (s Session) Err() error {
	switch s.Status {
	case StatusExpired:
		return ErrSessionExpired
	case StatusEnded:
		return ErrSessionEnded
	}
	return nil
}

// Store persists sessions. Every method is atomic per token.
type Store interface {
	// Save inserts a new session. When KioskID is set, the kiosk's previous session,
	// if still active, is ended in the same atomic step.
	Save(ctx context.Context, sess Session) error
	// Load returns the session after applying lazy expiry as of now.
	Load(ctx context.Context, token string, now time.Time) (Session, error)
	// End ends an active session as of now and returns the resulting state.
	End(ctx context.Context, token string, now time.Time) (Session, error)
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
