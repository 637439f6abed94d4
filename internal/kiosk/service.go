package kiosk

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"checkin/internal/metrics"
	"checkin/internal/schedule"
	"checkin/internal/store"
)

// DefaultTTL covers one class session plus set-up time.
const DefaultTTL = 4 * time.Hour

// Service is the session API used by the HTTP layer and the attendance resolver.
type Service struct {
	store     Store
	schedules schedule.Directory
	ttl       time.Duration

	// Now is the wall clock; tests replace it.
	Now func() time.Time
}

// NewService creates a session service; ttl <= 0 selects DefaultTTL.
func NewService(st Store, schedules schedule.Directory, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: st, schedules: schedules, ttl: ttl, Now: time.Now}
}

// Create opens a session bound to scheduleID. kioskID is optional; when set, the
// kiosk's previous session is ended. ttl <= 0 uses the service default.
func (s *Service) Create(ctx context.Context, scheduleID, kioskID string, ttl time.Duration) (Session, error) {
	if scheduleID == "" {
		return Session{}, ErrScheduleNotFound
	}
	w, err := s.schedules.ResolveSchedule(ctx, scheduleID)
	if errors.Is(err, schedule.ErrNotFound) {
		return Session{}, ErrScheduleNotFound
	}
	if err != nil {
		return Session{}, store.Transient(fmt.Errorf("resolve schedule: %w", err))
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.Now()
	sess := Session{
		ScheduleID:   w.ID,
		ScheduleName: w.Name,
		KioskID:      kioskID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		Status:       StatusActive,
	}
	for attempt := 0; attempt < 3; attempt++ {
		if sess.Token, err = newToken(); err != nil {
			return Session{}, fmt.Errorf("generate token: %w", err)
		}
		err = s.store.Save(ctx, sess)
		if !errors.Is(err, errTokenCollision) {
			break
		}
	}
	if err != nil {
		return Session{}, store.Transient(fmt.Errorf("save session: %w", err))
	}
	metrics.SessionEvents.WithLabelValues("created").Inc()
	log.Printf("kiosk session created for schedule %s (kiosk %q) until %s", w.ID, kioskID, sess.ExpiresAt.Format(time.RFC3339))
	return sess, nil
}

// Get returns the session for token. Expired and ended sessions are returned together
// with ErrSessionExpired or ErrSessionEnded so callers can still show their details.
func (s *Service) Get(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrSessionNotFound
	}
	sess, err := s.store.Load(ctx, token, s.Now())
	if errors.Is(err, ErrSessionNotFound) {
		metrics.SessionEvents.WithLabelValues("not_found").Inc()
		return Session{}, err
	}
	if err != nil {
		return Session{}, store.Transient(fmt.Errorf("load session: %w", err))
	}
	if err := sess.Err(); err != nil {
		metrics.SessionEvents.WithLabelValues(string(sess.Status)).Inc()
		return sess, err
	}
	return sess, nil
}

// End ends the session. Ending a session that is already ended or expired is a no-op.
func (s *Service) End(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrSessionNotFound
	}
	sess, err := s.store.End(ctx, token, s.Now())
	if errors.Is(err, ErrSessionNotFound) {
		return Session{}, err
	}
	if err != nil {
		return Session{}, store.Transient(fmt.Errorf("end session: %w", err))
	}
	metrics.SessionEvents.WithLabelValues("ended").Inc()
	return sess, nil
}

// Validate reports whether token names an active session. Only storage failures are
// returned as errors.
func (s *Service) Validate(ctx context.Context, token string) (bool, error) {
	_, err := s.Get(ctx, token)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired), errors.Is(err, ErrSessionEnded):
		return false, nil
	}
	return false, err
}
