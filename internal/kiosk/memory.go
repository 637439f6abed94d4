package kiosk

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process. Sessions are lost on restart, so it only suits a
// single API instance in dev.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	byKiosk  map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		byKiosk:  make(map[string]string),
	}
}

func (m *MemoryStore) Save(_ context.Context, sess Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[sess.Token]; exists {
		return errTokenCollision
	}
	if sess.KioskID != "" {
		if prevToken, ok := m.byKiosk[sess.KioskID]; ok {
			if prev, ok := m.sessions[prevToken]; ok {
				if next, changed := prev.end(sess.CreatedAt); changed {
					m.sessions[prevToken] = next
				}
			}
		}
		m.byKiosk[sess.KioskID] = sess.Token
	}
	m.sessions[sess.Token] = sess
	return nil
}

func (m *MemoryStore) Load(_ context.Context, token string, now time.Time) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[token]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if next, changed := sess.observe(now); changed {
		m.sessions[token] = next
		sess = next
	}
	return sess, nil
}

func (m *MemoryStore) End(_ context.Context, token string, now time.Time) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[token]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if next, changed := sess.end(now); changed {
		m.sessions[token] = next
		sess = next
	}
	return sess, nil
}
