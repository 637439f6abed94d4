package roster

import (
	"context"
	"sort"
	"sync"
)

// Student is the slice of a student profile the kiosk needs.
type Student struct {
	ID        string `json:"id"`
	RFID      string `json:"rfid"`
	SectionID string `json:"section_id"`
}

// Memory is an in-process roster for dev mode and tests.
type Memory struct {
	mu        sync.RWMutex
	byBadge   map[string]string
	bySection map[string][]string
}

// NewMemory creates a roster from students.
func NewMemory(students ...Student) *Memory {
	m := &Memory{byBadge: make(map[string]string), bySection: make(map[string][]string)}
	for _, s := range students {
		m.Put(s)
	}
	return m
}

// Put registers a student badge and section membership.
func (m *Memory) Put(s Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.RFID != "" {
		m.byBadge[NormalizeRFID(s.RFID)] = s.ID
	}
	if s.SectionID != "" {
		ids := append(m.bySection[s.SectionID], s.ID)
		sort.Strings(ids)
		m.bySection[s.SectionID] = ids
	}
}

func (m *Memory) ResolveBadge(_ context.Context, rfid string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byBadge[NormalizeRFID(rfid)]
	if !ok {
		return "", ErrBadgeNotFound
	}
	return id, nil
}

func (m *Memory) StudentsInSection(_ context.Context, sectionID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.bySection[sectionID]...), nil
}
