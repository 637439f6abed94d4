package schedule

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process directory for dev mode and tests.
type Memory struct {
	mu      sync.RWMutex
	windows map[string]Window
}

// NewMemory creates a directory holding windows.
func NewMemory(windows ...Window) *Memory {
	m := &Memory{windows: make(map[string]Window)}
	for _, w := range windows {
		m.windows[w.ID] = w
	}
	return m
}

// Put adds or replaces a window after validating it.
func (m *Memory) Put(w Window) error {
	if err := w.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[w.ID] = w
	return nil
}

func (m *Memory) ResolveSchedule(_ context.Context, scheduleID string) (Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[scheduleID]
	if !ok {
		return Window{}, ErrNotFound
	}
	return w, nil
}

func (m *Memory) SchedulesForDay(_ context.Context, day time.Weekday) ([]Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []Window
	for _, w := range m.windows {
		if w.Day == day {
			res = append(res, w)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].TimeIn != res[j].TimeIn {
			return res[i].TimeIn < res[j].TimeIn
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}
