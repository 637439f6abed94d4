package attendance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRecordNotFound  = errors.New("attendance record not found")
	ErrVersionConflict = errors.New("attendance record changed concurrently")
)

// Store is the attendance record store. Implementations enforce one record per Key.
type Store interface {
	// Get returns the record for key or ErrRecordNotFound.
	Get(ctx context.Context, key Key) (Record, error)
	// Create inserts rec. If a record for the same key already exists it is returned
	// unchanged with created=false.
	Create(ctx context.Context, rec Record) (stored Record, created bool, err error)
	// Update writes rec if the stored version still equals rec.Version, bumping the
	// version; otherwise ErrVersionConflict.
	Update(ctx context.Context, rec Record) (Record, error)
	// List returns the records of a schedule on a date ordered by student.
	List(ctx context.Context, scheduleID, date string) ([]Record, error)
}

// MemoryStore is a mutex-guarded Store for dev mode and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[Key]Record

	Now func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Key]Record), Now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, key Key) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (m *MemoryStore) Create(_ context.Context, rec Record) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[rec.Key()]; ok {
		return existing, false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := m.Now().UTC()
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.records[rec.Key()] = rec
	return rec, true, nil
}

func (m *MemoryStore) Update(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.records[rec.Key()]
	if !ok || current.ID != rec.ID || current.Version != rec.Version {
		return Record{}, ErrVersionConflict
	}
	rec.Version++
	rec.CreatedAt = current.CreatedAt
	rec.UpdatedAt = m.Now().UTC()
	m.records[rec.Key()] = rec
	return rec, nil
}

func (m *MemoryStore) List(_ context.Context, scheduleID, date string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Record
	for k, rec := range m.records {
		if k.ScheduleID == scheduleID && k.Date == date {
			res = append(res, rec)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StudentID < res[j].StudentID })
	return res, nil
}
