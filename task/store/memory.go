package store

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/flowline/flowline/task"
)

// MemoryStore is a task.Store that keeps rows in memory.
type MemoryStore struct {
	mu   sync.Mutex
	rows []task.Row
}

func NewMemoryStore(rows ...task.Row) *MemoryStore {
	return &MemoryStore{rows: append([]task.Row(nil), rows...)}
}

func (s *MemoryStore) LoadAll() ([]task.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]task.Row, len(s.rows))
	for i, r := range s.rows {
		r.Config = append(task.Config(nil), r.Config...)
		out[i] = r
	}
	return out, nil
}

func (s *MemoryStore) IncrementRunCount(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].RunCount++
			return nil
		}
	}
	return errors.Wrapf(task.ErrUnknownTask, "task %d", id)
}

// RunCount returns the stored count for id, or -1 if unknown.
func (s *MemoryStore) RunCount(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ID == id {
			return r.RunCount
		}
	}
	return -1
}
