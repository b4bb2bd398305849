package nvram

import (
	"errors"
	"sync"
)

var errWriteFault = errors.New("nvram: write fault")

// MemoryStore is an in-memory cell array (not persisted).
type MemoryStore struct {
	mu    sync.RWMutex
	cells []byte

	failAt int // index whose writes fail, -1 = none
}

// NewMemoryStore creates an erased in-memory store with size cells.
func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = DefaultSize
	}
	cells := make([]byte, size)
	for i := range cells {
		cells[i] = Erased
	}
	return &MemoryStore{cells: cells, failAt: -1}
}

// Size returns the number of cells.
func (s *MemoryStore) Size() int {
	return len(s.cells)
}

// ReadCell returns the value of cell idx.
func (s *MemoryStore) ReadCell(idx int) (byte, error) {
	if err := checkRange(len(s.cells), idx, 1); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cells[idx], nil
}

// WriteCell stores b in cell idx.
func (s *MemoryStore) WriteCell(idx int, b byte) error {
	if err := checkRange(len(s.cells), idx, 1); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx == s.failAt {
		return errWriteFault
	}
	s.cells[idx] = b
	return nil
}

// FailWritesAt makes every write to idx fail until reset with -1.
func (s *MemoryStore) FailWritesAt(idx int) {
	s.mu.Lock()
	s.failAt = idx
	s.mu.Unlock()
}
