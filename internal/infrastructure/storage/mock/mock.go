package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/tentens-tech/rental-deposit/internal/infrastructure/storage"
)

type record struct {
	data    []byte
	version uint64
}

// Storage is an in-memory append-only arena. FailAppend and FailPut let
// tests inject backend failures.
type Storage struct {
	mu         sync.RWMutex
	records    []record
	revision   uint64
	FailAppend error
	FailPut    error
}

func New() *Storage {
	return &Storage{}
}

func (s *Storage) Append(_ context.Context, data []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAppend != nil {
		return 0, s.FailAppend
	}

	s.revision++
	s.records = append(s.records, record{data: clone(data), version: s.revision})
	return uint64(len(s.records) - 1), nil
}

func (s *Storage) Get(_ context.Context, id uint64) ([]byte, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id >= uint64(len(s.records)) {
		return nil, 0, fmt.Errorf("lease %d: %w", id, storage.ErrNotFound)
	}

	return clone(s.records[id].data), s.records[id].version, nil
}

func (s *Storage) Put(_ context.Context, id uint64, data []byte, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailPut != nil {
		return s.FailPut
	}
	if id >= uint64(len(s.records)) {
		return fmt.Errorf("lease %d: %w", id, storage.ErrNotFound)
	}
	if s.records[id].version != version {
		return fmt.Errorf("lease %d: %w", id, storage.ErrConflict)
	}

	s.revision++
	s.records[id] = record{data: clone(data), version: s.revision}
	return nil
}

func (s *Storage) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.records)), nil
}

func (s *Storage) Close() error {
	return nil
}

func clone(data []byte) []byte {
	return append([]byte(nil), data...)
}
