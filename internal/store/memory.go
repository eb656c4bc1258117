package store

import (
	"context"
	"sync"

	"github.com/serenitylabs/serenity/internal/models"
)

// MemoryStore keeps encoded runs in a map. Every Get decodes a fresh copy,
// so callers never share state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string][]byte)}
}

func (s *MemoryStore) Save(ctx context.Context, run *models.Run) error {
	data, err := encodeRun(run)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.runs[run.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Run, error) {
	s.mu.RLock()
	data, ok := s.runs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return decodeRun(data)
}

func (s *MemoryStore) List(ctx context.Context) ([]*models.Run, error) {
	s.mu.RLock()
	payloads := make([][]byte, 0, len(s.runs))
	for _, data := range s.runs {
		payloads = append(payloads, data)
	}
	s.mu.RUnlock()

	runs := make([]*models.Run, 0, len(payloads))
	for _, data := range payloads {
		run, err := decodeRun(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return ErrNotFound
	}
	delete(s.runs, id)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
