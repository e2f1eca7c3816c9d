package storage

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu     sync.RWMutex
	m      map[string]int64
	closed bool
}

func NewMemory() Store {
	return &memoryStore{m: map[string]int64{}}
}

func (s *memoryStore) Resolve(ctx context.Context, name string) (int64, bool, error) {
	n, err := normalize(name)
	if err != nil {
		return 0, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, false, ErrClosed
	}
	id, ok := s.m[n]
	return id, ok, nil
}

func (s *memoryStore) Register(ctx context.Context, name string, chatID int64) (int64, bool, error) {
	n, err := normalize(name)
	if err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false, ErrClosed
	}
	prev, ok := s.m[n]
	s.m[n] = chatID
	return prev, ok, nil
}

func (s *memoryStore) Unregister(ctx context.Context, name string) (int64, error) {
	n, err := normalize(name)
	if err != nil {
		return 0, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	id, ok := s.m[n]
	if !ok {
		return 0, ErrNotFound
	}
	delete(s.m, n)
	return id, nil
}

func (s *memoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m), nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
