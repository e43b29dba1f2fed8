package persistence

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// InMemoryStore is a simple, goroutine-safe store backed by a map. Values
// are kept as given, without a JSON round trip.
type InMemoryStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{values: make(map[string]any)}
}

// NewInMemoryStoreFrom creates a store seeded with a copy of values.
func NewInMemoryStoreFrom(values map[string]any) *InMemoryStore {
	s := NewInMemoryStore()
	maps.Copy(s.values, values)
	return s
}

func (s *InMemoryStore) Set(ctx context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, key string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok, nil
}

func (s *InMemoryStore) Remove(ctx context.Context, key string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	delete(s.values, key)
	return v, ok, nil
}

func (s *InMemoryStore) ContainsKey(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.values[key]
	return ok, nil
}

func (s *InMemoryStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.values)), nil
}

func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.values)
	return nil
}

func (s *InMemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.values), nil
}
