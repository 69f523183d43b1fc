package store

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
)

// InMemoryStore keeps records in process memory. Used by tests and mock mode.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string]string),
	}
}

func (s *InMemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	value, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(strings.NewReader(value)), nil
}

func (s *InMemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	_, ok := s.data[key]
	s.mu.RUnlock()
	return ok, nil
}

func (s *InMemoryStore) Put(_ context.Context, key, value string, opts PutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.Condition == PutIfNoneMatch {
		if _, exists := s.data[key]; exists {
			return ErrAlreadyExists
		}
	}

	s.data[key] = value
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	keys := make([]string, 0)
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, strings.TrimPrefix(key, prefix))
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}
