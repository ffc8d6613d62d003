package artifact

import (
	"context"
	"fmt"
	"sync"

	"certflow/pkg/platform/sentinel"
)

// InMemoryStore keeps the initial implementation lightweight and testable.
type InMemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{objects: make(map[string]Object)}
}

func (s *InMemoryStore) Put(_ context.Context, key string, body []byte, metadata map[string]string) error {
	obj := Object{Body: append([]byte(nil), body...), Metadata: make(map[string]string, len(metadata))}
	for k, v := range metadata {
		obj.Metadata[k] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = obj
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, key string) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if obj, ok := s.objects[key]; ok {
		return obj, nil
	}
	return Object{}, fmt.Errorf("artifact %s: %w", key, sentinel.ErrNotFound)
}

func (s *InMemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// Keys returns all stored keys, for tests and local inspection.
func (s *InMemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}
