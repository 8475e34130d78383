package clientstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// InMemoryStore keeps values for the lifetime of the process.
type InMemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{values: map[string]string{}}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	if s == nil {
		return "", false, errors.New("in-memory client store: nil store")
	}
	if key == "" {
		return "", false, errors.New("in-memory client store: key is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *InMemoryStore) Set(_ context.Context, key string, value string) error {
	if s == nil {
		return errors.New("in-memory client store: nil store")
	}
	if key == "" {
		return errors.New("in-memory client store: key is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, keys ...string) error {
	if s == nil {
		return errors.New("in-memory client store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

func (s *InMemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	if s == nil {
		return nil, errors.New("in-memory client store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.values))
	for key := range s.values {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}
