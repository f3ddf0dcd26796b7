package infra

import (
	"context"
	"sync"

	"action-limiter/actionlimit/domain"
)

// MemoryStore guarda históricos num map protegido por mutex.
// Útil para testes e para rodar sem disco; não sobrevive a reinício.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]domain.History
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]domain.History)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (domain.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key].Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, key string, h domain.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = h.Clone()
	return nil
}

// Update implementa domain.AtomicHistoryStore.
func (s *MemoryStore) Update(_ context.Context, key string, fn domain.UpdateFunc) (domain.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.entries[key].Clone())
	if err != nil {
		return nil, err
	}
	s.entries[key] = next.Clone()
	return next, nil
}

// Keys lista as chaves armazenadas.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	return out
}

var _ domain.AtomicHistoryStore = (*MemoryStore)(nil)
