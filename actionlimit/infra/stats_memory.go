package infra

import (
	"context"
	"sync"

	"action-limiter/actionlimit/domain"
)

type Counters struct {
	Allowed   int64
	Denied    int64
	Unlimited int64
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes, para o CLI e para desenvolvimento.
//
// Não faz expiração.
type MemoryStatsStore struct {
	mu         sync.Mutex
	total      Counters
	byCategory map[domain.Category]Counters
}

func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{byCategory: make(map[domain.Category]Counters)}
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.byCategory[ev.Category]
	switch {
	case ev.Unlimited:
		s.total.Unlimited++
		c.Unlimited++
	case ev.Allowed:
		s.total.Allowed++
		c.Allowed++
	default:
		s.total.Denied++
		c.Denied++
	}
	s.byCategory[ev.Category] = c
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByCategory() map[domain.Category]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Category]Counters, len(s.byCategory))
	for k, v := range s.byCategory {
		out[k] = v
	}
	return out
}
