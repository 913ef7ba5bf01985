package infra

import (
	"context"
	"sync"

	"story-chain/story/domain"
)

// MemoryStatsStore conta desfechos de submissão em memória.
// Útil para testes e desenvolvimento; não faz expiração.
type MemoryStatsStore struct {
	mu    sync.Mutex
	total map[domain.Outcome]int64
	byKey map[domain.ContributorKey]map[domain.Outcome]int64

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		total: make(map[domain.Outcome]int64),
		byKey: make(map[domain.ContributorKey]map[domain.Outcome]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.Outcome]++
	if s.trackKeys && ev.Key != "" {
		m := s.byKey[ev.Key]
		if m == nil {
			m = make(map[domain.Outcome]int64)
			s.byKey[ev.Key] = m
		}
		m[ev.Outcome]++
	}
	return nil
}

// Total retorna uma cópia dos contadores globais.
func (s *MemoryStatsStore) Total() map[domain.Outcome]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Outcome]int64, len(s.total))
	for k, v := range s.total {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByKey(key domain.ContributorKey) map[domain.Outcome]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Outcome]int64, len(s.byKey[key]))
	for k, v := range s.byKey[key] {
		out[k] = v
	}
	return out
}
