package infra

import (
	"context"
	"sync"
	"time"

	"story-chain/story/domain"

	"golang.org/x/time/rate"
)

// ThrottleStore guarda um token bucket (x/time/rate) por visitante ou IP, com
// limpeza periódica das chaves inativas.
type ThrottleStore struct {
	mu           sync.Mutex
	entries      map[domain.ThrottleKey]*throttleEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type throttleEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Take implementa domain.Limiter. Reserva um token e, se ele não está
// disponível em now, cancela a reserva para não empurrar a fila do visitante.
func (e *throttleEntry) Take(now time.Time) (bool, time.Duration) {
	r := e.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, -1
	}
	wait := r.DelayFrom(now)
	if wait <= 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, wait
}

type ThrottleOption func(*ThrottleStore)

func WithIdleTTL(d time.Duration) ThrottleOption {
	return func(s *ThrottleStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) ThrottleOption {
	return func(s *ThrottleStore) { s.cleanupEvery = d }
}

func NewThrottleStore(rps float64, burst int, opts ...ThrottleOption) *ThrottleStore {
	s := &ThrottleStore{
		entries:      make(map[domain.ThrottleKey]*throttleEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ThrottleStore) RPS() float64 { return float64(s.rps) }
func (s *ThrottleStore) Burst() int   { return s.burst }

// Get implementa domain.LimiterStore.
func (s *ThrottleStore) Get(key domain.ThrottleKey) domain.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent
	}

	ent := &throttleEntry{lim: rate.NewLimiter(s.rps, s.burst), lastSeen: now}
	s.entries[key] = ent
	return ent
}

func (s *ThrottleStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *ThrottleStore) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *ThrottleStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
