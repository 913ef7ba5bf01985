package application

import (
	"time"

	"story-chain/story/domain"
)

// ThrottleService decide se uma requisição de escrita passa pelo token bucket
// do visitante. É proteção contra rajadas e independe do limite diário.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type ThrottleService struct {
	Store domain.LimiterStore
	// MinRetryAfter é o piso do Retry-After. Também é usado quando o bucket
	// não sabe dizer quando libera.
	MinRetryAfter time.Duration
	// Now permite fixar o relógio nos testes. nil usa time.Now.
	Now func() time.Time
}

func (s ThrottleService) Decide(key domain.ThrottleKey) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	lim := s.Store.Get(key)
	if lim == nil {
		return domain.Decision{Allowed: true}
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ok, wait := lim.Take(now())
	if ok {
		return domain.Decision{Allowed: true}
	}

	floor := s.MinRetryAfter
	if floor <= 0 {
		floor = 1 * time.Second
	}
	if wait < floor {
		wait = floor
	}
	return domain.Decision{Allowed: false, RetryAfter: wait}
}
