package domain

import (
	"context"
	"time"
)

// Outcome é o resultado de uma tentativa de submissão.
type Outcome string

const (
	OutcomeAccepted    Outcome = "accepted"
	OutcomeBypass      Outcome = "bypass"
	OutcomeInvalid     Outcome = "invalid"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeFailed      Outcome = "failed"
)

// StatsEvent representa o desfecho de uma submissão.
//
// Observação: Key pode explodir a cardinalidade numa base como Redis; as
// implementações só rastreiam por chave quando configuradas para isso.
type StatsEvent struct {
	Key     ContributorKey
	Outcome Outcome
	At      time.Time
}

// StatsStore é a estratégia de persistência das estatísticas.
// Erros são best-effort: o serviço não derruba a submissão por causa deles.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
