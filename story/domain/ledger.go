package domain

import (
	"context"
	"time"
)

// History responde quando um visitante contribuiu pela última vez.
// ok=false quando não há contribuição anterior.
type History interface {
	LastContributionTime(ctx context.Context, key ContributorKey) (at time.Time, ok bool, err error)
}

// LedgerWriter é a visão do ledger disponível dentro de uma unidade de escrita.
// Leituras feitas aqui enxergam o mesmo estado serializado em que o Append ocorre.
type LedgerWriter interface {
	History
	Append(ctx context.Context, c NewContribution) (Contribution, error)
}

// Ledger é o registro append-only de contribuições.
//
// Write executa fn como uma unidade atômica e serializada: nenhum outro Write
// roda em paralelo, e se fn retornar erro nada do que ela gravou fica visível.
// Leituras (Latest) não bloqueiam esperando escritas.
type Ledger interface {
	History
	Latest(ctx context.Context) (*Contribution, error)
	Count(ctx context.Context) (int64, error)
	Write(ctx context.Context, fn func(w LedgerWriter) error) error
}
