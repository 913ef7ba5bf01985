package application

import (
	"context"
	"time"

	"story-chain/story/domain"
)

// ConcurrencyService limita requisições em voo com timeout de aquisição,
// sem saber nada sobre HTTP.
//
// Leituras não podem ocupar as últimas SubmitReserve vagas: uma enxurrada de
// GETs não impede um visitante de enviar a frase que já digitou.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
	SubmitReserve  int
}

// Acquire tenta adquirir uma vaga. submit indica um envio de frase.
// AcquireTimeout <= 0 espera até o ctx cancelar. Se ok=false, nenhuma vaga foi adquirida.
func (s ConcurrencyService) Acquire(ctx context.Context, submit bool) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	release, ok := s.acquire(ctx)
	if !ok || submit || s.SubmitReserve <= 0 {
		return release, ok
	}
	// leitura que entrou numa vaga reservada devolve na hora
	if s.Pool.InUse() > s.Pool.Cap()-s.SubmitReserve {
		release()
		return nil, false
	}
	return release, true
}

func (s ConcurrencyService) acquire(ctx context.Context) (func(), bool) {
	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}
