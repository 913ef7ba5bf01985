package application

import (
	"context"
	"time"

	"story-chain/story/domain"
)

// DefaultBypassName é o nome reservado que desliga o limite diário (demo/testes).
// Não é um segredo nem uma fronteira de acesso.
const DefaultBypassName = "Z3US"

// DailyPolicy decide se um visitante pode contribuir agora.
//
// A janela é móvel: permitido se a última contribuição da chave foi há pelo
// menos Window. BypassName é comparado byte a byte com o nome bruto enviado.
type DailyPolicy struct {
	Window     time.Duration
	BypassName string
	Now        func() time.Time
}

// IsBypass informa se o nome enviado é o literal reservado.
func (p DailyPolicy) IsBypass(submittedName string) bool {
	return p.BypassName != "" && submittedName == p.BypassName
}

// MayContribute consulta h e retorna (permitido, espera restante).
// O bypass não lê nem altera o histórico.
func (p DailyPolicy) MayContribute(ctx context.Context, h domain.History, key domain.ContributorKey, submittedName string) (bool, time.Duration, error) {
	if p.IsBypass(submittedName) {
		return true, 0, nil
	}
	window := p.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	last, ok, err := h.LastContributionTime(ctx, key)
	if err != nil {
		return false, 0, err
	}
	if !ok {
		return true, 0, nil
	}
	elapsed := now().Sub(last)
	if elapsed >= window {
		return true, 0, nil
	}
	return false, window - elapsed, nil
}
