package domain

import "time"

// ThrottleKey identifica o dono de um bucket do throttle: o visitante, pelo
// token do cookie, ou o IP de origem quando ainda não há token válido.
type ThrottleKey struct {
	Visitor ContributorKey
	IP      string
}

func VisitorThrottleKey(k ContributorKey) ThrottleKey { return ThrottleKey{Visitor: k} }
func IPThrottleKey(ip string) ThrottleKey             { return ThrottleKey{IP: ip} }

func (k ThrottleKey) String() string {
	if k.Visitor != "" {
		return "v:" + string(k.Visitor)
	}
	return "ip:" + k.IP
}

// Limiter consome um token do bucket no instante now.
//
// Sem token disponível nada é consumido e wait diz quanto falta para o
// próximo. wait < 0 significa que o bucket nunca libera (burst 0).
type Limiter interface {
	Take(now time.Time) (ok bool, wait time.Duration)
}

// LimiterStore obtém o limiter de uma chave.
type LimiterStore interface {
	Get(ThrottleKey) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor de Retry-After quando bloquear. 0 = sem recomendação.
	RetryAfter time.Duration
}
