package story

import (
	"net"
	"net/http"
	"strings"
	"time"

	"story-chain/story/domain"
	"story-chain/story/infra"
)

const (
	CookieName = "story_client_id"
	// DefaultCookieMaxAge mantém o limite diário valendo entre sessões.
	DefaultCookieMaxAge = 5 * 365 * 24 * time.Hour
)

// visitorToken lê o token do cookie; vazio se ausente.
func visitorToken(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func setVisitorCookie(w http.ResponseWriter, token string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// KeyFunc extrai a chave usada pelo throttle de requisições.
type KeyFunc func(r *http.Request) domain.ThrottleKey

// VisitorKeyFunc usa o token do cookie quando bem formado; senão cai no IP.
// Visitantes sem cookie (ou que o descartam) ficam agrupados pelo IP.
func VisitorKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) domain.ThrottleKey {
		if tok := visitorToken(r); infra.WellFormedToken(tok) {
			return domain.VisitorThrottleKey(domain.ContributorKey(tok))
		}
		return domain.IPThrottleKey(clientIP(r, trustXFF))
	}
}

// ClientIPKeyFunc agrupa só pelo IP do cliente, ignorando o cookie.
func ClientIPKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) domain.ThrottleKey {
		return domain.IPThrottleKey(clientIP(r, trustXFF))
	}
}

func clientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		// pega o primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
