package story

import (
	"net/http"
	"time"

	"story-chain/story/application"
	"story-chain/story/domain"
)

type ThrottleOptions struct {
	Store               domain.LimiterStore
	KeyFn               KeyFunc
	TrustXForwardedFor  bool
	AddRateLimitHeaders bool
	// MinRetryAfter é o menor Retry-After enviado; o valor real vem do bucket.
	MinRetryAfter time.Duration
	// Methods limita o throttle a esses métodos. Vazio = só POST.
	Methods []string
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

// ThrottleMiddleware aplica token bucket por visitante nas requisições de
// escrita. Rejeita com 429 + Retry-After e corpo JSON {error}.
func ThrottleMiddleware(opts ThrottleOptions) func(next http.Handler) http.Handler {
	if opts.MinRetryAfter == 0 {
		opts.MinRetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = VisitorKeyFunc(opts.TrustXForwardedFor)
	}
	if len(opts.Methods) == 0 {
		opts.Methods = []string{http.MethodPost}
	}
	methods := make(map[string]bool, len(opts.Methods))
	for _, m := range opts.Methods {
		methods[m] = true
	}

	svc := application.ThrottleService{
		Store:         opts.Store,
		MinRetryAfter: opts.MinRetryAfter,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !methods[r.Method] {
				next.ServeHTTP(w, r)
				return
			}
			key := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				if ri, ok := opts.Store.(rateInfo); ok {
					w.Header().Set("X-RateLimit-RPS", formatFloat(ri.RPS()))
					w.Header().Set("X-RateLimit-Burst", formatInt(ri.Burst()))
				}
			}

			dec := svc.Decide(key)
			if !dec.Allowed {
				w.Header().Set("Retry-After", retryAfterSeconds(dec.RetryAfter))
				writeError(w, http.StatusTooManyRequests, "Too many requests. Slow down.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
