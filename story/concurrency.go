package story

import (
	"net/http"
	"time"

	"story-chain/story/application"
	"story-chain/story/domain"
)

type ConcurrencyOptions struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
	// SubmitReserve é quantas vagas ficam só para POST /api/sentence.
	SubmitReserve int
}

// ConcurrencyMiddleware limita requisições em voo; responde 503 quando não
// consegue vaga a tempo. Pool nil desliga.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
		SubmitReserve:  opts.SubmitReserve,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context(), r.Method == http.MethodPost)
			if !ok {
				writeError(w, http.StatusServiceUnavailable, "Server busy. Please try again.")
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
