package story

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"story-chain/story/application"
	"story-chain/story/domain"
)

const defaultMaxBodyBytes = 16 << 10

const (
	msgRateLimited = "You can only contribute one sentence per day. Please come back tomorrow!"
	msgStorage     = "Could not save your sentence. Please try again later."
)

type Options struct {
	Service *application.Service
	// StaticDir serve os arquivos do front-end em "/". Vazio desliga.
	StaticDir string
	// CookieMaxAge é a validade do cookie de identidade. 0 usa DefaultCookieMaxAge.
	CookieMaxAge time.Duration
	SecureCookie bool
	MaxBodyBytes int64
	Logger       *slog.Logger
	// InFlight, se presente, é reportado em /healthz.
	InFlight func() int
}

type handler struct {
	opts Options
}

// NewHandler monta as rotas da API (e os estáticos, se configurados).
func NewHandler(opts Options) http.Handler {
	if opts.CookieMaxAge <= 0 {
		opts.CookieMaxAge = DefaultCookieMaxAge
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &handler{opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sentence", h.getSentence)
	mux.HandleFunc("POST /api/sentence", h.postSentence)
	mux.HandleFunc("OPTIONS /api/sentence", h.options)
	mux.HandleFunc("GET /healthz", h.health)
	if opts.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(opts.StaticDir)))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Endpoint not found")
	})

	return withCORS(mux)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

// identify resolve o visitante e grava o cookie quando um token novo é emitido.
func (h *handler) identify(w http.ResponseWriter, r *http.Request) domain.ContributorKey {
	key, issued := h.opts.Service.Identify(visitorToken(r))
	if issued != "" {
		setVisitorCookie(w, issued, h.opts.CookieMaxAge, h.opts.SecureCookie)
	}
	return key
}

func (h *handler) options(w http.ResponseWriter, r *http.Request) {
	h.identify(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getSentence(w http.ResponseWriter, r *http.Request) {
	h.identify(w, r)

	s, err := h.opts.Service.GetCurrent(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not load the story. Please try again later.")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(s))
}

type submitRequest struct {
	Sentence  string `json:"sentence"`
	Name      string `json:"name"`
	Anonymous bool   `json:"anonymous"`
}

func (h *handler) postSentence(w http.ResponseWriter, r *http.Request) {
	key := h.identify(w, r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Could not read request body")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "Empty request body")
		return
	}

	var req submitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	sub, err := h.opts.Service.Submit(r.Context(), application.SubmitInput{
		Sentence:  req.Sentence,
		Name:      req.Name,
		Anonymous: req.Anonymous,
		Token:     string(key),
	})
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(sub.Sentence))
}

func (h *handler) writeSubmitError(w http.ResponseWriter, err error) {
	var (
		ve *domain.ValidationError
		rl *domain.RateLimitError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, h.validationMessage(ve))
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", retryAfterSeconds(rl.RetryAfter))
		writeError(w, http.StatusTooManyRequests, msgRateLimited)
	default:
		writeError(w, http.StatusInternalServerError, msgStorage)
	}
}

func (h *handler) validationMessage(ve *domain.ValidationError) string {
	svc := h.opts.Service
	switch ve.Reason {
	case domain.ReasonEmpty:
		return "Sentence is required"
	case domain.ReasonTooLong:
		return "Sentence must be at most " + strconv.Itoa(limitOr(svc.MaxSentenceLen, application.DefaultMaxSentenceLen)) + " characters"
	case domain.ReasonNameTooLong:
		return "Name must be at most " + strconv.Itoa(limitOr(svc.MaxNameLen, application.DefaultMaxNameLen)) + " characters"
	}
	return "Invalid submission"
}

type healthResponse struct {
	Status    string `json:"status"`
	Sentences int64  `json:"sentences"`
	InFlight  *int   `json:"in_flight,omitempty"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	n, err := h.opts.Service.Length(r.Context())
	if err != nil {
		h.opts.Logger.ErrorContext(r.Context(), "health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	resp := healthResponse{Status: "ok", Sentences: n}
	if h.opts.InFlight != nil {
		v := h.opts.InFlight()
		resp.InFlight = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

func limitOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
