package story

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"story-chain/story/application"
	"story-chain/story/infra"
)

type testEnv struct {
	h      http.Handler
	ledger *infra.SQLiteLedger
	svc    *application.Service
}

func newTestEnv(t *testing.T, staticDir string) *testEnv {
	t.Helper()
	ledger, err := infra.OpenSQLiteLedger(context.Background(), filepath.Join(t.TempDir(), "story.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := &application.Service{
		Ledger:   ledger,
		Identity: infra.TokenResolver{},
		Policy:   application.DailyPolicy{Window: 24 * time.Hour, BypassName: application.DefaultBypassName},
		Logger:   logger,
	}
	h := NewHandler(Options{Service: svc, StaticDir: staticDir, Logger: logger})
	return &testEnv{h: h, ledger: ledger, svc: svc}
}

func (e *testEnv) do(t *testing.T, method, path, body, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, "http://example"+path, rd)
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		r.AddCookie(&http.Cookie{Name: CookieName, Value: cookie})
	}
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, r)
	return w
}

func decodeSentence(t *testing.T, w *httptest.ResponseRecorder) sentenceResponse {
	t.Helper()
	var out sentenceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var out errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out.Error
}

func issuedCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	return nil
}

const tokenA = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
const tokenB = "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210"

func TestHandler_GetEmptyReturnsSeedAndIssuesCookie(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/api/sentence", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	got := decodeSentence(t, w)
	if got.Text != application.SeedText || got.Author != application.SeedAuthor {
		t.Fatalf("expected seed sentence, got %+v", got)
	}
	if got.CreatedAt != "" {
		t.Fatalf("seed must not carry created_at, got %q", got.CreatedAt)
	}

	c := issuedCookie(t, w)
	if c == nil {
		t.Fatalf("expected %s cookie to be issued", CookieName)
	}
	if !infra.WellFormedToken(c.Value) {
		t.Fatalf("issued token is malformed: %q", c.Value)
	}
	if c.MaxAge < 365*24*3600 {
		t.Fatalf("expected multi-year cookie, got max-age %d", c.MaxAge)
	}
	if !c.HttpOnly || c.Path != "/" {
		t.Fatalf("unexpected cookie attributes: %+v", c)
	}
}

func TestHandler_KnownCookieIsNotReissued(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/api/sentence", "", tokenA)
	if c := issuedCookie(t, w); c != nil {
		t.Fatalf("did not expect a new cookie, got %q", c.Value)
	}
}

func TestHandler_MalformedCookieIsReplaced(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/api/sentence", "", "not-a-token")
	c := issuedCookie(t, w)
	if c == nil || c.Value == "not-a-token" {
		t.Fatalf("expected malformed cookie to be replaced")
	}
}

func TestHandler_SubmitThenRateLimited(t *testing.T) {
	env := newTestEnv(t, "")

	w1 := env.do(t, http.MethodPost, "/api/sentence", `{"sentence":"The door creaked open.","name":"Alice","anonymous":false}`, tokenA)
	if w1.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w1.Code, w1.Body.String())
	}
	got := decodeSentence(t, w1)
	if got.Text != "The door creaked open." || got.Author != "Alice" {
		t.Fatalf("unexpected response %+v", got)
	}
	if got.CreatedAt == "" {
		t.Fatalf("expected created_at")
	}

	w2 := env.do(t, http.MethodPost, "/api/sentence", `{"sentence":"Another one.","name":"Alice"}`, tokenA)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
	if msg := decodeError(t, w2); msg != msgRateLimited {
		t.Fatalf("unexpected error message %q", msg)
	}
	if ra := w2.Header().Get("Retry-After"); ra == "" || ra == "0" {
		t.Fatalf("expected Retry-After, got %q", ra)
	}

	// a leitura continua mostrando a primeira frase
	w3 := env.do(t, http.MethodGet, "/api/sentence", "", tokenB)
	if cur := decodeSentence(t, w3); cur.Text != "The door creaked open." {
		t.Fatalf("expected latest sentence unchanged, got %+v", cur)
	}

	// outro visitante não é afetado
	w4 := env.do(t, http.MethodPost, "/api/sentence", `{"sentence":"Hello from B."}`, tokenB)
	if w4.Code != http.StatusCreated {
		t.Fatalf("expected 201 for a different visitor, got %d", w4.Code)
	}
}

func TestHandler_SubmitWithoutCookieIssuesIdentityThatIsLimited(t *testing.T) {
	env := newTestEnv(t, "")

	w1 := env.do(t, http.MethodPost, "/api/sentence", `{"sentence":"First."}`, "")
	if w1.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w1.Code)
	}
	c := issuedCookie(t, w1)
	if c == nil {
		t.Fatalf("expected cookie on first submission")
	}

	w2 := env.do(t, http.MethodPost, "/api/sentence", `{"sentence":"Second."}`, c.Value)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 with issued cookie, got %d", w2.Code)
	}
}

func TestHandler_AnonymousHidesName(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/api/sentence", `{"sentence":"It rained.","name":"Bob","anonymous":true}`, tokenA)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if got := decodeSentence(t, w); got.Author != application.AnonymousAuthor {
		t.Fatalf("expected anonymous author, got %q", got.Author)
	}
}

func TestHandler_BypassNameSubmitsRepeatedly(t *testing.T) {
	env := newTestEnv(t, "")

	for _, text := range []string{"One.", "Two.", "Three."} {
		w := env.do(t, http.MethodPost, "/api/sentence", `{"sentence":"`+text+`","name":"Z3US"}`, tokenA)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201 for %q, got %d", text, w.Code)
		}
		cur := decodeSentence(t, env.do(t, http.MethodGet, "/api/sentence", "", tokenA))
		if cur.Text != text || cur.Author != "Z3US" {
			t.Fatalf("expected %q by Z3US to be latest, got %+v", text, cur)
		}
	}
}

func TestHandler_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"empty sentence", `{"sentence":"","name":"A"}`, http.StatusBadRequest, "Sentence is required"},
		{"whitespace sentence", `{"sentence":"   \n"}`, http.StatusBadRequest, "Sentence is required"},
		{"null sentence", `{"sentence":null}`, http.StatusBadRequest, "Sentence is required"},
		{"too long", `{"sentence":"` + strings.Repeat("x", 501) + `"}`, http.StatusBadRequest, "Sentence must be at most 500 characters"},
		{"invalid json", `{"sentence":`, http.StatusBadRequest, "Invalid JSON payload"},
		{"wrong type", `{"sentence":42}`, http.StatusBadRequest, "Invalid JSON payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/sentence", tt.body, tokenA)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
			if msg := decodeError(t, w); msg != tt.msg {
				t.Fatalf("expected %q, got %q", tt.msg, msg)
			}
		})
	}

	n, err := env.svc.Length(context.Background())
	if err != nil {
		t.Fatalf("length: %v", err)
	}
	if n != 0 {
		t.Fatalf("validation failures must not be stored, got %d rows", n)
	}
}

func TestHandler_EmptyBody(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/api/sentence", "", tokenA)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if msg := decodeError(t, w); msg != "Empty request body" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestHandler_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, "")

	body := `{"sentence":"` + strings.Repeat("x", defaultMaxBodyBytes) + `"}`
	w := env.do(t, http.MethodPost, "/api/sentence", body, tokenA)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestHandler_StorageFailureIs500(t *testing.T) {
	env := newTestEnv(t, "")
	env.ledger.Close()

	w := env.do(t, http.MethodPost, "/api/sentence", `{"sentence":"Lost."}`, tokenA)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if msg := decodeError(t, w); msg != msgStorage {
		t.Fatalf("unexpected message %q", msg)
	}

	if w := env.do(t, http.MethodGet, "/api/sentence", "", tokenA); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on read, got %d", w.Code)
	}
}

func TestHandler_OptionsReturnsCORS(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodOptions, "/api/sentence", "", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected CORS origin *, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Fatalf("unexpected allow-methods %q", got)
	}
}

func TestHandler_UnknownPathIs404JSON(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/api/other", `{}`, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if msg := decodeError(t, w); msg != "Endpoint not found" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestHandler_ServesStaticIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>story</h1>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	env := newTestEnv(t, dir)

	w := env.do(t, http.MethodGet, "/", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<h1>story</h1>") {
		t.Fatalf("expected index.html body, got %q", w.Body.String())
	}
}

func TestHandler_Health(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/sentence", `{"sentence":"Once."}`, tokenA)

	w := env.do(t, http.MethodGet, "/healthz", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "ok" || got.Sentences != 1 {
		t.Fatalf("unexpected health %+v", got)
	}
}
