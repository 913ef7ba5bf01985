package story

import (
	"encoding/json"
	"net/http"
	"time"

	"story-chain/story/domain"
)

type sentenceResponse struct {
	Text      string `json:"text"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResponse(s domain.Sentence) sentenceResponse {
	out := sentenceResponse{Text: s.Text, Author: s.Author}
	if !s.CreatedAt.IsZero() {
		out.CreatedAt = s.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
