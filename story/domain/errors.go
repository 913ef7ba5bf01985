package domain

import (
	"fmt"
	"time"
)

// Motivos de ValidationError.
const (
	ReasonEmpty       = "empty"
	ReasonTooLong     = "too_long"
	ReasonNameTooLong = "name_too_long"
)

// ValidationError indica entrada corrigível pelo usuário (frase vazia/longa demais).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// RateLimitError indica que o visitante já contribuiu dentro da janela diária.
type RateLimitError struct {
	// RetryAfter é quanto falta para a janela reabrir. Pode ser 0 se desconhecido.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

// StorageError embrulha falhas de I/O do ledger.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }
