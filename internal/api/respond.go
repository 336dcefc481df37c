package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
)

func respondWithError(w http.ResponseWriter, code int, kind, message string) {
	respondWithJSON(w, code, map[string]string{"error_kind": kind, "error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// statusForError maps domain errors to HTTP status codes. Anything unknown is
// a 500 whose body carries only the generic kind, never storage detail.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRequestInProgress),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrSelfMovement),
		errors.Is(err, domain.ErrAccountNotActive),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrIdempotencyMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStorageUnavailable),
		errors.Is(err, domain.ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondWithDomainError(w http.ResponseWriter, err error) {
	code := statusForError(err)
	kind := domain.ErrorKind(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal server error"
	}
	respondWithError(w, code, kind, msg)
}
