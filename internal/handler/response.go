package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/conquest/api/internal/service"
	"github.com/freeeve/conquest/api/pkg/conquest"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads and decodes JSON from a request body.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// statusFor maps service and engine errors to HTTP status codes.
func statusFor(err error) int {
	var validation *conquest.ValidationError
	var over *conquest.GameOverError
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotInSession), errors.Is(err, service.ErrNotCreator):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidSetupMode), errors.Is(err, service.ErrInvalidMaxPlayers):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrSessionNotWaiting),
		errors.Is(err, service.ErrSessionFull),
		errors.Is(err, service.ErrAlreadyJoined),
		errors.Is(err, service.ErrNotEnoughPlayers),
		errors.Is(err, service.ErrSessionNotActive),
		errors.Is(err, conquest.ErrNotYourTurn),
		errors.Is(err, conquest.ErrStaleVersion):
		return http.StatusConflict
	case errors.As(err, &over), errors.Is(err, conquest.ErrGameOver):
		return http.StatusGone
	case errors.As(err, &validation), errors.Is(err, conquest.ErrInvalidOperation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, conquest.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status. Internal errors are
// logged and hidden from the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
