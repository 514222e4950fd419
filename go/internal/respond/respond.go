// Package respond writes JSON responses for the HTTP handlers.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write JSON response")
	}
}

// Error writes {"error": code} with the given status.
func Error(w http.ResponseWriter, status int, code string) {
	JSON(w, status, ErrorBody{Error: code})
}
