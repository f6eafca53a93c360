package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mcdev12/planning-poker/go/internal/room"
	"github.com/rs/zerolog/log"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	// The client is gone; there is nobody to answer.
	if errors.Is(err, context.Canceled) {
		log.Debug().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request cancelled")
		return
	}

	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}

	evt := log.Warn()
	if status >= http.StatusInternalServerError {
		evt = log.Error()
	}
	evt.Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("request failed")

	writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, room.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, room.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, room.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// roomCode resolves the target room: the {code} path segment, then the
// room query parameter, then the default room. Codes are case-insensitive.
func roomCode(r *http.Request, defaultRoom string) string {
	code := r.PathValue("code")
	if code == "" {
		code = r.URL.Query().Get("room")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return defaultRoom
	}
	return code
}
