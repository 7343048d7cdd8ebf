package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"voice-agent-service/internal/apperr"
	"voice-agent-service/internal/schema"
)

const unexpectedErrorDetail = "An unexpected internal server error occurred."

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes a transport level fault. An empty message becomes "HTTP Error".
func writeDetail(w http.ResponseWriter, status int, detail string) {
	if detail == "" {
		detail = "HTTP Error"
	}
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeError maps an error to its HTTP status and JSON body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.With().
		Str("component", "http").
		Str("requestId", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Logger()

	if errors.Is(err, schema.ErrBodyTooLarge) {
		logger.Warn().Err(err).Msg("Request body rejected")
		writeDetail(w, http.StatusRequestEntityTooLarge, http.StatusText(http.StatusRequestEntityTooLarge))
		return
	}

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		logger.Error().Err(err).Msg("Unhandled error")
		writeDetail(w, http.StatusInternalServerError, unexpectedErrorDetail)
		return
	}

	switch appErr.Kind {
	case apperr.Validation:
		logger.Warn().Err(err).Msg("Request validation failed")
		writeDetail(w, http.StatusUnprocessableEntity, appErr.Message)
	case apperr.TokenGeneration:
		logger.Error().Err(err).Msg("Token generation failed")
		writeDetail(w, http.StatusInternalServerError, appErr.Message)
	case apperr.Agent:
		logger.Error().Err(err).Msg("Agent error")
		writeDetail(w, http.StatusInternalServerError, appErr.Message)
	default:
		logger.Error().Err(err).Msg("Unhandled error")
		writeDetail(w, http.StatusInternalServerError, unexpectedErrorDetail)
	}
}
