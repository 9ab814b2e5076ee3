package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tally/internal/history"
	"tally/internal/logging"
	"tally/internal/services"
	"tally/internal/session"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("failed to encode response", logging.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	writeJSON(w, logger, status, errorResponse{Error: message})
}

// writeServiceError maps the error taxonomy onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", logging.Error(err), logging.String("error_kind", services.Kind(err)))
	}
	writeJSON(w, logger, status, errorResponse{Error: err.Error(), Kind: services.Kind(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrAuditInFlight):
		return http.StatusConflict
	case errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInput), errors.Is(err, services.ErrParse), errors.Is(err, services.ErrMedia):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrExternalTool), errors.Is(err, services.ErrTransient):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
