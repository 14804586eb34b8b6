package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/api/shared"
	"github.com/phrazzld/formrelay/internal/domain"
)

// getPathUUID extracts and parses a UUID path parameter. A missing or
// malformed value is a validation error.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName+" is required", nil)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName+" has invalid format", err)
	}
	return id, nil
}

// handlePathUUID extracts a UUID path parameter and writes a 400 response
// if it is missing or malformed.
func handlePathUUID(w http.ResponseWriter, r *http.Request, paramName string, log *slog.Logger) (uuid.UUID, bool) {
	id, err := getPathUUID(r, paramName)
	if err != nil {
		log.Debug("invalid path parameter",
			slog.String("param_name", paramName),
			slog.String("value", chi.URLParam(r, paramName)))
		HandleAPIError(w, r, err, "")
		return uuid.Nil, false
	}
	return id, true
}

// requireAgent returns the agent placed in the context by the auth
// middleware, writing a 401 when it is absent.
func requireAgent(w http.ResponseWriter, r *http.Request, log *slog.Logger) (string, bool) {
	agent, ok := shared.AgentFromContext(r.Context())
	if !ok {
		log.Warn("agent not found in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "Agent not found in token")
		return "", false
	}
	return agent, true
}
