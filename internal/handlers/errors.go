package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/handlers/render"
	"github.com/nkiryanov/schoolauth/internal/logger"
)

// Render service error as client response
// Flow errors are rendered identically, so client can't tell which check failed
func renderError(w http.ResponseWriter, err error, l logger.Logger) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidFlowID),
		errors.Is(err, apperrors.ErrInvalidSignature),
		errors.Is(err, apperrors.ErrFlowExpired):
		render.ServiceError(w, "Invalid flow", http.StatusBadRequest)

	case errors.Is(err, apperrors.ErrRemoteUnauthorized):
		l.Info("Schoology refused authorization", "error", err)
		render.ServiceError(w, "Application not authorized, try again", http.StatusUnauthorized)

	case errors.Is(err, apperrors.ErrSessionNotFound):
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)

	case errors.Is(err, apperrors.ErrLinkNotFound):
		render.ServiceError(w, "Schoology account not linked", http.StatusNotFound)

	default:
		l.Error("Request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
