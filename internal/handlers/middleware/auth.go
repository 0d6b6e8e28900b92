package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/handlers/render"
	"github.com/nkiryanov/schoolauth/internal/handlers/userctx"
	"github.com/nkiryanov/schoolauth/internal/models"
)

type authService interface {
	// Has to return apperrors.ErrSessionNotFound if request is not authenticated
	Authenticate(ctx context.Context, r *http.Request) (models.Session, error)
}

type errorLogger interface {
	Error(msg string, args ...any)
}

func AuthMiddleware(as authService, l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := as.Authenticate(r.Context(), r)
			switch {
			case errors.Is(err, apperrors.ErrSessionNotFound):
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			case err != nil:
				l.Error("Failed to authenticate request", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := userctx.New(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
