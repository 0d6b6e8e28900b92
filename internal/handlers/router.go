package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolauth/internal/handlers/middleware"
	"github.com/nkiryanov/schoolauth/internal/logger"
	"github.com/nkiryanov/schoolauth/internal/models"
	"github.com/nkiryanov/schoolauth/internal/service/schoology"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(authService authService, logger logger.Logger) http.Handler {
	withAuth := middleware.AuthMiddleware(authService, logger)

	api := http.NewServeMux()

	api.Handle("GET /schoology/request_token", handleRequestToken(authService, logger))
	api.Handle("POST /schoology/login", handleLogin(authService, logger))
	api.Handle("GET /schoology/user", withAuth(handleSchoologyUser(authService, logger)))

	api.Handle("GET /user/me", withAuth(handleUserMe()))
	api.Handle("POST /session/logout", withAuth(handleLogout(authService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/v1/", http.StripPrefix("/api/v1", api))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Begin Schoology OAuth flow
	BeginFlow(ctx context.Context) (models.Flow, error)

	// Complete flow authorized by user
	// Has to return apperrors.ErrInvalidFlowID, apperrors.ErrInvalidSignature for bad flow
	// and apperrors.ErrRemoteUnauthorized if Schoology refused to authorize
	// Returns nil session if login is false
	CompleteFlow(ctx context.Context, id uuid.UUID, signature string, login bool, ip string) (*models.IssuedSession, error)

	// Get request and return session if it authenticated
	// Has to return apperrors.ErrSessionNotFound otherwise
	Authenticate(ctx context.Context, r *http.Request) (models.Session, error)

	Logout(ctx context.Context, sessionID uuid.UUID) error

	// Fresh Schoology profile of the user
	// Has to return apperrors.ErrLinkNotFound if user has no linked account
	Profile(ctx context.Context, userID uuid.UUID) (schoology.User, error)
}
