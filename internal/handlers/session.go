package handlers

import (
	"net/http"

	"github.com/nkiryanov/schoolauth/internal/handlers/render"
	"github.com/nkiryanov/schoolauth/internal/handlers/userctx"
	"github.com/nkiryanov/schoolauth/internal/logger"
)

func handleLogout(authService authService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, _ := userctx.FromContext(r.Context())

		err := authService.Logout(r.Context(), session.ID)
		if err != nil {
			renderError(w, err, logger)
			return
		}

		logger.Info("User logged out", "user_id", session.UserID, "session_id", session.ID)
		render.NoContent(w)
	})
}
