package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolauth/internal/handlers/render"
	"github.com/nkiryanov/schoolauth/internal/handlers/userctx"
)

func handleUserMe() http.Handler {
	type response struct {
		ID uuid.UUID `json:"id"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, _ := userctx.FromContext(r.Context())
		render.JSON(w, response{ID: session.UserID})
	})
}
