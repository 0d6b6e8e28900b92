package handlers

import (
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolauth/internal/handlers/render"
	"github.com/nkiryanov/schoolauth/internal/handlers/userctx"
	"github.com/nkiryanov/schoolauth/internal/logger"
)

func handleRequestToken(authService authService, logger logger.Logger) http.Handler {
	type response struct {
		UUID       uuid.UUID `json:"uuid"`
		Signature  string    `json:"signature"`
		OAuthToken string    `json:"oauth_token"`
		ExpiresAt  time.Time `json:"expires_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flow, err := authService.BeginFlow(r.Context())
		if err != nil {
			renderError(w, err, logger)
			return
		}

		render.JSON(w, response{
			UUID:       flow.ID,
			Signature:  flow.Signature,
			OAuthToken: flow.OAuthToken,
			ExpiresAt:  flow.ExpiresAt.UTC(),
		})
	})
}

func handleLogin(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		UUID      string `json:"uuid" validate:"required,uuid"`
		Signature string `json:"signature" validate:"required"`
		Login     *bool  `json:"login" validate:"required"`
	}
	type response struct {
		SessionToken     string     `json:"session_token,omitempty"`
		SessionExpiresAt *time.Time `json:"session_expires_at,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		// Validated above
		id := uuid.MustParse(data.UUID)

		issued, err := authService.CompleteFlow(r.Context(), id, data.Signature, *data.Login, clientIP(r))
		if err != nil {
			renderError(w, err, logger)
			return
		}

		var resp response
		if issued != nil {
			expiresAt := issued.Session.ExpiresAt.UTC()
			resp = response{SessionToken: issued.Bearer, SessionExpiresAt: &expiresAt}
		}

		render.JSON(w, resp)
	})
}

func handleSchoologyUser(authService authService, logger logger.Logger) http.Handler {
	type response struct {
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		PictureURL string `json:"picture_url"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, _ := userctx.FromContext(r.Context())

		profile, err := authService.Profile(r.Context(), session.UserID)
		if err != nil {
			renderError(w, err, logger)
			return
		}

		render.JSON(w, response{
			FirstName:  profile.NameFirst,
			LastName:   profile.NameLast,
			PictureURL: profile.PictureURL,
		})
	})
}

// Client address without port
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
