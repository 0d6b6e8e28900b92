package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/schoolauth/internal/logger"
	"github.com/nkiryanov/schoolauth/internal/repository/postgres"
	"github.com/nkiryanov/schoolauth/internal/service/auth"
	"github.com/nkiryanov/schoolauth/internal/service/requesttoken"
	"github.com/nkiryanov/schoolauth/internal/service/schoology"
	"github.com/nkiryanov/schoolauth/internal/service/schoology/schoologytest"
	"github.com/nkiryanov/schoolauth/internal/service/session"
	"github.com/nkiryanov/schoolauth/internal/testutil"
)

// Create db transaction and serve production router with it (one connection cause one transaction)
func serveWithTx(t *testing.T, tx pgx.Tx, remote *schoologytest.Server) http.Handler {
	t.Helper()

	storage := postgres.NewStorage(tx)
	client, err := schoology.NewClient(schoology.Config{
		BaseURL:        remote.BaseURL(),
		ConsumerKey:    schoologytest.ConsumerKey,
		ConsumerSecret: schoologytest.ConsumerSecret,
	}, nil)
	require.NoError(t, err)

	as, err := auth.NewService(
		auth.Config{},
		storage,
		client,
		requesttoken.New(storage, nil),
		session.New(session.Config{}, storage.Session(), nil),
		nil,
	)
	require.NoError(t, err)

	return NewRouter(as, logger.NewNoOpLogger())
}

func Test_LoginFlow(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	remote := schoologytest.NewServer()
	t.Cleanup(remote.Close)
	remote.AddUser(schoologytest.User{ID: 482910, NameFirst: "Ada", NameLast: "Lovelace", PictureURL: "https://example.com/ada.png"})

	t.Run("request token, login, use session, logout", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := serveWithTx(t, tx, remote)

			// Begin flow
			resp := doRequest(t, router, http.MethodGet, "/api/v1/schoology/request_token", "", "")
			require.Equalf(t, http.StatusOK, resp.status, "body: %s", resp.body)
			var flow struct {
				UUID       string `json:"uuid"`
				Signature  string `json:"signature"`
				OAuthToken string `json:"oauth_token"`
				ExpiresAt  string `json:"expires_at"`
			}
			require.NoError(t, json.Unmarshal([]byte(resp.body), &flow))
			assert.NotContains(t, resp.body, "secret", "token secret must never leave the server")

			// User authorizes app on Schoology site
			remote.Authorize(flow.OAuthToken, 482910)

			// Complete flow
			body := fmt.Sprintf(`{"uuid": %q, "signature": %q, "login": true}`, flow.UUID, flow.Signature)
			resp = doRequest(t, router, http.MethodPost, "/api/v1/schoology/login", body, "")
			require.Equalf(t, http.StatusOK, resp.status, "body: %s", resp.body)
			var login struct {
				SessionToken     string `json:"session_token"`
				SessionExpiresAt string `json:"session_expires_at"`
			}
			require.NoError(t, json.Unmarshal([]byte(resp.body), &login))
			require.NotEmpty(t, login.SessionToken)
			require.NotEmpty(t, login.SessionExpiresAt)

			// Replay is rejected
			resp = doRequest(t, router, http.MethodPost, "/api/v1/schoology/login", body, "")
			require.Equal(t, http.StatusBadRequest, resp.status)

			// Use session
			resp = doRequest(t, router, http.MethodGet, "/api/v1/schoology/user", "", login.SessionToken)
			require.Equalf(t, http.StatusOK, resp.status, "body: %s", resp.body)
			assert.JSONEq(t, `{
				"first_name": "Ada",
				"last_name": "Lovelace",
				"picture_url": "https://example.com/ada.png"
			}`, resp.body)

			resp = doRequest(t, router, http.MethodGet, "/api/v1/user/me", "", login.SessionToken)
			require.Equal(t, http.StatusOK, resp.status)

			// Logout
			resp = doRequest(t, router, http.MethodPost, "/api/v1/session/logout", "", login.SessionToken)
			require.Equal(t, http.StatusNoContent, resp.status)

			resp = doRequest(t, router, http.MethodGet, "/api/v1/user/me", "", login.SessionToken)
			require.Equal(t, http.StatusUnauthorized, resp.status)
		})
	})

	t.Run("login not authorized by user", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := serveWithTx(t, tx, remote)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/schoology/request_token", nil))
			require.Equal(t, http.StatusOK, rec.Code)
			var flow struct {
				UUID      string `json:"uuid"`
				Signature string `json:"signature"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flow))

			body := fmt.Sprintf(`{"uuid": %q, "signature": %q, "login": true}`, flow.UUID, flow.Signature)
			resp := doRequest(t, router, http.MethodPost, "/api/v1/schoology/login", body, "")

			require.Equal(t, http.StatusUnauthorized, resp.status)
			assert.JSONEq(t, `{"error": "service_error", "message": "Application not authorized, try again"}`, resp.body)
		})
	})
}
