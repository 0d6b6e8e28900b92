package session

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/models"
	"github.com/nkiryanov/schoolauth/internal/repository/postgres"
	"github.com/nkiryanov/schoolauth/internal/testutil"
)

func Test_Manager(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Run fn with session manager and fresh user in rolled back transaction
	withTx := func(t *testing.T, fn func(m *Manager, user models.User)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			user, err := storage.User().CreateUser(t.Context())
			require.NoError(t, err)

			fn(New(Config{}, storage.Session(), nil), user)
		})
	}

	t.Run("new defaults", func(t *testing.T) {
		m := New(Config{}, nil, nil)

		assert.Equal(t, 30*24*time.Hour, m.ttl)
		assert.NotNil(t, m.logger)
	})

	t.Run("create", func(t *testing.T) {
		withTx(t, func(m *Manager, user models.User) {
			issued, err := m.Create(t.Context(), user.ID, "10.0.0.1")

			require.NoError(t, err)
			s := issued.Session
			assert.Equal(t, user.ID, s.UserID)
			assert.Equal(t, "10.0.0.1", s.InitialIP)
			assert.Equal(t, 30*24*time.Hour, s.ExpiresAt.Sub(s.CreatedAt))

			raw, err := base64.RawStdEncoding.DecodeString(s.Token)
			require.NoError(t, err)
			assert.Len(t, raw, 32, "session token must carry 256 bits")

			c, err := Decode(issued.Bearer)
			require.NoError(t, err)
			assert.Equal(t, s.ID, c.ID)
			assert.Equal(t, s.Token, c.Signature)
		})
	})

	t.Run("tokens are unique", func(t *testing.T) {
		withTx(t, func(m *Manager, user models.User) {
			first, err := m.Create(t.Context(), user.ID, "10.0.0.1")
			require.NoError(t, err)
			second, err := m.Create(t.Context(), user.ID, "10.0.0.1")
			require.NoError(t, err)

			assert.NotEqual(t, first.Session.ID, second.Session.ID)
			assert.NotEqual(t, first.Session.Token, second.Session.Token)
		})
	})

	t.Run("verify ok", func(t *testing.T) {
		withTx(t, func(m *Manager, user models.User) {
			issued, err := m.Create(t.Context(), user.ID, "10.0.0.1")
			require.NoError(t, err)

			s, err := m.Verify(t.Context(), issued.Bearer)

			require.NoError(t, err)
			assert.Equal(t, issued.Session.ID, s.ID)
			assert.Equal(t, user.ID, s.UserID)
		})
	})

	t.Run("verify tampered signature", func(t *testing.T) {
		withTx(t, func(m *Manager, user models.User) {
			issued, err := m.Create(t.Context(), user.ID, "10.0.0.1")
			require.NoError(t, err)

			tampered := issued.Session
			tampered.Token = base64.RawStdEncoding.EncodeToString(make([]byte, 32))
			bearer, err := Encode(tampered)
			require.NoError(t, err)

			_, err = m.Verify(t.Context(), bearer)

			require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		})
	})

	t.Run("verify unknown id", func(t *testing.T) {
		withTx(t, func(m *Manager, user models.User) {
			bearer, err := Encode(models.Session{ID: uuid.New(), Token: "anything"})
			require.NoError(t, err)

			_, err = m.Verify(t.Context(), bearer)

			require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		})
	})

	t.Run("verify malformed", func(t *testing.T) {
		withTx(t, func(m *Manager, user models.User) {
			_, err := m.Verify(t.Context(), "definitely-not-a-bearer")

			require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		})
	})

	t.Run("verify expired", func(t *testing.T) {
		withTx(t, func(m *Manager, user models.User) {
			issued, err := m.Create(t.Context(), user.ID, "10.0.0.1")
			require.NoError(t, err)
			m.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }

			_, err = m.Verify(t.Context(), issued.Bearer)

			require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		})
	})

	t.Run("delete", func(t *testing.T) {
		withTx(t, func(m *Manager, user models.User) {
			issued, err := m.Create(t.Context(), user.ID, "10.0.0.1")
			require.NoError(t, err)

			require.NoError(t, m.Delete(t.Context(), issued.Session.ID))
			require.NoError(t, m.Delete(t.Context(), issued.Session.ID), "delete must be idempotent")

			_, err = m.Verify(t.Context(), issued.Bearer)
			require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		})
	})
}
