package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/models"
	"github.com/nkiryanov/schoolauth/internal/testutil"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

func Test_RequestTokenRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	token := models.RequestToken{
		ID:          uuid.New(),
		AccessToken: "request-token",
		TokenSecret: "s3cret",
		ExpiresAt:   mustParseTime("2200-01-01 03:00:02Z"),
	}

	t.Run("save token ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RequestTokenRepo{DB: tx}

			got, err := repo.Save(t.Context(), token)

			require.NoError(t, err)
			require.Equal(t, token.ID, got.ID)
			require.Equal(t, token.AccessToken, got.AccessToken)
			require.Equal(t, token.TokenSecret, got.TokenSecret)
			require.WithinDuration(t, token.ExpiresAt, got.ExpiresAt, time.Microsecond)
		})
	})

	t.Run("get for update ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RequestTokenRepo{DB: tx}
			_, err := repo.Save(t.Context(), token)
			require.NoError(t, err)

			got, err := repo.GetForUpdate(t.Context(), token.ID)

			require.NoError(t, err)
			require.Equal(t, token.ID, got.ID)
			require.Equal(t, token.TokenSecret, got.TokenSecret)
			require.WithinDuration(t, token.ExpiresAt, got.ExpiresAt, 0)
		})
	})

	t.Run("get expired token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RequestTokenRepo{DB: tx}
			expired := token
			expired.ExpiresAt = mustParseTime("2024-01-01 00:00:00Z")
			_, err := repo.Save(t.Context(), expired)
			require.NoError(t, err)

			got, err := repo.GetForUpdate(t.Context(), token.ID)

			require.NoError(t, err, "expired token still returned, caller decides")
			require.True(t, got.Expired(time.Now()))
		})
	})

	t.Run("get not existed", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RequestTokenRepo{DB: tx}

			_, err := repo.GetForUpdate(t.Context(), uuid.New())

			require.ErrorIs(t, err, apperrors.ErrInvalidFlowID)
		})
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RequestTokenRepo{DB: tx}
			_, err := repo.Save(t.Context(), token)
			require.NoError(t, err)

			require.NoError(t, repo.Delete(t.Context(), token.ID))
			require.NoError(t, repo.Delete(t.Context(), token.ID), "second delete must not fail")

			_, err = repo.GetForUpdate(t.Context(), token.ID)
			require.ErrorIs(t, err, apperrors.ErrInvalidFlowID)
		})
	})

	t.Run("delete expired", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RequestTokenRepo{DB: tx}
			now := time.Now()

			alive := models.RequestToken{ID: uuid.New(), AccessToken: "a", TokenSecret: "s", ExpiresAt: now.Add(time.Minute)}
			expired := models.RequestToken{ID: uuid.New(), AccessToken: "b", TokenSecret: "s", ExpiresAt: now.Add(-time.Minute)}
			for _, tk := range []models.RequestToken{alive, expired} {
				_, err := repo.Save(t.Context(), tk)
				require.NoError(t, err)
			}

			count, err := repo.DeleteExpired(t.Context(), now)

			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
			_, err = repo.GetForUpdate(t.Context(), alive.ID)
			assert.NoError(t, err, "alive token must stay")
			_, err = repo.GetForUpdate(t.Context(), expired.ID)
			assert.ErrorIs(t, err, apperrors.ErrInvalidFlowID, "expired token must be deleted")
		})
	})
}
