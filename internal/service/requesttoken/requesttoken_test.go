package requesttoken

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/repository/postgres"
	"github.com/nkiryanov/schoolauth/internal/testutil"
)

func TestSign(t *testing.T) {
	id := uuid.MustParse("6f1c2b9e-3a7d-4e5f-8a9b-0c1d2e3f4a5b")

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, Sign(id, "s3cret"), Sign(id, "s3cret"))
	})

	t.Run("hmac sha512 over raw id bytes", func(t *testing.T) {
		mac := hmac.New(sha512.New, []byte("s3cret"))
		mac.Write(id[:])
		expected := base64.RawStdEncoding.EncodeToString(mac.Sum(nil))

		got := Sign(id, "s3cret")

		assert.Equal(t, expected, got)
		assert.Len(t, got, 86, "64 bytes encoded without padding")
		assert.NotContains(t, got, "=")
	})

	t.Run("depends on secret and id", func(t *testing.T) {
		assert.NotEqual(t, Sign(id, "s3cret"), Sign(id, "other"))
		assert.NotEqual(t, Sign(id, "s3cret"), Sign(uuid.New(), "s3cret"))
	})
}

func Test_Store(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withTx := func(t *testing.T, fn func(s *Store)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			fn(New(postgres.NewStorage(tx), nil))
		})
	}

	t.Run("create", func(t *testing.T) {
		withTx(t, func(s *Store) {
			token, err := s.Create(t.Context(), "request-token", "s3cret", 600*time.Second)

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, token.ID)
			assert.Equal(t, "request-token", token.AccessToken)
			assert.Equal(t, "s3cret", token.TokenSecret)
			assert.WithinDuration(t, time.Now().Add(600*time.Second), token.ExpiresAt, 2*time.Second)
		})
	})

	t.Run("create gives unique ids", func(t *testing.T) {
		withTx(t, func(s *Store) {
			first, err := s.Create(t.Context(), "a", "s3cret", time.Minute)
			require.NoError(t, err)
			second, err := s.Create(t.Context(), "a", "s3cret", time.Minute)
			require.NoError(t, err)

			assert.NotEqual(t, first.ID, second.ID)
		})
	})

	t.Run("verify consumes token once", func(t *testing.T) {
		withTx(t, func(s *Store) {
			token, err := s.Create(t.Context(), "request-token", "s3cret", 600*time.Second)
			require.NoError(t, err)
			signature := Sign(token.ID, "s3cret")

			got, err := s.Verify(t.Context(), token.ID, signature)
			require.NoError(t, err)
			assert.Equal(t, token.ID, got.ID)
			assert.Equal(t, "request-token", got.AccessToken)
			assert.Equal(t, "s3cret", got.TokenSecret)

			_, err = s.Verify(t.Context(), token.ID, signature)
			require.ErrorIs(t, err, apperrors.ErrInvalidFlowID, "second verify must fail")
		})
	})

	t.Run("verify unknown id", func(t *testing.T) {
		withTx(t, func(s *Store) {
			id := uuid.New()

			_, err := s.Verify(t.Context(), id, Sign(id, "s3cret"))

			require.ErrorIs(t, err, apperrors.ErrInvalidFlowID)
		})
	})

	t.Run("verify expired", func(t *testing.T) {
		withTx(t, func(s *Store) {
			token, err := s.Create(t.Context(), "request-token", "s3cret", 600*time.Second)
			require.NoError(t, err)
			s.now = func() time.Time { return time.Now().Add(601 * time.Second) }

			_, err = s.Verify(t.Context(), token.ID, Sign(token.ID, "s3cret"))

			require.ErrorIs(t, err, apperrors.ErrInvalidFlowID)
			require.ErrorIs(t, err, apperrors.ErrFlowExpired)
		})
	})

	t.Run("verify wrong signature keeps token", func(t *testing.T) {
		withTx(t, func(s *Store) {
			token, err := s.Create(t.Context(), "request-token", "s3cret", 600*time.Second)
			require.NoError(t, err)

			_, err = s.Verify(t.Context(), token.ID, Sign(token.ID, "wrong"))
			require.ErrorIs(t, err, apperrors.ErrInvalidSignature)

			_, err = s.Verify(t.Context(), token.ID, Sign(token.ID, "s3cret"))
			require.NoError(t, err, "token must survive failed verify")
		})
	})

	t.Run("delete", func(t *testing.T) {
		withTx(t, func(s *Store) {
			token, err := s.Create(t.Context(), "request-token", "s3cret", time.Minute)
			require.NoError(t, err)

			s.Delete(t.Context(), token.ID)
			s.Delete(t.Context(), token.ID)

			_, err = s.Verify(t.Context(), token.ID, Sign(token.ID, "s3cret"))
			require.ErrorIs(t, err, apperrors.ErrInvalidFlowID)
		})
	})

	t.Run("concurrent verify succeeds once", func(t *testing.T) {
		t.Cleanup(func() { testutil.Truncate(t, pg.Pool) })

		s := New(postgres.NewStorage(pg.Pool), nil)
		token, err := s.Create(t.Context(), "request-token", "s3cret", time.Minute)
		require.NoError(t, err)
		signature := Sign(token.ID, "s3cret")

		const attempts = 10
		var wg sync.WaitGroup
		errs := make(chan error, attempts)

		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Verify(t.Context(), token.ID, signature)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, apperrors.ErrInvalidFlowID)
		}
		assert.Equal(t, 1, succeeded, "exactly one verify must succeed")
	})
}
