// Package requesttoken keeps pending OAuth flows.
// Each flow is a Schoology request token bound to a random id and protected by a signature,
// so the client may only complete flows it started.
package requesttoken

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/logger"
	"github.com/nkiryanov/schoolauth/internal/models"
	"github.com/nkiryanov/schoolauth/internal/repository"
)

type Store struct {
	storage repository.Storage
	logger  logger.Logger

	now func() time.Time
}

func New(storage repository.Storage, l logger.Logger) *Store {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Store{
		storage: storage,
		logger:  l,
		now:     time.Now,
	}
}

// Create and persist request token with fresh random id
func (s *Store) Create(ctx context.Context, accessToken string, tokenSecret string, ttl time.Duration) (models.RequestToken, error) {
	token := models.RequestToken{
		ID:          uuid.New(),
		AccessToken: accessToken,
		TokenSecret: tokenSecret,
		ExpiresAt:   s.now().Add(ttl),
	}

	token, err := s.storage.RequestToken().Save(ctx, token)
	if err != nil {
		return token, fmt.Errorf("repo error: %w", err)
	}

	return token, nil
}

// Sign flow id with token secret: HMAC-SHA512 over 16 raw id bytes, base64 without padding
func Sign(id uuid.UUID, tokenSecret string) string {
	mac := hmac.New(sha512.New, []byte(tokenSecret))
	mac.Write(id[:])
	return base64.RawStdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify flow and consume it
// Lookup, checks and delete happen in one transaction with the row locked,
// so concurrent verifies of the same id can't both succeed.
func (s *Store) Verify(ctx context.Context, id uuid.UUID, signature string) (models.RequestToken, error) {
	var token models.RequestToken

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		token, err = tx.RequestToken().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if token.Expired(s.now()) {
			return fmt.Errorf("%w: %w", apperrors.ErrInvalidFlowID, apperrors.ErrFlowExpired)
		}

		expected := Sign(token.ID, token.TokenSecret)
		if !hmac.Equal([]byte(expected), []byte(signature)) {
			return apperrors.ErrInvalidSignature
		}

		return tx.RequestToken().Delete(ctx, token.ID)
	})

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, apperrors.ErrInvalidFlowID), errors.Is(err, apperrors.ErrInvalidSignature):
		s.logger.Debug("Flow verification failed", "flow_id", id, "error", err)
		return models.RequestToken{}, err
	default:
		return models.RequestToken{}, fmt.Errorf("repo error: %w", err)
	}
}

// Delete request token
// Failures are logged and never returned: token expires anyway
func (s *Store) Delete(ctx context.Context, id uuid.UUID) {
	err := s.storage.RequestToken().Delete(ctx, id)
	if err != nil {
		s.logger.Warn("Failed to delete request token", "flow_id", id, "error", err)
	}
}
