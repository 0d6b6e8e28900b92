// Package session issues and verifies long-lived user sessions.
package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
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

const (
	DefaultTTL = 30 * 24 * time.Hour

	tokenBytesLen = 32
)

type Config struct {
	// Session lifetime. If not set than default is used
	TTL time.Duration
}

type Manager struct {
	ttl    time.Duration
	repo   repository.SessionRepo
	logger logger.Logger

	now func() time.Time
}

func New(cfg Config, repo repository.SessionRepo, l logger.Logger) *Manager {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Manager{
		ttl:    cfg.TTL,
		repo:   repo,
		logger: l,
		now:    time.Now,
	}
}

// Create session for user and return it with encoded bearer
func (m *Manager) Create(ctx context.Context, userID uuid.UUID, ip string) (models.IssuedSession, error) {
	var issued models.IssuedSession

	b := make([]byte, tokenBytesLen)
	_, err := rand.Read(b)
	if err != nil {
		return issued, fmt.Errorf("error while generate session token. Err: %w", err)
	}

	now := m.now().Truncate(time.Microsecond)
	s, err := m.repo.Save(ctx, models.Session{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     base64.RawStdEncoding.EncodeToString(b),
		InitialIP: ip,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	})
	if err != nil {
		return issued, fmt.Errorf("error while saving session. Err: %w", err)
	}

	bearer, err := Encode(s)
	if err != nil {
		return issued, err
	}

	return models.IssuedSession{Session: s, Bearer: bearer}, nil
}

// Verify bearer and return session it belongs to
// Malformed, unknown, tampered or expired bearers all give apperrors.ErrSessionNotFound
func (m *Manager) Verify(ctx context.Context, bearer string) (models.Session, error) {
	c, err := Decode(bearer)
	if err != nil {
		m.logger.Debug("Malformed bearer", "error", err)
		return models.Session{}, apperrors.ErrSessionNotFound
	}

	s, err := m.repo.GetValid(ctx, c.ID, m.now())
	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound):
		return models.Session{}, err
	case err != nil:
		return models.Session{}, fmt.Errorf("repo error: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(c.Signature)) != 1 {
		m.logger.Debug("Session signature mismatch", "session_id", c.ID)
		return models.Session{}, apperrors.ErrSessionNotFound
	}

	return s, nil
}

// Delete session. Deleting not existed session is not an error
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	err := m.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("repo error: %w", err)
	}
	return nil
}
