package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/models"
)

type SessionRepo struct {
	DB DBTX
}

const saveSession = `-- name: Save Session
INSERT INTO sessions (id, user_id, token, initial_ip, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, user_id, token, initial_ip, created_at, expires_at
`

func (r *SessionRepo) Save(ctx context.Context, s models.Session) (models.Session, error) {
	rows, _ := r.DB.Query(ctx, saveSession, s.ID, s.UserID, s.Token, s.InitialIP, s.CreatedAt, s.ExpiresAt)
	saved, err := pgx.CollectOneRow(rows, rowToSession)
	if err != nil {
		return saved, fmt.Errorf("db error: %w", err)
	}
	return saved, nil
}

const getValidSession = `-- name: Get not expired Session
SELECT id, user_id, token, initial_ip, created_at, expires_at
FROM sessions
WHERE id = $1 AND expires_at > $2
`

// Expired sessions are never returned even if sweeper has not deleted them yet
func (r *SessionRepo) GetValid(ctx context.Context, id uuid.UUID, now time.Time) (models.Session, error) {
	rows, _ := r.DB.Query(ctx, getValidSession, id, now)
	s, err := pgx.CollectOneRow(rows, rowToSession)

	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, pgx.ErrNoRows):
		return s, fmt.Errorf("repo error: %w", apperrors.ErrSessionNotFound)
	default:
		return s, fmt.Errorf("db error: %w", err)
	}
}

const deleteSession = `-- name: Delete Session
DELETE FROM sessions
WHERE id = $1
`

func (r *SessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.DB.Exec(ctx, deleteSession, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const deleteExpiredSessions = `-- name: Delete expired Sessions
DELETE FROM sessions
WHERE expires_at <= $1
`

func (r *SessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpiredSessions, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func rowToSession(row pgx.CollectableRow) (models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.UserID, &s.Token, &s.InitialIP, &s.CreatedAt, &s.ExpiresAt)
	return s, err
}
