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

type RequestTokenRepo struct {
	DB DBTX
}

const saveRequestToken = `-- name: Save Request Token
INSERT INTO schoology_request_tokens (id, access_token, token_secret, expires_at)
VALUES ($1, $2, $3, $4)
RETURNING id, access_token, token_secret, expires_at
`

func (r *RequestTokenRepo) Save(ctx context.Context, token models.RequestToken) (models.RequestToken, error) {
	rows, _ := r.DB.Query(ctx, saveRequestToken, token.ID, token.AccessToken, token.TokenSecret, token.ExpiresAt)
	saved, err := pgx.CollectOneRow(rows, rowToRequestToken)
	if err != nil {
		return saved, fmt.Errorf("db error: %w", err)
	}
	return saved, nil
}

const getRequestTokenForUpdate = `-- name: Get Request Token and lock it
SELECT id, access_token, token_secret, expires_at
FROM schoology_request_tokens
WHERE id = $1
FOR UPDATE
`

// Get token and lock the row till the end of transaction
// Concurrent callers wait for the lock; if the holder deletes the row they get ErrInvalidFlowID
func (r *RequestTokenRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (models.RequestToken, error) {
	rows, _ := r.DB.Query(ctx, getRequestTokenForUpdate, id)
	token, err := pgx.CollectOneRow(rows, rowToRequestToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrInvalidFlowID)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const deleteRequestToken = `-- name: Delete Request Token
DELETE FROM schoology_request_tokens
WHERE id = $1
`

func (r *RequestTokenRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.DB.Exec(ctx, deleteRequestToken, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const deleteExpiredRequestTokens = `-- name: Delete expired Request Tokens
DELETE FROM schoology_request_tokens
WHERE expires_at <= $1
`

func (r *RequestTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpiredRequestTokens, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func rowToRequestToken(row pgx.CollectableRow) (models.RequestToken, error) {
	var t models.RequestToken
	err := row.Scan(&t.ID, &t.AccessToken, &t.TokenSecret, &t.ExpiresAt)
	return t, err
}
