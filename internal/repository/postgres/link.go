package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/models"
)

type LinkRepo struct {
	DB DBTX
}

const linkColumns = `user_id, schoology_id, first_name, last_name, email, picture_url, access_token, token_secret, updated_at`

const createLink = `-- name: CreateLink
INSERT INTO schoology_links (user_id, schoology_id, first_name, last_name, email, picture_url, access_token, token_secret, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
RETURNING ` + linkColumns

func (r *LinkRepo) Create(ctx context.Context, l models.Link) (models.Link, error) {
	rows, _ := r.DB.Query(ctx, createLink,
		l.UserID, l.RemoteID, l.FirstName, l.LastName, l.Email, l.PictureURL, l.Tokens.AccessToken, l.Tokens.TokenSecret,
	)
	link, err := pgx.CollectOneRow(rows, rowToLink)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return link, apperrors.ErrLinkAlreadyExists
		}

		return link, fmt.Errorf("db error: %w", err)
	}

	return link, nil
}

const updateLink = `-- name: UpdateLink
UPDATE schoology_links
SET first_name = $2, last_name = $3, email = $4, picture_url = $5, access_token = $6, token_secret = $7, updated_at = now()
WHERE schoology_id = $1
RETURNING ` + linkColumns

// Update profile and tokens by schoology id
// UserID of the argument is ignored: link never moves to other user
func (r *LinkRepo) Update(ctx context.Context, l models.Link) (models.Link, error) {
	rows, _ := r.DB.Query(ctx, updateLink,
		l.RemoteID, l.FirstName, l.LastName, l.Email, l.PictureURL, l.Tokens.AccessToken, l.Tokens.TokenSecret,
	)
	return collectLink(rows)
}

const getLinkByRemoteID = `-- name: GetLinkByRemoteID
SELECT ` + linkColumns + ` FROM schoology_links
WHERE schoology_id = $1
`

func (r *LinkRepo) GetByRemoteID(ctx context.Context, remoteID string) (models.Link, error) {
	rows, _ := r.DB.Query(ctx, getLinkByRemoteID, remoteID)
	return collectLink(rows)
}

const getLinkByUserID = `-- name: GetLinkByUserID
SELECT ` + linkColumns + ` FROM schoology_links
WHERE user_id = $1
`

func (r *LinkRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (models.Link, error) {
	rows, _ := r.DB.Query(ctx, getLinkByUserID, userID)
	return collectLink(rows)
}

func collectLink(rows pgx.Rows) (models.Link, error) {
	link, err := pgx.CollectOneRow(rows, rowToLink)

	switch {
	case err == nil:
		return link, nil
	case errors.Is(err, pgx.ErrNoRows):
		return link, apperrors.ErrLinkNotFound
	default:
		return link, fmt.Errorf("db error: %w", err)
	}
}

func rowToLink(row pgx.CollectableRow) (models.Link, error) {
	var l models.Link
	err := row.Scan(
		&l.UserID, &l.RemoteID, &l.FirstName, &l.LastName, &l.Email, &l.PictureURL,
		&l.Tokens.AccessToken, &l.Tokens.TokenSecret, &l.UpdatedAt,
	)
	return l, err
}
