package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolauth/internal/models"
)

// Storage gives access to all repositories
// Repositories returned from the storage passed to InTx fn share one transaction
type Storage interface {
	User() UserRepo
	Link() LinkRepo
	RequestToken() RequestTokenRepo
	Session() SessionRepo

	// Run fn in transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

// User repository interface
type UserRepo interface {
	CreateUser(ctx context.Context) (models.User, error)

	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
}

// Schoology link repository interface
type LinkRepo interface {
	// Create link
	// If link for the schoology account exists has to return apperrors.ErrLinkAlreadyExists
	Create(ctx context.Context, link models.Link) (models.Link, error)

	// Update profile and tokens of existing link found by schoology id
	// If link not found must return apperrors.ErrLinkNotFound
	Update(ctx context.Context, link models.Link) (models.Link, error)

	// If link not found must return apperrors.ErrLinkNotFound
	GetByRemoteID(ctx context.Context, remoteID string) (models.Link, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (models.Link, error)
}

// RequestToken repository interface
type RequestTokenRepo interface {
	Save(ctx context.Context, token models.RequestToken) (models.RequestToken, error)

	// Return token and lock it till transaction ends
	// Expired tokens are returned too, so caller may tell expired from not existed
	// If token not found must return apperrors.ErrInvalidFlowID
	GetForUpdate(ctx context.Context, id uuid.UUID) (models.RequestToken, error)

	// Delete token. Deleting not existed token is not an error
	Delete(ctx context.Context, id uuid.UUID) error

	// Delete tokens expired before (or at) the moment. Return count of deleted tokens
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Session repository interface
type SessionRepo interface {
	Save(ctx context.Context, session models.Session) (models.Session, error)

	// Return session only if it is not expired at the moment
	// If session not found or expired must return apperrors.ErrSessionNotFound
	GetValid(ctx context.Context, id uuid.UUID, now time.Time) (models.Session, error)

	// Delete session. Deleting not existed session is not an error
	Delete(ctx context.Context, id uuid.UUID) error

	// Delete sessions expired before (or at) the moment. Return count of deleted sessions
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
