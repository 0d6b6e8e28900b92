package models

import (
	"time"

	"github.com/google/uuid"
)

// Pending OAuth flow
// TokenSecret must never leave the server
type RequestToken struct {
	ID          uuid.UUID
	AccessToken string
	TokenSecret string
	ExpiresAt   time.Time
}

func (t RequestToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// OAuth 1.0a token and its secret issued by Schoology
// Used both for request tokens and for permanent access tokens
type TokenPair struct {
	AccessToken string
	TokenSecret string
}

// Flow handle returned to the client when OAuth flow begins
type Flow struct {
	ID         uuid.UUID
	Signature  string
	OAuthToken string
	ExpiresAt  time.Time
}
