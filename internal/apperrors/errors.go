package apperrors

import (
	"errors"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrLinkNotFound      = errors.New("schoology link not found")
	ErrLinkAlreadyExists = errors.New("schoology link already exists")

	// Request token (OAuth flow) errors
	// Must be rendered identically to the client, so it can't tell which check failed
	ErrInvalidFlowID    = errors.New("invalid flow id")
	ErrInvalidSignature = errors.New("invalid flow signature")
	ErrFlowExpired      = errors.New("flow is expired")

	ErrSessionNotFound     = errors.New("session not found")
	ErrMalformedCredential = errors.New("malformed credential")

	// Remote (Schoology) API outcomes
	ErrRemoteTransport    = errors.New("remote api transport failure")
	ErrRemoteUnauthorized = errors.New("remote api rejected the request")
	ErrRemoteOther        = errors.New("remote api unexpected response")
	ErrMalformedResponse  = errors.New("remote api malformed response")
)
