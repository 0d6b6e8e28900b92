package userctx

import (
	"context"

	"github.com/nkiryanov/schoolauth/internal/models"
)

type ctxKey string

const sessionKey ctxKey = "session"

// Create a new context with the authenticated session
func New(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// Extract the authenticated session from the context
func FromContext(ctx context.Context) (models.Session, bool) {
	s, ok := ctx.Value(sessionKey).(models.Session)
	return s, ok
}
