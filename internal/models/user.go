package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

// Link between local user and Schoology account
type Link struct {
	UserID     uuid.UUID
	RemoteID   string
	FirstName  string
	LastName   string
	Email      string
	PictureURL string
	Tokens     TokenPair
	UpdatedAt  time.Time
}
