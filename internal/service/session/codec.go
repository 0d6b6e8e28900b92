package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/models"
)

// Credential types known to the codec
const (
	TypeUser = "user"
)

// Decoded bearer credential
type Credential struct {
	Type      string    `json:"type"`
	ID        uuid.UUID `json:"id"`
	Signature string    `json:"signature"`
}

// Encode session as opaque bearer: base64 (no padding) of JSON credential
func Encode(s models.Session) (string, error) {
	payload, err := json.Marshal(Credential{
		Type:      TypeUser,
		ID:        s.ID,
		Signature: s.Token,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode credential: %w", err)
	}

	return base64.RawStdEncoding.EncodeToString(payload), nil
}

// Decode bearer credential
// Any malformed input gives error wrapping apperrors.ErrMalformedCredential
func Decode(bearer string) (Credential, error) {
	var c Credential

	payload, err := base64.RawStdEncoding.DecodeString(bearer)
	if err != nil {
		return c, fmt.Errorf("%w: bad base64: %w", apperrors.ErrMalformedCredential, err)
	}

	err = json.Unmarshal(payload, &c)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: bad json: %w", apperrors.ErrMalformedCredential, err)
	}

	switch {
	case c.Type != TypeUser:
		return Credential{}, fmt.Errorf("%w: unknown type %q", apperrors.ErrMalformedCredential, c.Type)
	case c.ID == uuid.Nil:
		return Credential{}, fmt.Errorf("%w: missing id", apperrors.ErrMalformedCredential)
	case c.Signature == "":
		return Credential{}, fmt.Errorf("%w: missing signature", apperrors.ErrMalformedCredential)
	}

	return c, nil
}
