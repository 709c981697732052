// Package identity issues opaque participant identifiers.
package identity

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// NewID returns a 128-bit random identifier in URL-safe base64 without
// padding (22 characters). Ids are not guessable or sequential, so a
// client cannot impersonate another participant by deriving its id.
func NewID() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}
