package identity_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quizwire/quizwire/internal/quiz/identity"
)

func TestNewID(t *testing.T) {
	t.Run("is URL-safe without padding", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			id := identity.NewID()

			assert.Len(t, id, 22, "128 bits of base64 without padding")
			assert.False(t, strings.ContainsAny(id, "+/="), "id %q must be URL-safe", id)
		}
	})

	t.Run("does not collide", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 10000; i++ {
			id := identity.NewID()

			assert.False(t, seen[id], "duplicate id %q", id)
			seen[id] = true
		}
	})
}
