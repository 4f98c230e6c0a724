package vote_test

import (
	"strings"
	"testing"

	"github.com/pulselabs/pulsevote/internal/vote"
	"github.com/stretchr/testify/assert"
)

func TestVoterKey(t *testing.T) {
	t.Parallel()

	t.Run("authenticated user gets user key", func(t *testing.T) {
		t.Parallel()

		identity := vote.Identity{UserID: "42", IP: "203.0.113.7"}
		assert.Equal(t, "user:42", identity.VoterKey())
		assert.False(t, identity.IsAnonymous())
	})

	t.Run("user key ignores IP and token", func(t *testing.T) {
		t.Parallel()

		a := vote.Identity{UserID: "42", IP: "203.0.113.7", ClientToken: "tok-1"}
		b := vote.Identity{UserID: "42", IP: "198.51.100.9", ClientToken: "tok-2"}
		assert.Equal(t, a.VoterKey(), b.VoterKey())
	})

	t.Run("anonymous key is a stable fingerprint", func(t *testing.T) {
		t.Parallel()

		identity := vote.Identity{IP: "203.0.113.7", ClientToken: "tok-1"}
		key := identity.VoterKey()

		assert.True(t, strings.HasPrefix(key, "anon:"), "key %q should carry the anon prefix", key)
		assert.NotContains(t, key, "203.0.113.7", "raw IP must never appear in the key")
		assert.Equal(t, key, identity.VoterKey(), "key must be deterministic")
		assert.True(t, identity.IsAnonymous())
	})

	t.Run("distinct tokens behind one IP get distinct keys", func(t *testing.T) {
		t.Parallel()

		a := vote.Identity{IP: "203.0.113.7", ClientToken: "tok-1"}
		b := vote.Identity{IP: "203.0.113.7", ClientToken: "tok-2"}
		assert.NotEqual(t, a.VoterKey(), b.VoterKey())
	})

	t.Run("same IP without tokens collapses to one voter", func(t *testing.T) {
		t.Parallel()

		a := vote.Identity{IP: "203.0.113.7"}
		b := vote.Identity{IP: "203.0.113.7"}
		assert.Equal(t, a.VoterKey(), b.VoterKey())
	})

	t.Run("missing token differs from empty-looking token", func(t *testing.T) {
		t.Parallel()

		bare := vote.Identity{IP: "203.0.113.7"}
		tokened := vote.Identity{IP: "203.0.113.7", ClientToken: "x"}
		assert.NotEqual(t, bare.VoterKey(), tokened.VoterKey())
	})
}
