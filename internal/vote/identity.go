package vote

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key prefixes for the two classes of voter identity.
const (
	userKeyPrefix = "user:"
	anonKeyPrefix = "anon:"
)

// Identity carries everything known about the caller of a vote request.
// UserID is set for authenticated requests; IP and ClientToken feed the
// anonymous fingerprint otherwise.
type Identity struct {
	UserID      string
	IP          string
	ClientToken string
}

// VoterKey derives the stable, comparable key used for vote deduplication.
//
// Anonymous voters are fingerprinted from IP plus client token, or IP alone
// when no token was sent. Two anonymous voters behind the same NAT without
// distinct tokens therefore share a key and are treated as one voter. This is
// a deliberate tradeoff between abuse resistance and over-blocking, kept as a
// known limitation rather than papered over.
func (i Identity) VoterKey() string {
	if i.UserID != "" {
		return userKeyPrefix + i.UserID
	}

	return anonKeyPrefix + fingerprint(i.IP, i.ClientToken)
}

// IsAnonymous reports whether the identity lacks an authenticated user.
func (i Identity) IsAnonymous() bool {
	return i.UserID == ""
}

// fingerprint hashes the IP and optional client token into a fixed-width
// opaque value so raw addresses never appear in vote records.
func fingerprint(ip, token string) string {
	h := sha256.New()
	h.Write([]byte(ip))

	if token != "" {
		h.Write([]byte("|"))
		h.Write([]byte(token))
	}

	return hex.EncodeToString(h.Sum(nil))[:32]
}
