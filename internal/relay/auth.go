package relay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenMalformed = errors.New("malformed token")
	ErrTokenSignature = errors.New("token signature mismatch")
	ErrTokenExpired   = errors.New("token expired")
)

// TokenAuth mints and verifies the short-lived bearer tokens carried on
// the websocket handshake. The format is userID:expiryUnix:hexSig with
// an HMAC-SHA256 signature over the first two fields.
//
// In production the token is minted by the auth collaborator sharing
// the secret; the relay only ever verifies. A failed verification is
// fatal to the connection attempt.
type TokenAuth struct {
	secret []byte
	ttl    time.Duration

	// now is the time source; overridable in tests.
	now func() time.Time
}

// NewTokenAuth creates an authenticator with the shared secret.
func NewTokenAuth(secret string, ttl time.Duration) *TokenAuth {
	return &TokenAuth{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Mint issues a token for the user, valid for the configured TTL.
func (a *TokenAuth) Mint(userID string) string {
	expiry := a.now().Add(a.ttl).Unix()
	payload := fmt.Sprintf("%s:%d", userID, expiry)
	return payload + ":" + a.sign(payload)
}

// Verify checks the token's signature and expiry and returns the user
// identity it was minted for.
func (a *TokenAuth) Verify(token string) (string, error) {
	// Split from the right: user ids may themselves contain colons.
	i := strings.LastIndex(token, ":")
	if i < 0 {
		return "", ErrTokenMalformed
	}
	payload, sig := token[:i], token[i+1:]

	if !hmac.Equal([]byte(a.sign(payload)), []byte(sig)) {
		return "", ErrTokenSignature
	}

	j := strings.LastIndex(payload, ":")
	if j < 0 {
		return "", ErrTokenMalformed
	}
	userID, expiryStr := payload[:j], payload[j+1:]
	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil || userID == "" {
		return "", ErrTokenMalformed
	}

	if a.now().Unix() > expiry {
		return "", ErrTokenExpired
	}
	return userID, nil
}

func (a *TokenAuth) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
