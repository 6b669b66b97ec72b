// Package auth guards the operational write surface with static API keys.
//
// Authentication model:
// - The decision path (POST /v1/authorize) is called by the card network
//   gateway inside the trusted perimeter: no key required.
// - Operational mutations (account seeding, subscription management) require
//   an ops key when OPS_API_KEYS is configured.
// - With no keys configured the write surface is open (development mode).
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Keyring holds the accepted ops API keys as SHA-256 hashes. Raw keys never
// stay in memory past construction.
type Keyring struct {
	hashes map[string]struct{}
}

// NewKeyring builds a keyring from raw keys. Blank entries are dropped.
func NewKeyring(keys []string) *Keyring {
	k := &Keyring{hashes: make(map[string]struct{}, len(keys))}
	for _, raw := range keys {
		if raw = strings.TrimSpace(raw); raw != "" {
			k.hashes[hashKey(raw)] = struct{}{}
		}
	}
	return k
}

// Empty reports whether no keys are configured.
func (k *Keyring) Empty() bool {
	return len(k.hashes) == 0
}

// Valid reports whether rawKey matches a configured key. Accepts the bare
// key or "Bearer <key>".
func (k *Keyring) Valid(rawKey string) bool {
	rawKey = strings.TrimPrefix(rawKey, "Bearer ")
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return false
	}

	h := hashKey(rawKey)
	for stored := range k.hashes {
		if subtle.ConstantTimeCompare([]byte(h), []byte(stored)) == 1 {
			return true
		}
	}
	return false
}

// RequireKey returns middleware that rejects requests without a valid ops
// key. When the keyring is empty every request passes.
func RequireKey(k *Keyring) gin.HandlerFunc {
	return func(c *gin.Context) {
		if k.Empty() {
			c.Next()
			return
		}

		apiKey := c.GetHeader("Authorization")
		if apiKey == "" {
			apiKey = c.GetHeader("X-API-Key")
		}

		if !k.Valid(apiKey) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Ops API key required. Include 'Authorization: Bearer <key>' header.",
			})
			return
		}

		c.Next()
	}
}

func hashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
