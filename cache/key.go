package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns the SHA-256 digest of the key as a hex string.
// Callers use it to keep secret material (API keys) out of the cache
// keyspace.
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
