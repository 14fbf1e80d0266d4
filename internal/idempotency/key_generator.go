package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
)

// GenerateKey hashes the request identity into a record key. Scoping by
// method and path means a client may reuse the same Idempotency-Key header
// on different routes without collision.
func GenerateKey(method, path, clientKey string) string {
	sum := sha256.Sum256([]byte(method + "\x00" + path + "\x00" + clientKey))
	return hex.EncodeToString(sum[:])
}
