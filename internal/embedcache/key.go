package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key derives the cache key for a (model, text) pair as
// SHA-256(modelID ‖ '\n' ‖ text), hex-encoded.
func Key(modelID, text string) string {
	h := sha256.New()
	h.Write([]byte(modelID))
	h.Write([]byte{'\n'})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
