package common

import (
	"crypto/rand"
	"encoding/hex"
)

// MakeRandHexString returns size random bytes from crypto/rand encoded as
// hex, so the result is twice as long as size. crypto/rand is safe for
// concurrent use; there is no shared generator state to guard.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
