package crypto

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// FingerprintSize is the number of hash bytes kept in a fingerprint.
const FingerprintSize = 8

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// Fingerprint returns a short hex identifier for data under a label. It is
// meant for logs and diagnostics: it identifies a buffer without revealing it.
func Fingerprint(label string, data []byte) string {
	h := blake3.New()
	_, _ = h.Write([]byte(label))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(data)
	sum := h.Sum(nil)
	defer Wipe(sum)
	return hex.EncodeToString(sum[:FingerprintSize])
}
