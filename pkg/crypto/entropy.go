// Package crypto provides the cryptographic primitives of the key management
// core: entropy, secure wipe, Argon2id, HKDF, AES-256-GCM and Ed25519 keypair
// derivation.
package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
)

// RandomBytes returns n bytes from the platform CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	return randomBytesFrom(rand.Reader, n)
}

func randomBytesFrom(r io.Reader, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("random length %d: %w", n, types.ErrInvalidLength)
	}
	if r == nil {
		return nil, types.ErrEntropyUnavailable
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		Wipe(b)
		return nil, types.ErrEntropyUnavailable
	}
	return b, nil
}

// GenerateSeed returns a fresh random seed.
func GenerateSeed() (types.Seed, error) {
	b, err := RandomBytes(types.SeedSize)
	if err != nil {
		return types.Seed{}, err
	}
	defer Wipe(b)
	return types.NewSeed(b)
}

// GenerateNonce returns a fresh random AES-GCM nonce.
func GenerateNonce() (types.AesNonce, error) {
	b, err := RandomBytes(types.AesNonceSize)
	if err != nil {
		return types.AesNonce{}, err
	}
	return types.NewAesNonce(b)
}

// GenerateArgon2Salt returns a fresh random salt of the minimum size.
func GenerateArgon2Salt() (types.Argon2Salt, error) {
	b, err := RandomBytes(types.MinArgon2SaltSize)
	if err != nil {
		return types.Argon2Salt{}, err
	}
	return types.NewArgon2Salt(b)
}

// GeneratePrfSalt returns a fresh random PRF salt.
func GeneratePrfSalt() (types.PrfSalt, error) {
	b, err := RandomBytes(types.PrfSaltSize)
	if err != nil {
		return types.PrfSalt{}, err
	}
	return types.NewPrfSalt(b)
}
