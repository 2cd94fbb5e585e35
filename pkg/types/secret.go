// Package types defines the fixed-length byte types shared by the key
// management core. Every constructor validates length; secret-bearing types
// redact themselves when formatted and can be wiped in place.
package types

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
)

// Buffer sizes in bytes.
const (
	SeedSize          = 16
	EncryptionKeySize = 32
	AesNonceSize      = 12
	MinArgon2SaltSize = 16
	MaxArgon2SaltSize = 1024
	PrfSaltSize       = 32
	PrfOutputSize     = 32
)

const redacted = "[REDACTED]"

// secretBytes owns a single backing buffer. Copies of the wrapper share that
// buffer, so wiping any copy wipes them all.
type secretBytes struct {
	b []byte
}

func newSecretBytes(b []byte, size int, what string) (secretBytes, error) {
	if len(b) != size {
		return secretBytes{}, fmt.Errorf("%s must be %d bytes, got %d: %w", what, size, len(b), ErrInvalidLength)
	}
	buf := make([]byte, size)
	copy(buf, b)
	return secretBytes{b: buf}, nil
}

// Bytes returns the backing buffer without copying. The caller must not
// retain it past the owner's Wipe.
func (s secretBytes) Bytes() []byte { return s.b }

// Len returns the buffer length (zero for an unset value).
func (s secretBytes) Len() int { return len(s.b) }

// IsZero reports whether the value was never set.
func (s secretBytes) IsZero() bool { return s.b == nil }

// Wipe zeroes the backing buffer.
func (s secretBytes) Wipe() {
	for i := range s.b {
		s.b[i] = 0
	}
}

// String redacts the secret for fmt.Print* convenience.
func (s secretBytes) String() string { return redacted }

// Format implements fmt.Formatter so that every verb is redacted.
func (s secretBytes) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, redacted)
}

// MarshalJSON redacts secrets in JSON output.
func (s secretBytes) MarshalJSON() ([]byte, error) { return json.Marshal(redacted) }

func (s secretBytes) equal(o secretBytes) bool {
	return len(s.b) == len(o.b) && subtle.ConstantTimeCompare(s.b, o.b) == 1
}

// Seed is the 16-byte wallet secret.
type Seed struct{ secretBytes }

// NewSeed copies b into a new Seed.
func NewSeed(b []byte) (Seed, error) {
	s, err := newSecretBytes(b, SeedSize, "seed")
	return Seed{s}, err
}

// Equal compares two seeds in constant time.
func (s Seed) Equal(o Seed) bool { return s.equal(o.secretBytes) }

// EncryptionKey is a 32-byte AES-256 key.
type EncryptionKey struct{ secretBytes }

// NewEncryptionKey copies b into a new EncryptionKey.
func NewEncryptionKey(b []byte) (EncryptionKey, error) {
	s, err := newSecretBytes(b, EncryptionKeySize, "encryption key")
	return EncryptionKey{s}, err
}

// Equal compares two keys in constant time.
func (k EncryptionKey) Equal(o EncryptionKey) bool { return k.equal(o.secretBytes) }

// PrfOutput is the 32-byte value returned by an authenticator's PRF
// extension. It is key material and must be wiped right after use.
type PrfOutput struct{ secretBytes }

// NewPrfOutput copies b into a new PrfOutput. A wrong length is reported as
// ErrUnexpectedPrfOutputLength rather than ErrInvalidLength because the value
// comes from an external authenticator.
func NewPrfOutput(b []byte) (PrfOutput, error) {
	if len(b) != PrfOutputSize {
		return PrfOutput{}, fmt.Errorf("prf output must be %d bytes, got %d: %w", PrfOutputSize, len(b), ErrUnexpectedPrfOutputLength)
	}
	s, err := newSecretBytes(b, PrfOutputSize, "prf output")
	return PrfOutput{s}, err
}

// Equal compares two PRF outputs in constant time.
func (p PrfOutput) Equal(o PrfOutput) bool { return p.equal(o.secretBytes) }

// Argon2Salt is a salt of at least 16 bytes.
type Argon2Salt struct {
	b []byte
}

// NewArgon2Salt copies b into a new Argon2Salt.
func NewArgon2Salt(b []byte) (Argon2Salt, error) {
	if len(b) < MinArgon2SaltSize || len(b) > MaxArgon2SaltSize {
		return Argon2Salt{}, fmt.Errorf("argon2 salt must be %d..%d bytes, got %d: %w",
			MinArgon2SaltSize, MaxArgon2SaltSize, len(b), ErrInvalidLength)
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	return Argon2Salt{b: buf}, nil
}

// Bytes returns a copy of the salt.
func (s Argon2Salt) Bytes() []byte {
	out := make([]byte, len(s.b))
	copy(out, s.b)
	return out
}

// Len returns the salt length.
func (s Argon2Salt) Len() int { return len(s.b) }

// MarshalJSON encodes the salt as a hex string.
func (s Argon2Salt) MarshalJSON() ([]byte, error) {
	return json.Marshal(encodeHex(s.b))
}

// UnmarshalJSON decodes a hex string into a salt.
func (s *Argon2Salt) UnmarshalJSON(data []byte) error {
	b, err := unmarshalHex(data, "argon2 salt")
	if err != nil {
		return err
	}
	salt, err := NewArgon2Salt(b)
	if err != nil {
		return err
	}
	*s = salt
	return nil
}
