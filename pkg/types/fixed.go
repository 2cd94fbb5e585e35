package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// AesNonce is a 96-bit AES-GCM nonce. It must never repeat under one key.
type AesNonce [AesNonceSize]byte

// NewAesNonce copies b into a nonce.
func NewAesNonce(b []byte) (AesNonce, error) {
	var n AesNonce
	if len(b) != AesNonceSize {
		return n, fmt.Errorf("nonce must be %d bytes, got %d: %w", AesNonceSize, len(b), ErrInvalidLength)
	}
	copy(n[:], b)
	return n, nil
}

// Bytes returns a copy of the nonce as a byte slice.
func (n AesNonce) Bytes() []byte {
	b := make([]byte, AesNonceSize)
	copy(b, n[:])
	return b
}

// String returns the hex-encoded nonce.
func (n AesNonce) String() string { return hex.EncodeToString(n[:]) }

// PrfSalt is the 32-byte salt evaluated by the authenticator PRF.
type PrfSalt [PrfSaltSize]byte

// NewPrfSalt copies b into a PRF salt.
func NewPrfSalt(b []byte) (PrfSalt, error) {
	var s PrfSalt
	if len(b) != PrfSaltSize {
		return s, fmt.Errorf("prf salt must be %d bytes, got %d: %w", PrfSaltSize, len(b), ErrInvalidLength)
	}
	copy(s[:], b)
	return s, nil
}

// IsZero returns true if the salt is all zeros.
func (s PrfSalt) IsZero() bool {
	return s == PrfSalt{}
}

// Bytes returns a copy of the salt as a byte slice.
func (s PrfSalt) Bytes() []byte {
	b := make([]byte, PrfSaltSize)
	copy(b, s[:])
	return b
}

// String returns the hex-encoded salt.
func (s PrfSalt) String() string { return hex.EncodeToString(s[:]) }

// MarshalJSON encodes the salt as a hex string.
func (s PrfSalt) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a hex string into a PRF salt.
func (s *PrfSalt) UnmarshalJSON(data []byte) error {
	b, err := unmarshalHex(data, "prf salt")
	if err != nil {
		return err
	}
	salt, err := NewPrfSalt(b)
	if err != nil {
		return err
	}
	*s = salt
	return nil
}

func encodeHex(b []byte) string { return hex.EncodeToString(b) }

func unmarshalHex(data []byte, what string) ([]byte, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s hex: %w", what, ErrInvalidEncoding)
	}
	return b, nil
}
