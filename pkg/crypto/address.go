package crypto

import (
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
	"github.com/mr-tron/base58"
)

// Address length bounds for a Base58-encoded 32-byte public key.
const (
	MinAddressLen = 32
	MaxAddressLen = 44
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// PublicKeyToAddress encodes a public key as Base58. Each leading zero byte
// becomes a leading '1'.
func PublicKeyToAddress(pk [PublicKeySize]byte) string {
	return base58.Encode(pk[:])
}

// AddressToPublicKey decodes a Base58 address. Each leading '1' becomes a
// leading zero byte, and the result must be exactly 32 bytes.
func AddressToPublicKey(addr string) ([PublicKeySize]byte, error) {
	var pk [PublicKeySize]byte
	if err := checkAddressCharset(addr); err != nil {
		return pk, err
	}
	b, err := base58.Decode(addr)
	if err != nil {
		return pk, fmt.Errorf("%w: %w", types.ErrInvalidAddress, types.ErrInvalidEncoding)
	}
	if len(b) != PublicKeySize {
		return pk, fmt.Errorf("address decodes to %d bytes, want %d: %w", len(b), PublicKeySize, types.ErrInvalidAddress)
	}
	copy(pk[:], b)
	return pk, nil
}

// ValidateAddress checks charset, length and decoded size of a user-supplied
// address.
func ValidateAddress(addr string) error {
	_, err := AddressToPublicKey(addr)
	return err
}

func checkAddressCharset(addr string) error {
	if len(addr) < MinAddressLen || len(addr) > MaxAddressLen {
		return fmt.Errorf("address length %d outside [%d, %d]: %w", len(addr), MinAddressLen, MaxAddressLen, types.ErrInvalidAddress)
	}
	for i, c := range addr {
		if !strings.ContainsRune(base58Alphabet, c) {
			return fmt.Errorf("address has invalid character at %d: %w", i, types.ErrInvalidAddress)
		}
	}
	return nil
}
