package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
	"golang.org/x/crypto/hkdf"
)

// Derivation domains. Each distinct purpose gets its own label; reusing a
// label with the same input key material reproduces the same key.
const (
	DomainShareBEncryption   = "keyshare/v1/share-b-encryption"
	DomainTransactionSigning = "keyshare/v1/transaction-signing"
	DomainRecoveryCheck      = "keyshare/v1/recovery-check"
)

// MaxDomainKeySize is the RFC 5869 output limit for SHA-256.
const MaxDomainKeySize = 255 * sha256.Size

// DeriveDomainKey runs HKDF-SHA256 extract-and-expand with domain as the
// info parameter.
func DeriveDomainKey(ikm, salt []byte, domain string, length int) ([]byte, error) {
	if domain == "" {
		return nil, types.ErrInvalidDomain
	}
	if length < 1 || length > MaxDomainKeySize {
		return nil, fmt.Errorf("hkdf length %d: %w", length, types.ErrInvalidLength)
	}
	if len(ikm) == 0 {
		return nil, fmt.Errorf("hkdf input key material is empty: %w", types.ErrInvalidLength)
	}

	out := make([]byte, length)
	r := hkdf.New(sha256.New, ikm, salt, []byte(domain))
	if _, err := io.ReadFull(r, out); err != nil {
		Wipe(out)
		return nil, types.ErrKeyDerivationFailed
	}
	return out, nil
}

// DeriveKeyFromPrf derives the Share B encryption key from an authenticator
// PRF output.
func DeriveKeyFromPrf(prfOutput types.PrfOutput, prfSalt types.PrfSalt) (types.EncryptionKey, error) {
	if prfOutput.Len() != types.PrfOutputSize {
		return types.EncryptionKey{}, types.ErrUnexpectedPrfOutputLength
	}
	raw, err := DeriveDomainKey(prfOutput.Bytes(), prfSalt[:], DomainShareBEncryption, types.EncryptionKeySize)
	if err != nil {
		return types.EncryptionKey{}, err
	}
	defer Wipe(raw)
	return types.NewEncryptionKey(raw)
}
