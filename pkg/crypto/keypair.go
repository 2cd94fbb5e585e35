package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
)

// Key sizes in bytes.
const (
	PublicKeySize = ed25519.PublicKeySize
	SecretKeySize = ed25519.PrivateKeySize
	SignatureSize = ed25519.SignatureSize
)

// Signer signs messages with an Ed25519 secret key.
type Signer interface {
	// Sign produces an Ed25519 signature over msg.
	Sign(msg []byte) ([]byte, error)
	// PublicKey returns the 32-byte public key.
	PublicKey() [PublicKeySize]byte
}

// Keypair is an Ed25519 keypair derived from a seed. SecretKey is the
// 64-byte wallet convention: expanded seed || public key.
type Keypair struct {
	Public [PublicKeySize]byte
	Secret [SecretKeySize]byte
}

// DeriveKeypair expands the 16-byte seed to 32 bytes with SHA-256 and runs
// standard Ed25519 key generation on the result. It is deterministic.
func DeriveKeypair(seed types.Seed) (*Keypair, error) {
	if seed.Len() != types.SeedSize {
		return nil, fmt.Errorf("seed: %w", types.ErrInvalidLength)
	}
	expanded := sha256.Sum256(seed.Bytes())
	defer Wipe(expanded[:])

	priv := ed25519.NewKeyFromSeed(expanded[:])
	defer Wipe(priv)

	kp := &Keypair{}
	copy(kp.Secret[:], priv)
	copy(kp.Public[:], priv[ed25519.SeedSize:])
	return kp, nil
}

// PublicKey returns the 32-byte public key.
func (kp *Keypair) PublicKey() [PublicKeySize]byte {
	return kp.Public
}

// Address returns the Base58 address of the public key.
func (kp *Keypair) Address() string {
	return PublicKeyToAddress(kp.Public)
}

// Sign produces an Ed25519 signature over msg.
func (kp *Keypair) Sign(msg []byte) ([]byte, error) {
	if isAllZero(kp.Secret[:]) {
		return nil, fmt.Errorf("keypair has been wiped: %w", types.ErrInvalidLength)
	}
	return ed25519.Sign(ed25519.PrivateKey(kp.Secret[:]), msg), nil
}

// Wipe zeroes the secret key.
func (kp *Keypair) Wipe() {
	Wipe(kp.Secret[:])
}

// Verify checks an Ed25519 signature. Returns false on any malformed input.
func Verify(publicKey [PublicKeySize]byte, msg, signature []byte) bool {
	if len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey[:]), msg, signature)
}
