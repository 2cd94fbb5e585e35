package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"

	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
)

// GCMTagSize is the AES-GCM authentication tag size.
const GCMTagSize = 16

// EncryptedData is an AES-256-GCM ciphertext (tag appended) and its nonce.
type EncryptedData struct {
	Ciphertext []byte
	Nonce      types.AesNonce
}

// Envelope is the base64 transport form of EncryptedData.
type Envelope struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

// Encrypt seals plaintext under key with a fresh random nonce.
func Encrypt(plaintext []byte, key types.EncryptionKey) (EncryptedData, error) {
	nonce, err := GenerateNonce()
	if err != nil {
		return EncryptedData{}, err
	}
	return EncryptWithNonce(plaintext, key, nonce)
}

// EncryptWithNonce seals plaintext under key with the given nonce. The caller
// must never reuse a nonce with the same key.
func EncryptWithNonce(plaintext []byte, key types.EncryptionKey, nonce types.AesNonce) (EncryptedData, error) {
	aead, err := newGCM(key)
	if err != nil {
		return EncryptedData{}, err
	}
	ct := aead.Seal(nil, nonce[:], plaintext, nil)
	return EncryptedData{Ciphertext: ct, Nonce: nonce}, nil
}

// Decrypt opens ciphertext. Every failure, including a malformed key, is
// reported as ErrAuthenticationFailed.
func Decrypt(ciphertext []byte, key types.EncryptionKey, nonce types.AesNonce) ([]byte, error) {
	if len(ciphertext) < GCMTagSize {
		return nil, types.ErrAuthenticationFailed
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, types.ErrAuthenticationFailed
	}
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, types.ErrAuthenticationFailed
	}
	return plaintext, nil
}

func newGCM(key types.EncryptionKey) (cipher.AEAD, error) {
	if key.Len() != types.EncryptionKeySize {
		return nil, fmt.Errorf("encryption key: %w", types.ErrInvalidLength)
	}
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", types.ErrInvalidLength)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", types.ErrInvalidLength)
	}
	return aead, nil
}

// Envelope returns the base64 transport form.
func (d EncryptedData) Envelope() Envelope {
	return Envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(d.Ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(d.Nonce[:]),
	}
}

// Decode parses the transport form. Malformed base64 or a wrong nonce length
// is ErrInvalidEncoding, never ErrAuthenticationFailed.
func (e Envelope) Decode() (EncryptedData, error) {
	ct, err := base64.StdEncoding.DecodeString(e.Ciphertext)
	if err != nil {
		return EncryptedData{}, fmt.Errorf("ciphertext is not valid base64 (%v): %w", err, types.ErrInvalidEncoding)
	}
	rawNonce, err := base64.StdEncoding.DecodeString(e.Nonce)
	if err != nil {
		return EncryptedData{}, fmt.Errorf("nonce is not valid base64 (%v): %w", err, types.ErrInvalidEncoding)
	}
	nonce, err := types.NewAesNonce(rawNonce)
	if err != nil {
		return EncryptedData{}, fmt.Errorf("nonce must decode to %d bytes, got %d: %w", types.AesNonceSize, len(rawNonce), types.ErrInvalidEncoding)
	}
	if len(ct) < GCMTagSize {
		return EncryptedData{}, fmt.Errorf("ciphertext shorter than the %d-byte tag: %w", GCMTagSize, types.ErrInvalidEncoding)
	}
	return EncryptedData{Ciphertext: ct, Nonce: nonce}, nil
}

// EncryptToEnvelope encrypts plaintext and returns the transport form.
func EncryptToEnvelope(plaintext []byte, key types.EncryptionKey) (Envelope, error) {
	d, err := Encrypt(plaintext, key)
	if err != nil {
		return Envelope{}, err
	}
	return d.Envelope(), nil
}

// DecryptEnvelope decodes and opens a transport envelope.
func DecryptEnvelope(e Envelope, key types.EncryptionKey) ([]byte, error) {
	d, err := e.Decode()
	if err != nil {
		return nil, err
	}
	return Decrypt(d.Ciphertext, key, d.Nonce)
}
