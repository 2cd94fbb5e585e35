// Package custody defines the boundary with the server-side share custodian
// with in-memory and file-backed implementations of it.
package custody

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingnet-keyshare/internal/shamir"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
)

// RecordVersion is the current record format.
const RecordVersion = 1

// ErrUnsupportedVersion is returned for records written by a newer format.
var ErrUnsupportedVersion = errors.New("unsupported custody record version")

// Record is what the client hands the custodian for one user.
type Record struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UserID    string    `json:"user_id"`

	// Share A, encrypted under Argon2id(password).
	EncryptedShareA crypto.Envelope  `json:"encrypted_share_a"`
	Argon2Salt      types.Argon2Salt `json:"argon2_salt"`
	KdfParams       crypto.KdfParams `json:"kdf_params"`

	// Share B in legacy hex form. It is one of two required shares and is
	// only useful together with A or C.
	ShareB string `json:"share_b"`

	// Share B encrypted under HKDF(PRF output), for passkey unlock.
	DeviceShareB crypto.Envelope `json:"device_share_b"`
	CredentialID []byte          `json:"credential_id"`
	PrfSalt      types.PrfSalt   `json:"prf_salt"`

	PublicKey string `json:"public_key"`
	Address   string `json:"address"`
}

// Validate checks that every field a flow reads is present and well formed.
func (r *Record) Validate() error {
	if r.Version != RecordVersion {
		return fmt.Errorf("version %d: %w", r.Version, ErrUnsupportedVersion)
	}
	if r.UserID == "" {
		return errors.New("record has no user id")
	}
	if r.EncryptedShareA.Ciphertext == "" || r.EncryptedShareA.Nonce == "" {
		return fmt.Errorf("record has no encrypted share a: %w", types.ErrInvalidEncoding)
	}
	if r.Argon2Salt.Len() == 0 {
		return fmt.Errorf("record has no argon2 salt: %w", types.ErrInvalidLength)
	}
	if err := r.KdfParams.Validate(); err != nil {
		return err
	}
	if _, err := r.ShareBShare(); err != nil {
		return err
	}
	if _, err := r.PublicKeyBytes(); err != nil {
		return err
	}
	return crypto.ValidateAddress(r.Address)
}

// ShareBShare decodes the plaintext Share B.
func (r *Record) ShareBShare() (types.Share, error) {
	s, err := shamir.DecodeHex(r.ShareB)
	if err != nil {
		return types.Share{}, err
	}
	if s.Index() != shamir.IndexB {
		s.Wipe()
		return types.Share{}, fmt.Errorf("stored share has index %d, want %d: %w", s.Index(), shamir.IndexB, types.ErrInvalidShare)
	}
	return s, nil
}

// HasDeviceBinding reports whether a passkey envelope is stored.
func (r *Record) HasDeviceBinding() bool {
	return len(r.CredentialID) > 0 && r.DeviceShareB.Ciphertext != ""
}

// PublicKeyBytes decodes the hex public key.
func (r *Record) PublicKeyBytes() ([crypto.PublicKeySize]byte, error) {
	var pk [crypto.PublicKeySize]byte
	b, err := hex.DecodeString(r.PublicKey)
	if err != nil {
		return pk, fmt.Errorf("public key: %v: %w", err, types.ErrInvalidEncoding)
	}
	if len(b) != crypto.PublicKeySize {
		return pk, fmt.Errorf("public key is %d bytes: %w", len(b), types.ErrInvalidLength)
	}
	copy(pk[:], b)
	return pk, nil
}

// Marshal encodes the record as JSON.
func (r *Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalRecord decodes and validates a JSON record.
func UnmarshalRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode record: %v: %w", err, types.ErrInvalidEncoding)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}
