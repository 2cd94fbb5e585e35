package crypto

import (
	"bytes"
	"fmt"

	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameter bounds. Parameters may come from stored records, so
// anything outside these bounds is rejected before any memory is allocated.
const (
	MinMemoryKiB   = 16 * 1024
	MaxMemoryKiB   = 1024 * 1024
	MinIterations  = 1
	MaxIterations  = 10
	MinParallelism = 1
	MaxParallelism = 4
)

// KdfParams holds Argon2id parameters.
type KdfParams struct {
	MemoryKiB   uint32 `json:"memory_kib"`
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// DefaultKdfParams returns recommended Argon2id parameters.
func DefaultKdfParams() KdfParams {
	return KdfParams{
		MemoryKiB:   64 * 1024, // 64 MiB
		Iterations:  3,
		Parallelism: 4,
	}
}

// MinKdfParams returns the cheapest parameters that still pass validation.
func MinKdfParams() KdfParams {
	return KdfParams{
		MemoryKiB:   MinMemoryKiB,
		Iterations:  MinIterations,
		Parallelism: MinParallelism,
	}
}

// Validate checks params against the DoS bounds.
func (p KdfParams) Validate() error {
	if p.MemoryKiB < MinMemoryKiB || p.MemoryKiB > MaxMemoryKiB {
		return fmt.Errorf("memory %d KiB outside [%d, %d]: %w", p.MemoryKiB, MinMemoryKiB, MaxMemoryKiB, types.ErrInvalidKdfParams)
	}
	if p.Iterations < MinIterations || p.Iterations > MaxIterations {
		return fmt.Errorf("iterations %d outside [%d, %d]: %w", p.Iterations, MinIterations, MaxIterations, types.ErrInvalidKdfParams)
	}
	if p.Parallelism < MinParallelism || p.Parallelism > MaxParallelism {
		return fmt.Errorf("parallelism %d outside [%d, %d]: %w", p.Parallelism, MinParallelism, MaxParallelism, types.ErrInvalidKdfParams)
	}
	return nil
}

// DeriveKey derives a 32-byte key from a password with Argon2id.
// Failures inside the primitive are reported as ErrKeyDerivationFailed only.
func DeriveKey(password []byte, salt types.Argon2Salt, params KdfParams) (types.EncryptionKey, error) {
	if err := params.Validate(); err != nil {
		return types.EncryptionKey{}, err
	}
	if salt.Len() < types.MinArgon2SaltSize {
		return types.EncryptionKey{}, fmt.Errorf("argon2 salt: %w", types.ErrInvalidLength)
	}

	raw, err := argon2ID(password, salt.Bytes(), params)
	if err != nil {
		return types.EncryptionKey{}, err
	}
	defer Wipe(raw)

	if len(raw) != types.EncryptionKeySize {
		return types.EncryptionKey{}, types.ErrKeyDerivationFailed
	}
	return types.NewEncryptionKey(raw)
}

// argon2ID runs the primitive and converts a panic into the generic error.
func argon2ID(password, salt []byte, params KdfParams) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			Wipe(out)
			out, err = nil, types.ErrKeyDerivationFailed
		}
	}()
	out = argon2.IDKey(password, salt, params.Iterations, params.MemoryKiB, params.Parallelism, types.EncryptionKeySize)
	return out, nil
}

// IsKdfSupported runs a real minimal derivation twice and checks the output
// is 32 bytes, non-zero and deterministic.
func IsKdfSupported() bool {
	salt, err := types.NewArgon2Salt(bytes.Repeat([]byte{0x5a}, types.MinArgon2SaltSize))
	if err != nil {
		return false
	}
	password := []byte("kdf-probe")
	k1, err := DeriveKey(password, salt, MinKdfParams())
	if err != nil {
		return false
	}
	defer k1.Wipe()
	k2, err := DeriveKey(password, salt, MinKdfParams())
	if err != nil {
		return false
	}
	defer k2.Wipe()

	if k1.Len() != types.EncryptionKeySize || k2.Len() != types.EncryptionKeySize {
		return false
	}
	if isAllZero(k1.Bytes()) {
		return false
	}
	return k1.Equal(k2)
}

func isAllZero(b []byte) bool {
	var v byte
	for _, c := range b {
		v |= c
	}
	return v == 0
}
