// Package shamir splits a 16-byte seed into three shares over GF(2^8) such
// that any two reconstruct it and any one reveals nothing about it.
package shamir

import (
	"crypto/subtle"
	"fmt"

	"github.com/Klingon-tech/klingnet-keyshare/internal/log"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
)

// Scheme parameters.
const (
	Threshold   = 2
	TotalShares = 3
)

// Share indices (x-coordinates) by role.
const (
	IndexA byte = 1 // password-protected, held by the custody service
	IndexB byte = 2 // device-bound
	IndexC byte = 3 // recovery phrase
)

// Shares is the output of Split.
type Shares struct {
	A types.Share
	B types.Share
	C types.Share
}

// All returns the shares in index order.
func (s Shares) All() []types.Share {
	return []types.Share{s.A, s.B, s.C}
}

// Wipe zeroes every share payload.
func (s Shares) Wipe() {
	s.A.Wipe()
	s.B.Wipe()
	s.C.Wipe()
}

// Split produces shares A, B and C of seed. Each seed byte is the constant
// term of a random degree-1 polynomial evaluated at x = 1, 2, 3.
func Split(seed types.Seed) (Shares, error) {
	if seed.Len() != types.SeedSize {
		return Shares{}, fmt.Errorf("seed: %w", types.ErrInvalidLength)
	}
	coeffs, err := crypto.RandomBytes(types.SeedSize)
	if err != nil {
		return Shares{}, err
	}
	defer crypto.Wipe(coeffs)

	secret := seed.Bytes()
	ys := make([][]byte, TotalShares)
	for i := range ys {
		ys[i] = make([]byte, types.SeedSize)
	}
	defer crypto.Wipe(ys...)

	for j := 0; j < types.SeedSize; j++ {
		for i := 0; i < TotalShares; i++ {
			x := byte(i + 1)
			ys[i][j] = secret[j] ^ gfMul(coeffs[j], x)
		}
	}

	var out Shares
	if out.A, err = types.NewShare(IndexA, ys[0]); err != nil {
		return Shares{}, err
	}
	if out.B, err = types.NewShare(IndexB, ys[1]); err != nil {
		out.Wipe()
		return Shares{}, err
	}
	if out.C, err = types.NewShare(IndexC, ys[2]); err != nil {
		out.Wipe()
		return Shares{}, err
	}

	log.Shamir.Debug().
		Str("a", Fingerprint(out.A)).
		Str("b", Fingerprint(out.B)).
		Str("c", Fingerprint(out.C)).
		Msg("seed split")
	return out, nil
}

// Combine reconstructs the seed from any two distinct shares, in either
// order. Two shares with the same index cannot determine the polynomial and
// fail with ErrReconstructionFailed.
func Combine(x, y types.Share) (types.Seed, error) {
	if err := checkShare(x); err != nil {
		return types.Seed{}, err
	}
	if err := checkShare(y); err != nil {
		return types.Seed{}, err
	}
	if x.Index() == y.Index() {
		return types.Seed{}, fmt.Errorf("both shares have index %d: %w", x.Index(), types.ErrReconstructionFailed)
	}

	x1, x2 := x.Index(), y.Index()
	y1, y2 := x.Payload(), y.Payload()
	if len(y1) != len(y2) {
		return types.Seed{}, fmt.Errorf("share payload lengths differ: %w", types.ErrReconstructionFailed)
	}

	// Lagrange basis at zero: l1 = x2/(x1-x2), l2 = x1/(x1-x2).
	den := x1 ^ x2
	l1 := gfDiv(x2, den)
	l2 := gfDiv(x1, den)

	secret := make([]byte, len(y1))
	defer crypto.Wipe(secret)
	for j := range secret {
		secret[j] = gfMul(y1[j], l1) ^ gfMul(y2[j], l2)
	}

	if len(secret) != types.SeedSize {
		return types.Seed{}, fmt.Errorf("reconstructed %d bytes, want %d: %w", len(secret), types.SeedSize, types.ErrReconstructionFailed)
	}
	seed, err := types.NewSeed(secret)
	if err != nil {
		return types.Seed{}, types.ErrReconstructionFailed
	}
	return seed, nil
}

// VerifyShares reconstructs from a and b and compares the result with
// expected in constant time.
func VerifyShares(a, b types.Share, expected types.Seed) (bool, error) {
	got, err := Combine(a, b)
	if err != nil {
		return false, err
	}
	defer got.Wipe()
	if expected.Len() != types.SeedSize {
		return false, fmt.Errorf("expected seed: %w", types.ErrInvalidLength)
	}
	return subtle.ConstantTimeCompare(got.Bytes(), expected.Bytes()) == 1, nil
}

// ShareIndex returns the embedded index of a share (1, 2 or 3), or 0 for an
// unset share.
func ShareIndex(s types.Share) int {
	return int(s.Index())
}

// Fingerprint identifies a share in logs without revealing its payload.
func Fingerprint(s types.Share) string {
	wire := Encode(s)
	defer crypto.Wipe(wire)
	return crypto.Fingerprint("keyshare/v1/share-fingerprint", wire)
}

func checkShare(s types.Share) error {
	if s.IsZero() {
		return fmt.Errorf("share is empty: %w", types.ErrInvalidShare)
	}
	if s.Index() < IndexA || s.Index() > IndexC {
		return fmt.Errorf("share index %d outside [1, %d]: %w", s.Index(), TotalShares, types.ErrInvalidShare)
	}
	if len(s.Payload()) != types.SharePayloadSize {
		return fmt.Errorf("share payload is %d bytes: %w", len(s.Payload()), types.ErrInvalidShare)
	}
	return nil
}
