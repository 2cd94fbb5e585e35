package types

import (
	"fmt"
	"io"
)

// SharePayloadSize is the size of a share's y-values, one per seed byte.
// A bare payload is BIP-39 compatible (16 bytes -> 12 words).
const SharePayloadSize = SeedSize

// Share is one Shamir share: the x-coordinate (index) and the payload.
// The payload is secret; shares redact themselves when formatted.
type Share struct {
	index   byte
	payload secretBytes
}

// NewShare copies payload into a new share with the given index.
// Index 0 is the secret itself and is never a valid share.
func NewShare(index byte, payload []byte) (Share, error) {
	if index == 0 {
		return Share{}, fmt.Errorf("share index must be non-zero: %w", ErrInvalidShare)
	}
	p, err := newSecretBytes(payload, SharePayloadSize, "share payload")
	if err != nil {
		return Share{}, err
	}
	return Share{index: index, payload: p}, nil
}

// Index returns the share's x-coordinate.
func (s Share) Index() byte { return s.index }

// Payload returns the share's y-values without copying.
func (s Share) Payload() []byte { return s.payload.Bytes() }

// IsZero reports whether the share was never set.
func (s Share) IsZero() bool { return s.index == 0 && s.payload.IsZero() }

// Wipe zeroes the payload.
func (s Share) Wipe() { s.payload.Wipe() }

// String prints the index only.
func (s Share) String() string { return fmt.Sprintf("share#%d%s", s.index, redacted) }

// Format implements fmt.Formatter so that every verb is redacted.
func (s Share) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, s.String())
}

// Equal compares index and payload, the payload in constant time.
func (s Share) Equal(o Share) bool {
	return s.index == o.index && s.payload.equal(o.payload)
}
