package shamir

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
)

// Wire format: mode(1) | index(1) | payload(16).
const (
	// ModeGF256 records the field size in bits. It is the only mode.
	ModeGF256  byte = 8
	headerSize      = 2
	WireSize        = headerSize + types.SharePayloadSize
)

// Encode returns the binary wire form of a share.
func Encode(s types.Share) []byte {
	out := make([]byte, 0, WireSize)
	out = append(out, ModeGF256, s.Index())
	return append(out, s.Payload()...)
}

// Parse decodes the binary wire form. It checks the mode byte, the index
// and the payload length; anything else is ErrInvalidShare.
func Parse(b []byte) (types.Share, error) {
	if len(b) < WireSize {
		return types.Share{}, fmt.Errorf("share is %d bytes, want %d: %w", len(b), WireSize, types.ErrInvalidShare)
	}
	if len(b) > WireSize {
		return types.Share{}, fmt.Errorf("share is %d bytes, want %d: %w", len(b), WireSize, types.ErrInvalidShare)
	}
	if b[0] != ModeGF256 {
		return types.Share{}, fmt.Errorf("share mode %d, want %d: %w", b[0], ModeGF256, types.ErrInvalidShare)
	}
	idx := b[1]
	if idx < IndexA || idx > IndexC {
		return types.Share{}, fmt.Errorf("share index %d outside [1, %d]: %w", idx, TotalShares, types.ErrInvalidShare)
	}
	return types.NewShare(idx, b[headerSize:])
}

// EncodeHex returns the textual share form: the mode as a single hex digit
// followed by a two-digit index and the payload, e.g. "801" + payload hex.
// Because ModeGF256 is below 0x10 the binary form always hex-encodes with a
// leading zero nibble, which is dropped here and restored by DecodeHex.
func EncodeHex(s types.Share) string {
	return unpadHex(hex.EncodeToString(Encode(s)))
}

// DecodeHex parses the textual share form. Even-length input (the plain hex
// of the wire form) is accepted as well.
func DecodeHex(s string) (types.Share, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	b, err := hex.DecodeString(padHex(s))
	if err != nil {
		return types.Share{}, fmt.Errorf("share hex: %w: %w", types.ErrInvalidEncoding, types.ErrInvalidShare)
	}
	return Parse(b)
}

// padHex adds one leading zero nibble iff s has odd length and does not
// already begin with "00". A "00" prefix is genuine data, not padding.
func padHex(s string) string {
	if len(s)%2 == 1 && !strings.HasPrefix(s, "00") {
		return "0" + s
	}
	return s
}

// unpadHex reverses padHex for strings it would have padded.
func unpadHex(s string) string {
	if strings.HasPrefix(s, "0") && !strings.HasPrefix(s, "00") {
		return s[1:]
	}
	return s
}
