package devicebind

import (
	"encoding/base64"
	"fmt"

	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
	"github.com/go-webauthn/webauthn/protocol"
)

const prfExtension = "prf"

// prfEvalExtension builds {"prf":{"eval":{"first": salt}}}.
func prfEvalExtension(salt types.PrfSalt) protocol.AuthenticationExtensions {
	return protocol.AuthenticationExtensions{
		prfExtension: map[string]any{
			"eval": map[string]any{
				"first": protocol.URLEncodedBase64(salt.Bytes()),
			},
		},
	}
}

// prfResult reads the client extension outputs of a ceremony. enabled is
// true when the authenticator reported PRF support; out is nil when it did
// not evaluate the PRF in this ceremony.
func prfResult(ext protocol.AuthenticationExtensionsClientOutputs) (out []byte, enabled bool, err error) {
	raw, ok := ext[prfExtension]
	if !ok {
		return nil, false, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, false, fmt.Errorf("malformed prf output: %w", types.ErrPlatformUnsupported)
	}
	enabled, _ = m["enabled"].(bool)
	results, ok := m["results"].(map[string]any)
	if !ok {
		return nil, enabled, nil
	}
	first, ok := bytesValue(results["first"])
	if !ok {
		return nil, enabled, fmt.Errorf("malformed prf result: %w", types.ErrPlatformUnsupported)
	}
	return first, true, nil
}

// prfEvalSalt reads the first PRF salt from request extensions.
func prfEvalSalt(ext protocol.AuthenticationExtensions) ([]byte, bool) {
	m, ok := ext[prfExtension].(map[string]any)
	if !ok {
		return nil, false
	}
	eval, ok := m["eval"].(map[string]any)
	if !ok {
		return nil, false
	}
	return bytesValue(eval["first"])
}

// bytesValue accepts the shapes a buffer takes in extension maps: raw
// bytes in-process, base64url strings after a JSON round trip.
func bytesValue(v any) ([]byte, bool) {
	switch b := v.(type) {
	case []byte:
		return b, true
	case protocol.URLEncodedBase64:
		return []byte(b), true
	case string:
		out, err := base64.RawURLEncoding.DecodeString(b)
		if err != nil {
			return nil, false
		}
		return out, true
	default:
		return nil, false
	}
}
