// Package types defines the fixed-length and secret byte types shared by
// the wallet core, and its error kinds.
package types

import "errors"

// Error kinds shared by every component. Callers match them with errors.Is;
// components add context with fmt.Errorf("...: %w", err).
var (
	ErrInvalidLength      = errors.New("invalid length")
	ErrEntropyUnavailable = errors.New("secure random source unavailable")

	ErrInvalidKdfParams    = errors.New("invalid kdf parameters")
	ErrKeyDerivationFailed = errors.New("key derivation failed")
	ErrInvalidDomain       = errors.New("invalid derivation domain")

	// ErrAuthenticationFailed is the only error returned for a failed AEAD
	// open. It is never wrapped with library detail.
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidEncoding      = errors.New("invalid encoding")

	ErrInvalidShare         = errors.New("invalid share")
	ErrReconstructionFailed = errors.New("reconstruction failed")

	ErrInvalidWordCount = errors.New("invalid mnemonic word count")
	ErrUnknownWord      = errors.New("word not in mnemonic wordlist")
	ErrChecksumInvalid  = errors.New("mnemonic checksum invalid")

	ErrInvalidAddress = errors.New("invalid address")

	ErrPlatformUnsupported       = errors.New("platform unsupported")
	ErrUntrustedOrigin           = errors.New("untrusted origin")
	ErrUnexpectedPrfOutputLength = errors.New("unexpected prf output length")
	ErrUserCancelled             = errors.New("user cancelled")
)
