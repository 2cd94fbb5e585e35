// Package capability probes whether the platform can run every primitive
// the wallet needs. Probes run real minimal operations, not feature flags.
package capability

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/Klingon-tech/klingnet-keyshare/internal/devicebind"
	"github.com/Klingon-tech/klingnet-keyshare/internal/log"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
)

// Feature names used in Report.Missing.
const (
	FeatureWebCrypto = "webcrypto"
	FeatureAESGCM    = "aes-gcm"
	FeatureEd25519   = "ed25519"
	FeatureWebAuthn  = "webauthn"
	FeaturePlatform  = "platform-authenticator"
	FeaturePRF       = "webauthn-prf"
	FeatureKDF       = "argon2id"
)

// sha256("abc")
const sha256ABC = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

// Report is the structured result of a probe run.
type Report struct {
	WebCrypto             bool      `json:"webcrypto"`
	AESGCM                bool      `json:"aes_gcm"`
	Ed25519               bool      `json:"ed25519"`
	WebAuthn              bool      `json:"webauthn"`
	UserVerifyingPlatform bool      `json:"user_verifying_platform"`
	PRF                   bool      `json:"prf"`
	KDF                   bool      `json:"kdf"`
	AllSupported          bool      `json:"all_supported"`
	Missing               []string  `json:"missing,omitempty"`
	CheckedAt             time.Time `json:"checked_at"`

	// probeErr is set when a probe could not run, for example because the
	// caller's context was cancelled. Such a report is never cached.
	probeErr error
}

// MissingMessage is a human-readable summary for a feature-gate screen.
func (r Report) MissingMessage() string {
	if r.AllSupported {
		return ""
	}
	return "This device cannot run the wallet securely. Missing: " + strings.Join(r.Missing, ", ") + "."
}

// Detector runs the probes.
type Detector struct {
	auth devicebind.Authenticator
	kdf  func() bool
	now  func() time.Time
}

// NewDetector creates a Detector. auth may be nil, in which case the
// WebAuthn probes report unsupported.
func NewDetector(auth devicebind.Authenticator) *Detector {
	return &Detector{auth: auth, kdf: crypto.IsKdfSupported, now: time.Now}
}

// Detect runs every probe.
func (d *Detector) Detect(ctx context.Context) Report {
	done := log.Benchmark("capability.detect")
	defer done()

	r := Report{
		WebCrypto: probeWebCrypto(),
		AESGCM:    probeAESGCM(),
		Ed25519:   probeEd25519(),
		KDF:       d.kdf(),
		CheckedAt: d.now(),
	}
	if d.auth != nil {
		info, err := d.auth.Platform(ctx)
		if err != nil {
			r.probeErr = err
			log.Capability.Warn().Err(err).Msg("platform probe failed")
		} else {
			r.WebAuthn = info.WebAuthn
			r.UserVerifyingPlatform = info.UserVerifyingPlatform
			r.PRF = info.PRF
		}
	}

	for _, f := range []struct {
		ok   bool
		name string
	}{
		{r.WebCrypto, FeatureWebCrypto},
		{r.AESGCM, FeatureAESGCM},
		{r.Ed25519, FeatureEd25519},
		{r.WebAuthn, FeatureWebAuthn},
		{r.UserVerifyingPlatform, FeaturePlatform},
		{r.PRF, FeaturePRF},
		{r.KDF, FeatureKDF},
	} {
		if !f.ok {
			r.Missing = append(r.Missing, f.name)
		}
	}
	r.AllSupported = len(r.Missing) == 0
	if r.probeErr == nil {
		r.probeErr = ctx.Err()
	}

	log.Capability.Info().
		Bool("all_supported", r.AllSupported).
		Strs("missing", r.Missing).
		Msg("capabilities probed")
	return r
}

func probeWebCrypto() bool {
	b, err := crypto.RandomBytes(16)
	if err != nil {
		return false
	}
	if bytes.Equal(b, make([]byte, 16)) {
		return false
	}
	sum := sha256.Sum256([]byte("abc"))
	return hex.EncodeToString(sum[:]) == sha256ABC
}

func probeAESGCM() bool {
	raw, err := crypto.RandomBytes(types.EncryptionKeySize)
	if err != nil {
		return false
	}
	defer crypto.Wipe(raw)
	key, err := types.NewEncryptionKey(raw)
	if err != nil {
		return false
	}
	defer key.Wipe()

	msg := []byte("capability probe")
	enc, err := crypto.Encrypt(msg, key)
	if err != nil {
		return false
	}
	out, err := crypto.Decrypt(enc.Ciphertext, key, enc.Nonce)
	if err != nil || !bytes.Equal(out, msg) {
		return false
	}
	// A tampered tag must be rejected.
	enc.Ciphertext[len(enc.Ciphertext)-1] ^= 0x01
	_, err = crypto.Decrypt(enc.Ciphertext, key, enc.Nonce)
	return err != nil
}

func probeEd25519() bool {
	seed, err := types.NewSeed(make([]byte, types.SeedSize))
	if err != nil {
		return false
	}
	kp, err := crypto.DeriveKeypair(seed)
	if err != nil {
		return false
	}
	defer kp.Wipe()
	msg := []byte("capability probe")
	sig, err := kp.Sign(msg)
	if err != nil {
		return false
	}
	if !crypto.Verify(kp.PublicKey(), msg, sig) {
		return false
	}
	return !crypto.Verify(kp.PublicKey(), []byte("other message"), sig)
}
