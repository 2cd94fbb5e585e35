package devicebind

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
	"github.com/go-webauthn/webauthn/protocol"
)

const (
	softwareCredentialIDSize = 16
	softwareSecretSize       = 32
)

// prfContext prefixes the salt before hashing, per the WebAuthn PRF to
// hmac-secret mapping.
var prfContext = []byte("WebAuthn PRF\x00")

// SoftwareAuthenticator is an in-process authenticator. Each credential
// holds a random secret and evaluates the PRF as
// HMAC-SHA256(secret, SHA-256("WebAuthn PRF" || 0x00 || salt)).
type SoftwareAuthenticator struct {
	mu       sync.Mutex
	info     PlatformInfo
	creds    map[string][]byte
	cancel   bool
	deferPrf bool
	prfLen   int
}

// SoftwareOption configures a SoftwareAuthenticator.
type SoftwareOption func(*SoftwareAuthenticator)

// WithoutPRF reports a platform without the PRF extension.
func WithoutPRF() SoftwareOption {
	return func(a *SoftwareAuthenticator) { a.info.PRF = false }
}

// WithPlatform overrides the reported platform capabilities.
func WithPlatform(info PlatformInfo) SoftwareOption {
	return func(a *SoftwareAuthenticator) { a.info = info }
}

// WithCancellation makes every ceremony behave as dismissed by the user.
func WithCancellation() SoftwareOption {
	return func(a *SoftwareAuthenticator) { a.cancel = true }
}

// WithDeferredPRF makes create report PRF enabled without evaluating it.
func WithDeferredPRF() SoftwareOption {
	return func(a *SoftwareAuthenticator) { a.deferPrf = true }
}

// WithPrfOutputLength truncates or extends PRF outputs to n bytes.
func WithPrfOutputLength(n int) SoftwareOption {
	if n < 0 {
		n = 0
	}
	return func(a *SoftwareAuthenticator) { a.prfLen = n }
}

// NewSoftwareAuthenticator creates an authenticator reporting full support.
func NewSoftwareAuthenticator(opts ...SoftwareOption) *SoftwareAuthenticator {
	a := &SoftwareAuthenticator{
		info:   PlatformInfo{WebAuthn: true, UserVerifyingPlatform: true, PRF: true},
		creds:  make(map[string][]byte),
		prfLen: types.PrfOutputSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Platform implements Authenticator.
func (a *SoftwareAuthenticator) Platform(ctx context.Context) (PlatformInfo, error) {
	if err := ctx.Err(); err != nil {
		return PlatformInfo{}, err
	}
	return a.info, nil
}

// Create implements Authenticator.
func (a *SoftwareAuthenticator) Create(ctx context.Context, origin string, opts protocol.PublicKeyCredentialCreationOptions) (*Credential, error) {
	if err := a.begin(ctx); err != nil {
		return nil, err
	}
	id, err := crypto.RandomBytes(softwareCredentialIDSize)
	if err != nil {
		return nil, err
	}
	secret, err := crypto.RandomBytes(softwareSecretSize)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.creds[hex.EncodeToString(id)] = secret
	a.mu.Unlock()

	cred := &Credential{RawID: id, ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{}}
	if !a.info.PRF {
		return cred, nil
	}
	salt, ok := prfEvalSalt(opts.Extensions)
	if !ok || a.deferPrf {
		cred.ClientExtensionResults[prfExtension] = map[string]any{"enabled": true}
		return cred, nil
	}
	cred.ClientExtensionResults[prfExtension] = map[string]any{
		"enabled": true,
		"results": map[string]any{"first": a.evaluate(secret, salt)},
	}
	return cred, nil
}

// Get implements Authenticator.
func (a *SoftwareAuthenticator) Get(ctx context.Context, origin string, opts protocol.PublicKeyCredentialRequestOptions) (*Credential, error) {
	if err := a.begin(ctx); err != nil {
		return nil, err
	}

	var id []byte
	var secret []byte
	a.mu.Lock()
	for _, d := range opts.AllowedCredentials {
		if s, ok := a.creds[hex.EncodeToString(d.CredentialID)]; ok {
			id, secret = []byte(d.CredentialID), s
			break
		}
	}
	a.mu.Unlock()
	if secret == nil {
		// Browsers surface an unknown credential as NotAllowedError.
		return nil, fmt.Errorf("no matching credential: %w", types.ErrUserCancelled)
	}

	cred := &Credential{RawID: append([]byte(nil), id...), ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{}}
	if !a.info.PRF {
		return cred, nil
	}
	salt, ok := prfEvalSalt(opts.Extensions)
	if !ok {
		return cred, nil
	}
	cred.ClientExtensionResults[prfExtension] = map[string]any{
		"results": map[string]any{"first": a.evaluate(secret, salt)},
	}
	return cred, nil
}

// Forget drops a credential, as if the passkey was deleted from the device.
func (a *SoftwareAuthenticator) Forget(credentialID []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := hex.EncodeToString(credentialID)
	if s, ok := a.creds[key]; ok {
		crypto.Wipe(s)
		delete(a.creds, key)
	}
}

func (a *SoftwareAuthenticator) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.cancel {
		return fmt.Errorf("ceremony dismissed: %w", types.ErrUserCancelled)
	}
	if !a.info.WebAuthn {
		return types.ErrPlatformUnsupported
	}
	return nil
}

func (a *SoftwareAuthenticator) evaluate(secret, salt []byte) []byte {
	h := sha256.New()
	h.Write(prfContext)
	h.Write(salt)
	mac := hmac.New(sha256.New, secret)
	mac.Write(h.Sum(nil))
	out := mac.Sum(nil)

	if a.prfLen == len(out) {
		return out
	}
	resized := make([]byte, a.prfLen)
	copy(resized, out)
	crypto.Wipe(out)
	return resized
}
