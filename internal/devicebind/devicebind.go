// Package devicebind binds an encryption key to a platform authenticator
// through the WebAuthn PRF extension.
//
// The Binder never sees the authenticator's private key. It asks for a
// PRF evaluation over a per-credential salt and hands the 32-byte output to
// the caller, which feeds it through HKDF and wipes it.
package devicebind

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingnet-keyshare/internal/log"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

const challengeSize = 32

// PlatformInfo describes what the platform authenticator supports.
type PlatformInfo struct {
	WebAuthn              bool
	UserVerifyingPlatform bool
	PRF                   bool
}

// Supported reports whether every capability a binding needs is present.
func (p PlatformInfo) Supported() bool {
	return p.WebAuthn && p.UserVerifyingPlatform && p.PRF
}

// Credential is what a create or get ceremony returns.
type Credential struct {
	RawID                  []byte
	ClientExtensionResults protocol.AuthenticationExtensionsClientOutputs
}

// Authenticator runs WebAuthn ceremonies. A dismissed ceremony must return
// an error wrapping types.ErrUserCancelled.
type Authenticator interface {
	Platform(ctx context.Context) (PlatformInfo, error)
	Create(ctx context.Context, origin string, opts protocol.PublicKeyCredentialCreationOptions) (*Credential, error)
	Get(ctx context.Context, origin string, opts protocol.PublicKeyCredentialRequestOptions) (*Credential, error)
}

// Config holds relying party settings.
type Config struct {
	RPID    string
	RPName  string
	Origin  string
	Timeout time.Duration
	Policy  OriginPolicy
}

// Registration is the result of binding a new credential.
type Registration struct {
	CredentialID []byte
	PrfSalt      types.PrfSalt
	PrfOutput    types.PrfOutput
}

// Binder registers and authenticates device bindings.
type Binder struct {
	auth Authenticator
	cfg  Config
}

// NewBinder creates a Binder.
func NewBinder(auth Authenticator, cfg Config) *Binder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Binder{auth: auth, cfg: cfg}
}

// Register creates a credential for userID and evaluates its PRF over salt.
// A nil salt is generated.
func (b *Binder) Register(ctx context.Context, userID string, salt *types.PrfSalt) (*Registration, error) {
	if err := b.preflight(ctx); err != nil {
		return nil, err
	}

	var prfSalt types.PrfSalt
	if salt != nil && !salt.IsZero() {
		prfSalt = *salt
	} else {
		s, err := crypto.GeneratePrfSalt()
		if err != nil {
			return nil, err
		}
		prfSalt = s
	}

	challenge, err := crypto.RandomBytes(challengeSize)
	if err != nil {
		return nil, err
	}

	opts := protocol.PublicKeyCredentialCreationOptions{
		RelyingParty: protocol.RelyingPartyEntity{
			CredentialEntity: protocol.CredentialEntity{Name: b.cfg.RPName},
			ID:               b.cfg.RPID,
		},
		User: protocol.UserEntity{
			CredentialEntity: protocol.CredentialEntity{Name: userID},
			DisplayName:      userID,
			ID:               protocol.URLEncodedBase64(userID),
		},
		Challenge: protocol.URLEncodedBase64(challenge),
		Parameters: []protocol.CredentialParameter{
			{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgEdDSA},
			{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
		},
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			UserVerification:        protocol.VerificationRequired,
			ResidentKey:             protocol.ResidentKeyRequirementPreferred,
		},
		Timeout:     int(b.cfg.Timeout.Milliseconds()),
		Attestation: protocol.PreferNoAttestation,
		Extensions:  prfEvalExtension(prfSalt),
	}

	cred, err := b.auth.Create(ctx, b.cfg.Origin, opts)
	if err != nil {
		return nil, ceremonyError("create", err)
	}
	if len(cred.RawID) == 0 {
		return nil, fmt.Errorf("authenticator returned no credential id: %w", types.ErrPlatformUnsupported)
	}

	out, enabled, err := prfResult(cred.ClientExtensionResults)
	if err != nil {
		return nil, err
	}

	var prf types.PrfOutput
	switch {
	case out != nil:
		prf, err = types.NewPrfOutput(out)
		crypto.Wipe(out)
		if err != nil {
			return nil, err
		}
	case enabled:
		// Some authenticators only report support at create time.
		log.Device.Debug().Msg("prf enabled without results, evaluating with get")
		prf, err = b.Authenticate(ctx, cred.RawID, prfSalt)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("authenticator did not enable prf: %w", types.ErrPlatformUnsupported)
	}

	log.Device.Info().
		Str("credential", crypto.Fingerprint("keyshare/v1/credential", cred.RawID)).
		Msg("device binding registered")

	return &Registration{
		CredentialID: append([]byte(nil), cred.RawID...),
		PrfSalt:      prfSalt,
		PrfOutput:    prf,
	}, nil
}

// Authenticate evaluates the PRF of an existing credential over prfSalt.
func (b *Binder) Authenticate(ctx context.Context, credentialID []byte, prfSalt types.PrfSalt) (types.PrfOutput, error) {
	if err := b.preflight(ctx); err != nil {
		return types.PrfOutput{}, err
	}
	if len(credentialID) == 0 {
		return types.PrfOutput{}, fmt.Errorf("empty credential id: %w", types.ErrInvalidLength)
	}

	challenge, err := crypto.RandomBytes(challengeSize)
	if err != nil {
		return types.PrfOutput{}, err
	}

	opts := protocol.PublicKeyCredentialRequestOptions{
		Challenge:      protocol.URLEncodedBase64(challenge),
		Timeout:        int(b.cfg.Timeout.Milliseconds()),
		RelyingPartyID: b.cfg.RPID,
		AllowedCredentials: []protocol.CredentialDescriptor{{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: protocol.URLEncodedBase64(credentialID),
		}},
		UserVerification: protocol.VerificationRequired,
		Extensions:       prfEvalExtension(prfSalt),
	}

	cred, err := b.auth.Get(ctx, b.cfg.Origin, opts)
	if err != nil {
		return types.PrfOutput{}, ceremonyError("get", err)
	}

	out, _, err := prfResult(cred.ClientExtensionResults)
	if err != nil {
		return types.PrfOutput{}, err
	}
	if out == nil {
		return types.PrfOutput{}, fmt.Errorf("authenticator returned no prf result: %w", types.ErrPlatformUnsupported)
	}
	defer crypto.Wipe(out)
	return types.NewPrfOutput(out)
}

// preflight checks platform support and the origin before any ceremony.
func (b *Binder) preflight(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := b.auth.Platform(ctx)
	if err != nil {
		return fmt.Errorf("probe platform: %v: %w", err, types.ErrPlatformUnsupported)
	}
	if !info.Supported() {
		return fmt.Errorf("webauthn=%t uvpa=%t prf=%t: %w",
			info.WebAuthn, info.UserVerifyingPlatform, info.PRF, types.ErrPlatformUnsupported)
	}
	return b.cfg.Policy.Check(b.cfg.Origin)
}

func ceremonyError(op string, err error) error {
	if errors.Is(err, types.ErrUserCancelled) ||
		errors.Is(err, types.ErrPlatformUnsupported) ||
		errors.Is(err, types.ErrUntrustedOrigin) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s ceremony: %v: %w", op, err, types.ErrPlatformUnsupported)
}
