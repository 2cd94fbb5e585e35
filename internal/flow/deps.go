package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-keyshare/internal/capability"
	"github.com/Klingon-tech/klingnet-keyshare/internal/custody"
	"github.com/Klingon-tech/klingnet-keyshare/internal/devicebind"
	"github.com/Klingon-tech/klingnet-keyshare/internal/kdf"
	"github.com/Klingon-tech/klingnet-keyshare/internal/metrics"
	"github.com/Klingon-tech/klingnet-keyshare/internal/shamir"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
)

// ErrEmptyPassword is returned when a flow needs a password and got none.
var ErrEmptyPassword = errors.New("password is empty")

// Deps are the collaborators shared by every flow. The composition root
// builds them once.
type Deps struct {
	Custodian    custody.Custodian
	Binder       *devicebind.Binder
	KDF          kdf.KeyDeriver
	Capabilities *capability.Cache
	KdfParams    crypto.KdfParams
	Metrics      *metrics.Metrics

	// Sources of fresh randomness. Nil means the crypto package's
	// generators; tests pin them to reproduce vectors.
	NewSeed func() (types.Seed, error)
	NewSalt func() (types.Argon2Salt, error)
}

func (d *Deps) check() error {
	if d.Custodian == nil {
		return errors.New("flow: custodian is required")
	}
	if d.Binder == nil {
		return errors.New("flow: device binder is required")
	}
	if d.KDF == nil {
		d.KDF = kdf.Direct{}
	}
	if d.KdfParams == (crypto.KdfParams{}) {
		d.KdfParams = crypto.DefaultKdfParams()
	}
	if err := d.KdfParams.Validate(); err != nil {
		return err
	}
	if d.NewSeed == nil {
		d.NewSeed = crypto.GenerateSeed
	}
	if d.NewSalt == nil {
		d.NewSalt = crypto.GenerateArgon2Salt
	}
	d.Metrics = metrics.OrNew(d.Metrics)
	return nil
}

// encryptShareA seals Share A under Argon2id(password).
func (d *Deps) encryptShareA(ctx context.Context, a types.Share, password []byte) (crypto.Envelope, types.Argon2Salt, error) {
	if len(password) == 0 {
		return crypto.Envelope{}, types.Argon2Salt{}, ErrEmptyPassword
	}
	salt, err := d.NewSalt()
	if err != nil {
		return crypto.Envelope{}, types.Argon2Salt{}, err
	}
	key, err := d.KDF.Derive(ctx, password, salt, d.KdfParams)
	if err != nil {
		return crypto.Envelope{}, types.Argon2Salt{}, err
	}
	defer key.Wipe()

	wire := shamir.Encode(a)
	defer crypto.Wipe(wire)
	env, err := crypto.EncryptToEnvelope(wire, key)
	if err != nil {
		return crypto.Envelope{}, types.Argon2Salt{}, err
	}
	return env, salt, nil
}

// decryptShareA opens Share A with the password.
func (d *Deps) decryptShareA(ctx context.Context, rec *custody.Record, password []byte) (types.Share, error) {
	if len(password) == 0 {
		return types.Share{}, ErrEmptyPassword
	}
	key, err := d.KDF.Derive(ctx, password, rec.Argon2Salt, rec.KdfParams)
	if err != nil {
		return types.Share{}, err
	}
	defer key.Wipe()

	wire, err := crypto.DecryptEnvelope(rec.EncryptedShareA, key)
	if err != nil {
		if errors.Is(err, types.ErrAuthenticationFailed) {
			d.Metrics.AuthFailures.WithLabelValues("a").Inc()
		}
		return types.Share{}, err
	}
	defer crypto.Wipe(wire)
	s, err := shamir.Parse(wire)
	if err != nil {
		return types.Share{}, err
	}
	if s.Index() != shamir.IndexA {
		s.Wipe()
		return types.Share{}, fmt.Errorf("decrypted share has index %d: %w", s.Index(), types.ErrInvalidShare)
	}
	return s, nil
}

// bindShareB registers a passkey and seals Share B under HKDF(PRF output).
func (d *Deps) bindShareB(ctx context.Context, userID string, b types.Share) (crypto.Envelope, *devicebind.Registration, error) {
	reg, err := d.Binder.Register(ctx, userID, nil)
	if err != nil {
		return crypto.Envelope{}, nil, err
	}
	key, err := crypto.DeriveKeyFromPrf(reg.PrfOutput, reg.PrfSalt)
	reg.PrfOutput.Wipe()
	if err != nil {
		return crypto.Envelope{}, nil, err
	}
	defer key.Wipe()

	wire := shamir.Encode(b)
	defer crypto.Wipe(wire)
	env, err := crypto.EncryptToEnvelope(wire, key)
	if err != nil {
		return crypto.Envelope{}, nil, err
	}
	return env, reg, nil
}

// openDeviceShareB authenticates with the stored passkey and opens the
// device envelope of Share B.
func (d *Deps) openDeviceShareB(ctx context.Context, rec *custody.Record) (types.Share, error) {
	if !rec.HasDeviceBinding() {
		return types.Share{}, fmt.Errorf("no device binding stored: %w", types.ErrPlatformUnsupported)
	}
	prf, err := d.Binder.Authenticate(ctx, rec.CredentialID, rec.PrfSalt)
	if err != nil {
		return types.Share{}, err
	}
	key, err := crypto.DeriveKeyFromPrf(prf, rec.PrfSalt)
	prf.Wipe()
	if err != nil {
		return types.Share{}, err
	}
	defer key.Wipe()

	wire, err := crypto.DecryptEnvelope(rec.DeviceShareB, key)
	if err != nil {
		if errors.Is(err, types.ErrAuthenticationFailed) {
			d.Metrics.AuthFailures.WithLabelValues("b").Inc()
		}
		return types.Share{}, err
	}
	defer crypto.Wipe(wire)
	s, err := shamir.Parse(wire)
	if err != nil {
		return types.Share{}, err
	}
	if s.Index() != shamir.IndexB {
		s.Wipe()
		return types.Share{}, fmt.Errorf("device share has index %d: %w", s.Index(), types.ErrInvalidShare)
	}
	return s, nil
}

// splitVerified splits seed and checks that A+B and B+C both reconstruct it.
func splitVerified(seed types.Seed) (shamir.Shares, error) {
	shares, err := shamir.Split(seed)
	if err != nil {
		return shamir.Shares{}, err
	}
	for _, pair := range [][2]types.Share{{shares.A, shares.B}, {shares.B, shares.C}} {
		ok, err := shamir.VerifyShares(pair[0], pair[1], seed)
		if err != nil || !ok {
			shares.Wipe()
			if err == nil {
				err = types.ErrReconstructionFailed
			}
			return shamir.Shares{}, err
		}
	}
	return shares, nil
}

func (d *Deps) gate(ctx context.Context) error {
	r := d.Capabilities.Get(ctx, false)
	if !r.AllSupported {
		return fmt.Errorf("%s: %w", r.MissingMessage(), types.ErrPlatformUnsupported)
	}
	return nil
}

func (d *Deps) outcome(flow string, err error) {
	o := "ok"
	if err != nil {
		o = "error"
	}
	d.Metrics.FlowOutcomes.WithLabelValues(flow, o).Inc()
}
