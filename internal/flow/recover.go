package flow

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-keyshare/internal/custody"
	"github.com/Klingon-tech/klingnet-keyshare/internal/log"
	"github.com/Klingon-tech/klingnet-keyshare/internal/mnemonic"
	"github.com/Klingon-tech/klingnet-keyshare/internal/shamir"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
	"github.com/google/uuid"
)

// RecoverRequest starts a recovery from the Share C phrase. NewPassword
// protects the regenerated Share A and is owned by the caller.
type RecoverRequest struct {
	UserID      string
	Phrase      []string
	NewPassword []byte
}

// Recoverer restores wallets from Share C and the custodian's Share B.
type Recoverer struct {
	deps Deps
}

// NewRecoverer creates a Recoverer. Capabilities is required because
// recovery registers a new passkey.
func NewRecoverer(d Deps) (*Recoverer, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if d.Capabilities == nil {
		return nil, errors.New("flow: capability cache is required for recovery")
	}
	return &Recoverer{deps: d}, nil
}

// Recovery is one recovery run.
type Recovery struct {
	ID string

	m            *machine[RecoveryState]
	mu           sync.Mutex
	phrase       []string
	acknowledged bool
	result       Result
}

// State returns the current step.
func (s *Recovery) State() RecoveryState { return s.m.State() }

// Result returns the recovered wallet.
func (s *Recovery) Result() Result { return s.result }

// NewRecoveryPhrase returns a copy of the regenerated Share C phrase. It
// is only available at complete and until acknowledged.
func (s *Recovery) NewRecoveryPhrase() ([]string, error) {
	if s.m.State() != RecoverComplete {
		return nil, ErrPhraseUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acknowledged {
		return nil, ErrPhraseUnavailable
	}
	return append([]string(nil), s.phrase...), nil
}

// Acknowledge wipes the new phrase once the user saved it.
func (s *Recovery) Acknowledge() error {
	if s.m.State() != RecoverComplete {
		return fmt.Errorf("acknowledge in %s: %w", s.m.State(), ErrInvalidTransition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acknowledged {
		return fmt.Errorf("already acknowledged: %w", ErrInvalidTransition)
	}
	mnemonic.Wipe(s.phrase)
	s.phrase = nil
	s.acknowledged = true
	return nil
}

// Recover runs recovery to complete. On failure the run is in the error
// state and the returned error is a *StepError.
func (r *Recoverer) Recover(ctx context.Context, req RecoverRequest) (*Recovery, error) {
	id := uuid.NewString()
	logger := log.Flow.With().Str("flow", "recover").Str("run", id).Logger()
	run := &Recovery{
		ID: id,
		m:  newMachine(RecoverIdle, RecoverComplete, RecoverError, logger),
	}

	err := r.run(ctx, run, req)
	r.deps.outcome("recover", err)
	if err != nil {
		return run, run.m.fail("recovery", err)
	}
	logger.Info().Str("address", run.result.Address).Msg("recovery complete")
	return run, nil
}

func (r *Recoverer) run(ctx context.Context, run *Recovery, req RecoverRequest) error {
	if req.UserID == "" {
		return errors.New("user id is empty")
	}
	if err := r.deps.gate(ctx); err != nil {
		return err
	}

	if err := run.m.advance(RecoverEnteringPhrase); err != nil {
		return err
	}
	shareC, err := mnemonic.MnemonicToShare(req.Phrase, shamir.IndexC)
	if err != nil {
		return err
	}
	defer shareC.Wipe()

	if err := run.m.advance(RecoverValidating); err != nil {
		return err
	}
	rec, err := r.deps.Custodian.Fetch(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("fetch record: %w", err)
	}
	shareB, err := rec.ShareBShare()
	if err != nil {
		return err
	}
	defer shareB.Wipe()

	seed, err := shamir.Combine(shareC, shareB)
	if err != nil {
		return err
	}
	defer seed.Wipe()
	kp, err := crypto.DeriveKeypair(seed)
	if err != nil {
		return err
	}
	defer kp.Wipe()
	if err := matchPublicKey(rec, kp.PublicKey()); err != nil {
		return err
	}

	if err := run.m.advance(RecoverPromptingPassword); err != nil {
		return err
	}
	if len(req.NewPassword) == 0 {
		return ErrEmptyPassword
	}

	if err := run.m.advance(RecoverRegisteringPasskey); err != nil {
		return err
	}
	// Fresh split first so the new Share B is what the passkey seals.
	shares, err := splitVerified(seed)
	if err != nil {
		return err
	}
	defer shares.Wipe()
	seed.Wipe()
	devB, reg, err := r.deps.bindShareB(ctx, req.UserID, shares.B)
	if err != nil {
		return err
	}

	if err := run.m.advance(RecoverEncrypting); err != nil {
		return err
	}
	encA, salt, err := r.deps.encryptShareA(ctx, shares.A, req.NewPassword)
	if err != nil {
		return err
	}
	phrase, err := mnemonic.ShareToMnemonic(shares.C)
	if err != nil {
		return err
	}

	if err := run.m.advance(RecoverUploading); err != nil {
		mnemonic.Wipe(phrase)
		return err
	}
	pk := kp.PublicKey()
	next := &custody.Record{
		Version:         custody.RecordVersion,
		CreatedAt:       time.Now().UTC(),
		UserID:          req.UserID,
		EncryptedShareA: encA,
		Argon2Salt:      salt,
		KdfParams:       r.deps.KdfParams,
		ShareB:          shamir.EncodeHex(shares.B),
		DeviceShareB:    devB,
		CredentialID:    reg.CredentialID,
		PrfSalt:         reg.PrfSalt,
		PublicKey:       hex.EncodeToString(pk[:]),
		Address:         kp.Address(),
	}
	if err := r.deps.Custodian.Store(ctx, next); err != nil {
		mnemonic.Wipe(phrase)
		return fmt.Errorf("upload: %w", err)
	}
	run.result = Result{
		UserID:       req.UserID,
		PublicKey:    pk,
		Address:      next.Address,
		CredentialID: reg.CredentialID,
	}

	if err := run.m.advance(RecoverComplete); err != nil {
		mnemonic.Wipe(phrase)
		return err
	}
	run.mu.Lock()
	run.phrase = phrase
	run.mu.Unlock()
	return nil
}

// matchPublicKey checks a reconstructed key against the enrolled one.
func matchPublicKey(rec *custody.Record, pk [crypto.PublicKeySize]byte) error {
	want, err := rec.PublicKeyBytes()
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(want[:], pk[:]) != 1 {
		return fmt.Errorf("reconstructed key does not match enrollment: %w", types.ErrReconstructionFailed)
	}
	return nil
}
