package flow

import (
	"context"
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
	"github.com/google/uuid"
)

// ErrPhraseUnavailable is returned when the recovery phrase is requested
// outside the step that shows it.
var ErrPhraseUnavailable = errors.New("recovery phrase not available")

// EnrollRequest starts an enrollment. Password is owned by the caller.
type EnrollRequest struct {
	UserID   string
	Password []byte
}

// Result describes the wallet a flow produced.
type Result struct {
	UserID       string
	PublicKey    [crypto.PublicKeySize]byte
	Address      string
	CredentialID []byte
}

// Enroller creates wallets.
type Enroller struct {
	deps Deps
}

// NewEnroller creates an Enroller. Capabilities is required: enrollment
// is refused on platforms that cannot run every primitive.
func NewEnroller(d Deps) (*Enroller, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if d.Capabilities == nil {
		return nil, errors.New("flow: capability cache is required for enrollment")
	}
	return &Enroller{deps: d}, nil
}

// Enrollment is one enrollment run.
type Enrollment struct {
	ID string

	m      *machine[EnrollmentState]
	mu     sync.Mutex
	phrase []string
	result Result
}

// State returns the current step.
func (s *Enrollment) State() EnrollmentState { return s.m.State() }

// Result returns the enrolled wallet. It is set once uploading succeeded.
func (s *Enrollment) Result() Result { return s.result }

// RecoveryPhrase returns a copy of the Share C phrase. It is only
// available while the run is showing it.
func (s *Enrollment) RecoveryPhrase() ([]string, error) {
	if s.m.State() != EnrollShowingRecovery {
		return nil, ErrPhraseUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.phrase...), nil
}

// Acknowledge records that the user saved the phrase, wipes it and
// completes the run.
func (s *Enrollment) Acknowledge() error {
	if err := s.m.advance(EnrollComplete); err != nil {
		return err
	}
	s.mu.Lock()
	mnemonic.Wipe(s.phrase)
	s.phrase = nil
	s.mu.Unlock()
	return nil
}

// Enroll runs enrollment up to showing_recovery. On failure the run is in
// the error state and the returned error is a *StepError.
func (e *Enroller) Enroll(ctx context.Context, req EnrollRequest) (*Enrollment, error) {
	id := uuid.NewString()
	logger := log.Flow.With().Str("flow", "enroll").Str("run", id).Logger()
	run := &Enrollment{
		ID: id,
		m:  newMachine(EnrollIdle, EnrollComplete, EnrollError, logger),
	}

	err := e.run(ctx, run, req)
	e.deps.outcome("enroll", err)
	if err != nil {
		return run, run.m.fail("enrollment", err)
	}
	logger.Info().Str("address", run.result.Address).Msg("enrollment awaiting acknowledgement")
	return run, nil
}

func (e *Enroller) run(ctx context.Context, run *Enrollment, req EnrollRequest) error {
	if req.UserID == "" {
		return errors.New("user id is empty")
	}
	if len(req.Password) == 0 {
		return ErrEmptyPassword
	}
	if err := e.deps.gate(ctx); err != nil {
		return err
	}

	if err := run.m.advance(EnrollGeneratingSeed); err != nil {
		return err
	}
	seed, err := e.deps.NewSeed()
	if err != nil {
		return err
	}
	defer seed.Wipe()
	kp, err := crypto.DeriveKeypair(seed)
	if err != nil {
		return err
	}
	defer kp.Wipe()

	if err := run.m.advance(EnrollSplittingShares); err != nil {
		return err
	}
	shares, err := splitVerified(seed)
	if err != nil {
		return err
	}
	defer shares.Wipe()
	seed.Wipe()

	if err := run.m.advance(EnrollEncryptingShares); err != nil {
		return err
	}
	encA, salt, err := e.deps.encryptShareA(ctx, shares.A, req.Password)
	if err != nil {
		return err
	}

	if err := run.m.advance(EnrollRegisteringPasskey); err != nil {
		return err
	}
	devB, reg, err := e.deps.bindShareB(ctx, req.UserID, shares.B)
	if err != nil {
		return err
	}

	if err := run.m.advance(EnrollUploading); err != nil {
		return err
	}
	pk := kp.PublicKey()
	rec := &custody.Record{
		Version:         custody.RecordVersion,
		CreatedAt:       time.Now().UTC(),
		UserID:          req.UserID,
		EncryptedShareA: encA,
		Argon2Salt:      salt,
		KdfParams:       e.deps.KdfParams,
		ShareB:          shamir.EncodeHex(shares.B),
		DeviceShareB:    devB,
		CredentialID:    reg.CredentialID,
		PrfSalt:         reg.PrfSalt,
		PublicKey:       hex.EncodeToString(pk[:]),
		Address:         kp.Address(),
	}
	if err := e.deps.Custodian.Store(ctx, rec); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	run.result = Result{
		UserID:       req.UserID,
		PublicKey:    pk,
		Address:      rec.Address,
		CredentialID: reg.CredentialID,
	}

	if err := run.m.advance(EnrollShowingRecovery); err != nil {
		return err
	}
	phrase, err := mnemonic.ShareToMnemonic(shares.C)
	if err != nil {
		return err
	}
	run.mu.Lock()
	run.phrase = phrase
	run.mu.Unlock()
	return nil
}
