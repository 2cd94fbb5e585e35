// Package flow sequences the primitives into the enrollment, recovery and
// unlock flows. Each flow run owns a strictly-forward state machine: every
// transition moves to the next step or into the flow's error state.
package flow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrInvalidTransition is returned when a step is attempted out of order.
var ErrInvalidTransition = errors.New("invalid state transition")

// EnrollmentState is a step of the enrollment flow.
type EnrollmentState int

// Enrollment steps in order.
const (
	EnrollIdle EnrollmentState = iota
	EnrollGeneratingSeed
	EnrollSplittingShares
	EnrollEncryptingShares
	EnrollRegisteringPasskey
	EnrollUploading
	EnrollShowingRecovery
	EnrollComplete
	EnrollError
)

var enrollmentNames = [...]string{
	"idle",
	"generating_seed",
	"splitting_shares",
	"encrypting_shares",
	"registering_passkey",
	"uploading",
	"showing_recovery",
	"complete",
	"error",
}

func (s EnrollmentState) String() string {
	if s < 0 || int(s) >= len(enrollmentNames) {
		return fmt.Sprintf("EnrollmentState(%d)", int(s))
	}
	return enrollmentNames[s]
}

// RecoveryState is a step of the recovery flow.
type RecoveryState int

// Recovery steps in order.
const (
	RecoverIdle RecoveryState = iota
	RecoverEnteringPhrase
	RecoverValidating
	RecoverPromptingPassword
	RecoverRegisteringPasskey
	RecoverEncrypting
	RecoverUploading
	RecoverComplete
	RecoverError
)

var recoveryNames = [...]string{
	"idle",
	"entering_phrase",
	"validating",
	"prompting_password",
	"registering_passkey",
	"encrypting",
	"uploading",
	"complete",
	"error",
}

func (s RecoveryState) String() string {
	if s < 0 || int(s) >= len(recoveryNames) {
		return fmt.Sprintf("RecoveryState(%d)", int(s))
	}
	return recoveryNames[s]
}

type flowState interface {
	~int
	String() string
}

// machine is a strictly-forward state machine over S. States are ordered
// integers from an idle state to done; errState is terminal.
type machine[S flowState] struct {
	mu       sync.Mutex
	cur      S
	done     S
	errState S
	failedAt S
	logger   zerolog.Logger
}

func newMachine[S flowState](idle, done, errState S, logger zerolog.Logger) *machine[S] {
	return &machine[S]{cur: idle, done: done, errState: errState, logger: logger}
}

func (m *machine[S]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// advance moves to the step directly after the current one. to must name
// that step.
func (m *machine[S]) advance(to S) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == m.errState || m.cur == m.done || to != m.cur+1 || to == m.errState {
		return fmt.Errorf("%s -> %s: %w", m.cur, to, ErrInvalidTransition)
	}
	m.logger.Debug().Str("from", m.cur.String()).Str("to", to.String()).Msg("state transition")
	m.cur = to
	return nil
}

// fail moves to the error state and wraps err with the failing step.
func (m *machine[S]) fail(flow string, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	step := m.cur
	if m.cur != m.errState {
		m.failedAt = m.cur
		m.cur = m.errState
	} else {
		step = m.failedAt
	}
	m.logger.Warn().Str("step", step.String()).Err(err).Msg("flow failed")
	return &StepError{Flow: flow, Step: step.String(), Err: err}
}

// StepError records the step at which a flow failed.
type StepError struct {
	Flow string
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed at %s: %v", e.Flow, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
