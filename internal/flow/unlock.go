package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-keyshare/internal/log"
	"github.com/Klingon-tech/klingnet-keyshare/internal/shamir"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrTooManyAttempts is returned while a user's failed unlocks are
// throttled.
var ErrTooManyAttempts = errors.New("too many failed unlock attempts")

// DefaultAttemptsPerMinute bounds failed password attempts per user.
const DefaultAttemptsPerMinute = 5

// UnlockRequest reconstructs the keypair from Share A and Share B.
// UsePasskey takes Share B from the device envelope instead of the
// custodian's plaintext copy.
type UnlockRequest struct {
	UserID     string
	Password   []byte
	UsePasskey bool
}

// Unlocker rebuilds keypairs for enrolled users.
type Unlocker struct {
	deps     Deps
	attempts int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewUnlocker creates an Unlocker allowing attemptsPerMinute failed
// attempts per user. Zero means DefaultAttemptsPerMinute.
func NewUnlocker(d Deps, attemptsPerMinute int) (*Unlocker, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if attemptsPerMinute <= 0 {
		attemptsPerMinute = DefaultAttemptsPerMinute
	}
	return &Unlocker{
		deps:     d,
		attempts: attemptsPerMinute,
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

func (u *Unlocker) limiter(userID string) *rate.Limiter {
	u.mu.Lock()
	defer u.mu.Unlock()
	l, ok := u.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(u.attempts)), u.attempts)
		u.limiters[userID] = l
	}
	return l
}

// Unlock returns the user's keypair. The caller must Wipe it.
func (u *Unlocker) Unlock(ctx context.Context, req UnlockRequest) (*crypto.Keypair, error) {
	id := uuid.NewString()
	logger := log.Flow.With().Str("flow", "unlock").Str("run", id).Logger()

	lim := u.limiter(req.UserID)
	if lim.Tokens() < 1 {
		u.deps.outcome("unlock", ErrTooManyAttempts)
		return nil, ErrTooManyAttempts
	}

	kp, err := u.unlock(ctx, req)
	u.deps.outcome("unlock", err)
	if err != nil {
		if errors.Is(err, types.ErrAuthenticationFailed) {
			lim.Allow()
		}
		logger.Warn().Err(err).Bool("passkey", req.UsePasskey).Msg("unlock failed")
		return nil, err
	}
	logger.Info().Bool("passkey", req.UsePasskey).Msg("unlocked")
	return kp, nil
}

func (u *Unlocker) unlock(ctx context.Context, req UnlockRequest) (*crypto.Keypair, error) {
	rec, err := u.deps.Custodian.Fetch(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("fetch record: %w", err)
	}

	shareA, err := u.deps.decryptShareA(ctx, rec, req.Password)
	if err != nil {
		return nil, err
	}
	defer shareA.Wipe()

	var shareB types.Share
	if req.UsePasskey {
		shareB, err = u.deps.openDeviceShareB(ctx, rec)
	} else {
		shareB, err = rec.ShareBShare()
	}
	if err != nil {
		return nil, err
	}
	defer shareB.Wipe()

	seed, err := shamir.Combine(shareA, shareB)
	if err != nil {
		return nil, err
	}
	defer seed.Wipe()

	kp, err := crypto.DeriveKeypair(seed)
	if err != nil {
		return nil, err
	}
	if err := matchPublicKey(rec, kp.PublicKey()); err != nil {
		kp.Wipe()
		return nil, err
	}
	return kp, nil
}
