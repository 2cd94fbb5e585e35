// Package kdf runs Argon2id derivations off the caller's goroutine.
//
// An Offloader owns at most one worker actor at a time. The actor holds a
// bounded table of pending requests keyed by a monotonically increasing id.
// If a worker faults, every pending request is rejected with the same error,
// the actor is dropped, and the next Derive creates a fresh one.
package kdf

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Klingon-tech/klingnet-keyshare/internal/log"
	"github.com/Klingon-tech/klingnet-keyshare/internal/metrics"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
	"golang.org/x/time/rate"
)

// ErrOffloadBusy is returned when the pending table is full.
var ErrOffloadBusy = errors.New("kdf offload queue full")

// DeriveFunc is the derivation run by workers and by the direct path.
type DeriveFunc func(password []byte, salt types.Argon2Salt, params crypto.KdfParams) (types.EncryptionKey, error)

// KeyDeriver is implemented by Offloader and by Direct.
type KeyDeriver interface {
	Derive(ctx context.Context, password []byte, salt types.Argon2Salt, params crypto.KdfParams) (types.EncryptionKey, error)
}

// Options configures an Offloader.
type Options struct {
	// Offload runs derivations on worker goroutines. When false every call
	// runs directly on the caller's goroutine.
	Offload bool
	// Workers is the number of worker goroutines per actor.
	Workers int
	// MaxPending bounds the request table.
	MaxPending int
	// RatePerSecond limits admissions; zero disables the limiter.
	RatePerSecond float64
	// Burst is the limiter burst size.
	Burst int

	Metrics *metrics.Metrics
}

// DefaultOptions returns offloading with one worker.
func DefaultOptions() Options {
	return Options{
		Offload:    true,
		Workers:    1,
		MaxPending: 16,
		Burst:      1,
	}
}

// Direct runs crypto.DeriveKey on the caller's goroutine.
type Direct struct{}

// Derive implements KeyDeriver.
func (Direct) Derive(ctx context.Context, password []byte, salt types.Argon2Salt, params crypto.KdfParams) (types.EncryptionKey, error) {
	if err := ctx.Err(); err != nil {
		return types.EncryptionKey{}, err
	}
	return crypto.DeriveKey(password, salt, params)
}

// Offloader is the handle callers hold. It is safe for concurrent use.
type Offloader struct {
	opts    Options
	derive  DeriveFunc
	limiter *rate.Limiter
	m       *metrics.Metrics

	nextID atomic.Uint64

	mu     sync.Mutex
	actor  *actor
	closed bool
}

// New creates an Offloader running crypto.DeriveKey.
func New(opts Options) *Offloader {
	return newOffloader(opts, crypto.DeriveKey)
}

func newOffloader(opts Options, derive DeriveFunc) *Offloader {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = 16
	}
	o := &Offloader{
		opts:   opts,
		derive: derive,
		m:      metrics.OrNew(opts.Metrics),
	}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return o
}

// Derive derives a key with the same semantics as crypto.DeriveKey.
//
// Cancelling ctx abandons the wait only; a derivation already running is
// not interrupted and its result is wiped when it arrives.
func (o *Offloader) Derive(ctx context.Context, password []byte, salt types.Argon2Salt, params crypto.KdfParams) (types.EncryptionKey, error) {
	if err := params.Validate(); err != nil {
		o.m.KDFFailures.WithLabelValues("invalid_params").Inc()
		return types.EncryptionKey{}, err
	}
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return types.EncryptionKey{}, err
		}
	}

	a := o.currentActor()
	if a == nil {
		return o.deriveDirect(ctx, password, salt, params)
	}

	id := o.nextID.Add(1)
	ch, err := a.register(id)
	if err != nil {
		if errors.Is(err, ErrOffloadBusy) {
			o.m.KDFFailures.WithLabelValues("busy").Inc()
		}
		return types.EncryptionKey{}, err
	}

	j := job{
		id:       id,
		password: append([]byte(nil), password...),
		salt:     salt,
		params:   params,
	}
	select {
	case a.jobs <- j:
	case <-a.done:
		crypto.Wipe(j.password)
		a.abandon(id)
		return types.EncryptionKey{}, types.ErrKeyDerivationFailed
	case <-ctx.Done():
		crypto.Wipe(j.password)
		a.abandon(id)
		return types.EncryptionKey{}, ctx.Err()
	}

	select {
	case r := <-ch:
		if r.err != nil {
			a.reclaim()
		}
		return r.key, r.err
	case <-ctx.Done():
		a.abandon(id)
		return types.EncryptionKey{}, ctx.Err()
	}
}

// Close tears the current actor down. Pending requests fail with
// ErrKeyDerivationFailed; later calls run directly.
func (o *Offloader) Close() {
	o.mu.Lock()
	a := o.actor
	o.actor = nil
	o.closed = true
	o.mu.Unlock()
	if a != nil {
		a.shutdown()
	}
}

func (o *Offloader) deriveDirect(ctx context.Context, password []byte, salt types.Argon2Salt, params crypto.KdfParams) (types.EncryptionKey, error) {
	if err := ctx.Err(); err != nil {
		return types.EncryptionKey{}, err
	}
	start := time.Now()
	key, err := o.derive(password, salt, params)
	o.m.KDFDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		o.m.KDFFailures.WithLabelValues("derive").Inc()
	}
	return key, err
}

// currentActor returns the live actor, creating one lazily. It returns nil
// when offloading is disabled or the Offloader is closed.
func (o *Offloader) currentActor() *actor {
	if !o.opts.Offload {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	if o.actor == nil {
		o.actor = startActor(o)
		log.KDF.Debug().Int("workers", o.opts.Workers).Msg("kdf worker started")
	}
	return o.actor
}

// dropActor forgets a failed actor so the next call recreates it.
func (o *Offloader) dropActor(a *actor) {
	o.mu.Lock()
	if o.actor == a {
		o.actor = nil
	}
	o.mu.Unlock()
	o.m.KDFWorkerRestarts.Inc()
}

// pendingCount reports the live actor's table size.
func (o *Offloader) pendingCount() int {
	o.mu.Lock()
	a := o.actor
	o.mu.Unlock()
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
