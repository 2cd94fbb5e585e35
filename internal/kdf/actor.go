package kdf

import (
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-keyshare/internal/log"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
)

type job struct {
	id       uint64
	password []byte
	salt     types.Argon2Salt
	params   crypto.KdfParams
}

type result struct {
	key types.EncryptionKey
	err error
}

// actor owns the job channel, the worker goroutines and the pending table.
type actor struct {
	owner *Offloader
	jobs  chan job
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	pending map[uint64]chan result
	stopped bool
}

func startActor(o *Offloader) *actor {
	a := &actor{
		owner:   o,
		jobs:    make(chan job, o.opts.MaxPending),
		done:    make(chan struct{}),
		pending: make(map[uint64]chan result, o.opts.MaxPending),
	}
	for i := 0; i < o.opts.Workers; i++ {
		go a.work()
	}
	return a
}

func (a *actor) register(id uint64) (chan result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return nil, types.ErrKeyDerivationFailed
	}
	if len(a.pending) >= a.owner.opts.MaxPending {
		return nil, ErrOffloadBusy
	}
	ch := make(chan result, 1)
	a.pending[id] = ch
	a.owner.m.KDFPending.Inc()
	return ch, nil
}

// abandon drops a request whose caller stopped waiting.
func (a *actor) abandon(id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pending[id]; ok {
		delete(a.pending, id)
		a.owner.m.KDFPending.Dec()
	}
}

func (a *actor) complete(id uint64, r result) {
	a.mu.Lock()
	ch, ok := a.pending[id]
	if ok {
		delete(a.pending, id)
		a.owner.m.KDFPending.Dec()
	}
	a.mu.Unlock()
	if !ok {
		// Caller abandoned the request.
		r.key.Wipe()
		return
	}
	ch <- r
}

func (a *actor) work() {
	for {
		select {
		case <-a.done:
			return
		case j := <-a.jobs:
			if !a.run(j) {
				return
			}
		}
	}
}

// run executes one job. It returns false when the worker faulted and the
// actor has been torn down.
func (a *actor) run(j job) bool {
	defer crypto.Wipe(j.password)

	start := time.Now()
	key, err, faulted := a.safeDerive(j)
	a.owner.m.KDFDuration.Observe(time.Since(start).Seconds())

	if faulted {
		log.KDF.Error().Uint64("request", j.id).Msg("kdf worker faulted, rejecting pending requests")
		a.owner.m.KDFFailures.WithLabelValues("worker_fault").Inc()
		a.owner.dropActor(a)
		a.shutdown()
		return false
	}
	if err != nil {
		a.owner.m.KDFFailures.WithLabelValues("derive").Inc()
	}
	a.complete(j.id, result{key: key, err: err})
	return true
}

func (a *actor) safeDerive(j job) (key types.EncryptionKey, err error, faulted bool) {
	defer func() {
		if r := recover(); r != nil {
			key, err, faulted = types.EncryptionKey{}, types.ErrKeyDerivationFailed, true
		}
	}()
	key, err = a.owner.derive(j.password, j.salt, j.params)
	return key, err, false
}

// shutdown stops the workers and rejects every pending request uniformly.
func (a *actor) shutdown() {
	a.once.Do(func() {
		a.mu.Lock()
		a.stopped = true
		close(a.done)
		for id, ch := range a.pending {
			delete(a.pending, id)
			a.owner.m.KDFPending.Dec()
			ch <- result{err: types.ErrKeyDerivationFailed}
		}
		a.mu.Unlock()
		a.drain()
	})
}

// drain wipes jobs left in the channel by senders that raced shutdown.
func (a *actor) drain() {
	for {
		select {
		case j := <-a.jobs:
			crypto.Wipe(j.password)
		default:
			return
		}
	}
}

// reclaim drains the job channel once the actor has stopped.
func (a *actor) reclaim() {
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped {
		a.drain()
	}
}
