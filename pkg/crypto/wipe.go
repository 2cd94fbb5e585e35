package crypto

import (
	"context"
	"runtime"
)

const wipePattern = 0xA5

// Wipe overwrites each buffer with zeros, a non-zero pattern, then zeros.
// This is best effort: the Go runtime may already have copied the bytes
// (stack growth, GC moves, string conversions) and those copies are out of
// reach.
func Wipe(bufs ...[]byte) {
	for _, b := range bufs {
		for i := range b {
			b[i] = 0
		}
		for i := range b {
			b[i] = wipePattern
		}
		for i := range b {
			b[i] = 0
		}
		runtime.KeepAlive(b)
	}
}

// WithScopedCleanup runs fn and wipes bufs on every exit path, including a
// panic inside fn.
func WithScopedCleanup(bufs [][]byte, fn func() error) error {
	defer Wipe(bufs...)
	return fn()
}

// WithScopedCleanupContext is WithScopedCleanup for blocking operations that
// take a context. The buffers are wiped once fn returns, never while it is
// still running.
func WithScopedCleanupContext(ctx context.Context, bufs [][]byte, fn func(context.Context) error) error {
	defer Wipe(bufs...)
	return fn(ctx)
}
