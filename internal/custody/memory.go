package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-keyshare/internal/log"
)

// ErrNotFound is returned when the custodian has no record for a user.
var ErrNotFound = errors.New("custody record not found")

// Custodian stores and returns per-user records. Implementations own the
// transport and persistence.
type Custodian interface {
	Store(ctx context.Context, r *Record) error
	Fetch(ctx context.Context, userID string) (*Record, error)
}

// MemoryCustodian implements Custodian using an in-memory map of encoded
// records. Nothing is persisted.
type MemoryCustodian struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory custodian.
func NewMemory() *MemoryCustodian {
	return &MemoryCustodian{
		data: make(map[string][]byte),
	}
}

// Store validates and stores a record, replacing any previous one.
func (m *MemoryCustodian) Store(ctx context.Context, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("store record: %w", err)
	}
	b, err := r.Marshal()
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	m.mu.Lock()
	_, replaced := m.data[r.UserID]
	m.data[r.UserID] = b
	m.mu.Unlock()

	log.Custody.Debug().Str("user", r.UserID).Bool("replaced", replaced).Msg("record stored")
	return nil
}

// Fetch returns a decoded copy of the user's record.
func (m *MemoryCustodian) Fetch(ctx context.Context, userID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	b, ok := m.data[userID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	return UnmarshalRecord(b)
}

// Has checks if a record exists.
func (m *MemoryCustodian) Has(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[userID]
	return ok
}

// Delete removes a user's record.
func (m *MemoryCustodian) Delete(userID string) {
	m.mu.Lock()
	delete(m.data, userID)
	m.mu.Unlock()
}

// Raw returns the stored JSON for a user, for inspection.
func (m *MemoryCustodian) Raw(userID string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[userID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}
