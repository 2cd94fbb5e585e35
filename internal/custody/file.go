package custody

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Klingon-tech/klingnet-keyshare/internal/log"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
)

const recordExt = ".record"

var _ Custodian = (*FileCustodian)(nil)

// FileCustodian implements Custodian with one JSON file per user in a
// directory. File names are the BLAKE3 hash of the user ID.
type FileCustodian struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a custodian that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewFile(path string) (*FileCustodian, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create custody dir: %w", err)
	}
	return &FileCustodian{path: path}, nil
}

func (f *FileCustodian) recordPath(userID string) string {
	sum := crypto.Hash([]byte(userID))
	return filepath.Join(f.path, hex.EncodeToString(sum[:])+recordExt)
}

// Store validates and writes a record, replacing any previous one.
func (f *FileCustodian) Store(ctx context.Context, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("store record: %w", err)
	}
	data, err := r.Marshal()
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	path := f.recordPath(r.UserID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write record: %w", err)
	}
	log.Custody.Debug().Str("user", r.UserID).Str("file", filepath.Base(path)).Msg("record stored")
	return nil
}

// Fetch reads and decodes the user's record.
func (f *FileCustodian) Fetch(ctx context.Context, userID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.recordPath(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("user %q: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("read record: %w", err)
	}
	r, err := UnmarshalRecord(data)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, fmt.Errorf("record file holds user %q, want %q", r.UserID, userID)
	}
	return r, nil
}

// List returns the user IDs of all stored records.
func (f *FileCustodian) List() ([]string, error) {
	entries, err := os.ReadDir(f.path)
	if err != nil {
		return nil, fmt.Errorf("read custody dir: %w", err)
	}

	var users []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.path, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		r, err := UnmarshalRecord(data)
		if err != nil {
			log.Custody.Warn().Str("file", e.Name()).Err(err).Msg("skipping unreadable record")
			continue
		}
		users = append(users, r.UserID)
	}
	return users, nil
}

// Delete removes a user's record file.
func (f *FileCustodian) Delete(userID string) error {
	path := f.recordPath(userID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	return os.Remove(path)
}

// Close implements the persistent custodian lifecycle. Files need no
// cleanup.
func (f *FileCustodian) Close() error { return nil }
