package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-keyshare/internal/log"
	"github.com/Klingon-tech/klingnet-keyshare/internal/storage"
)

var recordPrefix = []byte("custody/v1/")

var _ Custodian = (*DBCustodian)(nil)

// DBCustodian implements Custodian over a key-value store, keyed by user
// ID under its own namespace.
type DBCustodian struct {
	db    storage.DB
	store *storage.PrefixDB
}

// NewDB wraps db. The custodian owns db and closes it in Close.
func NewDB(db storage.DB) *DBCustodian {
	return &DBCustodian{db: db, store: storage.NewPrefixDB(db, recordPrefix)}
}

// OpenBadger opens a Badger-backed custodian at path.
func OpenBadger(path string) (*DBCustodian, error) {
	db, err := storage.NewBadger(path)
	if err != nil {
		return nil, err
	}
	return NewDB(db), nil
}

// Store validates and writes a record, replacing any previous one.
func (c *DBCustodian) Store(ctx context.Context, r *Record) error {
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
	if err := c.store.Put([]byte(r.UserID), data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	log.Custody.Debug().Str("user", r.UserID).Msg("record stored")
	return nil
}

// Fetch reads and decodes the user's record.
func (c *DBCustodian) Fetch(ctx context.Context, userID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := c.store.Get([]byte(userID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	r, err := UnmarshalRecord(data)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, fmt.Errorf("record key %q holds user %q", userID, r.UserID)
	}
	return r, nil
}

// List returns the user IDs of all stored records in key order.
func (c *DBCustodian) List() ([]string, error) {
	var users []string
	err := c.store.ForEach(nil, func(key, _ []byte) error {
		users = append(users, string(key))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return users, nil
}

// Delete removes a user's record.
func (c *DBCustodian) Delete(userID string) error {
	ok, err := c.store.Has([]byte(userID))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	return c.store.Delete([]byte(userID))
}

// Close closes the underlying store.
func (c *DBCustodian) Close() error {
	return c.db.Close()
}
