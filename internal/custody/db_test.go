package custody

import (
	"context"
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-keyshare/internal/storage"
)

func TestDBCustodian(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	c := NewDB(mem)
	defer c.Close()

	for _, u := range []string{"bob", "alice"} {
		if err := c.Store(ctx, testRecord(t, u)); err != nil {
			t.Fatalf("Store(%s) error: %v", u, err)
		}
	}
	// Keys outside the custody namespace are not records.
	mem.Put([]byte("other/carol"), []byte("{}"))

	users, err := c.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Fatalf("List() = %v, want [alice bob]", users)
	}

	got, err := c.Fetch(ctx, "alice")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if got.UserID != "alice" {
		t.Errorf("Fetch().UserID = %q", got.UserID)
	}

	if err := c.Delete("alice"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := c.Fetch(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch after Delete err = %v, want ErrNotFound", err)
	}
	if err := c.Delete("alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
}

func TestDBCustodian_RejectsCorruptRecord(t *testing.T) {
	mem := storage.NewMemory()
	c := NewDB(mem)
	mem.Put(append(append([]byte{}, recordPrefix...), "eve"...), []byte("{"))

	if _, err := c.Fetch(context.Background(), "eve"); err == nil {
		t.Fatal("Fetch() of corrupt record succeeded")
	}
}

func TestDBCustodian_RejectsMisKeyedRecord(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	c := NewDB(mem)
	if err := c.Store(ctx, testRecord(t, "alice")); err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	data, err := mem.Get(append(append([]byte{}, recordPrefix...), "alice"...))
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	mem.Put(append(append([]byte{}, recordPrefix...), "mallory"...), data)

	if r, err := c.Fetch(ctx, "mallory"); err == nil {
		t.Fatalf("Fetch(mallory) returned record for %q", r.UserID)
	}
	if _, err := c.Fetch(ctx, "alice"); err != nil {
		t.Errorf("Fetch(alice) error: %v", err)
	}
}

func TestDBCustodian_Badger(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := OpenBadger(dir)
	if err != nil {
		t.Fatalf("OpenBadger() error: %v", err)
	}
	rec := testRecord(t, "dave")
	if err := c.Store(ctx, rec); err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	c, err = OpenBadger(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer c.Close()
	got, err := c.Fetch(ctx, "dave")
	if err != nil {
		t.Fatalf("Fetch() after reopen error: %v", err)
	}
	if got.Address != rec.Address {
		t.Error("record changed across reopen")
	}
}
