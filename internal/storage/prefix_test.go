package storage

import (
	"errors"
	"testing"
)

func TestPrefixDB_Isolation(t *testing.T) {
	inner := NewMemory()
	a := NewPrefixDB(inner, []byte("ns1/"))
	b := NewPrefixDB(inner, []byte("ns2/"))

	if err := a.Put([]byte("key"), []byte("a")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Put([]byte("key"), []byte("b")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := a.Get([]byte("key"))
	if err != nil || string(got) != "a" {
		t.Fatalf("a.Get = %q, %v", got, err)
	}
	raw, err := inner.Get([]byte("ns2/key"))
	if err != nil || string(raw) != "b" {
		t.Fatalf("inner.Get(ns2/key) = %q, %v", raw, err)
	}

	if err := a.Delete([]byte("key")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := a.Has([]byte("key")); ok {
		t.Error("a.Has after delete = true")
	}
	if ok, _ := b.Has([]byte("key")); !ok {
		t.Error("delete in ns1 removed ns2 key")
	}
	if _, err := a.Get([]byte("key")); !errors.Is(err, ErrNotFound) {
		t.Errorf("a.Get after delete err = %v", err)
	}
}

func TestPrefixDB_ForEachStripsPrefix(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("custody/"))
	db.Put([]byte("u1"), []byte("1"))
	db.Put([]byte("u2"), []byte("2"))
	inner.Put([]byte("other/u3"), []byte("3"))

	var keys []string
	err := db.ForEach(nil, func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(keys) != 2 || keys[0] != "u1" || keys[1] != "u2" {
		t.Errorf("ForEach keys = %v, want [u1 u2]", keys)
	}
}

func TestPrefixDB_CopiesPrefix(t *testing.T) {
	inner := NewMemory()
	prefix := []byte("ns/")
	db := NewPrefixDB(inner, prefix)
	prefix[0] = 'X'

	db.Put([]byte("k"), []byte("v"))
	if ok, _ := inner.Has([]byte("ns/k")); !ok {
		t.Error("PrefixDB did not copy its prefix")
	}
}
