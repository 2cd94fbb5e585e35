package crypto

import (
	"errors"
	"testing"
	"testing/iotest"

	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
)


func TestWipe(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{4, 5}
	Wipe(a, b, nil)
	if !isAllZero(a) || !isAllZero(b) {
		t.Errorf("Wipe left data: %v %v", a, b)
	}
}

func TestWithScopedCleanup(t *testing.T) {
	buf := []byte("secret")
	want := errors.New("fn error")
	if err := WithScopedCleanup([][]byte{buf}, func() error { return want }); err != want {
		t.Fatalf("err = %v", err)
	}
	if !isAllZero(buf) {
		t.Error("buffer not wiped after error")
	}

	buf = []byte("secret")
	func() {
		defer func() { _ = recover() }()
		_ = WithScopedCleanup([][]byte{buf}, func() error { panic("boom") })
	}()
	if !isAllZero(buf) {
		t.Error("buffer not wiped after panic")
	}
}

func TestRandomBytes(t *testing.T) {
	a, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes() error: %v", err)
	}
	b, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes() error: %v", err)
	}
	if string(a) == string(b) {
		t.Error("two draws are equal")
	}
	if _, err := RandomBytes(0); !errors.Is(err, types.ErrInvalidLength) {
		t.Errorf("RandomBytes(0) err = %v", err)
	}
}

func TestRandomBytes_SourceFailure(t *testing.T) {
	r := iotest.ErrReader(errors.New("device gone"))
	_, err := randomBytesFrom(r, 16)
	if err != types.ErrEntropyUnavailable {
		t.Errorf("err = %v, want ErrEntropyUnavailable", err)
	}
	if _, err := randomBytesFrom(nil, 16); err != types.ErrEntropyUnavailable {
		t.Errorf("nil reader err = %v", err)
	}
}

func TestGenerators(t *testing.T) {
	seed, err := GenerateSeed()
	if err != nil || seed.Len() != types.SeedSize {
		t.Errorf("GenerateSeed() = len %d, %v", seed.Len(), err)
	}
	salt, err := GenerateArgon2Salt()
	if err != nil || salt.Len() != types.MinArgon2SaltSize {
		t.Errorf("GenerateArgon2Salt() = len %d, %v", salt.Len(), err)
	}
	p, err := GeneratePrfSalt()
	if err != nil || p.IsZero() {
		t.Errorf("GeneratePrfSalt() = %v, %v", p, err)
	}
}
