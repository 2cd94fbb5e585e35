package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
)

func testSalt(t *testing.T, b byte) types.Argon2Salt {
	t.Helper()
	s, err := types.NewArgon2Salt(bytes.Repeat([]byte{b}, types.MinArgon2SaltSize))
	if err != nil {
		t.Fatalf("NewArgon2Salt() error: %v", err)
	}
	return s
}

func TestKdfParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		params KdfParams
		ok     bool
	}{
		{"default", DefaultKdfParams(), true},
		{"minimum", MinKdfParams(), true},
		{"maximum", KdfParams{MemoryKiB: MaxMemoryKiB, Iterations: MaxIterations, Parallelism: MaxParallelism}, true},
		{"memory low", KdfParams{MemoryKiB: MinMemoryKiB - 1, Iterations: 1, Parallelism: 1}, false},
		{"memory high", KdfParams{MemoryKiB: MaxMemoryKiB + 1, Iterations: 1, Parallelism: 1}, false},
		{"zero iterations", KdfParams{MemoryKiB: MinMemoryKiB, Iterations: 0, Parallelism: 1}, false},
		{"too many iterations", KdfParams{MemoryKiB: MinMemoryKiB, Iterations: MaxIterations + 1, Parallelism: 1}, false},
		{"zero lanes", KdfParams{MemoryKiB: MinMemoryKiB, Iterations: 1, Parallelism: 0}, false},
		{"too many lanes", KdfParams{MemoryKiB: MinMemoryKiB, Iterations: 1, Parallelism: MaxParallelism + 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate() error: %v", err)
			}
			if !tt.ok && !errors.Is(err, types.ErrInvalidKdfParams) {
				t.Fatalf("Validate() err = %v, want ErrInvalidKdfParams", err)
			}
		})
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	params := MinKdfParams()
	k1, err := DeriveKey([]byte("password"), testSalt(t, 1), params)
	if err != nil {
		t.Fatalf("DeriveKey() error: %v", err)
	}
	k2, err := DeriveKey([]byte("password"), testSalt(t, 1), params)
	if err != nil {
		t.Fatalf("DeriveKey() error: %v", err)
	}
	if !k1.Equal(k2) {
		t.Error("same inputs produced different keys")
	}
	if k1.Len() != types.EncryptionKeySize {
		t.Errorf("key length = %d", k1.Len())
	}

	k3, err := DeriveKey([]byte("password"), testSalt(t, 2), params)
	if err != nil {
		t.Fatalf("DeriveKey() error: %v", err)
	}
	if k1.Equal(k3) {
		t.Error("different salts produced the same key")
	}
	k4, err := DeriveKey([]byte("passwore"), testSalt(t, 1), params)
	if err != nil {
		t.Fatalf("DeriveKey() error: %v", err)
	}
	if k1.Equal(k4) {
		t.Error("different passwords produced the same key")
	}
}

func TestDeriveKey_RejectsBeforeWork(t *testing.T) {
	bad := KdfParams{MemoryKiB: 4 * 1024 * 1024, Iterations: 1, Parallelism: 1}
	if _, err := DeriveKey([]byte("pw"), testSalt(t, 1), bad); !errors.Is(err, types.ErrInvalidKdfParams) {
		t.Errorf("oversized memory: err = %v, want ErrInvalidKdfParams", err)
	}
	if _, err := DeriveKey([]byte("pw"), types.Argon2Salt{}, MinKdfParams()); !errors.Is(err, types.ErrInvalidLength) {
		t.Errorf("empty salt: err = %v, want ErrInvalidLength", err)
	}
}

func TestIsKdfSupported(t *testing.T) {
	if !IsKdfSupported() {
		t.Error("IsKdfSupported() = false")
	}
}
