package custody

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-keyshare/internal/shamir"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
)

func testRecord(t *testing.T, userID string) *Record {
	t.Helper()
	seed, err := types.NewSeed(make([]byte, types.SeedSize))
	if err != nil {
		t.Fatalf("NewSeed() error: %v", err)
	}
	shares, err := shamir.Split(seed)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	kp, err := crypto.DeriveKeypair(seed)
	if err != nil {
		t.Fatalf("DeriveKeypair() error: %v", err)
	}
	key, err := types.NewEncryptionKey(make([]byte, types.EncryptionKeySize))
	if err != nil {
		t.Fatalf("NewEncryptionKey() error: %v", err)
	}
	envA, err := crypto.EncryptToEnvelope(shamir.Encode(shares.A), key)
	if err != nil {
		t.Fatalf("EncryptToEnvelope() error: %v", err)
	}
	salt, err := types.NewArgon2Salt(make([]byte, 16))
	if err != nil {
		t.Fatalf("NewArgon2Salt() error: %v", err)
	}
	pk := kp.PublicKey()

	return &Record{
		Version:         RecordVersion,
		CreatedAt:       time.Now().UTC(),
		UserID:          userID,
		EncryptedShareA: envA,
		Argon2Salt:      salt,
		KdfParams:       crypto.MinKdfParams(),
		ShareB:          shamir.EncodeHex(shares.B),
		PublicKey:       hex.EncodeToString(pk[:]),
		Address:         kp.Address(),
	}
}

func TestMemoryCustodian_StoreFetch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r := testRecord(t, "alice")

	if err := m.Store(ctx, r); err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	if !m.Has("alice") {
		t.Fatal("Has() = false after Store")
	}

	got, err := m.Fetch(ctx, "alice")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if got.Address != r.Address || got.ShareB != r.ShareB || got.EncryptedShareA != r.EncryptedShareA {
		t.Error("fetched record differs from stored record")
	}
	if got.KdfParams != r.KdfParams {
		t.Errorf("KdfParams = %+v, want %+v", got.KdfParams, r.KdfParams)
	}

	// Fetch returns an independent copy.
	got.Address = "changed"
	again, err := m.Fetch(ctx, "alice")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if again.Address != r.Address {
		t.Error("mutating a fetched record changed the stored one")
	}
}

func TestMemoryCustodian_NotFound(t *testing.T) {
	_, err := NewMemory().Fetch(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryCustodian_Replace(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	first := testRecord(t, "alice")
	if err := m.Store(ctx, first); err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	second := testRecord(t, "alice")
	if err := m.Store(ctx, second); err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	got, err := m.Fetch(ctx, "alice")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if got.ShareB != second.ShareB {
		t.Error("Store did not replace the previous record")
	}

	m.Delete("alice")
	if m.Has("alice") {
		t.Error("Has() = true after Delete")
	}
}

func TestMemoryCustodian_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Record)
		want   error
	}{
		{"version", func(r *Record) { r.Version = 2 }, ErrUnsupportedVersion},
		{"share b index", func(r *Record) {
			s, _ := types.NewShare(shamir.IndexC, make([]byte, types.SharePayloadSize))
			r.ShareB = shamir.EncodeHex(s)
		}, types.ErrInvalidShare},
		{"share b garbage", func(r *Record) { r.ShareB = "zz" }, types.ErrInvalidShare},
		{"kdf params", func(r *Record) { r.KdfParams.Iterations = 99 }, types.ErrInvalidKdfParams},
		{"public key", func(r *Record) { r.PublicKey = "abcd" }, types.ErrInvalidLength},
		{"address", func(r *Record) { r.Address = "0OIl" }, types.ErrInvalidAddress},
		{"share a", func(r *Record) { r.EncryptedShareA = crypto.Envelope{} }, types.ErrInvalidEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRecord(t, "alice")
			tt.mutate(r)
			err := NewMemory().Store(context.Background(), r)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRecord_JSONShape(t *testing.T) {
	r := testRecord(t, "alice")
	b, err := r.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	for _, key := range []string{"version", "created_at", "encrypted_share_a", "argon2_salt", "kdf_params", "share_b", "public_key", "address"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("record JSON lacks %q", key)
		}
	}
	envA, ok := raw["encrypted_share_a"].(map[string]any)
	if !ok {
		t.Fatal("encrypted_share_a is not an object")
	}
	if _, ok := envA["ciphertext"]; !ok {
		t.Error("envelope lacks ciphertext")
	}
	if _, ok := envA["nonce"]; !ok {
		t.Error("envelope lacks nonce")
	}
	if !strings.HasPrefix(r.ShareB, "8") {
		t.Errorf("ShareB = %q, want legacy hex form", r.ShareB)
	}

	back, err := UnmarshalRecord(b)
	if err != nil {
		t.Fatalf("UnmarshalRecord() error: %v", err)
	}
	s, err := back.ShareBShare()
	if err != nil {
		t.Fatalf("ShareBShare() error: %v", err)
	}
	if s.Index() != shamir.IndexB {
		t.Errorf("share index = %d, want %d", s.Index(), shamir.IndexB)
	}
}

func TestUnmarshalRecord_Garbage(t *testing.T) {
	_, err := UnmarshalRecord([]byte("{not json"))
	if !errors.Is(err, types.ErrInvalidEncoding) {
		t.Errorf("err = %v, want ErrInvalidEncoding", err)
	}
}
