package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
)

// RFC 5869 appendix A.1.
func TestDeriveDomainKey_RFC5869(t *testing.T) {
	ikm := bytes.Repeat([]byte{0x0b}, 22)
	salt, _ := hex.DecodeString("000102030405060708090a0b0c")
	info, _ := hex.DecodeString("f0f1f2f3f4f5f6f7f8f9")
	want := "3cb25f25faacd57a90434f64d0362f2a2d2d0a90cf1a5a4c5db02d56ecc4c5bf34007208d5b887185865"

	got, err := DeriveDomainKey(ikm, salt, string(info), 42)
	if err != nil {
		t.Fatalf("DeriveDomainKey() error: %v", err)
	}
	if hex.EncodeToString(got) != want {
		t.Errorf("okm = %x, want %s", got, want)
	}
}

func TestDeriveDomainKey_DomainSeparation(t *testing.T) {
	ikm := []byte("input key material")
	a, err := DeriveDomainKey(ikm, nil, DomainShareBEncryption, 32)
	if err != nil {
		t.Fatalf("DeriveDomainKey() error: %v", err)
	}
	b, err := DeriveDomainKey(ikm, nil, DomainTransactionSigning, 32)
	if err != nil {
		t.Fatalf("DeriveDomainKey() error: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("different domains produced the same key")
	}
	again, _ := DeriveDomainKey(ikm, nil, DomainShareBEncryption, 32)
	if !bytes.Equal(a, again) {
		t.Error("same domain is not deterministic")
	}
}

func TestDeriveDomainKey_Errors(t *testing.T) {
	tests := []struct {
		name   string
		ikm    []byte
		domain string
		length int
		want   error
	}{
		{"empty domain", []byte("k"), "", 32, types.ErrInvalidDomain},
		{"zero length", []byte("k"), DomainRecoveryCheck, 0, types.ErrInvalidLength},
		{"too long", []byte("k"), DomainRecoveryCheck, MaxDomainKeySize + 1, types.ErrInvalidLength},
		{"empty ikm", nil, DomainRecoveryCheck, 32, types.ErrInvalidLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DeriveDomainKey(tt.ikm, nil, tt.domain, tt.length); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDeriveKeyFromPrf(t *testing.T) {
	out, err := types.NewPrfOutput(bytes.Repeat([]byte{7}, types.PrfOutputSize))
	if err != nil {
		t.Fatalf("NewPrfOutput() error: %v", err)
	}
	var s1, s2 types.PrfSalt
	s2[0] = 1

	k1, err := DeriveKeyFromPrf(out, s1)
	if err != nil {
		t.Fatalf("DeriveKeyFromPrf() error: %v", err)
	}
	k2, err := DeriveKeyFromPrf(out, s2)
	if err != nil {
		t.Fatalf("DeriveKeyFromPrf() error: %v", err)
	}
	if k1.Equal(k2) {
		t.Error("different prf salts produced the same key")
	}
	if _, err := DeriveKeyFromPrf(types.PrfOutput{}, s1); !errors.Is(err, types.ErrUnexpectedPrfOutputLength) {
		t.Errorf("empty output: err = %v, want ErrUnexpectedPrfOutputLength", err)
	}
}
