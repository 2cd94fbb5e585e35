package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSecrets_Redacted(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, SeedSize)
	seed, err := NewSeed(raw)
	if err != nil {
		t.Fatalf("NewSeed() error: %v", err)
	}
	share, err := NewShare(2, raw)
	if err != nil {
		t.Fatalf("NewShare() error: %v", err)
	}
	key, err := NewEncryptionKey(bytes.Repeat([]byte{0xab}, EncryptionKeySize))
	if err != nil {
		t.Fatalf("NewEncryptionKey() error: %v", err)
	}

	for _, v := range []any{seed, share, key, &seed} {
		for _, verb := range []string{"%v", "%+v", "%s", "%x", "%q", "%#v"} {
			out := fmt.Sprintf(verb, v)
			if strings.Contains(out, "abab") || strings.Contains(out, "171") {
				t.Errorf("%s of %T leaked: %s", verb, v, out)
			}
		}
	}
	if s := share.String(); s != "share#2[REDACTED]" {
		t.Errorf("share.String() = %q", s)
	}

	js, err := json.Marshal(struct {
		Seed Seed          `json:"seed"`
		Key  EncryptionKey `json:"key"`
	}{seed, key})
	if err != nil {
		t.Fatalf("json.Marshal() error: %v", err)
	}
	if string(js) != `{"seed":"[REDACTED]","key":"[REDACTED]"}` {
		t.Errorf("json leaked: %s", js)
	}
}

func TestSecrets_LengthChecked(t *testing.T) {
	if _, err := NewSeed(make([]byte, 15)); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("NewSeed(15) err = %v", err)
	}
	if _, err := NewEncryptionKey(make([]byte, 16)); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("NewEncryptionKey(16) err = %v", err)
	}
	if _, err := NewPrfOutput(make([]byte, 31)); !errors.Is(err, ErrUnexpectedPrfOutputLength) {
		t.Errorf("NewPrfOutput(31) err = %v", err)
	}
	if _, err := NewArgon2Salt(make([]byte, MinArgon2SaltSize-1)); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("NewArgon2Salt(15) err = %v", err)
	}
	if _, err := NewArgon2Salt(make([]byte, MaxArgon2SaltSize+1)); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("NewArgon2Salt(1025) err = %v", err)
	}
	if _, err := NewAesNonce(make([]byte, 16)); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("NewAesNonce(16) err = %v", err)
	}
	if _, err := NewPrfSalt(make([]byte, 16)); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("NewPrfSalt(16) err = %v", err)
	}
	if _, err := NewShare(0, make([]byte, SharePayloadSize)); !errors.Is(err, ErrInvalidShare) {
		t.Errorf("NewShare(0) err = %v", err)
	}
}

func TestSecrets_CopyOnCreateAndWipe(t *testing.T) {
	raw := bytes.Repeat([]byte{1}, SeedSize)
	seed, err := NewSeed(raw)
	if err != nil {
		t.Fatalf("NewSeed() error: %v", err)
	}
	raw[0] = 9
	if seed.Bytes()[0] != 1 {
		t.Error("NewSeed did not copy its input")
	}

	alias := seed
	alias.Wipe()
	for _, b := range seed.Bytes() {
		if b != 0 {
			t.Fatal("wiping a copy left the original intact")
		}
	}
	if seed.IsZero() {
		t.Error("a wiped seed is not the unset seed")
	}
}

func TestShare_Equal(t *testing.T) {
	p := bytes.Repeat([]byte{3}, SharePayloadSize)
	a, _ := NewShare(1, p)
	b, _ := NewShare(1, p)
	c, _ := NewShare(2, p)
	if !a.Equal(b) {
		t.Error("equal shares compare unequal")
	}
	if a.Equal(c) {
		t.Error("shares with different indices compare equal")
	}
	if (Share{}).IsZero() != true || a.IsZero() {
		t.Error("IsZero mismatch")
	}
}

func TestSalts_JSON(t *testing.T) {
	salt, err := NewArgon2Salt(bytes.Repeat([]byte{0x0f}, 16))
	if err != nil {
		t.Fatalf("NewArgon2Salt() error: %v", err)
	}
	var ps PrfSalt
	ps[31] = 0xff

	js, err := json.Marshal(struct {
		A Argon2Salt `json:"a"`
		P PrfSalt    `json:"p"`
	}{salt, ps})
	if err != nil {
		t.Fatalf("json.Marshal() error: %v", err)
	}
	want := `{"a":"0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f","p":"` + strings.Repeat("00", 31) + `ff"}`
	if string(js) != want {
		t.Fatalf("json = %s\nwant %s", js, want)
	}

	var back struct {
		A Argon2Salt `json:"a"`
		P PrfSalt    `json:"p"`
	}
	if err := json.Unmarshal(js, &back); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}
	if !bytes.Equal(back.A.Bytes(), salt.Bytes()) || back.P != ps {
		t.Error("salt JSON round trip mismatch")
	}

	if err := json.Unmarshal([]byte(`"zz"`), &back.A); !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("bad hex err = %v", err)
	}
	if err := json.Unmarshal([]byte(`"00"`), &back.P); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("short prf salt err = %v", err)
	}
}
