package devicebind

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSoftwareAuthenticator_SaveLoadCredentials(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dev", "authenticator.json")

	first := NewSoftwareAuthenticator()
	reg, err := testBinder(first).Register(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := first.SaveCredentials(path); err != nil {
		t.Fatalf("SaveCredentials() error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	second := NewSoftwareAuthenticator()
	if err := second.LoadCredentials(path); err != nil {
		t.Fatalf("LoadCredentials() error: %v", err)
	}
	out, err := testBinder(second).Authenticate(ctx, reg.CredentialID, reg.PrfSalt)
	if err != nil {
		t.Fatalf("Authenticate() after load error: %v", err)
	}
	if !out.Equal(reg.PrfOutput) {
		t.Error("prf output changed across save/load")
	}
}

func TestSoftwareAuthenticator_LoadCredentials_Errors(t *testing.T) {
	dir := t.TempDir()
	a := NewSoftwareAuthenticator()

	if err := a.LoadCredentials(filepath.Join(dir, "missing.json")); err != nil {
		t.Fatalf("missing file: error = %v", err)
	}

	tests := []struct {
		name, body string
	}{
		{"not json", "{"},
		{"version", `{"version":2,"credentials":{}}`},
		{"bad id", `{"version":1,"credentials":{"zz":"00"}}`},
		{"short secret", `{"version":1,"credentials":{"00":"0011"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if err := os.WriteFile(path, []byte(tt.body), 0600); err != nil {
				t.Fatal(err)
			}
			if err := a.LoadCredentials(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
