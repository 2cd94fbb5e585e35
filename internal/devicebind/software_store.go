package devicebind

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const credentialFileVersion = 1

type credentialFile struct {
	Version     int               `json:"version"`
	Credentials map[string]string `json:"credentials"`
}

// SaveCredentials writes the credential secrets to path with owner-only
// permissions. The file holds raw PRF secrets and is meant for local
// development with the CLI only.
func (a *SoftwareAuthenticator) SaveCredentials(path string) error {
	a.mu.Lock()
	f := credentialFile{Version: credentialFileVersion, Credentials: make(map[string]string, len(a.creds))}
	for id, secret := range a.creds {
		f.Credentials[id] = hex.EncodeToString(secret)
	}
	a.mu.Unlock()

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// LoadCredentials merges credentials saved by SaveCredentials. A missing
// file is not an error.
func (a *SoftwareAuthenticator) LoadCredentials(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read credentials: %w", err)
	}
	var f credentialFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode credentials: %w", err)
	}
	if f.Version != credentialFileVersion {
		return fmt.Errorf("unsupported credential file version %d", f.Version)
	}

	loaded := make(map[string][]byte, len(f.Credentials))
	for id, s := range f.Credentials {
		if _, err := hex.DecodeString(id); err != nil {
			return fmt.Errorf("credential id %q: %w", id, err)
		}
		secret, err := hex.DecodeString(s)
		if err != nil || len(secret) != softwareSecretSize {
			return fmt.Errorf("credential %s: bad secret", id)
		}
		loaded[id] = secret
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for id, secret := range loaded {
		a.creds[id] = secret
	}
	return nil
}
