package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaults_Valid(t *testing.T) {
	for _, env := range []Environment{Production, Development} {
		cfg := Default(env)
		if err := Validate(cfg); err != nil {
			t.Errorf("Default(%s) invalid: %v", env, err)
		}
		if cfg.KDF.Params() != crypto.DefaultKdfParams() {
			t.Errorf("Default(%s) kdf params = %+v", env, cfg.KDF.Params())
		}
	}
	if !DefaultProduction().OriginPolicy().Production {
		t.Error("production policy does not fail closed")
	}
	if DefaultDevelopment().OriginPolicy().Production {
		t.Error("development policy fails closed")
	}
}

func TestLoadFile_Conf(t *testing.T) {
	path := writeFile(t, "keyshare.conf", `
# comment
environment = development
kdf.workers = 2
device.rpname = "My Wallet"
device.allowed_origins = https://a.example.com, https://b.example.com
device.timeout = 30s
log.json = yes
`)
	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if values["device.rpname"] != "My Wallet" {
		t.Errorf("quotes not stripped: %q", values["device.rpname"])
	}

	cfg := DefaultProduction()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig() error: %v", err)
	}
	if cfg.Environment != Development || cfg.KDF.Workers != 2 || !cfg.Log.JSON {
		t.Errorf("values not applied: %+v", cfg)
	}
	if cfg.Device.Timeout != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Device.Timeout)
	}
	if len(cfg.Device.AllowedOrigins) != 2 || cfg.Device.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("allowed origins = %v", cfg.Device.AllowedOrigins)
	}
}

func TestLoadFile_ConfErrors(t *testing.T) {
	path := writeFile(t, "bad.conf", "kdf.workers\n")
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile accepted a line without '='")
	}

	cfg := DefaultProduction()
	if err := ApplyFileConfig(cfg, map[string]string{"kdf.iterations": "many"}); err == nil {
		t.Error("ApplyFileConfig accepted a non-numeric value")
	}
	if err := ApplyFileConfig(cfg, map[string]string{"kdf.parallelism": "300"}); err == nil {
		t.Error("ApplyFileConfig accepted an out-of-range uint8")
	}
	if err := ApplyFileConfig(cfg, map[string]string{"some.future.key": "x"}); err != nil {
		t.Errorf("unknown key rejected: %v", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	for _, name := range []string{"none.conf", "none.yaml"} {
		values, err := LoadFile(filepath.Join(t.TempDir(), name))
		if err != nil || len(values) != 0 {
			t.Errorf("LoadFile(%s) = %v, %v", name, values, err)
		}
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, "keyshare.yaml", `
environment: production
kdf:
  memory_kib: 32768
  iterations: 2
  parallelism: 1
  offload: false
  rate: 0.5
  burst: 2
device:
  rpid: wallet.example.com
  origin: https://wallet.example.com
  allowed_origins:
    - https://wallet.example.com
    - https://beta.wallet.example.com
custody:
  backend: Badger
unlock:
  attempts_per_minute: 3
`)
	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if values["kdf.memory_kib"] != "32768" || values["device.allowed_origins"] != "https://wallet.example.com,https://beta.wallet.example.com" {
		t.Fatalf("flattened values = %v", values)
	}

	cfg := DefaultProduction()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig() error: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	want := crypto.KdfParams{MemoryKiB: 32768, Iterations: 2, Parallelism: 1}
	if cfg.KDF.Params() != want {
		t.Errorf("params = %+v, want %+v", cfg.KDF.Params(), want)
	}
	opts := cfg.KDF.Options(nil)
	if opts.Offload || opts.RatePerSecond != 0.5 || opts.Burst != 2 {
		t.Errorf("offload options = %+v", opts)
	}
	if cfg.Unlock.AttemptsPerMinute != 3 {
		t.Errorf("attempts = %d", cfg.Unlock.AttemptsPerMinute)
	}
	if cfg.Custody.Backend != CustodyBadger || filepath.Base(cfg.CustodyDir()) != "custody.db" {
		t.Errorf("custody = %+v, dir %s", cfg.Custody, cfg.CustodyDir())
	}
	bc := cfg.BinderConfig()
	if bc.RPID != "wallet.example.com" || !bc.Policy.Production || len(bc.Policy.Allowed) != 2 {
		t.Errorf("binder config = %+v", bc)
	}
}

func TestLoadFile_YAMLErrors(t *testing.T) {
	path := writeFile(t, "bad.yml", "kdf: [unclosed\n")
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile accepted malformed YAML")
	}
	path = writeFile(t, "nested.yml", "device:\n  allowed_origins:\n    - {a: b}\n")
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile accepted a nested list item")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"nil safe default", func(*Config) {}, ""},
		{"bad environment", func(c *Config) { c.Environment = "staging" }, "environment"},
		{"memory too low", func(c *Config) { c.KDF.MemoryKiB = 1024 }, "kdf"},
		{"iterations too high", func(c *Config) { c.KDF.Iterations = 11 }, "kdf"},
		{"no workers", func(c *Config) { c.KDF.Workers = 0 }, "kdf.workers"},
		{"too many workers", func(c *Config) { c.KDF.Workers = MaxWorkers + 1 }, "kdf.workers"},
		{"no pending slots", func(c *Config) { c.KDF.MaxPending = 0 }, "kdf.max_pending"},
		{"negative rate", func(c *Config) { c.KDF.RatePerSecond = -1 }, "kdf.rate"},
		{"rate without burst", func(c *Config) { c.KDF.RatePerSecond = 1; c.KDF.Burst = 0 }, "kdf.burst"},
		{"no rpid", func(c *Config) { c.Device.RPID = "" }, "device.rpid"},
		{"origin with path", func(c *Config) { c.Device.Origin = "https://a.example.com/app" }, "device.origin"},
		{"origin scheme", func(c *Config) { c.Device.Origin = "ftp://a.example.com" }, "device.origin"},
		{"bad allowed origin", func(c *Config) { c.Device.AllowedOrigins = []string{"nope"} }, "device.allowed_origins[0]"},
		{"production origin not allowed", func(c *Config) { c.Device.Origin = "https://evil.example.com" }, "device.origin"},
		{"production origin allowed", func(c *Config) {
			c.Device.Origin = "https://wallet.example.com"
			c.Device.AllowedOrigins = []string{"https://wallet.example.com"}
		}, ""},
		{"development origin warns only", func(c *Config) {
			c.Environment = Development
			c.Device.Origin = "https://evil.example.com"
		}, ""},
		{"zero timeout", func(c *Config) { c.Device.Timeout = 0 }, "device.timeout"},
		{"bad custody backend", func(c *Config) { c.Custody.Backend = "s3" }, "custody.backend"},
		{"badger custody backend", func(c *Config) { c.Custody.Backend = CustodyBadger }, ""},
		{"no attempts", func(c *Config) { c.Unlock.AttemptsPerMinute = 0 }, "unlock"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultProduction()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.errSub == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errSub) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.errSub)
			}
		})
	}
	if err := Validate(nil); err == nil {
		t.Error("Validate(nil) = nil")
	}
}

func TestParseFlags(t *testing.T) {
	f, err := ParseFlags([]string{
		"--env=development", "--kdf-offload=false", "--kdf-memory", "20000",
		"--origin", "http://127.0.0.1:3000", "--log-json",
		"enroll", "--user", "alice",
	})
	if err != nil {
		t.Fatalf("ParseFlags() error: %v", err)
	}
	if len(f.Args) != 3 || f.Args[0] != "enroll" {
		t.Fatalf("Args = %v", f.Args)
	}

	cfg := DefaultProduction()
	ApplyFlags(cfg, f)
	if cfg.Environment != Development || cfg.KDF.Offload || cfg.KDF.MemoryKiB != 20000 {
		t.Errorf("flags not applied: %+v", cfg.KDF)
	}
	if cfg.Device.Origin != "http://127.0.0.1:3000" || !cfg.Log.JSON {
		t.Errorf("flags not applied: %+v %+v", cfg.Device, cfg.Log)
	}

	// Unset bool flags leave file values alone.
	f, err = ParseFlags(nil)
	if err != nil {
		t.Fatalf("ParseFlags(nil) error: %v", err)
	}
	cfg = DefaultProduction()
	cfg.Log.JSON = true
	ApplyFlags(cfg, f)
	if !cfg.Log.JSON || !cfg.KDF.Offload {
		t.Error("unset bool flags overrode config")
	}

	if _, err := ParseFlags([]string{"--no-such-flag"}); err == nil {
		t.Error("ParseFlags accepted an unknown flag")
	}
	if f, err := ParseFlags([]string{"-h"}); err != nil || !f.Help {
		t.Errorf("ParseFlags(-h) = %+v, %v", f, err)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfg, _, err := Load([]string{"--datadir", dir})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "keyshare.conf")); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.KDF.Params() != crypto.DefaultKdfParams() {
		t.Errorf("generated config changed kdf params: %+v", cfg.KDF.Params())
	}

	conf := filepath.Join(dir, "keyshare.conf")
	if err := os.WriteFile(conf, []byte("kdf.workers = 3\nlog.level = warn\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err = Load([]string{"--datadir", dir, "--log-level", "error"})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.KDF.Workers != 3 {
		t.Errorf("file value lost: workers = %d", cfg.KDF.Workers)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("flag did not override file: level = %s", cfg.Log.Level)
	}

	if _, _, err := Load([]string{"--datadir", dir, "--kdf-workers", "99"}); err == nil {
		t.Error("Load accepted invalid flags")
	}
}

func TestWriteDefaultConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyshare.conf")
	if err := WriteDefaultConfig(path, Development); err != nil {
		t.Fatalf("WriteDefaultConfig() error: %v", err)
	}
	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	cfg := DefaultProduction()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig() error: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("written defaults invalid: %v", err)
	}
	if cfg.Environment != Development || cfg.Log.Level != "debug" || cfg.Device.RPName != "Klingnet Keyshare" {
		t.Errorf("round trip = %+v", cfg)
	}
}
