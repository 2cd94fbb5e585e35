// Package config handles application configuration.
//
// Values are layered: environment defaults, then the config file, then
// command-line flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/Klingon-tech/klingnet-keyshare/internal/devicebind"
	"github.com/Klingon-tech/klingnet-keyshare/internal/kdf"
	"github.com/Klingon-tech/klingnet-keyshare/internal/metrics"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
)

// Environment selects production or development behaviour.
type Environment string

const (
	Production  Environment = "production"
	Development Environment = "development"
)

// Config holds runtime configuration.
type Config struct {
	Environment Environment `conf:"environment"`
	DataDir     string      `conf:"datadir"`

	// Argon2id and the derivation offload worker
	KDF KDFConfig

	// WebAuthn relying party and origin policy
	Device DeviceConfig

	// Record persistence for the CLI
	Custody CustodyConfig

	// Unlock throttling
	Unlock UnlockConfig

	// Logging
	Log LogConfig
}

// KDFConfig holds Argon2id parameters for new records and offload tuning.
type KDFConfig struct {
	MemoryKiB   uint32 `conf:"kdf.memory_kib"`
	Iterations  uint32 `conf:"kdf.iterations"`
	Parallelism uint8  `conf:"kdf.parallelism"`

	Offload       bool    `conf:"kdf.offload"`
	Workers       int     `conf:"kdf.workers"`
	MaxPending    int     `conf:"kdf.max_pending"`
	RatePerSecond float64 `conf:"kdf.rate"` // 0 = unlimited
	Burst         int     `conf:"kdf.burst"`
}

// DeviceConfig holds passkey ceremony settings.
type DeviceConfig struct {
	RPID           string        `conf:"device.rpid"`
	RPName         string        `conf:"device.rpname"`
	Origin         string        `conf:"device.origin"`
	AllowedOrigins []string      `conf:"device.allowed_origins"`
	Timeout        time.Duration `conf:"device.timeout"`
}

// Custody backends.
const (
	CustodyFile   = "file"
	CustodyBadger = "badger"
)

// CustodyConfig selects where the CLI keeps custody records.
type CustodyConfig struct {
	Backend string `conf:"custody.backend"` // file or badger
}

// UnlockConfig holds unlock throttling.
type UnlockConfig struct {
	AttemptsPerMinute int `conf:"unlock.attempts_per_minute"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// Params returns the Argon2id parameters for new records.
func (c KDFConfig) Params() crypto.KdfParams {
	return crypto.KdfParams{
		MemoryKiB:   c.MemoryKiB,
		Iterations:  c.Iterations,
		Parallelism: c.Parallelism,
	}
}

// Options returns the offload worker options.
func (c KDFConfig) Options(m *metrics.Metrics) kdf.Options {
	return kdf.Options{
		Offload:       c.Offload,
		Workers:       c.Workers,
		MaxPending:    c.MaxPending,
		RatePerSecond: c.RatePerSecond,
		Burst:         c.Burst,
		Metrics:       m,
	}
}

// OriginPolicy returns the ceremony origin policy for the environment.
func (c *Config) OriginPolicy() devicebind.OriginPolicy {
	allowed := append([]string(nil), c.Device.AllowedOrigins...)
	return devicebind.OriginPolicy{
		Production: c.Environment == Production,
		Allowed:    allowed,
	}
}

// BinderConfig returns the device binder configuration.
func (c *Config) BinderConfig() devicebind.Config {
	return devicebind.Config{
		RPID:    c.Device.RPID,
		RPName:  c.Device.RPName,
		Origin:  c.Device.Origin,
		Timeout: c.Device.Timeout,
		Policy:  c.OriginPolicy(),
	}
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.keyshare
//	macOS:   ~/Library/Application Support/Keyshare
//	Windows: %APPDATA%\Keyshare
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".keyshare"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Keyshare")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Keyshare")
		}
		return filepath.Join(home, "AppData", "Roaming", "Keyshare")
	default:
		return filepath.Join(home, ".keyshare")
	}
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the default config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "keyshare.conf")
}

// CustodyDir returns the custody record directory for the configured
// backend.
func (c *Config) CustodyDir() string {
	if c.Custody.Backend == CustodyBadger {
		return filepath.Join(c.DataDir, "custody.db")
	}
	return filepath.Join(c.DataDir, "custody")
}

// AuthenticatorFile returns where development builds keep software
// authenticator credentials.
func (c *Config) AuthenticatorFile() string {
	return filepath.Join(c.DataDir, "dev", "authenticator.json")
}
