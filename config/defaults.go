package config

import (
	"time"

	"github.com/Klingon-tech/klingnet-keyshare/internal/flow"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
)

// DefaultProduction returns the production configuration.
func DefaultProduction() *Config {
	p := crypto.DefaultKdfParams()
	return &Config{
		Environment: Production,
		DataDir:     DefaultDataDir(),
		KDF: KDFConfig{
			MemoryKiB:   p.MemoryKiB,
			Iterations:  p.Iterations,
			Parallelism: p.Parallelism,
			Offload:     true,
			Workers:     1,
			MaxPending:  16,
			Burst:       1,
		},
		Device: DeviceConfig{
			RPID:   "localhost",
			RPName: "Klingnet Keyshare",
			Origin: "http://localhost:8080",
			// Allowed origins for production deployments, e.g.
			//   "https://wallet.example.com"
			AllowedOrigins: []string{},
			Timeout:        60 * time.Second,
		},
		Custody: CustodyConfig{
			Backend: CustodyFile,
		},
		Unlock: UnlockConfig{
			AttemptsPerMinute: flow.DefaultAttemptsPerMinute,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultDevelopment returns the development configuration. Origins outside
// the allow-list are permitted with a warning.
func DefaultDevelopment() *Config {
	cfg := DefaultProduction()
	cfg.Environment = Development
	cfg.Log.Level = "debug"
	return cfg
}

// Default returns the configuration for the given environment.
func Default(env Environment) *Config {
	switch env {
	case Development:
		return DefaultDevelopment()
	default:
		return DefaultProduction()
	}
}
