package config

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-keyshare/internal/devicebind"
)

// MaxWorkers caps offload worker goroutines. Each one can hold a full
// Argon2id memory allocation.
const MaxWorkers = 8

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Environment != Production && cfg.Environment != Development {
		return fmt.Errorf("environment must be %q or %q", Production, Development)
	}

	if err := cfg.KDF.Params().Validate(); err != nil {
		return fmt.Errorf("kdf: %w", err)
	}
	if cfg.KDF.Workers < 1 || cfg.KDF.Workers > MaxWorkers {
		return fmt.Errorf("kdf.workers must be in range [1, %d]", MaxWorkers)
	}
	if cfg.KDF.MaxPending < 1 {
		return fmt.Errorf("kdf.max_pending must be at least 1")
	}
	if cfg.KDF.RatePerSecond < 0 {
		return fmt.Errorf("kdf.rate must not be negative")
	}
	if cfg.KDF.RatePerSecond > 0 && cfg.KDF.Burst < 1 {
		return fmt.Errorf("kdf.burst must be at least 1 when kdf.rate is set")
	}

	if cfg.Device.RPID == "" {
		return fmt.Errorf("device.rpid is required")
	}
	if err := devicebind.ValidateOrigin(cfg.Device.Origin); err != nil {
		return fmt.Errorf("device.origin: %w", err)
	}
	for i, o := range cfg.Device.AllowedOrigins {
		if err := devicebind.ValidateOrigin(o); err != nil {
			return fmt.Errorf("device.allowed_origins[%d]: %w", i, err)
		}
	}
	// The configured origin must itself pass the production policy.
	if cfg.Environment == Production {
		if err := cfg.OriginPolicy().Check(cfg.Device.Origin); err != nil {
			return fmt.Errorf("device.origin: %w", err)
		}
	}
	if cfg.Device.Timeout <= 0 {
		return fmt.Errorf("device.timeout must be positive")
	}

	switch cfg.Custody.Backend {
	case CustodyFile, CustodyBadger:
	default:
		return fmt.Errorf("custody.backend must be %q or %q, got %q", CustodyFile, CustodyBadger, cfg.Custody.Backend)
	}

	if cfg.Unlock.AttemptsPerMinute < 1 {
		return fmt.Errorf("unlock.attempts_per_minute must be at least 1")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error", "disabled", "off":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, error or off")
	}
	return nil
}
