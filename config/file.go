package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFile loads configuration values from a file. Files ending in .yaml or
// .yml are YAML documents whose nested keys flatten to dotted keys
// ("kdf: {workers: 2}" becomes "kdf.workers"). Anything else is a .conf
// file: key = value, one per line, # for comments.
// A missing file yields no values.
func LoadFile(path string) (map[string]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadYAML(path)
	default:
		return loadConf(path)
	}
}

func loadConf(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

func loadYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	values := make(map[string]string)
	if err := flatten("", doc, values); err != nil {
		return nil, err
	}
	return values, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) error {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch v := node[k].(type) {
		case map[string]any:
			if err := flatten(key, v, out); err != nil {
				return err
			}
		case []any:
			items := make([]string, 0, len(v))
			for i, item := range v {
				switch item.(type) {
				case map[string]any, []any:
					return fmt.Errorf("%s[%d]: nested values are not supported", key, i)
				}
				items = append(items, fmt.Sprint(item))
			}
			out[key] = strings.Join(items, ",")
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return nil
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := setConfigValue(cfg, key, values[key]); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "environment", "env":
		cfg.Environment = Environment(strings.ToLower(value))
	case "datadir":
		cfg.DataDir = value

	// KDF
	case "kdf.memory_kib":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		cfg.KDF.MemoryKiB = uint32(n)
	case "kdf.iterations":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		cfg.KDF.Iterations = uint32(n)
	case "kdf.parallelism":
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return err
		}
		cfg.KDF.Parallelism = uint8(n)
	case "kdf.offload":
		cfg.KDF.Offload = parseBool(value)
	case "kdf.workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.KDF.Workers = n
	case "kdf.max_pending":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.KDF.MaxPending = n
	case "kdf.rate":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		cfg.KDF.RatePerSecond = f
	case "kdf.burst":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.KDF.Burst = n

	// Device
	case "device.rpid":
		cfg.Device.RPID = value
	case "device.rpname":
		cfg.Device.RPName = value
	case "device.origin":
		cfg.Device.Origin = value
	case "device.allowed_origins":
		cfg.Device.AllowedOrigins = parseStringList(value)
	case "device.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Device.Timeout = d

	// Custody
	case "custody.backend":
		cfg.Custody.Backend = strings.ToLower(value)

	// Unlock
	case "unlock.attempts_per_minute":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Unlock.AttemptsPerMinute = n

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, env Environment) error {
	cfg := Default(env)
	content := `# Klingnet Keyshare Configuration

# Environment: production or development.
# Development permits ceremony origins outside the allow-list (with a warning).
environment = ` + string(env) + `

# Data directory (default: ~/.keyshare)
# datadir = ~/.keyshare

# ============================================================================
# Key derivation (Argon2id)
# ============================================================================

# Parameters for new records. Existing records keep the parameters they
# were created with. Bounds: memory 16384..1048576 KiB, iterations 1..10,
# parallelism 1..4.
kdf.memory_kib = ` + strconv.FormatUint(uint64(cfg.KDF.MemoryKiB), 10) + `
kdf.iterations = ` + strconv.FormatUint(uint64(cfg.KDF.Iterations), 10) + `
kdf.parallelism = ` + strconv.FormatUint(uint64(cfg.KDF.Parallelism), 10) + `

# Run derivations on a background worker
kdf.offload = true
kdf.workers = 1
kdf.max_pending = 16

# Admission rate limit in derivations per second (0 = unlimited)
# kdf.rate = 0
# kdf.burst = 1

# ============================================================================
# Passkey (WebAuthn)
# ============================================================================

device.rpid = ` + cfg.Device.RPID + `
device.rpname = "` + cfg.Device.RPName + `"
device.origin = ` + cfg.Device.Origin + `
# Comma-separated origins allowed to run ceremonies in production.
# Loopback origins are always allowed.
# device.allowed_origins = https://wallet.example.com
device.timeout = ` + cfg.Device.Timeout.String() + `

# ============================================================================
# Custody
# ============================================================================

# Where the CLI keeps custody records: file (one JSON file per user) or badger
custody.backend = ` + cfg.Custody.Backend + `

# ============================================================================
# Unlock
# ============================================================================

unlock.attempts_per_minute = ` + strconv.Itoa(cfg.Unlock.AttemptsPerMinute) + `

# ============================================================================
# Logging
# ============================================================================

log.level = ` + cfg.Log.Level + `
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
