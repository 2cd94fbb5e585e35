package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Environment string
	DataDir     string
	Config      string

	// KDF
	KDFMemory      uint
	KDFIterations  uint
	KDFParallelism uint
	KDFOffload     bool
	KDFWorkers     int
	KDFRate        float64

	// Device
	RPID           string
	Origin         string
	AllowedOrigins string
	DeviceTimeout  time.Duration

	// Custody
	CustodyBackend string

	// Unlock
	UnlockAttempts int

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args (the command and its operands)
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetKDFOffload bool
	SetLogJSON    bool
}

// ParseFlags parses global flags from args. Parsing stops at the first
// non-flag argument, which starts the command.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("keyshare", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Environment, "env", "", "Environment (production or development)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// KDF
	fs.UintVar(&f.KDFMemory, "kdf-memory", 0, "Argon2id memory in KiB")
	fs.UintVar(&f.KDFIterations, "kdf-iterations", 0, "Argon2id iterations")
	fs.UintVar(&f.KDFParallelism, "kdf-parallelism", 0, "Argon2id lanes")
	fs.BoolVar(&f.KDFOffload, "kdf-offload", true, "Run derivations on a background worker")
	fs.IntVar(&f.KDFWorkers, "kdf-workers", 0, "Offload worker goroutines")
	fs.Float64Var(&f.KDFRate, "kdf-rate", 0, "Derivation admissions per second (0 = unlimited)")

	// Device
	fs.StringVar(&f.RPID, "rp-id", "", "WebAuthn relying party ID")
	fs.StringVar(&f.Origin, "origin", "", "Ceremony origin")
	fs.StringVar(&f.AllowedOrigins, "allowed-origins", "", "Production origin allow-list (comma-separated)")
	fs.DurationVar(&f.DeviceTimeout, "device-timeout", 0, "Passkey ceremony timeout")

	// Custody
	fs.StringVar(&f.CustodyBackend, "custody-backend", "", "Custody record backend (file or badger)")

	// Unlock
	fs.IntVar(&f.UnlockAttempts, "unlock-attempts", 0, "Failed unlock attempts allowed per minute")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			f.Help = true
			return f, nil
		}
		return nil, err
	}

	f.SetKDFOffload = isFlagSet(fs, "kdf-offload")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()
	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Environment != "" {
		cfg.Environment = Environment(strings.ToLower(f.Environment))
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// KDF
	if f.KDFMemory != 0 {
		cfg.KDF.MemoryKiB = uint32(f.KDFMemory)
	}
	if f.KDFIterations != 0 {
		cfg.KDF.Iterations = uint32(f.KDFIterations)
	}
	if f.KDFParallelism != 0 {
		cfg.KDF.Parallelism = uint8(f.KDFParallelism)
	}
	if f.SetKDFOffload {
		cfg.KDF.Offload = f.KDFOffload
	}
	if f.KDFWorkers != 0 {
		cfg.KDF.Workers = f.KDFWorkers
	}
	if f.KDFRate != 0 {
		cfg.KDF.RatePerSecond = f.KDFRate
	}

	// Device
	if f.RPID != "" {
		cfg.Device.RPID = f.RPID
	}
	if f.Origin != "" {
		cfg.Device.Origin = f.Origin
	}
	if f.AllowedOrigins != "" {
		cfg.Device.AllowedOrigins = parseStringList(f.AllowedOrigins)
	}
	if f.DeviceTimeout != 0 {
		cfg.Device.Timeout = f.DeviceTimeout
	}

	// Custody
	if f.CustodyBackend != "" {
		cfg.Custody.Backend = strings.ToLower(f.CustodyBackend)
	}

	// Unlock
	if f.UnlockAttempts != 0 {
		cfg.Unlock.AttemptsPerMinute = f.UnlockAttempts
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// PrintUsage writes the global options.
func PrintUsage(w io.Writer) {
	usage := `Global Options:
  --help, -h        Show this help message
  --version, -v     Show version information
  --env             Environment: production (default) or development
  --datadir         Data directory (default: ~/.keyshare)
  --config, -c      Config file path (default: <datadir>/keyshare.conf)
                    Files ending in .yaml or .yml are read as YAML.

KDF Options:
  --kdf-memory       Argon2id memory in KiB (default: 65536)
  --kdf-iterations   Argon2id iterations (default: 3)
  --kdf-parallelism  Argon2id lanes (default: 4)
  --kdf-offload      Run derivations on a background worker (default: true)
  --kdf-workers      Offload worker goroutines (default: 1)
  --kdf-rate         Derivation admissions per second (default: unlimited)

Passkey Options:
  --rp-id            WebAuthn relying party ID (default: localhost)
  --origin           Ceremony origin (default: http://localhost:8080)
  --allowed-origins  Production origin allow-list (comma-separated)
  --device-timeout   Ceremony timeout (default: 60s)

Custody Options:
  --custody-backend  Record backend: file (default) or badger

Unlock Options:
  --unlock-attempts  Failed unlock attempts allowed per minute (default: 5)

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stderr only)
  --log-json      Output logs as JSON
`
	fmt.Fprint(w, usage)
}

// Load loads configuration with the following precedence:
// 1. Default values for the environment
// 2. Auto-create data dir + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		return nil, nil, err
	}
	if flags.Help || flags.Version {
		return nil, flags, nil
	}

	env := Production
	if strings.ToLower(flags.Environment) == string(Development) {
		env = Development
	}
	cfg := Default(env)

	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	configPath := flags.Config
	if configPath == "" {
		if err := EnsureDataDirs(cfg); err != nil {
			return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
		}
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Flags have the highest precedence.
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. It is idempotent.
func EnsureDataDirs(cfg *Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.LogsDir()} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Environment); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
