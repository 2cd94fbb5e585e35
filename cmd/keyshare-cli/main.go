// keyshare-cli enrolls, recovers and unlocks 2-of-3 split wallets, and
// exposes the share, phrase and address primitives for scripting.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Klingon-tech/klingnet-keyshare/config"
	"github.com/Klingon-tech/klingnet-keyshare/internal/capability"
	"github.com/Klingon-tech/klingnet-keyshare/internal/custody"
	"github.com/Klingon-tech/klingnet-keyshare/internal/devicebind"
	"github.com/Klingon-tech/klingnet-keyshare/internal/flow"
	"github.com/Klingon-tech/klingnet-keyshare/internal/kdf"
	"github.com/Klingon-tech/klingnet-keyshare/internal/log"
	"github.com/Klingon-tech/klingnet-keyshare/internal/metrics"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
	"golang.org/x/term"
)

var version = "dev"

func main() {
	cfg, flags, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		usage()
		os.Exit(1)
	}
	if flags.Help {
		usage()
		return
	}
	if flags.Version {
		fmt.Printf("keyshare-cli %s\n", version)
		return
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fatal("init logging: %v", err)
	}

	args := flags.Args
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	// Offline primitives
	case "split":
		cmdSplit(cmdArgs)
	case "combine":
		cmdCombine(cmdArgs)
	case "phrase":
		cmdPhrase(cmdArgs)
	case "address":
		cmdAddress(cmdArgs)

	// Flows
	case "capabilities", "enroll", "recover", "unlock", "users", "kdf-bench":
		a := newApp(cfg)
		atExit(a.close)
		defer runExitHooks()
		switch cmd {
		case "capabilities":
			cmdCapabilities(ctx, a, cmdArgs)
		case "enroll":
			cmdEnroll(ctx, a, cmdArgs)
		case "recover":
			cmdRecover(ctx, a, cmdArgs)
		case "unlock":
			cmdUnlock(ctx, a, cmdArgs)
		case "users":
			cmdUsers(a)
		case "kdf-bench":
			cmdKdfBench(ctx, a, cmdArgs)
		}

	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: keyshare-cli [global flags] <command> [flags]

Commands:
  capabilities [--refresh]                Probe required platform features
  enroll --user <id>                      Create a wallet and print its recovery phrase
  recover --user <id>                     Restore a wallet from its recovery phrase
  unlock --user <id> [--passkey] [--sign <msg>]
                                          Rebuild the keypair from password and Share B
  users                                   List enrolled users
  kdf-bench [--runs <n>]                  Time Argon2id with the configured parameters

  split <seed-hex>                        Split a 16-byte seed into three shares
  combine <share-hex> <share-hex>         Rebuild a seed from two shares
  phrase encode <hex>                     Encode 16 bytes as a 12-word phrase
  phrase decode <words...>                Decode a 12-word phrase to hex
  phrase complete <prefix>                List wordlist completions
  address <seed-hex>                      Derive the public key and address

Global flags:
`)
	config.PrintUsage(os.Stderr)
}

// recordStore is a custodian the CLI can list and close.
type recordStore interface {
	custody.Custodian
	List() ([]string, error)
	Close() error
}

// app holds the collaborators for the flow commands.
type app struct {
	cfg       *config.Config
	metrics   *metrics.Metrics
	auth      *devicebind.SoftwareAuthenticator
	custodian recordStore
	offloader *kdf.Offloader
	deps      flow.Deps
}

func newApp(cfg *config.Config) *app {
	var custodian recordStore
	var err error
	switch cfg.Custody.Backend {
	case config.CustodyBadger:
		custodian, err = custody.OpenBadger(cfg.CustodyDir())
	default:
		custodian, err = custody.NewFile(cfg.CustodyDir())
	}
	if err != nil {
		fatal("open custody: %v", err)
	}

	auth := devicebind.NewSoftwareAuthenticator()
	if cfg.Environment == config.Development {
		if err := auth.LoadCredentials(cfg.AuthenticatorFile()); err != nil {
			fatal("load authenticator: %v", err)
		}
	} else {
		log.Device.Warn().Msg("software authenticator credentials are not persisted outside development; passkey unlock only works in this process")
	}

	m := metrics.New()
	offloader := kdf.New(cfg.KDF.Options(m))
	binder := devicebind.NewBinder(auth, cfg.BinderConfig())

	return &app{
		cfg:       cfg,
		metrics:   m,
		auth:      auth,
		custodian: custodian,
		offloader: offloader,
		deps: flow.Deps{
			Custodian:    custodian,
			Binder:       binder,
			KDF:          offloader,
			Capabilities: capability.NewCache(capability.NewDetector(auth)),
			KdfParams:    cfg.KDF.Params(),
			Metrics:      m,
		},
	}
}

// saveCredentials persists new passkeys in development.
func (a *app) saveCredentials() {
	if a.cfg.Environment != config.Development {
		return
	}
	if err := a.auth.SaveCredentials(a.cfg.AuthenticatorFile()); err != nil {
		fatal("save authenticator: %v", err)
	}
}

func (a *app) close() {
	a.offloader.Close()
	if err := a.custodian.Close(); err != nil {
		log.Custody.Error().Err(err).Msg("close custody")
	}
}

// ── Input helpers ───────────────────────────────────────────────────────

var stdin = bufio.NewReader(os.Stdin)

// readPassword reads a line without echo. Piped input is read as a
// plain line.
func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			return nil, err
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

// readNewPassword prompts twice and checks both entries match.
func readNewPassword() []byte {
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	defer crypto.Wipe(confirm)
	if string(password) != string(confirm) {
		crypto.Wipe(password)
		fatal("passwords do not match")
	}
	return password
}

func decodeHexArg(name, s string) []byte {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		fatal("%s: invalid hex: %v", name, err)
	}
	return b
}

// ── Error helper ────────────────────────────────────────────────────────

var exitHooks []func()

// atExit registers fn to run before the process exits, including through
// fatal. Badger only flushes on close.
func atExit(fn func()) {
	exitHooks = append(exitHooks, fn)
}

func runExitHooks() {
	for i := len(exitHooks) - 1; i >= 0; i-- {
		exitHooks[i]()
	}
	exitHooks = nil
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	runExitHooks()
	os.Exit(1)
}
