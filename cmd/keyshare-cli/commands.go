package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Klingon-tech/klingnet-keyshare/internal/flow"
	"github.com/Klingon-tech/klingnet-keyshare/internal/mnemonic"
	"github.com/Klingon-tech/klingnet-keyshare/internal/shamir"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
)

// ── capabilities ────────────────────────────────────────────────────────

func cmdCapabilities(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("capabilities", flag.ExitOnError)
	refresh := fs.Bool("refresh", false, "Probe again instead of using the cached report")
	fs.Parse(args)

	report := a.deps.Capabilities.Get(ctx, *refresh)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fatal("encode report: %v", err)
	}
	fmt.Println(string(data))
	if !report.AllSupported {
		fatal("%s", report.MissingMessage())
	}
}

// ── enroll ──────────────────────────────────────────────────────────────

func cmdEnroll(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("enroll", flag.ExitOnError)
	user := fs.String("user", "", "User ID")
	fs.Parse(args)

	if *user == "" {
		fatal("Usage: keyshare-cli enroll --user <id>")
	}

	enroller, err := flow.NewEnroller(a.deps)
	if err != nil {
		fatal("%v", err)
	}

	password := readNewPassword()
	defer crypto.Wipe(password)

	run, err := enroller.Enroll(ctx, flow.EnrollRequest{UserID: *user, Password: password})
	if err != nil {
		fatal("%v", err)
	}
	a.saveCredentials()

	phrase, err := run.RecoveryPhrase()
	if err != nil {
		fatal("%v", err)
	}
	printPhrase("Recovery phrase (write this down!):", phrase)
	mnemonic.Wipe(phrase)
	if err := run.Acknowledge(); err != nil {
		fatal("%v", err)
	}

	res := run.Result()
	fmt.Printf("\nWallet enrolled: %s\n", res.UserID)
	fmt.Printf("Address:    %s\n", res.Address)
	fmt.Printf("Public key: %s\n", hex.EncodeToString(res.PublicKey[:]))
	fmt.Printf("Passkey:    %s\n", hex.EncodeToString(res.CredentialID))
}

// ── recover ─────────────────────────────────────────────────────────────

func cmdRecover(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("recover", flag.ExitOnError)
	user := fs.String("user", "", "User ID")
	fs.Parse(args)

	if *user == "" {
		fatal("Usage: keyshare-cli recover --user <id>")
	}

	recoverer, err := flow.NewRecoverer(a.deps)
	if err != nil {
		fatal("%v", err)
	}

	raw, err := readPassword("Enter recovery phrase: ")
	if err != nil {
		fatal("read phrase: %v", err)
	}
	words := mnemonic.Normalize(string(raw))
	crypto.Wipe(raw)
	defer mnemonic.Wipe(words)
	if err := mnemonic.Validate(words); err != nil {
		fatal("%v", err)
	}

	fmt.Fprintln(os.Stderr, "Choose a new password.")
	password := readNewPassword()
	defer crypto.Wipe(password)

	run, err := recoverer.Recover(ctx, flow.RecoverRequest{UserID: *user, Phrase: words, NewPassword: password})
	if err != nil {
		fatal("%v", err)
	}
	a.saveCredentials()

	phrase, err := run.NewRecoveryPhrase()
	if err != nil {
		fatal("%v", err)
	}
	printPhrase("New recovery phrase (the old one no longer works):", phrase)
	mnemonic.Wipe(phrase)
	if err := run.Acknowledge(); err != nil {
		fatal("%v", err)
	}

	res := run.Result()
	fmt.Printf("\nWallet recovered: %s\n", res.UserID)
	fmt.Printf("Address: %s\n", res.Address)
}

// ── unlock ──────────────────────────────────────────────────────────────

func cmdUnlock(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("unlock", flag.ExitOnError)
	user := fs.String("user", "", "User ID")
	passkey := fs.Bool("passkey", false, "Take Share B from the passkey instead of the custodian")
	sign := fs.String("sign", "", "Sign this message with the unlocked key")
	fs.Parse(args)

	if *user == "" {
		fatal("Usage: keyshare-cli unlock --user <id> [--passkey] [--sign <msg>]")
	}

	unlocker, err := flow.NewUnlocker(a.deps, a.cfg.Unlock.AttemptsPerMinute)
	if err != nil {
		fatal("%v", err)
	}

	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	defer crypto.Wipe(password)

	kp, err := unlocker.Unlock(ctx, flow.UnlockRequest{UserID: *user, Password: password, UsePasskey: *passkey})
	if err != nil {
		if errors.Is(err, types.ErrAuthenticationFailed) {
			fatal("wrong password")
		}
		fatal("%v", err)
	}
	defer kp.Wipe()

	pk := kp.PublicKey()
	fmt.Printf("Address:    %s\n", kp.Address())
	fmt.Printf("Public key: %s\n", hex.EncodeToString(pk[:]))

	if *sign != "" {
		sig, err := kp.Sign([]byte(*sign))
		if err != nil {
			fatal("sign: %v", err)
		}
		fmt.Printf("Signature:  %s\n", hex.EncodeToString(sig))
	}
}

// ── users ───────────────────────────────────────────────────────────────

func cmdUsers(a *app) {
	users, err := a.custodian.List()
	if err != nil {
		fatal("%v", err)
	}
	if len(users) == 0 {
		fmt.Println("No enrolled users.")
		return
	}
	ctx := context.Background()
	for _, u := range users {
		rec, err := a.custodian.Fetch(ctx, u)
		if err != nil {
			fatal("%v", err)
		}
		binding := "password only"
		if rec.HasDeviceBinding() {
			binding = "password + passkey"
		}
		fmt.Printf("  %-24s %s  (%s, enrolled %s)\n", u, rec.Address, binding, rec.CreatedAt.Format(time.RFC3339))
	}
}

// ── kdf-bench ───────────────────────────────────────────────────────────

func cmdKdfBench(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("kdf-bench", flag.ExitOnError)
	runs := fs.Int("runs", 3, "Number of derivations")
	fs.Parse(args)

	if *runs < 1 {
		fatal("--runs must be at least 1")
	}
	params := a.deps.KdfParams
	fmt.Printf("Argon2id: memory=%d KiB iterations=%d parallelism=%d\n", params.MemoryKiB, params.Iterations, params.Parallelism)

	password := []byte("kdf-bench")
	var total time.Duration
	for i := 0; i < *runs; i++ {
		salt, err := crypto.GenerateArgon2Salt()
		if err != nil {
			fatal("%v", err)
		}
		start := time.Now()
		key, err := a.offloader.Derive(ctx, password, salt, params)
		if err != nil {
			fatal("derive: %v", err)
		}
		elapsed := time.Since(start)
		key.Wipe()
		total += elapsed
		fmt.Printf("  run %d: %s\n", i+1, elapsed.Round(time.Millisecond))
	}
	fmt.Printf("Mean: %s\n", (total / time.Duration(*runs)).Round(time.Millisecond))
}

// ── split / combine ─────────────────────────────────────────────────────

func cmdSplit(args []string) {
	if len(args) != 1 {
		fatal("Usage: keyshare-cli split <seed-hex>")
	}
	raw := decodeHexArg("seed", args[0])
	seed, err := types.NewSeed(raw)
	crypto.Wipe(raw)
	if err != nil {
		fatal("seed: %v", err)
	}
	defer seed.Wipe()

	shares, err := shamir.Split(seed)
	if err != nil {
		fatal("split: %v", err)
	}
	defer shares.Wipe()

	fmt.Printf("Share A: %s\n", shamir.EncodeHex(shares.A))
	fmt.Printf("Share B: %s\n", shamir.EncodeHex(shares.B))
	fmt.Printf("Share C: %s\n", shamir.EncodeHex(shares.C))

	phrase, err := mnemonic.ShareToMnemonic(shares.C)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Share C phrase: %s\n", strings.Join(phrase, " "))
	mnemonic.Wipe(phrase)
}

func cmdCombine(args []string) {
	if len(args) != 2 {
		fatal("Usage: keyshare-cli combine <share-hex> <share-hex>")
	}
	x, err := shamir.DecodeHex(args[0])
	if err != nil {
		fatal("first share: %v", err)
	}
	defer x.Wipe()
	y, err := shamir.DecodeHex(args[1])
	if err != nil {
		fatal("second share: %v", err)
	}
	defer y.Wipe()

	seed, err := shamir.Combine(x, y)
	if err != nil {
		fatal("combine: %v", err)
	}
	defer seed.Wipe()
	kp, err := crypto.DeriveKeypair(seed)
	if err != nil {
		fatal("%v", err)
	}
	defer kp.Wipe()

	fmt.Printf("Seed:    %s\n", hex.EncodeToString(seed.Bytes()))
	fmt.Printf("Address: %s\n", kp.Address())
}

// ── phrase ──────────────────────────────────────────────────────────────

func cmdPhrase(args []string) {
	if len(args) < 1 {
		fatal("Usage: keyshare-cli phrase <encode|decode|complete> ...")
	}

	switch args[0] {
	case "encode":
		if len(args) != 2 {
			fatal("Usage: keyshare-cli phrase encode <hex>")
		}
		raw := decodeHexArg("entropy", args[1])
		defer crypto.Wipe(raw)
		words, err := mnemonic.BytesToMnemonic(raw)
		if err != nil {
			fatal("%v", err)
		}
		printPhrase("", words)
		mnemonic.Wipe(words)
	case "decode":
		if len(args) < 2 {
			fatal("Usage: keyshare-cli phrase decode <words...>")
		}
		words := mnemonic.Normalize(strings.Join(args[1:], " "))
		defer mnemonic.Wipe(words)
		raw, err := mnemonic.MnemonicToBytes(words)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println(hex.EncodeToString(raw))
		crypto.Wipe(raw)
	case "complete":
		if len(args) != 2 {
			fatal("Usage: keyshare-cli phrase complete <prefix>")
		}
		for _, w := range mnemonic.Autocomplete(args[1], 10) {
			fmt.Println(w)
		}
	default:
		fatal("Unknown phrase command: %s\nUsage: keyshare-cli phrase <encode|decode|complete> ...", args[0])
	}
}

func printPhrase(title string, words []string) {
	if title != "" {
		fmt.Println(title)
	}
	n := 1
	for _, group := range mnemonic.Group(words, 0) {
		var line []string
		for _, w := range group {
			line = append(line, fmt.Sprintf("%2d. %-10s", n, w))
			n++
		}
		fmt.Printf("  %s\n", strings.TrimRight(strings.Join(line, " "), " "))
	}
}

// ── address ─────────────────────────────────────────────────────────────

func cmdAddress(args []string) {
	if len(args) != 1 {
		fatal("Usage: keyshare-cli address <seed-hex>")
	}
	raw := decodeHexArg("seed", args[0])
	seed, err := types.NewSeed(raw)
	crypto.Wipe(raw)
	if err != nil {
		fatal("seed: %v", err)
	}
	defer seed.Wipe()

	kp, err := crypto.DeriveKeypair(seed)
	if err != nil {
		fatal("%v", err)
	}
	defer kp.Wipe()

	pk := kp.PublicKey()
	fmt.Printf("Public key: %s\n", hex.EncodeToString(pk[:]))
	fmt.Printf("Address:    %s\n", kp.Address())
}
