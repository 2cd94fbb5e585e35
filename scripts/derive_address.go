// derive_address.go prints the pubkey and address for a hex-encoded seed file.
// Usage: go run scripts/derive_address.go <seedfile>
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_address <seedfile>")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	seedBytes, err := hex.DecodeString(strings.TrimSpace(string(data)))
	crypto.Wipe(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	seed, err := types.NewSeed(seedBytes)
	crypto.Wipe(seedBytes)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	kp, err := crypto.DeriveKeypair(seed)
	seed.Wipe()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer kp.Wipe()
	pub := kp.PublicKey()
	fmt.Printf("pubkey=%s\n", hex.EncodeToString(pub[:]))
	fmt.Printf("address=%s\n", kp.Address())
}
