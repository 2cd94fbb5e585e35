// Package mnemonic encodes 16-byte buffers as 12-word BIP-39 phrases and
// back. It renders recovery-phrase Share C and full-seed recovery phrases.
package mnemonic

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/Klingon-tech/klingnet-keyshare/pkg/crypto"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
	"github.com/tyler-smith/go-bip39"
)

// Phrase dimensions.
const (
	EntropySize = 16
	WordCount   = 12
	GroupSize   = 4
)

var (
	wordlist []string
	wordSet  map[string]struct{}
)

func init() {
	wordlist = bip39.GetWordList()
	wordSet = make(map[string]struct{}, len(wordlist))
	for _, w := range wordlist {
		wordSet[w] = struct{}{}
	}
}

// BytesToMnemonic encodes exactly 16 bytes as 12 lowercase words.
func BytesToMnemonic(b []byte) ([]string, error) {
	if len(b) != EntropySize {
		return nil, fmt.Errorf("mnemonic entropy must be %d bytes, got %d: %w", EntropySize, len(b), types.ErrInvalidLength)
	}
	phrase, err := bip39.NewMnemonic(b)
	if err != nil {
		return nil, fmt.Errorf("encode mnemonic: %w", types.ErrInvalidLength)
	}
	return strings.Fields(phrase), nil
}

// MnemonicToBytes decodes 12 words to 16 bytes. Wrong word count, unknown
// words and checksum failures are distinct errors.
func MnemonicToBytes(words []string) ([]byte, error) {
	if err := Validate(words); err != nil {
		return nil, err
	}
	phrase := strings.Join(words, " ")
	entropy, err := bip39.EntropyFromMnemonic(phrase)
	if err != nil {
		return nil, types.ErrChecksumInvalid
	}
	if len(entropy) != EntropySize {
		crypto.Wipe(entropy)
		return nil, types.ErrChecksumInvalid
	}
	return entropy, nil
}

// Validate checks word count and wordlist membership, then the checksum.
func Validate(words []string) error {
	if len(words) != WordCount {
		return fmt.Errorf("got %d words, want %d: %w", len(words), WordCount, types.ErrInvalidWordCount)
	}
	for i, w := range words {
		if !IsWord(w) {
			return fmt.Errorf("word %d: %w", i+1, types.ErrUnknownWord)
		}
	}
	if !bip39.IsMnemonicValid(strings.Join(words, " ")) {
		return types.ErrChecksumInvalid
	}
	return nil
}

// IsWord reports whether w is in the English wordlist.
func IsWord(w string) bool {
	_, ok := wordSet[w]
	return ok
}

// Autocomplete returns up to limit wordlist entries starting with prefix,
// in wordlist order. The prefix is normalized first; empty prefixes match
// nothing.
func Autocomplete(prefix string, limit int) []string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || limit <= 0 {
		return nil
	}
	start := sort.SearchStrings(wordlist, prefix)
	var out []string
	for i := start; i < len(wordlist) && len(out) < limit; i++ {
		if !strings.HasPrefix(wordlist[i], prefix) {
			break
		}
		out = append(out, wordlist[i])
	}
	return out
}

// Normalize folds case and collapses any run of separators (whitespace,
// commas, hyphens, dots, semicolons) into word boundaries.
func Normalize(input string) []string {
	return strings.FieldsFunc(strings.ToLower(input), isSeparator)
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == ',' || r == '-' || r == '.' || r == ';' || r == '_'
}

// Group splits words into display groups of size n.
func Group(words []string, n int) [][]string {
	if n <= 0 {
		n = GroupSize
	}
	var out [][]string
	for i := 0; i < len(words); i += n {
		end := i + n
		if end > len(words) {
			end = len(words)
		}
		out = append(out, words[i:end])
	}
	return out
}

// Wipe clears the slice entries. This is best effort only: Go strings are
// immutable, so the word values themselves stay in memory until collected.
// Only the references held by this slice are dropped.
func Wipe(words []string) {
	for i := range words {
		words[i] = ""
	}
}

// ShareToMnemonic renders a share payload as a phrase. The index is not
// encoded; the caller knows which role the phrase belongs to.
func ShareToMnemonic(s types.Share) ([]string, error) {
	if s.IsZero() {
		return nil, fmt.Errorf("share is empty: %w", types.ErrInvalidShare)
	}
	return BytesToMnemonic(s.Payload())
}

// MnemonicToShare decodes a phrase into the share with the given index.
func MnemonicToShare(words []string, index byte) (types.Share, error) {
	b, err := MnemonicToBytes(words)
	if err != nil {
		return types.Share{}, err
	}
	defer crypto.Wipe(b)
	return types.NewShare(index, b)
}

// SeedToMnemonic renders the full seed as a recovery phrase.
func SeedToMnemonic(seed types.Seed) ([]string, error) {
	return BytesToMnemonic(seed.Bytes())
}

// MnemonicToSeed decodes a full-seed recovery phrase.
func MnemonicToSeed(words []string) (types.Seed, error) {
	b, err := MnemonicToBytes(words)
	if err != nil {
		return types.Seed{}, err
	}
	defer crypto.Wipe(b)
	return types.NewSeed(b)
}

// IsPhraseError reports whether err is one of the phrase validation kinds.
func IsPhraseError(err error) bool {
	return errors.Is(err, types.ErrInvalidWordCount) ||
		errors.Is(err, types.ErrUnknownWord) ||
		errors.Is(err, types.ErrChecksumInvalid)
}
