// Package wallet derives and stores the secp256k1 keys that sign staking
// requests: BIP-39 mnemonics, BIP-32/44 HD keys and an encrypted keystore.
package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

const (
	// MnemonicEntropyBits gives 24-word mnemonics.
	MnemonicEntropyBits = 256
	// SeedSize is the BIP-39 seed length in bytes.
	SeedSize = 64
)

// ErrInvalidMnemonic is returned for phrases with unknown words or a bad
// checksum.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// GenerateMnemonic creates a new 24-word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// NormalizeMnemonic lowercases a pasted phrase and collapses whitespace,
// so line breaks and double spaces do not change the seed.
func NormalizeMnemonic(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// ValidateMnemonic checks word list membership and the checksum.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// SeedFromMnemonic derives the wallet seed from a normalized mnemonic and
// an optional passphrase.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return seed, nil
}
