// derive_key.go prints the pubkey and staking address for a key, ready to
// paste into a genesis file as "owner" or an alloc entry.
//
// Usage:
//
//	go run scripts/derive_key.go <keyfile>
//	go run scripts/derive_key.go -mnemonic "word1 ..." [-index N]
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/tip-staking/internal/wallet"
	"github.com/Klingon-tech/tip-staking/pkg/crypto"
)

func main() {
	mnemonic := flag.String("mnemonic", "", "BIP-39 mnemonic instead of a key file")
	index := flag.Uint("index", 0, "Account index under m/44'/8888'/0'/0")
	flag.Parse()

	key, err := loadKey(*mnemonic, uint32(*index), flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer key.Zero()

	pub := key.PublicKey()
	fmt.Printf("pubkey=%s\n", hex.EncodeToString(pub))
	fmt.Printf("address=%s\n", crypto.AddressFromPubKey(pub))
}

func loadKey(mnemonic string, index uint32, args []string) (*crypto.PrivateKey, error) {
	if mnemonic != "" {
		seed, err := wallet.SeedFromMnemonic(wallet.NormalizeMnemonic(mnemonic), "")
		if err != nil {
			return nil, err
		}
		master, err := wallet.NewMasterKey(seed)
		if err != nil {
			return nil, err
		}
		hd, err := master.DeriveAccount(index)
		if err != nil {
			return nil, err
		}
		return hd.Signer()
	}

	if len(args) < 1 {
		return nil, fmt.Errorf("usage: derive_key <keyfile> | -mnemonic \"...\" [-index N]")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, err
	}
	return crypto.PrivateKeyFromHex(strings.TrimSpace(string(data)))
}
