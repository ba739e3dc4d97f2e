package main

import (
	"flag"
	"fmt"

	"github.com/Klingon-tech/tip-staking/internal/wallet"
)

// ── wallet ──────────────────────────────────────────────────────────────

func cmdWallet(args []string, ksDir string) {
	if len(args) < 1 {
		fatal("Usage: tipstaking-cli wallet <create|import|list|address|new-address> [flags]")
	}

	switch args[0] {
	case "create":
		cmdWalletCreate(args[1:], ksDir)
	case "import":
		cmdWalletImport(args[1:], ksDir)
	case "list":
		cmdWalletList(ksDir)
	case "address":
		cmdWalletAddress(args[1:], ksDir)
	case "new-address":
		cmdWalletNewAddress(args[1:], ksDir)
	default:
		fatal("Unknown wallet command: %s\nUsage: tipstaking-cli wallet <create|import|list|address|new-address> [flags]", args[0])
	}
}

func cmdWalletCreate(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet create", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: tipstaking-cli wallet create --name <name>")
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		fatal("generate mnemonic: %v", err)
	}

	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", mnemonic)

	createWallet(*name, mnemonic, ksDir)
}

func cmdWalletImport(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet import", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic (12 or 24 words)")
	fs.Parse(args)

	if *name == "" || *mnemonic == "" {
		fatal("Usage: tipstaking-cli wallet import --name <name> --mnemonic \"word1 word2 ...\"")
	}
	phrase := wallet.NormalizeMnemonic(*mnemonic)
	if !wallet.ValidateMnemonic(phrase) {
		fatal("invalid mnemonic")
	}

	createWallet(*name, phrase, ksDir)
}

// createWallet encrypts the seed of mnemonic under a prompted password and
// records account 0.
func createWallet(name, mnemonic, ksDir string) {
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}

	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}

	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("create keystore: %v", err)
	}
	if err := ks.Create(name, seed, password, wallet.DefaultParams()); err != nil {
		fatal("create wallet: %v", err)
	}

	// Zero seed.
	for i := range seed {
		seed[i] = 0
	}

	acct, err := ks.NewAccount(name, password, "Default")
	if err != nil {
		fatal("add account: %v", err)
	}

	fmt.Printf("\nWallet created: %s\n", name)
	fmt.Printf("Address: %s\n", acct.Address)
}

func cmdWalletList(ksDir string) {
	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	names, err := ks.List()
	if err != nil {
		fatal("list wallets: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No wallets found.")
		return
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func cmdWalletAddress(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet address", flag.ExitOnError)
	name := fs.String("wallet", "", "Wallet name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: tipstaking-cli wallet address --wallet <name>")
	}

	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	accounts, err := ks.ListAccounts(*name)
	if err != nil {
		fatal("list accounts: %v", err)
	}
	for _, a := range accounts {
		fmt.Printf("  [%d] %s  %s\n", a.Index, a.Address, a.Name)
	}
}

func cmdWalletNewAddress(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet new-address", flag.ExitOnError)
	name := fs.String("wallet", "", "Wallet name")
	label := fs.String("label", "", "Account label")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: tipstaking-cli wallet new-address --wallet <name> [--label <label>]")
	}

	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	acct, err := ks.NewAccount(*name, password, *label)
	if err != nil {
		fatal("new address: %v", err)
	}
	fmt.Printf("[%d] %s\n", acct.Index, acct.Address)
}
