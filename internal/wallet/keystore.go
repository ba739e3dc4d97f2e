package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Klingon-tech/tip-staking/pkg/crypto"
	"github.com/Klingon-tech/tip-staking/pkg/types"
)

// ErrAccountNotFound is returned when a wallet has no account at an index.
var ErrAccountNotFound = errors.New("account not found")

// keystoreVersion is the on-disk format; version 2 seals seeds bound to
// their wallet name.
const keystoreVersion = 2

// sealBinding ties a wallet's sealed seed to its name, so a seed file
// copied under another name does not open.
func sealBinding(name string) []byte {
	return []byte("tipstaking/keystore/" + name)
}

// keystoreFile is the on-disk JSON format for an encrypted wallet.
type keystoreFile struct {
	Version       int            `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	EncryptedSeed []byte         `json:"encrypted_seed"`
	Accounts      []AccountEntry `json:"accounts"`
	NextIndex     uint32         `json:"next_index"`
}

// AccountEntry stores metadata for a derived staking identity.
// Keys live at m/44'/8888'/0'/0/Index.
type AccountEntry struct {
	Index   uint32 `json:"index"`
	Name    string `json:"name"`
	Address string `json:"address"` // 0x-prefixed hex
}

// Keystore manages encrypted key storage on disk.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+".wallet")
}

// Exists reports whether a wallet file with the given name exists.
func (ks *Keystore) Exists(name string) bool {
	_, err := os.Stat(ks.walletPath(name))
	return err == nil
}

// Create creates a new encrypted wallet file from a mnemonic seed.
func (ks *Keystore) Create(name string, seed, password []byte, params EncryptionParams) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("wallet %q already exists", name)
	}

	encrypted, err := Seal(seed, password, sealBinding(name), params)
	if err != nil {
		return fmt.Errorf("seal seed: %w", err)
	}

	kf := keystoreFile{
		Version:       keystoreVersion,
		CreatedAt:     time.Now().UTC(),
		EncryptedSeed: encrypted,
		Accounts:      []AccountEntry{},
	}

	return ks.writeFile(path, &kf)
}

// Load decrypts a wallet and returns the seed bytes.
func (ks *Keystore) Load(name string, password []byte) ([]byte, error) {
	kf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return nil, err
	}

	seed, err := Open(kf.EncryptedSeed, password, sealBinding(name))
	if err != nil {
		return nil, fmt.Errorf("unlock wallet %q: %w", name, err)
	}

	return seed, nil
}

// AddAccount records a derived account in the wallet metadata and advances
// the next index past it. Re-adding the same index and address is a no-op.
func (ks *Keystore) AddAccount(walletName string, acct AccountEntry) error {
	path := ks.walletPath(walletName)
	kf, err := ks.readFile(path)
	if err != nil {
		return err
	}

	for _, existing := range kf.Accounts {
		if existing.Index == acct.Index {
			if existing.Address == acct.Address {
				return nil
			}
			return fmt.Errorf("account index %d already exists", acct.Index)
		}
		if existing.Address != "" && existing.Address == acct.Address {
			return nil
		}
	}

	kf.Accounts = append(kf.Accounts, acct)
	if acct.Index >= kf.NextIndex {
		kf.NextIndex = acct.Index + 1
	}
	return ks.writeFile(path, kf)
}

// ListAccounts returns the account entries for a wallet.
func (ks *Keystore) ListAccounts(walletName string) ([]AccountEntry, error) {
	kf, err := ks.readFile(ks.walletPath(walletName))
	if err != nil {
		return nil, err
	}
	return kf.Accounts, nil
}

// NextIndex returns the index the next new account will be derived at.
func (ks *Keystore) NextIndex(name string) (uint32, error) {
	kf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return 0, err
	}
	return kf.NextIndex, nil
}

// NewAccount derives the next account from the decrypted seed, records it and
// returns the entry.
func (ks *Keystore) NewAccount(walletName string, password []byte, label string) (AccountEntry, error) {
	seed, err := ks.Load(walletName, password)
	if err != nil {
		return AccountEntry{}, err
	}
	defer zero(seed)
	idx, err := ks.NextIndex(walletName)
	if err != nil {
		return AccountEntry{}, err
	}
	master, err := NewMasterKey(seed)
	if err != nil {
		return AccountEntry{}, err
	}
	key, err := master.DeriveAccount(idx)
	if err != nil {
		return AccountEntry{}, err
	}
	if label == "" {
		label = fmt.Sprintf("account-%d", idx)
	}
	acct := AccountEntry{Index: idx, Name: label, Address: key.Address().String()}
	if err := ks.AddAccount(walletName, acct); err != nil {
		return AccountEntry{}, err
	}
	return acct, nil
}

// Signer decrypts the wallet and returns the private key for the recorded
// account at index.
func (ks *Keystore) Signer(walletName string, password []byte, index uint32) (*crypto.PrivateKey, error) {
	accounts, err := ks.ListAccounts(walletName)
	if err != nil {
		return nil, err
	}
	var entry *AccountEntry
	for i := range accounts {
		if accounts[i].Index == index {
			entry = &accounts[i]
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: wallet %q index %d", ErrAccountNotFound, walletName, index)
	}

	seed, err := ks.Load(walletName, password)
	if err != nil {
		return nil, err
	}
	defer zero(seed)
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	key, err := master.DeriveAccount(index)
	if err != nil {
		return nil, err
	}
	want, err := types.ParseAddress(entry.Address)
	if err != nil {
		return nil, fmt.Errorf("wallet %q: bad address for index %d: %w", walletName, index, err)
	}
	if key.Address() != want {
		return nil, fmt.Errorf("wallet %q: index %d derives %s, recorded %s", walletName, index, key.Address(), want)
	}
	return key.Signer()
}

// List returns the names of all wallet files in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".wallet" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("wallet %q not found", name)
	}
	return os.Remove(path)
}

func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) readFile(path string) (*keystoreFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	return &kf, nil
}
