package wallet

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testKeystore(t *testing.T) *Keystore {
	t.Helper()
	dir := t.TempDir()
	ks, err := NewKeystore(dir)
	if err != nil {
		t.Fatalf("NewKeystore() error: %v", err)
	}
	return ks
}

func testSeedBytes(t *testing.T) []byte {
	t.Helper()
	mnemonic := "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	seed, err := SeedFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	return seed
}

func TestKeystore_CreateAndLoad(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)
	password := []byte("test-password")

	err := ks.Create("mywallet", seed, password, fastParams())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	loaded, err := ks.Load("mywallet", password)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if !bytes.Equal(loaded, seed) {
		t.Error("loaded seed does not match original")
	}
}

func TestKeystore_CreateDuplicate(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)

	err := ks.Create("dup", seed, []byte("pass"), fastParams())
	if err != nil {
		t.Fatalf("first Create() error: %v", err)
	}

	err = ks.Create("dup", seed, []byte("pass"), fastParams())
	if err == nil {
		t.Error("second Create() should fail for duplicate name")
	}
}

func TestKeystore_LoadWrongPassword(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)

	ks.Create("wallet", seed, []byte("correct"), fastParams())

	_, err := ks.Load("wallet", []byte("wrong"))
	if !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Load() with wrong password err = %v, want ErrWrongPassword", err)
	}
}

func TestKeystore_SeedBoundToWalletName(t *testing.T) {
	ks := testKeystore(t)
	password := []byte("p")
	if err := ks.Create("savings", testSeedBytes(t), password, fastParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	data, err := os.ReadFile(ks.walletPath("savings"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ks.walletPath("spending"), data, 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := ks.Load("spending", password); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Load() of copied wallet err = %v, want ErrWrongPassword", err)
	}
	if _, err := ks.Load("savings", password); err != nil {
		t.Errorf("Load() of original wallet: %v", err)
	}
}

func TestKeystore_RejectsOldVersion(t *testing.T) {
	ks := testKeystore(t)
	old := []byte(`{"version":1,"encrypted_seed":"","accounts":[],"next_index":0}`)
	if err := os.WriteFile(ks.walletPath("legacy"), old, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ks.Load("legacy", []byte("p")); err == nil {
		t.Error("Load() of a version 1 wallet should fail")
	}
}

func TestKeystore_LoadNonexistent(t *testing.T) {
	ks := testKeystore(t)

	_, err := ks.Load("doesnotexist", []byte("pass"))
	if err == nil {
		t.Error("Load() for nonexistent wallet should fail")
	}
}

func TestKeystore_List(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)

	// Empty at first.
	names, err := ks.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected 0 wallets, got %d", len(names))
	}

	// Create two wallets.
	ks.Create("alpha", seed, []byte("p"), fastParams())
	ks.Create("beta", seed, []byte("p"), fastParams())

	names, err = ks.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("expected 2 wallets, got %d", len(names))
	}
}

func TestKeystore_Delete(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)

	ks.Create("todelete", seed, []byte("p"), fastParams())

	err := ks.Delete("todelete")
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	// Should be gone.
	_, err = ks.Load("todelete", []byte("p"))
	if err == nil {
		t.Error("wallet should be deleted")
	}
}

func TestKeystore_DeleteNonexistent(t *testing.T) {
	ks := testKeystore(t)

	err := ks.Delete("ghost")
	if err == nil {
		t.Error("Delete() for nonexistent wallet should fail")
	}
}

func TestKeystore_AddAccount(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)

	ks.Create("wallet", seed, []byte("p"), fastParams())

	err := ks.AddAccount("wallet", AccountEntry{
		Index:   0,
		Name:    "default",
		Address: "abcdef0123456789abcdef0123456789abcdef01",
	})
	if err != nil {
		t.Fatalf("AddAccount() error: %v", err)
	}

	accounts, err := ks.ListAccounts("wallet")
	if err != nil {
		t.Fatalf("ListAccounts() error: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
	if accounts[0].Name != "default" {
		t.Errorf("account name = %q, want %q", accounts[0].Name, "default")
	}
}

func TestKeystore_AddAccountDuplicateIndex(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)

	ks.Create("wallet", seed, []byte("p"), fastParams())

	ks.AddAccount("wallet", AccountEntry{Index: 0, Name: "first", Address: "aa"})

	err := ks.AddAccount("wallet", AccountEntry{Index: 0, Name: "second", Address: "bb"})
	if err == nil {
		t.Error("should reject duplicate account index")
	}
}

func TestKeystore_FilePermissions(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)

	ks.Create("secure", seed, []byte("p"), fastParams())

	path := filepath.Join(ks.path, "secure.wallet")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}

	perm := info.Mode().Perm()
	if perm&0077 != 0 {
		t.Errorf("wallet file should be 0600, got %o", perm)
	}
}

func TestKeystore_NextIndex(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)

	ks.Create("wallet", seed, []byte("p"), fastParams())

	idx, err := ks.NextIndex("wallet")
	if err != nil {
		t.Fatalf("NextIndex: %v", err)
	}
	if idx != 0 {
		t.Errorf("initial index = %d, want 0", idx)
	}

	ks.AddAccount("wallet", AccountEntry{Index: 0, Name: "a", Address: "aa"})
	ks.AddAccount("wallet", AccountEntry{Index: 4, Name: "b", Address: "bb"})
	ks.AddAccount("wallet", AccountEntry{Index: 2, Name: "c", Address: "cc"})

	idx, _ = ks.NextIndex("wallet")
	if idx != 5 {
		t.Errorf("index = %d, want 5", idx)
	}
}

func TestKeystore_NextIndex_Nonexistent(t *testing.T) {
	ks := testKeystore(t)

	if _, err := ks.NextIndex("nope"); err == nil {
		t.Error("NextIndex for nonexistent wallet should fail")
	}
}

func TestKeystore_NewAccount(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)
	password := []byte("p")
	ks.Create("wallet", seed, password, fastParams())

	first, err := ks.NewAccount("wallet", password, "")
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	if first.Index != 0 || first.Name != "account-0" {
		t.Errorf("first = %+v", first)
	}

	second, err := ks.NewAccount("wallet", password, "savings")
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	if second.Index != 1 || second.Name != "savings" {
		t.Errorf("second = %+v", second)
	}
	if first.Address == second.Address {
		t.Error("accounts should have distinct addresses")
	}

	master, _ := NewMasterKey(seed)
	key, _ := master.DeriveAccount(1)
	if second.Address != key.Address().String() {
		t.Errorf("address = %s, want %s", second.Address, key.Address())
	}

	if _, err := ks.NewAccount("wallet", []byte("wrong"), ""); err == nil {
		t.Error("NewAccount with wrong password should fail")
	}
}

func TestKeystore_Signer(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)
	password := []byte("p")
	ks.Create("wallet", seed, password, fastParams())

	acct, err := ks.NewAccount("wallet", password, "")
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}

	key, err := ks.Signer("wallet", password, acct.Index)
	if err != nil {
		t.Fatalf("Signer: %v", err)
	}
	if key.Address().String() != acct.Address {
		t.Errorf("signer address = %s, want %s", key.Address(), acct.Address)
	}

	if _, err := ks.Signer("wallet", password, 7); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("unknown index: got %v, want ErrAccountNotFound", err)
	}
	if _, err := ks.Signer("wallet", []byte("wrong"), acct.Index); err == nil {
		t.Error("Signer with wrong password should fail")
	}
}

func TestKeystore_SignerAddressMismatch(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)
	password := []byte("p")
	ks.Create("wallet", seed, password, fastParams())

	ks.AddAccount("wallet", AccountEntry{
		Index:   0,
		Name:    "tampered",
		Address: "0x0000000000000000000000000000000000000001",
	})

	if _, err := ks.Signer("wallet", password, 0); err == nil {
		t.Error("Signer should reject a recorded address that does not match the derived key")
	}
}

func TestKeystore_Exists(t *testing.T) {
	ks := testKeystore(t)
	if ks.Exists("w") {
		t.Error("Exists before Create")
	}
	ks.Create("w", testSeedBytes(t), []byte("p"), fastParams())
	if !ks.Exists("w") {
		t.Error("Exists after Create")
	}
}

func TestKeystore_FullFlow(t *testing.T) {
	ks := testKeystore(t)
	password := []byte("strong-password")

	// Generate mnemonic and seed.
	mnemonic, _ := GenerateMnemonic()
	seed, _ := SeedFromMnemonic(mnemonic, "")

	// Create wallet.
	err := ks.Create("main", seed, password, fastParams())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// Derive address and add account.
	master, _ := NewMasterKey(seed)
	key, _ := master.DeriveAddress(0, ChangeExternal, 0)
	addr := key.Address()

	err = ks.AddAccount("main", AccountEntry{
		Index:   0,
		Name:    "default",
		Address: addr.String(),
	})
	if err != nil {
		t.Fatalf("AddAccount() error: %v", err)
	}

	// Reload and verify seed matches.
	loaded, err := ks.Load("main", password)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !bytes.Equal(loaded, seed) {
		t.Error("loaded seed mismatch")
	}

	// Verify accounts persisted.
	accounts, _ := ks.ListAccounts("main")
	if len(accounts) != 1 || accounts[0].Address != addr.String() {
		t.Error("account not persisted correctly")
	}
}
