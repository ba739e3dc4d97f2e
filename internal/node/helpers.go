package node

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/tip-staking/config"
	"github.com/Klingon-tech/tip-staking/internal/storage"
	"github.com/Klingon-tech/tip-staking/internal/token"
	"github.com/Klingon-tech/tip-staking/pkg/types"
)

// genesisKey records the hash of the genesis the database was seeded from.
var genesisKey = []byte("genesis")

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// loadGenesis returns the genesis file named by cfg, or the built-in one
// for the configured network.
func loadGenesis(cfg *config.Config) (*config.Genesis, error) {
	if cfg.Genesis != "" {
		return config.LoadGenesis(expandHome(cfg.Genesis))
	}
	g := config.GenesisFor(cfg.Network)
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("built-in %s genesis: %w", cfg.Network, err)
	}
	return g, nil
}

// openDB opens the node database: Badger under the state dir, or memory.
func openDB(cfg *config.Config) (storage.DB, error) {
	if cfg.DB.InMemory {
		return storage.NewMemory(), nil
	}
	dir := cfg.StateDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	db, err := storage.NewBadger(dir)
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", dir, err)
	}
	return db, nil
}

// checkGenesis binds the database to one genesis. It reports whether the
// database is fresh and still needs the initial allocation.
func checkGenesis(db storage.DB, genesis *config.Genesis) (bool, error) {
	h, err := genesis.Hash()
	if err != nil {
		return false, fmt.Errorf("hash genesis: %w", err)
	}
	stored, err := db.Get(genesisKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return true, nil
	case err != nil:
		return false, fmt.Errorf("read genesis hash: %w", err)
	}
	if !bytes.Equal(stored, h[:]) {
		return false, fmt.Errorf("database was initialized from genesis %x, config points at %s", stored, h)
	}
	return false, nil
}

// seedGenesis mints the allocations and the reward pool, then records the
// genesis hash so later restarts skip this step.
func seedGenesis(db storage.DB, ledger *token.Ledger, genesis *config.Genesis, custody types.Address) error {
	allocs, err := genesis.Allocations()
	if err != nil {
		return err
	}
	for _, a := range allocs {
		if err := ledger.Mint(a.Address, a.Amount); err != nil {
			return fmt.Errorf("mint alloc to %s: %w", a.Address, err)
		}
	}
	pool, err := genesis.RewardPoolAmount()
	if err != nil {
		return err
	}
	if !pool.IsZero() {
		if err := ledger.Mint(custody, pool); err != nil {
			return fmt.Errorf("fund reward pool: %w", err)
		}
	}
	h, err := genesis.Hash()
	if err != nil {
		return fmt.Errorf("hash genesis: %w", err)
	}
	return db.Put(genesisKey, h[:])
}
