package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/Klingon-tech/tip-staking/internal/rewards"
	"github.com/Klingon-tech/tip-staking/internal/token"
	"github.com/Klingon-tech/tip-staking/pkg/crypto"
	"github.com/Klingon-tech/tip-staking/pkg/types"
	"github.com/holiman/uint256"
)

// =============================================================================
// Ledger Rules (defined in genesis)
// A state database initialised from one genesis refuses to open under
// another owner or token.
// =============================================================================

// Genesis describes the token, the staking owner and the initial balances
// a fresh state database is created with.
type Genesis struct {
	ChainID   string `json:"chain_id"`
	Timestamp int64  `json:"timestamp"`

	// Token hosted by the node.
	Token TokenConfig `json:"token"`

	// Owner administers the staking engine (pause, emergency withdraw).
	Owner types.Address `json:"owner"`

	// Initial allocations (address -> balance in base units, decimal).
	Alloc map[string]string `json:"alloc"`

	// RewardPool is minted straight into the staking custody to fund
	// reward payouts (base units, decimal).
	RewardPool string `json:"reward_pool,omitempty"`

	// Staking economics.
	Staking StakingRules `json:"staking"`
}

// TokenConfig describes the staked token.
type TokenConfig struct {
	Name     string        `json:"name"`
	Symbol   string        `json:"symbol"`
	Decimals uint8         `json:"decimals"`
	Creator  types.Address `json:"creator"`
}

// StakingRules holds the engine's economic constants.
type StakingRules struct {
	RewardRate         uint64 `json:"reward_rate"`          // percent per year
	PenaltyRate        uint64 `json:"penalty_rate"`         // percent of principal
	MinLockPeriod      int64  `json:"min_lock_period"`      // seconds
	MinRewardThreshold string `json:"min_reward_threshold"` // base units, informational
}

// Allocation is one genesis balance.
type Allocation struct {
	Address types.Address
	Amount  *uint256.Int
}

// DefaultStakingRules mirrors rewards.DefaultParams.
func DefaultStakingRules() StakingRules {
	p := rewards.DefaultParams()
	return StakingRules{
		RewardRate:         p.RewardRate,
		PenaltyRate:        p.PenaltyRate,
		MinLockPeriod:      p.MinLockPeriod,
		MinRewardThreshold: p.MinRewardThreshold.Dec(),
	}
}

// =============================================================================
// Testnet Identity
//
// Derived from the well-known BIP-39 test mnemonic (DO NOT use on mainnet):
//
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon art
//
// Derivation path: m/44'/8888'/0'/0/0 (no passphrase)
// =============================================================================

const (
	// TestnetMnemonic is the well-known seed phrase for the testnet owner.
	TestnetMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"

	// TestnetOwnerPubKey is the compressed public key (hex) derived from TestnetMnemonic.
	TestnetOwnerPubKey = "030bef68f8657df88098a0546da1712c88b459788bea1a6bbe964004166a25144f"

	// TestnetOwnerPrivKey is the private key (hex) derived from TestnetMnemonic.
	TestnetOwnerPrivKey = "1f0717e6e34acc6721021f4dfed54558ec8452452b6195545d06dd348b220091"
)

// TestnetOwnerAddress returns the address of the testnet owner key.
func TestnetOwnerAddress() types.Address {
	key, err := crypto.PrivateKeyFromHex(TestnetOwnerPrivKey)
	if err != nil {
		panic("config: invalid testnet owner key: " + err.Error())
	}
	defer key.Zero()
	return key.Address()
}

// mainnetOwner controls the mainnet staking engine.
const mainnetOwner = "0x8e3a51f0c2d94b7a6e1f05c3d2b8a9e47c6d1f20"

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	owner := mustAddress(mainnetOwner)
	return &Genesis{
		ChainID:   "tipstaking-mainnet-1",
		Timestamp: 1790035200, // 2026-09-22
		Token: TokenConfig{
			Name:     "TIP Token",
			Symbol:   "TIP",
			Decimals: types.Decimals,
			Creator:  owner,
		},
		Owner: owner,
		Alloc: map[string]string{
			mainnetOwner: types.Tokens(10_000_000).Dec(),
		},
		RewardPool: types.Tokens(1_000_000).Dec(),
		Staking:    DefaultStakingRules(),
	}
}

// TestnetGenesis returns the testnet genesis configuration.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	owner := TestnetOwnerAddress()
	g.ChainID = "tipstaking-testnet-1"
	g.Token.Name = "TIP Testnet Token"
	g.Token.Creator = owner
	g.Owner = owner
	g.Alloc = map[string]string{
		owner.String(): types.Tokens(1_000_000).Dec(),
	}
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// =============================================================================
// Derived values
// =============================================================================

// TokenMetadata returns the token description for the token ledger.
func (g *Genesis) TokenMetadata() *token.Metadata {
	return &token.Metadata{
		Name:     g.Token.Name,
		Symbol:   g.Token.Symbol,
		Decimals: g.Token.Decimals,
		Creator:  g.Token.Creator,
	}
}

// Params converts the staking rules into engine parameters.
func (g *Genesis) Params() (rewards.Params, error) {
	p := rewards.Params{
		RewardRate:         g.Staking.RewardRate,
		PenaltyRate:        g.Staking.PenaltyRate,
		MinLockPeriod:      g.Staking.MinLockPeriod,
		MinRewardThreshold: new(uint256.Int),
	}
	if g.Staking.MinRewardThreshold != "" {
		v, err := types.ParseAmount(g.Staking.MinRewardThreshold)
		if err != nil {
			return rewards.Params{}, fmt.Errorf("min_reward_threshold: %w", err)
		}
		p.MinRewardThreshold = v
	}
	if err := p.Validate(); err != nil {
		return rewards.Params{}, err
	}
	return p, nil
}

// Allocations returns the parsed allocations sorted by address.
func (g *Genesis) Allocations() ([]Allocation, error) {
	out := make([]Allocation, 0, len(g.Alloc))
	for addrStr, amtStr := range g.Alloc {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return nil, fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		if addr.IsZero() {
			return nil, fmt.Errorf("alloc to the zero address")
		}
		amt, err := types.ParseAmount(amtStr)
		if err != nil {
			return nil, fmt.Errorf("alloc %s: %w", addrStr, err)
		}
		out = append(out, Allocation{Address: addr, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Hex() < out[j].Address.Hex()
	})
	return out, nil
}

// RewardPoolAmount returns the parsed reward pool (zero when unset).
func (g *Genesis) RewardPoolAmount() (*uint256.Int, error) {
	if g.RewardPool == "" {
		return new(uint256.Int), nil
	}
	v, err := types.ParseAmount(g.RewardPool)
	if err != nil {
		return nil, fmt.Errorf("reward_pool: %w", err)
	}
	return v, nil
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if g.Owner.IsZero() {
		return fmt.Errorf("owner is required")
	}
	if err := g.TokenMetadata().Validate(); err != nil {
		return err
	}
	if g.Token.Decimals != types.Decimals {
		return fmt.Errorf("token decimals must be %d", types.Decimals)
	}
	if _, err := g.Params(); err != nil {
		return fmt.Errorf("staking: %w", err)
	}

	// Allocations plus the reward pool become the initial supply; the sum
	// must fit 256 bits.
	allocs, err := g.Allocations()
	if err != nil {
		return err
	}
	total, err := g.RewardPoolAmount()
	if err != nil {
		return err
	}
	for _, a := range allocs {
		var overflow bool
		total, overflow = new(uint256.Int).AddOverflow(total, a.Amount)
		if overflow {
			return fmt.Errorf("genesis supply overflows 256 bits")
		}
	}

	return nil
}

// Hash returns a BLAKE3 hash of the genesis configuration.
// Used to detect a state database opened under a different genesis.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}

func mustAddress(s string) types.Address {
	addr, err := types.ParseAddress(s)
	if err != nil {
		panic("config: invalid built-in address " + s)
	}
	return addr
}
