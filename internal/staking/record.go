package staking

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
)

// Record is the per-account staking position. The zero value means "not
// staked"; an account that fully exits reverts to it.
type Record struct {
	// Amount is the staked principal.
	Amount *uint256.Int
	// Rewards is settled but unpaid reward.
	Rewards *uint256.Int
	// DepositTime anchors the lock window. Set by every stake.
	DepositTime int64
	// LastAccrual anchors reward accrual. Set by every settlement.
	LastAccrual int64
}

// Staked reports whether the record holds principal.
func (r Record) Staked() bool {
	return r.Amount != nil && !r.Amount.IsZero()
}

// clone returns a deep copy with nil amounts replaced by zero.
func (r Record) clone() Record {
	return Record{
		Amount:      cloneInt(r.Amount),
		Rewards:     cloneInt(r.Rewards),
		DepositTime: r.DepositTime,
		LastAccrual: r.LastAccrual,
	}
}

// isZero reports whether the record carries no information.
func (r Record) isZero() bool {
	return !r.Staked() && (r.Rewards == nil || r.Rewards.IsZero()) &&
		r.DepositTime == 0 && r.LastAccrual == 0
}

type recordJSON struct {
	Amount      string `json:"amount"`
	Rewards     string `json:"rewards"`
	DepositTime int64  `json:"depositTime"`
	LastAccrual int64  `json:"lastAccrual"`
}

// MarshalJSON encodes amounts as decimal strings.
func (r Record) MarshalJSON() ([]byte, error) {
	c := r.clone()
	return json.Marshal(recordJSON{
		Amount:      c.Amount.Dec(),
		Rewards:     c.Rewards.Dec(),
		DepositTime: r.DepositTime,
		LastAccrual: r.LastAccrual,
	})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amount, err := decodeAmount(raw.Amount)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	rewards, err := decodeAmount(raw.Rewards)
	if err != nil {
		return fmt.Errorf("rewards: %w", err)
	}
	*r = Record{
		Amount:      amount,
		Rewards:     rewards,
		DepositTime: raw.DepositTime,
		LastAccrual: raw.LastAccrual,
	}
	return nil
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func decodeAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(s)
}
