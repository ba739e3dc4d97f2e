package staking

import (
	"github.com/Klingon-tech/tip-staking/internal/rewards"
	"github.com/Klingon-tech/tip-staking/pkg/types"
	"github.com/holiman/uint256"
)

// UserInfo is the per-account view.
type UserInfo struct {
	Amount      *uint256.Int
	Rewards     *uint256.Int // pending, settled or not
	DepositTime int64
	UnlockTime  int64 // 0 when nothing is staked
}

// Stats is the protocol-wide view.
type Stats struct {
	TotalStaked   *uint256.Int
	RewardRate    uint64
	MinLockPeriod int64
}

// Pending returns the reward account would hold if settled now. Fails only
// on arithmetic overflow.
func (e *Engine) Pending(account types.Address) (*uint256.Int, error) {
	rec, _, _ := e.snapshot(account)
	return e.pending(rec, e.now())
}

func (e *Engine) pending(rec Record, now int64) (*uint256.Int, error) {
	accrued, err := rewards.Accrue(rec.Amount, now-rec.LastAccrual, e.params.RewardRate)
	if err != nil {
		return nil, err
	}
	return rewards.Add(rec.Rewards, accrued)
}

// CanUnstakeWithoutPenalty reports whether account has principal and its
// lock window has ended.
func (e *Engine) CanUnstakeWithoutPenalty(account types.Address) bool {
	rec, _, _ := e.snapshot(account)
	return rec.Staked() && !e.params.Locked(rec.DepositTime, e.now())
}

// CanClaimRewards reports whether account has a stake. The pending amount
// does not matter.
func (e *Engine) CanClaimRewards(account types.Address) bool {
	rec, _, _ := e.snapshot(account)
	return rec.Staked()
}

// CalculatePenalty returns the penalty account would pay to withdraw
// amount now. Zero once unlocked and for accounts without a stake.
func (e *Engine) CalculatePenalty(account types.Address, amount *uint256.Int) (*uint256.Int, error) {
	rec, _, _ := e.snapshot(account)
	if !rec.Staked() || amount == nil {
		return new(uint256.Int), nil
	}
	return e.params.EarlyPenalty(amount, rec.DepositTime, e.now())
}

// UserInfo returns the account's position with its pending reward.
func (e *Engine) UserInfo(account types.Address) (UserInfo, error) {
	rec, _, _ := e.snapshot(account)
	pending, err := e.pending(rec, e.now())
	if err != nil {
		return UserInfo{}, err
	}
	info := UserInfo{
		Amount:      rec.Amount,
		Rewards:     pending,
		DepositTime: rec.DepositTime,
	}
	if rec.Staked() {
		info.UnlockTime = e.params.UnlockTime(rec.DepositTime)
	}
	return info, nil
}

// Stats returns total value locked, the reward rate and the lock period.
func (e *Engine) Stats() Stats {
	return Stats{
		TotalStaked:   e.TotalStaked(),
		RewardRate:    e.params.RewardRate,
		MinLockPeriod: e.params.MinLockPeriod,
	}
}

// TotalStaked returns the sum of all staked principal.
func (e *Engine) TotalStaked() *uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(uint256.Int).Set(e.totalStaked)
}

// Record returns the raw stored position of account.
func (e *Engine) Record(account types.Address) Record {
	rec, _, _ := e.snapshot(account)
	return rec
}

// Accounts returns the number of accounts with a non-zero record.
func (e *Engine) Accounts() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.records)
}

// Paused reports whether mutations are halted.
func (e *Engine) Paused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// Owner returns the administrator.
func (e *Engine) Owner() types.Address { return e.owner }

// TokenID returns the staked token.
func (e *Engine) TokenID() types.TokenID { return e.tokenID }

// Params returns a copy of the economic constants.
func (e *Engine) Params() rewards.Params {
	p := e.params
	p.MinRewardThreshold = cloneInt(p.MinRewardThreshold)
	return p
}

// CustodyBalance returns the token balance held by the engine: staked
// principal plus the reward pool.
func (e *Engine) CustodyBalance() (*uint256.Int, error) {
	return e.token.BalanceOf(e.custody)
}

// Events returns up to limit events starting at fromSeq.
func (e *Engine) Events(fromSeq uint64, limit int) []Event {
	return e.events.Events(fromSeq, limit)
}
