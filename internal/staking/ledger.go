package staking

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/tip-staking/internal/rewards"
	"github.com/Klingon-tech/tip-staking/internal/token"
	"github.com/Klingon-tech/tip-staking/pkg/types"
	"github.com/holiman/uint256"
)

// settle folds the reward accrued since rec.LastAccrual into rec.Rewards
// and moves the accrual anchor to now. Settling twice at the same instant
// adds nothing.
func (e *Engine) settle(rec *Record, now int64) error {
	if rec.Staked() {
		accrued, err := rewards.Accrue(rec.Amount, now-rec.LastAccrual, e.params.RewardRate)
		if err != nil {
			return err
		}
		if rec.Rewards, err = rewards.Add(rec.Rewards, accrued); err != nil {
			return err
		}
	}
	rec.LastAccrual = now
	return nil
}

// Stake deposits amount from account into custody. The account must have
// approved the custody for at least amount. Pending reward is settled
// first, then the lock window and the accrual anchor restart for the
// combined balance.
func (e *Engine) Stake(ctx context.Context, account types.Address, amount *uint256.Int) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	rec, total, paused := e.snapshot(account)
	if paused {
		return e.reject("stake", account, ErrPaused)
	}
	if amount == nil || amount.IsZero() {
		return e.reject("stake", account, ErrZeroStake)
	}
	if account.IsZero() {
		return e.reject("stake", account, ErrInvalidAddress)
	}

	now := e.now()
	if err := e.settle(&rec, now); err != nil {
		return e.reject("stake", account, err)
	}
	var err error
	if rec.Amount, err = rewards.Add(rec.Amount, amount); err != nil {
		return e.reject("stake", account, err)
	}
	if total, err = rewards.Add(total, amount); err != nil {
		return e.reject("stake", account, err)
	}
	rec.DepositTime = now

	c := change{
		account:     account,
		record:      &rec,
		totalStaked: total,
		paused:      paused,
		event: Event{
			Type:      EventStaked,
			Account:   account,
			Amount:    cloneInt(amount),
			Timestamp: now,
		},
	}
	err = e.commit(ctx, c, func(tx *token.Tx) error {
		if err := tx.TransferFrom(e.custody, account, e.custody, amount); err != nil {
			return fmt.Errorf("pull stake: %w", err)
		}
		return nil
	})
	if err != nil {
		return e.reject("stake", account, err)
	}

	e.logger.Info().
		Str("account", account.String()).
		Str("amount", amount.Dec()).
		Str("staked", rec.Amount.Dec()).
		Int64("unlock_time", e.params.UnlockTime(now)).
		Msg("Staked")
	return nil
}

// Unstake withdraws amount of principal together with all settled reward.
// Before the unlock time the penalty is deducted from the principal and
// stays in custody. A partial withdrawal keeps the original deposit time.
func (e *Engine) Unstake(ctx context.Context, account types.Address, amount *uint256.Int) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	rec, total, paused := e.snapshot(account)
	if paused {
		return e.reject("unstake", account, ErrPaused)
	}
	if amount == nil || amount.IsZero() {
		return e.reject("unstake", account, ErrZeroUnstake)
	}
	if rec.Amount.Lt(amount) {
		return e.reject("unstake", account, fmt.Errorf("%w: staked %s, requested %s",
			ErrInsufficientStake, rec.Amount.Dec(), amount.Dec()))
	}

	now := e.now()
	if err := e.settle(&rec, now); err != nil {
		return e.reject("unstake", account, err)
	}
	penalty, err := e.params.EarlyPenalty(amount, rec.DepositTime, now)
	if err != nil {
		return e.reject("unstake", account, err)
	}
	// penalty <= amount <= rec.Amount <= total, so these cannot underflow.
	principal := new(uint256.Int).Sub(amount, penalty)
	paid := rec.Rewards
	payout, err := rewards.Add(principal, paid)
	if err != nil {
		return e.reject("unstake", account, err)
	}
	rec.Amount = new(uint256.Int).Sub(rec.Amount, amount)
	rec.Rewards = new(uint256.Int)
	if !rec.Staked() {
		rec = Record{}
	}
	total = new(uint256.Int).Sub(total, amount)

	c := change{
		account:     account,
		record:      &rec,
		totalStaked: total,
		paused:      paused,
		event: Event{
			Type:      EventUnstaked,
			Account:   account,
			Amount:    principal,
			Rewards:   cloneInt(paid),
			Penalty:   penalty,
			Timestamp: now,
		},
	}
	err = e.commit(ctx, c, e.payout(account, payout))
	if err != nil {
		return e.reject("unstake", account, err)
	}

	e.logger.Info().
		Str("account", account.String()).
		Str("amount", amount.Dec()).
		Str("rewards", paid.Dec()).
		Str("penalty", penalty.Dec()).
		Msg("Unstaked")
	return nil
}

// ClaimRewards pays out all reward accrued so far. Accrual restarts from
// now; the lock window is unaffected.
func (e *Engine) ClaimRewards(ctx context.Context, account types.Address) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	rec, total, paused := e.snapshot(account)
	if paused {
		return e.reject("claim", account, ErrPaused)
	}
	if !rec.Staked() {
		return e.reject("claim", account, ErrNoStake)
	}

	now := e.now()
	if err := e.settle(&rec, now); err != nil {
		return e.reject("claim", account, err)
	}
	paid := rec.Rewards
	rec.Rewards = new(uint256.Int)

	c := change{
		account:     account,
		record:      &rec,
		totalStaked: total,
		paused:      paused,
		event: Event{
			Type:      EventRewardsClaimed,
			Account:   account,
			Amount:    cloneInt(paid),
			Timestamp: now,
		},
	}
	if err := e.commit(ctx, c, e.payout(account, paid)); err != nil {
		return e.reject("claim", account, err)
	}

	e.logger.Info().
		Str("account", account.String()).
		Str("amount", paid.Dec()).
		Msg("Rewards claimed")
	return nil
}

// payout returns a transfer of amount from custody to account, or nil
// when there is nothing to send.
func (e *Engine) payout(account types.Address, amount *uint256.Int) move {
	if amount.IsZero() {
		return nil
	}
	return func(tx *token.Tx) error {
		if err := tx.Transfer(e.custody, account, amount); err != nil {
			return fmt.Errorf("pay out: %w", err)
		}
		return nil
	}
}

// reject logs a refused call and returns err unchanged.
func (e *Engine) reject(op string, account types.Address, err error) error {
	e.logger.Debug().
		Str("op", op).
		Str("account", account.String()).
		Err(err).
		Msg("Rejected")
	return err
}
