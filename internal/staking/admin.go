package staking

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/tip-staking/internal/token"
	"github.com/Klingon-tech/tip-staking/pkg/types"
)

// Pause halts stake, unstake and claim. Owner only.
func (e *Engine) Pause(ctx context.Context, caller types.Address) error {
	return e.setPaused(ctx, caller, true)
}

// Unpause resumes normal operation. Owner only.
func (e *Engine) Unpause(ctx context.Context, caller types.Address) error {
	return e.setPaused(ctx, caller, false)
}

func (e *Engine) setPaused(ctx context.Context, caller types.Address, pause bool) error {
	op, typ := "unpause", EventUnpaused
	if pause {
		op, typ = "pause", EventPaused
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.onlyOwner(op, caller); err != nil {
		return err
	}
	_, total, paused := e.snapshot(caller)
	if pause && paused {
		return e.rejectAdmin(op, caller, ErrPaused)
	}
	if !pause && !paused {
		return e.rejectAdmin(op, caller, ErrNotPaused)
	}

	c := change{
		account:     caller,
		totalStaked: total,
		paused:      pause,
		event: Event{
			Type:      typ,
			Account:   caller,
			Timestamp: e.now(),
		},
	}
	if err := e.commit(ctx, c, nil); err != nil {
		return e.rejectAdmin(op, caller, err)
	}
	e.admin.Warn().Str("by", caller.String()).Msg(string(typ))
	return nil
}

// EmergencyWithdraw sweeps the whole custody balance to dest. Owner only.
// Records are not touched, so staked principal can be stranded. Allowed
// while paused.
func (e *Engine) EmergencyWithdraw(ctx context.Context, caller, dest types.Address) error {
	const op = "emergencyWithdraw"

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.onlyOwner(op, caller); err != nil {
		return err
	}
	if dest.IsZero() {
		return e.rejectAdmin(op, caller, ErrInvalidAddress)
	}
	balance, err := e.token.BalanceOf(e.custody)
	if err != nil {
		return e.rejectAdmin(op, caller, fmt.Errorf("custody balance: %w", err))
	}
	if balance.IsZero() {
		return e.rejectAdmin(op, caller, ErrNoBalance)
	}

	_, total, paused := e.snapshot(caller)
	c := change{
		account:     dest,
		totalStaked: total,
		paused:      paused,
		event: Event{
			Type:      EventEmergencyWithdraw,
			Account:   dest,
			Amount:    balance,
			Timestamp: e.now(),
		},
	}
	err = e.commit(ctx, c, func(tx *token.Tx) error {
		if err := tx.Transfer(e.custody, dest, balance); err != nil {
			return fmt.Errorf("sweep custody: %w", err)
		}
		return nil
	})
	if err != nil {
		return e.rejectAdmin(op, caller, err)
	}

	e.admin.Warn().
		Str("by", caller.String()).
		Str("to", dest.String()).
		Str("amount", balance.Dec()).
		Str("total_staked", total.Dec()).
		Msg("Emergency withdraw")
	return nil
}

// onlyOwner rejects every caller but the owner with the same error.
func (e *Engine) onlyOwner(op string, caller types.Address) error {
	if caller != e.owner {
		return e.rejectAdmin(op, caller, fmt.Errorf("%w: %s", ErrUnauthorized, caller))
	}
	return nil
}

func (e *Engine) rejectAdmin(op string, caller types.Address, err error) error {
	e.admin.Debug().
		Str("op", op).
		Str("caller", caller.String()).
		Err(err).
		Msg("Rejected")
	return err
}
