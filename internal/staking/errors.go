package staking

import (
	"errors"

	"github.com/Klingon-tech/tip-staking/internal/rewards"
)

// Rejection reasons. Every failed call leaves all engine state untouched.
var (
	ErrZeroStake         = errors.New("cannot stake 0")
	ErrZeroUnstake       = errors.New("cannot unstake 0")
	ErrInsufficientStake = errors.New("insufficient staked amount")
	ErrNoStake           = errors.New("no stake found")
	ErrPaused            = errors.New("enforced pause")
	ErrNotPaused         = errors.New("expected pause")
	ErrUnauthorized      = errors.New("unauthorized account")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrNoBalance         = errors.New("no balance to withdraw")
	ErrInvalidToken      = errors.New("invalid token address")
	ErrStateMismatch     = errors.New("stored state belongs to another engine")
	ErrCorruptState      = errors.New("staking state corrupt")
	ErrSeparateDatabases = errors.New("staking state and token ledger must share a database")

	// ErrOverflow aborts an operation whose arithmetic would wrap.
	ErrOverflow = rewards.ErrOverflow
)
