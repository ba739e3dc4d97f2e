package rewards

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Protocol defaults.
const (
	DefaultRewardRate    = 10        // percent per year
	DefaultPenaltyRate   = 1         // percent of withdrawn principal
	DefaultMinLockPeriod = 7 * 86400 // seconds
)

// DefaultMinRewardThreshold is 0.001 token at 18 decimals. It is stored
// and reported but gates nothing.
var DefaultMinRewardThreshold = uint256.NewInt(1_000_000_000_000_000)

// Params are the immutable economic constants of a staking engine.
type Params struct {
	RewardRate         uint64       `json:"rewardRate"`
	PenaltyRate        uint64       `json:"penaltyRate"`
	MinLockPeriod      int64        `json:"minLockPeriod"`
	MinRewardThreshold *uint256.Int `json:"-"`
}

// DefaultParams returns 10% APR, 1% early-exit penalty and a 7-day lock.
func DefaultParams() Params {
	return Params{
		RewardRate:         DefaultRewardRate,
		PenaltyRate:        DefaultPenaltyRate,
		MinLockPeriod:      DefaultMinLockPeriod,
		MinRewardThreshold: new(uint256.Int).Set(DefaultMinRewardThreshold),
	}
}

// Validate checks that the parameters are usable.
func (p Params) Validate() error {
	if p.PenaltyRate > 100 {
		return fmt.Errorf("penalty rate %d exceeds 100%%", p.PenaltyRate)
	}
	if p.MinLockPeriod < 0 {
		return fmt.Errorf("negative lock period %d", p.MinLockPeriod)
	}
	return nil
}

// UnlockTime is the first instant at which principal can leave without
// penalty.
func (p Params) UnlockTime(depositTime int64) int64 {
	return depositTime + p.MinLockPeriod
}

// Locked reports whether a deposit made at depositTime is still inside the
// lock window at now.
func (p Params) Locked(depositTime, now int64) bool {
	return now < p.UnlockTime(depositTime)
}

// EarlyPenalty is Penalty(amount, p.PenaltyRate) when locked, zero otherwise.
func (p Params) EarlyPenalty(amount *uint256.Int, depositTime, now int64) (*uint256.Int, error) {
	if !p.Locked(depositTime, now) {
		return new(uint256.Int), nil
	}
	return Penalty(amount, p.PenaltyRate)
}
