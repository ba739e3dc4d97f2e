// Package staking implements the staking ledger: per-account positions,
// continuous reward accrual, the lock window with its early-exit penalty,
// the owner's pause switch and emergency withdrawal, and read-only views.
//
// An Engine is a serialized state machine. Mutations run one at a time. A
// mutation's staking writes and the token moves it carries are committed
// in one storage batch, so they land together or not at all.
// Queries read a consistent snapshot and never wait on a transfer.
package staking

import (
	"context"
	"fmt"
	"sync"

	klog "github.com/Klingon-tech/tip-staking/internal/log"
	"github.com/Klingon-tech/tip-staking/internal/rewards"
	"github.com/Klingon-tech/tip-staking/internal/storage"
	"github.com/Klingon-tech/tip-staking/internal/token"
	"github.com/Klingon-tech/tip-staking/pkg/crypto"
	"github.com/Klingon-tech/tip-staking/pkg/types"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// DefaultCustody is the account that holds staked principal and the
// reward pool. No key controls it.
var DefaultCustody = crypto.AddressFromLabel("staking/custody")

// TokenLedger is the external token the engine moves value through.
// Update must commit sb, with the moves fn stages, in a single write.
type TokenLedger interface {
	BalanceOf(addr types.Address) (*uint256.Int, error)
	Update(ctx context.Context, sb *storage.SharedBatch, fn func(*token.Tx) error) error
}

// databaser is implemented by ledgers that expose their storage.
type databaser interface {
	Database() storage.DB
}

// Config configures a new Engine.
type Config struct {
	Token   TokenLedger
	TokenID types.TokenID
	Owner   types.Address

	// Custody defaults to DefaultCustody.
	Custody types.Address
	// Params defaults to rewards.DefaultParams().
	Params *rewards.Params
	// Clock defaults to SystemClock.
	Clock Clock
	// DB persists state when set; otherwise the engine lives in memory.
	DB storage.DB
}

// Engine is the staking ledger.
type Engine struct {
	opMu sync.Mutex // serializes mutations end to end

	mu          sync.RWMutex // guards the fields below
	records     map[types.Address]Record
	totalStaked *uint256.Int
	paused      bool

	token   TokenLedger
	tokenID types.TokenID
	owner   types.Address
	custody types.Address
	params  rewards.Params
	clock   Clock
	store   *Store
	events  *EventLog
	logger  zerolog.Logger
	admin   zerolog.Logger
}

// New creates an engine bound to one token and one owner, restoring any
// state persisted in cfg.DB.
func New(cfg Config) (*Engine, error) {
	if cfg.Token == nil || cfg.TokenID.IsZero() {
		return nil, ErrInvalidToken
	}
	if cfg.Owner.IsZero() {
		return nil, fmt.Errorf("owner: %w", ErrInvalidAddress)
	}
	params := rewards.DefaultParams()
	if cfg.Params != nil {
		params = *cfg.Params
		if params.MinRewardThreshold == nil {
			params.MinRewardThreshold = new(uint256.Int)
		}
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	custody := cfg.Custody
	if custody.IsZero() {
		custody = DefaultCustody
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	e := &Engine{
		records:     make(map[types.Address]Record),
		totalStaked: new(uint256.Int),
		token:       cfg.Token,
		tokenID:     cfg.TokenID,
		owner:       cfg.Owner,
		custody:     custody,
		params:      params,
		clock:       clock,
		events:      NewEventLog(),
		logger:      klog.Ledger,
		admin:       klog.Admin,
	}

	if cfg.DB != nil {
		if d, ok := cfg.Token.(databaser); ok && !storage.SameRoot(d.Database(), cfg.DB) {
			return nil, ErrSeparateDatabases
		}
		e.store = NewStore(cfg.DB)
		if err := e.restore(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) restore() error {
	snap, err := e.store.Load()
	if err != nil {
		return fmt.Errorf("load staking state: %w", err)
	}
	if snap.State == nil {
		if len(snap.Records) > 0 || len(snap.Events) > 0 {
			return fmt.Errorf("%w: records without state", ErrCorruptState)
		}
		return nil
	}
	if snap.State.Owner != e.owner || snap.State.Token != e.tokenID {
		return fmt.Errorf("%w: owner %s token %s", ErrStateMismatch, snap.State.Owner, snap.State.Token)
	}
	if err := e.events.restore(snap.Events); err != nil {
		return err
	}
	e.records = snap.Records
	e.totalStaked = snap.State.TotalStaked
	e.paused = snap.State.Paused

	if err := e.CheckInvariants(); err != nil {
		return err
	}
	e.logger.Info().
		Int("accounts", len(e.records)).
		Str("total_staked", e.totalStaked.Dec()).
		Bool("paused", e.paused).
		Int("events", e.events.Len()).
		Msg("Staking state restored")
	return nil
}

// EventLog returns the engine's event history.
func (e *Engine) EventLog() *EventLog { return e.events }

// Custody returns the account holding staked principal and rewards.
func (e *Engine) Custody() types.Address { return e.custody }

// CheckInvariants verifies that totalStaked equals the sum of all staked
// amounts and that no account holds principal without a deposit time.
func (e *Engine) CheckInvariants() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sum := new(uint256.Int)
	for addr, rec := range e.records {
		if !rec.Staked() {
			continue
		}
		if rec.DepositTime == 0 {
			return fmt.Errorf("%w: %s staked without deposit time", ErrCorruptState, addr)
		}
		if _, overflow := sum.AddOverflow(sum, rec.Amount); overflow {
			return fmt.Errorf("%w: staked sum overflows", ErrCorruptState)
		}
	}
	if !sum.Eq(e.totalStaked) {
		return fmt.Errorf("%w: total staked %s != sum of stakes %s", ErrCorruptState, e.totalStaked.Dec(), sum.Dec())
	}
	return nil
}

// change is a fully computed mutation waiting to be committed.
type change struct {
	account     types.Address
	record      *Record // new record, nil when records are untouched
	totalStaked *uint256.Int
	paused      bool
	event       Event
}

// move stages the token side of a change.
type move func(tx *token.Tx) error

// commit stages c's staking writes and the token moves of mv into one
// batch, commits it, and then publishes the new state. On any error
// nothing is written and nothing becomes visible. Caller holds e.opMu.
func (e *Engine) commit(ctx context.Context, c change, mv move) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.event.Seq = e.events.NextSeq()

	var sb *storage.SharedBatch
	if e.store != nil {
		sb = storage.NewSharedBatch(e.store.db)
		ws := writeSet{
			state:   e.state(c.totalStaked, c.paused),
			account: c.account,
			record:  c.record,
			event:   &c.event,
		}
		if err := e.store.stage(sb, ws); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
	}

	switch {
	case mv != nil:
		if err := e.token.Update(ctx, sb, mv); err != nil {
			return err
		}
	case sb != nil:
		if err := sb.Commit(); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
	}

	e.mu.Lock()
	if c.record != nil {
		if c.record.isZero() {
			delete(e.records, c.account)
		} else {
			e.records[c.account] = *c.record
		}
	}
	e.totalStaked = c.totalStaked
	e.paused = c.paused
	e.mu.Unlock()

	e.events.append(c.event)
	return nil
}

func (e *Engine) state(total *uint256.Int, paused bool) State {
	return State{
		Owner:       e.owner,
		Token:       e.tokenID,
		TotalStaked: total,
		Paused:      paused,
	}
}

// now returns the current unix time in seconds.
func (e *Engine) now() int64 {
	return e.clock.Now().Unix()
}

// snapshot returns a copy of account's record, the total and the pause flag.
func (e *Engine) snapshot(account types.Address) (Record, *uint256.Int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.records[account].clone(), new(uint256.Int).Set(e.totalStaked), e.paused
}
