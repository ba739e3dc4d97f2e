package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	klog "github.com/Klingon-tech/tip-staking/internal/log"
	"github.com/Klingon-tech/tip-staking/internal/storage"
	"github.com/Klingon-tech/tip-staking/pkg/types"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// Ledger errors.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidReceiver       = errors.New("invalid receiver")
	ErrInvalidSender         = errors.New("invalid sender")
	ErrInvalidSpender        = errors.New("invalid spender")
	ErrSupplyOverflow        = errors.New("total supply overflow")
	ErrMetadataMismatch      = errors.New("stored token metadata differs")
)

var (
	prefixBalance   = []byte("b/") // b/<addr(20)> -> decimal balance
	prefixAllowance = []byte("a/") // a/<owner(20)><spender(20)> -> decimal allowance
	keySupply       = []byte("supply")
)

// maxAllowance is the infinite allowance; TransferFrom never decrements it.
var maxAllowance = new(uint256.Int).SetAllOne()

// MaxAllowance returns a copy of the infinite allowance value.
func MaxAllowance() *uint256.Int {
	return new(uint256.Int).Set(maxAllowance)
}

// Ledger holds balances and allowances of a single token. Every mutation
// is written in one storage batch.
type Ledger struct {
	mu     sync.Mutex
	db     storage.DB
	id     types.TokenID
	meta   Metadata
	logger zerolog.Logger
}

// NewLedger opens the ledger for meta on db. The metadata is recorded on
// first use; reopening with different metadata fails.
func NewLedger(db storage.DB, meta *Metadata) (*Ledger, error) {
	if meta == nil {
		return nil, fmt.Errorf("%w: nil", ErrInvalidMetadata)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	id := meta.ID()
	store := NewStore(db)

	has, err := store.Has(id)
	if err != nil {
		return nil, fmt.Errorf("token lookup: %w", err)
	}
	if has {
		stored, err := store.Get(id)
		if err != nil {
			return nil, err
		}
		if *stored != *meta {
			return nil, fmt.Errorf("%w: %s", ErrMetadataMismatch, id)
		}
	} else if err := store.Put(id, meta); err != nil {
		return nil, fmt.Errorf("token store: %w", err)
	}

	return &Ledger{
		db:     db,
		id:     id,
		meta:   *meta,
		logger: klog.Token.With().Str("token", meta.Symbol).Logger(),
	}, nil
}

// ID returns the token identifier.
func (l *Ledger) ID() types.TokenID { return l.id }

// Database returns the store holding balances and allowances.
func (l *Ledger) Database() storage.DB { return l.db }

// Metadata returns a copy of the token metadata.
func (l *Ledger) Metadata() Metadata { return l.meta }

// BalanceOf returns the balance of addr. Unknown addresses hold zero.
func (l *Ledger) BalanceOf(addr types.Address) (*uint256.Int, error) {
	return l.read(balanceKey(addr))
}

// Allowance returns how much spender may still move out of owner.
func (l *Ledger) Allowance(owner, spender types.Address) (*uint256.Int, error) {
	return l.read(allowanceKey(owner, spender))
}

// TotalSupply returns the amount minted so far.
func (l *Ledger) TotalSupply() (*uint256.Int, error) {
	return l.read(keySupply)
}

// Approve sets spender's allowance over owner's balance to amount.
func (l *Ledger) Approve(ctx context.Context, owner, spender types.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if owner.IsZero() {
		return ErrInvalidSender
	}
	if spender.IsZero() {
		return ErrInvalidSpender
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.db.Put(allowanceKey(owner, spender), []byte(amount.Dec())); err != nil {
		return fmt.Errorf("write allowance: %w", err)
	}
	l.logger.Debug().
		Str("owner", owner.String()).
		Str("spender", spender.String()).
		Str("amount", amount.Dec()).
		Msg("Approval")
	return nil
}

// Transfer moves amount from one holder to another.
func (l *Ledger) Transfer(ctx context.Context, from, to types.Address, amount *uint256.Int) error {
	return l.Update(ctx, nil, func(tx *Tx) error {
		return tx.Transfer(from, to, amount)
	})
}

// TransferFrom moves amount out of from on behalf of spender, consuming
// spender's allowance. An infinite allowance is left untouched.
func (l *Ledger) TransferFrom(ctx context.Context, spender, from, to types.Address, amount *uint256.Int) error {
	return l.Update(ctx, nil, func(tx *Tx) error {
		return tx.TransferFrom(spender, from, to, amount)
	})
}

// Update runs fn against a Tx that stages into sb, then commits sb. The
// ledger stays locked from the first read in fn until the commit returns,
// so staged balances cannot go stale. Other stores may stage into sb
// beforehand; their writes land in the same commit. A nil sb opens a
// batch over the ledger's own database.
func (l *Ledger) Update(ctx context.Context, sb *storage.SharedBatch, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sb == nil {
		sb = storage.NewSharedBatch(l.db)
	}
	w, err := sb.For(l.db)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &Tx{l: l, w: w, staged: make(map[string]*uint256.Int)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := sb.Commit(); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}
	for _, m := range tx.moves {
		l.logTransfer(m.from, m.to, m.amount)
	}
	return nil
}

// Mint credits amount to to and grows the total supply. Used by genesis.
func (l *Ledger) Mint(to types.Address, amount *uint256.Int) error {
	if to.IsZero() {
		return ErrInvalidReceiver
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	supply, err := l.read(keySupply)
	if err != nil {
		return err
	}
	newSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	bal, err := l.read(balanceKey(to))
	if err != nil {
		return err
	}
	// Balances never exceed the supply, so this cannot overflow.
	newBal := new(uint256.Int).Add(bal, amount)

	batch := storage.NewBatch(l.db)
	if err := batch.Put(keySupply, []byte(newSupply.Dec())); err != nil {
		return err
	}
	if err := batch.Put(balanceKey(to), []byte(newBal.Dec())); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit mint: %w", err)
	}
	l.logger.Info().Str("to", to.String()).Str("amount", amount.Dec()).Msg("Minted")
	return nil
}

func (l *Ledger) read(key []byte) (*uint256.Int, error) {
	data, err := l.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("token read: %w", err)
	}
	v, err := uint256.FromDecimal(string(data))
	if err != nil {
		return nil, fmt.Errorf("corrupt amount under %q: %w", key, err)
	}
	return v, nil
}

func (l *Ledger) logTransfer(from, to types.Address, amount *uint256.Int) {
	l.logger.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("amount", amount.Dec()).
		Msg("Transfer")
}

func balanceKey(addr types.Address) []byte {
	key := make([]byte, len(prefixBalance)+types.AddressSize)
	copy(key, prefixBalance)
	copy(key[len(prefixBalance):], addr[:])
	return key
}

func allowanceKey(owner, spender types.Address) []byte {
	key := make([]byte, len(prefixAllowance)+2*types.AddressSize)
	copy(key, prefixAllowance)
	copy(key[len(prefixAllowance):], owner[:])
	copy(key[len(prefixAllowance)+types.AddressSize:], spender[:])
	return key
}
