package token

import (
	"fmt"

	"github.com/Klingon-tech/tip-staking/internal/storage"
	"github.com/Klingon-tech/tip-staking/pkg/types"
	"github.com/holiman/uint256"
)

// Tx stages balance and allowance changes for one Ledger.Update. Reads
// through a Tx see its own staged writes; nothing is visible to the
// ledger until the update commits.
type Tx struct {
	l      *Ledger
	w      storage.Writer
	staged map[string]*uint256.Int
	moves  []stagedMove
}

type stagedMove struct {
	from, to types.Address
	amount   *uint256.Int
}

// BalanceOf returns addr's balance including staged moves.
func (tx *Tx) BalanceOf(addr types.Address) (*uint256.Int, error) {
	v, err := tx.read(balanceKey(addr))
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(v), nil
}

// Transfer stages a move of amount from one holder to another.
func (tx *Tx) Transfer(from, to types.Address, amount *uint256.Int) error {
	return tx.move(from, to, amount)
}

// TransferFrom stages a move out of from on behalf of spender and the
// matching allowance decrement.
func (tx *Tx) TransferFrom(spender, from, to types.Address, amount *uint256.Int) error {
	key := allowanceKey(from, spender)
	allowance, err := tx.read(key)
	if err != nil {
		return err
	}
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance.Dec(), amount.Dec())
	}
	if err := tx.move(from, to, amount); err != nil {
		return err
	}
	if allowance.Eq(maxAllowance) {
		return nil
	}
	return tx.put(key, new(uint256.Int).Sub(allowance, amount))
}

func (tx *Tx) move(from, to types.Address, amount *uint256.Int) error {
	if from.IsZero() {
		return ErrInvalidSender
	}
	if to.IsZero() {
		return ErrInvalidReceiver
	}
	fromBal, err := tx.read(balanceKey(from))
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBal.Dec(), amount.Dec())
	}
	if from == to {
		return nil
	}
	toBal, err := tx.read(balanceKey(to))
	if err != nil {
		return err
	}

	if err := tx.put(balanceKey(from), new(uint256.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	// Balances never exceed the supply, so this cannot overflow.
	if err := tx.put(balanceKey(to), new(uint256.Int).Add(toBal, amount)); err != nil {
		return err
	}
	tx.moves = append(tx.moves, stagedMove{from: from, to: to, amount: new(uint256.Int).Set(amount)})
	return nil
}

func (tx *Tx) read(key []byte) (*uint256.Int, error) {
	if v, ok := tx.staged[string(key)]; ok {
		return v, nil
	}
	return tx.l.read(key)
}

func (tx *Tx) put(key []byte, v *uint256.Int) error {
	if err := tx.w.Put(key, []byte(v.Dec())); err != nil {
		return err
	}
	tx.staged[string(key)] = v
	return nil
}
