package token

import (
	"context"
	"errors"
	"testing"

	"github.com/Klingon-tech/tip-staking/internal/storage"
	"github.com/Klingon-tech/tip-staking/pkg/types"
)

var errCommit = errors.New("commit failed")

// brokenDB fails batch commits while fail is set.
type brokenDB struct {
	*storage.MemoryDB
	fail bool
}

func (d *brokenDB) NewBatch() storage.Batch {
	return &brokenBatch{Batch: d.MemoryDB.NewBatch(), db: d}
}

type brokenBatch struct {
	storage.Batch
	db *brokenDB
}

func (b *brokenBatch) Commit() error {
	if b.db.fail {
		return errCommit
	}
	return b.Batch.Commit()
}

func TestUpdate_SharesBatchWithOtherStore(t *testing.T) {
	root := storage.NewMemory()
	other := storage.NewPrefixDB(root, storage.PrefixStaking)
	l, err := NewLedger(storage.NewPrefixDB(root, storage.PrefixToken), testMetadata())
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	if err := l.Mint(alice, types.Tokens(100)); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	sb := storage.NewSharedBatch(other)
	w, err := sb.For(other)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	if err := w.Put([]byte("record"), []byte("40")); err != nil {
		t.Fatal(err)
	}
	err = l.Update(context.Background(), sb, func(tx *Tx) error {
		return tx.Transfer(alice, custody, types.Tokens(40))
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if !mustBalance(t, l, custody).Eq(types.Tokens(40)) {
		t.Errorf("custody = %s", mustBalance(t, l, custody).Dec())
	}
	if got, err := other.Get([]byte("record")); err != nil || string(got) != "40" {
		t.Errorf("other store record = %q, %v", got, err)
	}
}

func TestUpdate_FailedCommitChangesNeitherStore(t *testing.T) {
	root := &brokenDB{MemoryDB: storage.NewMemory()}
	other := storage.NewPrefixDB(root, storage.PrefixStaking)
	l, err := NewLedger(storage.NewPrefixDB(root, storage.PrefixToken), testMetadata())
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	if err := l.Mint(alice, types.Tokens(100)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := l.Approve(context.Background(), alice, custody, types.Tokens(50)); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	root.fail = true
	sb := storage.NewSharedBatch(other)
	w, _ := sb.For(other)
	if err := w.Put([]byte("record"), []byte("40")); err != nil {
		t.Fatal(err)
	}
	err = l.Update(context.Background(), sb, func(tx *Tx) error {
		return tx.TransferFrom(custody, alice, custody, types.Tokens(40))
	})
	if !errors.Is(err, errCommit) {
		t.Fatalf("err = %v, want errCommit", err)
	}

	if !mustBalance(t, l, alice).Eq(types.Tokens(100)) {
		t.Errorf("alice = %s, want untouched", mustBalance(t, l, alice).Dec())
	}
	if allowance, _ := l.Allowance(alice, custody); !allowance.Eq(types.Tokens(50)) {
		t.Errorf("allowance = %s, want 50 tokens", allowance.Dec())
	}
	if has, _ := other.Has([]byte("record")); has {
		t.Error("other store write landed despite failed commit")
	}
}

func TestUpdate_ForeignBatch(t *testing.T) {
	l := newTestLedger(t)
	sb := storage.NewSharedBatch(storage.NewMemory())
	err := l.Update(context.Background(), sb, func(tx *Tx) error {
		return tx.Transfer(alice, bob, types.Tokens(1))
	})
	if !errors.Is(err, storage.ErrForeignDB) {
		t.Fatalf("err = %v, want ErrForeignDB", err)
	}
	if !mustBalance(t, l, bob).IsZero() {
		t.Error("foreign batch moved tokens")
	}
}

func TestTx_SeesStagedMoves(t *testing.T) {
	l := newTestLedger(t)
	err := l.Update(context.Background(), nil, func(tx *Tx) error {
		if err := tx.Transfer(alice, bob, types.Tokens(9000)); err != nil {
			return err
		}
		bal, err := tx.BalanceOf(alice)
		if err != nil {
			return err
		}
		if !bal.Eq(types.Tokens(1000)) {
			t.Errorf("staged alice = %s, want 1000 tokens", bal.Dec())
		}
		// Only 1000 left after the staged move.
		if err := tx.Transfer(alice, bob, types.Tokens(2000)); !errors.Is(err, ErrInsufficientBalance) {
			t.Errorf("overdraw err = %v, want ErrInsufficientBalance", err)
		}
		return errors.New("abort")
	})
	if err == nil || err.Error() != "abort" {
		t.Fatalf("err = %v, want abort", err)
	}
	if !mustBalance(t, l, alice).Eq(types.Tokens(10000)) {
		t.Errorf("aborted update moved tokens: alice = %s", mustBalance(t, l, alice).Dec())
	}
}
