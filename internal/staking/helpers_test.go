package staking

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	klog "github.com/Klingon-tech/tip-staking/internal/log"
	"github.com/Klingon-tech/tip-staking/internal/storage"
	"github.com/Klingon-tech/tip-staking/internal/token"
	"github.com/Klingon-tech/tip-staking/pkg/types"
	"github.com/holiman/uint256"
)

var (
	owner = types.Address{0x01}
	user1 = types.Address{0x11}
	user2 = types.Address{0x12}
	user3 = types.Address{0x13}
)

var genesisTime = time.Unix(1_700_000_000, 0)

type testEnv struct {
	engine *Engine
	token  *token.Ledger
	clock  *ManualClock
	db     *flakyDB   // shared by the token ledger and the engine
	stk    storage.DB // the engine's namespace in db
}

// setupTestEnv mirrors a fresh deployment: three users holding 10000 tokens
// each with unlimited approval, and a 100000 token reward pool in custody.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	db := &flakyDB{MemoryDB: storage.NewMemory()}
	ledger, err := token.NewLedger(storage.NewPrefixDB(db, storage.PrefixToken), &token.Metadata{
		Name:     "TIP Token",
		Symbol:   "TIP",
		Decimals: 18,
		Creator:  owner,
	})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	env := &testEnv{
		token: ledger,
		clock: NewManualClock(genesisTime),
		db:    db,
		stk:   storage.NewPrefixDB(db, storage.PrefixStaking),
	}
	env.engine = env.newEngine(t)

	ctx := context.Background()
	if err := ledger.Mint(owner, types.Tokens(200000)); err != nil {
		t.Fatalf("Mint owner: %v", err)
	}
	if err := ledger.Transfer(ctx, owner, env.engine.Custody(), types.Tokens(100000)); err != nil {
		t.Fatalf("fund reward pool: %v", err)
	}
	for _, u := range []types.Address{user1, user2, user3} {
		if err := ledger.Mint(u, types.Tokens(10000)); err != nil {
			t.Fatalf("Mint user: %v", err)
		}
		if err := ledger.Approve(ctx, u, env.engine.Custody(), token.MaxAllowance()); err != nil {
			t.Fatalf("Approve: %v", err)
		}
	}
	return env
}

func (env *testEnv) newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{
		Token:   env.token,
		TokenID: env.token.ID(),
		Owner:   owner,
		Clock:   env.clock,
		DB:      env.stk,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func (env *testEnv) balance(t *testing.T, addr types.Address) *uint256.Int {
	t.Helper()
	bal, err := env.token.BalanceOf(addr)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	return bal
}

func (env *testEnv) stake(t *testing.T, addr types.Address, n uint64) {
	t.Helper()
	if err := env.engine.Stake(context.Background(), addr, types.Tokens(n)); err != nil {
		t.Fatalf("Stake(%d): %v", n, err)
	}
	checkInvariants(t, env.engine)
}

func checkInvariants(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func mustPending(t *testing.T, e *Engine, addr types.Address) *uint256.Int {
	t.Helper()
	p, err := e.Pending(addr)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	return p
}

func assertAmount(t *testing.T, what string, got, want *uint256.Int) {
	t.Helper()
	if !got.Eq(want) {
		t.Errorf("%s = %s, want %s", what, got.Dec(), want.Dec())
	}
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("err = %v, want %v", err, target)
	}
}

var errFlaky = errors.New("disk on fire")

// flakyDB fails batch commits while fail is set.
type flakyDB struct {
	*storage.MemoryDB
	fail atomic.Bool
}

func (f *flakyDB) NewBatch() storage.Batch {
	return &flakyBatch{Batch: f.MemoryDB.NewBatch(), db: f}
}

type flakyBatch struct {
	storage.Batch
	db *flakyDB
}

func (b *flakyBatch) Commit() error {
	if b.db.fail.Load() {
		return errFlaky
	}
	return b.Batch.Commit()
}

// failingToken wraps a ledger and fails every token update while fail
// is set.
type failingToken struct {
	TokenLedger
	fail atomic.Bool
}

func (f *failingToken) Update(ctx context.Context, sb *storage.SharedBatch, fn func(*token.Tx) error) error {
	if f.fail.Load() {
		return errFlaky
	}
	return f.TokenLedger.Update(ctx, sb, fn)
}

// stakingKeys counts the keys the engine has persisted.
func (env *testEnv) stakingKeys(t *testing.T) int {
	t.Helper()
	n := 0
	if err := env.stk.ForEach(nil, func(_, _ []byte) error {
		n++
		return nil
	}); err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	return n
}
