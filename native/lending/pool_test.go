package lending

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"

	nativecommon "lendcore/native/common"
	"lendcore/storage"
)

func TestPoolRequiresState(t *testing.T) {
	pool := NewPool(nil, newStubRates(), nil, nil)
	err := pool.Supply(context.Background(), alice, usdc, tokens(1), alice)
	expectErr(t, err, ErrStateNotConfigured)
}

func TestFailedActionLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.supply(alice, weth, tokens(10))
	f.supply(bob, usdc, tokens(100_000))
	f.borrow(alice, usdc, tokens(10_000))
	before := len(f.events.events)

	_, err := f.pool.Withdraw(f.ctx, alice, weth, tokens(5), alice)
	expectErr(t, err, ErrHealthFactorLowerThanLiquidationThreshold)

	expectEq(t, "supply after failed withdraw", f.supplyBalance(weth, alice), tokens(10))
	expectEq(t, "ledger after failed withdraw", f.ledger(weth, alice), new(uint256.Int))
	expectEq(t, "virtual balance", f.reserve(weth).VirtualUnderlyingBalance, tokens(10))
	if len(f.events.events) != before {
		t.Fatalf("failed action emitted %d events", len(f.events.events)-before)
	}
}

func TestCollaboratorFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.fund(usdc, alice, tokens(100))
	f.rates.fail = errors.New("curve unavailable")

	err := f.pool.Supply(f.ctx, alice, usdc, tokens(100), alice)
	var collaborator *CollaboratorError
	if !errors.As(err, &collaborator) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
	if Classify(err) != ClassExternal {
		t.Fatalf("expected external class, got %s", Classify(err))
	}
	expectEq(t, "ledger", f.ledger(usdc, alice), tokens(100))
	expectEq(t, "supply", f.supplyBalance(usdc, alice), new(uint256.Int))
}

func TestReentrantContextRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.WithValue(f.ctx, actionKey{}, "supply")
	err := f.pool.Supply(ctx, alice, usdc, tokens(1), alice)
	expectErr(t, err, ErrReentrantCall)
	_, err = f.pool.GetUserAccountData(ctx, alice)
	expectErr(t, err, ErrReentrantCall)
}

func TestModulePauseGuardsUserActions(t *testing.T) {
	f := newFixture(t)
	pauses := nativecommon.NewSwitch()
	f.pool.SetPauses(pauses)
	f.fund(usdc, alice, tokens(10))

	pauses.Set(ModuleName, true)
	expectErr(t, f.pool.Supply(f.ctx, alice, usdc, tokens(10), alice), nativecommon.ErrModulePaused)
	if err := f.pool.SetSupplyCap(f.ctx, admin, usdc, 1_000); err != nil {
		t.Fatalf("configuration should not be paused: %v", err)
	}
	if _, err := f.pool.GetReservesList(f.ctx); err != nil {
		t.Fatalf("views should not be paused: %v", err)
	}

	pauses.Set(ModuleName, false)
	if err := f.pool.Supply(f.ctx, alice, usdc, tokens(10), alice); err != nil {
		t.Fatalf("supply after resume: %v", err)
	}
}

func TestEventsEmittedAfterCommit(t *testing.T) {
	f := newFixture(t)
	f.supply(alice, usdc, tokens(10))
	if n := f.events.count(TypeSupply); n != 1 {
		t.Fatalf("expected one supply event, got %d", n)
	}
	if n := f.events.count(TypeCollateralEnabled); n != 1 {
		t.Fatalf("expected collateral enabled event, got %d", n)
	}
	if n := f.events.count(TypeReserveDataUpdated); n == 0 {
		t.Fatalf("expected reserve data update")
	}
}

func TestStatePersistsAcrossPools(t *testing.T) {
	f := newFixture(t)
	f.supply(alice, weth, tokens(3))

	reopened := NewPool(f.db, f.rates, f.prices, f.roles)
	reopened.SetClock(func() time.Time { return f.now })
	balance, err := reopened.SupplyBalance(f.ctx, weth, alice)
	if err != nil {
		t.Fatalf("supply balance: %v", err)
	}
	expectEq(t, "persisted supply", balance, tokens(3))
	list, err := reopened.GetReservesList(f.ctx)
	if err != nil {
		t.Fatalf("reserves list: %v", err)
	}
	if len(list) != 2 || list[0] != weth || list[1] != usdc {
		t.Fatalf("unexpected reserves list %v", list)
	}
}

func TestLevelDBBackedPool(t *testing.T) {
	db, err := storage.NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	f := newFixture(t)
	pool := NewPool(db, f.rates, f.prices, f.roles)
	if _, err := pool.InitReserve(f.ctx, admin, InitReserveInput{Asset: weth, Decimals: 18}); err != nil {
		t.Fatalf("init reserve: %v", err)
	}
	r, err := pool.GetReserveData(f.ctx, weth)
	if err != nil {
		t.Fatalf("reserve data: %v", err)
	}
	if !r.Configuration.Active() || !r.Configuration.FlashLoanEnabled() {
		t.Fatalf("new reserve should be active with flash loans enabled")
	}
}
