package lending

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/oracle"
	"lendcore/native/lending/wadray"
)

// liquidationFixture leaves alice owing 10k USDC against 10 WETH, with the
// liquidator holding enough USDC to cover it all.
func liquidationFixture(t *testing.T) *fixture {
	t.Helper()
	f := borrowFixture(t)
	f.borrow(alice, usdc, tokens(10_000))
	f.fund(usdc, liquidator, tokens(10_000))
	return f
}

func liquidate(f *fixture, cover *uint256.Int, receiveAToken bool) (*LiquidationResult, error) {
	return f.pool.LiquidationCall(f.ctx, LiquidationCallParams{
		Liquidator:      liquidator,
		CollateralAsset: weth,
		DebtAsset:       usdc,
		User:            alice,
		DebtToCover:     cover,
		ReceiveAToken:   receiveAToken,
	})
}

func TestLiquidationRequiresUnhealthyPosition(t *testing.T) {
	f := liquidationFixture(t)
	_, err := liquidate(f, tokens(1_000), false)
	expectErr(t, err, ErrHealthFactorNotBelowThreshold)

	f.setPrice(weth, 1_000)
	_, err = f.pool.LiquidationCall(f.ctx, LiquidationCallParams{
		Liquidator:      liquidator,
		CollateralAsset: weth,
		DebtAsset:       weth,
		User:            alice,
		DebtToCover:     tokens(1),
	})
	expectErr(t, err, ErrSpecifiedCurrencyNotBorrowedByUser)
	_, err = liquidate(f, new(uint256.Int), false)
	expectErr(t, err, ErrInvalidAmount)
}

func TestPartialLiquidation(t *testing.T) {
	f := liquidationFixture(t)
	f.setPrice(weth, 1_000)

	res, err := liquidate(f, tokens(5_000), false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	expectEq(t, "debt repaid", res.DebtRepaid, tokens(5_000))
	expectEq(t, "collateral seized", res.CollateralSeized, milli(5_250))
	if res.CollateralCleared || !res.DeficitCreated.IsZero() {
		t.Fatalf("partial liquidation should not clear or book deficit")
	}

	expectEq(t, "liquidator collateral", f.ledger(weth, liquidator), milli(5_250))
	expectEq(t, "liquidator funds", f.ledger(usdc, liquidator), tokens(5_000))
	expectEq(t, "user collateral", f.supplyBalance(weth, alice), milli(4_750))
	expectEq(t, "user debt", f.debtBalance(usdc, alice), tokens(5_000))
	expectEq(t, "weth virtual", f.reserve(weth).VirtualUnderlyingBalance, milli(4_750))
	if n := f.events.count(TypeLiquidationCall); n != 1 {
		t.Fatalf("expected one liquidation event, got %d", n)
	}
}

func TestLiquidationProtocolFee(t *testing.T) {
	f := liquidationFixture(t)
	if err := f.pool.SetLiquidationProtocolFee(f.ctx, admin, weth, 1_000); err != nil {
		t.Fatalf("protocol fee: %v", err)
	}
	f.setPrice(weth, 1_000)

	res, err := liquidate(f, tokens(5_000), false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	expectEq(t, "protocol fee", res.ProtocolFee, milli(25))
	expectEq(t, "liquidator collateral", f.ledger(weth, liquidator), milli(5_225))
	expectEq(t, "treasury shares", f.supplyBalance(weth, f.pool.Treasury()), milli(25))
	expectEq(t, "user collateral", f.supplyBalance(weth, alice), milli(4_750))
}

func TestLiquidationReceivingDepositShares(t *testing.T) {
	f := liquidationFixture(t)
	f.setPrice(weth, 1_000)

	if _, err := liquidate(f, tokens(5_000), true); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	expectEq(t, "liquidator shares", f.supplyBalance(weth, liquidator), milli(5_250))
	expectEq(t, "liquidator ledger", f.ledger(weth, liquidator), new(uint256.Int))
	expectEq(t, "weth virtual", f.reserve(weth).VirtualUnderlyingBalance, tokens(10))

	cfg, err := f.pool.GetUserConfiguration(f.ctx, liquidator)
	if err != nil {
		t.Fatalf("user configuration: %v", err)
	}
	if !cfg.IsUsingAsCollateral(reserveID(t, f, weth)) {
		t.Fatalf("seized shares should become collateral")
	}
}

func TestCloseFactorLimitsHealthyishPositions(t *testing.T) {
	f := liquidationFixture(t)
	f.setPrice(weth, 1_200)
	if hf := f.account(alice).HealthFactor; !hf.Eq(dec(t, "990000000000000000")) {
		t.Fatalf("unexpected health factor %s", hf.Dec())
	}

	res, err := liquidate(f, wadray.Max(), false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	expectEq(t, "debt repaid", res.DebtRepaid, tokens(5_000))
	// 5000/1200 WETH rounds down before the 5% bonus is applied.
	expectEq(t, "collateral seized", res.CollateralSeized, dec(t, "4374999999999999999"))
	expectEq(t, "remaining debt", f.debtBalance(usdc, alice), tokens(5_000))
}

func TestLiquidationMustNotLeaveDust(t *testing.T) {
	f := liquidationFixture(t)
	f.setPrice(weth, 1_000)
	_, err := liquidate(f, tokens(9_500), false)
	expectErr(t, err, ErrMustNotLeaveDust)
	expectEq(t, "debt untouched", f.debtBalance(usdc, alice), tokens(10_000))
}

func TestLiquidationBooksDeficit(t *testing.T) {
	f := liquidationFixture(t)
	f.setPrice(weth, 1_000)

	res, err := liquidate(f, wadray.Max(), false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	repaid := dec(t, "9523809523809523809524")
	deficit := dec(t, "476190476190476190476")
	expectEq(t, "debt repaid", res.DebtRepaid, repaid)
	expectEq(t, "collateral seized", res.CollateralSeized, tokens(10))
	expectEq(t, "deficit", res.DeficitCreated, deficit)
	if !res.CollateralCleared {
		t.Fatalf("collateral should be cleared")
	}
	expectEq(t, "reserve deficit", f.reserve(usdc).Deficit, deficit)
	expectEq(t, "debt written off", f.debtBalance(usdc, alice), new(uint256.Int))

	cfg, err := f.pool.GetUserConfiguration(f.ctx, alice)
	if err != nil {
		t.Fatalf("user configuration: %v", err)
	}
	if !cfg.IsEmpty() {
		t.Fatalf("user should hold no positions after a full write-off")
	}
	if n := f.events.count(TypeDeficitCreated); n != 1 {
		t.Fatalf("expected one deficit event, got %d", n)
	}

	_, err = f.pool.EliminateReserveDeficit(f.ctx, bob, usdc, wadray.Max())
	expectErr(t, err, ErrUnauthorized)

	f.grant(RoleDeficitCoverer, bob)
	covered, err := f.pool.EliminateReserveDeficit(f.ctx, bob, usdc, wadray.Max())
	if err != nil {
		t.Fatalf("eliminate deficit: %v", err)
	}
	expectEq(t, "covered", covered, deficit)
	expectEq(t, "deficit cleared", f.reserve(usdc).Deficit, new(uint256.Int))
	expectEq(t, "coverer deposit", f.supplyBalance(usdc, bob), new(uint256.Int).Sub(tokens(100_000), deficit))
	if n := f.events.count(TypeDeficitCovered); n != 1 {
		t.Fatalf("expected one deficit covered event, got %d", n)
	}

	_, err = f.pool.EliminateReserveDeficit(f.ctx, bob, usdc, tokens(1))
	expectErr(t, err, ErrReserveNotInDeficit)
}

func TestLiquidationWritesOffEveryDebtReserve(t *testing.T) {
	f := borrowFixture(t)
	f.setPrice(dai, 1)
	f.list(dai, 8_000, 8_500, 10_400)
	f.supply(bob, dai, tokens(100_000))
	f.borrow(alice, usdc, tokens(9_800))
	f.borrow(alice, dai, tokens(5_000))
	f.fund(usdc, liquidator, tokens(9_800))
	f.setPrice(weth, 1_000)

	res, err := liquidate(f, wadray.Max(), false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	usdcDeficit := dec(t, "276190476190476190476")
	expectEq(t, "debt repaid", res.DebtRepaid, dec(t, "9523809523809523809524"))
	expectEq(t, "collateral seized", res.CollateralSeized, tokens(10))
	expectEq(t, "total deficit", res.DeficitCreated, new(uint256.Int).Add(usdcDeficit, tokens(5_000)))

	expectEq(t, "usdc debt", f.debtBalance(usdc, alice), new(uint256.Int))
	expectEq(t, "dai debt", f.debtBalance(dai, alice), new(uint256.Int))
	expectEq(t, "usdc deficit", f.reserve(usdc).Deficit, usdcDeficit)
	expectEq(t, "dai deficit", f.reserve(dai).Deficit, tokens(5_000))

	cfg, err := f.pool.GetUserConfiguration(f.ctx, alice)
	if err != nil {
		t.Fatalf("user configuration: %v", err)
	}
	if !cfg.IsEmpty() {
		t.Fatalf("user should hold no positions after a full write-off")
	}
	if n := f.events.count(TypeDeficitCreated); n != 2 {
		t.Fatalf("expected two deficit events, got %d", n)
	}
}

func TestLiquidationGracePeriod(t *testing.T) {
	f := liquidationFixture(t)
	if err := f.pool.SetReservePause(f.ctx, admin, usdc, true, 0); err != nil {
		t.Fatalf("pause: %v", err)
	}
	f.setPrice(weth, 1_000)
	_, err := liquidate(f, tokens(1_000), false)
	expectErr(t, err, ErrReservePaused)

	expectErr(t, f.pool.SetReservePause(f.ctx, admin, usdc, false, MaxGracePeriod+1), ErrInvalidGracePeriod)
	if err := f.pool.SetReservePause(f.ctx, admin, usdc, false, 3_600); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	_, err = liquidate(f, tokens(1_000), false)
	expectErr(t, err, ErrLiquidationGracePeriodActive)

	f.advance(3_601 * time.Second)
	if _, err := liquidate(f, tokens(1_000), false); err != nil {
		t.Fatalf("liquidate after grace period: %v", err)
	}
}

func TestSentinelOnlyBlocksMildLiquidations(t *testing.T) {
	f := liquidationFixture(t)
	sentinel := oracle.NewSentinel(time.Hour, func() time.Time { return f.now })
	f.pool.SetSentinel(sentinel)
	sentinel.SetStatus(false)

	f.setPrice(weth, 1_200)
	_, err := liquidate(f, tokens(1_000), false)
	expectErr(t, err, ErrPriceOracleSentinelCheckFailed)

	f.setPrice(weth, 1_000)
	if _, err := liquidate(f, tokens(1_000), false); err != nil {
		t.Fatalf("deep liquidation should bypass the sentinel: %v", err)
	}
}

func TestHealthFactorFallsWithCollateralPrice(t *testing.T) {
	f := liquidationFixture(t)
	prev := f.account(alice).HealthFactor
	for _, price := range []uint64{1_900, 1_500, 1_250, 1_000, 500} {
		f.setPrice(weth, price)
		hf := f.account(alice).HealthFactor
		if !hf.Lt(prev) {
			t.Fatalf("health factor %s did not fall below %s at price %d", hf.Dec(), prev.Dec(), price)
		}
		prev = hf
	}
	if !f.account(common.HexToAddress("0xfeed")).HealthFactor.Eq(wadray.Max()) {
		t.Fatalf("debt-free account should report the maximum health factor")
	}
}

func TestHealthFactorTracksPositionSize(t *testing.T) {
	f := liquidationFixture(t)
	f.fund(weth, alice, tokens(3))
	prev := f.account(alice).HealthFactor
	for i := 0; i < 3; i++ {
		if err := f.pool.Supply(f.ctx, alice, weth, tokens(1), alice); err != nil {
			t.Fatalf("supply: %v", err)
		}
		hf := f.account(alice).HealthFactor
		if !hf.Gt(prev) {
			t.Fatalf("health factor %s did not rise above %s with more collateral", hf.Dec(), prev.Dec())
		}
		prev = hf
	}
	for i := 0; i < 3; i++ {
		f.borrow(alice, usdc, tokens(1_000))
		hf := f.account(alice).HealthFactor
		if !hf.Lt(prev) {
			t.Fatalf("health factor %s did not fall below %s with more debt", hf.Dec(), prev.Dec())
		}
		prev = hf
	}
}
