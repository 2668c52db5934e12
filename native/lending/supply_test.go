package lending

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/wadray"
)

func TestSupplyAndWithdraw(t *testing.T) {
	f := newFixture(t)
	f.supply(alice, usdc, tokens(1_000))

	aToken := f.reserve(usdc).ATokenAddress
	expectEq(t, "supply balance", f.supplyBalance(usdc, alice), tokens(1_000))
	expectEq(t, "aToken ledger", f.ledger(usdc, aToken), tokens(1_000))
	expectEq(t, "virtual balance", f.reserve(usdc).VirtualUnderlyingBalance, tokens(1_000))

	cfg, err := f.pool.GetUserConfiguration(f.ctx, alice)
	if err != nil {
		t.Fatalf("user configuration: %v", err)
	}
	id := reserveID(t, f, usdc)
	if !cfg.IsUsingAsCollateral(id) {
		t.Fatalf("first supply should enable collateral")
	}

	withdrawn, err := f.pool.Withdraw(f.ctx, alice, usdc, wadray.Max(), bob)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	expectEq(t, "withdrawn", withdrawn, tokens(1_000))
	expectEq(t, "recipient ledger", f.ledger(usdc, bob), tokens(1_000))
	expectEq(t, "supply after withdraw", f.supplyBalance(usdc, alice), new(uint256.Int))

	cfg, err = f.pool.GetUserConfiguration(f.ctx, alice)
	if err != nil {
		t.Fatalf("user configuration: %v", err)
	}
	if cfg.IsUsingAsCollateral(id) {
		t.Fatalf("full withdraw should disable collateral")
	}
}

func TestSupplyValidation(t *testing.T) {
	f := newFixture(t)
	f.fund(usdc, alice, tokens(10))
	aToken := f.reserve(usdc).ATokenAddress

	cases := []struct {
		name       string
		asset      common.Address
		amount     *uint256.Int
		onBehalfOf common.Address
		err        error
	}{
		{"zero amount", usdc, new(uint256.Int), alice, ErrInvalidAmount},
		{"unlisted", carol, tokens(1), alice, ErrAssetNotListed},
		{"to aToken", usdc, tokens(1), aToken, ErrSupplyToAToken},
		{"insufficient funds", usdc, tokens(11), alice, ErrTransferFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.pool.Supply(f.ctx, alice, tc.asset, tc.amount, tc.onBehalfOf)
			expectErr(t, err, tc.err)
		})
	}
}

func TestSupplyRespectsReserveState(t *testing.T) {
	f := newFixture(t)
	f.supply(alice, usdc, tokens(10))
	f.fund(usdc, alice, tokens(10))

	if err := f.pool.SetReserveFreeze(f.ctx, admin, usdc, true); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	expectErr(t, f.pool.Supply(f.ctx, alice, usdc, tokens(1), alice), ErrReserveFrozen)
	if _, err := f.pool.Withdraw(f.ctx, alice, usdc, tokens(1), alice); err != nil {
		t.Fatalf("withdraw from frozen reserve: %v", err)
	}

	if err := f.pool.SetReservePause(f.ctx, admin, usdc, true, 0); err != nil {
		t.Fatalf("pause: %v", err)
	}
	_, err := f.pool.Withdraw(f.ctx, alice, usdc, tokens(1), alice)
	expectErr(t, err, ErrReservePaused)
}

func TestSupplyCap(t *testing.T) {
	f := newFixture(t)
	if err := f.pool.SetSupplyCap(f.ctx, admin, usdc, 1_000); err != nil {
		t.Fatalf("supply cap: %v", err)
	}
	f.fund(usdc, alice, tokens(1_001))
	expectErr(t, f.pool.Supply(f.ctx, alice, usdc, tokens(1_001), alice), ErrSupplyCapExceeded)
	if err := f.pool.Supply(f.ctx, alice, usdc, tokens(1_000), alice); err != nil {
		t.Fatalf("supply at cap: %v", err)
	}
}

func TestWithdrawNeverExceedsDeposit(t *testing.T) {
	f := newFixture(t)
	f.rates.set(usdc, dec(t, "50000000000000000000000000"), nil)
	f.supply(bob, usdc, tokens(1_000))
	f.advance(secondsDuration(SecondsPerYear))

	for _, raw := range []string{"7", "1000000000000000001", "333333333333333333333"} {
		amount := dec(t, raw)
		f.supply(carol, usdc, amount)
		withdrawn, err := f.pool.Withdraw(f.ctx, carol, usdc, wadray.Max(), carol)
		if err != nil {
			t.Fatalf("withdraw %s: %v", raw, err)
		}
		if withdrawn.Gt(amount) {
			t.Fatalf("withdrew %s after supplying %s", withdrawn.Dec(), raw)
		}
		if diff := new(uint256.Int).Sub(amount, withdrawn); diff.Gt(uint256.NewInt(1)) {
			t.Fatalf("lost %s wei on a round trip of %s", diff.Dec(), raw)
		}
	}

	f.fund(usdc, carol, uint256.NewInt(1))
	expectErr(t, f.pool.Supply(f.ctx, carol, usdc, uint256.NewInt(1), carol), ErrInvalidMintAmount)
}

func TestWithdrawMoreThanBalance(t *testing.T) {
	f := newFixture(t)
	f.supply(alice, usdc, tokens(5))
	_, err := f.pool.Withdraw(f.ctx, alice, usdc, tokens(6), alice)
	expectErr(t, err, ErrNotEnoughAvailableUserBalance)
}

func TestTransferSupplyEnablesReceiverCollateral(t *testing.T) {
	f := newFixture(t)
	f.supply(alice, weth, tokens(10))

	if err := f.pool.TransferSupply(f.ctx, alice, carol, weth, tokens(4)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	expectEq(t, "sender", f.supplyBalance(weth, alice), tokens(6))
	expectEq(t, "receiver", f.supplyBalance(weth, carol), tokens(4))

	cfg, err := f.pool.GetUserConfiguration(f.ctx, carol)
	if err != nil {
		t.Fatalf("user configuration: %v", err)
	}
	if !cfg.IsUsingAsCollateral(reserveID(t, f, weth)) {
		t.Fatalf("receiver collateral not enabled")
	}

	expectErr(t, f.pool.TransferSupply(f.ctx, alice, alice, weth, tokens(1)), ErrSameAccount)
	expectErr(t, f.pool.TransferSupply(f.ctx, alice, carol, weth, tokens(7)), ErrNotEnoughAvailableUserBalance)
}

func TestTransferSupplyChecksSenderHealth(t *testing.T) {
	f := newFixture(t)
	f.supply(alice, weth, tokens(10))
	f.supply(bob, usdc, tokens(100_000))
	f.borrow(alice, usdc, tokens(10_000))

	err := f.pool.TransferSupply(f.ctx, alice, carol, weth, tokens(5))
	expectErr(t, err, ErrHealthFactorLowerThanLiquidationThreshold)
	if err := f.pool.TransferSupply(f.ctx, alice, carol, weth, tokens(1)); err != nil {
		t.Fatalf("small transfer: %v", err)
	}
}

func TestSetUserUseReserveAsCollateral(t *testing.T) {
	f := newFixture(t)
	f.supply(alice, weth, tokens(10))
	f.supply(alice, usdc, tokens(5_000))
	f.supply(bob, usdc, tokens(100_000))
	f.borrow(alice, usdc, tokens(10_000))

	expectErr(t, f.pool.SetUserUseReserveAsCollateral(f.ctx, alice, weth, false, alice), ErrHealthFactorLowerThanLiquidationThreshold)
	expectErr(t, f.pool.SetUserUseReserveAsCollateral(f.ctx, carol, weth, false, alice), ErrCallerNotPositionManager)
	expectErr(t, f.pool.SetUserUseReserveAsCollateral(f.ctx, carol, weth, true, carol), ErrUnderlyingBalanceZero)

	if err := f.pool.SetUserUseReserveAsCollateral(f.ctx, alice, usdc, false, alice); err != nil {
		t.Fatalf("disable usdc collateral: %v", err)
	}
	if err := f.pool.ApprovePositionManager(f.ctx, alice, carol, true); err != nil {
		t.Fatalf("approve manager: %v", err)
	}
	if ok, err := f.pool.IsPositionManager(f.ctx, alice, carol); err != nil || !ok {
		t.Fatalf("manager not approved: %v", err)
	}
	if err := f.pool.SetUserUseReserveAsCollateral(f.ctx, carol, usdc, true, alice); err != nil {
		t.Fatalf("manager enables collateral: %v", err)
	}
	if err := f.pool.RenouncePositionManager(f.ctx, carol, alice); err != nil {
		t.Fatalf("renounce: %v", err)
	}
	expectErr(t, f.pool.SetUserUseReserveAsCollateral(f.ctx, carol, usdc, false, alice), ErrCallerNotPositionManager)
}

func TestZeroLTVCollateralIsNotEnabledAutomatically(t *testing.T) {
	f := newFixture(t)
	if err := f.pool.ConfigureReserveAsCollateral(f.ctx, admin, usdc, 0, 8_500, 10_400); err != nil {
		t.Fatalf("configure: %v", err)
	}
	f.supply(alice, usdc, tokens(100))
	data := f.account(alice)
	if !data.TotalCollateralBase.IsZero() || !data.AvailableBorrowsBase.IsZero() {
		t.Fatalf("zero ltv deposit should not count as collateral")
	}
	expectErr(t, f.pool.SetUserUseReserveAsCollateral(f.ctx, alice, usdc, true, alice), ErrUserInIsolationModeOrLTVZero)
}

func TestDisablingCollateralRespectsZeroLTV(t *testing.T) {
	f := newFixture(t)
	f.supply(alice, weth, tokens(10))
	f.supply(alice, usdc, tokens(5_000))
	f.supply(bob, usdc, tokens(100_000))
	f.borrow(alice, usdc, tokens(1_000))
	if err := f.pool.ConfigureReserveAsCollateral(f.ctx, admin, usdc, 0, 8_500, 10_400); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if !f.account(alice).HasZeroLTVCollateral {
		t.Fatalf("usdc should count as zero ltv collateral")
	}

	// Healthy either way, but weth carries ltv while usdc is still enabled.
	expectErr(t, f.pool.SetUserUseReserveAsCollateral(f.ctx, alice, weth, false, alice), ErrLTVValidationFailed)
	if err := f.pool.SetUserUseReserveAsCollateral(f.ctx, alice, usdc, false, alice); err != nil {
		t.Fatalf("disable zero ltv collateral: %v", err)
	}
	if f.account(alice).HasZeroLTVCollateral {
		t.Fatalf("zero ltv collateral still enabled")
	}
}
