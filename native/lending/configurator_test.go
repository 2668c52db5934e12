package lending

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var dai = common.HexToAddress("0x0000000000000000000000000000000000000da1")

func TestConfigureReserveAsCollateralValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name                  string
		ltv, threshold, bonus uint64
	}{
		{"ltv above threshold", 9_000, 8_500, 10_500},
		{"bonus without premium", 8_000, 8_500, 10_000},
		{"bonus exceeds collateral", 9_000, 9_800, 10_300},
		{"bonus on disabled collateral", 0, 0, 10_500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.pool.ConfigureReserveAsCollateral(f.ctx, admin, usdc, tc.ltv, tc.threshold, tc.bonus)
			expectErr(t, err, ErrInvalidReserveParams)
		})
	}

	f.supply(alice, usdc, tokens(1))
	expectErr(t, f.pool.ConfigureReserveAsCollateral(f.ctx, admin, usdc, 0, 0, 0), ErrReserveLiquidityNotZero)
	if err := f.pool.ConfigureReserveAsCollateral(f.ctx, admin, weth, 0, 0, 0); err != nil {
		t.Fatalf("disable unused collateral: %v", err)
	}
	if n := f.events.count(TypeReserveConfigured); n == 0 {
		t.Fatalf("expected configuration events")
	}
}

func TestConfiguratorRequiresRoles(t *testing.T) {
	f := newFixture(t)
	expectErr(t, f.pool.SetSupplyCap(f.ctx, carol, usdc, 1), ErrUnauthorized)
	expectErr(t, f.pool.SetReserveFreeze(f.ctx, carol, usdc, true), ErrUnauthorized)
	expectErr(t, f.pool.SetFlashLoanPremiums(f.ctx, carol, 1, 1), ErrUnauthorized)
	_, err := f.pool.InitReserve(f.ctx, carol, InitReserveInput{Asset: dai, Decimals: 18})
	expectErr(t, err, ErrUnauthorized)

	f.grant(RoleEmergencyAdmin, carol)
	if err := f.pool.SetReserveFreeze(f.ctx, carol, usdc, true); err != nil {
		t.Fatalf("emergency admin freeze: %v", err)
	}
	expectErr(t, f.pool.SetSupplyCap(f.ctx, carol, usdc, 1), ErrUnauthorized)
}

func TestInitAndDropReserve(t *testing.T) {
	f := newFixture(t)
	_, err := f.pool.InitReserve(f.ctx, admin, InitReserveInput{Asset: weth, Decimals: 18})
	expectErr(t, err, ErrReserveAlreadyAdded)
	_, err = f.pool.InitReserve(f.ctx, admin, InitReserveInput{Decimals: 18})
	expectErr(t, err, ErrZeroAddress)

	f.supply(alice, usdc, tokens(1))
	expectErr(t, f.pool.DropReserve(f.ctx, admin, usdc), ErrReserveLiquidityNotZero)

	if err := f.pool.DropReserve(f.ctx, admin, weth); err != nil {
		t.Fatalf("drop: %v", err)
	}
	_, err = f.pool.GetReserveData(f.ctx, weth)
	expectErr(t, err, ErrAssetNotListed)

	id, err := f.pool.InitReserve(f.ctx, admin, InitReserveInput{Asset: dai, Decimals: 18})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if id != 0 {
		t.Fatalf("expected freed id 0 to be reused, got %d", id)
	}
	list, err := f.pool.GetReservesList(f.ctx)
	if err != nil {
		t.Fatalf("reserves list: %v", err)
	}
	if len(list) != 2 || list[0] != dai || list[1] != usdc {
		t.Fatalf("unexpected reserves list %v", list)
	}
}

func TestReserveSettingsValidation(t *testing.T) {
	f := newFixture(t)
	expectErr(t, f.pool.SetReserveFactor(f.ctx, admin, usdc, 10_001), ErrInvalidReserveParams)
	expectErr(t, f.pool.SetLiquidationProtocolFee(f.ctx, admin, usdc, 10_001), ErrInvalidReserveParams)
	expectErr(t, f.pool.SetLiquidationGracePeriod(f.ctx, admin, usdc, MaxGracePeriod+1), ErrInvalidGracePeriod)
	expectErr(t, f.pool.SetFlashLoanPremiums(f.ctx, admin, 10_001, 0), ErrInvalidFlashLoanPremium)
	expectErr(t, f.pool.SetSupplyCap(f.ctx, admin, carol, 1), ErrAssetNotListed)

	if err := f.pool.SetFlashLoanPremiums(f.ctx, admin, 9, 2_500); err != nil {
		t.Fatalf("premiums: %v", err)
	}
	params, err := f.pool.GetFlashLoanPremiums(f.ctx)
	if err != nil {
		t.Fatalf("premiums: %v", err)
	}
	if params.FlashLoanPremiumTotal != 9 || params.FlashLoanPremiumToProtocol != 2_500 {
		t.Fatalf("unexpected premiums %+v", params)
	}

	f.supply(alice, usdc, tokens(1))
	expectErr(t, f.pool.SetReserveActive(f.ctx, admin, usdc, false), ErrReserveLiquidityNotZero)
	expectErr(t, f.pool.SetDebtCeiling(f.ctx, admin, usdc, 100), ErrReserveLiquidityNotZero)
}

func TestEModeCategories(t *testing.T) {
	f := borrowFixture(t)
	expectErr(t, f.pool.SetEModeCategory(f.ctx, admin, 0, 9_000, 9_300, 10_200, "zero"), ErrInvalidEModeCategory)
	expectErr(t, f.pool.SetEModeCategory(f.ctx, admin, 1, 0, 9_300, 10_200, "no ltv"), ErrInvalidEModeCategoryParams)
	expectErr(t, f.pool.SetAssetCollateralInEMode(f.ctx, admin, weth, 1, true), ErrInconsistentEModeCategory)

	if err := f.pool.SetEModeCategory(f.ctx, admin, 1, 9_000, 9_300, 10_200, "eth-usd"); err != nil {
		t.Fatalf("e-mode category: %v", err)
	}
	if err := f.pool.SetAssetCollateralInEMode(f.ctx, admin, weth, 1, true); err != nil {
		t.Fatalf("e-mode collateral: %v", err)
	}
	if err := f.pool.SetAssetBorrowableInEMode(f.ctx, admin, usdc, 1, true); err != nil {
		t.Fatalf("e-mode borrowable: %v", err)
	}
	if err := f.pool.SetEModeCategory(f.ctx, admin, 2, 8_000, 8_500, 10_500, "empty"); err != nil {
		t.Fatalf("e-mode category: %v", err)
	}
	category, err := f.pool.GetEModeCategory(f.ctx, 1)
	if err != nil {
		t.Fatalf("get category: %v", err)
	}
	if category.Label != "eth-usd" || !category.Collateral.Contains(reserveID(t, f, weth)) {
		t.Fatalf("unexpected category %+v", category)
	}

	expectErr(t, f.pool.SetUserEMode(f.ctx, carol, 1, alice), ErrCallerNotPositionManager)
	expectErr(t, f.pool.SetUserEMode(f.ctx, alice, 3, alice), ErrInconsistentEModeCategory)
	if err := f.pool.SetUserEMode(f.ctx, alice, 1, alice); err != nil {
		t.Fatalf("enter e-mode: %v", err)
	}
	data := f.account(alice)
	if data.CurrentLTV != 9_000 || data.CurrentLiquidationThreshold != 9_300 {
		t.Fatalf("e-mode params not applied: %d/%d", data.CurrentLTV, data.CurrentLiquidationThreshold)
	}
	expectEq(t, "available", data.AvailableBorrowsBase, base(18_000))

	f.borrow(alice, usdc, tokens(17_000))
	expectErr(t, f.pool.SetUserEMode(f.ctx, alice, 0, alice), ErrHealthFactorLowerThanLiquidationThreshold)
	expectErr(t, f.pool.SetUserEMode(f.ctx, alice, 2, alice), ErrNotBorrowableInEMode)
	mode, err := f.pool.GetUserEMode(f.ctx, alice)
	if err != nil {
		t.Fatalf("user e-mode: %v", err)
	}
	if mode != 1 {
		t.Fatalf("failed switch should keep category 1, got %d", mode)
	}

	// Only the category's borrowable assets may be borrowed in e-mode.
	expectErr(t, f.pool.Borrow(f.ctx, alice, weth, milli(1), InterestRateModeVariable, alice), ErrNotBorrowableInEMode)
}
