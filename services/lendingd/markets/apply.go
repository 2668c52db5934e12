package markets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/native/lending"
	"lendcore/native/lending/acl"
	"lendcore/native/lending/oracle"
	"lendcore/native/lending/ratestrategy"
)

// Deps are the collaborators a listing is applied to.
type Deps struct {
	Pool     *lending.Pool
	Prices   *oracle.Static
	Strategy *ratestrategy.Strategy
	Roles    *acl.Manager
	Logger   *slog.Logger
}

// Apply grants roles, seeds prices and rate curves, and lists every market
// that the pool does not know yet. Markets already present keep their stored
// configuration. operator must hold the admin roles after the grants.
func Apply(ctx context.Context, file *File, operator common.Address, deps Deps) ([]common.Address, error) {
	if file == nil || deps.Pool == nil || deps.Prices == nil || deps.Strategy == nil || deps.Roles == nil {
		return nil, errors.New("markets: incomplete dependencies")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for role, accounts := range file.Grants() {
		for _, account := range accounts {
			if err := deps.Roles.Grant(role, account); err != nil {
				return nil, fmt.Errorf("grant %s: %w", role, err)
			}
		}
	}
	if treasury := file.TreasuryAddress(); treasury != (common.Address{}) {
		deps.Pool.SetTreasury(treasury)
	}

	var listed []common.Address
	for _, market := range file.Markets {
		asset := market.AssetAddress()
		price, err := market.PriceValue()
		if err != nil {
			return listed, fmt.Errorf("%s: %w", market.Symbol, err)
		}
		if err := deps.Prices.SetPrice(asset, price); err != nil {
			return listed, fmt.Errorf("%s: set price: %w", market.Symbol, err)
		}
		if market.Rates != nil {
			if err := deps.Strategy.SetReserveParams(asset, *market.Rates); err != nil {
				return listed, fmt.Errorf("%s: rates: %w", market.Symbol, err)
			}
		}

		_, err = deps.Pool.InitReserve(ctx, operator, lending.InitReserveInput{Asset: asset, Decimals: market.Decimals})
		if errors.Is(err, lending.ErrReserveAlreadyAdded) {
			logger.Info("market already listed", slog.String("symbol", market.Symbol), slog.String("asset", asset.Hex()))
			continue
		}
		if err != nil {
			return listed, fmt.Errorf("%s: init reserve: %w", market.Symbol, err)
		}
		if err := configure(ctx, deps.Pool, operator, market); err != nil {
			return listed, fmt.Errorf("%s: %w", market.Symbol, err)
		}
		listed = append(listed, asset)
		logger.Info("market listed", slog.String("symbol", market.Symbol), slog.String("asset", asset.Hex()))
	}

	if file.FlashLoan.PremiumTotal != 0 || file.FlashLoan.PremiumToProtocol != 0 {
		if err := deps.Pool.SetFlashLoanPremiums(ctx, operator, file.FlashLoan.PremiumTotal, file.FlashLoan.PremiumToProtocol); err != nil {
			return listed, fmt.Errorf("flash loan premiums: %w", err)
		}
	}
	for _, category := range file.EMode {
		if err := applyEMode(ctx, file, deps.Pool, operator, category); err != nil {
			return listed, fmt.Errorf("e-mode %d: %w", category.ID, err)
		}
	}
	return listed, nil
}

func configure(ctx context.Context, pool *lending.Pool, operator common.Address, m Market) error {
	asset := m.AssetAddress()
	if m.LTV != 0 || m.LiquidationThreshold != 0 || m.LiquidationBonus != 0 {
		if err := pool.ConfigureReserveAsCollateral(ctx, operator, asset, m.LTV, m.LiquidationThreshold, m.LiquidationBonus); err != nil {
			return fmt.Errorf("collateral: %w", err)
		}
	}
	steps := []struct {
		name string
		skip bool
		fn   func() error
	}{
		{"reserve factor", m.ReserveFactor == 0, func() error { return pool.SetReserveFactor(ctx, operator, asset, m.ReserveFactor) }},
		{"borrowing", !m.Borrowing, func() error { return pool.SetReserveBorrowing(ctx, operator, asset, true) }},
		{"flash loans", !m.DisableFlashLoans, func() error { return pool.SetReserveFlashLoaning(ctx, operator, asset, false) }},
		{"supply cap", m.SupplyCap == 0, func() error { return pool.SetSupplyCap(ctx, operator, asset, m.SupplyCap) }},
		{"borrow cap", m.BorrowCap == 0, func() error { return pool.SetBorrowCap(ctx, operator, asset, m.BorrowCap) }},
		{"liquidation fee", m.LiquidationProtocolFee == 0, func() error {
			return pool.SetLiquidationProtocolFee(ctx, operator, asset, m.LiquidationProtocolFee)
		}},
		{"debt ceiling", m.DebtCeiling == 0, func() error { return pool.SetDebtCeiling(ctx, operator, asset, m.DebtCeiling) }},
		{"isolation borrowing", !m.BorrowableInIsolation, func() error {
			return pool.SetBorrowableInIsolation(ctx, operator, asset, true)
		}},
		{"siloed", !m.Siloed, func() error { return pool.SetSiloedBorrowing(ctx, operator, asset, true) }},
	}
	for _, step := range steps {
		if step.skip {
			continue
		}
		if err := step.fn(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

func applyEMode(ctx context.Context, file *File, pool *lending.Pool, operator common.Address, category EMode) error {
	if err := pool.SetEModeCategory(ctx, operator, category.ID, category.LTV, category.LiquidationThreshold, category.LiquidationBonus, category.Label); err != nil {
		return err
	}
	for _, symbol := range category.Collateral {
		asset, _ := file.Lookup(symbol)
		if err := pool.SetAssetCollateralInEMode(ctx, operator, asset, category.ID, true); err != nil {
			return fmt.Errorf("collateral %s: %w", symbol, err)
		}
	}
	for _, symbol := range category.Borrowable {
		asset, _ := file.Lookup(symbol)
		if err := pool.SetAssetBorrowableInEMode(ctx, operator, asset, category.ID, true); err != nil {
			return fmt.Errorf("borrowable %s: %w", symbol, err)
		}
	}
	return nil
}
