package lending

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/configuration"
	"lendcore/native/lending/wadray"
)

func requireAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

// requireUsable checks the reserve is active and not paused.
func requireUsable(cfg configuration.ReserveMap) error {
	flags := cfg.Flags()
	if !flags.Active {
		return ErrReserveInactive
	}
	if flags.Paused {
		return ErrReservePaused
	}
	return nil
}

// requireOpen additionally rejects frozen reserves.
func requireOpen(cfg configuration.ReserveMap) error {
	if err := requireUsable(cfg); err != nil {
		return err
	}
	if cfg.Flags().Frozen {
		return ErrReserveFrozen
	}
	return nil
}

func capUnits(limit, decimals uint64) (*uint256.Int, error) {
	return checkedMul(uint256.NewInt(limit), wadray.Pow10(decimals))
}

func (s *session) validateSupply(reserve *ReserveData, cache *ReserveCache, asset common.Address, amount *uint256.Int, onBehalfOf common.Address) error {
	if err := requireAmount(amount); err != nil {
		return err
	}
	if err := requireOpen(cache.Configuration); err != nil {
		return err
	}
	if onBehalfOf == cache.ATokenAddress {
		return ErrSupplyToAToken
	}
	supplyCap := cache.Configuration.SupplyCap()
	if supplyCap == 0 {
		return nil
	}
	scaled, err := s.tx.scaledTotal(supplyShares, asset)
	if err != nil {
		return err
	}
	scaled, err = wadray.Add(scaled, reserve.AccruedToTreasury)
	if err != nil {
		return err
	}
	supplied, err := wadray.RayMul(scaled, cache.NextLiquidityIndex)
	if err != nil {
		return err
	}
	if supplied, err = wadray.Add(supplied, amount); err != nil {
		return err
	}
	limit, err := capUnits(supplyCap, cache.Configuration.Decimals())
	if err != nil {
		return err
	}
	if supplied.Gt(limit) {
		return ErrSupplyCapExceeded
	}
	return nil
}

func validateWithdraw(cache *ReserveCache, amount, userBalance *uint256.Int) error {
	if err := requireAmount(amount); err != nil {
		return err
	}
	if amount.Gt(userBalance) {
		return ErrNotEnoughAvailableUserBalance
	}
	return requireUsable(cache.Configuration)
}

type borrowParams struct {
	asset             common.Address
	user              common.Address
	onBehalfOf        common.Address
	amount            *uint256.Int
	mode              InterestRateMode
	releaseUnderlying bool
	cfg               configuration.UserMap
	eModeID           uint8
	isolation         isolationState
}

func (s *session) validateBorrow(reserve *ReserveData, cache *ReserveCache, p borrowParams) error {
	if err := requireAmount(p.amount); err != nil {
		return err
	}
	if err := requireOpen(cache.Configuration); err != nil {
		return err
	}
	if !cache.Configuration.BorrowingEnabled() {
		return ErrBorrowingNotEnabled
	}
	if p.releaseUnderlying && p.amount.Gt(reserve.VirtualUnderlyingBalance) {
		return ErrNotEnoughAvailableLiquidity
	}
	if p.mode != InterestRateModeVariable {
		return ErrInvalidInterestRateMode
	}
	if sentinel := s.pool.sentinel; sentinel != nil && !sentinel.IsBorrowAllowed() {
		return ErrPriceOracleSentinelCheckFailed
	}

	decimals := cache.Configuration.Decimals()
	if borrowCap := cache.Configuration.BorrowCap(); borrowCap != 0 {
		debt, err := wadray.RayMul(cache.NextScaledVariableDebt, cache.NextVariableBorrowIndex)
		if err != nil {
			return err
		}
		if debt, err = wadray.Add(debt, p.amount); err != nil {
			return err
		}
		limit, err := capUnits(borrowCap, decimals)
		if err != nil {
			return err
		}
		if debt.Gt(limit) {
			return ErrBorrowCapExceeded
		}
	}

	if p.isolation.active {
		if !cache.Configuration.BorrowableInIsolation() {
			return ErrAssetNotBorrowableInIsolation
		}
		collateral, err := s.tx.listedReserve(p.isolation.collateral)
		if err != nil {
			return err
		}
		added, err := isolatedDebtUnits(p.amount, decimals)
		if err != nil {
			return err
		}
		next := collateral.IsolationModeTotalDebt + added
		if next < added || next > p.isolation.debtCeiling {
			return ErrDebtCeilingExceeded
		}
	}

	if p.eModeID != 0 {
		category, err := s.tx.eModeCategory(p.eModeID)
		if err != nil {
			return err
		}
		if !category.Borrowable.Contains(reserve.ID) {
			return ErrNotBorrowableInEMode
		}
	}

	account, err := s.accountData(p.onBehalfOf, p.cfg, p.eModeID)
	if err != nil {
		return err
	}
	if account.TotalCollateralBase.IsZero() {
		return ErrCollateralBalanceIsZero
	}
	if account.CurrentLTV == 0 {
		return ErrLTVValidationFailed
	}
	if !account.HealthFactor.Gt(&HealthFactorLiquidationThreshold) {
		return ErrHealthFactorLowerThanLiquidationThreshold
	}

	price, err := s.price(p.asset)
	if err != nil {
		return err
	}
	amountBase, err := wadray.MulDivCeil(p.amount, price, wadray.Pow10(decimals))
	if err != nil {
		return err
	}
	needed, err := wadray.Add(account.TotalDebtBase, amountBase)
	if err != nil {
		return err
	}
	if needed, err = wadray.PercentDivCeil(needed, account.CurrentLTV); err != nil {
		return err
	}
	if needed.Gt(account.TotalCollateralBase) {
		return ErrCollateralCannotCoverNewBorrow
	}

	if p.cfg.IsBorrowingAny() {
		siloed, siloedAsset, err := s.siloedBorrowingState(p.cfg)
		if err != nil {
			return err
		}
		if siloed {
			if siloedAsset != p.asset {
				return ErrSiloedBorrowingViolation
			}
		} else if cache.Configuration.SiloedBorrowing() {
			return ErrSiloedBorrowingViolation
		}
	}
	return nil
}

func validateRepay(caller, onBehalfOf common.Address, cache *ReserveCache, amount *uint256.Int, mode InterestRateMode, debt *uint256.Int) error {
	if err := requireAmount(amount); err != nil {
		return err
	}
	if mode != InterestRateModeVariable {
		return ErrInvalidInterestRateMode
	}
	if wadray.IsMax(amount) && caller != onBehalfOf {
		return ErrNoExplicitAmountToRepayOnBehalf
	}
	if err := requireUsable(cache.Configuration); err != nil {
		return err
	}
	if debt.IsZero() {
		return ErrNoDebtOfSelectedType
	}
	return nil
}

// validateHealthFactor requires the user to stay at or above the liquidation
// threshold and reports whether any collateral has zero ltv.
func (s *session) validateHealthFactor(user common.Address) (bool, error) {
	account, err := s.userAccountData(user)
	if err != nil {
		return false, err
	}
	if account.HealthFactor.Lt(&HealthFactorLiquidationThreshold) {
		return false, ErrHealthFactorLowerThanLiquidationThreshold
	}
	return account.HasZeroLTVCollateral, nil
}

// validateHFAndLtv guards collateral reductions: the health factor must hold
// and, while any zero-ltv collateral is enabled, only zero-ltv reserves may be
// withdrawn.
func (s *session) validateHFAndLtv(user common.Address, reserve *ReserveData) error {
	hasZeroLTV, err := s.validateHealthFactor(user)
	if err != nil {
		return err
	}
	if hasZeroLTV && reserve.Configuration.LTV() != 0 {
		return ErrLTVValidationFailed
	}
	return nil
}

// validateUseAsCollateral reports whether reserve may become collateral for a
// user currently holding cfg.
func (s *session) validateUseAsCollateral(cfg configuration.UserMap, reserveCfg configuration.ReserveMap) (bool, error) {
	if reserveCfg.LTV() == 0 {
		return false, nil
	}
	if !cfg.IsUsingAsCollateralAny() {
		return true, nil
	}
	state, err := s.isolationModeState(cfg)
	if err != nil {
		return false, err
	}
	return !state.active && reserveCfg.DebtCeiling() == 0, nil
}

// validateAutomaticUseAsCollateral is validateUseAsCollateral for side-effect
// enabling; isolated assets additionally need the supplier role on caller.
func (s *session) validateAutomaticUseAsCollateral(caller common.Address, cfg configuration.UserMap, reserveCfg configuration.ReserveMap) (bool, error) {
	if reserveCfg.DebtCeiling() != 0 && !s.hasRole(RoleIsolatedCollateralSupplier, caller) {
		return false, nil
	}
	return s.validateUseAsCollateral(cfg, reserveCfg)
}

func (s *session) validateLiquidation(cfg configuration.UserMap, collateral, debt *ReserveData, debtCache *ReserveCache, userDebt, healthFactor *uint256.Int) error {
	collateralFlags := collateral.Configuration.Flags()
	debtFlags := debtCache.Configuration.Flags()
	if !collateralFlags.Active || !debtFlags.Active {
		return ErrReserveInactive
	}
	if collateralFlags.Paused || debtFlags.Paused {
		return ErrReservePaused
	}
	if sentinel := s.pool.sentinel; sentinel != nil &&
		!healthFactor.Lt(&CloseFactorHFThreshold) && !sentinel.IsLiquidationAllowed() {
		return ErrPriceOracleSentinelCheckFailed
	}
	if inGracePeriod(collateral, s.now) || inGracePeriod(debt, s.now) {
		return ErrLiquidationGracePeriodActive
	}
	if !healthFactor.Lt(&HealthFactorLiquidationThreshold) {
		return ErrHealthFactorNotBelowThreshold
	}
	if collateral.Configuration.LiquidationThreshold() == 0 || !cfg.IsUsingAsCollateral(collateral.ID) {
		return ErrCollateralCannotBeLiquidated
	}
	if userDebt.IsZero() {
		return ErrSpecifiedCurrencyNotBorrowedByUser
	}
	return nil
}

func inGracePeriod(r *ReserveData, now uint64) bool {
	return r.LiquidationGracePeriodUntil != 0 && r.LiquidationGracePeriodUntil >= now
}

func (s *session) validateFlashLoan(assets []common.Address, amounts []*uint256.Int, modes []InterestRateMode) error {
	if len(assets) == 0 || len(assets) != len(amounts) || len(assets) != len(modes) {
		return ErrInconsistentFlashLoanParams
	}
	seen := make(map[common.Address]struct{}, len(assets))
	for i, asset := range assets {
		if _, dup := seen[asset]; dup {
			return fmt.Errorf("%w: duplicate asset %s", ErrInconsistentFlashLoanParams, asset.Hex())
		}
		seen[asset] = struct{}{}
		reserve, err := s.tx.listedReserve(asset)
		if err != nil {
			return err
		}
		flags := reserve.Configuration.Flags()
		if flags.Paused {
			return ErrReservePaused
		}
		if !flags.Active {
			return ErrReserveInactive
		}
		if !reserve.Configuration.FlashLoanEnabled() {
			return ErrFlashLoanDisabled
		}
		if err := requireAmount(amounts[i]); err != nil {
			return err
		}
		if amounts[i].Gt(reserve.VirtualUnderlyingBalance) {
			return ErrNotEnoughAvailableLiquidity
		}
		if modes[i] != InterestRateModeNone && modes[i] != InterestRateModeVariable {
			return ErrInvalidInterestRateMode
		}
	}
	return nil
}
