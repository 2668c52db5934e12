package lending

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/configuration"
	"lendcore/native/lending/wadray"
)

// liquidationVars collects the intermediate values of one liquidation.
type liquidationVars struct {
	userDebt           *uint256.Int
	userCollateral     *uint256.Int
	collateralIndex    *uint256.Int
	collateralPrice    *uint256.Int
	collateralUnit     *uint256.Int
	debtPrice          *uint256.Int
	debtUnit           *uint256.Int
	bonus              uint64
	actualDebt         *uint256.Int
	actualCollateral   *uint256.Int
	protocolFee        *uint256.Int
	collateralSeizedIn *uint256.Int
}

// LiquidationCall repays part of an unhealthy user's debt and hands the
// liquidator the matching collateral plus bonus. When the user is left with
// no collateral at all, every remaining debt is written off as reserve
// deficit.
func (p *Pool) LiquidationCall(ctx context.Context, params LiquidationCallParams) (*LiquidationResult, error) {
	var result *LiquidationResult
	err := p.run(ctx, "liquidation", true, func(s *session) error {
		var err error
		result, err = s.executeLiquidation(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.metrics.RecordLiquidation(params.CollateralAsset.Hex(), params.DebtAsset.Hex())
	if !result.DeficitCreated.IsZero() {
		p.metrics.RecordDeficit(params.DebtAsset.Hex(), result.DeficitCreated)
	}
	return result, nil
}

func (s *session) executeLiquidation(params LiquidationCallParams) (*LiquidationResult, error) {
	if err := requireAmount(params.DebtToCover); err != nil {
		return nil, err
	}
	debtReserve, debtCache, err := s.accrue(params.DebtAsset)
	if err != nil {
		return nil, err
	}
	collateralReserve, err := s.tx.listedReserve(params.CollateralAsset)
	if err != nil {
		return nil, err
	}
	cfg, err := s.tx.userConfig(params.User)
	if err != nil {
		return nil, err
	}
	eModeID, err := s.tx.userEMode(params.User)
	if err != nil {
		return nil, err
	}
	account, err := s.accountData(params.User, *cfg, eModeID)
	if err != nil {
		return nil, err
	}

	v := &liquidationVars{}
	if v.userDebt, err = s.debtBalance(params.DebtAsset, params.User, debtCache.NextVariableBorrowIndex); err != nil {
		return nil, err
	}
	if v.collateralIndex, err = collateralReserve.NormalizedIncome(s.now); err != nil {
		return nil, err
	}
	if v.userCollateral, err = s.supplyBalance(params.CollateralAsset, params.User, v.collateralIndex); err != nil {
		return nil, err
	}
	if err := s.validateLiquidation(*cfg, collateralReserve, debtReserve, debtCache, v.userDebt, account.HealthFactor); err != nil {
		return nil, err
	}

	v.bonus = collateralReserve.Configuration.LiquidationBonus()
	if eModeID != 0 {
		category, err := s.tx.eModeCategory(eModeID)
		if err != nil {
			return nil, err
		}
		if category.Collateral.Contains(collateralReserve.ID) {
			v.bonus = category.LiquidationBonus
		}
	}
	if v.collateralPrice, err = s.price(params.CollateralAsset); err != nil {
		return nil, err
	}
	if v.debtPrice, err = s.price(params.DebtAsset); err != nil {
		return nil, err
	}
	v.collateralUnit = wadray.Pow10(collateralReserve.Configuration.Decimals())
	v.debtUnit = wadray.Pow10(debtCache.Configuration.Decimals())

	maxDebt, err := v.maxLiquidatableDebt(account)
	if err != nil {
		return nil, err
	}
	v.actualDebt = cloneInt(params.DebtToCover)
	if v.actualDebt.Gt(maxDebt) {
		v.actualDebt = maxDebt
	}
	if err := v.availableCollateral(collateralReserve.Configuration.LiquidationProtocolFee()); err != nil {
		return nil, err
	}
	if err := v.checkDust(); err != nil {
		return nil, err
	}

	isolation, err := s.isolationModeState(*cfg)
	if err != nil {
		return nil, err
	}
	seized, err := wadray.Add(v.actualCollateral, v.protocolFee)
	if err != nil {
		return nil, err
	}
	cleared := seized.Eq(v.userCollateral)
	if cleared {
		if err := cfg.SetUsingAsCollateral(collateralReserve.ID, false); err != nil {
			return nil, err
		}
		s.tx.emit(CollateralToggled{Asset: params.CollateralAsset, User: params.User})
	}
	noCollateralLeft := account.TotalCollateralBase.Eq(v.collateralSeizedIn)

	deficit, err := s.burnLiquidatedDebt(params.DebtAsset, params.User, debtReserve, debtCache, cfg, v.userDebt, v.actualDebt, noCollateralLeft)
	if err != nil {
		return nil, err
	}
	if isolation.active {
		if err := s.reduceIsolatedDebt(isolation.collateral, debtCache.Configuration.Decimals(), v.actualDebt); err != nil {
			return nil, err
		}
	}

	if params.ReceiveAToken {
		if err := s.seizeShares(params, collateralReserve, v); err != nil {
			return nil, err
		}
	} else if err := s.seizeUnderlying(params, v); err != nil {
		return nil, err
	}

	if !v.protocolFee.IsZero() {
		if err := s.payLiquidationFee(params, v); err != nil {
			return nil, err
		}
	}

	if noCollateralLeft && cfg.IsBorrowingAny() {
		more, err := s.burnBadDebt(params.User, cfg)
		if err != nil {
			return nil, err
		}
		if deficit, err = wadray.Add(deficit, more); err != nil {
			return nil, err
		}
	}

	if err := s.transferUnderlying(params.DebtAsset, params.Liquidator, debtCache.ATokenAddress, v.actualDebt); err != nil {
		return nil, err
	}
	s.tx.emit(LiquidationCall{
		CollateralAsset:  params.CollateralAsset,
		DebtAsset:        params.DebtAsset,
		User:             params.User,
		Liquidator:       params.Liquidator,
		DebtToCover:      cloneInt(v.actualDebt),
		CollateralAmount: cloneInt(v.actualCollateral),
		ReceiveAToken:    params.ReceiveAToken,
	})
	return &LiquidationResult{
		DebtRepaid:        cloneInt(v.actualDebt),
		CollateralSeized:  cloneInt(v.actualCollateral),
		ProtocolFee:       cloneInt(v.protocolFee),
		DeficitCreated:    deficit,
		CollateralCleared: cleared,
	}, nil
}

// maxLiquidatableDebt applies the close factor. Positions whose collateral
// and debt in this pair are both large may only be half closed while the
// health factor is above CloseFactorHFThreshold.
func (v *liquidationVars) maxLiquidatableDebt(account *UserAccountData) (*uint256.Int, error) {
	maxDebt := cloneInt(v.userDebt)
	collateralBase, err := wadray.MulDiv(v.userCollateral, v.collateralPrice, v.collateralUnit)
	if err != nil {
		return nil, err
	}
	debtBase, err := wadray.MulDiv(v.userDebt, v.debtPrice, v.debtUnit)
	if err != nil {
		return nil, err
	}
	if collateralBase.Lt(&MinBaseMaxCloseFactorThreshold) ||
		debtBase.Lt(&MinBaseMaxCloseFactorThreshold) ||
		!account.HealthFactor.Gt(&CloseFactorHFThreshold) {
		return maxDebt, nil
	}
	capBase, err := wadray.PercentMul(account.TotalDebtBase, DefaultLiquidationCloseFactor)
	if err != nil {
		return nil, err
	}
	if debtBase.Gt(capBase) {
		return wadray.MulDiv(capBase, v.debtUnit, v.debtPrice)
	}
	return maxDebt, nil
}

// availableCollateral sizes the collateral paid for actualDebt, shrinking the
// debt when the user holds too little collateral, and carves the protocol
// fee out of the bonus.
func (v *liquidationVars) availableCollateral(protocolFee uint64) error {
	debtValue, err := checkedMul(v.debtPrice, v.actualDebt)
	if err != nil {
		return err
	}
	denominator, err := checkedMul(v.collateralPrice, v.debtUnit)
	if err != nil {
		return err
	}
	baseCollateral, err := wadray.MulDiv(debtValue, v.collateralUnit, denominator)
	if err != nil {
		return err
	}
	maxCollateral, err := wadray.PercentMul(baseCollateral, v.bonus)
	if err != nil {
		return err
	}

	collateral := maxCollateral
	if maxCollateral.Gt(v.userCollateral) {
		collateral = cloneInt(v.userCollateral)
		collateralValue, err := checkedMul(v.collateralPrice, collateral)
		if err != nil {
			return err
		}
		debtDenominator, err := checkedMul(v.debtPrice, v.collateralUnit)
		if err != nil {
			return err
		}
		needed, err := wadray.MulDiv(collateralValue, v.debtUnit, debtDenominator)
		if err != nil {
			return err
		}
		if v.actualDebt, err = wadray.PercentDiv(needed, v.bonus); err != nil {
			return err
		}
	}
	if v.collateralSeizedIn, err = wadray.MulDiv(collateral, v.collateralPrice, v.collateralUnit); err != nil {
		return err
	}

	v.protocolFee = new(uint256.Int)
	if protocolFee != 0 {
		principal, err := wadray.PercentDiv(collateral, v.bonus)
		if err != nil {
			return err
		}
		bonusCollateral, err := wadray.Sub(collateral, principal)
		if err != nil {
			return err
		}
		if v.protocolFee, err = wadray.PercentMul(bonusCollateral, protocolFee); err != nil {
			return err
		}
	}
	v.actualCollateral, err = wadray.Sub(collateral, v.protocolFee)
	return err
}

// checkDust rejects partial liquidations that would leave either side
// below MinLeftoverBase.
func (v *liquidationVars) checkDust() error {
	seized, err := wadray.Add(v.actualCollateral, v.protocolFee)
	if err != nil {
		return err
	}
	if !v.actualDebt.Lt(v.userDebt) || !seized.Lt(v.userCollateral) {
		return nil
	}
	debtLeft := new(uint256.Int).Sub(v.userDebt, v.actualDebt)
	debtLeftBase, err := wadray.MulDiv(debtLeft, v.debtPrice, v.debtUnit)
	if err != nil {
		return err
	}
	collateralLeft := new(uint256.Int).Sub(v.userCollateral, seized)
	collateralLeftBase, err := wadray.MulDiv(collateralLeft, v.collateralPrice, v.collateralUnit)
	if err != nil {
		return err
	}
	if debtLeftBase.Lt(&MinLeftoverBase) || collateralLeftBase.Lt(&MinLeftoverBase) {
		return ErrMustNotLeaveDust
	}
	return nil
}

// burnLiquidatedDebt burns the repaid debt. If the user has no collateral
// left, the outstanding remainder is burned too and booked as deficit, which
// is returned.
func (s *session) burnLiquidatedDebt(asset, user common.Address, reserve *ReserveData, cache *ReserveCache, cfg *configuration.UserMap, userDebt, repaid *uint256.Int, noCollateralLeft bool) (*uint256.Int, error) {
	outstanding := new(uint256.Int).Sub(userDebt, repaid)
	deficit := new(uint256.Int)
	burn := repaid
	if noCollateralLeft && !outstanding.IsZero() {
		burn = userDebt
		deficit = outstanding
	}
	if !burn.IsZero() {
		if _, err := s.burnDebt(asset, user, burn, cache); err != nil {
			return nil, err
		}
	}
	if !deficit.IsZero() {
		next, err := wadray.Add(reserve.Deficit, deficit)
		if err != nil {
			return nil, err
		}
		reserve.Deficit = next
		s.tx.emit(DeficitCreated{Asset: asset, User: user, Amount: cloneInt(deficit)})
	}
	if outstanding.IsZero() || noCollateralLeft {
		if err := cfg.SetBorrowing(reserve.ID, false); err != nil {
			return nil, err
		}
	}
	if err := s.updateRates(asset, reserve, cache, repaid, nil); err != nil {
		return nil, err
	}
	return cloneInt(deficit), nil
}

// burnBadDebt writes off every remaining active debt of a user who has no
// collateral left and returns the deficit booked across reserves.
func (s *session) burnBadDebt(user common.Address, cfg *configuration.UserMap) (*uint256.Int, error) {
	total := new(uint256.Int)
	for id, pos := range cfg.Positions() {
		if !pos.Borrowing {
			continue
		}
		asset, err := s.tx.reserveAsset(id)
		if err != nil {
			return nil, err
		}
		if asset == (common.Address{}) {
			continue
		}
		reserve, err := s.tx.listedReserve(asset)
		if err != nil {
			return nil, err
		}
		if !reserve.Configuration.Active() {
			continue
		}
		_, cache, err := s.accrue(asset)
		if err != nil {
			return nil, err
		}
		debt, err := s.debtBalance(asset, user, cache.NextVariableBorrowIndex)
		if err != nil {
			return nil, err
		}
		deficit, err := s.burnLiquidatedDebt(asset, user, reserve, cache, cfg, debt, new(uint256.Int), true)
		if err != nil {
			return nil, err
		}
		if total, err = wadray.Add(total, deficit); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// seizeShares hands the liquidator deposit shares of the collateral reserve.
func (s *session) seizeShares(params LiquidationCallParams, collateral *ReserveData, v *liquidationVars) error {
	_, liquidatorBefore, err := s.moveSupply(params.CollateralAsset, params.User, params.Liquidator, v.actualCollateral, v.collateralIndex)
	if err != nil {
		return err
	}
	if !liquidatorBefore.IsZero() {
		return nil
	}
	liquidatorCfg, err := s.tx.userConfig(params.Liquidator)
	if err != nil {
		return err
	}
	ok, err := s.validateAutomaticUseAsCollateral(params.Liquidator, *liquidatorCfg, collateral.Configuration)
	if err != nil || !ok {
		return err
	}
	if err := liquidatorCfg.SetUsingAsCollateral(collateral.ID, true); err != nil {
		return err
	}
	s.tx.emit(CollateralToggled{Asset: params.CollateralAsset, User: params.Liquidator, Enabled: true})
	return nil
}

// seizeUnderlying burns the user's collateral shares and pays the liquidator
// in the underlying asset.
func (s *session) seizeUnderlying(params LiquidationCallParams, v *liquidationVars) error {
	reserve, cache, err := s.accrue(params.CollateralAsset)
	if err != nil {
		return err
	}
	if err := s.updateRates(params.CollateralAsset, reserve, cache, nil, v.actualCollateral); err != nil {
		return err
	}
	if _, err := s.burnSupply(params.CollateralAsset, params.User, v.actualCollateral, cache.NextLiquidityIndex); err != nil {
		return err
	}
	return s.transferUnderlying(params.CollateralAsset, cache.ATokenAddress, params.Liquidator, v.actualCollateral)
}

// payLiquidationFee moves the protocol's cut of the bonus to the treasury,
// capped by what the user still holds.
func (s *session) payLiquidationFee(params LiquidationCallParams, v *liquidationVars) error {
	remaining, err := s.supplyBalance(params.CollateralAsset, params.User, v.collateralIndex)
	if err != nil {
		return err
	}
	if v.protocolFee.Gt(remaining) {
		v.protocolFee = remaining
	}
	if v.protocolFee.IsZero() {
		return nil
	}
	treasury := s.pool.treasury
	if _, _, err := s.moveSupply(params.CollateralAsset, params.User, treasury, v.protocolFee, v.collateralIndex); err != nil {
		return err
	}
	s.tx.emit(BalanceTransfer{Asset: params.CollateralAsset, From: params.User, To: treasury, Amount: cloneInt(v.protocolFee)})
	return nil
}
