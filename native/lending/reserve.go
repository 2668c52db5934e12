package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/wadray"
)

// Cache snapshots the reserve for one action. scaledVariableDebt is the
// reserve's total scaled variable debt.
func (r *ReserveData) Cache(scaledVariableDebt *uint256.Int) *ReserveCache {
	return &ReserveCache{
		Configuration:            r.Configuration,
		ReserveFactor:            r.Configuration.ReserveFactor(),
		CurrLiquidityIndex:       cloneInt(r.LiquidityIndex),
		NextLiquidityIndex:       cloneInt(r.LiquidityIndex),
		CurrVariableBorrowIndex:  cloneInt(r.VariableBorrowIndex),
		NextVariableBorrowIndex:  cloneInt(r.VariableBorrowIndex),
		CurrLiquidityRate:        cloneInt(r.CurrentLiquidityRate),
		CurrVariableBorrowRate:   cloneInt(r.CurrentVariableBorrowRate),
		CurrScaledVariableDebt:   cloneInt(scaledVariableDebt),
		NextScaledVariableDebt:   cloneInt(scaledVariableDebt),
		ATokenAddress:            r.ATokenAddress,
		VariableDebtTokenAddress: r.VariableDebtTokenAddress,
		LastUpdateTimestamp:      r.LastUpdateTimestamp,
	}
}

// UpdateState brings the indices up to now and accrues the reserve factor
// share of new debt interest to the treasury. A call at or before the last
// update changes nothing, so a clock stepping backwards never rewinds
// LastUpdateTimestamp.
func (r *ReserveData) UpdateState(cache *ReserveCache, now uint64) error {
	if now <= r.LastUpdateTimestamp {
		return nil
	}
	if err := r.updateIndexes(cache, now); err != nil {
		return err
	}
	if err := r.accrueToTreasury(cache); err != nil {
		return err
	}
	r.LastUpdateTimestamp = now
	cache.LastUpdateTimestamp = now
	return nil
}

func (r *ReserveData) updateIndexes(cache *ReserveCache, now uint64) error {
	if !cache.CurrLiquidityRate.IsZero() {
		factor, err := CalculateLinearInterest(cache.CurrLiquidityRate, cache.LastUpdateTimestamp, now)
		if err != nil {
			return err
		}
		next, err := wadray.RayMul(factor, cache.CurrLiquidityIndex)
		if err != nil {
			return err
		}
		cache.NextLiquidityIndex = next
		r.LiquidityIndex = cloneInt(next)
	}
	if !cache.CurrVariableBorrowRate.IsZero() {
		factor, err := CalculateCompoundedInterest(cache.CurrVariableBorrowRate, cache.LastUpdateTimestamp, now)
		if err != nil {
			return err
		}
		next, err := wadray.RayMul(factor, cache.CurrVariableBorrowIndex)
		if err != nil {
			return err
		}
		cache.NextVariableBorrowIndex = next
		r.VariableBorrowIndex = cloneInt(next)
	}
	return nil
}

func (r *ReserveData) accrueToTreasury(cache *ReserveCache) error {
	if cache.ReserveFactor == 0 || cache.CurrScaledVariableDebt.IsZero() {
		return nil
	}
	prevDebt, err := wadray.RayMul(cache.CurrScaledVariableDebt, cache.CurrVariableBorrowIndex)
	if err != nil {
		return err
	}
	currDebt, err := wadray.RayMul(cache.CurrScaledVariableDebt, cache.NextVariableBorrowIndex)
	if err != nil {
		return err
	}
	if !currDebt.Gt(prevDebt) {
		return nil
	}
	accrued := new(uint256.Int).Sub(currDebt, prevDebt)
	toMint, err := wadray.PercentMul(accrued, cache.ReserveFactor)
	if err != nil {
		return err
	}
	if toMint.IsZero() {
		return nil
	}
	scaled, err := wadray.RayDivFloor(toMint, cache.NextLiquidityIndex)
	if err != nil {
		return err
	}
	total, err := wadray.Add(r.AccruedToTreasury, scaled)
	if err != nil {
		return err
	}
	r.AccruedToTreasury = total
	return nil
}

// NormalizedIncome is the liquidity index as of now without mutating the
// reserve.
func (r *ReserveData) NormalizedIncome(now uint64) (*uint256.Int, error) {
	if now <= r.LastUpdateTimestamp || r.CurrentLiquidityRate.IsZero() {
		return cloneInt(r.LiquidityIndex), nil
	}
	factor, err := CalculateLinearInterest(r.CurrentLiquidityRate, r.LastUpdateTimestamp, now)
	if err != nil {
		return nil, err
	}
	return wadray.RayMul(factor, r.LiquidityIndex)
}

// NormalizedDebt is the variable borrow index as of now without mutating the
// reserve.
func (r *ReserveData) NormalizedDebt(now uint64) (*uint256.Int, error) {
	if now <= r.LastUpdateTimestamp || r.CurrentVariableBorrowRate.IsZero() {
		return cloneInt(r.VariableBorrowIndex), nil
	}
	factor, err := CalculateCompoundedInterest(r.CurrentVariableBorrowRate, r.LastUpdateTimestamp, now)
	if err != nil {
		return nil, err
	}
	return wadray.RayMul(factor, r.VariableBorrowIndex)
}

// CumulateToLiquidityIndex distributes amount to every supplier of
// totalLiquidity by bumping the liquidity index, returning the new index.
func (r *ReserveData) CumulateToLiquidityIndex(totalLiquidity, amount *uint256.Int) (*uint256.Int, error) {
	amountRay, err := wadray.WadToRay(amount)
	if err != nil {
		return nil, err
	}
	liquidityRay, err := wadray.WadToRay(totalLiquidity)
	if err != nil {
		return nil, err
	}
	ratio, err := wadray.RayDiv(amountRay, liquidityRay)
	if err != nil {
		return nil, err
	}
	cumulated, err := wadray.Add(ratio, &wadray.Ray)
	if err != nil {
		return nil, err
	}
	next, err := wadray.RayMul(cumulated, r.LiquidityIndex)
	if err != nil {
		return nil, err
	}
	r.LiquidityIndex = next
	return cloneInt(next), nil
}

// loadReserve returns the listed reserve for asset with a fresh cache.
func (s *session) loadReserve(asset common.Address) (*ReserveData, *ReserveCache, error) {
	reserve, err := s.tx.listedReserve(asset)
	if err != nil {
		return nil, nil, err
	}
	scaledDebt, err := s.tx.scaledTotal(debtShares, asset)
	if err != nil {
		return nil, nil, err
	}
	return reserve, reserve.Cache(scaledDebt), nil
}

// accrue loads asset and updates its state to the session instant.
func (s *session) accrue(asset common.Address) (*ReserveData, *ReserveCache, error) {
	reserve, cache, err := s.loadReserve(asset)
	if err != nil {
		return nil, nil, err
	}
	if err := reserve.UpdateState(cache, s.now); err != nil {
		return nil, nil, err
	}
	return reserve, cache, nil
}

// updateRates asks the strategy for new rates given the liquidity change and
// moves the virtual underlying balance by the same amounts.
func (s *session) updateRates(asset common.Address, reserve *ReserveData, cache *ReserveCache, added, taken *uint256.Int) error {
	if s.pool.strategy == nil {
		return ErrRateStrategyNotConfigured
	}
	if added == nil {
		added = new(uint256.Int)
	}
	if taken == nil {
		taken = new(uint256.Int)
	}
	totalDebt, err := wadray.RayMul(cache.NextScaledVariableDebt, cache.NextVariableBorrowIndex)
	if err != nil {
		return err
	}
	liquidityRate, borrowRate, err := s.pool.strategy.CalculateInterestRates(s.ctx, RateParams{
		Asset:                    asset,
		ReserveID:                reserve.ID,
		LiquidityAdded:           cloneInt(added),
		LiquidityTaken:           cloneInt(taken),
		TotalDebt:                totalDebt,
		ReserveFactor:            cache.ReserveFactor,
		VirtualUnderlyingBalance: cloneInt(reserve.VirtualUnderlyingBalance),
		Deficit:                  cloneInt(reserve.Deficit),
	})
	if err != nil {
		return collaboratorErr("interest rate strategy", err)
	}
	reserve.CurrentLiquidityRate = cloneInt(liquidityRate)
	reserve.CurrentVariableBorrowRate = cloneInt(borrowRate)

	virtual, err := wadray.Add(reserve.VirtualUnderlyingBalance, added)
	if err != nil {
		return err
	}
	if taken.Gt(virtual) {
		return ErrNotEnoughAvailableLiquidity
	}
	reserve.VirtualUnderlyingBalance = virtual.Sub(virtual, taken)

	s.tx.emit(ReserveDataUpdated{
		Asset:               asset,
		LiquidityRate:       cloneInt(reserve.CurrentLiquidityRate),
		VariableBorrowRate:  cloneInt(reserve.CurrentVariableBorrowRate),
		LiquidityIndex:      cloneInt(cache.NextLiquidityIndex),
		VariableBorrowIndex: cloneInt(cache.NextVariableBorrowIndex),
	})
	return nil
}
