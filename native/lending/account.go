package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/configuration"
	"lendcore/native/lending/tokenmath"
	"lendcore/native/lending/wadray"
)

// accountData aggregates the positions of user into base currency totals,
// weighted risk parameters and the health factor.
func (s *session) accountData(user common.Address, cfg configuration.UserMap, eModeID uint8) (*UserAccountData, error) {
	if cfg.IsEmpty() {
		return &UserAccountData{
			TotalCollateralBase:  new(uint256.Int),
			TotalDebtBase:        new(uint256.Int),
			AvailableBorrowsBase: new(uint256.Int),
			HealthFactor:         wadray.Max(),
		}, nil
	}

	var category *EModeCategory
	if eModeID != 0 {
		c, err := s.tx.eModeCategory(eModeID)
		if err != nil {
			return nil, err
		}
		category = c
	}

	totalCollateral := new(uint256.Int)
	totalDebt := new(uint256.Int)
	weightedLTV := new(uint256.Int)
	weightedThreshold := new(uint256.Int)
	hasZeroLTV := false

	for id, pos := range cfg.Positions() {
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
		params := reserve.Configuration.Params()
		unit := wadray.Pow10(params.Decimals)
		price, err := s.price(asset)
		if err != nil {
			return nil, err
		}

		if pos.Collateral && params.LiquidationThreshold != 0 {
			value, err := s.collateralBase(asset, user, reserve, price, unit)
			if err != nil {
				return nil, err
			}
			if totalCollateral, err = wadray.Add(totalCollateral, value); err != nil {
				return nil, err
			}
			ltv, threshold := params.LTV, params.LiquidationThreshold
			if category != nil && category.Collateral.Contains(id) {
				ltv, threshold = category.LTV, category.LiquidationThreshold
			}
			if ltv != 0 {
				if weightedLTV, err = addProduct(weightedLTV, value, ltv); err != nil {
					return nil, err
				}
			} else {
				hasZeroLTV = true
			}
			if weightedThreshold, err = addProduct(weightedThreshold, value, threshold); err != nil {
				return nil, err
			}
		}

		if pos.Borrowing {
			value, err := s.debtBase(asset, user, reserve, price, unit)
			if err != nil {
				return nil, err
			}
			if totalDebt, err = wadray.Add(totalDebt, value); err != nil {
				return nil, err
			}
		}
	}

	var avgLTV, avgThreshold uint64
	if !totalCollateral.IsZero() {
		avgLTV = new(uint256.Int).Div(weightedLTV, totalCollateral).Uint64()
		avgThreshold = new(uint256.Int).Div(weightedThreshold, totalCollateral).Uint64()
	}

	healthFactor := wadray.Max()
	if !totalDebt.IsZero() {
		adjusted, err := wadray.PercentMul(totalCollateral, avgThreshold)
		if err != nil {
			return nil, err
		}
		if healthFactor, err = wadray.WadDiv(adjusted, totalDebt); err != nil {
			return nil, err
		}
	}

	available, err := CalculateAvailableBorrows(totalCollateral, totalDebt, avgLTV)
	if err != nil {
		return nil, err
	}
	return &UserAccountData{
		TotalCollateralBase:         totalCollateral,
		TotalDebtBase:               totalDebt,
		AvailableBorrowsBase:        available,
		CurrentLTV:                  avgLTV,
		CurrentLiquidationThreshold: avgThreshold,
		HealthFactor:                healthFactor,
		HasZeroLTVCollateral:        hasZeroLTV,
	}, nil
}

// collateralBase values user's deposit in base currency, rounding down.
func (s *session) collateralBase(asset, user common.Address, reserve *ReserveData, price, unit *uint256.Int) (*uint256.Int, error) {
	scaled, err := s.tx.scaledBalance(supplyShares, asset, user)
	if err != nil {
		return nil, err
	}
	if scaled.IsZero() {
		return new(uint256.Int), nil
	}
	income, err := reserve.NormalizedIncome(s.now)
	if err != nil {
		return nil, err
	}
	balance, err := tokenmath.CollateralBalance(scaled, income)
	if err != nil {
		return nil, err
	}
	return wadray.MulDiv(balance, price, unit)
}

// debtBase values user's variable debt in base currency, rounding up.
func (s *session) debtBase(asset, user common.Address, reserve *ReserveData, price, unit *uint256.Int) (*uint256.Int, error) {
	scaled, err := s.tx.scaledBalance(debtShares, asset, user)
	if err != nil {
		return nil, err
	}
	if scaled.IsZero() {
		return new(uint256.Int), nil
	}
	index, err := reserve.NormalizedDebt(s.now)
	if err != nil {
		return nil, err
	}
	balance, err := tokenmath.DebtBalance(scaled, index)
	if err != nil {
		return nil, err
	}
	return wadray.MulDivCeil(balance, price, unit)
}

// userAccountData loads user's configuration and category before
// aggregating.
func (s *session) userAccountData(user common.Address) (*UserAccountData, error) {
	cfg, err := s.tx.userConfig(user)
	if err != nil {
		return nil, err
	}
	eModeID, err := s.tx.userEMode(user)
	if err != nil {
		return nil, err
	}
	return s.accountData(user, *cfg, eModeID)
}

// CalculateAvailableBorrows returns how much more base currency can be
// borrowed against totalCollateral at ltv. A zero ltv yields zero.
func CalculateAvailableBorrows(totalCollateral, totalDebt *uint256.Int, ltv uint64) (*uint256.Int, error) {
	capacity, err := wadray.PercentMul(totalCollateral, ltv)
	if err != nil {
		return nil, err
	}
	if !capacity.Gt(totalDebt) {
		return new(uint256.Int), nil
	}
	return capacity.Sub(capacity, totalDebt), nil
}

func addProduct(acc, value *uint256.Int, weight uint64) (*uint256.Int, error) {
	product, err := checkedMul(value, uint256.NewInt(weight))
	if err != nil {
		return nil, err
	}
	return wadray.Add(acc, product)
}
