package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/configuration"
	"lendcore/native/lending/wadray"
)

// isolationState describes whether a user is isolated behind a single
// debt-ceilinged collateral.
type isolationState struct {
	active      bool
	collateral  common.Address
	debtCeiling uint64
}

// isolationModeState reports isolation when the user's sole collateral has a
// non-zero debt ceiling.
func (s *session) isolationModeState(cfg configuration.UserMap) (isolationState, error) {
	if !cfg.IsUsingAsCollateralOne() {
		return isolationState{}, nil
	}
	id, _ := cfg.FirstCollateralID()
	asset, err := s.tx.reserveAsset(id)
	if err != nil || asset == (common.Address{}) {
		return isolationState{}, err
	}
	reserve, err := s.tx.listedReserve(asset)
	if err != nil {
		return isolationState{}, err
	}
	ceiling := reserve.Configuration.DebtCeiling()
	if ceiling == 0 {
		return isolationState{}, nil
	}
	return isolationState{active: true, collateral: asset, debtCeiling: ceiling}, nil
}

// siloedBorrowingState returns the asset when the user's only borrow is a
// siloed reserve.
func (s *session) siloedBorrowingState(cfg configuration.UserMap) (bool, common.Address, error) {
	if !cfg.IsBorrowingOne() {
		return false, common.Address{}, nil
	}
	id, _ := cfg.FirstBorrowingID()
	asset, err := s.tx.reserveAsset(id)
	if err != nil || asset == (common.Address{}) {
		return false, common.Address{}, err
	}
	reserve, err := s.tx.listedReserve(asset)
	if err != nil {
		return false, common.Address{}, err
	}
	return reserve.Configuration.SiloedBorrowing(), asset, nil
}

// isolatedDebtUnits converts amount of a reserve with decimals into the
// debt ceiling precision, rounding down.
func isolatedDebtUnits(amount *uint256.Int, decimals uint64) (uint64, error) {
	var units *uint256.Int
	if decimals >= configuration.DebtCeilingDecimals {
		units = new(uint256.Int).Div(amount, wadray.Pow10(decimals-configuration.DebtCeilingDecimals))
	} else {
		var err error
		if units, err = checkedMul(amount, wadray.Pow10(configuration.DebtCeilingDecimals-decimals)); err != nil {
			return 0, err
		}
	}
	if !units.IsUint64() {
		return 0, wadray.ErrArithmeticOverflow
	}
	return units.Uint64(), nil
}

// updateIsolatedDebtIfIsolated lowers the isolated collateral's debt counter
// after repaying amount of the reserve described by cache.
func (s *session) updateIsolatedDebtIfIsolated(cfg configuration.UserMap, cache *ReserveCache, amount *uint256.Int) error {
	state, err := s.isolationModeState(cfg)
	if err != nil || !state.active {
		return err
	}
	return s.reduceIsolatedDebt(state.collateral, cache.Configuration.Decimals(), amount)
}

func (s *session) reduceIsolatedDebt(collateral common.Address, decimals uint64, amount *uint256.Int) error {
	reserve, err := s.tx.listedReserve(collateral)
	if err != nil {
		return err
	}
	repaid, err := isolatedDebtUnits(amount, decimals)
	if err != nil {
		return err
	}
	if reserve.IsolationModeTotalDebt <= repaid {
		reserve.IsolationModeTotalDebt = 0
	} else {
		reserve.IsolationModeTotalDebt -= repaid
	}
	s.tx.emit(IsolationModeTotalDebtUpdated{Asset: collateral, TotalDebt: reserve.IsolationModeTotalDebt})
	return nil
}

func (s *session) increaseIsolatedDebt(collateral common.Address, decimals uint64, amount *uint256.Int) error {
	reserve, err := s.tx.listedReserve(collateral)
	if err != nil {
		return err
	}
	added, err := isolatedDebtUnits(amount, decimals)
	if err != nil {
		return err
	}
	next := reserve.IsolationModeTotalDebt + added
	if next < reserve.IsolationModeTotalDebt {
		return wadray.ErrArithmeticOverflow
	}
	reserve.IsolationModeTotalDebt = next
	s.tx.emit(IsolationModeTotalDebtUpdated{Asset: collateral, TotalDebt: next})
	return nil
}
