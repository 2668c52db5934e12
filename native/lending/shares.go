package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/tokenmath"
	"lendcore/native/lending/wadray"
)

// supplyBalance is holder's visible deposit balance at index.
func (s *session) supplyBalance(asset, holder common.Address, index *uint256.Int) (*uint256.Int, error) {
	scaled, err := s.tx.scaledBalance(supplyShares, asset, holder)
	if err != nil {
		return nil, err
	}
	return tokenmath.CollateralBalance(scaled, index)
}

// debtBalance is holder's visible variable debt at index.
func (s *session) debtBalance(asset, holder common.Address, index *uint256.Int) (*uint256.Int, error) {
	scaled, err := s.tx.scaledBalance(debtShares, asset, holder)
	if err != nil {
		return nil, err
	}
	return tokenmath.DebtBalance(scaled, index)
}

// totalSupply is the visible deposit supply at index, excluding unminted
// treasury accrual.
func (s *session) totalSupply(asset common.Address, index *uint256.Int) (*uint256.Int, error) {
	scaled, err := s.tx.scaledTotal(supplyShares, asset)
	if err != nil {
		return nil, err
	}
	return tokenmath.CollateralBalance(scaled, index)
}

func (s *session) addShares(kind shareKind, asset, holder common.Address, scaled *uint256.Int) (before *uint256.Int, err error) {
	balance, err := s.tx.scaledBalance(kind, asset, holder)
	if err != nil {
		return nil, err
	}
	total, err := s.tx.scaledTotal(kind, asset)
	if err != nil {
		return nil, err
	}
	nextBalance, err := wadray.Add(balance, scaled)
	if err != nil {
		return nil, err
	}
	nextTotal, err := wadray.Add(total, scaled)
	if err != nil {
		return nil, err
	}
	s.tx.setScaledBalance(kind, asset, holder, nextBalance)
	s.tx.setScaledTotal(kind, asset, nextTotal)
	return balance, nil
}

func (s *session) removeShares(kind shareKind, asset, holder common.Address, scaled *uint256.Int) (after *uint256.Int, err error) {
	balance, err := s.tx.scaledBalance(kind, asset, holder)
	if err != nil {
		return nil, err
	}
	total, err := s.tx.scaledTotal(kind, asset)
	if err != nil {
		return nil, err
	}
	nextBalance, err := wadray.Sub(balance, scaled)
	if err != nil {
		return nil, err
	}
	nextTotal, err := wadray.Sub(total, scaled)
	if err != nil {
		return nil, err
	}
	s.tx.setScaledBalance(kind, asset, holder, nextBalance)
	s.tx.setScaledTotal(kind, asset, nextTotal)
	return nextBalance, nil
}

// mintSupply credits deposit shares worth amount and reports whether holder
// had none before.
func (s *session) mintSupply(asset, holder common.Address, amount, index *uint256.Int) (bool, error) {
	scaled, err := tokenmath.CollateralMintScaled(amount, index)
	if err != nil {
		return false, err
	}
	if scaled.IsZero() {
		return false, ErrInvalidMintAmount
	}
	before, err := s.addShares(supplyShares, asset, holder, scaled)
	if err != nil {
		return false, err
	}
	return before.IsZero(), nil
}

// mintScaledSupply credits already-scaled deposit shares.
func (s *session) mintScaledSupply(asset, holder common.Address, scaled *uint256.Int) error {
	_, err := s.addShares(supplyShares, asset, holder, scaled)
	return err
}

// burnSupply removes the deposit shares backing amount and returns holder's
// remaining scaled balance.
func (s *session) burnSupply(asset, holder common.Address, amount, index *uint256.Int) (*uint256.Int, error) {
	balance, err := s.tx.scaledBalance(supplyShares, asset, holder)
	if err != nil {
		return nil, err
	}
	visible, err := tokenmath.CollateralBalance(balance, index)
	if err != nil {
		return nil, err
	}
	if amount.Gt(visible) {
		return nil, ErrNotEnoughAvailableUserBalance
	}
	scaled, err := tokenmath.BurnAmount(amount, visible, balance, tokenmath.CollateralBurnScaled, index)
	if err != nil {
		return nil, err
	}
	return s.removeShares(supplyShares, asset, holder, scaled)
}

// moveSupply transfers deposit shares worth amount from one holder to
// another. It returns both scaled balances before the move.
func (s *session) moveSupply(asset, from, to common.Address, amount, index *uint256.Int) (fromBefore, toBefore *uint256.Int, err error) {
	fromBefore, err = s.tx.scaledBalance(supplyShares, asset, from)
	if err != nil {
		return nil, nil, err
	}
	visible, err := tokenmath.CollateralBalance(fromBefore, index)
	if err != nil {
		return nil, nil, err
	}
	if amount.Gt(visible) {
		return nil, nil, ErrNotEnoughAvailableUserBalance
	}
	scaled, err := tokenmath.BurnAmount(amount, visible, fromBefore, tokenmath.CollateralTransferScaled, index)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.removeShares(supplyShares, asset, from, scaled); err != nil {
		return nil, nil, err
	}
	toBefore, err = s.addShares(supplyShares, asset, to, scaled)
	if err != nil {
		return nil, nil, err
	}
	return fromBefore, toBefore, nil
}

// mintDebt records variable debt of amount for holder, advancing the cached
// scaled debt total. It reports whether holder had no debt before.
func (s *session) mintDebt(asset, holder common.Address, amount *uint256.Int, cache *ReserveCache) (bool, error) {
	scaled, err := tokenmath.DebtMintScaled(amount, cache.NextVariableBorrowIndex)
	if err != nil {
		return false, err
	}
	if scaled.IsZero() {
		return false, ErrInvalidMintAmount
	}
	before, err := s.addShares(debtShares, asset, holder, scaled)
	if err != nil {
		return false, err
	}
	total, err := s.tx.scaledTotal(debtShares, asset)
	if err != nil {
		return false, err
	}
	cache.NextScaledVariableDebt = total
	return before.IsZero(), nil
}

// burnDebt clears amount of holder's variable debt and returns the remaining
// scaled debt.
func (s *session) burnDebt(asset, holder common.Address, amount *uint256.Int, cache *ReserveCache) (*uint256.Int, error) {
	balance, err := s.tx.scaledBalance(debtShares, asset, holder)
	if err != nil {
		return nil, err
	}
	visible, err := tokenmath.DebtBalance(balance, cache.NextVariableBorrowIndex)
	if err != nil {
		return nil, err
	}
	scaled, err := tokenmath.BurnAmount(amount, visible, balance, tokenmath.DebtBurnScaled, cache.NextVariableBorrowIndex)
	if err != nil {
		return nil, err
	}
	remaining, err := s.removeShares(debtShares, asset, holder, scaled)
	if err != nil {
		return nil, err
	}
	total, err := s.tx.scaledTotal(debtShares, asset)
	if err != nil {
		return nil, err
	}
	cache.NextScaledVariableDebt = total
	return remaining, nil
}
