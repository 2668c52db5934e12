package lending

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/wadray"
)

// MintToTreasury turns the accrued reserve factor of each asset into deposit
// shares owned by the treasury. Inactive and unlisted assets are skipped.
func (p *Pool) MintToTreasury(ctx context.Context, assets []common.Address) error {
	return p.run(ctx, "mint_to_treasury", false, func(s *session) error {
		for _, asset := range assets {
			reserve, err := s.tx.reserve(asset)
			if err != nil {
				return err
			}
			if reserve == nil || !reserve.Configuration.Active() || reserve.AccruedToTreasury.IsZero() {
				continue
			}
			scaled := cloneInt(reserve.AccruedToTreasury)
			reserve.AccruedToTreasury = new(uint256.Int)
			income, err := reserve.NormalizedIncome(s.now)
			if err != nil {
				return err
			}
			if err := s.mintScaledSupply(asset, s.pool.treasury, scaled); err != nil {
				return err
			}
			minted, err := wadray.RayMul(scaled, income)
			if err != nil {
				return err
			}
			s.tx.emit(MintedToTreasury{Asset: asset, Amount: minted})
		}
		return nil
	})
}

// EliminateReserveDeficit lets a deficit coverer burn its own deposit shares
// to write off up to amount of the reserve's bad debt. It returns the amount
// written off.
func (p *Pool) EliminateReserveDeficit(ctx context.Context, caller, asset common.Address, amount *uint256.Int) (*uint256.Int, error) {
	var covered *uint256.Int
	err := p.run(ctx, "eliminate_deficit", true, func(s *session) error {
		if err := s.requireRole(caller, RoleDeficitCoverer); err != nil {
			return err
		}
		if err := requireAmount(amount); err != nil {
			return err
		}
		reserve, cache, err := s.accrue(asset)
		if err != nil {
			return err
		}
		if !cache.Configuration.Active() {
			return ErrReserveInactive
		}
		if reserve.Deficit.IsZero() {
			return ErrReserveNotInDeficit
		}
		cfg, err := s.tx.userConfig(caller)
		if err != nil {
			return err
		}
		if cfg.IsBorrowingAny() {
			return ErrUserCannotHaveDebt
		}

		covered = cloneInt(amount)
		if covered.Gt(reserve.Deficit) {
			covered = cloneInt(reserve.Deficit)
		}
		balance, err := s.supplyBalance(asset, caller, cache.NextLiquidityIndex)
		if err != nil {
			return err
		}
		remaining, err := s.burnSupply(asset, caller, covered, cache.NextLiquidityIndex)
		if err != nil {
			return err
		}
		if (covered.Eq(balance) || remaining.IsZero()) && cfg.IsUsingAsCollateral(reserve.ID) {
			if err := cfg.SetUsingAsCollateral(reserve.ID, false); err != nil {
				return err
			}
			s.tx.emit(CollateralToggled{Asset: asset, User: caller})
		}
		reserve.Deficit = new(uint256.Int).Sub(reserve.Deficit, covered)
		if err := s.updateRates(asset, reserve, cache, nil, nil); err != nil {
			return err
		}
		s.tx.emit(DeficitCovered{Asset: asset, Caller: caller, Amount: cloneInt(covered)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return covered, nil
}
