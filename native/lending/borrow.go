package lending

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/wadray"
)

// Borrow opens variable debt of amount for onBehalfOf and sends the funds to
// caller. Borrowing on behalf of another account consumes its credit
// delegation to caller.
func (p *Pool) Borrow(ctx context.Context, caller, asset common.Address, amount *uint256.Int, mode InterestRateMode, onBehalfOf common.Address) error {
	return p.run(ctx, "borrow", true, func(s *session) error {
		return s.executeBorrow(borrowParams{
			asset:             asset,
			user:              caller,
			onBehalfOf:        onBehalfOf,
			amount:            amount,
			mode:              mode,
			releaseUnderlying: true,
		}, false)
	})
}

func (s *session) executeBorrow(p borrowParams, fromFlashLoan bool) error {
	reserve, cache, err := s.accrue(p.asset)
	if err != nil {
		return err
	}
	cfg, err := s.tx.userConfig(p.onBehalfOf)
	if err != nil {
		return err
	}
	eModeID, err := s.tx.userEMode(p.onBehalfOf)
	if err != nil {
		return err
	}
	isolation, err := s.isolationModeState(*cfg)
	if err != nil {
		return err
	}
	p.cfg, p.eModeID, p.isolation = *cfg, eModeID, isolation

	if err := s.validateBorrow(reserve, cache, p); err != nil {
		return err
	}
	if p.user != p.onBehalfOf {
		if err := s.consumeBorrowAllowance(p.onBehalfOf, p.user, p.asset, p.amount); err != nil {
			return err
		}
	}
	first, err := s.mintDebt(p.asset, p.onBehalfOf, p.amount, cache)
	if err != nil {
		return err
	}
	if first {
		if err := cfg.SetBorrowing(reserve.ID, true); err != nil {
			return err
		}
	}
	if isolation.active {
		if err := s.increaseIsolatedDebt(isolation.collateral, cache.Configuration.Decimals(), p.amount); err != nil {
			return err
		}
	}
	var taken *uint256.Int
	if p.releaseUnderlying {
		taken = p.amount
	}
	if err := s.updateRates(p.asset, reserve, cache, nil, taken); err != nil {
		return err
	}
	if p.releaseUnderlying {
		if err := s.transferUnderlying(p.asset, cache.ATokenAddress, p.user, p.amount); err != nil {
			return err
		}
	}
	s.tx.emit(Borrow{
		Asset:         p.asset,
		User:          p.user,
		OnBehalfOf:    p.onBehalfOf,
		Amount:        cloneInt(p.amount),
		BorrowRate:    cloneInt(reserve.CurrentVariableBorrowRate),
		FromFlashLoan: fromFlashLoan,
	})
	return nil
}

// Repay pays back up to amount of onBehalfOf's variable debt from caller's
// funds. MaxUint256 repays the whole debt but only for the caller's own
// position. The amount repaid is returned.
func (p *Pool) Repay(ctx context.Context, caller, asset common.Address, amount *uint256.Int, mode InterestRateMode, onBehalfOf common.Address) (*uint256.Int, error) {
	var repaid *uint256.Int
	err := p.run(ctx, "repay", true, func(s *session) error {
		var err error
		repaid, err = s.executeRepay(caller, asset, amount, mode, onBehalfOf, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return repaid, nil
}

// RepayWithATokens pays back caller's own debt by burning caller's deposit
// shares of the same reserve.
func (p *Pool) RepayWithATokens(ctx context.Context, caller, asset common.Address, amount *uint256.Int, mode InterestRateMode) (*uint256.Int, error) {
	var repaid *uint256.Int
	err := p.run(ctx, "repay_with_atokens", true, func(s *session) error {
		var err error
		repaid, err = s.executeRepay(caller, asset, amount, mode, caller, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return repaid, nil
}

func (s *session) executeRepay(caller, asset common.Address, amount *uint256.Int, mode InterestRateMode, onBehalfOf common.Address, useATokens bool) (*uint256.Int, error) {
	reserve, cache, err := s.accrue(asset)
	if err != nil {
		return nil, err
	}
	debt, err := s.debtBalance(asset, onBehalfOf, cache.NextVariableBorrowIndex)
	if err != nil {
		return nil, err
	}
	if err := validateRepay(caller, onBehalfOf, cache, amount, mode, debt); err != nil {
		return nil, err
	}

	requested := cloneInt(amount)
	if useATokens && wadray.IsMax(amount) {
		if requested, err = s.supplyBalance(asset, caller, cache.NextLiquidityIndex); err != nil {
			return nil, err
		}
	}
	payback := debt
	if requested.Lt(payback) {
		payback = requested
	}
	if payback.IsZero() {
		return nil, ErrInvalidAmount
	}

	remaining, err := s.burnDebt(asset, onBehalfOf, payback, cache)
	if err != nil {
		return nil, err
	}
	var added *uint256.Int
	if !useATokens {
		added = payback
	}
	if err := s.updateRates(asset, reserve, cache, added, nil); err != nil {
		return nil, err
	}

	cfg, err := s.tx.userConfig(onBehalfOf)
	if err != nil {
		return nil, err
	}
	if remaining.IsZero() {
		if err := cfg.SetBorrowing(reserve.ID, false); err != nil {
			return nil, err
		}
	}
	if err := s.updateIsolatedDebtIfIsolated(*cfg, cache, payback); err != nil {
		return nil, err
	}

	if useATokens {
		after, err := s.burnSupply(asset, caller, payback, cache.NextLiquidityIndex)
		if err != nil {
			return nil, err
		}
		callerCfg, err := s.tx.userConfig(caller)
		if err != nil {
			return nil, err
		}
		if after.IsZero() && callerCfg.IsUsingAsCollateral(reserve.ID) {
			if err := callerCfg.SetUsingAsCollateral(reserve.ID, false); err != nil {
				return nil, err
			}
			s.tx.emit(CollateralToggled{Asset: asset, User: caller})
		}
	} else if err := s.transferUnderlying(asset, caller, cache.ATokenAddress, payback); err != nil {
		return nil, err
	}

	s.tx.emit(Repay{Asset: asset, User: onBehalfOf, Repayer: caller, Amount: cloneInt(payback), UseATokens: useATokens})
	return cloneInt(payback), nil
}
