package lending

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/wadray"
)

// Supply moves amount of asset from caller into the reserve and credits
// deposit shares to onBehalfOf. A first deposit enables the reserve as
// collateral when the account allows it.
func (p *Pool) Supply(ctx context.Context, caller common.Address, asset common.Address, amount *uint256.Int, onBehalfOf common.Address) error {
	return p.run(ctx, "supply", true, func(s *session) error {
		reserve, cache, err := s.accrue(asset)
		if err != nil {
			return err
		}
		if err := s.validateSupply(reserve, cache, asset, amount, onBehalfOf); err != nil {
			return err
		}
		if err := s.updateRates(asset, reserve, cache, amount, nil); err != nil {
			return err
		}
		if err := s.transferUnderlying(asset, caller, cache.ATokenAddress, amount); err != nil {
			return err
		}
		first, err := s.mintSupply(asset, onBehalfOf, amount, cache.NextLiquidityIndex)
		if err != nil {
			return err
		}
		if first {
			cfg, err := s.tx.userConfig(onBehalfOf)
			if err != nil {
				return err
			}
			ok, err := s.validateAutomaticUseAsCollateral(caller, *cfg, cache.Configuration)
			if err != nil {
				return err
			}
			if ok {
				if err := cfg.SetUsingAsCollateral(reserve.ID, true); err != nil {
					return err
				}
				s.tx.emit(CollateralToggled{Asset: asset, User: onBehalfOf, Enabled: true})
			}
		}
		s.tx.emit(Supply{Asset: asset, User: caller, OnBehalfOf: onBehalfOf, Amount: cloneInt(amount)})
		return nil
	})
}

// Withdraw burns caller's deposit shares and sends the underlying to to.
// MaxUint256 withdraws the whole balance. The amount withdrawn is returned.
func (p *Pool) Withdraw(ctx context.Context, caller common.Address, asset common.Address, amount *uint256.Int, to common.Address) (*uint256.Int, error) {
	var withdrawn *uint256.Int
	err := p.run(ctx, "withdraw", true, func(s *session) error {
		reserve, cache, err := s.accrue(asset)
		if err != nil {
			return err
		}
		balance, err := s.supplyBalance(asset, caller, cache.NextLiquidityIndex)
		if err != nil {
			return err
		}
		requested := cloneInt(amount)
		if wadray.IsMax(amount) {
			requested = balance
		}
		if err := validateWithdraw(cache, requested, balance); err != nil {
			return err
		}
		if err := s.updateRates(asset, reserve, cache, nil, requested); err != nil {
			return err
		}

		cfg, err := s.tx.userConfig(caller)
		if err != nil {
			return err
		}
		isCollateral := cfg.IsUsingAsCollateral(reserve.ID)
		if isCollateral && requested.Eq(balance) {
			if err := cfg.SetUsingAsCollateral(reserve.ID, false); err != nil {
				return err
			}
			s.tx.emit(CollateralToggled{Asset: asset, User: caller})
		}
		if _, err := s.burnSupply(asset, caller, requested, cache.NextLiquidityIndex); err != nil {
			return err
		}
		if err := s.transferUnderlying(asset, cache.ATokenAddress, to, requested); err != nil {
			return err
		}
		if isCollateral && cfg.IsBorrowingAny() {
			if err := s.validateHFAndLtv(caller, reserve); err != nil {
				return err
			}
		}
		s.tx.emit(Withdraw{Asset: asset, User: caller, To: to, Amount: cloneInt(requested)})
		withdrawn = requested
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}

// TransferSupply moves deposit shares worth amount from one account to
// another and settles both accounts' collateral flags.
func (p *Pool) TransferSupply(ctx context.Context, from, to, asset common.Address, amount *uint256.Int) error {
	return p.run(ctx, "transfer", true, func(s *session) error {
		if from == to {
			return ErrSameAccount
		}
		if err := requireAmount(amount); err != nil {
			return err
		}
		reserve, cache, err := s.accrue(asset)
		if err != nil {
			return err
		}
		if cache.Configuration.Paused() {
			return ErrReservePaused
		}
		_, toBefore, err := s.moveSupply(asset, from, to, amount, cache.NextLiquidityIndex)
		if err != nil {
			return err
		}
		if err := s.finalizeTransfer(reserve, asset, from, to, toBefore); err != nil {
			return err
		}
		s.tx.emit(BalanceTransfer{Asset: asset, From: from, To: to, Amount: cloneInt(amount)})
		return nil
	})
}

// finalizeTransfer clears the sender's collateral flag once its shares are
// gone, checks its health and enables collateral for a first-time receiver.
func (s *session) finalizeTransfer(reserve *ReserveData, asset, from, to common.Address, toBefore *uint256.Int) error {
	fromCfg, err := s.tx.userConfig(from)
	if err != nil {
		return err
	}
	if fromCfg.IsUsingAsCollateral(reserve.ID) {
		remaining, err := s.tx.scaledBalance(supplyShares, asset, from)
		if err != nil {
			return err
		}
		if remaining.IsZero() {
			if err := fromCfg.SetUsingAsCollateral(reserve.ID, false); err != nil {
				return err
			}
			s.tx.emit(CollateralToggled{Asset: asset, User: from})
		}
		if fromCfg.IsBorrowingAny() {
			if err := s.validateHFAndLtv(from, reserve); err != nil {
				return err
			}
		}
	}
	if !toBefore.IsZero() {
		return nil
	}
	toCfg, err := s.tx.userConfig(to)
	if err != nil {
		return err
	}
	ok, err := s.validateAutomaticUseAsCollateral(from, *toCfg, reserve.Configuration)
	if err != nil || !ok {
		return err
	}
	if err := toCfg.SetUsingAsCollateral(reserve.ID, true); err != nil {
		return err
	}
	s.tx.emit(CollateralToggled{Asset: asset, User: to, Enabled: true})
	return nil
}
