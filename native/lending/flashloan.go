package lending

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/wadray"
)

// FlashLoan lends every requested asset to the receiver for the duration of
// its callback. Assets with mode None must be returned with the premium;
// assets with mode Variable stay with the receiver as debt of OnBehalfOf.
// Initiators holding RoleFlashBorrower pay no premium.
func (p *Pool) FlashLoan(ctx context.Context, params FlashLoanParams) error {
	return p.run(ctx, "flashloan", true, func(s *session) error {
		return s.executeFlashLoan(params)
	})
}

// FlashLoanSimple lends a single asset that must be repaid within the
// callback.
func (p *Pool) FlashLoanSimple(ctx context.Context, initiator common.Address, receiver FlashLoanReceiver, receiverAddress, asset common.Address, amount *uint256.Int, data []byte) error {
	return p.run(ctx, "flashloan_simple", true, func(s *session) error {
		return s.executeFlashLoan(FlashLoanParams{
			Initiator:       initiator,
			Receiver:        receiver,
			ReceiverAddress: receiverAddress,
			Assets:          []common.Address{asset},
			Amounts:         []*uint256.Int{amount},
			Modes:           []InterestRateMode{InterestRateModeNone},
			OnBehalfOf:      initiator,
			Data:            data,
		})
	})
}

func (s *session) executeFlashLoan(params FlashLoanParams) error {
	if params.Receiver == nil || params.ReceiverAddress == (common.Address{}) {
		return fmt.Errorf("%w: receiver required", ErrInconsistentFlashLoanParams)
	}
	if err := s.validateFlashLoan(params.Assets, params.Amounts, params.Modes); err != nil {
		return err
	}
	pp, err := s.tx.poolParams()
	if err != nil {
		return err
	}
	premiumTotal := pp.FlashLoanPremiumTotal
	if s.hasRole(RoleFlashBorrower, params.Initiator) {
		premiumTotal = 0
	}

	premiums := make([]*uint256.Int, len(params.Assets))
	for i, asset := range params.Assets {
		premiums[i] = new(uint256.Int)
		if params.Modes[i] == InterestRateModeNone {
			if premiums[i], err = wadray.PercentMul(params.Amounts[i], premiumTotal); err != nil {
				return err
			}
		}
		reserve, err := s.tx.listedReserve(asset)
		if err != nil {
			return err
		}
		if reserve.VirtualUnderlyingBalance, err = wadray.Sub(reserve.VirtualUnderlyingBalance, params.Amounts[i]); err != nil {
			return ErrNotEnoughAvailableLiquidity
		}
		if err := s.transferUnderlying(asset, reserve.ATokenAddress, params.ReceiverAddress, params.Amounts[i]); err != nil {
			return err
		}
	}

	ok, err := s.invokeReceiver(params.Receiver, FlashLoanOperation{
		Assets:    params.Assets,
		Amounts:   params.Amounts,
		Premiums:  premiums,
		Initiator: params.Initiator,
		Receiver:  params.ReceiverAddress,
		Data:      params.Data,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFlashLoanExecutorReturn, collaboratorErr("flash loan receiver", err))
	}
	if !ok {
		return ErrInvalidFlashLoanExecutorReturn
	}

	for i, asset := range params.Assets {
		if params.Modes[i] == InterestRateModeNone {
			if err := s.repayFlashLoan(params, asset, params.Amounts[i], premiums[i], pp); err != nil {
				return err
			}
			continue
		}
		err := s.executeBorrow(borrowParams{
			asset:      asset,
			user:       params.Initiator,
			onBehalfOf: params.OnBehalfOf,
			amount:     params.Amounts[i],
			mode:       params.Modes[i],
		}, true)
		if err != nil {
			return err
		}
		s.tx.emit(FlashLoan{
			Target:    params.ReceiverAddress,
			Initiator: params.Initiator,
			Asset:     asset,
			Amount:    cloneInt(params.Amounts[i]),
			Mode:      params.Modes[i],
			Premium:   new(uint256.Int),
		})
	}
	return nil
}

// repayFlashLoan pulls amount plus premium back from the receiver. The
// suppliers' share of the premium is added to the liquidity index and the
// protocol's share accrues to the treasury.
func (s *session) repayFlashLoan(params FlashLoanParams, asset common.Address, amount, premium *uint256.Int, pp *PoolParams) error {
	toProtocol, err := wadray.PercentMul(premium, pp.FlashLoanPremiumToProtocol)
	if err != nil {
		return err
	}
	if toProtocol.Gt(premium) {
		toProtocol = cloneInt(premium)
	}
	toSuppliers := new(uint256.Int).Sub(premium, toProtocol)
	repayment, err := wadray.Add(amount, premium)
	if err != nil {
		return err
	}

	reserve, cache, err := s.accrue(asset)
	if err != nil {
		return err
	}
	if !toSuppliers.IsZero() {
		scaled, err := s.tx.scaledTotal(supplyShares, asset)
		if err != nil {
			return err
		}
		if scaled, err = wadray.Add(scaled, reserve.AccruedToTreasury); err != nil {
			return err
		}
		liquidity, err := wadray.RayMul(scaled, cache.NextLiquidityIndex)
		if err != nil {
			return err
		}
		if liquidity.IsZero() {
			toProtocol = cloneInt(premium)
		} else {
			if cache.NextLiquidityIndex, err = reserve.CumulateToLiquidityIndex(liquidity, toSuppliers); err != nil {
				return err
			}
		}
	}
	if !toProtocol.IsZero() {
		scaledFee, err := wadray.RayDiv(toProtocol, cache.NextLiquidityIndex)
		if err != nil {
			return err
		}
		if reserve.AccruedToTreasury, err = wadray.Add(reserve.AccruedToTreasury, scaledFee); err != nil {
			return err
		}
	}
	if err := s.updateRates(asset, reserve, cache, repayment, nil); err != nil {
		return err
	}
	if err := s.transferUnderlying(asset, params.ReceiverAddress, cache.ATokenAddress, repayment); err != nil {
		return err
	}
	s.tx.emit(FlashLoan{
		Target:    params.ReceiverAddress,
		Initiator: params.Initiator,
		Asset:     asset,
		Amount:    cloneInt(amount),
		Mode:      InterestRateModeNone,
		Premium:   cloneInt(premium),
	})
	return nil
}
