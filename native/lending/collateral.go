package lending

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SetUserUseReserveAsCollateral toggles whether onBehalfOf's deposit of asset
// backs its debt. caller must be the user or one of its position managers.
func (p *Pool) SetUserUseReserveAsCollateral(ctx context.Context, caller, asset common.Address, useAsCollateral bool, onBehalfOf common.Address) error {
	return p.run(ctx, "set_collateral", true, func(s *session) error {
		if err := s.requireManager(caller, onBehalfOf); err != nil {
			return err
		}
		reserve, err := s.tx.listedReserve(asset)
		if err != nil {
			return err
		}
		income, err := reserve.NormalizedIncome(s.now)
		if err != nil {
			return err
		}
		balance, err := s.supplyBalance(asset, onBehalfOf, income)
		if err != nil {
			return err
		}
		if balance.IsZero() {
			return ErrUnderlyingBalanceZero
		}
		if err := requireUsable(reserve.Configuration); err != nil {
			return err
		}

		cfg, err := s.tx.userConfig(onBehalfOf)
		if err != nil {
			return err
		}
		if cfg.IsUsingAsCollateral(reserve.ID) == useAsCollateral {
			return nil
		}
		if useAsCollateral {
			ok, err := s.validateUseAsCollateral(*cfg, reserve.Configuration)
			if err != nil {
				return err
			}
			if !ok {
				return ErrUserInIsolationModeOrLTVZero
			}
			if err := cfg.SetUsingAsCollateral(reserve.ID, true); err != nil {
				return err
			}
			s.tx.emit(CollateralToggled{Asset: asset, User: onBehalfOf, Enabled: true})
			return nil
		}
		if err := cfg.SetUsingAsCollateral(reserve.ID, false); err != nil {
			return err
		}
		s.tx.emit(CollateralToggled{Asset: asset, User: onBehalfOf})
		return s.validateHFAndLtv(onBehalfOf, reserve)
	})
}

// requireManager allows user itself or an approved position manager.
func (s *session) requireManager(caller, user common.Address) error {
	if caller == user {
		return nil
	}
	approved, err := s.tx.flag(managerKey(user, caller))
	if err != nil {
		return err
	}
	if !approved {
		return ErrCallerNotPositionManager
	}
	return nil
}

// ApprovePositionManager lets manager toggle collateral and e-mode on behalf
// of user.
func (p *Pool) ApprovePositionManager(ctx context.Context, user, manager common.Address, approve bool) error {
	return p.run(ctx, "approve_position_manager", false, func(s *session) error {
		if manager == (common.Address{}) {
			return ErrZeroAddress
		}
		current, err := s.tx.flag(managerKey(user, manager))
		if err != nil {
			return err
		}
		if current == approve {
			return nil
		}
		s.tx.setFlag(managerKey(user, manager), approve)
		s.tx.emit(PositionManagerApproved{User: user, Manager: manager, Approved: approve})
		return nil
	})
}

// RenouncePositionManager drops manager's own approval for user.
func (p *Pool) RenouncePositionManager(ctx context.Context, manager, user common.Address) error {
	return p.ApprovePositionManager(ctx, user, manager, false)
}

// IsPositionManager reports whether manager may act for user.
func (p *Pool) IsPositionManager(ctx context.Context, user, manager common.Address) (bool, error) {
	var approved bool
	err := p.view(ctx, func(s *session) error {
		var err error
		approved, err = s.tx.flag(managerKey(user, manager))
		return err
	})
	return approved, err
}

// ApproveDelegation lets delegatee open up to amount of asset debt charged to
// delegator. It replaces any previous allowance.
func (p *Pool) ApproveDelegation(ctx context.Context, delegator, delegatee, asset common.Address, amount *uint256.Int) error {
	return p.run(ctx, "approve_delegation", false, func(s *session) error {
		if delegatee == (common.Address{}) {
			return ErrZeroAddress
		}
		if _, err := s.tx.listedReserve(asset); err != nil {
			return err
		}
		s.tx.setWord(allowanceKey(delegator, delegatee, asset), cloneInt(amount))
		s.tx.emit(BorrowAllowanceDelegated{Delegator: delegator, Delegatee: delegatee, Asset: asset, Amount: cloneInt(amount)})
		return nil
	})
}

// BorrowAllowance returns the debt delegatee may still open for delegator.
func (p *Pool) BorrowAllowance(ctx context.Context, delegator, delegatee, asset common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.view(ctx, func(s *session) error {
		allowance, err := s.tx.word(allowanceKey(delegator, delegatee, asset))
		out = cloneInt(allowance)
		return err
	})
	return out, err
}

func (s *session) consumeBorrowAllowance(delegator, delegatee, asset common.Address, amount *uint256.Int) error {
	key := allowanceKey(delegator, delegatee, asset)
	allowance, err := s.tx.word(key)
	if err != nil {
		return err
	}
	if allowance.Lt(amount) {
		return ErrBorrowAllowanceExceeded
	}
	remaining := new(uint256.Int).Sub(allowance, amount)
	s.tx.setWord(key, remaining)
	s.tx.emit(BorrowAllowanceDelegated{Delegator: delegator, Delegatee: delegatee, Asset: asset, Amount: cloneInt(remaining)})
	return nil
}
