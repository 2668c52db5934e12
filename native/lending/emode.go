package lending

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// SetUserEMode moves onBehalfOf into categoryID, or out of e-mode with 0.
// Every open borrow must be borrowable in the new category and the account
// must remain healthy under its parameters.
func (p *Pool) SetUserEMode(ctx context.Context, caller common.Address, categoryID uint8, onBehalfOf common.Address) error {
	return p.run(ctx, "set_user_emode", true, func(s *session) error {
		if err := s.requireManager(caller, onBehalfOf); err != nil {
			return err
		}
		current, err := s.tx.userEMode(onBehalfOf)
		if err != nil {
			return err
		}
		if current == categoryID {
			return nil
		}
		cfg, err := s.tx.userConfig(onBehalfOf)
		if err != nil {
			return err
		}
		if categoryID != 0 {
			category, err := s.tx.eModeCategory(categoryID)
			if err != nil {
				return err
			}
			if category.LiquidationThreshold == 0 {
				return ErrInconsistentEModeCategory
			}
			for id, pos := range cfg.Positions() {
				if pos.Borrowing && !category.Borrowable.Contains(id) {
					return ErrNotBorrowableInEMode
				}
			}
		}
		s.tx.setUserEMode(onBehalfOf, categoryID)
		if _, err := s.validateHealthFactor(onBehalfOf); err != nil {
			return err
		}
		s.tx.emit(UserEModeSet{User: onBehalfOf, CategoryID: categoryID})
		return nil
	})
}
