package lending

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"lendcore/native/lending/configuration"
	"lendcore/native/lending/wadray"
)

var (
	riskAdmins      = []string{RolePoolAdmin, RoleRiskAdmin}
	emergencyAdmins = []string{RolePoolAdmin, RoleEmergencyAdmin}
	freezeAdmins    = []string{RolePoolAdmin, RoleRiskAdmin, RoleEmergencyAdmin}
)

func tokenAddress(kind string, asset common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(kind), asset.Bytes())[12:])
}

// InitReserve lists a new asset and returns its reserve id. Freed ids of
// dropped reserves are reused before the list grows. Share token addresses
// left zero are derived from the asset.
func (p *Pool) InitReserve(ctx context.Context, caller common.Address, input InitReserveInput) (uint16, error) {
	var id uint16
	err := p.run(ctx, "init_reserve", false, func(s *session) error {
		if err := s.requireRole(caller, RolePoolAdmin); err != nil {
			return err
		}
		if input.Asset == (common.Address{}) {
			return ErrZeroAddress
		}
		existing, err := s.tx.reserve(input.Asset)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrReserveAlreadyAdded
		}
		if id, err = s.freeReserveID(); err != nil {
			return err
		}

		aToken, debtToken := input.ATokenAddress, input.VariableDebtTokenAddress
		if aToken == (common.Address{}) {
			aToken = tokenAddress("lending/atoken", input.Asset)
		}
		if debtToken == (common.Address{}) {
			debtToken = tokenAddress("lending/variable-debt", input.Asset)
		}
		reserve := newReserveData(id, aToken, debtToken)
		if err := reserve.Configuration.SetDecimals(input.Decimals); err != nil {
			return err
		}
		reserve.Configuration.SetActive(true)
		reserve.Configuration.SetFlashLoanEnabled(true)
		reserve.LastUpdateTimestamp = s.now

		s.tx.putReserve(input.Asset, reserve)
		s.tx.setReserveAsset(id, input.Asset)
		s.tx.emit(ReserveInitialized{Asset: input.Asset, ID: id, ATokenAddress: aToken, VariableDebtToken: debtToken})
		return nil
	})
	return id, err
}

func (s *session) freeReserveID() (uint16, error) {
	count, err := s.tx.reservesCount()
	if err != nil {
		return 0, err
	}
	for id := uint16(0); id < count; id++ {
		asset, err := s.tx.reserveAsset(id)
		if err != nil {
			return 0, err
		}
		if asset == (common.Address{}) {
			return id, nil
		}
	}
	if count >= configuration.MaxReserves {
		return 0, ErrNoMoreReservesAllowed
	}
	s.tx.setReservesCount(count + 1)
	return count, nil
}

// DropReserve unlists an asset that has neither suppliers nor borrowers.
func (p *Pool) DropReserve(ctx context.Context, caller, asset common.Address) error {
	return p.run(ctx, "drop_reserve", false, func(s *session) error {
		if err := s.requireRole(caller, RolePoolAdmin); err != nil {
			return err
		}
		reserve, err := s.tx.listedReserve(asset)
		if err != nil {
			return err
		}
		if err := s.checkNoSuppliers(asset, reserve); err != nil {
			return err
		}
		if err := s.checkNoBorrowers(asset); err != nil {
			return err
		}
		s.tx.setReserveAsset(reserve.ID, common.Address{})
		s.tx.dropReserve(asset)
		s.tx.emit(ReserveDropped{Asset: asset})
		return nil
	})
}

func (s *session) checkNoSuppliers(asset common.Address, reserve *ReserveData) error {
	scaled, err := s.tx.scaledTotal(supplyShares, asset)
	if err != nil {
		return err
	}
	if !scaled.IsZero() || !reserve.AccruedToTreasury.IsZero() {
		return ErrReserveLiquidityNotZero
	}
	return nil
}

func (s *session) checkNoBorrowers(asset common.Address) error {
	scaled, err := s.tx.scaledTotal(debtShares, asset)
	if err != nil {
		return err
	}
	if !scaled.IsZero() {
		return ErrReserveDebtNotZero
	}
	return nil
}

// configureReserve runs fn against a listed reserve for a caller holding one
// of roles and reports the change.
func (p *Pool) configureReserve(ctx context.Context, caller, asset common.Address, setting, value string, roles []string, fn func(*session, *ReserveData) error) error {
	return p.run(ctx, "configure_reserve", false, func(s *session) error {
		if err := s.requireRole(caller, roles...); err != nil {
			return err
		}
		reserve, err := s.tx.listedReserve(asset)
		if err != nil {
			return err
		}
		if err := fn(s, reserve); err != nil {
			return err
		}
		s.tx.emit(ReserveConfigured{Asset: asset, Setting: setting, Value: value})
		return nil
	})
}

// ConfigureReserveAsCollateral sets the collateral risk parameters. A zero
// liquidation threshold disables the asset as collateral and requires a zero
// bonus and no suppliers.
func (p *Pool) ConfigureReserveAsCollateral(ctx context.Context, caller, asset common.Address, ltv, threshold, bonus uint64) error {
	value := strconv.FormatUint(ltv, 10) + "/" + strconv.FormatUint(threshold, 10) + "/" + strconv.FormatUint(bonus, 10)
	return p.configureReserve(ctx, caller, asset, "collateral", value, riskAdmins, func(s *session, r *ReserveData) error {
		if ltv > threshold {
			return ErrInvalidReserveParams
		}
		if threshold != 0 {
			if bonus <= wadray.PercentageFactor {
				return ErrInvalidReserveParams
			}
			if !collateralCoversBonus(threshold, bonus) {
				return ErrInvalidReserveParams
			}
		} else {
			if bonus != 0 {
				return ErrInvalidReserveParams
			}
			if err := s.checkNoSuppliers(asset, r); err != nil {
				return err
			}
		}
		if err := r.Configuration.SetLTV(ltv); err != nil {
			return err
		}
		if err := r.Configuration.SetLiquidationThreshold(threshold); err != nil {
			return err
		}
		return r.Configuration.SetLiquidationBonus(bonus)
	})
}

// collateralCoversBonus requires threshold times bonus to stay within 100%,
// so a liquidation can always pay the bonus out of the collateral.
func collateralCoversBonus(threshold, bonus uint64) bool {
	scaled, err := wadray.PercentMul(uint256.NewInt(threshold), bonus)
	return err == nil && scaled.Uint64() <= wadray.PercentageFactor
}

func (p *Pool) SetReserveBorrowing(ctx context.Context, caller, asset common.Address, enabled bool) error {
	return p.configureReserve(ctx, caller, asset, "borrowing_enabled", strconv.FormatBool(enabled), riskAdmins, func(_ *session, r *ReserveData) error {
		r.Configuration.SetBorrowingEnabled(enabled)
		return nil
	})
}

func (p *Pool) SetReserveFlashLoaning(ctx context.Context, caller, asset common.Address, enabled bool) error {
	return p.configureReserve(ctx, caller, asset, "flashloan_enabled", strconv.FormatBool(enabled), riskAdmins, func(_ *session, r *ReserveData) error {
		r.Configuration.SetFlashLoanEnabled(enabled)
		return nil
	})
}

// SetReserveActive toggles the reserve. Deactivation requires no suppliers.
func (p *Pool) SetReserveActive(ctx context.Context, caller, asset common.Address, active bool) error {
	return p.configureReserve(ctx, caller, asset, "active", strconv.FormatBool(active), []string{RolePoolAdmin}, func(s *session, r *ReserveData) error {
		if !active {
			if err := s.checkNoSuppliers(asset, r); err != nil {
				return err
			}
		}
		r.Configuration.SetActive(active)
		return nil
	})
}

func (p *Pool) SetReserveFreeze(ctx context.Context, caller, asset common.Address, frozen bool) error {
	return p.configureReserve(ctx, caller, asset, "frozen", strconv.FormatBool(frozen), freezeAdmins, func(_ *session, r *ReserveData) error {
		r.Configuration.SetFrozen(frozen)
		return nil
	})
}

// SetReservePause pauses or unpauses the reserve. On unpause a non-zero
// gracePeriod shields positions from liquidation for that many seconds.
func (p *Pool) SetReservePause(ctx context.Context, caller, asset common.Address, paused bool, gracePeriod uint64) error {
	return p.configureReserve(ctx, caller, asset, "paused", strconv.FormatBool(paused), emergencyAdmins, func(s *session, r *ReserveData) error {
		if !paused && gracePeriod != 0 {
			if gracePeriod > MaxGracePeriod {
				return ErrInvalidGracePeriod
			}
			r.LiquidationGracePeriodUntil = s.now + gracePeriod
			s.tx.emit(LiquidationGracePeriodSet{Asset: asset, Until: r.LiquidationGracePeriodUntil})
		}
		r.Configuration.SetPaused(paused)
		return nil
	})
}

// SetLiquidationGracePeriod shields the reserve from liquidation for
// gracePeriod seconds from now. Zero ends an active grace period.
func (p *Pool) SetLiquidationGracePeriod(ctx context.Context, caller, asset common.Address, gracePeriod uint64) error {
	return p.configureReserve(ctx, caller, asset, "liquidation_grace_period", strconv.FormatUint(gracePeriod, 10), emergencyAdmins, func(s *session, r *ReserveData) error {
		if gracePeriod > MaxGracePeriod {
			return ErrInvalidGracePeriod
		}
		r.LiquidationGracePeriodUntil = 0
		if gracePeriod != 0 {
			r.LiquidationGracePeriodUntil = s.now + gracePeriod
		}
		s.tx.emit(LiquidationGracePeriodSet{Asset: asset, Until: r.LiquidationGracePeriodUntil})
		return nil
	})
}

// SetReserveFactor changes the treasury share of interest. Interest accrued
// so far is settled at the old factor.
func (p *Pool) SetReserveFactor(ctx context.Context, caller, asset common.Address, factor uint64) error {
	return p.configureReserve(ctx, caller, asset, "reserve_factor", strconv.FormatUint(factor, 10), riskAdmins, func(s *session, r *ReserveData) error {
		if factor > wadray.PercentageFactor {
			return ErrInvalidReserveParams
		}
		_, cache, err := s.accrue(asset)
		if err != nil {
			return err
		}
		if err := r.Configuration.SetReserveFactor(factor); err != nil {
			return err
		}
		cache.Configuration = r.Configuration
		cache.ReserveFactor = factor
		return s.updateRates(asset, r, cache, nil, nil)
	})
}

func (p *Pool) SetBorrowCap(ctx context.Context, caller, asset common.Address, limit uint64) error {
	return p.configureReserve(ctx, caller, asset, "borrow_cap", strconv.FormatUint(limit, 10), riskAdmins, func(_ *session, r *ReserveData) error {
		return r.Configuration.SetBorrowCap(limit)
	})
}

func (p *Pool) SetSupplyCap(ctx context.Context, caller, asset common.Address, limit uint64) error {
	return p.configureReserve(ctx, caller, asset, "supply_cap", strconv.FormatUint(limit, 10), riskAdmins, func(_ *session, r *ReserveData) error {
		return r.Configuration.SetSupplyCap(limit)
	})
}

func (p *Pool) SetLiquidationProtocolFee(ctx context.Context, caller, asset common.Address, fee uint64) error {
	return p.configureReserve(ctx, caller, asset, "liquidation_protocol_fee", strconv.FormatUint(fee, 10), riskAdmins, func(_ *session, r *ReserveData) error {
		if fee > wadray.PercentageFactor {
			return ErrInvalidReserveParams
		}
		return r.Configuration.SetLiquidationProtocolFee(fee)
	})
}

// SetDebtCeiling isolates a collateral asset. An asset already used as
// collateral can only be isolated while it has no suppliers; lifting the
// ceiling resets the isolated debt counter.
func (p *Pool) SetDebtCeiling(ctx context.Context, caller, asset common.Address, ceiling uint64) error {
	return p.configureReserve(ctx, caller, asset, "debt_ceiling", strconv.FormatUint(ceiling, 10), riskAdmins, func(s *session, r *ReserveData) error {
		if r.Configuration.LiquidationThreshold() != 0 && r.Configuration.DebtCeiling() == 0 && ceiling != 0 {
			if err := s.checkNoSuppliers(asset, r); err != nil {
				return err
			}
		}
		if err := r.Configuration.SetDebtCeiling(ceiling); err != nil {
			return err
		}
		if ceiling == 0 && r.IsolationModeTotalDebt != 0 {
			r.IsolationModeTotalDebt = 0
			s.tx.emit(IsolationModeTotalDebtUpdated{Asset: asset})
		}
		return nil
	})
}

func (p *Pool) SetBorrowableInIsolation(ctx context.Context, caller, asset common.Address, borrowable bool) error {
	return p.configureReserve(ctx, caller, asset, "borrowable_in_isolation", strconv.FormatBool(borrowable), riskAdmins, func(_ *session, r *ReserveData) error {
		r.Configuration.SetBorrowableInIsolation(borrowable)
		return nil
	})
}

// SetSiloedBorrowing marks the asset as siloed. Enabling requires no
// borrowers.
func (p *Pool) SetSiloedBorrowing(ctx context.Context, caller, asset common.Address, siloed bool) error {
	return p.configureReserve(ctx, caller, asset, "siloed_borrowing", strconv.FormatBool(siloed), riskAdmins, func(s *session, r *ReserveData) error {
		if siloed {
			if err := s.checkNoBorrowers(asset); err != nil {
				return err
			}
		}
		r.Configuration.SetSiloedBorrowing(siloed)
		return nil
	})
}

// SyncIndexesState accrues the reserve up to now.
func (p *Pool) SyncIndexesState(ctx context.Context, caller, asset common.Address) error {
	return p.configureReserve(ctx, caller, asset, "sync_indexes", "", []string{RolePoolAdmin}, func(s *session, _ *ReserveData) error {
		_, _, err := s.accrue(asset)
		return err
	})
}

// SyncRatesState recomputes the reserve's rates without a liquidity change.
func (p *Pool) SyncRatesState(ctx context.Context, caller, asset common.Address) error {
	return p.configureReserve(ctx, caller, asset, "sync_rates", "", []string{RolePoolAdmin}, func(s *session, r *ReserveData) error {
		_, cache, err := s.loadReserve(asset)
		if err != nil {
			return err
		}
		return s.updateRates(asset, r, cache, nil, nil)
	})
}

// SetEModeCategory creates or updates an e-mode category. Id 0 is reserved
// for "no category".
func (p *Pool) SetEModeCategory(ctx context.Context, caller common.Address, id uint8, ltv, threshold, bonus uint64, label string) error {
	return p.run(ctx, "set_emode_category", false, func(s *session) error {
		if err := s.requireRole(caller, riskAdmins...); err != nil {
			return err
		}
		if id == 0 {
			return ErrInvalidEModeCategory
		}
		if ltv == 0 || threshold == 0 || ltv > threshold ||
			bonus <= wadray.PercentageFactor || !collateralCoversBonus(threshold, bonus) {
			return ErrInvalidEModeCategoryParams
		}
		category, err := s.tx.eModeCategory(id)
		if err != nil {
			return err
		}
		category.LTV, category.LiquidationThreshold, category.LiquidationBonus = ltv, threshold, bonus
		category.Label = label
		s.tx.emit(EModeCategoryUpdated{CategoryID: id, LTV: ltv, LiquidationThreshold: threshold, LiquidationBonus: bonus, Label: label})
		return nil
	})
}

// SetAssetCollateralInEMode adds or removes asset from the category's
// collateral set.
func (p *Pool) SetAssetCollateralInEMode(ctx context.Context, caller, asset common.Address, id uint8, enabled bool) error {
	return p.configureEModeAsset(ctx, caller, asset, id, "emode_collateral", enabled, func(c *EModeCategory) *configuration.ReserveSet {
		return &c.Collateral
	})
}

// SetAssetBorrowableInEMode adds or removes asset from the category's
// borrowable set.
func (p *Pool) SetAssetBorrowableInEMode(ctx context.Context, caller, asset common.Address, id uint8, enabled bool) error {
	return p.configureEModeAsset(ctx, caller, asset, id, "emode_borrowable", enabled, func(c *EModeCategory) *configuration.ReserveSet {
		return &c.Borrowable
	})
}

func (p *Pool) configureEModeAsset(ctx context.Context, caller, asset common.Address, id uint8, setting string, enabled bool, set func(*EModeCategory) *configuration.ReserveSet) error {
	value := strconv.FormatUint(uint64(id), 10) + ":" + strconv.FormatBool(enabled)
	return p.configureReserve(ctx, caller, asset, setting, value, riskAdmins, func(s *session, r *ReserveData) error {
		if id == 0 {
			return ErrInvalidEModeCategory
		}
		category, err := s.tx.eModeCategory(id)
		if err != nil {
			return err
		}
		if category.LiquidationThreshold == 0 {
			return ErrInconsistentEModeCategory
		}
		return set(category).Set(r.ID, enabled)
	})
}

// SetFlashLoanPremiums sets the total flash loan premium and the share of it
// paid to the treasury, both in percentage units.
func (p *Pool) SetFlashLoanPremiums(ctx context.Context, caller common.Address, total, toProtocol uint64) error {
	return p.run(ctx, "set_flashloan_premiums", false, func(s *session) error {
		if err := s.requireRole(caller, RolePoolAdmin); err != nil {
			return err
		}
		if total > wadray.PercentageFactor || toProtocol > wadray.PercentageFactor {
			return ErrInvalidFlashLoanPremium
		}
		params, err := s.tx.poolParams()
		if err != nil {
			return err
		}
		params.FlashLoanPremiumTotal, params.FlashLoanPremiumToProtocol = total, toProtocol
		s.tx.emit(FlashLoanPremiumsConfigured{Total: total, ToProtocol: toProtocol})
		return nil
	})
}
