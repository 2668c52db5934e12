package lending

import (
	"errors"

	nativecommon "lendcore/native/common"
	"lendcore/native/lending/configuration"
	"lendcore/native/lending/wadray"
)

// Configuration errors.
var (
	ErrInvalidReserveParams       = errors.New("lending: invalid reserve params")
	ErrInvalidEModeCategoryParams = errors.New("lending: invalid e-mode category params")
	ErrInvalidEModeCategory       = errors.New("lending: e-mode category 0 is reserved")
	ErrInconsistentEModeCategory  = errors.New("lending: e-mode category not configured")
	ErrInvalidGracePeriod         = errors.New("lending: grace period exceeds maximum")
	ErrInvalidFlashLoanPremium    = errors.New("lending: invalid flash loan premium")
	ErrReserveLiquidityNotZero    = errors.New("lending: reserve still has suppliers")
	ErrReserveDebtNotZero         = errors.New("lending: reserve still has borrowers")
	ErrUnauthorized               = errors.New("lending: caller lacks required role")
	ErrStateNotConfigured         = errors.New("lending: state not configured")
)

// State-precondition errors.
var (
	ErrInvalidAmount                   = errors.New("lending: invalid amount")
	ErrReserveInactive                 = errors.New("lending: reserve inactive")
	ErrReserveFrozen                   = errors.New("lending: reserve frozen")
	ErrReservePaused                   = errors.New("lending: reserve paused")
	ErrBorrowingNotEnabled             = errors.New("lending: borrowing not enabled")
	ErrFlashLoanDisabled               = errors.New("lending: flash loans disabled for reserve")
	ErrInvalidInterestRateMode         = errors.New("lending: invalid interest rate mode")
	ErrReserveAlreadyInitialized       = errors.New("lending: reserve already initialized")
	ErrReserveAlreadyAdded             = errors.New("lending: reserve already added")
	ErrAssetNotListed                  = errors.New("lending: asset not listed")
	ErrNoMoreReservesAllowed           = errors.New("lending: reserve limit reached")
	ErrZeroAddress                     = errors.New("lending: zero address not valid")
	ErrSupplyToAToken                  = errors.New("lending: cannot supply on behalf of the deposit-share contract")
	ErrNotEnoughAvailableUserBalance   = errors.New("lending: not enough available user balance")
	ErrNotEnoughAvailableLiquidity     = errors.New("lending: not enough available liquidity")
	ErrNoDebtOfSelectedType            = errors.New("lending: no debt of selected type")
	ErrNoExplicitAmountToRepayOnBehalf = errors.New("lending: explicit amount required to repay on behalf")
	ErrUnderlyingBalanceZero           = errors.New("lending: underlying balance is zero")
	ErrInvalidMintAmount               = errors.New("lending: amount rounds to zero shares")
	ErrInconsistentFlashLoanParams     = errors.New("lending: inconsistent flash loan params")
	ErrReentrantCall                   = errors.New("lending: reentrant call")
	ErrCallerNotPositionManager        = errors.New("lending: caller is not a position manager")
	ErrBorrowAllowanceExceeded         = errors.New("lending: borrow allowance exceeded")
	ErrSameAccount                     = errors.New("lending: sender and recipient are the same")
	ErrReserveNotInDeficit             = errors.New("lending: reserve has no deficit")
	ErrUserCannotHaveDebt              = errors.New("lending: caller must not have open debt")
)

// Risk-violation errors.
var (
	ErrSupplyCapExceeded                         = errors.New("lending: supply cap exceeded")
	ErrBorrowCapExceeded                         = errors.New("lending: borrow cap exceeded")
	ErrCollateralBalanceIsZero                   = errors.New("lending: collateral balance is zero")
	ErrLTVValidationFailed                       = errors.New("lending: ltv validation failed")
	ErrHealthFactorLowerThanLiquidationThreshold = errors.New("lending: health factor lower than liquidation threshold")
	ErrCollateralCannotCoverNewBorrow            = errors.New("lending: collateral cannot cover new borrow")
	ErrHealthFactorNotBelowThreshold             = errors.New("lending: health factor not below threshold")
	ErrCollateralCannotBeLiquidated              = errors.New("lending: collateral cannot be liquidated")
	ErrSpecifiedCurrencyNotBorrowedByUser        = errors.New("lending: specified currency not borrowed by user")
	ErrMustNotLeaveDust                          = errors.New("lending: liquidation must not leave dust")
	ErrDebtCeilingExceeded                       = errors.New("lending: isolation debt ceiling exceeded")
	ErrAssetNotBorrowableInIsolation             = errors.New("lending: asset not borrowable in isolation")
	ErrNotBorrowableInEMode                      = errors.New("lending: asset not borrowable in e-mode category")
	ErrSiloedBorrowingViolation                  = errors.New("lending: siloed borrowing violation")
	ErrUserInIsolationModeOrLTVZero              = errors.New("lending: user in isolation mode or ltv zero")
	ErrPriceOracleSentinelCheckFailed            = errors.New("lending: price oracle sentinel check failed")
	ErrLiquidationGracePeriodActive              = errors.New("lending: liquidation grace period active")
)

// External-failure errors.
var (
	ErrInvalidFlashLoanExecutorReturn = errors.New("lending: flash loan receiver rejected the operation")
	ErrOracleNotConfigured            = errors.New("lending: price oracle not configured")
	ErrRateStrategyNotConfigured      = errors.New("lending: interest rate strategy not configured")
	ErrTransferFailed                 = errors.New("lending: token transfer failed")
	ErrZeroPrice                      = errors.New("lending: oracle returned zero price")
)

// ErrorClass groups errors by the taxonomy callers react to.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassArithmetic
	ClassConfiguration
	ClassPrecondition
	ClassRisk
	ClassExternal
	ClassUnknown
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "ok"
	case ClassArithmetic:
		return "arithmetic"
	case ClassConfiguration:
		return "configuration"
	case ClassPrecondition:
		return "precondition"
	case ClassRisk:
		return "risk"
	case ClassExternal:
		return "external"
	default:
		return "unknown"
	}
}

var classes = []struct {
	class ErrorClass
	errs  []error
}{
	{ClassArithmetic, []error{wadray.ErrArithmeticOverflow, wadray.ErrDivisionByZero}},
	{ClassConfiguration, []error{
		configuration.ErrInvalidConfigurationValue, configuration.ErrInvalidReserveIndex,
		ErrInvalidReserveParams, ErrInvalidEModeCategoryParams, ErrInvalidEModeCategory,
		ErrInconsistentEModeCategory, ErrInvalidGracePeriod, ErrInvalidFlashLoanPremium,
		ErrReserveLiquidityNotZero, ErrReserveDebtNotZero, ErrUnauthorized, ErrStateNotConfigured,
	}},
	{ClassPrecondition, []error{
		ErrInvalidAmount, ErrReserveInactive, ErrReserveFrozen, ErrReservePaused,
		ErrBorrowingNotEnabled, ErrFlashLoanDisabled, ErrInvalidInterestRateMode,
		ErrReserveAlreadyInitialized, ErrReserveAlreadyAdded, ErrAssetNotListed,
		ErrNoMoreReservesAllowed, ErrZeroAddress, ErrSupplyToAToken,
		ErrNotEnoughAvailableUserBalance, ErrNotEnoughAvailableLiquidity, ErrNoDebtOfSelectedType,
		ErrNoExplicitAmountToRepayOnBehalf, ErrUnderlyingBalanceZero, ErrInvalidMintAmount,
		ErrInconsistentFlashLoanParams, ErrReentrantCall, ErrCallerNotPositionManager,
		ErrBorrowAllowanceExceeded, ErrSameAccount, ErrReserveNotInDeficit, ErrUserCannotHaveDebt,
		nativecommon.ErrModulePaused,
	}},
	{ClassRisk, []error{
		ErrSupplyCapExceeded, ErrBorrowCapExceeded, ErrCollateralBalanceIsZero,
		ErrLTVValidationFailed, ErrHealthFactorLowerThanLiquidationThreshold,
		ErrCollateralCannotCoverNewBorrow, ErrHealthFactorNotBelowThreshold,
		ErrCollateralCannotBeLiquidated, ErrSpecifiedCurrencyNotBorrowedByUser,
		ErrMustNotLeaveDust, ErrDebtCeilingExceeded, ErrAssetNotBorrowableInIsolation,
		ErrNotBorrowableInEMode, ErrSiloedBorrowingViolation, ErrUserInIsolationModeOrLTVZero,
		ErrPriceOracleSentinelCheckFailed, ErrLiquidationGracePeriodActive,
	}},
	{ClassExternal, []error{
		ErrInvalidFlashLoanExecutorReturn, ErrOracleNotConfigured, ErrRateStrategyNotConfigured,
		ErrTransferFailed, ErrZeroPrice,
	}},
}

// Classify maps err onto its taxonomy class. Errors returned by collaborators
// that match no known sentinel are reported as external failures.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	for _, group := range classes {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.class
			}
		}
	}
	var collaborator *CollaboratorError
	if errors.As(err, &collaborator) {
		return ClassExternal
	}
	return ClassUnknown
}

// CollaboratorError wraps a failure reported by an external collaborator.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return "lending: " + e.Collaborator + ": " + e.Err.Error()
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

func collaboratorErr(name string, err error) error {
	if err == nil {
		return nil
	}
	return &CollaboratorError{Collaborator: name, Err: err}
}
