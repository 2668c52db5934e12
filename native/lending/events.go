package lending

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	TypeReserveInitialized          = "lending.reserve.initialized"
	TypeReserveDropped              = "lending.reserve.dropped"
	TypeReserveConfigured           = "lending.reserve.configured"
	TypeReserveDataUpdated          = "lending.reserve.data_updated"
	TypeSupply                      = "lending.supply"
	TypeWithdraw                    = "lending.withdraw"
	TypeBorrow                      = "lending.borrow"
	TypeRepay                       = "lending.repay"
	TypeCollateralEnabled           = "lending.collateral.enabled"
	TypeCollateralDisabled          = "lending.collateral.disabled"
	TypeLiquidationCall             = "lending.liquidation"
	TypeDeficitCreated              = "lending.deficit.created"
	TypeDeficitCovered              = "lending.deficit.covered"
	TypeFlashLoan                   = "lending.flashloan"
	TypeMintedToTreasury            = "lending.treasury.minted"
	TypeUserEModeSet                = "lending.emode.user_set"
	TypeEModeCategoryUpdated        = "lending.emode.category_updated"
	TypeIsolationModeTotalDebt      = "lending.isolation.total_debt"
	TypeBalanceTransfer             = "lending.supply.transfer"
	TypePositionManagerApproved     = "lending.position_manager.approved"
	TypeBorrowAllowanceDelegated    = "lending.borrow_allowance.delegated"
	TypeLiquidationGracePeriodSet   = "lending.reserve.grace_period"
	TypeFlashLoanPremiumsConfigured = "lending.flashloan.premiums"
)

// Event is a state change reported by the pool after a successful commit.
type Event interface {
	EventType() string
	// Attributes flattens the event for journals and message streams.
	Attributes() map[string]string
}

// Emitter receives committed pool events.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards events.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// MultiEmitter fans an event out to several emitters in order.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ev Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ev)
		}
	}
}

func intString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func uintString(v uint64) string { return strconv.FormatUint(v, 10) }

type ReserveInitialized struct {
	Asset             common.Address
	ID                uint16
	ATokenAddress     common.Address
	VariableDebtToken common.Address
}

func (ReserveInitialized) EventType() string { return TypeReserveInitialized }

func (e ReserveInitialized) Attributes() map[string]string {
	return map[string]string{
		"asset":      e.Asset.Hex(),
		"id":         uintString(uint64(e.ID)),
		"atoken":     e.ATokenAddress.Hex(),
		"debt_token": e.VariableDebtToken.Hex(),
	}
}

type ReserveDropped struct {
	Asset common.Address
}

func (ReserveDropped) EventType() string { return TypeReserveDropped }

func (e ReserveDropped) Attributes() map[string]string {
	return map[string]string{"asset": e.Asset.Hex()}
}

// ReserveConfigured reports a configurator change of one setting.
type ReserveConfigured struct {
	Asset   common.Address
	Setting string
	Value   string
}

func (ReserveConfigured) EventType() string { return TypeReserveConfigured }

func (e ReserveConfigured) Attributes() map[string]string {
	return map[string]string{"asset": e.Asset.Hex(), "setting": e.Setting, "value": e.Value}
}

type ReserveDataUpdated struct {
	Asset               common.Address
	LiquidityRate       *uint256.Int
	VariableBorrowRate  *uint256.Int
	LiquidityIndex      *uint256.Int
	VariableBorrowIndex *uint256.Int
}

func (ReserveDataUpdated) EventType() string { return TypeReserveDataUpdated }

func (e ReserveDataUpdated) Attributes() map[string]string {
	return map[string]string{
		"asset":                 e.Asset.Hex(),
		"liquidity_rate":        intString(e.LiquidityRate),
		"variable_borrow_rate":  intString(e.VariableBorrowRate),
		"liquidity_index":       intString(e.LiquidityIndex),
		"variable_borrow_index": intString(e.VariableBorrowIndex),
	}
}

type Supply struct {
	Asset      common.Address
	User       common.Address
	OnBehalfOf common.Address
	Amount     *uint256.Int
}

func (Supply) EventType() string { return TypeSupply }

func (e Supply) Attributes() map[string]string {
	return map[string]string{
		"asset":        e.Asset.Hex(),
		"user":         e.User.Hex(),
		"on_behalf_of": e.OnBehalfOf.Hex(),
		"amount":       intString(e.Amount),
	}
}

type Withdraw struct {
	Asset  common.Address
	User   common.Address
	To     common.Address
	Amount *uint256.Int
}

func (Withdraw) EventType() string { return TypeWithdraw }

func (e Withdraw) Attributes() map[string]string {
	return map[string]string{
		"asset":  e.Asset.Hex(),
		"user":   e.User.Hex(),
		"to":     e.To.Hex(),
		"amount": intString(e.Amount),
	}
}

type Borrow struct {
	Asset         common.Address
	User          common.Address
	OnBehalfOf    common.Address
	Amount        *uint256.Int
	BorrowRate    *uint256.Int
	FromFlashLoan bool
}

func (Borrow) EventType() string { return TypeBorrow }

func (e Borrow) Attributes() map[string]string {
	return map[string]string{
		"asset":        e.Asset.Hex(),
		"user":         e.User.Hex(),
		"on_behalf_of": e.OnBehalfOf.Hex(),
		"amount":       intString(e.Amount),
		"borrow_rate":  intString(e.BorrowRate),
		"flash_loan":   strconv.FormatBool(e.FromFlashLoan),
	}
}

type Repay struct {
	Asset      common.Address
	User       common.Address
	Repayer    common.Address
	Amount     *uint256.Int
	UseATokens bool
}

func (Repay) EventType() string { return TypeRepay }

func (e Repay) Attributes() map[string]string {
	return map[string]string{
		"asset":       e.Asset.Hex(),
		"user":        e.User.Hex(),
		"repayer":     e.Repayer.Hex(),
		"amount":      intString(e.Amount),
		"use_atokens": strconv.FormatBool(e.UseATokens),
	}
}

// CollateralToggled reports a change of a user's collateral flag.
type CollateralToggled struct {
	Asset   common.Address
	User    common.Address
	Enabled bool
}

func (e CollateralToggled) EventType() string {
	if e.Enabled {
		return TypeCollateralEnabled
	}
	return TypeCollateralDisabled
}

func (e CollateralToggled) Attributes() map[string]string {
	return map[string]string{"asset": e.Asset.Hex(), "user": e.User.Hex()}
}

type LiquidationCall struct {
	CollateralAsset  common.Address
	DebtAsset        common.Address
	User             common.Address
	Liquidator       common.Address
	DebtToCover      *uint256.Int
	CollateralAmount *uint256.Int
	ReceiveAToken    bool
}

func (LiquidationCall) EventType() string { return TypeLiquidationCall }

func (e LiquidationCall) Attributes() map[string]string {
	return map[string]string{
		"collateral_asset":  e.CollateralAsset.Hex(),
		"debt_asset":        e.DebtAsset.Hex(),
		"user":              e.User.Hex(),
		"liquidator":        e.Liquidator.Hex(),
		"debt_to_cover":     intString(e.DebtToCover),
		"collateral_amount": intString(e.CollateralAmount),
		"receive_atoken":    strconv.FormatBool(e.ReceiveAToken),
	}
}

type DeficitCreated struct {
	Asset  common.Address
	User   common.Address
	Amount *uint256.Int
}

func (DeficitCreated) EventType() string { return TypeDeficitCreated }

func (e DeficitCreated) Attributes() map[string]string {
	return map[string]string{"asset": e.Asset.Hex(), "user": e.User.Hex(), "amount": intString(e.Amount)}
}

type DeficitCovered struct {
	Asset  common.Address
	Caller common.Address
	Amount *uint256.Int
}

func (DeficitCovered) EventType() string { return TypeDeficitCovered }

func (e DeficitCovered) Attributes() map[string]string {
	return map[string]string{"asset": e.Asset.Hex(), "caller": e.Caller.Hex(), "amount": intString(e.Amount)}
}

type FlashLoan struct {
	Target    common.Address
	Initiator common.Address
	Asset     common.Address
	Amount    *uint256.Int
	Mode      InterestRateMode
	Premium   *uint256.Int
}

func (FlashLoan) EventType() string { return TypeFlashLoan }

func (e FlashLoan) Attributes() map[string]string {
	return map[string]string{
		"target":    e.Target.Hex(),
		"initiator": e.Initiator.Hex(),
		"asset":     e.Asset.Hex(),
		"amount":    intString(e.Amount),
		"mode":      uintString(uint64(e.Mode)),
		"premium":   intString(e.Premium),
	}
}

type MintedToTreasury struct {
	Asset  common.Address
	Amount *uint256.Int
}

func (MintedToTreasury) EventType() string { return TypeMintedToTreasury }

func (e MintedToTreasury) Attributes() map[string]string {
	return map[string]string{"asset": e.Asset.Hex(), "amount": intString(e.Amount)}
}

type UserEModeSet struct {
	User       common.Address
	CategoryID uint8
}

func (UserEModeSet) EventType() string { return TypeUserEModeSet }

func (e UserEModeSet) Attributes() map[string]string {
	return map[string]string{"user": e.User.Hex(), "category": uintString(uint64(e.CategoryID))}
}

type EModeCategoryUpdated struct {
	CategoryID           uint8
	LTV                  uint64
	LiquidationThreshold uint64
	LiquidationBonus     uint64
	Label                string
}

func (EModeCategoryUpdated) EventType() string { return TypeEModeCategoryUpdated }

func (e EModeCategoryUpdated) Attributes() map[string]string {
	return map[string]string{
		"category":              uintString(uint64(e.CategoryID)),
		"ltv":                   uintString(e.LTV),
		"liquidation_threshold": uintString(e.LiquidationThreshold),
		"liquidation_bonus":     uintString(e.LiquidationBonus),
		"label":                 e.Label,
	}
}

type IsolationModeTotalDebtUpdated struct {
	Asset     common.Address
	TotalDebt uint64
}

func (IsolationModeTotalDebtUpdated) EventType() string { return TypeIsolationModeTotalDebt }

func (e IsolationModeTotalDebtUpdated) Attributes() map[string]string {
	return map[string]string{"asset": e.Asset.Hex(), "total_debt": uintString(e.TotalDebt)}
}

type BalanceTransfer struct {
	Asset  common.Address
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

func (BalanceTransfer) EventType() string { return TypeBalanceTransfer }

func (e BalanceTransfer) Attributes() map[string]string {
	return map[string]string{
		"asset":  e.Asset.Hex(),
		"from":   e.From.Hex(),
		"to":     e.To.Hex(),
		"amount": intString(e.Amount),
	}
}

type PositionManagerApproved struct {
	User     common.Address
	Manager  common.Address
	Approved bool
}

func (PositionManagerApproved) EventType() string { return TypePositionManagerApproved }

func (e PositionManagerApproved) Attributes() map[string]string {
	return map[string]string{
		"user":     e.User.Hex(),
		"manager":  e.Manager.Hex(),
		"approved": strconv.FormatBool(e.Approved),
	}
}

type BorrowAllowanceDelegated struct {
	Delegator common.Address
	Delegatee common.Address
	Asset     common.Address
	Amount    *uint256.Int
}

func (BorrowAllowanceDelegated) EventType() string { return TypeBorrowAllowanceDelegated }

func (e BorrowAllowanceDelegated) Attributes() map[string]string {
	return map[string]string{
		"delegator": e.Delegator.Hex(),
		"delegatee": e.Delegatee.Hex(),
		"asset":     e.Asset.Hex(),
		"amount":    intString(e.Amount),
	}
}

type LiquidationGracePeriodSet struct {
	Asset common.Address
	Until uint64
}

func (LiquidationGracePeriodSet) EventType() string { return TypeLiquidationGracePeriodSet }

func (e LiquidationGracePeriodSet) Attributes() map[string]string {
	return map[string]string{"asset": e.Asset.Hex(), "until": uintString(e.Until)}
}

type FlashLoanPremiumsConfigured struct {
	Total      uint64
	ToProtocol uint64
}

func (FlashLoanPremiumsConfigured) EventType() string { return TypeFlashLoanPremiumsConfigured }

func (e FlashLoanPremiumsConfigured) Attributes() map[string]string {
	return map[string]string{"total": uintString(e.Total), "to_protocol": uintString(e.ToProtocol)}
}
