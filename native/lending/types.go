package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/configuration"
	"lendcore/native/lending/wadray"
)

// InterestRateMode selects how a borrow accrues. Only variable debt exists;
// NONE is used by flash loans to request repayment instead of a borrow.
type InterestRateMode uint8

const (
	InterestRateModeNone     InterestRateMode = 0
	InterestRateModeVariable InterestRateMode = 2
)

// ReserveData is the accounting state of one listed asset.
type ReserveData struct {
	ID            uint16
	Configuration configuration.ReserveMap
	// LiquidityIndex and VariableBorrowIndex are rays starting at one and
	// never decreasing.
	LiquidityIndex            *uint256.Int
	VariableBorrowIndex       *uint256.Int
	CurrentLiquidityRate      *uint256.Int
	CurrentVariableBorrowRate *uint256.Int
	LastUpdateTimestamp       uint64
	ATokenAddress             common.Address
	VariableDebtTokenAddress  common.Address
	// AccruedToTreasury is denominated in scaled deposit shares.
	AccruedToTreasury        *uint256.Int
	VirtualUnderlyingBalance *uint256.Int
	// IsolationModeTotalDebt uses DebtCeilingDecimals precision.
	IsolationModeTotalDebt      uint64
	Deficit                     *uint256.Int
	LiquidationGracePeriodUntil uint64
}

func newReserveData(id uint16, aToken, debtToken common.Address) *ReserveData {
	return &ReserveData{
		ID:                        id,
		LiquidityIndex:            wadray.One(),
		VariableBorrowIndex:       wadray.One(),
		CurrentLiquidityRate:      new(uint256.Int),
		CurrentVariableBorrowRate: new(uint256.Int),
		ATokenAddress:             aToken,
		VariableDebtTokenAddress:  debtToken,
		AccruedToTreasury:         new(uint256.Int),
		VirtualUnderlyingBalance:  new(uint256.Int),
		Deficit:                   new(uint256.Int),
	}
}

// Clone returns a deep copy of the reserve.
func (r *ReserveData) Clone() *ReserveData {
	if r == nil {
		return nil
	}
	clone := *r
	clone.LiquidityIndex = cloneInt(r.LiquidityIndex)
	clone.VariableBorrowIndex = cloneInt(r.VariableBorrowIndex)
	clone.CurrentLiquidityRate = cloneInt(r.CurrentLiquidityRate)
	clone.CurrentVariableBorrowRate = cloneInt(r.CurrentVariableBorrowRate)
	clone.AccruedToTreasury = cloneInt(r.AccruedToTreasury)
	clone.VirtualUnderlyingBalance = cloneInt(r.VirtualUnderlyingBalance)
	clone.Deficit = cloneInt(r.Deficit)
	return &clone
}

// ReserveCache snapshots a reserve at the start of an action. The Next*
// fields are advanced by UpdateState and by share mints and burns.
type ReserveCache struct {
	Configuration            configuration.ReserveMap
	ReserveFactor            uint64
	CurrLiquidityIndex       *uint256.Int
	NextLiquidityIndex       *uint256.Int
	CurrVariableBorrowIndex  *uint256.Int
	NextVariableBorrowIndex  *uint256.Int
	CurrLiquidityRate        *uint256.Int
	CurrVariableBorrowRate   *uint256.Int
	CurrScaledVariableDebt   *uint256.Int
	NextScaledVariableDebt   *uint256.Int
	ATokenAddress            common.Address
	VariableDebtTokenAddress common.Address
	LastUpdateTimestamp      uint64
}

// EModeCategory groups correlated assets under boosted risk parameters.
type EModeCategory struct {
	LTV                  uint64
	LiquidationThreshold uint64
	LiquidationBonus     uint64
	Label                string
	Collateral           configuration.ReserveSet
	Borrowable           configuration.ReserveSet
}

// UserAccountData summarises a user's positions in the oracle base currency.
type UserAccountData struct {
	TotalCollateralBase         *uint256.Int
	TotalDebtBase               *uint256.Int
	AvailableBorrowsBase        *uint256.Int
	CurrentLTV                  uint64
	CurrentLiquidationThreshold uint64
	// HealthFactor is a wad; MaxUint256 when the user has no debt.
	HealthFactor         *uint256.Int
	HasZeroLTVCollateral bool
}

// PoolParams holds the pool-wide flash loan premiums in percentage units.
type PoolParams struct {
	FlashLoanPremiumTotal      uint64
	FlashLoanPremiumToProtocol uint64
}

// LiquidationCallParams describes a liquidation request.
type LiquidationCallParams struct {
	Liquidator      common.Address
	CollateralAsset common.Address
	DebtAsset       common.Address
	User            common.Address
	// DebtToCover may be MaxUint256 to cover as much as allowed.
	DebtToCover   *uint256.Int
	ReceiveAToken bool
}

// LiquidationResult reports what a liquidation moved.
type LiquidationResult struct {
	DebtRepaid        *uint256.Int
	CollateralSeized  *uint256.Int
	ProtocolFee       *uint256.Int
	DeficitCreated    *uint256.Int
	CollateralCleared bool
}

// FlashLoanParams describes a multi-asset flash loan.
type FlashLoanParams struct {
	Initiator common.Address
	Receiver  FlashLoanReceiver
	// ReceiverAddress is the ledger account that receives and returns funds.
	ReceiverAddress common.Address
	Assets          []common.Address
	Amounts         []*uint256.Int
	Modes           []InterestRateMode
	OnBehalfOf      common.Address
	Data            []byte
}

// InitReserveInput lists a new asset.
type InitReserveInput struct {
	Asset                    common.Address
	Decimals                 uint64
	ATokenAddress            common.Address
	VariableDebtTokenAddress common.Address
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
