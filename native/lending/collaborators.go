package lending

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RateParams is the liquidity snapshot handed to the interest rate strategy.
type RateParams struct {
	Asset                    common.Address
	ReserveID                uint16
	LiquidityAdded           *uint256.Int
	LiquidityTaken           *uint256.Int
	TotalDebt                *uint256.Int
	ReserveFactor            uint64
	VirtualUnderlyingBalance *uint256.Int
	// Deficit is pending bad debt not yet covered by suppliers.
	Deficit *uint256.Int
}

// InterestRateStrategy derives per-second-accruing annual rates in rays.
type InterestRateStrategy interface {
	CalculateInterestRates(ctx context.Context, params RateParams) (liquidityRate, variableBorrowRate *uint256.Int, err error)
}

// PriceOracle quotes asset prices in a common base currency.
type PriceOracle interface {
	GetAssetPrice(ctx context.Context, asset common.Address) (*uint256.Int, error)
	BaseCurrencyUnit() *uint256.Int
}

// PriceOracleSentinel gates borrows and liquidations during oracle outages.
type PriceOracleSentinel interface {
	IsBorrowAllowed() bool
	IsLiquidationAllowed() bool
}

// FlashLoanOperation is passed to the receiver while it holds the funds.
type FlashLoanOperation struct {
	Assets    []common.Address
	Amounts   []*uint256.Int
	Premiums  []*uint256.Int
	Initiator common.Address
	Receiver  common.Address
	Data      []byte
}

// FlashLoanReceiver is called back with the borrowed funds. It must return
// true and hold amount plus premium in its ledger account for every asset it
// repays. Pool calls made from ExecuteOperation must use the ctx it receives;
// they fail with ErrReentrantCall.
type FlashLoanReceiver interface {
	ExecuteOperation(ctx context.Context, op FlashLoanOperation) (bool, error)
}

// AccessControl answers role membership queries.
type AccessControl interface {
	HasRole(role string, account common.Address) bool
}

// Role names consulted by the pool.
const (
	RolePoolAdmin                  = "POOL_ADMIN"
	RoleRiskAdmin                  = "RISK_ADMIN"
	RoleEmergencyAdmin             = "EMERGENCY_ADMIN"
	RoleFlashBorrower              = "FLASH_BORROWER"
	RoleIsolatedCollateralSupplier = "ISOLATED_COLLATERAL_SUPPLIER"
	RoleDeficitCoverer             = "DEFICIT_COVERER"
)
