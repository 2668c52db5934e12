package lending

import "github.com/holiman/uint256"

// ModuleName is the pause switch key guarding user actions.
const ModuleName = "lending"

const (
	// SecondsPerYear uses a 365 day year.
	SecondsPerYear uint64 = 365 * 24 * 60 * 60
	// MaxGracePeriod bounds the liquidation grace period applied on unpause.
	MaxGracePeriod uint64 = 4 * 60 * 60
	// DefaultLiquidationCloseFactor caps healthy-ish large liquidations at 50%.
	DefaultLiquidationCloseFactor uint64 = 5_000
	// DefaultFlashLoanPremiumTotal is 0.05%.
	DefaultFlashLoanPremiumTotal uint64 = 5
	// DefaultFlashLoanPremiumToProtocol sends the whole premium to the treasury.
	DefaultFlashLoanPremiumToProtocol uint64 = 10_000
)

var (
	// HealthFactorLiquidationThreshold is 1.0 as a wad.
	HealthFactorLiquidationThreshold = *uint256.NewInt(1_000_000_000_000_000_000)
	// CloseFactorHFThreshold is 0.95 as a wad. Below it the whole position
	// may be liquidated and the oracle sentinel is bypassed.
	CloseFactorHFThreshold = *uint256.NewInt(950_000_000_000_000_000)
	// MinBaseMaxCloseFactorThreshold is 2000 base-currency units (8 decimals).
	MinBaseMaxCloseFactorThreshold = *uint256.NewInt(2_000 * 100_000_000)
	// MinLeftoverBase is the smallest position a partial liquidation may
	// leave behind, 1000 base-currency units.
	MinLeftoverBase = *uint256.NewInt(1_000 * 100_000_000)
)
