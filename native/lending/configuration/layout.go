// Package configuration implements the packed 256-bit words that hold reserve
// parameters, per-user position flags and e-mode reserve sets.
package configuration

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrInvalidConfigurationValue is matched by every *InvalidValueError.
var ErrInvalidConfigurationValue = errors.New("configuration: invalid value")

// ErrInvalidReserveIndex is returned for reserve ids outside [0, MaxReserves).
var ErrInvalidReserveIndex = errors.New("configuration: invalid reserve index")

// InvalidValueError reports a value that does not fit its bit field.
type InvalidValueError struct {
	Field string
	Value uint64
	Max   uint64
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("configuration: invalid %s %d (max %d)", e.Field, e.Value, e.Max)
}

// Is lets errors.Is match the generic sentinel.
func (e *InvalidValueError) Is(target error) bool {
	return target == ErrInvalidConfigurationValue
}

// Field describes a bit range inside a reserve configuration word.
type Field struct {
	Name   string
	Offset uint
	Width  uint
}

// Max returns the largest value the field can hold.
func (f Field) Max() uint64 {
	return uint64(1)<<f.Width - 1
}

// Reserve configuration layout. Bit 59 and the ranges 168-212 and 252-255 are
// legacy slots that stay zero.
var (
	FieldLTV                    = Field{"ltv", 0, 16}
	FieldLiquidationThreshold   = Field{"liquidation threshold", 16, 16}
	FieldLiquidationBonus       = Field{"liquidation bonus", 32, 16}
	FieldDecimals               = Field{"decimals", 48, 8}
	FieldActive                 = Field{"active", 56, 1}
	FieldFrozen                 = Field{"frozen", 57, 1}
	FieldBorrowingEnabled       = Field{"borrowing enabled", 58, 1}
	FieldPaused                 = Field{"paused", 60, 1}
	FieldBorrowableInIsolation  = Field{"borrowable in isolation", 61, 1}
	FieldSiloedBorrowing        = Field{"siloed borrowing", 62, 1}
	FieldFlashLoanEnabled       = Field{"flash loan enabled", 63, 1}
	FieldReserveFactor          = Field{"reserve factor", 64, 16}
	FieldBorrowCap              = Field{"borrow cap", 80, 36}
	FieldSupplyCap              = Field{"supply cap", 116, 36}
	FieldLiquidationProtocolFee = Field{"liquidation protocol fee", 152, 16}
	FieldDebtCeiling            = Field{"debt ceiling", 212, 40}
)

// Layout lists every field in bit order.
var Layout = []Field{
	FieldLTV,
	FieldLiquidationThreshold,
	FieldLiquidationBonus,
	FieldDecimals,
	FieldActive,
	FieldFrozen,
	FieldBorrowingEnabled,
	FieldPaused,
	FieldBorrowableInIsolation,
	FieldSiloedBorrowing,
	FieldFlashLoanEnabled,
	FieldReserveFactor,
	FieldBorrowCap,
	FieldSupplyCap,
	FieldLiquidationProtocolFee,
	FieldDebtCeiling,
}

// DebtCeilingDecimals is the precision of debt ceilings and isolation-mode
// debt counters (2 decimals).
const DebtCeilingDecimals = 2

func fieldMask(f Field) *uint256.Int {
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), f.Width)
	mask.SubUint64(mask, 1)
	return mask.Lsh(mask, f.Offset)
}

func readField(word *uint256.Int, f Field) uint64 {
	v := new(uint256.Int).Rsh(word, f.Offset)
	return v.Uint64() & f.Max()
}

func writeField(word *uint256.Int, f Field, value uint64) error {
	if value > f.Max() {
		return &InvalidValueError{Field: f.Name, Value: value, Max: f.Max()}
	}
	cleared := new(uint256.Int).Not(fieldMask(f))
	word.And(word, cleared)
	shifted := new(uint256.Int).Lsh(uint256.NewInt(value), f.Offset)
	word.Or(word, shifted)
	return nil
}

func boolValue(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
