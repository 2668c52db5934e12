package configuration

import "github.com/holiman/uint256"

// ReserveMap is the packed configuration word of a reserve.
type ReserveMap struct {
	data uint256.Int
}

// ReserveMapFromWord wraps a raw configuration word.
func ReserveMapFromWord(word *uint256.Int) ReserveMap {
	var m ReserveMap
	if word != nil {
		m.data.Set(word)
	}
	return m
}

// Word returns a copy of the raw configuration word.
func (m ReserveMap) Word() *uint256.Int {
	return new(uint256.Int).Set(&m.data)
}

// Get reads an arbitrary layout field.
func (m ReserveMap) Get(f Field) uint64 { return readField(&m.data, f) }

// Set writes an arbitrary layout field.
func (m *ReserveMap) Set(f Field, value uint64) error { return writeField(&m.data, f, value) }

func (m *ReserveMap) setBool(f Field, value bool) {
	// width-1 fields never fail validation
	_ = writeField(&m.data, f, boolValue(value))
}

func (m ReserveMap) LTV() uint64                  { return m.Get(FieldLTV) }
func (m ReserveMap) LiquidationThreshold() uint64 { return m.Get(FieldLiquidationThreshold) }
func (m ReserveMap) LiquidationBonus() uint64     { return m.Get(FieldLiquidationBonus) }
func (m ReserveMap) Decimals() uint64             { return m.Get(FieldDecimals) }
func (m ReserveMap) Active() bool                 { return m.Get(FieldActive) == 1 }
func (m ReserveMap) Frozen() bool                 { return m.Get(FieldFrozen) == 1 }
func (m ReserveMap) BorrowingEnabled() bool       { return m.Get(FieldBorrowingEnabled) == 1 }
func (m ReserveMap) Paused() bool                 { return m.Get(FieldPaused) == 1 }
func (m ReserveMap) BorrowableInIsolation() bool  { return m.Get(FieldBorrowableInIsolation) == 1 }
func (m ReserveMap) SiloedBorrowing() bool        { return m.Get(FieldSiloedBorrowing) == 1 }
func (m ReserveMap) FlashLoanEnabled() bool       { return m.Get(FieldFlashLoanEnabled) == 1 }
func (m ReserveMap) ReserveFactor() uint64        { return m.Get(FieldReserveFactor) }
func (m ReserveMap) BorrowCap() uint64            { return m.Get(FieldBorrowCap) }
func (m ReserveMap) SupplyCap() uint64            { return m.Get(FieldSupplyCap) }
func (m ReserveMap) LiquidationProtocolFee() uint64 {
	return m.Get(FieldLiquidationProtocolFee)
}
func (m ReserveMap) DebtCeiling() uint64 { return m.Get(FieldDebtCeiling) }

func (m *ReserveMap) SetLTV(v uint64) error { return m.Set(FieldLTV, v) }
func (m *ReserveMap) SetLiquidationThreshold(v uint64) error {
	return m.Set(FieldLiquidationThreshold, v)
}
func (m *ReserveMap) SetLiquidationBonus(v uint64) error { return m.Set(FieldLiquidationBonus, v) }
func (m *ReserveMap) SetDecimals(v uint64) error         { return m.Set(FieldDecimals, v) }
func (m *ReserveMap) SetReserveFactor(v uint64) error    { return m.Set(FieldReserveFactor, v) }
func (m *ReserveMap) SetBorrowCap(v uint64) error        { return m.Set(FieldBorrowCap, v) }
func (m *ReserveMap) SetSupplyCap(v uint64) error        { return m.Set(FieldSupplyCap, v) }
func (m *ReserveMap) SetLiquidationProtocolFee(v uint64) error {
	return m.Set(FieldLiquidationProtocolFee, v)
}
func (m *ReserveMap) SetDebtCeiling(v uint64) error { return m.Set(FieldDebtCeiling, v) }

func (m *ReserveMap) SetActive(v bool)                { m.setBool(FieldActive, v) }
func (m *ReserveMap) SetFrozen(v bool)                { m.setBool(FieldFrozen, v) }
func (m *ReserveMap) SetBorrowingEnabled(v bool)      { m.setBool(FieldBorrowingEnabled, v) }
func (m *ReserveMap) SetPaused(v bool)                { m.setBool(FieldPaused, v) }
func (m *ReserveMap) SetBorrowableInIsolation(v bool) { m.setBool(FieldBorrowableInIsolation, v) }
func (m *ReserveMap) SetSiloedBorrowing(v bool)       { m.setBool(FieldSiloedBorrowing, v) }
func (m *ReserveMap) SetFlashLoanEnabled(v bool)      { m.setBool(FieldFlashLoanEnabled, v) }

// Flags is the state-flag tuple read in a single pass.
type Flags struct {
	Active           bool
	Frozen           bool
	BorrowingEnabled bool
	Paused           bool
}

// Flags returns the active, frozen, borrowing and paused flags.
func (m ReserveMap) Flags() Flags {
	bits := new(uint256.Int).Rsh(&m.data, FieldActive.Offset).Uint64()
	return Flags{
		Active:           bits&1 != 0,
		Frozen:           bits&(1<<(FieldFrozen.Offset-FieldActive.Offset)) != 0,
		BorrowingEnabled: bits&(1<<(FieldBorrowingEnabled.Offset-FieldActive.Offset)) != 0,
		Paused:           bits&(1<<(FieldPaused.Offset-FieldActive.Offset)) != 0,
	}
}

// Params groups the risk parameters most call sites need together.
type Params struct {
	LTV                  uint64
	LiquidationThreshold uint64
	LiquidationBonus     uint64
	Decimals             uint64
	ReserveFactor        uint64
}

// Params returns ltv, liquidation threshold, bonus, decimals and reserve factor.
func (m ReserveMap) Params() Params {
	return Params{
		LTV:                  m.LTV(),
		LiquidationThreshold: m.LiquidationThreshold(),
		LiquidationBonus:     m.LiquidationBonus(),
		Decimals:             m.Decimals(),
		ReserveFactor:        m.ReserveFactor(),
	}
}

// Caps returns the borrow and supply caps in whole tokens (0 = no cap).
func (m ReserveMap) Caps() (borrowCap, supplyCap uint64) {
	return m.BorrowCap(), m.SupplyCap()
}
