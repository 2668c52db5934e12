package configuration

import (
	"iter"

	"github.com/holiman/uint256"
)

// MaxReserves is the number of reserve ids a user word can address.
const MaxReserves = 128

var (
	collateralMask = uint256.MustFromHex("0x5555555555555555555555555555555555555555555555555555555555555555")
	borrowingMask  = uint256.MustFromHex("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
)

// UserMap holds two bits per reserve: bit 2*id marks collateral use and bit
// 2*id+1 marks an open borrow.
type UserMap struct {
	data uint256.Int
}

// Position is the pair of flags stored for one reserve.
type Position struct {
	Collateral bool
	Borrowing  bool
}

// UserMapFromWord wraps a raw user word.
func UserMapFromWord(word *uint256.Int) UserMap {
	var m UserMap
	if word != nil {
		m.data.Set(word)
	}
	return m
}

// Word returns a copy of the raw word.
func (m UserMap) Word() *uint256.Int { return new(uint256.Int).Set(&m.data) }

func (m *UserMap) setBit(bit uint, value bool) {
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), bit)
	if value {
		m.data.Or(&m.data, mask)
		return
	}
	m.data.And(&m.data, mask.Not(mask))
}

func (m UserMap) bit(bit uint) bool {
	return new(uint256.Int).Rsh(&m.data, bit).Uint64()&1 == 1
}

// SetBorrowing flips the borrowing flag of reserve id.
func (m *UserMap) SetBorrowing(id uint16, borrowing bool) error {
	if id >= MaxReserves {
		return ErrInvalidReserveIndex
	}
	m.setBit(uint(id)*2+1, borrowing)
	return nil
}

// SetUsingAsCollateral flips the collateral flag of reserve id.
func (m *UserMap) SetUsingAsCollateral(id uint16, using bool) error {
	if id >= MaxReserves {
		return ErrInvalidReserveIndex
	}
	m.setBit(uint(id)*2, using)
	return nil
}

func (m UserMap) IsUsingAsCollateralOrBorrowing(id uint16) bool {
	if id >= MaxReserves {
		return false
	}
	return new(uint256.Int).Rsh(&m.data, uint(id)*2).Uint64()&3 != 0
}

func (m UserMap) IsBorrowing(id uint16) bool {
	return id < MaxReserves && m.bit(uint(id)*2+1)
}

func (m UserMap) IsUsingAsCollateral(id uint16) bool {
	return id < MaxReserves && m.bit(uint(id)*2)
}

func exactlyOne(word *uint256.Int) bool {
	if word.IsZero() {
		return false
	}
	minusOne := new(uint256.Int).SubUint64(word, 1)
	return minusOne.And(minusOne, word).IsZero()
}

// IsUsingAsCollateralOne reports whether exactly one reserve is collateral.
func (m UserMap) IsUsingAsCollateralOne() bool {
	return exactlyOne(new(uint256.Int).And(&m.data, collateralMask))
}

// IsUsingAsCollateralAny reports whether any reserve is collateral.
func (m UserMap) IsUsingAsCollateralAny() bool {
	return !new(uint256.Int).And(&m.data, collateralMask).IsZero()
}

// IsBorrowingOne reports whether exactly one reserve is borrowed.
func (m UserMap) IsBorrowingOne() bool {
	return exactlyOne(new(uint256.Int).And(&m.data, borrowingMask))
}

// IsBorrowingAny reports whether any reserve is borrowed.
func (m UserMap) IsBorrowingAny() bool {
	return !new(uint256.Int).And(&m.data, borrowingMask).IsZero()
}

// IsEmpty reports whether the user has no positions at all.
func (m UserMap) IsEmpty() bool { return m.data.IsZero() }

func lowestID(masked *uint256.Int) (uint16, bool) {
	if masked.IsZero() {
		return 0, false
	}
	neg := new(uint256.Int).Neg(masked)
	lowest := neg.And(neg, masked)
	return uint16((lowest.BitLen() - 1) / 2), true
}

// FirstCollateralID returns the lowest reserve id used as collateral.
func (m UserMap) FirstCollateralID() (uint16, bool) {
	return lowestID(new(uint256.Int).And(&m.data, collateralMask))
}

// FirstBorrowingID returns the lowest reserve id being borrowed.
func (m UserMap) FirstBorrowingID() (uint16, bool) {
	return lowestID(new(uint256.Int).And(&m.data, borrowingMask))
}

// Positions yields every reserve id with at least one flag set, in id order.
// Iteration ends as soon as the remaining high bits are all zero.
func (m UserMap) Positions() iter.Seq2[uint16, Position] {
	return func(yield func(uint16, Position) bool) {
		rest := m.data
		for id := uint16(0); id < MaxReserves && !rest.IsZero(); id++ {
			pair := rest.Uint64() & 3
			if pair != 0 {
				if !yield(id, Position{Collateral: pair&1 != 0, Borrowing: pair&2 != 0}) {
					return
				}
			}
			rest.Rsh(&rest, 2)
		}
	}
}
