package configuration

import "github.com/holiman/uint256"

// ReserveSet is a bitmap over reserve ids, used by e-mode categories to list
// the reserves that count as category collateral or may be borrowed.
type ReserveSet struct {
	data uint256.Int
}

// ReserveSetFromWord wraps a raw bitmap.
func ReserveSetFromWord(word *uint256.Int) ReserveSet {
	var s ReserveSet
	if word != nil {
		s.data.Set(word)
	}
	return s
}

// Word returns a copy of the raw bitmap.
func (s ReserveSet) Word() *uint256.Int { return new(uint256.Int).Set(&s.data) }

// Contains reports whether reserve id is in the set.
func (s ReserveSet) Contains(id uint16) bool {
	if id >= MaxReserves {
		return false
	}
	return new(uint256.Int).Rsh(&s.data, uint(id)).Uint64()&1 == 1
}

// Set adds or removes reserve id.
func (s *ReserveSet) Set(id uint16, enabled bool) error {
	if id >= MaxReserves {
		return ErrInvalidReserveIndex
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(id))
	if enabled {
		s.data.Or(&s.data, mask)
		return nil
	}
	s.data.And(&s.data, mask.Not(mask))
	return nil
}

// IsEmpty reports whether no reserve is in the set.
func (s ReserveSet) IsEmpty() bool { return s.data.IsZero() }
