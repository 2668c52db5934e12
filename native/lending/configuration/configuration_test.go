package configuration

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReserveMapFieldsAreIndependent(t *testing.T) {
	var m ReserveMap
	require.NoError(t, m.SetLTV(7500))
	require.NoError(t, m.SetLiquidationThreshold(8000))
	require.NoError(t, m.SetLiquidationBonus(10500))
	require.NoError(t, m.SetDecimals(18))
	require.NoError(t, m.SetReserveFactor(1000))
	require.NoError(t, m.SetBorrowCap(FieldBorrowCap.Max()))
	require.NoError(t, m.SetSupplyCap(2_000_000))
	require.NoError(t, m.SetLiquidationProtocolFee(1000))
	require.NoError(t, m.SetDebtCeiling(FieldDebtCeiling.Max()))
	m.SetActive(true)
	m.SetBorrowingEnabled(true)
	m.SetFlashLoanEnabled(true)

	params := m.Params()
	require.Equal(t, Params{LTV: 7500, LiquidationThreshold: 8000, LiquidationBonus: 10500, Decimals: 18, ReserveFactor: 1000}, params)
	borrowCap, supplyCap := m.Caps()
	require.Equal(t, FieldBorrowCap.Max(), borrowCap)
	require.Equal(t, uint64(2_000_000), supplyCap)
	require.Equal(t, uint64(1000), m.LiquidationProtocolFee())
	require.Equal(t, FieldDebtCeiling.Max(), m.DebtCeiling())
	require.Equal(t, Flags{Active: true, BorrowingEnabled: true}, m.Flags())
	require.True(t, m.FlashLoanEnabled())
	require.False(t, m.SiloedBorrowing())

	m.SetPaused(true)
	m.SetFrozen(true)
	m.SetActive(false)
	require.Equal(t, Flags{Frozen: true, BorrowingEnabled: true, Paused: true}, m.Flags())
	require.Equal(t, uint64(7500), m.LTV())

	require.NoError(t, m.SetLTV(0))
	require.Equal(t, uint64(0), m.LTV())
	require.Equal(t, uint64(8000), m.LiquidationThreshold())
}

func TestReserveMapRejectsOversizedValues(t *testing.T) {
	var m ReserveMap
	cases := []struct {
		field Field
		set   func(uint64) error
	}{
		{FieldLTV, m.SetLTV},
		{FieldDecimals, m.SetDecimals},
		{FieldBorrowCap, m.SetBorrowCap},
		{FieldSupplyCap, m.SetSupplyCap},
		{FieldDebtCeiling, m.SetDebtCeiling},
	}
	for _, tc := range cases {
		err := tc.set(tc.field.Max() + 1)
		require.Error(t, err, tc.field.Name)
		require.True(t, errors.Is(err, ErrInvalidConfigurationValue))
		var invalid *InvalidValueError
		require.True(t, errors.As(err, &invalid))
		require.Equal(t, tc.field.Name, invalid.Field)
	}
	require.True(t, m.Word().IsZero())
}

func TestLayoutFieldsDoNotOverlap(t *testing.T) {
	var used [256]string
	for _, f := range Layout {
		for bit := f.Offset; bit < f.Offset+f.Width; bit++ {
			require.Empty(t, used[bit], "bit %d used by %s and %s", bit, used[bit], f.Name)
			used[bit] = f.Name
		}
	}
	require.Empty(t, used[59])
}

func TestUserMapFlags(t *testing.T) {
	var m UserMap
	require.True(t, m.IsEmpty())
	require.NoError(t, m.SetUsingAsCollateral(3, true))
	require.NoError(t, m.SetBorrowing(5, true))

	require.True(t, m.IsUsingAsCollateral(3))
	require.False(t, m.IsBorrowing(3))
	require.True(t, m.IsBorrowing(5))
	require.True(t, m.IsUsingAsCollateralOne())
	require.True(t, m.IsBorrowingOne())

	id, ok := m.FirstCollateralID()
	require.True(t, ok)
	require.Equal(t, uint16(3), id)
	id, ok = m.FirstBorrowingID()
	require.True(t, ok)
	require.Equal(t, uint16(5), id)

	require.NoError(t, m.SetUsingAsCollateral(0, true))
	require.False(t, m.IsUsingAsCollateralOne())
	require.True(t, m.IsUsingAsCollateralAny())

	require.NoError(t, m.SetBorrowing(5, false))
	require.False(t, m.IsBorrowingAny())
	require.ErrorIs(t, m.SetBorrowing(MaxReserves, true), ErrInvalidReserveIndex)
}

func TestUserMapPositionsStopEarly(t *testing.T) {
	var m UserMap
	require.NoError(t, m.SetUsingAsCollateral(1, true))
	require.NoError(t, m.SetBorrowing(1, true))
	require.NoError(t, m.SetBorrowing(127, true))

	var ids []uint16
	var positions []Position
	for id, pos := range m.Positions() {
		ids = append(ids, id)
		positions = append(positions, pos)
	}
	require.Equal(t, []uint16{1, 127}, ids)
	require.Equal(t, Position{Collateral: true, Borrowing: true}, positions[0])
	require.Equal(t, Position{Borrowing: true}, positions[1])

	var low UserMap
	require.NoError(t, low.SetUsingAsCollateral(2, true))
	visited := 0
	for range low.Positions() {
		visited++
	}
	require.Equal(t, 1, visited)

	count := 0
	for range m.Positions() {
		count++
		break
	}
	require.Equal(t, 1, count)
}

func TestReserveSet(t *testing.T) {
	var s ReserveSet
	require.True(t, s.IsEmpty())
	require.NoError(t, s.Set(0, true))
	require.NoError(t, s.Set(127, true))
	require.True(t, s.Contains(0))
	require.True(t, s.Contains(127))
	require.False(t, s.Contains(64))
	require.NoError(t, s.Set(0, false))
	require.False(t, s.Contains(0))
	require.ErrorIs(t, s.Set(200, true), ErrInvalidReserveIndex)

	restored := ReserveSetFromWord(s.Word())
	require.True(t, restored.Contains(127))
}
