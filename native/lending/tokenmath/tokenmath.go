// Package tokenmath converts between visible token amounts and the scaled
// balances stored for deposit shares and variable debt. Rounding always
// favours the pool: deposit shares are minted down and burned up, debt is
// minted up and burned down.
package tokenmath

import (
	"github.com/holiman/uint256"

	"lendcore/native/lending/wadray"
)

// CollateralMintScaled returns the deposit shares minted for amount.
func CollateralMintScaled(amount, liquidityIndex *uint256.Int) (*uint256.Int, error) {
	return wadray.RayDivFloor(amount, liquidityIndex)
}

// CollateralBurnScaled returns the deposit shares burned to release amount.
func CollateralBurnScaled(amount, liquidityIndex *uint256.Int) (*uint256.Int, error) {
	return wadray.RayDivCeil(amount, liquidityIndex)
}

// CollateralTransferScaled returns the deposit shares moved to deliver amount.
func CollateralTransferScaled(amount, liquidityIndex *uint256.Int) (*uint256.Int, error) {
	return wadray.RayDivCeil(amount, liquidityIndex)
}

// CollateralBalance returns the visible balance behind scaled deposit shares.
func CollateralBalance(scaled, liquidityIndex *uint256.Int) (*uint256.Int, error) {
	return wadray.RayMulFloor(scaled, liquidityIndex)
}

// DebtMintScaled returns the scaled debt recorded for borrowing amount.
func DebtMintScaled(amount, borrowIndex *uint256.Int) (*uint256.Int, error) {
	return wadray.RayDivCeil(amount, borrowIndex)
}

// DebtBurnScaled returns the scaled debt cleared by repaying amount.
func DebtBurnScaled(amount, borrowIndex *uint256.Int) (*uint256.Int, error) {
	return wadray.RayDivFloor(amount, borrowIndex)
}

// DebtBalance returns the visible debt behind a scaled debt balance.
func DebtBalance(scaled, borrowIndex *uint256.Int) (*uint256.Int, error) {
	return wadray.RayMulCeil(scaled, borrowIndex)
}

// BurnAmount returns the scaled amount to remove from a balance of
// scaledBalance when burning amount, capping at the full balance. Burning the
// whole visible balance always clears the scaled balance so no share dust is
// left behind.
func BurnAmount(amount, visible, scaledBalance *uint256.Int, scale func(a, idx *uint256.Int) (*uint256.Int, error), index *uint256.Int) (*uint256.Int, error) {
	if amount.Cmp(visible) >= 0 {
		return new(uint256.Int).Set(scaledBalance), nil
	}
	scaled, err := scale(amount, index)
	if err != nil {
		return nil, err
	}
	if scaled.Gt(scaledBalance) {
		return new(uint256.Int).Set(scaledBalance), nil
	}
	return scaled, nil
}
