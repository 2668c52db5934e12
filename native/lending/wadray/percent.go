package wadray

import "github.com/holiman/uint256"

const (
	// PercentageFactor represents 100.00%.
	PercentageFactor uint64 = 10_000
	halfPercentage   uint64 = 5_000
)

var (
	percentageFactor = uint256.NewInt(PercentageFactor)
	halfPercentageU  = uint256.NewInt(halfPercentage)
)

// PercentMul returns value*percentage/100.00% rounding half up.
func PercentMul(value *uint256.Int, percentage uint64) (*uint256.Int, error) {
	return mulHalfUp(value, uint256.NewInt(percentage), halfPercentageU, percentageFactor)
}

// PercentMulFloor returns value*percentage/100.00% rounding down.
func PercentMulFloor(value *uint256.Int, percentage uint64) (*uint256.Int, error) {
	product, err := checkedProduct(value, uint256.NewInt(percentage))
	if err != nil {
		return nil, err
	}
	return product.Div(product, percentageFactor), nil
}

// PercentMulCeil returns value*percentage/100.00% rounding up.
func PercentMulCeil(value *uint256.Int, percentage uint64) (*uint256.Int, error) {
	product, err := checkedProduct(value, uint256.NewInt(percentage))
	if err != nil {
		return nil, err
	}
	return ceilDiv(product, percentageFactor), nil
}

// PercentDiv returns value*100.00%/percentage rounding half up.
func PercentDiv(value *uint256.Int, percentage uint64) (*uint256.Int, error) {
	return divHalfUp(value, uint256.NewInt(percentage), percentageFactor)
}

// PercentDivFloor returns value*100.00%/percentage rounding down.
func PercentDivFloor(value *uint256.Int, percentage uint64) (*uint256.Int, error) {
	if percentage == 0 {
		return nil, ErrDivisionByZero
	}
	scaled, err := checkedProduct(value, percentageFactor)
	if err != nil {
		return nil, err
	}
	return scaled.Div(scaled, uint256.NewInt(percentage)), nil
}

// PercentDivCeil returns value*100.00%/percentage rounding up.
func PercentDivCeil(value *uint256.Int, percentage uint64) (*uint256.Int, error) {
	if percentage == 0 {
		return nil, ErrDivisionByZero
	}
	scaled, err := checkedProduct(value, percentageFactor)
	if err != nil {
		return nil, err
	}
	return ceilDiv(scaled, uint256.NewInt(percentage)), nil
}
