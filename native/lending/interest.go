package lending

import (
	"github.com/holiman/uint256"

	"lendcore/native/lending/wadray"
)

var secondsPerYear = uint256.NewInt(SecondsPerYear)

// CalculateLinearInterest returns the ray growth factor of simple interest at
// rate (ray per year) between last and now.
func CalculateLinearInterest(rate *uint256.Int, last, now uint64) (*uint256.Int, error) {
	if now <= last || rate.IsZero() {
		return wadray.One(), nil
	}
	elapsed := uint256.NewInt(now - last)
	accrued, overflow := new(uint256.Int).MulOverflow(rate, elapsed)
	if overflow {
		return nil, wadray.ErrArithmeticOverflow
	}
	accrued.Div(accrued, secondsPerYear)
	return wadray.Add(accrued, &wadray.Ray)
}

// CalculateCompoundedInterest approximates (1 + rate/year)^elapsed with the
// first three terms of the binomial expansion. The result slightly
// underestimates true compounding.
func CalculateCompoundedInterest(rate *uint256.Int, last, now uint64) (*uint256.Int, error) {
	if now <= last || rate.IsZero() {
		return wadray.One(), nil
	}
	exp := now - last
	expMinusOne := exp - 1
	var expMinusTwo uint64
	if exp > 2 {
		expMinusTwo = exp - 2
	}

	yearSquared := new(uint256.Int).Mul(secondsPerYear, secondsPerYear)
	basePowerTwo, err := wadray.RayMul(rate, rate)
	if err != nil {
		return nil, err
	}
	basePowerTwo.Div(basePowerTwo, yearSquared)
	basePowerThree, err := wadray.RayMul(basePowerTwo, rate)
	if err != nil {
		return nil, err
	}
	basePowerThree.Div(basePowerThree, secondsPerYear)

	pairs, err := checkedMul(uint256.NewInt(exp), uint256.NewInt(expMinusOne))
	if err != nil {
		return nil, err
	}
	secondTerm, err := checkedMul(pairs, basePowerTwo)
	if err != nil {
		return nil, err
	}
	secondTerm.Div(secondTerm, uint256.NewInt(2))

	triples, err := checkedMul(pairs, uint256.NewInt(expMinusTwo))
	if err != nil {
		return nil, err
	}
	thirdTerm, err := checkedMul(triples, basePowerThree)
	if err != nil {
		return nil, err
	}
	thirdTerm.Div(thirdTerm, uint256.NewInt(6))

	firstTerm, err := checkedMul(rate, uint256.NewInt(exp))
	if err != nil {
		return nil, err
	}
	firstTerm.Div(firstTerm, secondsPerYear)

	result := wadray.One()
	for _, term := range []*uint256.Int{firstTerm, secondTerm, thirdTerm} {
		if result, err = wadray.Add(result, term); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func checkedMul(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, wadray.ErrArithmeticOverflow
	}
	return product, nil
}
