// Package ratestrategy implements the kinked variable-rate curve used to
// price borrowing in each reserve.
package ratestrategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending"
	"lendcore/native/lending/wadray"
)

const (
	// MinOptimalUsageRatio and MaxOptimalUsageRatio bound the kink, in
	// percentage units.
	MinOptimalUsageRatio uint64 = 100
	MaxOptimalUsageRatio uint64 = 9_900
	// MaxBorrowRate caps base plus both slopes at 1000%.
	MaxBorrowRate uint64 = 100_000
)

var (
	ErrInvalidOptimalUsageRatio = errors.New("ratestrategy: optimal usage ratio out of range")
	ErrInvalidMaxRate           = errors.New("ratestrategy: borrow rate exceeds maximum")
	ErrUnknownReserve           = errors.New("ratestrategy: no parameters for reserve")
)

// bpsToRay converts percentage units to a ray.
var bpsToRay = uint256.MustFromDecimal("100000000000000000000000")

// Params shapes the borrow curve of one reserve. All values are in
// percentage units, so 8000 is 80%.
type Params struct {
	// OptimalUsageRatio is the utilisation where the curve kinks.
	OptimalUsageRatio uint64 `yaml:"optimal_usage_ratio" toml:"optimal_usage_ratio"`
	// BaseVariableBorrowRate applies at zero utilisation.
	BaseVariableBorrowRate uint64 `yaml:"base_variable_borrow_rate" toml:"base_variable_borrow_rate"`
	// VariableRateSlope1 is added linearly up to the kink.
	VariableRateSlope1 uint64 `yaml:"variable_rate_slope1" toml:"variable_rate_slope1"`
	// VariableRateSlope2 is added linearly from the kink to full utilisation.
	VariableRateSlope2 uint64 `yaml:"variable_rate_slope2" toml:"variable_rate_slope2"`
}

// NewParams builds Params from decimals, e.g. a 2% base rate is 0.02 and an
// 80% kink is 0.8.
func NewParams(baseRate, slope1, slope2, kink float64) Params {
	toBps := func(v float64) uint64 {
		if v <= 0 {
			return 0
		}
		return uint64(math.Round(v * float64(wadray.PercentageFactor)))
	}
	return Params{
		OptimalUsageRatio:      toBps(kink),
		BaseVariableBorrowRate: toBps(baseRate),
		VariableRateSlope1:     toBps(slope1),
		VariableRateSlope2:     toBps(slope2),
	}
}

// Default is a kinked curve with a modest base rate.
var Default = NewParams(0.02, 0.15, 0.6, 0.8)

// Validate checks the kink position and the maximum reachable rate.
func (p Params) Validate() error {
	if p.OptimalUsageRatio < MinOptimalUsageRatio || p.OptimalUsageRatio > MaxOptimalUsageRatio {
		return ErrInvalidOptimalUsageRatio
	}
	if p.BaseVariableBorrowRate+p.VariableRateSlope1+p.VariableRateSlope2 > MaxBorrowRate {
		return ErrInvalidMaxRate
	}
	return nil
}

// MaxVariableBorrowRate is the rate at full utilisation.
func (p Params) MaxVariableBorrowRate() uint64 {
	return p.BaseVariableBorrowRate + p.VariableRateSlope1 + p.VariableRateSlope2
}

func ray(bps uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(bps), bpsToRay)
}

// Strategy holds curve parameters per reserve and implements
// lending.InterestRateStrategy.
type Strategy struct {
	mu       sync.RWMutex
	params   map[common.Address]Params
	fallback *Params
}

// New returns a strategy. When fallback is non-nil it prices reserves
// without explicit parameters.
func New(fallback *Params) (*Strategy, error) {
	s := &Strategy{params: make(map[common.Address]Params)}
	if fallback != nil {
		if err := fallback.Validate(); err != nil {
			return nil, err
		}
		p := *fallback
		s.fallback = &p
	}
	return s, nil
}

// SetReserveParams installs the curve of asset.
func (s *Strategy) SetReserveParams(asset common.Address, p Params) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%s: %w", asset.Hex(), err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[asset] = p
	return nil
}

// ReserveParams returns the curve applied to asset.
func (s *Strategy) ReserveParams(asset common.Address) (Params, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.params[asset]; ok {
		return p, true
	}
	if s.fallback != nil {
		return *s.fallback, true
	}
	return Params{}, false
}

// CalculateInterestRates prices the reserve after the liquidity change in
// params. The borrow rate follows the curve at the resulting utilisation and
// the liquidity rate pays suppliers that rate on the borrowed share, net of
// the reserve factor.
func (s *Strategy) CalculateInterestRates(_ context.Context, params lending.RateParams) (*uint256.Int, *uint256.Int, error) {
	p, ok := s.ReserveParams(params.Asset)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownReserve, params.Asset.Hex())
	}
	return p.Rates(params.TotalDebt, params.VirtualUnderlyingBalance, params.LiquidityAdded, params.LiquidityTaken, params.ReserveFactor)
}

// Rates evaluates the curve. Nil amounts are treated as zero.
func (p Params) Rates(totalDebt, virtualBalance, added, taken *uint256.Int, reserveFactor uint64) (liquidityRate, borrowRate *uint256.Int, err error) {
	borrowRate = ray(p.BaseVariableBorrowRate)
	if totalDebt == nil || totalDebt.IsZero() {
		return new(uint256.Int), borrowRate, nil
	}
	available, err := wadray.Add(orZero(virtualBalance), orZero(added))
	if err != nil {
		return nil, nil, err
	}
	if available, err = wadray.Sub(available, orZero(taken)); err != nil {
		return nil, nil, err
	}
	liquidity, err := wadray.Add(available, totalDebt)
	if err != nil {
		return nil, nil, err
	}
	usage, err := wadray.RayDiv(totalDebt, liquidity)
	if err != nil {
		return nil, nil, err
	}

	optimal := ray(p.OptimalUsageRatio)
	slope1 := ray(p.VariableRateSlope1)
	if usage.Gt(optimal) {
		excess, err := wadray.RayDiv(new(uint256.Int).Sub(usage, optimal), new(uint256.Int).Sub(&wadray.Ray, optimal))
		if err != nil {
			return nil, nil, err
		}
		steep, err := wadray.RayMul(ray(p.VariableRateSlope2), excess)
		if err != nil {
			return nil, nil, err
		}
		borrowRate.Add(borrowRate, slope1)
		borrowRate.Add(borrowRate, steep)
	} else {
		scaled, err := wadray.RayMul(slope1, usage)
		if err != nil {
			return nil, nil, err
		}
		if scaled, err = wadray.RayDiv(scaled, optimal); err != nil {
			return nil, nil, err
		}
		borrowRate.Add(borrowRate, scaled)
	}

	earned, err := wadray.RayMul(borrowRate, usage)
	if err != nil {
		return nil, nil, err
	}
	if reserveFactor > wadray.PercentageFactor {
		reserveFactor = wadray.PercentageFactor
	}
	if liquidityRate, err = wadray.PercentMul(earned, wadray.PercentageFactor-reserveFactor); err != nil {
		return nil, nil, err
	}
	return liquidityRate, borrowRate, nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
