package ratestrategy

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending"
)

var asset = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func mustStrategy(t *testing.T, p Params) *Strategy {
	t.Helper()
	s, err := New(nil)
	if err != nil {
		t.Fatalf("new strategy: %v", err)
	}
	if err := s.SetReserveParams(asset, p); err != nil {
		t.Fatalf("set params: %v", err)
	}
	return s
}

func TestRatesWithoutDebtReturnBaseRate(t *testing.T) {
	s := mustStrategy(t, Params{OptimalUsageRatio: 8_000, BaseVariableBorrowRate: 100, VariableRateSlope1: 400, VariableRateSlope2: 6_000})
	liquidity, borrow, err := s.CalculateInterestRates(context.Background(), lending.RateParams{
		Asset:                    asset,
		TotalDebt:                new(uint256.Int),
		VirtualUnderlyingBalance: uint256.NewInt(1_000),
	})
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if !liquidity.IsZero() {
		t.Fatalf("expected zero liquidity rate, got %s", liquidity.Dec())
	}
	if want := uint256.MustFromDecimal("10000000000000000000000000"); !borrow.Eq(want) {
		t.Fatalf("borrow rate mismatch: got %s want %s", borrow.Dec(), want.Dec())
	}
}

func TestRatesBelowKink(t *testing.T) {
	s := mustStrategy(t, Params{OptimalUsageRatio: 8_000, VariableRateSlope1: 400, VariableRateSlope2: 6_000})
	liquidity, borrow, err := s.CalculateInterestRates(context.Background(), lending.RateParams{
		Asset:                    asset,
		TotalDebt:                uint256.NewInt(50),
		VirtualUnderlyingBalance: uint256.NewInt(50),
		ReserveFactor:            1_000,
	})
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	// 50% usage of an 80% kink: 4% * 0.5 / 0.8 = 2.5%.
	if want := uint256.MustFromDecimal("25000000000000000000000000"); !borrow.Eq(want) {
		t.Fatalf("borrow rate mismatch: got %s want %s", borrow.Dec(), want.Dec())
	}
	// 2.5% * 50% usage * 90% after reserve factor.
	if want := uint256.MustFromDecimal("11250000000000000000000000"); !liquidity.Eq(want) {
		t.Fatalf("liquidity rate mismatch: got %s want %s", liquidity.Dec(), want.Dec())
	}
}

func TestRatesAboveKink(t *testing.T) {
	s := mustStrategy(t, Params{OptimalUsageRatio: 8_000, VariableRateSlope1: 400, VariableRateSlope2: 6_000})
	_, borrow, err := s.CalculateInterestRates(context.Background(), lending.RateParams{
		Asset:                    asset,
		TotalDebt:                uint256.NewInt(90),
		VirtualUnderlyingBalance: uint256.NewInt(10),
	})
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	// 4% + 60% * (0.9-0.8)/(1-0.8) = 34%.
	if want := uint256.MustFromDecimal("340000000000000000000000000"); !borrow.Eq(want) {
		t.Fatalf("borrow rate mismatch: got %s want %s", borrow.Dec(), want.Dec())
	}
}

func TestDefaultCurveAtKink(t *testing.T) {
	s, err := New(&Default)
	if err != nil {
		t.Fatalf("new strategy: %v", err)
	}
	_, borrow, err := s.CalculateInterestRates(context.Background(), lending.RateParams{
		Asset:                    asset,
		TotalDebt:                uint256.NewInt(80),
		VirtualUnderlyingBalance: uint256.NewInt(20),
	})
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	// 2% base plus the full 15% first slope.
	if want := uint256.MustFromDecimal("170000000000000000000000000"); !borrow.Eq(want) {
		t.Fatalf("borrow rate mismatch: got %s want %s", borrow.Dec(), want.Dec())
	}
}

func TestRatesAccountForLiquidityChange(t *testing.T) {
	s := mustStrategy(t, Params{OptimalUsageRatio: 8_000, VariableRateSlope1: 400, VariableRateSlope2: 6_000})
	// 60 virtual minus 10 taken leaves the same 50/50 split as above.
	_, borrow, err := s.CalculateInterestRates(context.Background(), lending.RateParams{
		Asset:                    asset,
		TotalDebt:                uint256.NewInt(50),
		VirtualUnderlyingBalance: uint256.NewInt(60),
		LiquidityTaken:           uint256.NewInt(10),
	})
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if want := uint256.MustFromDecimal("25000000000000000000000000"); !borrow.Eq(want) {
		t.Fatalf("borrow rate mismatch: got %s want %s", borrow.Dec(), want.Dec())
	}
}

func TestBorrowRateMonotonicInUsage(t *testing.T) {
	p := Default
	prev := new(uint256.Int)
	for debt := uint64(0); debt <= 100; debt += 5 {
		_, borrow, err := p.Rates(uint256.NewInt(debt), uint256.NewInt(100-debt), nil, nil, 0)
		if err != nil {
			t.Fatalf("rates at %d: %v", debt, err)
		}
		if borrow.Lt(prev) {
			t.Fatalf("borrow rate decreased at debt %d", debt)
		}
		prev = borrow
	}
}

func TestUnknownReserveWithoutFallback(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatalf("new strategy: %v", err)
	}
	_, _, err = s.CalculateInterestRates(context.Background(), lending.RateParams{Asset: asset})
	if !errors.Is(err, ErrUnknownReserve) {
		t.Fatalf("expected ErrUnknownReserve, got %v", err)
	}
}

func TestFallbackApplies(t *testing.T) {
	s, err := New(&Default)
	if err != nil {
		t.Fatalf("new strategy: %v", err)
	}
	p, ok := s.ReserveParams(asset)
	if !ok || p != Default {
		t.Fatalf("expected default params, got %+v", p)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		params Params
		err    error
	}{
		{"default", Default, nil},
		{"kink too low", Params{OptimalUsageRatio: 50}, ErrInvalidOptimalUsageRatio},
		{"kink too high", Params{OptimalUsageRatio: 9_950}, ErrInvalidOptimalUsageRatio},
		{"rate too high", Params{OptimalUsageRatio: 8_000, VariableRateSlope2: MaxBorrowRate + 1}, ErrInvalidMaxRate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.params.Validate(); !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestNewParamsFromDecimals(t *testing.T) {
	want := Params{OptimalUsageRatio: 8_000, BaseVariableBorrowRate: 200, VariableRateSlope1: 1_500, VariableRateSlope2: 6_000}
	if Default != want {
		t.Fatalf("default mismatch: got %+v want %+v", Default, want)
	}
}
