package observability

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLendingMetricsObserve(t *testing.T) {
	m := Lending()
	require.Same(t, m, Lending())

	before := testutil.ToFloat64(m.actions.WithLabelValues("supply", "ok"))
	m.Observe("supply", "ok", 5*time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.actions.WithLabelValues("supply", "ok")))

	m.Observe("", "", time.Millisecond)
	require.GreaterOrEqual(t, testutil.ToFloat64(m.actions.WithLabelValues("unknown", "unknown")), 1.0)
}

func TestRecordReserveConvertsRays(t *testing.T) {
	m := Lending()
	oneRay := uint256.MustFromDecimal("1000000000000000000000000000")
	halfRay := uint256.MustFromDecimal("500000000000000000000000000")
	quarterRay := uint256.MustFromDecimal("250000000000000000000000000")
	m.RecordReserve("0xABC", oneRay, oneRay, halfRay, halfRay, quarterRay)

	require.InDelta(t, 1.0, testutil.ToFloat64(m.indices.WithLabelValues("0xabc", "liquidity")), 1e-12)
	require.InDelta(t, 0.5, testutil.ToFloat64(m.rates.WithLabelValues("0xabc", "variable_borrow")), 1e-12)
	require.InDelta(t, 0.25, testutil.ToFloat64(m.utilisation.WithLabelValues("0xabc")), 1e-12)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *LendingMetrics
	m.Observe("supply", "ok", time.Second)
	m.RecordEvent("x")
	m.RecordDeficit("a", uint256.NewInt(1))
}
