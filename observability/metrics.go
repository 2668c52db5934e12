package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics

	apiMetricsOnce sync.Once
	apiRegistry    *apiMetrics
)

// LendingMetrics records pool activity segmented by action and error class.
type LendingMetrics struct {
	actions      *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	events       *prometheus.CounterVec
	liquidations *prometheus.CounterVec
	deficit      *prometheus.CounterVec
	indices      *prometheus.GaugeVec
	rates        *prometheus.GaugeVec
	utilisation  *prometheus.GaugeVec
}

// Lending returns the lazily-initialised lending pool metrics registry.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			actions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "pool",
				Name:      "actions_total",
				Help:      "Pool actions segmented by action and outcome class.",
			}, []string{"action", "class"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendcore",
				Subsystem: "pool",
				Name:      "action_duration_seconds",
				Help:      "Latency distribution of pool actions including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"action"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "pool",
				Name:      "events_total",
				Help:      "Committed pool events segmented by type.",
			}, []string{"type"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "pool",
				Name:      "liquidations_total",
				Help:      "Liquidations segmented by collateral and debt asset.",
			}, []string{"collateral", "debt"}),
			deficit: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "reserve",
				Name:      "deficit_created_total",
				Help:      "Bad debt written off into reserve deficits, in asset units.",
			}, []string{"asset"}),
			indices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendcore",
				Subsystem: "reserve",
				Name:      "index",
				Help:      "Reserve liquidity and variable borrow indices as decimals.",
			}, []string{"asset", "index"}),
			rates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendcore",
				Subsystem: "reserve",
				Name:      "rate",
				Help:      "Reserve annual liquidity and variable borrow rates as decimals.",
			}, []string{"asset", "rate"}),
			utilisation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendcore",
				Subsystem: "reserve",
				Name:      "utilisation_ratio",
				Help:      "Share of reserve liquidity currently borrowed.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			lendingRegistry.actions,
			lendingRegistry.latency,
			lendingRegistry.events,
			lendingRegistry.liquidations,
			lendingRegistry.deficit,
			lendingRegistry.indices,
			lendingRegistry.rates,
			lendingRegistry.utilisation,
		)
	})
	return lendingRegistry
}

// Observe records one completed action. class is "ok" for successes.
func (m *LendingMetrics) Observe(action, class string, duration time.Duration) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	if class == "" {
		class = "unknown"
	}
	m.actions.WithLabelValues(action, class).Inc()
	m.latency.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordEvent counts a committed event.
func (m *LendingMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
}

func (m *LendingMetrics) RecordLiquidation(collateral, debt string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(labelAsset(collateral), labelAsset(debt)).Inc()
}

func (m *LendingMetrics) RecordDeficit(asset string, amount *uint256.Int) {
	if m == nil || amount == nil {
		return
	}
	m.deficit.WithLabelValues(labelAsset(asset)).Add(intToFloat(amount))
}

// RecordReserve publishes a reserve snapshot. Every value is a ray.
func (m *LendingMetrics) RecordReserve(asset string, liquidityIndex, borrowIndex, liquidityRate, borrowRate, utilisation *uint256.Int) {
	if m == nil {
		return
	}
	label := labelAsset(asset)
	m.indices.WithLabelValues(label, "liquidity").Set(rayToFloat(liquidityIndex))
	m.indices.WithLabelValues(label, "variable_borrow").Set(rayToFloat(borrowIndex))
	m.rates.WithLabelValues(label, "liquidity").Set(rayToFloat(liquidityRate))
	m.rates.WithLabelValues(label, "variable_borrow").Set(rayToFloat(borrowRate))
	m.utilisation.WithLabelValues(label).Set(rayToFloat(utilisation))
}

type apiMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// API returns the lazily-initialised registry for the lending HTTP API.
func API() *apiMetrics {
	apiMetricsOnce.Do(func() {
		apiRegistry = &apiMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route, method and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendcore",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			apiRegistry.requests,
			apiRegistry.errors,
			apiRegistry.latency,
			apiRegistry.throttles,
		)
	})
	return apiRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *apiMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards and alerts remain consistent.
func (m *apiMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

var rayUnit = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil))

func rayToFloat(value *uint256.Int) float64 {
	if value == nil {
		return 0
	}
	f := new(big.Float).SetInt(value.ToBig())
	out, _ := f.Quo(f, rayUnit).Float64()
	return out
}

func intToFloat(value *uint256.Int) float64 {
	if value == nil {
		return 0
	}
	out, _ := new(big.Float).SetInt(value.ToBig()).Float64()
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0
	}
	return out
}
