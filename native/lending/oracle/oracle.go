// Package oracle provides in-process price sources for the lending pool.
package oracle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrNoPrice indicates the asset has never been quoted.
	ErrNoPrice = errors.New("oracle: no price for asset")
	// ErrStalePrice indicates the latest quote is older than the allowed age.
	ErrStalePrice = errors.New("oracle: price is stale")
	// ErrZeroPrice rejects zero quotes.
	ErrZeroPrice = errors.New("oracle: price must be positive")
)

// DefaultBaseCurrencyUnit quotes prices with 8 decimals.
var DefaultBaseCurrencyUnit = uint256.NewInt(100_000_000)

type quote struct {
	price     *uint256.Int
	updatedAt time.Time
}

// Static is an in-memory oracle fed by SetPrice.
type Static struct {
	mu     sync.RWMutex
	prices map[common.Address]quote
	unit   *uint256.Int
	maxAge time.Duration
	clock  func() time.Time
}

// Option configures a Static oracle.
type Option func(*Static)

// WithBaseCurrencyUnit overrides the unit prices are expressed in.
func WithBaseCurrencyUnit(unit *uint256.Int) Option {
	return func(s *Static) {
		if unit != nil && !unit.IsZero() {
			s.unit = new(uint256.Int).Set(unit)
		}
	}
}

// WithMaxAge rejects quotes older than age. Zero disables the check.
func WithMaxAge(age time.Duration) Option {
	return func(s *Static) { s.maxAge = age }
}

// WithClock overrides the time source used for staleness checks.
func WithClock(clock func() time.Time) Option {
	return func(s *Static) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStatic creates an empty oracle.
func NewStatic(opts ...Option) *Static {
	s := &Static{
		prices: make(map[common.Address]quote),
		unit:   new(uint256.Int).Set(DefaultBaseCurrencyUnit),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPrice records the latest quote for asset.
func (s *Static) SetPrice(asset common.Address, price *uint256.Int) error {
	if price == nil || price.IsZero() {
		return ErrZeroPrice
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[asset] = quote{price: new(uint256.Int).Set(price), updatedAt: s.clock()}
	return nil
}

// GetAssetPrice returns the latest quote for asset.
func (s *Static) GetAssetPrice(_ context.Context, asset common.Address) (*uint256.Int, error) {
	s.mu.RLock()
	q, ok := s.prices[asset]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNoPrice
	}
	if s.maxAge > 0 && s.clock().Sub(q.updatedAt) > s.maxAge {
		return nil, ErrStalePrice
	}
	return new(uint256.Int).Set(q.price), nil
}

// BaseCurrencyUnit is the value of one unit of the base currency.
func (s *Static) BaseCurrencyUnit() *uint256.Int {
	return new(uint256.Int).Set(s.unit)
}

// Prices returns a copy of every quote.
func (s *Static) Prices() map[common.Address]*uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[common.Address]*uint256.Int, len(s.prices))
	for asset, q := range s.prices {
		out[asset] = new(uint256.Int).Set(q.price)
	}
	return out
}
