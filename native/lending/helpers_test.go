package lending

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/acl"
	"lendcore/native/lending/oracle"
	"lendcore/storage"
)

var (
	admin      = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol      = common.HexToAddress("0x00000000000000000000000000000000000ca201")
	liquidator = common.HexToAddress("0x0000000000000000000000000000000000001d00")
	weth       = common.HexToAddress("0x000000000000000000000000000000000000e770")
	usdc       = common.HexToAddress("0x000000000000000000000000000000000000d5dc")
)

// stubRates returns fixed per-asset rates regardless of utilisation.
type stubRates struct {
	mu        sync.Mutex
	liquidity map[common.Address]*uint256.Int
	borrow    map[common.Address]*uint256.Int
	last      RateParams
	fail      error
}

func newStubRates() *stubRates {
	return &stubRates{
		liquidity: make(map[common.Address]*uint256.Int),
		borrow:    make(map[common.Address]*uint256.Int),
	}
}

func (r *stubRates) set(asset common.Address, liquidity, borrow *uint256.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.liquidity[asset] = liquidity
	r.borrow[asset] = borrow
}

func (r *stubRates) CalculateInterestRates(_ context.Context, params RateParams) (*uint256.Int, *uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, nil, r.fail
	}
	r.last = params
	return cloneInt(r.liquidity[params.Asset]), cloneInt(r.borrow[params.Asset]), nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Emit(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.EventType() == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	db     *storage.MemDB
	pool   *Pool
	rates  *stubRates
	prices *oracle.Static
	roles  *acl.Manager
	events *eventLog
	now    time.Time
}

// newFixture lists WETH (2000) and USDC (1), both with 18 decimals and
// borrowing enabled.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		db:     storage.NewMemDB(),
		rates:  newStubRates(),
		events: &eventLog{},
		now:    time.Unix(1_700_000_000, 0),
	}
	f.prices = oracle.NewStatic()
	f.roles = acl.NewManager(f.db)
	for _, role := range []string{RolePoolAdmin, RoleRiskAdmin, RoleEmergencyAdmin} {
		if err := f.roles.Grant(role, admin); err != nil {
			t.Fatalf("grant %s: %v", role, err)
		}
	}
	f.pool = NewPool(f.db, f.rates, f.prices, f.roles)
	f.pool.SetClock(func() time.Time { return f.now })
	f.pool.SetEmitter(f.events)

	f.setPrice(weth, 2_000)
	f.setPrice(usdc, 1)
	f.list(weth, 8_000, 8_250, 10_500)
	f.list(usdc, 8_000, 8_500, 10_400)
	return f
}

func (f *fixture) list(asset common.Address, ltv, threshold, bonus uint64) uint16 {
	f.t.Helper()
	id, err := f.pool.InitReserve(f.ctx, admin, InitReserveInput{Asset: asset, Decimals: 18})
	if err != nil {
		f.t.Fatalf("init reserve: %v", err)
	}
	if err := f.pool.ConfigureReserveAsCollateral(f.ctx, admin, asset, ltv, threshold, bonus); err != nil {
		f.t.Fatalf("configure collateral: %v", err)
	}
	if err := f.pool.SetReserveBorrowing(f.ctx, admin, asset, true); err != nil {
		f.t.Fatalf("enable borrowing: %v", err)
	}
	return id
}

// setPrice quotes asset at whole base-currency units.
func (f *fixture) setPrice(asset common.Address, whole uint64) {
	f.t.Helper()
	if err := f.prices.SetPrice(asset, new(uint256.Int).Mul(uint256.NewInt(whole), oracle.DefaultBaseCurrencyUnit)); err != nil {
		f.t.Fatalf("set price: %v", err)
	}
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) fund(token, holder common.Address, amount *uint256.Int) {
	f.t.Helper()
	if err := f.pool.CreditUnderlying(f.ctx, token, holder, amount); err != nil {
		f.t.Fatalf("credit: %v", err)
	}
}

func (f *fixture) supply(user, asset common.Address, amount *uint256.Int) {
	f.t.Helper()
	f.fund(asset, user, amount)
	if err := f.pool.Supply(f.ctx, user, asset, amount, user); err != nil {
		f.t.Fatalf("supply: %v", err)
	}
}

func (f *fixture) borrow(user, asset common.Address, amount *uint256.Int) {
	f.t.Helper()
	if err := f.pool.Borrow(f.ctx, user, asset, amount, InterestRateModeVariable, user); err != nil {
		f.t.Fatalf("borrow: %v", err)
	}
}

func (f *fixture) reserve(asset common.Address) *ReserveData {
	f.t.Helper()
	r, err := f.pool.GetReserveData(f.ctx, asset)
	if err != nil {
		f.t.Fatalf("reserve data: %v", err)
	}
	return r
}

func (f *fixture) supplyBalance(asset, user common.Address) *uint256.Int {
	f.t.Helper()
	b, err := f.pool.SupplyBalance(f.ctx, asset, user)
	if err != nil {
		f.t.Fatalf("supply balance: %v", err)
	}
	return b
}

func (f *fixture) debtBalance(asset, user common.Address) *uint256.Int {
	f.t.Helper()
	b, err := f.pool.DebtBalance(f.ctx, asset, user)
	if err != nil {
		f.t.Fatalf("debt balance: %v", err)
	}
	return b
}

func (f *fixture) ledger(token, holder common.Address) *uint256.Int {
	f.t.Helper()
	b, err := f.pool.UnderlyingBalance(f.ctx, token, holder)
	if err != nil {
		f.t.Fatalf("ledger balance: %v", err)
	}
	return b
}

func (f *fixture) account(user common.Address) *UserAccountData {
	f.t.Helper()
	data, err := f.pool.GetUserAccountData(f.ctx, user)
	if err != nil {
		f.t.Fatalf("account data: %v", err)
	}
	return data
}

func (f *fixture) grant(role string, account common.Address) {
	f.t.Helper()
	if err := f.roles.Grant(role, account); err != nil {
		f.t.Fatalf("grant: %v", err)
	}
}

// tokens returns n whole units of an 18-decimal asset.
func tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

// milli returns n thousandths of an 18-decimal asset.
func milli(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e15))
}

func base(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), oracle.DefaultBaseCurrencyUnit)
}

func dec(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func expectEq(t *testing.T, what string, got, want *uint256.Int) {
	t.Helper()
	if got == nil || !got.Eq(want) {
		t.Fatalf("%s: got %v want %s", what, got, want.Dec())
	}
}

func reserveID(t *testing.T, f *fixture, asset common.Address) uint16 {
	t.Helper()
	return f.reserve(asset).ID
}

func secondsDuration(seconds uint64) time.Duration {
	return time.Duration(seconds) * time.Second
}
