package lending

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	nativecommon "lendcore/native/common"
	"lendcore/native/lending/wadray"
	"lendcore/observability"
	"lendcore/storage"
)

const tracerName = "lendcore/native/lending"

// DefaultTreasury receives protocol fees unless SetTreasury overrides it.
var DefaultTreasury = common.BytesToAddress(crypto.Keccak256([]byte("lending/treasury"))[12:])

type actionKey struct{}

// Pool is the lending pool. Every action runs to completion under a single
// mutex against a unit-of-work transaction that is committed only when the
// action succeeds.
type Pool struct {
	mu sync.Mutex

	db       storage.Database
	strategy InterestRateStrategy
	oracle   PriceOracle
	sentinel PriceOracleSentinel
	acl      AccessControl
	pauses   nativecommon.PauseView
	emitter  Emitter
	logger   *slog.Logger
	metrics  *observability.LendingMetrics
	clock    func() time.Time
	treasury common.Address
}

// NewPool constructs a pool persisting into db.
func NewPool(db storage.Database, strategy InterestRateStrategy, oracle PriceOracle, acl AccessControl) *Pool {
	return &Pool{
		db:       db,
		strategy: strategy,
		oracle:   oracle,
		acl:      acl,
		emitter:  NoopEmitter{},
		logger:   slog.Default().With("component", "lending"),
		metrics:  observability.Lending(),
		clock:    time.Now,
		treasury: DefaultTreasury,
	}
}

func (p *Pool) SetStrategy(strategy InterestRateStrategy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strategy = strategy
}

func (p *Pool) SetOracle(oracle PriceOracle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.oracle = oracle
}

// SetSentinel installs the oracle sentinel. Passing nil allows everything.
func (p *Pool) SetSentinel(sentinel PriceOracleSentinel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sentinel = sentinel
}

func (p *Pool) SetACL(acl AccessControl) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acl = acl
}

func (p *Pool) SetPauses(pauses nativecommon.PauseView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses = pauses
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (p *Pool) SetEmitter(emitter Emitter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	p.emitter = emitter
}

func (p *Pool) SetLogger(logger *slog.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	p.logger = logger.With("component", "lending")
}

// SetClock overrides the time source; tests use it to step through accrual.
func (p *Pool) SetClock(clock func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if clock == nil {
		clock = time.Now
	}
	p.clock = clock
}

func (p *Pool) SetTreasury(treasury common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.treasury = treasury
}

func (p *Pool) Treasury() common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.treasury
}

// session carries the state of one action.
type session struct {
	ctx  context.Context
	pool *Pool
	tx   *txn
	now  uint64
}

// reentrant reports whether ctx descends from a running action. Calls from
// other goroutines carry no marker and wait on the pool mutex instead.
func (p *Pool) reentrant(ctx context.Context) bool {
	return ctx != nil && ctx.Value(actionKey{}) != nil
}

// run executes fn as one atomic action. guarded actions are refused while the
// lending module is paused.
func (p *Pool) run(ctx context.Context, action string, guarded bool, fn func(*session) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if p.reentrant(ctx) {
		return ErrReentrantCall
	}
	if p.db == nil {
		return ErrStateNotConfigured
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "lending."+action, trace.WithAttributes(
		attribute.String("lending.action", action),
	))
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	defer func() {
		class := Classify(err)
		p.metrics.Observe(action, class.String(), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, class.String())
			p.logger.Debug("lending action failed", "action", action, "class", class.String(), "error", err)
		}
	}()

	if guarded {
		if err := nativecommon.Guard(p.pauses, ModuleName); err != nil {
			return err
		}
	}

	s := &session{
		ctx:  context.WithValue(ctx, actionKey{}, action),
		pool: p,
		tx:   newTxn(p.db),
		now:  uint64(p.clock().Unix()),
	}
	if err := fn(s); err != nil {
		return err
	}
	if err := s.tx.commit(); err != nil {
		return err
	}
	for _, ev := range s.tx.events {
		p.emitter.Emit(ev)
		p.metrics.RecordEvent(ev.EventType())
	}
	return nil
}

// view runs fn against the committed state without writing.
func (p *Pool) view(ctx context.Context, fn func(*session) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if p.reentrant(ctx) {
		return ErrReentrantCall
	}
	if p.db == nil {
		return ErrStateNotConfigured
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(&session{
		ctx:  ctx,
		pool: p,
		tx:   newTxn(p.db),
		now:  uint64(p.clock().Unix()),
	})
}

// invokeReceiver hands control to a flash loan receiver. The receiver must
// pass the ctx it is given to any pool call; such calls are rejected with
// ErrReentrantCall. Calls on a fresh context would block on the pool mutex
// until the flash loan returns.
func (s *session) invokeReceiver(receiver FlashLoanReceiver, op FlashLoanOperation) (bool, error) {
	return receiver.ExecuteOperation(s.ctx, op)
}

func (s *session) requireRole(caller common.Address, roles ...string) error {
	acl := s.pool.acl
	if acl == nil {
		return ErrUnauthorized
	}
	for _, role := range roles {
		if acl.HasRole(role, caller) {
			return nil
		}
	}
	return ErrUnauthorized
}

func (s *session) hasRole(role string, account common.Address) bool {
	return s.pool.acl != nil && s.pool.acl.HasRole(role, account)
}

func (s *session) price(asset common.Address) (*uint256.Int, error) {
	if s.pool.oracle == nil {
		return nil, ErrOracleNotConfigured
	}
	price, err := s.pool.oracle.GetAssetPrice(s.ctx, asset)
	if err != nil {
		return nil, collaboratorErr("price oracle", err)
	}
	if price == nil || price.IsZero() {
		return nil, ErrZeroPrice
	}
	return price, nil
}

func (s *session) baseCurrencyUnit() (*uint256.Int, error) {
	if s.pool.oracle == nil {
		return nil, ErrOracleNotConfigured
	}
	unit := s.pool.oracle.BaseCurrencyUnit()
	if unit == nil || unit.IsZero() {
		return nil, collaboratorErr("price oracle", wadray.ErrDivisionByZero)
	}
	return unit, nil
}

// transferUnderlying moves amount of token between ledger accounts.
func (s *session) transferUnderlying(token, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() || from == to {
		return nil
	}
	fromBalance, err := s.tx.ledgerBalance(token, from)
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return ErrTransferFailed
	}
	toBalance, err := s.tx.ledgerBalance(token, to)
	if err != nil {
		return err
	}
	next, err := wadray.Add(toBalance, amount)
	if err != nil {
		return err
	}
	s.tx.setLedgerBalance(token, from, fromBalance.Sub(fromBalance, amount))
	s.tx.setLedgerBalance(token, to, next)
	return nil
}

// CreditUnderlying mints amount of token into holder's ledger account. It is
// the entry point for funds arriving from outside the pool.
func (p *Pool) CreditUnderlying(ctx context.Context, token, holder common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return p.run(ctx, "credit", false, func(s *session) error {
		balance, err := s.tx.ledgerBalance(token, holder)
		if err != nil {
			return err
		}
		next, err := wadray.Add(balance, amount)
		if err != nil {
			return err
		}
		s.tx.setLedgerBalance(token, holder, next)
		return nil
	})
}

// UnderlyingBalance returns holder's ledger balance of token.
func (p *Pool) UnderlyingBalance(ctx context.Context, token, holder common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.view(ctx, func(s *session) error {
		balance, err := s.tx.ledgerBalance(token, holder)
		out = balance
		return err
	})
	return out, err
}
