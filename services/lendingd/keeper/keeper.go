// Package keeper runs periodic maintenance against the lending pool: index
// accrual, treasury minting and reserve gauges.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"

	"lendcore/native/lending"
	"lendcore/observability"
)

// Report summarises one maintenance pass.
type Report struct {
	Synced    int
	Snapshots []lending.ReserveSnapshot
}

// Keeper schedules maintenance passes with six-field cron specs.
type Keeper struct {
	pool    *lending.Pool
	caller  common.Address
	metrics *observability.LendingMetrics
	logger  *slog.Logger
	cron    *cron.Cron
	timeout time.Duration
}

// New returns a keeper acting as caller, which must hold the pool admin role.
func New(pool *lending.Pool, caller common.Address, logger *slog.Logger) *Keeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{
		pool:    pool,
		caller:  caller,
		metrics: observability.Lending(),
		logger:  logger.With(slog.String("component", "keeper")),
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: time.Minute,
	}
}

// Register schedules RunOnce on spec.
func (k *Keeper) Register(spec string) error {
	if _, err := k.cron.AddFunc(spec, k.tick); err != nil {
		return fmt.Errorf("register keeper job: %w", err)
	}
	return nil
}

// Start starts the scheduler in its own goroutine.
func (k *Keeper) Start() {
	k.cron.Start()
	k.logger.Info("keeper started")
}

// Stop stops the scheduler and waits for a running pass to finish or ctx to
// expire.
func (k *Keeper) Stop(ctx context.Context) {
	done := k.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		k.logger.Warn("keeper stop timed out")
	}
	k.logger.Info("keeper stopped")
}

func (k *Keeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()
	report, err := k.RunOnce(ctx)
	if err != nil {
		k.logger.Error("keeper pass failed", slog.Int("synced", report.Synced), slog.Any("error", err))
		return
	}
	k.logger.Info("keeper pass complete", slog.Int("synced", report.Synced), slog.Int("reserves", len(report.Snapshots)))
}

// RunOnce accrues every reserve, mints accrued reserve factor to the
// treasury and publishes snapshot gauges. Per-reserve sync failures are
// collected and do not stop the pass.
func (k *Keeper) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	assets, err := k.pool.GetReservesList(ctx)
	if err != nil {
		return report, fmt.Errorf("list reserves: %w", err)
	}
	var errs []error
	for _, asset := range assets {
		if err := k.pool.SyncIndexesState(ctx, k.caller, asset); err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", asset.Hex(), err))
			continue
		}
		report.Synced++
	}
	if err := k.pool.MintToTreasury(ctx, assets); err != nil {
		errs = append(errs, fmt.Errorf("mint to treasury: %w", err))
	}

	snapshots, err := k.pool.Snapshot(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("snapshot: %w", err))
		return report, errors.Join(errs...)
	}
	report.Snapshots = snapshots
	for _, snap := range snapshots {
		k.metrics.RecordReserve(snap.Asset.Hex(), snap.LiquidityIndex, snap.VariableBorrowIndex,
			snap.Reserve.CurrentLiquidityRate, snap.Reserve.CurrentVariableBorrowRate, snap.Utilisation)
		k.logger.Debug("reserve snapshot",
			slog.String("asset", snap.Asset.Hex()),
			slog.String("liquidity_index", snap.LiquidityIndex.Dec()),
			slog.String("variable_borrow_index", snap.VariableBorrowIndex.Dec()),
			slog.String("total_supply", snap.TotalSupply.Dec()),
			slog.String("total_debt", snap.TotalDebt.Dec()),
			slog.String("deficit", snap.Reserve.Deficit.Dec()),
		)
	}
	return report, errors.Join(errs...)
}
