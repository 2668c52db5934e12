package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "lendcore/native/common"
	"lendcore/native/lending"
	"lendcore/native/lending/acl"
	"lendcore/native/lending/oracle"
	"lendcore/native/lending/ratestrategy"
	"lendcore/observability/logging"
	telemetry "lendcore/observability/otel"
	"lendcore/services/lendingd/config"
	"lendcore/services/lendingd/journal"
	"lendcore/services/lendingd/keeper"
	"lendcore/services/lendingd/markets"
	"lendcore/services/lendingd/publisher"
	"lendcore/services/lendingd/server"
	"lendcore/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.yaml", "path to lendingd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LENDINGD_ENV"))
	logger := logging.Setup("lendingd", env)
	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "lendingd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     otlpEndpoint != "",
		Traces:      otlpEndpoint != "",
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Auth.Disabled && !strings.EqualFold(env, "dev") {
		log.Fatalf("unauthenticated lendingd mode is restricted to the dev environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db storage.Database
	if cfg.Storage.Path == "" {
		logger.Warn("no storage path configured, pool state is kept in memory")
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("open storage: %v", err)
		}
		db = ldb
	}
	defer db.Close()

	listing, err := markets.Load(cfg.MarketsPath)
	if err != nil {
		log.Fatalf("load markets: %v", err)
	}
	baseUnit, err := listing.BaseUnit()
	if err != nil {
		log.Fatalf("markets: %v", err)
	}
	prices := oracle.NewStatic(oracle.WithBaseCurrencyUnit(baseUnit), oracle.WithMaxAge(cfg.Oracle.MaxAge))
	strategy, err := ratestrategy.New(&ratestrategy.Default)
	if err != nil {
		log.Fatalf("rate strategy: %v", err)
	}
	roles := acl.NewManager(db)

	pool := lending.NewPool(db, strategy, prices, roles)
	pool.SetLogger(logger)
	modules := nativecommon.NewSwitch()
	pool.SetPauses(modules)
	var sentinel *oracle.Sentinel
	if cfg.Oracle.GracePeriod > 0 {
		sentinel = oracle.NewSentinel(cfg.Oracle.GracePeriod, nil)
		pool.SetSentinel(sentinel)
	}

	operator, err := operatorAccount(cfg.Keeper.Caller, listing)
	if err != nil {
		log.Fatalf("keeper: %v", err)
	}
	listed, err := markets.Apply(ctx, listing, operator, markets.Deps{
		Pool:     pool,
		Prices:   prices,
		Strategy: strategy,
		Roles:    roles,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("apply markets: %v", err)
	}
	logger.Info("markets applied", slog.Int("listed", len(listed)), slog.Int("configured", len(listing.Markets)))

	sqlDB, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		log.Fatalf("open journal: %v", err)
	}
	actions, err := journal.New(sqlDB, logger)
	if err != nil {
		log.Fatalf("migrate journal: %v", err)
	}
	emitters := lending.MultiEmitter{actions}

	if cfg.NATS.URL != "" {
		conn, js, err := publisher.Connect(cfg.NATS.URL)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer conn.Drain()
		if err := publisher.EnsureStream(ctx, js, cfg.NATS.Stream, cfg.NATS.MaxAge); err != nil {
			log.Fatalf("nats: %v", err)
		}
		events := publisher.New(js, 0, logger)
		emitters = append(emitters, events)
		go func() {
			if err := events.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event publisher stopped", slog.Any("error", err))
			}
		}()
	}
	pool.SetEmitter(emitters)

	var indexKeeper *keeper.Keeper
	if !cfg.Keeper.Disabled {
		indexKeeper = keeper.New(pool, operator, logger)
		if err := indexKeeper.Register(cfg.Keeper.Spec); err != nil {
			log.Fatalf("keeper: %v", err)
		}
		indexKeeper.Start()
	}

	srvCfg := server.Config{
		Pool:         pool,
		Prices:       prices,
		Modules:      modules,
		Roles:        roles,
		Journal:      actions,
		JournalLimit: cfg.Journal.RecentLimit,
		Resolve:      listing.Lookup,
		Auth: server.NewAuthenticator(server.AuthConfig{
			Enabled:    !cfg.Auth.Disabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.AllowedClockSkew,
		}, logger),
		RateLimiter: server.NewRateLimiter(cfg.RateLimit.RatePerSecond, cfg.RateLimit.Burst),
		Logger:      logger,
	}
	if sentinel != nil {
		srvCfg.Feed = sentinel
	}
	srv, err := server.New(srvCfg)
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", slog.String("addr", cfg.ListenAddress))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve http", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forcing server stop", slog.Any("error", err))
		_ = httpServer.Close()
	}
	if indexKeeper != nil {
		indexKeeper.Stop(shutdownCtx)
	}
}

// operatorAccount picks the account that applies listings and runs the
// keeper: the configured caller, or the listing's first admin.
func operatorAccount(configured string, listing *markets.File) (common.Address, error) {
	if configured != "" {
		if !common.IsHexAddress(configured) {
			return common.Address{}, errors.New("caller is not a hex address")
		}
		return common.HexToAddress(configured), nil
	}
	if len(listing.Admins) == 0 {
		return common.Address{}, errors.New("no caller configured and the listing names no admins")
	}
	return common.HexToAddress(listing.Admins[0]), nil
}
