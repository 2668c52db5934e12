// Package server exposes the lending pool over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lendcore/native/lending"
	"lendcore/observability"
	"lendcore/services/lendingd/journal"
)

const requestLimit = 1 << 20 // 1 MiB

// PriceSetter accepts admin price updates.
type PriceSetter interface {
	SetPrice(asset common.Address, price *uint256.Int) error
}

// FeedStatus records price feed outages.
type FeedStatus interface {
	SetStatus(up bool)
}

// ModuleSwitch pauses and resumes whole modules.
type ModuleSwitch interface {
	Set(module string, paused bool) bool
	Paused() []string
}

// ActionLog serves recent journal rows.
type ActionLog interface {
	Recent(ctx context.Context, limit int, filter journal.Filter) ([]journal.ActionRecord, error)
}

// AssetResolver maps a symbol or address to a listed asset.
type AssetResolver func(ref string) (common.Address, bool)

// Config wires the server's collaborators. Pool and Auth are required.
type Config struct {
	Pool         *lending.Pool
	Prices       PriceSetter
	Feed         FeedStatus
	Modules      ModuleSwitch
	Roles        lending.AccessControl
	Journal      ActionLog
	JournalLimit int
	Resolve      AssetResolver
	Auth         *Authenticator
	RateLimiter  *RateLimiter
	Logger       *slog.Logger
	Timeout      time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	pool         *lending.Pool
	prices       PriceSetter
	feed         FeedStatus
	modules      ModuleSwitch
	roles        lending.AccessControl
	journal      ActionLog
	journalLimit int
	resolve      AssetResolver
	auth         *Authenticator
	limiter      *RateLimiter
	logger       *slog.Logger
	timeout      time.Duration
}

// New validates cfg and returns a server.
func New(cfg Config) (*Server, error) {
	if cfg.Pool == nil {
		return nil, errors.New("server: pool required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("server: authenticator required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := cfg.JournalLimit
	if limit <= 0 {
		limit = 100
	}
	return &Server{
		pool:         cfg.Pool,
		prices:       cfg.Prices,
		feed:         cfg.Feed,
		modules:      cfg.Modules,
		roles:        cfg.Roles,
		journal:      cfg.Journal,
		journalLimit: limit,
		resolve:      cfg.Resolve,
		auth:         cfg.Auth,
		limiter:      cfg.RateLimiter,
		logger:       logger.With(slog.String("component", "http")),
		timeout:      timeout,
	}, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Get("/reserves", s.listReserves)
		r.Get("/reserves/{asset}", s.getReserve)
		r.Get("/accounts/{user}", s.getAccount)
		r.Get("/emode/{id}", s.getEModeCategory)
		r.Get("/journal", s.recentActions)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(ScopeWrite))
			r.Post("/supply", s.supply)
			r.Post("/withdraw", s.withdraw)
			r.Post("/borrow", s.borrow)
			r.Post("/repay", s.repay)
			r.Post("/collateral", s.setCollateral)
			r.Post("/liquidate", s.liquidate)
			r.Post("/emode", s.setEMode)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(ScopeAdmin))
			r.Post("/admin/prices", s.setPrice)
			r.Post("/admin/oracle/status", s.setFeedStatus)
			r.Post("/admin/reserves/{asset}/pause", s.pauseReserve)
			r.Post("/admin/treasury/mint", s.mintToTreasury)
			r.Post("/admin/ledger/credit", s.creditLedger)
			r.Post("/admin/module/pause", s.pauseModule)
		})
	})
	return otelhttp.NewHandler(r, "lendingd")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// observe records API metrics against the matched route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		duration := time.Since(start)
		observability.API().Observe(route, r.Method, recorder.status, duration)
		if recorder.status >= http.StatusInternalServerError {
			s.logger.Warn("request failed",
				slog.String("route", route),
				slog.String("method", r.Method),
				slog.Int("status", recorder.status),
				slog.Duration("duration", duration),
			)
		}
	})
}

func (s *Server) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}
