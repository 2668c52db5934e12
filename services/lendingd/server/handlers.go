package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"lendcore/native/lending"
	"lendcore/native/lending/wadray"
	"lendcore/services/lendingd/journal"
)

var errBadRequest = errors.New("bad request")

type reserveView struct {
	Asset                    string `json:"asset"`
	ID                       uint16 `json:"id"`
	Decimals                 uint64 `json:"decimals"`
	LTV                      uint64 `json:"ltv"`
	LiquidationThreshold     uint64 `json:"liquidation_threshold"`
	LiquidationBonus         uint64 `json:"liquidation_bonus"`
	ReserveFactor            uint64 `json:"reserve_factor"`
	LiquidationProtocolFee   uint64 `json:"liquidation_protocol_fee"`
	Active                   bool   `json:"active"`
	Frozen                   bool   `json:"frozen"`
	Paused                   bool   `json:"paused"`
	BorrowingEnabled         bool   `json:"borrowing_enabled"`
	FlashLoanEnabled         bool   `json:"flash_loan_enabled"`
	BorrowableInIsolation    bool   `json:"borrowable_in_isolation"`
	SiloedBorrowing          bool   `json:"siloed_borrowing"`
	SupplyCap                uint64 `json:"supply_cap"`
	BorrowCap                uint64 `json:"borrow_cap"`
	DebtCeiling              uint64 `json:"debt_ceiling"`
	IsolationModeTotalDebt   uint64 `json:"isolation_mode_total_debt"`
	LiquidityIndex           string `json:"liquidity_index"`
	VariableBorrowIndex      string `json:"variable_borrow_index"`
	LiquidityRate            string `json:"liquidity_rate"`
	VariableBorrowRate       string `json:"variable_borrow_rate"`
	TotalSupply              string `json:"total_supply"`
	TotalDebt                string `json:"total_debt"`
	Utilisation              string `json:"utilisation"`
	VirtualUnderlyingBalance string `json:"virtual_underlying_balance"`
	AccruedToTreasury        string `json:"accrued_to_treasury"`
	Deficit                  string `json:"deficit"`
	LastUpdateTimestamp      uint64 `json:"last_update_timestamp"`
	LiquidationGraceUntil    uint64 `json:"liquidation_grace_until"`
	ATokenAddress            string `json:"atoken_address"`
	VariableDebtTokenAddress string `json:"variable_debt_token_address"`
}

func newReserveView(snap *lending.ReserveSnapshot) reserveView {
	r := snap.Reserve
	cfg := r.Configuration
	return reserveView{
		Asset:                    snap.Asset.Hex(),
		ID:                       r.ID,
		Decimals:                 cfg.Decimals(),
		LTV:                      cfg.LTV(),
		LiquidationThreshold:     cfg.LiquidationThreshold(),
		LiquidationBonus:         cfg.LiquidationBonus(),
		ReserveFactor:            cfg.ReserveFactor(),
		LiquidationProtocolFee:   cfg.LiquidationProtocolFee(),
		Active:                   cfg.Active(),
		Frozen:                   cfg.Frozen(),
		Paused:                   cfg.Paused(),
		BorrowingEnabled:         cfg.BorrowingEnabled(),
		FlashLoanEnabled:         cfg.FlashLoanEnabled(),
		BorrowableInIsolation:    cfg.BorrowableInIsolation(),
		SiloedBorrowing:          cfg.SiloedBorrowing(),
		SupplyCap:                cfg.SupplyCap(),
		BorrowCap:                cfg.BorrowCap(),
		DebtCeiling:              cfg.DebtCeiling(),
		IsolationModeTotalDebt:   r.IsolationModeTotalDebt,
		LiquidityIndex:           snap.LiquidityIndex.Dec(),
		VariableBorrowIndex:      snap.VariableBorrowIndex.Dec(),
		LiquidityRate:            r.CurrentLiquidityRate.Dec(),
		VariableBorrowRate:       r.CurrentVariableBorrowRate.Dec(),
		TotalSupply:              snap.TotalSupply.Dec(),
		TotalDebt:                snap.TotalDebt.Dec(),
		Utilisation:              snap.Utilisation.Dec(),
		VirtualUnderlyingBalance: r.VirtualUnderlyingBalance.Dec(),
		AccruedToTreasury:        r.AccruedToTreasury.Dec(),
		Deficit:                  r.Deficit.Dec(),
		LastUpdateTimestamp:      r.LastUpdateTimestamp,
		LiquidationGraceUntil:    r.LiquidationGracePeriodUntil,
		ATokenAddress:            r.ATokenAddress.Hex(),
		VariableDebtTokenAddress: r.VariableDebtTokenAddress.Hex(),
	}
}

type positionView struct {
	Asset      string `json:"asset"`
	Supplied   string `json:"supplied"`
	Debt       string `json:"debt"`
	Collateral bool   `json:"collateral"`
}

type accountView struct {
	Account                     string         `json:"account"`
	TotalCollateralBase         string         `json:"total_collateral_base"`
	TotalDebtBase               string         `json:"total_debt_base"`
	AvailableBorrowsBase        string         `json:"available_borrows_base"`
	CurrentLTV                  uint64         `json:"current_ltv"`
	CurrentLiquidationThreshold uint64         `json:"current_liquidation_threshold"`
	HealthFactor                string         `json:"health_factor"`
	EModeCategory               uint8          `json:"emode_category"`
	Positions                   []positionView `json:"positions"`
}

type emodeView struct {
	ID                   uint8  `json:"id"`
	Label                string `json:"label"`
	LTV                  uint64 `json:"ltv"`
	LiquidationThreshold uint64 `json:"liquidation_threshold"`
	LiquidationBonus     uint64 `json:"liquidation_bonus"`
}

type supplyRequest struct {
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	OnBehalfOf string `json:"on_behalf_of,omitempty"`
}

type withdrawRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	To     string `json:"to,omitempty"`
}

type repayRequest struct {
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	OnBehalfOf  string `json:"on_behalf_of,omitempty"`
	UseDeposits bool   `json:"use_deposits,omitempty"`
}

type collateralRequest struct {
	Asset      string `json:"asset"`
	Enabled    bool   `json:"enabled"`
	OnBehalfOf string `json:"on_behalf_of,omitempty"`
}

type liquidateRequest struct {
	CollateralAsset string `json:"collateral_asset"`
	DebtAsset       string `json:"debt_asset"`
	User            string `json:"user"`
	DebtToCover     string `json:"debt_to_cover"`
	ReceiveDeposit  bool   `json:"receive_deposit,omitempty"`
}

type emodeRequest struct {
	Category   uint8  `json:"category"`
	OnBehalfOf string `json:"on_behalf_of,omitempty"`
}

type priceRequest struct {
	Asset string `json:"asset"`
	Price string `json:"price"`
}

type feedStatusRequest struct {
	Up bool `json:"up"`
}

type pauseRequest struct {
	Paused             bool   `json:"paused"`
	GracePeriodSeconds uint64 `json:"grace_period_seconds,omitempty"`
}

type creditRequest struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type modulePauseRequest struct {
	Module string `json:"module,omitempty"`
	Paused bool   `json:"paused"`
}

type modulePauseResponse struct {
	Changed bool     `json:"changed"`
	Paused  []string `json:"paused"`
}

type mintRequest struct {
	Assets []string `json:"assets,omitempty"`
}

type amountResponse struct {
	Amount string `json:"amount"`
}

type liquidationResponse struct {
	DebtRepaid        string `json:"debt_repaid"`
	CollateralSeized  string `json:"collateral_seized"`
	ProtocolFee       string `json:"protocol_fee"`
	DeficitCreated    string `json:"deficit_created"`
	CollateralCleared bool   `json:"collateral_cleared"`
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, requestLimit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

// parseAmount accepts a base-10 integer or "max".
func parseAmount(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "max") {
		return wadray.Max(), nil
	}
	amount, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount %q", errBadRequest, raw)
	}
	return amount, nil
}

func parseAccount(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: invalid account %q", errBadRequest, raw)
	}
	return common.HexToAddress(raw), nil
}

// optionalAccount defaults to fallback when raw is empty.
func optionalAccount(raw string, fallback common.Address) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return parseAccount(raw)
}

func (s *Server) parseAsset(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if s.resolve != nil {
		if asset, ok := s.resolve(raw); ok {
			return asset, nil
		}
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: unknown asset %q", errBadRequest, raw)
	}
	return common.HexToAddress(raw), nil
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, errBadRequest) {
		writeJSONError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	writePoolError(w, err)
}

func caller(r *http.Request) common.Address {
	account, _ := AccountFromContext(r.Context())
	return account
}

func (s *Server) listReserves(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.context(r.Context())
	defer cancel()
	snapshots, err := s.pool.Snapshot(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	views := make([]reserveView, 0, len(snapshots))
	for i := range snapshots {
		views = append(views, newReserveView(&snapshots[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reserves": views})
}

func (s *Server) getReserve(w http.ResponseWriter, r *http.Request) {
	asset, err := s.parseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	snap, err := s.pool.GetReserveSnapshot(ctx, asset)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReserveView(snap))
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	user, err := parseAccount(chi.URLParam(r, "user"))
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	data, err := s.pool.GetUserAccountData(ctx, user)
	if err != nil {
		s.fail(w, err)
		return
	}
	category, err := s.pool.GetUserEMode(ctx, user)
	if err != nil {
		s.fail(w, err)
		return
	}
	cfg, err := s.pool.GetUserConfiguration(ctx, user)
	if err != nil {
		s.fail(w, err)
		return
	}
	assets, err := s.pool.GetReservesList(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	positions := make([]positionView, 0)
	for _, asset := range assets {
		reserve, err := s.pool.GetReserveData(ctx, asset)
		if err != nil {
			s.fail(w, err)
			return
		}
		supplied, err := s.pool.SupplyBalance(ctx, asset, user)
		if err != nil {
			s.fail(w, err)
			return
		}
		debt, err := s.pool.DebtBalance(ctx, asset, user)
		if err != nil {
			s.fail(w, err)
			return
		}
		if supplied.IsZero() && debt.IsZero() {
			continue
		}
		positions = append(positions, positionView{
			Asset:      asset.Hex(),
			Supplied:   supplied.Dec(),
			Debt:       debt.Dec(),
			Collateral: cfg.IsUsingAsCollateral(reserve.ID),
		})
	}
	writeJSON(w, http.StatusOK, accountView{
		Account:                     user.Hex(),
		TotalCollateralBase:         data.TotalCollateralBase.Dec(),
		TotalDebtBase:               data.TotalDebtBase.Dec(),
		AvailableBorrowsBase:        data.AvailableBorrowsBase.Dec(),
		CurrentLTV:                  data.CurrentLTV,
		CurrentLiquidationThreshold: data.CurrentLiquidationThreshold,
		HealthFactor:                data.HealthFactor.Dec(),
		EModeCategory:               category,
		Positions:                   positions,
	})
}

func (s *Server) getEModeCategory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 8)
	if err != nil {
		s.fail(w, fmt.Errorf("%w: invalid category", errBadRequest))
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	category, err := s.pool.GetEModeCategory(ctx, uint8(id))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, emodeView{
		ID:                   uint8(id),
		Label:                category.Label,
		LTV:                  category.LTV,
		LiquidationThreshold: category.LiquidationThreshold,
		LiquidationBonus:     category.LiquidationBonus,
	})
}

func (s *Server) recentActions(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSONError(w, http.StatusNotImplemented, "journal not configured", "")
		return
	}
	query := r.URL.Query()
	limit := s.journalLimit
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.fail(w, fmt.Errorf("%w: invalid limit", errBadRequest))
			return
		}
		limit = min(parsed, s.journalLimit)
	}
	filter := journal.Filter{Type: query.Get("type")}
	if raw := query.Get("asset"); raw != "" {
		asset, err := s.parseAsset(raw)
		if err != nil {
			s.fail(w, err)
			return
		}
		filter.Asset = asset.Hex()
	}
	if raw := query.Get("user"); raw != "" {
		user, err := parseAccount(raw)
		if err != nil {
			s.fail(w, err)
			return
		}
		filter.User = user.Hex()
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	records, err := s.journal.Recent(ctx, limit, filter)
	if err != nil {
		s.logger.Error("journal query failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": records})
}

func (s *Server) supply(w http.ResponseWriter, r *http.Request) {
	var req supplyRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	asset, err := s.parseAsset(req.Asset)
	if err != nil {
		s.fail(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, err)
		return
	}
	onBehalfOf, err := optionalAccount(req.OnBehalfOf, caller(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.pool.Supply(ctx, caller(r), asset, amount, onBehalfOf); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amount.Dec()})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	asset, err := s.parseAsset(req.Asset)
	if err != nil {
		s.fail(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, err)
		return
	}
	to, err := optionalAccount(req.To, caller(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	withdrawn, err := s.pool.Withdraw(ctx, caller(r), asset, amount, to)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: withdrawn.Dec()})
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	var req supplyRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	asset, err := s.parseAsset(req.Asset)
	if err != nil {
		s.fail(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, err)
		return
	}
	onBehalfOf, err := optionalAccount(req.OnBehalfOf, caller(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.pool.Borrow(ctx, caller(r), asset, amount, lending.InterestRateModeVariable, onBehalfOf); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amount.Dec()})
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	var req repayRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	asset, err := s.parseAsset(req.Asset)
	if err != nil {
		s.fail(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, err)
		return
	}
	onBehalfOf, err := optionalAccount(req.OnBehalfOf, caller(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	var repaid *uint256.Int
	if req.UseDeposits {
		if onBehalfOf != caller(r) {
			s.fail(w, fmt.Errorf("%w: deposits can only repay the caller's own debt", errBadRequest))
			return
		}
		repaid, err = s.pool.RepayWithATokens(ctx, caller(r), asset, amount, lending.InterestRateModeVariable)
	} else {
		repaid, err = s.pool.Repay(ctx, caller(r), asset, amount, lending.InterestRateModeVariable, onBehalfOf)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: repaid.Dec()})
}

func (s *Server) setCollateral(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	asset, err := s.parseAsset(req.Asset)
	if err != nil {
		s.fail(w, err)
		return
	}
	onBehalfOf, err := optionalAccount(req.OnBehalfOf, caller(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.pool.SetUserUseReserveAsCollateral(ctx, caller(r), asset, req.Enabled, onBehalfOf); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	collateral, err := s.parseAsset(req.CollateralAsset)
	if err != nil {
		s.fail(w, err)
		return
	}
	debt, err := s.parseAsset(req.DebtAsset)
	if err != nil {
		s.fail(w, err)
		return
	}
	user, err := parseAccount(req.User)
	if err != nil {
		s.fail(w, err)
		return
	}
	cover, err := parseAmount(req.DebtToCover)
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	res, err := s.pool.LiquidationCall(ctx, lending.LiquidationCallParams{
		Liquidator:      caller(r),
		CollateralAsset: collateral,
		DebtAsset:       debt,
		User:            user,
		DebtToCover:     cover,
		ReceiveAToken:   req.ReceiveDeposit,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidationResponse{
		DebtRepaid:        res.DebtRepaid.Dec(),
		CollateralSeized:  res.CollateralSeized.Dec(),
		ProtocolFee:       res.ProtocolFee.Dec(),
		DeficitCreated:    res.DeficitCreated.Dec(),
		CollateralCleared: res.CollateralCleared,
	})
}

func (s *Server) setEMode(w http.ResponseWriter, r *http.Request) {
	var req emodeRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	onBehalfOf, err := optionalAccount(req.OnBehalfOf, caller(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.pool.SetUserEMode(ctx, caller(r), req.Category, onBehalfOf); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setPrice(w http.ResponseWriter, r *http.Request) {
	if s.prices == nil {
		writeJSONError(w, http.StatusNotImplemented, "price updates not supported", "")
		return
	}
	var req priceRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	asset, err := s.parseAsset(req.Asset)
	if err != nil {
		s.fail(w, err)
		return
	}
	price, err := uint256.FromDecimal(strings.TrimSpace(req.Price))
	if err != nil {
		s.fail(w, fmt.Errorf("%w: invalid price %q", errBadRequest, req.Price))
		return
	}
	if err := s.prices.SetPrice(asset, price); err != nil {
		s.fail(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s.logger.Info("price updated", "asset", asset.Hex(), "price", price.Dec(), "caller", caller(r).Hex())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setFeedStatus(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeJSONError(w, http.StatusNotImplemented, "price feed sentinel not configured", "")
		return
	}
	var req feedStatusRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	s.feed.SetStatus(req.Up)
	s.logger.Warn("price feed status changed", "up", req.Up, "caller", caller(r).Hex())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pauseReserve(w http.ResponseWriter, r *http.Request) {
	asset, err := s.parseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		s.fail(w, err)
		return
	}
	var req pauseRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.pool.SetReservePause(ctx, caller(r), asset, req.Paused, req.GracePeriodSeconds); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) mintToTreasury(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	assets := make([]common.Address, 0, len(req.Assets))
	for _, raw := range req.Assets {
		asset, err := s.parseAsset(raw)
		if err != nil {
			s.fail(w, err)
			return
		}
		assets = append(assets, asset)
	}
	if len(assets) == 0 {
		listed, err := s.pool.GetReservesList(ctx)
		if err != nil {
			s.fail(w, err)
			return
		}
		assets = listed
	}
	if err := s.pool.MintToTreasury(ctx, assets); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireRole rejects callers missing role when the server knows the pool's
// access control.
func (s *Server) requireRole(w http.ResponseWriter, r *http.Request, role string) bool {
	if s.roles == nil || s.roles.HasRole(role, caller(r)) {
		return true
	}
	writePoolError(w, lending.ErrUnauthorized)
	return false
}

// creditLedger books funds arriving from outside the pool into an account's
// underlying ledger.
func (s *Server) creditLedger(w http.ResponseWriter, r *http.Request) {
	if !s.requireRole(w, r, lending.RolePoolAdmin) {
		return
	}
	var req creditRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	asset, err := s.parseAsset(req.Asset)
	if err != nil {
		s.fail(w, err)
		return
	}
	account, err := parseAccount(req.Account)
	if err != nil {
		s.fail(w, err)
		return
	}
	amount, err := uint256.FromDecimal(strings.TrimSpace(req.Amount))
	if err != nil {
		s.fail(w, fmt.Errorf("%w: invalid amount %q", errBadRequest, req.Amount))
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.pool.CreditUnderlying(ctx, asset, account, amount); err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info("ledger credited", "asset", asset.Hex(), "account", account.Hex(), "amount", amount.Dec(), "caller", caller(r).Hex())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pauseModule(w http.ResponseWriter, r *http.Request) {
	if s.modules == nil {
		writeJSONError(w, http.StatusNotImplemented, "module pauses not configured", "")
		return
	}
	if !s.requireRole(w, r, lending.RoleEmergencyAdmin) {
		return
	}
	var req modulePauseRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	module := strings.TrimSpace(req.Module)
	if module == "" {
		module = lending.ModuleName
	}
	changed := s.modules.Set(module, req.Paused)
	if changed {
		s.logger.Warn("module pause changed", "module", module, "paused", req.Paused, "caller", caller(r).Hex())
	}
	paused := s.modules.Paused()
	sort.Strings(paused)
	writeJSON(w, http.StatusOK, modulePauseResponse{Changed: changed, Paused: paused})
}
