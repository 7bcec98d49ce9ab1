package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"synthd/native/stable"
	"synthd/observability"
)

const requestLimit = 1 << 20 // 1 MiB

// Server exposes the ledger engine over HTTP: the mutating operation set,
// the read-only queries, health, and metrics.
type Server struct {
	engine  *stable.Engine
	log     *slog.Logger
	metrics *observability.EngineMetrics
	router  http.Handler

	// opMu serializes mutating engine calls so concurrent requests queue
	// instead of tripping the engine's re-entrancy guard.
	opMu sync.Mutex
}

// New constructs a configured HTTP server around the engine.
func New(engine *stable.Engine, log *slog.Logger) *Server {
	srv := &Server{
		engine:  engine,
		log:     log,
		metrics: observability.Engine(),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Get("/assets", s.listAssets)
		api.Get("/solvency", s.getSolvency)
		api.Get("/accounts/{address}", s.getAccount)
		api.Get("/accounts/{address}/collateral/{asset}", s.getCollateralBalance)
		api.Get("/quotes/usd-value", s.quoteUsdValue)
		api.Get("/quotes/token-amount", s.quoteTokenAmount)

		api.Post("/deposit", s.deposit)
		api.Post("/mint", s.mint)
		api.Post("/deposit-and-mint", s.depositAndMint)
		api.Post("/redeem", s.redeem)
		api.Post("/burn", s.burn)
		api.Post("/redeem-for-dsc", s.redeemForDsc)
		api.Post("/liquidate", s.liquidate)
	})
	return r
}

// requestID tags every request with a correlation identifier.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listAssets(w http.ResponseWriter, _ *http.Request) {
	registry := s.engine.Registry()
	type assetInfo struct {
		Address     string `json:"address"`
		FeedSource  string `json:"feedSource"`
		FeedTimeout string `json:"feedTimeout"`
	}
	assets := registry.Assets()
	out := make([]assetInfo, 0, len(assets))
	for _, asset := range assets {
		info := assetInfo{Address: asset.Hex()}
		if feed, ok := registry.Feed(asset); ok {
			info.FeedSource = feed.Source()
			info.FeedTimeout = feed.Timeout().String()
		}
		out = append(out, info)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"assets":          out,
		"minHealthFactor": stable.MinHealthFactor().String(),
		"bonusPercent":    stable.LiquidationBonus().String(),
		"thresholdPct":    stable.LiquidationThreshold().String(),
	})
}

func (s *Server) getSolvency(w http.ResponseWriter, _ *http.Request) {
	collateral, err := s.engine.TotalCollateralValue()
	if err != nil {
		s.writeError(w, err)
		return
	}
	debt, err := s.engine.TotalDebt()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"totalCollateralValueUsd": collateral.String(),
		"totalDebt":               debt.String(),
	})
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	debt, collateralValue, err := s.engine.AccountInformation(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	health, err := s.engine.HealthFactor(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"address":            addr.Hex(),
		"debt":               debt.String(),
		"collateralValueUsd": collateralValue.String(),
		"healthFactor":       health.String(),
	})
}

func (s *Server) getCollateralBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	asset, err := parseAddress(chi.URLParam(r, "asset"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	balance, err := s.engine.CollateralBalanceOf(addr, asset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
}

func (s *Server) quoteUsdValue(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAddress(r.URL.Query().Get("asset"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	value, err := s.engine.UsdValue(asset, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"usdValue": value.String()})
}

func (s *Server) quoteTokenAmount(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAddress(r.URL.Query().Get("asset"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	usd, err := parseAmount(r.URL.Query().Get("usd"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	amount, err := s.engine.TokenAmountFromUsd(asset, usd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"tokenAmount": amount.String()})
}

type depositRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := s.decode(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	account, asset, amount, err := parseAccountAssetAmount(req.Account, req.Asset, req.Amount)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	s.runOperation(w, "deposit", func() error {
		return s.engine.DepositCollateral(account, asset, amount)
	})
}

type mintRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := s.decode(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	s.runOperation(w, "mint", func() error {
		return s.engine.MintDsc(account, amount)
	})
}

type depositAndMintRequest struct {
	Account          string `json:"account"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateralAmount"`
	MintAmount       string `json:"mintAmount"`
}

func (s *Server) depositAndMint(w http.ResponseWriter, r *http.Request) {
	var req depositAndMintRequest
	if err := s.decode(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	account, asset, collateralAmount, err := parseAccountAssetAmount(req.Account, req.Asset, req.CollateralAmount)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	mintAmount, err := parseAmount(req.MintAmount)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	s.runOperation(w, "deposit_and_mint", func() error {
		return s.engine.DepositCollateralAndMintDsc(account, asset, collateralAmount, mintAmount)
	})
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := s.decode(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	account, asset, amount, err := parseAccountAssetAmount(req.Account, req.Asset, req.Amount)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	s.runOperation(w, "redeem", func() error {
		return s.engine.RedeemCollateral(account, asset, amount)
	})
}

func (s *Server) burn(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := s.decode(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	s.runOperation(w, "burn", func() error {
		return s.engine.BurnDsc(account, amount)
	})
}

type redeemForDscRequest struct {
	Account          string `json:"account"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateralAmount"`
	BurnAmount       string `json:"burnAmount"`
}

func (s *Server) redeemForDsc(w http.ResponseWriter, r *http.Request) {
	var req redeemForDscRequest
	if err := s.decode(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	account, asset, collateralAmount, err := parseAccountAssetAmount(req.Account, req.Asset, req.CollateralAmount)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	burnAmount, err := parseAmount(req.BurnAmount)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	s.runOperation(w, "redeem_for_dsc", func() error {
		return s.engine.RedeemCollateralForDsc(account, asset, collateralAmount, burnAmount)
	})
}

type liquidateRequest struct {
	Liquidator  string `json:"liquidator"`
	Asset       string `json:"asset"`
	Account     string `json:"account"`
	DebtToCover string `json:"debtToCover"`
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := s.decode(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	liquidator, err := parseAddress(req.Liquidator)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	target, asset, debtToCover, err := parseAccountAssetAmount(req.Account, req.Asset, req.DebtToCover)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	s.runOperation(w, "liquidate", func() error {
		return s.engine.Liquidate(liquidator, asset, target, debtToCover)
	})
}

func (s *Server) runOperation(w http.ResponseWriter, name string, op func() error) {
	s.opMu.Lock()
	started := time.Now()
	err := op()
	s.opMu.Unlock()
	s.metrics.ObserveOperation(name, err, time.Since(started))
	if err != nil {
		s.log.Warn("ledger operation failed", "operation", name, "error", err)
		s.writeError(w, err)
		return
	}
	s.log.Info("ledger operation applied", "operation", name)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) decode(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, requestLimit))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("encode response", "error", err)
	}
}

func (s *Server) writeBadRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	payload := map[string]string{"error": err.Error()}
	var hfErr *stable.HealthFactorError
	if errors.As(err, &hfErr) {
		payload["healthFactor"] = hfErr.HealthFactor.String()
	}
	s.writeJSON(w, errorStatus(err), payload)
}

func errorStatus(err error) int {
	var hfErr *stable.HealthFactorError
	switch {
	case errors.Is(err, stable.ErrInvalidAmount),
		errors.Is(err, stable.ErrAssetNotSupported):
		return http.StatusBadRequest
	case errors.As(err, &hfErr),
		errors.Is(err, stable.ErrInsufficientBalance),
		errors.Is(err, stable.ErrHealthFactorOk),
		errors.Is(err, stable.ErrHealthFactorNotImproved),
		errors.Is(err, stable.ErrTransferFailed),
		errors.Is(err, stable.ErrMintFailed):
		return http.StatusConflict
	case errors.Is(err, stable.ErrStalePrice),
		errors.Is(err, stable.ErrInvalidPrice),
		errors.Is(err, stable.ErrReentrantCall):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, errors.New("invalid hex address")
	}
	return common.HexToAddress(raw), nil
}

func parseAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, errors.New("invalid integer amount")
	}
	if amount.Sign() <= 0 {
		return nil, errors.New("amount must be positive")
	}
	return amount, nil
}

func parseAccountAssetAmount(account, asset, amount string) (common.Address, common.Address, *big.Int, error) {
	accountAddr, err := parseAddress(account)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	assetAddr, err := parseAddress(asset)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	value, err := parseAmount(amount)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	return accountAddr, assetAddr, value, nil
}
