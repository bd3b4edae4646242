// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/btorressz/coffee-futures/core"
	"github.com/btorressz/coffee-futures/pkg/exchange"
	"github.com/btorressz/coffee-futures/pkg/ids"
	"github.com/btorressz/coffee-futures/pkg/log"
	"github.com/btorressz/coffee-futures/pkg/metric"
	"github.com/btorressz/coffee-futures/pkg/report"
	"github.com/btorressz/coffee-futures/pkg/token"
)

// Server exposes the engine over HTTP. Every invariant lives in the engine;
// the server only translates JSON to entrypoint calls and errors to stable
// codes.
type Server struct {
	ex      *exchange.Exchange
	ledger  token.Ledger
	metrics *metric.Metrics
	log     log.Logger
	router  *mux.Router
}

// NewServer wires the HTTP routes.
func NewServer(ex *exchange.Exchange, ledger token.Ledger, metrics *metric.Metrics, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NoOp()
	}
	s := &Server{
		ex:      ex,
		ledger:  ledger,
		metrics: metrics,
		log:     logger,
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.GetGatherer(), promhttp.HandlerOpts{}))
	}
	r.HandleFunc("/ws/events", s.handleEvents)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/mints", s.handleInitCftMint).Methods(http.MethodPost)
	v1.HandleFunc("/markets", s.handleCreateMarket).Methods(http.MethodPost)
	v1.HandleFunc("/markets", s.handleListMarkets).Methods(http.MethodGet)
	v1.HandleFunc("/markets/{id}", s.handleGetMarket).Methods(http.MethodGet)
	v1.HandleFunc("/markets/{id}/price", s.handlePublishPrice).Methods(http.MethodPost)
	v1.HandleFunc("/markets/{id}/pause", s.handlePause).Methods(http.MethodPost)
	v1.HandleFunc("/markets/{id}/oracle/propose", s.handleProposeRotate).Methods(http.MethodPost)
	v1.HandleFunc("/markets/{id}/oracle/activate", s.handleActivateRotate).Methods(http.MethodPost)

	v1.HandleFunc("/deals", s.handleOpenDeal).Methods(http.MethodPost)
	v1.HandleFunc("/deals", s.handleListDeals).Methods(http.MethodGet)
	v1.HandleFunc("/deals/{id}", s.handleGetDeal).Methods(http.MethodGet)
	v1.HandleFunc("/deals/{id}/statement", s.handleStatement).Methods(http.MethodGet)
	v1.HandleFunc("/deals/{id}/topup", s.handleTopUp).Methods(http.MethodPost)
	v1.HandleFunc("/deals/{id}/mark", s.handleMarkToMarket).Methods(http.MethodPost)
	v1.HandleFunc("/deals/{id}/margin-call", s.handleMarginCall).Methods(http.MethodPost)
	v1.HandleFunc("/deals/{id}/flag-liquidation", s.handleFlagLiquidation).Methods(http.MethodPost)
	v1.HandleFunc("/deals/{id}/settle-cash", s.handleSettleCash).Methods(http.MethodPost)
	v1.HandleFunc("/deals/{id}/settle-physical", s.handleSettlePhysical).Methods(http.MethodPost)
	v1.HandleFunc("/deals/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	v1.HandleFunc("/deals/{id}/close", s.handleClose).Methods(http.MethodPost)
}

// errorBody is the stable error envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrAlreadyExists),
		errors.Is(err, core.ErrAlreadySettled),
		errors.Is(err, core.ErrNotSettled),
		errors.Is(err, core.ErrReentrancy):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	json.NewEncoder(w).Encode(errorBody{Code: core.Code(err), Message: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidArgument, err)
	}
	return nil
}

func pathID(r *http.Request) (ids.ID, error) {
	raw := mux.Vars(r)["id"]
	id, err := ids.FromString(raw)
	if err != nil {
		return ids.Empty, fmt.Errorf("%w: id %q", core.ErrInvalidArgument, raw)
	}
	return id, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type initMintRequest struct {
	Authority ids.ID `json:"authority"`
	Mint      ids.ID `json:"mint"`
	Decimals  uint8  `json:"decimals"`
}

func (s *Server) handleInitCftMint(w http.ResponseWriter, r *http.Request) {
	var req initMintRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ex.InitCftMint(req.Authority, req.Mint, req.Decimals); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]ids.ID{"mint": req.Mint})
}

type createMarketRequest struct {
	Authority            ids.ID `json:"authority"`
	Verifier             ids.ID `json:"verifier"`
	OraclePublisher      ids.ID `json:"oracle_publisher"`
	CftMint              ids.ID `json:"cft_mint"`
	CftDecimals          uint8  `json:"cft_decimals"`
	QuoteMint            ids.ID `json:"quote_mint"`
	FeeTreasury          ids.ID `json:"fee_treasury"`
	InsuranceTreasury    ids.ID `json:"insurance_treasury"`
	SettlementTS         int64  `json:"settlement_ts"`
	ContractSizeKG       uint64 `json:"contract_size_kg"`
	InitialMarginBps     uint16 `json:"initial_margin_bps"`
	MaintenanceMarginBps uint16 `json:"maintenance_margin_bps"`
	FeeBps               uint16 `json:"fee_bps"`
	FarmerFeeBps         uint16 `json:"farmer_fee_bps"`
	BuyerFeeBps          uint16 `json:"buyer_fee_bps"`
	InsuranceBps         uint16 `json:"insurance_bps"`
	MinTransferAmount    uint64 `json:"min_transfer_amount"`
	MaxNotionalPerDeal   uint64 `json:"max_notional_per_deal"`
	MaxQtyPerDeal        uint64 `json:"max_qty_per_deal"`
	MaxOracleAgeSec      int64  `json:"max_oracle_age_sec"`
	TwapWindowSec        uint64 `json:"twap_window_sec"`
	PriceMode            string `json:"price_mode"`
}

func parsePriceMode(raw string) (core.PriceMode, error) {
	switch raw {
	case "", "last":
		return core.PriceModeLast, nil
	case "twap":
		return core.PriceModeTWAP, nil
	default:
		return 0, fmt.Errorf("%w: price_mode %q", core.ErrInvalidArgument, raw)
	}
}

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	mode, err := parsePriceMode(req.PriceMode)
	if err != nil {
		s.writeError(w, err)
		return
	}
	market, err := s.ex.CreateMarket(exchange.MarketParams{
		Authority:            req.Authority,
		Verifier:             req.Verifier,
		OraclePublisher:      req.OraclePublisher,
		CftMint:              req.CftMint,
		CftDecimals:          req.CftDecimals,
		QuoteMint:            req.QuoteMint,
		FeeTreasury:          req.FeeTreasury,
		InsuranceTreasury:    req.InsuranceTreasury,
		SettlementTS:         req.SettlementTS,
		ContractSizeKG:       req.ContractSizeKG,
		InitialMarginBps:     req.InitialMarginBps,
		MaintenanceMarginBps: req.MaintenanceMarginBps,
		FeeBps:               req.FeeBps,
		FarmerFeeBps:         req.FarmerFeeBps,
		BuyerFeeBps:          req.BuyerFeeBps,
		InsuranceBps:         req.InsuranceBps,
		MinTransferAmount:    req.MinTransferAmount,
		MaxNotionalPerDeal:   req.MaxNotionalPerDeal,
		MaxQtyPerDeal:        req.MaxQtyPerDeal,
		MaxOracleAgeSec:      req.MaxOracleAgeSec,
		TwapWindowSec:        req.TwapWindowSec,
		PriceMode:            mode,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, market)
}

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ex.ListMarkets())
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	market, ok := s.ex.GetMarket(id)
	if !ok {
		s.writeError(w, fmt.Errorf("%w: market %s", core.ErrNotFound, id))
		return
	}
	s.writeJSON(w, http.StatusOK, market)
}

type publishPriceRequest struct {
	Publisher ids.ID `json:"publisher"`
	Price     uint64 `json:"price"`
	Nonce     uint64 `json:"nonce"`
}

func (s *Server) handlePublishPrice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req publishPriceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ex.PublishPrice(req.Publisher, id, req.Price, req.Nonce); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"price": req.Price, "nonce": req.Nonce})
}

type pauseRequest struct {
	Authority ids.ID `json:"authority"`
	Paused    bool   `json:"paused"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req pauseRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ex.SetPaused(req.Authority, id, req.Paused); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

type proposeRotateRequest struct {
	Authority   ids.ID `json:"authority"`
	NewOracle   ids.ID `json:"new_oracle"`
	EffectiveTS int64  `json:"effective_ts"`
}

func (s *Server) handleProposeRotate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req proposeRotateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ex.ProposeRotateOracle(req.Authority, id, req.NewOracle, req.EffectiveTS); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type activateRotateRequest struct {
	Authority ids.ID `json:"authority"`
}

func (s *Server) handleActivateRotate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req activateRotateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ex.ActivateRotateOracle(req.Authority, id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type openDealRequest struct {
	Market             ids.ID   `json:"market"`
	Farmer             ids.ID   `json:"farmer"`
	Buyer              ids.ID   `json:"buyer"`
	FarmerFunding      ids.ID   `json:"farmer_funding"`
	BuyerFunding       ids.ID   `json:"buyer_funding"`
	FarmerReceive      ids.ID   `json:"farmer_receive"`
	BuyerReceive       ids.ID   `json:"buyer_receive"`
	BuyerCftAccount    ids.ID   `json:"buyer_cft_account"`
	Referrer           ids.ID   `json:"referrer"`
	FeeSplitBps        uint16   `json:"fee_split_bps"`
	AgreedPricePerKG   uint64   `json:"agreed_price_per_kg"`
	QuantityKG         uint64   `json:"quantity_kg"`
	PhysicalDelivery   bool     `json:"physical_delivery"`
	DeadlineTS         int64    `json:"deadline_ts"`
	MarginCallGraceSec int64    `json:"margin_call_grace_sec"`
	Assets             []ids.ID `json:"assets"`
	AssetQty           []uint64 `json:"asset_qty"`
	MerkleRoot         string   `json:"merkle_root"`
}

func (s *Server) handleOpenDeal(w http.ResponseWriter, r *http.Request) {
	var req openDealRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	params := exchange.OpenDealParams{
		Market:             req.Market,
		Farmer:             req.Farmer,
		Buyer:              req.Buyer,
		FarmerFunding:      req.FarmerFunding,
		BuyerFunding:       req.BuyerFunding,
		FarmerReceive:      req.FarmerReceive,
		BuyerReceive:       req.BuyerReceive,
		BuyerCftAccount:    req.BuyerCftAccount,
		Referrer:           req.Referrer,
		FeeSplitBps:        req.FeeSplitBps,
		AgreedPricePerKG:   req.AgreedPricePerKG,
		QuantityKG:         req.QuantityKG,
		PhysicalDelivery:   req.PhysicalDelivery,
		DeadlineTS:         req.DeadlineTS,
		MarginCallGraceSec: req.MarginCallGraceSec,
		Assets:             req.Assets,
		AssetQty:           req.AssetQty,
	}
	if req.MerkleRoot != "" {
		raw, err := hex.DecodeString(req.MerkleRoot)
		if err != nil || len(raw) != 32 {
			s.writeError(w, fmt.Errorf("%w: merkle_root", core.ErrInvalidArgument))
			return
		}
		var root [32]byte
		copy(root[:], raw)
		params.MerkleRoot = &root
	}
	deal, err := s.ex.OpenDeal(params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, deal)
}

func (s *Server) handleListDeals(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ex.ListDeals())
}

func (s *Server) handleGetDeal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	deal, ok := s.ex.GetDeal(id)
	if !ok {
		s.writeError(w, fmt.Errorf("%w: deal %s", core.ErrNotFound, id))
		return
	}
	s.writeJSON(w, http.StatusOK, deal)
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	deal, ok := s.ex.GetDeal(id)
	if !ok {
		s.writeError(w, fmt.Errorf("%w: deal %s", core.ErrNotFound, id))
		return
	}
	market, ok := s.ex.GetMarket(deal.Market)
	if !ok {
		s.writeError(w, fmt.Errorf("%w: market %s", core.ErrNotFound, deal.Market))
		return
	}
	refPrice, err := s.ex.ReferencePrice(deal.Market)
	if err != nil {
		s.writeError(w, err)
		return
	}
	farmerVault, buyerVault, err := s.ex.VaultBalances(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	decimals, ok := s.ledger.Decimals(market.QuoteMint)
	if !ok {
		s.writeError(w, fmt.Errorf("%w: quote mint %s", core.ErrNotFound, market.QuoteMint))
		return
	}
	s.writeJSON(w, http.StatusOK, report.BuildStatement(deal, refPrice, farmerVault, buyerVault, decimals))
}

type topUpRequest struct {
	Signer ids.ID `json:"signer"`
	From   ids.ID `json:"from"`
	Amount uint64 `json:"amount"`
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req topUpRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ex.TopUpMargin(req.Signer, id, req.From, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkToMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ex.MarkToMarket(id); err != nil {
		s.writeError(w, err)
		return
	}
	deal, _ := s.ex.GetDeal(id)
	s.writeJSON(w, http.StatusOK, deal)
}

type marginCallRequest struct {
	Authority ids.ID `json:"authority"`
	GraceSec  int64  `json:"grace_sec"`
	StartNow  bool   `json:"start_now"`
}

func (s *Server) handleMarginCall(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req marginCallRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ex.MarginCall(req.Authority, id, req.GraceSec, req.StartNow); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlagLiquidation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ex.FlagLiquidation(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSettleCash(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ex.SettleCash(id); err != nil {
		s.writeError(w, err)
		return
	}
	deal, _ := s.ex.GetDeal(id)
	s.writeJSON(w, http.StatusOK, deal)
}

type settlePhysicalRequest struct {
	Verifier    ids.ID   `json:"verifier"`
	DeliveredKG uint64   `json:"delivered_kg"`
	Leaf        string   `json:"leaf"`
	Proof       []string `json:"proof"`
}

func (s *Server) handleSettlePhysical(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req settlePhysicalRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	var leaf []byte
	if req.Leaf != "" {
		leaf, err = hex.DecodeString(req.Leaf)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: leaf", core.ErrInvalidArgument))
			return
		}
	}
	proof := make([][32]byte, 0, len(req.Proof))
	for _, raw := range req.Proof {
		decoded, err := hex.DecodeString(raw)
		if err != nil || len(decoded) != 32 {
			s.writeError(w, fmt.Errorf("%w: proof element", core.ErrInvalidArgument))
			return
		}
		var node [32]byte
		copy(node[:], decoded)
		proof = append(proof, node)
	}
	if err := s.ex.VerifyAndSettlePhysical(req.Verifier, id, req.DeliveredKG, proof, leaf); err != nil {
		s.writeError(w, err)
		return
	}
	deal, _ := s.ex.GetDeal(id)
	s.writeJSON(w, http.StatusOK, deal)
}

type callerRequest struct {
	Caller ids.ID `json:"caller"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req callerRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ex.CancelDeal(req.Caller, id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req callerRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ex.CloseDeal(req.Caller, id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
