// Package api exposes the Exchange over HTTP and WebSocket: a
// gorilla/mux router plus a websocket Hub for orderbook and trade push
// updates, wrapped in rs/cors for browser clients.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/predictionmkt/exchange/internal/admission"
	"github.com/predictionmkt/exchange/internal/exchange"
	"github.com/predictionmkt/exchange/internal/ledger"
	"github.com/predictionmkt/exchange/internal/matching"
	"github.com/predictionmkt/exchange/internal/settlement"
	"github.com/predictionmkt/exchange/internal/signing"
)

// Server wires the Exchange to a REST+WebSocket surface.
type Server struct {
	ex     *exchange.Exchange
	router *mux.Router
	hub    *Hub
	log    *zap.Logger
}

// NewServer builds a Server with routes registered but not yet serving.
func NewServer(ex *exchange.Exchange, log *zap.Logger) *Server {
	s := &Server{
		ex:     ex,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/markets", s.handleCreateMarket).Methods(http.MethodPost)
	api.HandleFunc("/markets/{id}", s.handleGetMarket).Methods(http.MethodGet)
	api.HandleFunc("/markets/{id}/settle", s.handleSettleMarket).Methods(http.MethodPost)
	api.HandleFunc("/markets/{id}/orderbook", s.handleGetOrderbook).Methods(http.MethodGet)
	api.HandleFunc("/markets/{id}/trades", s.handleGetTrades).Methods(http.MethodGet)

	api.HandleFunc("/orders", s.handleSubmitOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{marketId}/{orderId}", s.handleGetOrder).Methods(http.MethodGet)

	api.HandleFunc("/users/{id}/orders", s.handleGetUserOrders).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/account", s.handleGetAccount).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// Start runs the websocket hub and serves the router on addr, wrapped in
// a permissive CORS handler for browser clients.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)

	s.log.Info("api server listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, handler)
}

// ==============================
// Handlers
// ==============================

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	m, err := s.ex.CreateMarket(r.Context(), req.ID, req.Question, req.Creator, time.UnixMilli(req.ResolutionTime).UTC())
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toMarketInfo(m))
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, err := s.ex.GetMarket(id)
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toMarketInfo(m))
}

func (s *Server) handleSettleMarket(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req SettleMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var outcome ledger.Outcome
	switch req.Outcome {
	case "YES":
		outcome = ledger.OutcomeYes
	case "NO":
		outcome = ledger.OutcomeNo
	default:
		respondError(w, http.StatusBadRequest, "invalid_outcome", "outcome must be YES or NO")
		return
	}

	if err := s.ex.Settle(r.Context(), id, outcome); err != nil && !errors.Is(err, settlement.ErrAlreadySettled) {
		s.respondExchangeError(w, err)
		return
	}

	s.broadcastTrade(id, "")
	respondJSON(w, http.StatusOK, map[string]string{"marketId": id, "outcome": req.Outcome})
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tokenType, err := parseTokenType(r.URL.Query().Get("tokenType"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_token_type", err.Error())
		return
	}

	bids, asks, err := s.ex.OrderBook(id, tokenType)
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderbookSnapshot(id, tokenType, bids, asks))
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tokenType, _ := parseTokenType(r.URL.Query().Get("tokenType"))

	trades, err := s.ex.RecentTrades(id, tokenType, 100)
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	out := make([]TradeInfo, 0, len(trades))
	for _, t := range trades {
		out = append(out, toTradeInfo(t))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	side, err := parseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_side", err.Error())
		return
	}
	tokenType, err := parseTokenType(req.TokenType)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_token_type", err.Error())
		return
	}

	admReq := admission.Request{
		MarketID:       req.MarketID,
		UserID:         req.UserID,
		ChainID:        req.ChainID,
		Side:           side,
		TokenType:      tokenType,
		Price:          req.Price,
		Quantity:       req.Quantity,
		WalletAddress:  req.WalletAddress,
		Signature:      req.Signature,
		SessionPubKey:  req.SessionPubKey,
		SessionAddress: req.SessionAddress,
	}

	order, err := s.ex.SubmitOrder(r.Context(), admReq)
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}

	s.broadcastOrderbook(req.MarketID, tokenType)
	s.broadcastTrade(req.MarketID, tokenType)
	respondJSON(w, http.StatusCreated, SubmitOrderResponse{Order: toOrderInfo(order)})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	o, err := s.ex.GetOrder(vars["marketId"], vars["orderId"])
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderInfo(o))
}

func (s *Server) handleGetUserOrders(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	chainID := r.URL.Query().Get("chainId")

	orders, err := s.ex.OrdersByUser(id, chainID)
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	out := make([]OrderInfo, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderInfo(o))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	chainID := r.URL.Query().Get("chainId")

	acc, err := s.ex.GetAccount(id, chainID)
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toAccountInfo(acc))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast helpers
// ==============================

func (s *Server) broadcastOrderbook(marketID string, tokenType ledger.TokenType) {
	bids, asks, err := s.ex.OrderBook(marketID, tokenType)
	if err != nil {
		return
	}
	snap := toOrderbookSnapshot(marketID, tokenType, bids, asks)
	update := OrderbookUpdate{
		Type:      "orderbook",
		MarketID:  marketID,
		TokenType: string(tokenType),
		Bids:      snap.Bids,
		Asks:      snap.Asks,
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(update)
	if err != nil {
		return
	}
	s.hub.BroadcastToChannel(orderbookChannel(marketID, tokenType), data)
}

func (s *Server) broadcastTrade(marketID string, tokenType ledger.TokenType) {
	trades, err := s.ex.RecentTrades(marketID, tokenType, 1)
	if err != nil || len(trades) == 0 {
		return
	}
	t := trades[0]
	update := TradeUpdate{
		Type:      "trade",
		MarketID:  marketID,
		TokenType: string(t.TokenType),
		Price:     t.Price.String(),
		Quantity:  t.Quantity,
		Timestamp: t.Timestamp.UnixMilli(),
	}
	data, err := json.Marshal(update)
	if err != nil {
		return
	}
	s.hub.BroadcastToChannel(tradesChannel(marketID), data)
}

func orderbookChannel(marketID string, tokenType ledger.TokenType) string {
	return "orderbook:" + marketID + ":" + string(tokenType)
}

func tradesChannel(marketID string) string {
	return "trades:" + marketID
}

// ==============================
// Parsing / conversion helpers
// ==============================

func parseSide(s string) (ledger.Side, error) {
	switch s {
	case string(ledger.Buy):
		return ledger.Buy, nil
	case string(ledger.Sell):
		return ledger.Sell, nil
	default:
		return "", errors.New("side must be BUY or SELL")
	}
}

func parseTokenType(s string) (ledger.TokenType, error) {
	switch s {
	case string(ledger.Yes), "":
		return ledger.Yes, nil
	case string(ledger.No):
		return ledger.No, nil
	default:
		return "", errors.New("tokenType must be YES or NO")
	}
}

func toMarketInfo(m *ledger.Market) MarketInfo {
	return MarketInfo{
		ID:             m.ID,
		Question:       m.Question,
		Creator:        m.Creator,
		ResolutionTime: m.ResolutionTime.UnixMilli(),
		Outcome:        string(m.Outcome),
		Settled:        m.Settled,
		CreatedAt:      m.CreatedAt.UnixMilli(),
	}
}

func toOrderInfo(o *ledger.Order) OrderInfo {
	return OrderInfo{
		ID:             o.ID,
		MarketID:       o.MarketID,
		UserID:         o.UserID,
		Side:           string(o.Side),
		TokenType:      string(o.TokenType),
		Price:          o.Price.String(),
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		Remaining:      o.Remaining(),
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt.UnixMilli(),
		UpdatedAt:      o.UpdatedAt.UnixMilli(),
	}
}

func toTradeInfo(t *ledger.Trade) TradeInfo {
	return TradeInfo{
		ID:          t.ID,
		MarketID:    t.MarketID,
		TokenType:   string(t.TokenType),
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Price:       t.Price.String(),
		Quantity:    t.Quantity,
		Timestamp:   t.Timestamp.UnixMilli(),
	}
}

func toAccountInfo(acc *ledger.Account) AccountInfo {
	positions := make(map[string]PositionInfo, len(acc.Positions))
	for marketID, pos := range acc.Positions {
		positions[marketID] = PositionInfo{
			YesTokens:           pos.YesTokens,
			NoTokens:            pos.NoTokens,
			LockedYesTokens:     pos.LockedYesTokens,
			LockedNoTokens:      pos.LockedNoTokens,
			LockedCollateralYes: pos.LockedCollateralYes.String(),
			LockedCollateralNo:  pos.LockedCollateralNo.String(),
		}
	}
	return AccountInfo{
		UserID:       acc.UserID,
		ChainID:      acc.ChainID,
		AvailableUSD: acc.AvailableUSD.String(),
		Positions:    positions,
	}
}

func toOrderbookSnapshot(marketID string, tokenType ledger.TokenType, bids, asks []matching.Level) OrderbookSnapshot {
	return OrderbookSnapshot{
		MarketID:  marketID,
		TokenType: string(tokenType),
		Bids:      toPriceLevels(bids),
		Asks:      toPriceLevels(asks),
		Timestamp: time.Now().UnixMilli(),
	}
}

func toPriceLevels(levels []matching.Level) []PriceLevel {
	out := make([]PriceLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, PriceLevel{Price: l.Price.String(), Size: l.Size})
	}
	return out
}

// ==============================
// Error -> HTTP status mapping
// ==============================

// respondExchangeError maps the admission/settlement/ledger/signing error
// taxonomy to an HTTP status: validation and auth failures are the
// caller's fault (400/401), business-rule failures describe a state
// conflict the caller can inspect (402/404/409), and storage/transient
// failures are the server's problem (500/503/504).
func (s *Server) respondExchangeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, admission.ErrInvalidPrice),
		errors.Is(err, admission.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, admission.ErrUnauthorized),
		errors.Is(err, signing.ErrBadSignature),
		errors.Is(err, signing.ErrMalformedEncoding),
		errors.Is(err, signing.ErrUnsupportedChain):
		respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, admission.ErrInsufficientFunds),
		errors.Is(err, admission.ErrInsufficientTokens):
		respondError(w, http.StatusPaymentRequired, "insufficient_assets", err.Error())
	case errors.Is(err, admission.ErrMarketClosed),
		errors.Is(err, settlement.ErrAlreadySettled),
		errors.Is(err, ledger.ErrConflict):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, settlement.ErrInvalidOutcome):
		respondError(w, http.StatusBadRequest, "invalid_outcome", err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ledger.ErrDeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "deadline_exceeded", err.Error())
	case errors.Is(err, ledger.ErrUnavailable):
		respondError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		s.log.Error("unmapped exchange error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, detail string) {
	respondJSON(w, status, ErrorResponse{Success: false, Error: code, Detail: detail})
}
