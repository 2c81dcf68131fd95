package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"p2p/apps/p2p/internal/assets"
	"p2p/apps/p2p/internal/ledger"
	"p2p/apps/p2p/internal/model"
	"p2p/apps/p2p/internal/trade"
)

type TradeService interface {
	CreateTrade(ctx context.Context, req trade.CreateRequest, caller model.Caller) (*model.Trade, error)
	GetTrade(ctx context.Context, tradeID string, caller model.Caller) (*model.Trade, error)
	ListTrades(ctx context.Context, caller model.Caller, offset, limit int) ([]model.Trade, error)
	ApprovePayment(ctx context.Context, tradeID string, caller model.Caller) (*model.Trade, error)
	CancelTrade(ctx context.Context, tradeID string, caller model.Caller) (*model.Trade, error)
}

type HistoryReader interface {
	GetStatusHistory(ctx context.Context, tradeID string) ([]model.StatusChange, error)
}

// TradeHandler handles trade-related API endpoints
type TradeHandler struct {
	service  TradeService
	history  HistoryReader
	registry *assets.AssetRegistry
	logger   *zap.Logger
}

// NewTradeHandler creates a new TradeHandler
func NewTradeHandler(service TradeService, history HistoryReader, logger *zap.Logger) *TradeHandler {
	return &TradeHandler{
		service:  service,
		history:  history,
		registry: assets.NewAssetRegistry(),
		logger:   logger,
	}
}

// CreateTrade handles POST /api/v1/trades
func (h *TradeHandler) CreateTrade(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req CreateTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}

	if !common.IsHexAddress(req.SellerWallet) {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_seller_wallet", "Seller wallet must be a hex address")
		return
	}

	if !strings.Contains(req.SellerEmail, "@") {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_seller_email", "Seller email is required")
		return
	}

	asset, ok := h.registry.GetAsset(req.CryptoType)
	if !ok {
		h.writeErrorResponse(w, http.StatusBadRequest, "unsupported_crypto_type",
			"Crypto type not supported. Supported types: "+strings.Join(h.registry.GetSupportedTypes(), ", "))
		return
	}

	currency, ok := h.registry.GetCurrency(req.FiatType)
	if !ok {
		h.writeErrorResponse(w, http.StatusBadRequest, "unsupported_fiat_type", "Fiat type not supported")
		return
	}

	sellType := model.SellType(strings.ToLower(req.SellType))
	if sellType != model.SellTypeSell && sellType != model.SellTypeBuy {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_sell_type", "Sell type must be sell or buy")
		return
	}

	if !req.Amount.IsPositive() || !asset.FitsPrecision(req.Amount) {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_amount", "Amount must be positive and fit the asset precision")
		return
	}

	if !req.Price.IsPositive() || !currency.FitsPricePrecision(req.Price) {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_price", "Price must be positive with at most 8 decimal places")
		return
	}

	created, err := h.service.CreateTrade(r.Context(), trade.CreateRequest{
		CounterpartyWallet: req.SellerWallet,
		CounterpartyEmail:  strings.ToLower(req.SellerEmail),
		Amount:             req.Amount,
		Price:              req.Price,
		CryptoType:         asset.Type,
		FiatType:           currency.Type,
		SellType:           sellType,
	}, caller)
	if err != nil {
		h.writeServiceError(w, "create trade", err)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, newTradeResponse(created))
}

// ListTrades handles GET /api/v1/trades
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_offset", "Offset must be a non-negative integer")
		return
	}

	limit, err := queryInt(r, "limit", trade.DefaultListLimit)
	if err != nil || limit < 1 || limit > trade.MaxListLimit {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_limit", "Limit must be between 1 and 100")
		return
	}

	trades, err := h.service.ListTrades(r.Context(), caller, offset, limit)
	if err != nil {
		h.writeServiceError(w, "list trades", err)
		return
	}

	response := TradeListResponse{Trades: make([]TradeResponse, 0, len(trades)), Offset: offset, Limit: limit}
	for i := range trades {
		response.Trades = append(response.Trades, newTradeResponse(&trades[i]))
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// GetTrade handles GET /api/v1/trades/{trade_id}
func (h *TradeHandler) GetTrade(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	tradeID, ok := h.tradeID(w, r)
	if !ok {
		return
	}

	found, err := h.service.GetTrade(r.Context(), tradeID, caller)
	if err != nil {
		h.writeServiceError(w, "get trade", err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, newTradeResponse(found))
}

// ApprovePayment handles POST /api/v1/trades/approve_payment/{trade_id}
func (h *TradeHandler) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	tradeID, ok := h.tradeID(w, r)
	if !ok {
		return
	}

	approved, err := h.service.ApprovePayment(r.Context(), tradeID, caller)
	if err != nil {
		h.writeServiceError(w, "approve payment", err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, newTradeResponse(approved))
}

// CancelTrade handles POST /api/v1/trades/cancel_transaction/{trade_id}
func (h *TradeHandler) CancelTrade(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	tradeID, ok := h.tradeID(w, r)
	if !ok {
		return
	}

	canceled, err := h.service.CancelTrade(r.Context(), tradeID, caller)
	if err != nil {
		h.writeServiceError(w, "cancel trade", err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, newTradeResponse(canceled))
}

// GetHistory handles GET /api/v1/trades/{trade_id}/history
func (h *TradeHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	tradeID, ok := h.tradeID(w, r)
	if !ok {
		return
	}

	if _, err := h.service.GetTrade(r.Context(), tradeID, caller); err != nil {
		h.writeServiceError(w, "get trade", err)
		return
	}

	history, err := h.history.GetStatusHistory(r.Context(), tradeID)
	if err != nil {
		h.writeServiceError(w, "get trade history", err)
		return
	}

	response := TradeHistoryResponse{TradeID: tradeID, History: make([]StatusChangeResponse, 0, len(history))}
	for _, change := range history {
		response.History = append(response.History, StatusChangeResponse{
			Status:    string(change.Status),
			Initiator: change.Initiator,
			ChangedAt: change.ChangedAt,
			Hash:      change.Hash,
		})
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// tradeID rejects ids that cannot name a trade as not found.
func (h *TradeHandler) tradeID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(mux.Vars(r)["trade_id"])
	if err != nil {
		h.writeErrorResponse(w, http.StatusNotFound, "trade_not_found", "Trade not found")
		return "", false
	}
	return id.String(), true
}

func (h *TradeHandler) caller(w http.ResponseWriter, r *http.Request) (model.Caller, bool) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		h.writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
	}
	return caller, ok
}

// writeServiceError maps orchestrator and ledger errors to a status code and
// a stable error code.
func (h *TradeHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	status, code, message := http.StatusInternalServerError, "internal_error", "Internal server error"

	switch {
	case errors.Is(err, trade.ErrReconciliationRequired):
		status, code, message = http.StatusInternalServerError, "reconciliation_required", "Trade requires manual reconciliation"
	case errors.Is(err, trade.ErrNotFound):
		status, code, message = http.StatusNotFound, "trade_not_found", "Trade not found"
	case errors.Is(err, trade.ErrSelfTradeDenied):
		status, code, message = http.StatusBadRequest, "self_trade_denied", "Cannot trade with yourself"
	case errors.Is(err, trade.ErrInsufficientBalance):
		status, code, message = http.StatusBadRequest, "insufficient_balance", "Seller balance is insufficient"
	case errors.Is(err, trade.ErrInvalidStateTransition):
		status, code, message = http.StatusConflict, "invalid_state_transition", "Operation not allowed in current trade status"
	case errors.Is(err, trade.ErrNotInitiator):
		status, code, message = http.StatusForbidden, "not_initiator", "Waiting for the other party to approve"
	case errors.Is(err, trade.ErrCancelNotAllowed):
		status, code, message = http.StatusForbidden, "cancel_not_allowed", "You are not allowed to cancel this trade"
	case errors.Is(err, trade.ErrPaymentExpired):
		status, code, message = http.StatusGone, "payment_expired", "Payment window expired"
	case errors.Is(err, trade.ErrConcurrencyConflict):
		status, code, message = http.StatusConflict, "concurrency_conflict", "Trade was modified concurrently, retry"
	case errors.Is(err, ledger.ErrPartyNotFound):
		status, code, message = http.StatusNotFound, "party_not_found", "Counterparty has no p2p wallet"
	case errors.Is(err, ledger.ErrDownstreamService):
		status, code, message = http.StatusBadGateway, "downstream_service_error", "Wallet service call failed"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Trade operation failed", zap.String("op", op), zap.Error(err))
	}
	h.writeErrorResponse(w, status, code, message)
}

// writeJSONResponse writes a JSON response with the specified status code
func (h *TradeHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSONResponse(w, h.logger, statusCode, data)
}

// writeErrorResponse writes an error response
func (h *TradeHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeErrorResponse(w, h.logger, statusCode, errorCode, message)
}

func queryInt(r *http.Request, key string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

func writeJSONResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func writeErrorResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, errorCode, message string) {
	writeJSONResponse(w, logger, statusCode, ErrorResponse{Error: errorCode, Message: message})
}
