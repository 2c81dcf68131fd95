package api

import (
	"time"

	"github.com/shopspring/decimal"
	"p2p/apps/p2p/internal/model"
)

// CreateTradeRequest is the body of POST /api/v1/trades. The seller fields
// name the counterparty who owns the lot.
type CreateTradeRequest struct {
	SellerWallet string          `json:"seller_wallet"`
	SellerEmail  string          `json:"seller_email"`
	Amount       decimal.Decimal `json:"amount"`
	Price        decimal.Decimal `json:"price"`
	CryptoType   string          `json:"crypto_type"`
	FiatType     string          `json:"fiat_type"`
	SellType     string          `json:"sell_type"`
}

// TradeResponse represents the API response for a trade
type TradeResponse struct {
	ID           string          `json:"id"`
	SellerWallet string          `json:"seller_wallet"`
	BuyerWallet  string          `json:"buyer_wallet"`
	SellerEmail  string          `json:"seller_email"`
	BuyerEmail   string          `json:"buyer_email"`
	Initiator    string          `json:"initiator"`
	Amount       decimal.Decimal `json:"amount"`
	Price        decimal.Decimal `json:"price"`
	FiatAmount   decimal.Decimal `json:"fiat_amount"`
	CryptoType   string          `json:"crypto_type"`
	FiatType     string          `json:"fiat_type"`
	SellType     string          `json:"sell_type"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ClosedOn     *time.Time      `json:"closed_on,omitempty"`
	Hash         *string         `json:"hash,omitempty"`
}

type TradeListResponse struct {
	Trades []TradeResponse `json:"trades"`
	Offset int             `json:"offset"`
	Limit  int             `json:"limit"`
}

type StatusChangeResponse struct {
	Status    string    `json:"status"`
	Initiator string    `json:"initiator"`
	ChangedAt time.Time `json:"changed_at"`
	Hash      *string   `json:"hash,omitempty"`
}

type TradeHistoryResponse struct {
	TradeID string                 `json:"trade_id"`
	History []StatusChangeResponse `json:"history"`
}

// ErrorResponse represents the API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newTradeResponse(trade *model.Trade) TradeResponse {
	return TradeResponse{
		ID:           trade.ID,
		SellerWallet: trade.SellerWallet,
		BuyerWallet:  trade.BuyerWallet,
		SellerEmail:  trade.SellerEmail,
		BuyerEmail:   trade.BuyerEmail,
		Initiator:    trade.Initiator,
		Amount:       trade.Amount,
		Price:        trade.Price,
		FiatAmount:   trade.FiatAmount,
		CryptoType:   string(trade.CryptoType),
		FiatType:     string(trade.FiatType),
		SellType:     string(trade.SellType),
		Status:       string(trade.Status),
		CreatedAt:    trade.CreatedAt,
		UpdatedAt:    trade.UpdatedAt,
		ClosedOn:     trade.ClosedOn,
		Hash:         trade.Hash,
	}
}
