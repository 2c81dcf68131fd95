package events

import (
	"time"

	"github.com/shopspring/decimal"
	"p2p/apps/p2p/internal/model"
)

const EventTypeTradeStatusChanged = "trade_status_changed"

// TradeStatusChanged is the stream payload emitted on every trade status change.
// Nullable fields are omitted when unset.
type TradeStatusChanged struct {
	ID           string                  `json:"id"`
	SellerWallet string                  `json:"seller_wallet"`
	BuyerWallet  string                  `json:"buyer_wallet"`
	SellerEmail  string                  `json:"seller_email"`
	BuyerEmail   string                  `json:"buyer_email"`
	Initiator    string                  `json:"initiator"`
	Amount       decimal.Decimal         `json:"amount"`
	Price        decimal.Decimal         `json:"price"`
	FiatAmount   decimal.Decimal         `json:"fiat_amount"`
	CryptoType   model.CryptoType        `json:"crypto_type"`
	FiatType     model.FiatType          `json:"fiat_type"`
	SellType     model.SellType          `json:"sell_type"`
	Status       model.TransactionStatus `json:"status"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
	ClosedOn     *time.Time              `json:"closed_on,omitempty"`
	Hash         *string                 `json:"hash,omitempty"`
}

func NewTradeStatusChanged(trade model.Trade) TradeStatusChanged {
	return TradeStatusChanged{
		ID:           trade.ID,
		SellerWallet: trade.SellerWallet,
		BuyerWallet:  trade.BuyerWallet,
		SellerEmail:  trade.SellerEmail,
		BuyerEmail:   trade.BuyerEmail,
		Initiator:    trade.Initiator,
		Amount:       trade.Amount,
		Price:        trade.Price,
		FiatAmount:   trade.FiatAmount,
		CryptoType:   trade.CryptoType,
		FiatType:     trade.FiatType,
		SellType:     trade.SellType,
		Status:       trade.Status,
		CreatedAt:    trade.CreatedAt,
		UpdatedAt:    trade.UpdatedAt,
		ClosedOn:     trade.ClosedOn,
		Hash:         trade.Hash,
	}
}
