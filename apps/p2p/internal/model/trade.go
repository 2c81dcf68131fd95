package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type CryptoType string

const (
	CryptoETH   CryptoType = "eth"
	CryptoERC20 CryptoType = "erc20"
)

type FiatType string

const (
	FiatKZT FiatType = "kzt"
	FiatUSD FiatType = "usd"
)

// SellType is the intent of the lot owner: "sell" means the counterparty
// sells and the caller buys, "buy" the other way round.
type SellType string

const (
	SellTypeSell SellType = "sell"
	SellTypeBuy  SellType = "buy"
)

// FiatScale is the number of decimal places kept for amount, price and fiat amount.
const FiatScale = 4

type Trade struct {
	ID             string            `db:"id"`
	SellerWallet   string            `db:"seller_wallet"`
	BuyerWallet    string            `db:"buyer_wallet"`
	SellerEmail    string            `db:"seller_email"`
	BuyerEmail     string            `db:"buyer_email"`
	SellerLedgerID string            `db:"seller_ledger_id"` // ledger id of the party supplying the crypto
	Initiator      string            `db:"initiator"`        // email of the party who must approve next
	Amount         decimal.Decimal   `db:"amount"`
	Price          decimal.Decimal   `db:"price"`
	FiatAmount     decimal.Decimal   `db:"fiat_amount"`
	CryptoType     CryptoType        `db:"crypto_type"`
	FiatType       FiatType          `db:"fiat_type"`
	SellType       SellType          `db:"sell_type"`
	Status         TransactionStatus `db:"status"`
	CreatedAt      time.Time         `db:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"`
	ClosedOn       *time.Time        `db:"closed_on"` // nullable field
	Hash           *string           `db:"hash"`      // nullable field
}

// TradePatch is the set of mutable fields written by a conditional update.
// Nil pointers leave the stored column untouched.
type TradePatch struct {
	Status    TransactionStatus
	Initiator *string
	ClosedOn  *time.Time
	Hash      *string
	UpdatedAt time.Time
}

// Caller is the authenticated party performing an operation.
type Caller struct {
	PartyID string // ledger id
	Wallet  string
	Email   string
}

// FiatAmount multiplies amount and price after rounding each up to FiatScale
// places and rounds the product up again.
func FiatAmount(amount, price decimal.Decimal) decimal.Decimal {
	return amount.RoundUp(FiatScale).Mul(price.RoundUp(FiatScale)).RoundUp(FiatScale)
}

// IsParticipant returns whether email belongs to the buyer or the seller.
func (t *Trade) IsParticipant(email string) bool {
	return sameEmail(t.BuyerEmail, email) || sameEmail(t.SellerEmail, email)
}

// IsBuyer returns whether email belongs to the buyer.
func (t *Trade) IsBuyer(email string) bool {
	return sameEmail(t.BuyerEmail, email)
}

// IsInitiator returns whether email is the party expected to act next.
func (t *Trade) IsInitiator(email string) bool {
	return sameEmail(t.Initiator, email)
}

// Counterparty returns the email of the participant other than email.
func (t *Trade) Counterparty(email string) string {
	if sameEmail(t.SellerEmail, email) {
		return t.BuyerEmail
	}
	return t.SellerEmail
}

func sameEmail(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
