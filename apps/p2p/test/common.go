//go:build integration

package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// Test server configuration
	BaseURL = "http://localhost:8080"

	// Counterparty wallet used as the lot owner
	TestSellerWallet = "0x0B8fA6F76eB75ae3a4ca28eb3020DFC4503F2136"

	// Test trade parameters
	TestAmount     = "0.0001"
	TestPrice      = "30000.1234"
	TestCryptoType = "eth"
	TestFiatType   = "kzt"
)

// Both accounts must have p2p wallets on the ledger the server talks to,
// and the seller must hold at least TestAmount.
var (
	BuyerEmail  = getEnv("P2P_TEST_BUYER_EMAIL", "buyer@example.com")
	SellerEmail = getEnv("P2P_TEST_SELLER_EMAIL", "seller@example.com")
	JWTSecret   = os.Getenv("JWT_SECRET")
)

// CreateTradeRequest represents the request body for creating a trade
type CreateTradeRequest struct {
	SellerWallet string `json:"seller_wallet"`
	SellerEmail  string `json:"seller_email"`
	Amount       string `json:"amount"`
	Price        string `json:"price"`
	CryptoType   string `json:"crypto_type"`
	FiatType     string `json:"fiat_type"`
	SellType     string `json:"sell_type"`
}

// TradeResponse represents the API response for a trade
type TradeResponse struct {
	ID           string     `json:"id"`
	SellerWallet string     `json:"seller_wallet"`
	BuyerWallet  string     `json:"buyer_wallet"`
	SellerEmail  string     `json:"seller_email"`
	BuyerEmail   string     `json:"buyer_email"`
	Initiator    string     `json:"initiator"`
	Amount       string     `json:"amount"`
	Price        string     `json:"price"`
	FiatAmount   string     `json:"fiat_amount"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ClosedOn     *time.Time `json:"closed_on,omitempty"`
	Hash         *string    `json:"hash,omitempty"`
}

// TradeHistoryResponse represents the status history of a trade
type TradeHistoryResponse struct {
	TradeID string `json:"trade_id"`
	History []struct {
		Status    string `json:"status"`
		Initiator string `json:"initiator"`
	} `json:"history"`
}

// ErrorResponse represents the API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// accessToken signs a short-lived token for email with the server's secret.
func accessToken(t *testing.T, email string) string {
	t.Helper()
	if JWTSecret == "" {
		t.Skip("JWT_SECRET not set")
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": email,
		"exp":   time.Now().Add(10 * time.Minute).Unix(),
	}).SignedString([]byte(JWTSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

// call performs an authenticated request and decodes the JSON response into out.
func call(t *testing.T, method, path, email string, body, out interface{}) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if email != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken(t, email))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to make %s request: %v", method, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}
