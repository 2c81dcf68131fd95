package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"p2p/apps/p2p/internal/model"
)

// Party is a p2p wallet registered on the ledger.
type Party struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// Settlement is the outcome of a transfer executed by the ledger.
type Settlement struct {
	Hash string
	Time time.Time
}

type balanceChangeRequest struct {
	WalletID     string          `json:"wallet_id"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyType string          `json:"currency_type"`
}

type transferRequest struct {
	WalletID  string          `json:"wallet_id"`
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

type transferResponse struct {
	Hash string `json:"hash"`
	Time string `json:"time"`
}

// Client talks to the wallet service that owns p2p balances.
type Client struct {
	http   *resty.Client
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewClient creates a ledger client. Every call is bounded by timeout and is
// never retried.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		cb:     newCircuitBreaker(logger),
		logger: logger,
	}
}

// ResolveParty looks up the p2p wallet registered for email.
func (c *Client) ResolveParty(ctx context.Context, email string) (*Party, error) {
	const op = "resolve_party"

	resp, err := c.do(ctx, op, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("email", email).Get("/wallets/eth/email/{email}/p2p")
	})
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPartyNotFound, email)
		}
		return nil, err
	}

	var party Party
	if err := json.Unmarshal(resp.Body(), &party); err != nil {
		return nil, &DownstreamError{Op: op, StatusCode: resp.StatusCode(), Err: fmt.Errorf("malformed party: %w", err)}
	}
	if party.ID == "" || party.Address == "" {
		return nil, &DownstreamError{Op: op, StatusCode: resp.StatusCode(), Err: errors.New("party without id or address")}
	}

	return &party, nil
}

// CheckSufficientBalance reports whether partyID can commit amount of
// cryptoType to a p2p trade in the given direction.
func (c *Client) CheckSufficientBalance(ctx context.Context, partyID string, amount decimal.Decimal, cryptoType model.CryptoType, direction model.SellType) (bool, error) {
	const op = "check_balance"

	resp, err := c.do(ctx, op, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParams(map[string]string{
			"crypto":   string(cryptoType),
			"party_id": partyID,
			"balance":  "amount" + directionSuffix(direction),
		}).Get("/wallets/{crypto}/{party_id}/p2p/{balance}")
	})
	if err != nil {
		return false, err
	}

	var available decimal.Decimal
	if err := json.Unmarshal(resp.Body(), &available); err != nil {
		return false, &DownstreamError{Op: op, StatusCode: resp.StatusCode(), Err: fmt.Errorf("malformed balance: %w", err)}
	}

	c.logger.Debug("Checked p2p balance",
		zap.String("party_id", partyID),
		zap.String("available", available.String()),
		zap.String("required", amount.String()))

	return available.GreaterThanOrEqual(amount), nil
}

// Reserve moves amount out of the party's available p2p balance.
func (c *Client) Reserve(ctx context.Context, partyID string, amount decimal.Decimal, cryptoType model.CryptoType, direction model.SellType) error {
	return c.changeBalance(ctx, "reserve", "reduce"+directionSuffix(direction), partyID, amount, cryptoType)
}

// Release returns a previously reserved amount to the party.
func (c *Client) Release(ctx context.Context, partyID string, amount decimal.Decimal, cryptoType model.CryptoType, direction model.SellType) error {
	return c.changeBalance(ctx, "release", "increase"+directionSuffix(direction), partyID, amount, cryptoType)
}

// Settle transfers the reserved amount from fromPartyID to the recipient
// wallet and returns the chain transaction hash.
func (c *Client) Settle(ctx context.Context, fromPartyID, recipient string, amount decimal.Decimal, cryptoType model.CryptoType) (*Settlement, error) {
	const op = "settle"

	resp, err := c.do(ctx, op, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("crypto", string(cryptoType)).
			SetBody(transferRequest{WalletID: fromPartyID, Recipient: recipient, Amount: amount}).
			Post("/transfer/{crypto}/from_p2p")
	})
	if err != nil {
		return nil, err
	}

	var out transferResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &DownstreamError{Op: op, StatusCode: resp.StatusCode(), Err: fmt.Errorf("malformed transfer: %w", err)}
	}

	if raw, err := hexutil.Decode(out.Hash); err != nil || len(raw) != 32 {
		return nil, &DownstreamError{Op: op, StatusCode: resp.StatusCode(), Err: fmt.Errorf("invalid transaction hash %q", out.Hash)}
	}

	settledAt, err := time.Parse(time.RFC3339Nano, out.Time)
	if err != nil {
		return nil, &DownstreamError{Op: op, StatusCode: resp.StatusCode(), Err: fmt.Errorf("invalid settlement time %q: %w", out.Time, err)}
	}

	c.logger.Info("Settled p2p transfer",
		zap.String("from_party_id", fromPartyID),
		zap.String("recipient", recipient),
		zap.String("amount", amount.String()),
		zap.String("hash", out.Hash))

	return &Settlement{Hash: strings.ToLower(out.Hash), Time: settledAt.UTC()}, nil
}

func (c *Client) changeBalance(ctx context.Context, op, endpoint, partyID string, amount decimal.Decimal, cryptoType model.CryptoType) error {
	_, err := c.do(ctx, op, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("endpoint", endpoint).
			SetBody(balanceChangeRequest{WalletID: partyID, Amount: amount, CurrencyType: string(cryptoType)}).
			Post("/wallets/p2p/{endpoint}")
	})
	if err != nil {
		return err
	}

	c.logger.Info("Changed p2p balance",
		zap.String("op", op),
		zap.String("party_id", partyID),
		zap.String("amount", amount.String()),
		zap.String("crypto_type", string(cryptoType)))
	return nil
}

// do runs one request through the circuit breaker. Transport errors and 5xx
// responses count as breaker failures; any non-2xx response is returned as a
// *DownstreamError.
func (c *Client) do(ctx context.Context, op string, send func(r *resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		resp, err := send(c.http.R().SetContext(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return nil, &DownstreamError{Op: op, StatusCode: resp.StatusCode(), Body: resp.String()}
		}
		return resp, nil
	})
	if err != nil {
		var downstream *DownstreamError
		if errors.As(err, &downstream) {
			return nil, downstream
		}
		return nil, &DownstreamError{Op: op, Err: err}
	}

	resp := res.(*resty.Response)
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &DownstreamError{Op: op, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return resp, nil
}

func isStatus(err error, status int) bool {
	var downstream *DownstreamError
	return errors.As(err, &downstream) && downstream.StatusCode == status
}

func directionSuffix(direction model.SellType) string {
	if direction == model.SellTypeBuy {
		return "ToBuy"
	}
	return "ToSell"
}
