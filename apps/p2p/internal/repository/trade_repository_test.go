package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"p2p/apps/p2p/internal/model"
)

var tradeColumnNames = []string{
	"id", "seller_wallet", "buyer_wallet", "seller_email", "buyer_email", "seller_ledger_id", "initiator",
	"amount", "price", "fiat_amount", "crypto_type", "fiat_type", "sell_type", "status",
	"created_at", "updated_at", "closed_on", "hash",
}

func newMockTradeRepository(t *testing.T) (*TradeRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTradeRepository(db, zap.NewNop()), mock
}

func tradeRow(status model.TransactionStatus, hash any) *sqlmock.Rows {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var closedOn any
	if hash != nil {
		closedOn = now
	}
	return sqlmock.NewRows(tradeColumnNames).AddRow(
		"5f0e7a2c-8a5e-4a6f-9c53-0b5f2d1c9e11", "0xseller", "0xbuyer", "seller@example.com", "buyer@example.com",
		"ledger-seller", "seller@example.com", "1.5", "30000.1234", "45000.1851", "eth", "kzt", "sell",
		string(status), now, now, closedOn, hash,
	)
}

func TestGetTradeByID(t *testing.T) {
	repo, mock := newMockTradeRepository(t)

	mock.ExpectQuery("SELECT (.+) FROM trades WHERE id = ").
		WithArgs("known").
		WillReturnRows(tradeRow(model.StatusOnPaymentWait, nil))
	mock.ExpectQuery("SELECT (.+) FROM trades WHERE id = ").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	trade, err := repo.GetTradeByID(context.Background(), "known")
	require.NoError(t, err)
	require.NotNil(t, trade)
	require.Equal(t, model.StatusOnPaymentWait, trade.Status)
	require.True(t, decimal.RequireFromString("45000.1851").Equal(trade.FiatAmount))
	require.Equal(t, model.CryptoETH, trade.CryptoType)
	require.Nil(t, trade.ClosedOn)
	require.Nil(t, trade.Hash)

	trade, err = repo.GetTradeByID(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, trade)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTradeIfStatus(t *testing.T) {
	hash := "0xabc"
	patch := model.TradePatch{
		Status:    model.StatusSuccess,
		Hash:      &hash,
		UpdatedAt: time.Now(),
	}

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "applied",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE trades SET").WillReturnRows(tradeRow(model.StatusSuccess, hash))
			},
		},
		{
			name: "status moved on",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE trades SET").WillReturnError(sql.ErrNoRows)
				mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
			},
			wantErr: ErrStatusConflict,
		},
		{
			name: "unknown trade",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE trades SET").WillReturnError(sql.ErrNoRows)
				mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
			},
			wantErr: ErrTradeNotFound,
		},
		{
			name: "hash already used",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE trades SET").WillReturnError(&pq.Error{Code: uniqueViolation})
			},
			wantErr: ErrDuplicateHash,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockTradeRepository(t)
			tt.setup(mock)

			trade, err := repo.UpdateTradeIfStatus(context.Background(), "id", model.StatusOnApprove, patch)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Nil(t, trade)
			} else {
				require.NoError(t, err)
				require.Equal(t, model.StatusSuccess, trade.Status)
				require.NotNil(t, trade.Hash)
				require.Equal(t, hash, *trade.Hash)
				require.NotNil(t, trade.ClosedOn)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetTradesByEmail(t *testing.T) {
	repo, mock := newMockTradeRepository(t)

	rows := tradeRow(model.StatusOnPaymentWait, nil)
	mock.ExpectQuery("SELECT (.+) FROM trades WHERE lower\\(buyer_email\\)").
		WithArgs("buyer@example.com", 0, 10).
		WillReturnRows(rows)

	trades, err := repo.GetTradesByEmail(context.Background(), "buyer@example.com", 0, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, "buyer@example.com", trades[0].BuyerEmail)
	require.NoError(t, mock.ExpectationsWereMet())
}
