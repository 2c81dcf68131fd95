package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"p2p/apps/p2p/internal/model"
)

func TestAppendStatusChangeIgnoresDuplicates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewHistoryRepository(db, zap.NewNop())

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	change := model.StatusChange{TradeID: "trade-1", Status: model.StatusOnApprove, Initiator: "seller@example.com", ChangedAt: now}

	mock.ExpectExec("INSERT INTO trade_status_history (.+) ON CONFLICT \\(trade_id, status\\) DO NOTHING").
		WithArgs("trade-1", model.StatusOnApprove, "seller@example.com", now, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO trade_status_history").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.AppendStatusChange(context.Background(), change))
	require.NoError(t, repo.AppendStatusChange(context.Background(), change))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStatusHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewHistoryRepository(db, zap.NewNop())

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM trade_status_history WHERE trade_id = ").
		WithArgs("trade-1").
		WillReturnRows(sqlmock.NewRows([]string{"trade_id", "status", "initiator", "changed_at", "hash"}).
			AddRow("trade-1", "ON_PAYMENT_WAIT", "buyer@example.com", now, nil).
			AddRow("trade-1", "SUCCESS", "buyer@example.com", now.Add(time.Minute), "0xabc"))

	history, err := repo.GetStatusHistory(context.Background(), "trade-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Nil(t, history[0].Hash)
	require.Equal(t, model.StatusSuccess, history[1].Status)
	require.Equal(t, "0xabc", *history[1].Hash)
	require.NoError(t, mock.ExpectationsWereMet())
}
