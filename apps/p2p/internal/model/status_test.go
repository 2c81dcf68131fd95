package model_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"p2p/apps/p2p/internal/model"
)

var allStatuses = []model.TransactionStatus{
	model.StatusCreated,
	model.StatusOnPaymentWait,
	model.StatusOnApprove,
	model.StatusSuccess,
	model.StatusExpired,
	model.StatusCanceled,
}

var allEvents = []model.TradeEvent{
	model.EventOpen,
	model.EventApprove,
	model.EventCancel,
	model.EventExpire,
}

func TestNextStatus(t *testing.T) {
	want := map[model.TransactionStatus]map[model.TradeEvent]model.TransactionStatus{
		model.StatusCreated: {
			model.EventOpen:   model.StatusOnPaymentWait,
			model.EventCancel: model.StatusCanceled,
		},
		model.StatusOnPaymentWait: {
			model.EventApprove: model.StatusOnApprove,
			model.EventCancel:  model.StatusCanceled,
			model.EventExpire:  model.StatusExpired,
		},
		model.StatusOnApprove: {
			model.EventApprove: model.StatusSuccess,
		},
	}

	for _, from := range allStatuses {
		for _, event := range allEvents {
			t.Run(string(from)+"/"+string(event), func(t *testing.T) {
				got, ok := model.NextStatus(from, event)
				expected, allowed := want[from][event]
				require.Equal(t, allowed, ok)
				require.Equal(t, expected, got)
				require.Equal(t, allowed, from.Allows(event))
			})
		}
	}
}

func TestTransitionsNeverRegress(t *testing.T) {
	for _, tr := range model.Transitions() {
		require.False(t, tr.From.IsTerminal(), "terminal status %s has outgoing transition", tr.From)
		require.Greater(t, tr.To.Code(), tr.From.Code(), "%s -> %s regresses", tr.From, tr.To)
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range allStatuses {
		terminal := s == model.StatusSuccess || s == model.StatusExpired || s == model.StatusCanceled
		require.Equal(t, terminal, s.IsTerminal(), string(s))
		require.True(t, s.IsValid())
	}
	require.False(t, model.TransactionStatus("PENDING").IsValid())
}

func TestTransitionsReturnsCopy(t *testing.T) {
	table := model.Transitions()
	table[0].To = model.StatusSuccess

	got, ok := model.NextStatus(model.StatusCreated, model.EventOpen)
	require.True(t, ok)
	require.Equal(t, model.StatusOnPaymentWait, got)
}
