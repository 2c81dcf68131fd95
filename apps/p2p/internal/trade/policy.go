package trade

import (
	"fmt"
	"strings"

	"p2p/apps/p2p/internal/model"
)

// CancelPolicy decides which participant may cancel a trade that has not
// entered approval yet.
type CancelPolicy string

const (
	CancelByBuyer       CancelPolicy = "buyer"
	CancelByInitiator   CancelPolicy = "initiator"
	CancelByParticipant CancelPolicy = "participant"
)

func ParseCancelPolicy(value string) (CancelPolicy, error) {
	switch policy := CancelPolicy(strings.ToLower(strings.TrimSpace(value))); policy {
	case CancelByBuyer, CancelByInitiator, CancelByParticipant:
		return policy, nil
	case "":
		return CancelByBuyer, nil
	default:
		return "", fmt.Errorf("unknown cancel policy %q", value)
	}
}

func (p CancelPolicy) Allows(trade *model.Trade, email string) bool {
	switch p {
	case CancelByInitiator:
		return trade.IsInitiator(email)
	case CancelByParticipant:
		return trade.IsParticipant(email)
	default:
		return trade.IsBuyer(email)
	}
}
