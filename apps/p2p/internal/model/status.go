package model

// TransactionStatus is the lifecycle state of a trade.
type TransactionStatus string

const (
	StatusCreated       TransactionStatus = "CREATED"
	StatusOnPaymentWait TransactionStatus = "ON_PAYMENT_WAIT"
	StatusOnApprove     TransactionStatus = "ON_APPROVE"
	StatusSuccess       TransactionStatus = "SUCCESS"
	StatusExpired       TransactionStatus = "EXPIRED"
	StatusCanceled      TransactionStatus = "CANCELED"
)

// TradeEvent is an input of the trade state machine.
type TradeEvent string

const (
	EventOpen    TradeEvent = "open" // reservation placed, waiting for fiat payment
	EventApprove TradeEvent = "approve"
	EventCancel  TradeEvent = "cancel"
	EventExpire  TradeEvent = "expire"
)

// Transition is one row of the state machine table.
type Transition struct {
	From  TransactionStatus
	Event TradeEvent
	To    TransactionStatus
}

var transitions = []Transition{
	{From: StatusCreated, Event: EventOpen, To: StatusOnPaymentWait},
	{From: StatusCreated, Event: EventCancel, To: StatusCanceled},
	{From: StatusOnPaymentWait, Event: EventApprove, To: StatusOnApprove},
	{From: StatusOnPaymentWait, Event: EventCancel, To: StatusCanceled},
	{From: StatusOnPaymentWait, Event: EventExpire, To: StatusExpired},
	{From: StatusOnApprove, Event: EventApprove, To: StatusSuccess},
}

// statusCodes keeps the numeric codes of the legacy schema. Terminal exits
// sort after every state of the ordered progression they can be reached from.
var statusCodes = map[TransactionStatus]int{
	StatusCreated:       10,
	StatusOnPaymentWait: 20,
	StatusOnApprove:     30,
	StatusExpired:       40,
	StatusSuccess:       50,
	StatusCanceled:      99,
}

// Transitions returns a copy of the state machine table.
func Transitions() []Transition {
	out := make([]Transition, len(transitions))
	copy(out, transitions)
	return out
}

// NextStatus looks up the target of event from status. The second return
// value is false when the table has no such row.
func NextStatus(from TransactionStatus, event TradeEvent) (TransactionStatus, bool) {
	for _, t := range transitions {
		if t.From == from && t.Event == event {
			return t.To, true
		}
	}
	return "", false
}

// Allows reports whether event is accepted in status s.
func (s TransactionStatus) Allows(event TradeEvent) bool {
	_, ok := NextStatus(s, event)
	return ok
}

// IsTerminal returns whether no further transitions leave s.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusExpired || s == StatusCanceled
}

// IsValid returns whether s is a known status.
func (s TransactionStatus) IsValid() bool {
	_, ok := statusCodes[s]
	return ok
}

// Code returns the legacy numeric code of s, or 0 when unknown.
func (s TransactionStatus) Code() int {
	return statusCodes[s]
}
