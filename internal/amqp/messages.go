package amqp

import (
	"encoding/json"
	"time"
)

// SettlementRequestMessage asks the worker to settle a pending refund
// transaction. It carries only the ID; the worker loads the transaction from
// the database so stale message payloads cannot override stored state.
type SettlementRequestMessage struct {
	TransactionID int64     `json:"transaction_id"`
	RequestedBy   string    `json:"requested_by,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewSettlementRequestMessage(transactionID int64, requestedBy string) *SettlementRequestMessage {
	return &SettlementRequestMessage{
		TransactionID: transactionID,
		RequestedBy:   requestedBy,
		Timestamp:     time.Now(),
	}
}

func (m *SettlementRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SettlementRequestMessageFromJSON(data []byte) (*SettlementRequestMessage, error) {
	var msg SettlementRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SettlementSettledMessage announces a completed settlement to downstream
// consumers (notifications, exports).
type SettlementSettledMessage struct {
	TransactionID     int64     `json:"transaction_id"`
	OperatingBoxID    int64     `json:"operating_box_id"`
	AmountCents       int64     `json:"amount_cents"`
	BalanceAfterCents int64     `json:"balance_after_cents"`
	HistoryEntryID    string    `json:"history_entry_id"`
	Timestamp         time.Time `json:"timestamp"`
}

func (m *SettlementSettledMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SettlementSettledMessageFromJSON(data []byte) (*SettlementSettledMessage, error) {
	var msg SettlementSettledMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
