package amqp

import (
	"encoding/json"
	"time"
)

// LedgerChangeMessage announces that a commit touched the listed tables.
// Consumers re-read whatever they mirror; the message carries no rows.
type LedgerChangeMessage struct {
	Tables    []string  `json:"tables"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerChangeMessage(tables []string, now time.Time) *LedgerChangeMessage {
	return &LedgerChangeMessage{Tables: tables, Timestamp: now}
}

func (m *LedgerChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerChangeMessageFromJSON(data []byte) (*LedgerChangeMessage, error) {
	var msg LedgerChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
