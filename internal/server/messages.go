package server

import (
	"encoding/json"
	"time"

	"optionstream/internal/errors"
	"optionstream/internal/models"
	"optionstream/internal/signals"
)

// Inbound message types accepted over the WebSocket.
const (
	MsgSubscribe      = "subscribe"
	MsgUnsubscribe    = "unsubscribe"
	MsgGetOptionChain = "get_option_chain"
	MsgPing           = "ping"
)

// Outbound event types.
const (
	EventConnectionStatus = "connection_status"
	EventSymbolUpdate     = "symbol_update"
	EventOptionChain      = "option_chain"
	EventSignal           = "signal"
	EventPong             = "pong"
	EventError            = "error"
)

// InboundMessage is the tagged union decoded from client frames.
type InboundMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
	Expiry string `json:"expiry,omitempty"`
}

// ParseExpiry decodes the optional expiry field (YYYY-MM-DD). A zero
// time means "nearest expiry".
func (m *InboundMessage) ParseExpiry() (time.Time, error) {
	if m.Expiry == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", m.Expiry)
	if err != nil {
		return time.Time{}, errors.NewValidationError("expiry", m.Expiry, "expected YYYY-MM-DD")
	}
	return t, nil
}

// OutboundMessage is the envelope for every server-to-client frame.
type OutboundMessage struct {
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorPayload carries a stable code plus a human-readable message.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectionStatusPayload greets a client after the upgrade.
type ConnectionStatusPayload struct {
	ConnectionID string              `json:"connection_id"`
	Status       string              `json:"status"`
	MarketStatus models.MarketStatus `json:"market_status"`
	Symbols      []string            `json:"symbols"`
}

// SubscriptionPayload acknowledges subscribe/unsubscribe requests.
type SubscriptionPayload struct {
	Symbol     string   `json:"symbol"`
	Subscribed bool     `json:"subscribed"`
	Symbols    []string `json:"symbols"`
}

// SymbolUpdatePayload is the periodic broadcast for one symbol.
type SymbolUpdatePayload struct {
	Chain  *models.OptionChainView `json:"chain"`
	Signal signals.Signal          `json:"signal"`
	Stale  bool                    `json:"stale,omitempty"`
}

func newOutbound(typ, symbol string, data interface{}) OutboundMessage {
	return OutboundMessage{Type: typ, Symbol: symbol, Data: data, Timestamp: time.Now()}
}

func encodeOutbound(typ, symbol string, data interface{}) ([]byte, error) {
	return json.Marshal(newOutbound(typ, symbol, data))
}

func encodeError(symbol string, err error) []byte {
	b, merr := encodeOutbound(EventError, symbol, ErrorPayload{
		Code:    errors.Code(err),
		Message: err.Error(),
	})
	if merr != nil {
		return []byte(`{"type":"error","data":{"code":"INTERNAL_ERROR","message":"encode failure"}}`)
	}
	return b
}
