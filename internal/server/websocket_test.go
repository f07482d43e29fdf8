package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) OutboundMessage {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg OutboundMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func sendMsg(t *testing.T, ws *websocket.Conn, msg InboundMessage) {
	t.Helper()
	if err := ws.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWebSocketGreeting(t *testing.T) {
	s := newTestServer(t, nil)
	ws := dialWS(t, s)

	msg := readEvent(t, ws)
	if msg.Type != EventConnectionStatus {
		t.Fatalf("first frame type = %q, want %q", msg.Type, EventConnectionStatus)
	}

	raw, _ := json.Marshal(msg.Data)
	var status ConnectionStatusPayload
	if err := json.Unmarshal(raw, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.ConnectionID == "" {
		t.Fatal("expected a connection id")
	}
	if len(status.Symbols) == 0 {
		t.Fatal("expected supported symbols")
	}
}

func TestWebSocketSubscribeFlow(t *testing.T) {
	s := newTestServer(t, nil)
	ws := dialWS(t, s)
	readEvent(t, ws) // greeting

	sendMsg(t, ws, InboundMessage{Type: MsgSubscribe, Symbol: "NIFTY"})
	ack := readEvent(t, ws)
	if ack.Type != EventConnectionStatus {
		t.Fatalf("ack type = %q", ack.Type)
	}

	raw, _ := json.Marshal(ack.Data)
	var sub SubscriptionPayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !sub.Subscribed || sub.Symbol != "NIFTY" {
		t.Fatalf("ack = %+v", sub)
	}

	sendMsg(t, ws, InboundMessage{Type: MsgUnsubscribe, Symbol: "NIFTY"})
	ack = readEvent(t, ws)
	raw, _ = json.Marshal(ack.Data)
	if err := json.Unmarshal(raw, &sub); err != nil {
		t.Fatalf("decode unsub ack: %v", err)
	}
	if sub.Subscribed || len(sub.Symbols) != 0 {
		t.Fatalf("unsub ack = %+v", sub)
	}
}

func TestWebSocketPingPong(t *testing.T) {
	s := newTestServer(t, nil)
	ws := dialWS(t, s)
	readEvent(t, ws)

	sendMsg(t, ws, InboundMessage{Type: MsgPing})
	if msg := readEvent(t, ws); msg.Type != EventPong {
		t.Fatalf("type = %q, want %q", msg.Type, EventPong)
	}
}

func TestWebSocketGetOptionChain(t *testing.T) {
	s := newTestServer(t, nil)
	ws := dialWS(t, s)
	readEvent(t, ws)

	sendMsg(t, ws, InboundMessage{Type: MsgGetOptionChain, Symbol: "BANKNIFTY"})
	msg := readEvent(t, ws)
	if msg.Type != EventOptionChain {
		t.Fatalf("type = %q, want %q", msg.Type, EventOptionChain)
	}
	if msg.Symbol != "BANKNIFTY" {
		t.Fatalf("symbol = %q", msg.Symbol)
	}

	raw, _ := json.Marshal(msg.Data)
	var payload SymbolUpdatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Chain == nil || len(payload.Chain.Rows) == 0 {
		t.Fatal("expected chain rows")
	}
}

func TestWebSocketRejectsUnknownSymbol(t *testing.T) {
	s := newTestServer(t, nil)
	ws := dialWS(t, s)
	readEvent(t, ws)

	sendMsg(t, ws, InboundMessage{Type: MsgSubscribe, Symbol: "BOGUS"})
	msg := readEvent(t, ws)
	if msg.Type != EventError {
		t.Fatalf("type = %q, want %q", msg.Type, EventError)
	}

	raw, _ := json.Marshal(msg.Data)
	var perr ErrorPayload
	if err := json.Unmarshal(raw, &perr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if perr.Code != "INVALID_SYMBOL" {
		t.Fatalf("code = %q", perr.Code)
	}
}

func TestWebSocketRejectsUnknownMessageType(t *testing.T) {
	s := newTestServer(t, nil)
	ws := dialWS(t, s)
	readEvent(t, ws)

	sendMsg(t, ws, InboundMessage{Type: "shutdown"})
	msg := readEvent(t, ws)
	if msg.Type != EventError {
		t.Fatalf("type = %q, want %q", msg.Type, EventError)
	}
}
