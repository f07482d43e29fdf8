package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"optionstream/internal/errors"
	"optionstream/internal/models"
	"optionstream/internal/stream"
	"optionstream/pkg/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser clients connect from separate dashboard origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler terminates WebSocket sessions: upgrade, registry
// registration, read pump for the inbound command set and a write pump
// draining the connection's bounded queue.
type WSHandler struct {
	registry *stream.Registry
	service  *ChainService
	connCfg  stream.ConnConfig
	log      zerolog.Logger
}

// NewWSHandler creates the WebSocket handler.
func NewWSHandler(registry *stream.Registry, service *ChainService, connCfg stream.ConnConfig, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		registry: registry,
		service:  service,
		connCfg:  connCfg,
		log:      log.With().Str("component", "websocket").Logger(),
	}
}

// Handle is the gin handler for GET /ws.
func (h *WSHandler) Handle(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", c.ClientIP()).Msg("websocket upgrade failed")
		return
	}

	conn := stream.NewClientConn(c.ClientIP(), h.connCfg, h.log)
	conn.OnClose = func(cc *stream.ClientConn) {
		h.registry.RemoveConnection(cc.ID)
	}
	h.registry.Register(conn)

	h.log.Info().Str("conn_id", conn.ID).Str("remote", conn.RemoteAddr).Msg("client connected")

	h.sendStatus(conn)

	go h.writePump(ws, conn)
	go h.readPump(ws, conn)
}

func (h *WSHandler) sendStatus(conn *stream.ClientConn) {
	symbols := make([]string, 0)
	for _, s := range models.AllSymbols() {
		symbols = append(symbols, s.Name)
	}
	b, err := encodeOutbound(EventConnectionStatus, "", ConnectionStatusPayload{
		ConnectionID: conn.ID,
		Status:       "connected",
		MarketStatus: utils.GetMarketStatus(time.Now()),
		Symbols:      symbols,
	})
	if err != nil {
		return
	}
	_ = conn.Send(b)
}

// readPump decodes inbound frames until the socket errors or the
// connection closes. It owns all reads on the socket.
func (h *WSHandler) readPump(ws *websocket.Conn, conn *stream.ClientConn) {
	defer func() {
		conn.Close()
		ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg InboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("conn_id", conn.ID).Msg("read error")
			}
			return
		}
		h.dispatch(conn, &msg)
	}
}

// writePump drains the outbound queue onto the socket and keeps the
// connection alive with periodic pings. It owns all writes.
func (h *WSHandler) writePump(ws *websocket.Conn, conn *stream.ClientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		ws.Close()
	}()

	for {
		select {
		case msg, ok := <-conn.Outbound():
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) dispatch(conn *stream.ClientConn, msg *InboundMessage) {
	switch msg.Type {
	case MsgSubscribe:
		h.handleSubscribe(conn, msg)
	case MsgUnsubscribe:
		h.handleUnsubscribe(conn, msg)
	case MsgGetOptionChain:
		h.handleGetChain(conn, msg)
	case MsgPing:
		h.reply(conn, EventPong, "", nil)
	default:
		h.replyErr(conn, "", errors.NewValidationError("type", msg.Type, "unknown message type"))
	}
}

func (h *WSHandler) handleSubscribe(conn *stream.ClientConn, msg *InboundMessage) {
	if !models.IsKnownSymbol(msg.Symbol) {
		h.replyErr(conn, msg.Symbol, errors.ErrUnknownSymbol)
		return
	}
	if !h.registry.Subscribe(conn.ID, msg.Symbol) {
		h.replyErr(conn, msg.Symbol, errors.ErrConnectionClosed)
		return
	}
	h.reply(conn, EventConnectionStatus, msg.Symbol, SubscriptionPayload{
		Symbol:     msg.Symbol,
		Subscribed: true,
		Symbols:    h.registry.SymbolsOf(conn.ID),
	})
}

func (h *WSHandler) handleUnsubscribe(conn *stream.ClientConn, msg *InboundMessage) {
	if !models.IsKnownSymbol(msg.Symbol) {
		h.replyErr(conn, msg.Symbol, errors.ErrUnknownSymbol)
		return
	}
	h.registry.Unsubscribe(conn.ID, msg.Symbol)
	h.reply(conn, EventConnectionStatus, msg.Symbol, SubscriptionPayload{
		Symbol:     msg.Symbol,
		Subscribed: false,
		Symbols:    h.registry.SymbolsOf(conn.ID),
	})
}

// handleGetChain serves an on-demand chain fetch over the socket. The
// build runs in the request goroutine with its own timeout so a slow
// upstream cannot wedge the read pump for other commands.
func (h *WSHandler) handleGetChain(conn *stream.ClientConn, msg *InboundMessage) {
	if !models.IsKnownSymbol(msg.Symbol) {
		h.replyErr(conn, msg.Symbol, errors.ErrUnknownSymbol)
		return
	}
	requested, err := msg.ParseExpiry()
	if err != nil {
		h.replyErr(conn, msg.Symbol, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		expiry, err := h.service.ResolveExpiry(ctx, msg.Symbol, requested)
		if err != nil {
			h.replyErr(conn, msg.Symbol, err)
			return
		}
		view, err := h.service.BuildViewAt(ctx, msg.Symbol, expiry)
		if err != nil {
			if stale, ok := h.service.StaleView(msg.Symbol, expiry); ok {
				h.reply(conn, EventOptionChain, msg.Symbol, SymbolUpdatePayload{
					Chain:  stale,
					Signal: h.service.Evaluate(stale),
					Stale:  true,
				})
				return
			}
			h.replyErr(conn, msg.Symbol, err)
			return
		}
		h.reply(conn, EventOptionChain, msg.Symbol, SymbolUpdatePayload{
			Chain:  view,
			Signal: h.service.Evaluate(view),
		})
	}()
}

func (h *WSHandler) reply(conn *stream.ClientConn, typ, symbol string, data interface{}) {
	b, err := encodeOutbound(typ, symbol, data)
	if err != nil {
		h.log.Error().Err(err).Str("type", typ).Msg("encode failed")
		return
	}
	_ = conn.Send(b)
}

func (h *WSHandler) replyErr(conn *stream.ClientConn, symbol string, err error) {
	_ = conn.Send(encodeError(symbol, err))
}
