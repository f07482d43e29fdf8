package quotes

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"optionstream/internal/errors"
	"optionstream/internal/models"
)

// SpotTicker streams live spot prices over the Kite WebSocket feed and
// keeps the latest quote per underlying.
type SpotTicker struct {
	ticker *kiteticker.Ticker
	log    zerolog.Logger

	mu           sync.RWMutex
	connected    bool
	symbolTokens map[string]uint32
	tokenSymbols map[uint32]string
	watched      map[uint32]struct{}
	last         map[string]models.SpotQuote

	onSpot func(models.SpotQuote)

	// writeMu serializes websocket writes (Subscribe, SetMode).
	writeMu sync.Mutex
}

// NewSpotTicker creates a ticker client. Instrument tokens must be
// registered via RegisterTokens before watching symbols.
func NewSpotTicker(apiKey, accessToken string, log zerolog.Logger) *SpotTicker {
	t := kiteticker.New(apiKey, accessToken)
	t.SetAutoReconnect(true)
	t.SetReconnectMaxRetries(10)
	t.SetReconnectMaxDelay(30 * time.Second)

	return &SpotTicker{
		ticker:       t,
		log:          log.With().Str("component", "spot_ticker").Logger(),
		symbolTokens: make(map[string]uint32),
		tokenSymbols: make(map[uint32]string),
		watched:      make(map[uint32]struct{}),
		last:         make(map[string]models.SpotQuote),
	}
}

// RegisterTokens maps underlying symbols to their spot instrument
// tokens from the instrument dump.
func (s *SpotTicker) RegisterTokens(tokens map[string]uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for symbol, token := range tokens {
		s.symbolTokens[symbol] = token
		s.tokenSymbols[token] = symbol
	}
}

// OnSpot sets a handler invoked for every spot update.
func (s *SpotTicker) OnSpot(handler func(models.SpotQuote)) {
	s.mu.Lock()
	s.onSpot = handler
	s.mu.Unlock()
}

// Connect starts the feed and blocks until the first connection or ctx
// expiry.
func (s *SpotTicker) Connect(ctx context.Context) error {
	connected := make(chan struct{})

	s.ticker.OnConnect(func() {
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()

		select {
		case connected <- struct{}{}:
		default:
		}
		s.rewatch()
	})

	s.ticker.OnClose(func(code int, reason string) {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		s.log.Warn().Int("code", code).Str("reason", reason).Msg("spot feed closed")
	})

	s.ticker.OnError(func(err error) {
		s.log.Error().Err(err).Msg("spot feed error")
	})

	s.ticker.OnNoReconnect(func(attempt int) {
		s.log.Error().Int("attempts", attempt).Msg("spot feed gave up reconnecting")
	})

	s.ticker.OnTick(s.handleTick)

	go s.ticker.Serve()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-connected:
		return nil
	case <-time.After(30 * time.Second):
		return errors.ErrTimeout
	}
}

// Disconnect closes the feed.
func (s *SpotTicker) Disconnect() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.ticker.Close()
}

// IsConnected reports whether the feed is live.
func (s *SpotTicker) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Watch subscribes the feed to a symbol's spot token. Unknown symbols
// (no registered token) return ErrUnknownSymbol.
func (s *SpotTicker) Watch(symbol string) error {
	s.mu.Lock()
	token, ok := s.symbolTokens[symbol]
	if !ok {
		s.mu.Unlock()
		return errors.ErrUnknownSymbol
	}
	connected := s.connected
	s.watched[token] = struct{}{}
	s.mu.Unlock()

	if !connected {
		// rewatch will pick it up once the feed is up.
		return nil
	}
	return s.subscribeTokens([]uint32{token})
}

// Unwatch drops a symbol from the feed.
func (s *SpotTicker) Unwatch(symbol string) error {
	s.mu.Lock()
	token, ok := s.symbolTokens[symbol]
	if ok {
		delete(s.watched, token)
	}
	connected := s.connected
	s.mu.Unlock()

	if !ok || !connected {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ticker.Unsubscribe([]uint32{token})
}

// LastSpot returns the latest streamed quote for a symbol.
func (s *SpotTicker) LastSpot(symbol string) (models.SpotQuote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.last[symbol]
	return q, ok
}

func (s *SpotTicker) subscribeTokens(tokens []uint32) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.ticker.Subscribe(tokens); err != nil {
		return errors.NewUpstreamError("spot_subscribe", "", true, err)
	}
	if err := s.ticker.SetMode(kiteticker.ModeQuote, tokens); err != nil {
		return errors.NewUpstreamError("spot_mode", "", true, err)
	}
	return nil
}

// rewatch resubscribes every watched token after (re)connect.
func (s *SpotTicker) rewatch() {
	s.mu.RLock()
	tokens := make([]uint32, 0, len(s.watched))
	for token := range s.watched {
		tokens = append(tokens, token)
	}
	s.mu.RUnlock()

	if len(tokens) == 0 {
		return
	}
	if err := s.subscribeTokens(tokens); err != nil {
		s.log.Error().Err(err).Msg("resubscribe after reconnect failed")
	}
}

func (s *SpotTicker) handleTick(tick kitemodels.Tick) {
	s.mu.RLock()
	symbol, ok := s.tokenSymbols[tick.InstrumentToken]
	handler := s.onSpot
	s.mu.RUnlock()
	if !ok {
		return
	}

	change := tick.LastPrice - tick.OHLC.Close
	changePct := 0.0
	if tick.OHLC.Close > 0 {
		changePct = change / tick.OHLC.Close * 100
	}

	quote := models.SpotQuote{
		Symbol:        symbol,
		LTP:           tick.LastPrice,
		PreviousClose: tick.OHLC.Close,
		Change:        change,
		ChangePercent: changePct,
		Volume:        int64(tick.VolumeTraded),
		Timestamp:     tick.Timestamp.Time,
	}

	s.mu.Lock()
	s.last[symbol] = quote
	s.mu.Unlock()

	if handler != nil {
		handler(quote)
	}
}
