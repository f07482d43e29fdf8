package quotes

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"optionstream/internal/errors"
	"optionstream/internal/models"
	"optionstream/internal/resilience"
	"optionstream/pkg/utils"
)

// spotInstruments maps index symbols to their Kite spot instrument
// names, which differ from the derivative underlying names.
var spotInstruments = map[string]string{
	"NIFTY":      "NSE:NIFTY 50",
	"BANKNIFTY":  "NSE:NIFTY BANK",
	"FINNIFTY":   "NSE:NIFTY FIN SERVICE",
	"MIDCPNIFTY": "NSE:NIFTY MID SELECT",
	"SENSEX":     "BSE:SENSEX",
}

// quoteBatchSize is the number of instruments per GetQuote call; the
// Kite API caps a single call at 500.
const quoteBatchSize = 200

// KiteConfig holds Kite Connect source configuration.
type KiteConfig struct {
	APIKey      string
	AccessToken string
	// RequestsPerSecond throttles outbound API calls. Kite enforces 3
	// req/s per app on the quote endpoints.
	RequestsPerSecond float64
	// InstrumentTTL bounds the instrument dump cache. The dump changes
	// once a day before market open.
	InstrumentTTL time.Duration
}

// KiteSource implements QuoteSource against Zerodha Kite Connect.
type KiteSource struct {
	client  *kiteconnect.Client
	limiter *rate.Limiter
	retry   utils.RetryConfig
	breaker *resilience.Breaker
	log     zerolog.Logger

	instMu      sync.RWMutex
	instruments map[string][]kiteconnect.Instrument // underlying name -> NFO/MCX derivatives
	instLoaded  time.Time
	instTTL     time.Duration
}

// NewKiteSource creates a Kite-backed quote source.
func NewKiteSource(cfg KiteConfig, log zerolog.Logger) *KiteSource {
	client := kiteconnect.New(cfg.APIKey)
	if cfg.AccessToken != "" {
		client.SetAccessToken(cfg.AccessToken)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 3
	}
	ttl := cfg.InstrumentTTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}

	retryCfg := utils.DefaultRetryConfig()
	retryCfg.RetryIf = errors.IsTransient

	return &KiteSource{
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		retry:       retryCfg,
		breaker:     resilience.NewBreaker("kite", resilience.DefaultBreakerConfig()),
		log:         log.With().Str("component", "kite_source").Logger(),
		instruments: make(map[string][]kiteconnect.Instrument),
		instTTL:     ttl,
	}
}

// SetAccessToken installs a fresh session token.
func (k *KiteSource) SetAccessToken(token string) {
	k.client.SetAccessToken(token)
}

// GetSpotPrice implements QuoteSource.
func (k *KiteSource) GetSpotPrice(ctx context.Context, symbol string) (*models.SpotQuote, error) {
	sym, ok := models.LookupSymbol(symbol)
	if !ok {
		return nil, errors.ErrUnknownSymbol
	}

	instrument, err := k.spotInstrument(ctx, sym)
	if err != nil {
		return nil, err
	}

	quotes, err := k.getQuotes(ctx, symbol, []string{instrument})
	if err != nil {
		return nil, err
	}

	q, ok := quotes[instrument]
	if !ok {
		return nil, errors.NewUpstreamError("spot_quote", symbol, true,
			fmt.Errorf("no quote returned for %s", instrument))
	}

	changePct := 0.0
	if q.OHLC.Close > 0 {
		changePct = (q.NetChange / q.OHLC.Close) * 100
	}

	return &models.SpotQuote{
		Symbol:        symbol,
		LTP:           q.LastPrice,
		PreviousClose: q.OHLC.Close,
		Change:        q.NetChange,
		ChangePercent: changePct,
		Volume:        int64(q.Volume),
		Timestamp:     q.Timestamp.Time,
	}, nil
}

// ListExpiries implements QuoteSource.
func (k *KiteSource) ListExpiries(ctx context.Context, symbol string) ([]time.Time, error) {
	sym, ok := models.LookupSymbol(symbol)
	if !ok {
		return nil, errors.ErrUnknownSymbol
	}

	derivatives, err := k.derivativesFor(ctx, sym)
	if err != nil {
		return nil, err
	}

	seen := make(map[time.Time]struct{})
	var expiries []time.Time
	for _, inst := range derivatives {
		if inst.InstrumentType != "CE" && inst.InstrumentType != "PE" {
			continue
		}
		day := truncateToDay(inst.Expiry.Time)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		expiries = append(expiries, day)
	}

	if len(expiries) == 0 {
		return nil, errors.NewDataError("expiries", symbol, "no option series listed", errors.ErrInsufficientData)
	}
	sortTimes(expiries)
	return expiries, nil
}

// GetStrikeQuotes implements QuoteSource. It resolves the option
// contracts for the expiry from the instrument dump and fetches their
// quotes in batches.
func (k *KiteSource) GetStrikeQuotes(ctx context.Context, symbol string, expiry time.Time) ([]models.StrikeQuote, error) {
	sym, ok := models.LookupSymbol(symbol)
	if !ok {
		return nil, errors.ErrUnknownSymbol
	}

	derivatives, err := k.derivativesFor(ctx, sym)
	if err != nil {
		return nil, err
	}

	type contract struct {
		strike float64
		side   string
	}
	names := make([]string, 0, 128)
	byName := make(map[string]contract, 128)

	exchange := derivativeExchange(sym)
	for _, inst := range derivatives {
		if inst.InstrumentType != "CE" && inst.InstrumentType != "PE" {
			continue
		}
		if !sameDay(inst.Expiry.Time, expiry) {
			continue
		}
		name := fmt.Sprintf("%s:%s", exchange, inst.Tradingsymbol)
		names = append(names, name)
		byName[name] = contract{strike: inst.StrikePrice, side: inst.InstrumentType}
	}

	if len(names) == 0 {
		return nil, errors.ErrUnknownExpiry
	}

	strikes := make(map[float64]*models.StrikeQuote, len(names)/2)
	for start := 0; start < len(names); start += quoteBatchSize {
		end := start + quoteBatchSize
		if end > len(names) {
			end = len(names)
		}

		quotes, err := k.getQuotes(ctx, symbol, names[start:end])
		if err != nil {
			return nil, err
		}

		for name, q := range quotes {
			c, ok := byName[name]
			if !ok {
				continue
			}

			sq, ok := strikes[c.strike]
			if !ok {
				sq = &models.StrikeQuote{Strike: c.strike}
				strikes[c.strike] = sq
			}

			side := models.OptionSideQuote{
				LTP:    q.LastPrice,
				Volume: int64(q.Volume),
				OI:     int64(q.OI),
			}
			if len(q.Depth.Buy) > 0 {
				side.Bid = q.Depth.Buy[0].Price
			}
			if len(q.Depth.Sell) > 0 {
				side.Ask = q.Depth.Sell[0].Price
			}

			if c.side == "CE" {
				sq.Call = side
			} else {
				sq.Put = side
			}
		}
	}

	out := make([]models.StrikeQuote, 0, len(strikes))
	for _, sq := range strikes {
		out = append(out, *sq)
	}
	return out, nil
}

// getQuotes wraps one rate-limited, retried GetQuote call behind the
// circuit breaker. The breaker sees the outcome after retries are
// exhausted, so one flaky call does not trip it.
func (k *KiteSource) getQuotes(ctx context.Context, symbol string, instruments []string) (kiteconnect.Quote, error) {
	if err := k.breaker.Allow(); err != nil {
		return nil, err
	}

	quotes, err := utils.RetryWithResult(ctx, k.retry, func() (kiteconnect.Quote, error) {
		if err := k.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		quotes, err := k.client.GetQuote(instruments...)
		k.log.Debug().
			Str("symbol", symbol).
			Int("instruments", len(instruments)).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("kite quote call")

		if err != nil {
			return nil, errors.NewUpstreamError("quote", symbol, true, err)
		}
		return quotes, nil
	})
	k.breaker.Record(err)
	return quotes, err
}

// BreakerStats exposes the upstream circuit breaker counters.
func (k *KiteSource) BreakerStats() resilience.BreakerStats {
	return k.breaker.Stats()
}

// SpotTokens resolves the instrument tokens of the spot instruments
// for the given underlyings, for use with SpotTicker.RegisterTokens.
func (k *KiteSource) SpotTokens(ctx context.Context, symbols []string) (map[string]uint32, error) {
	type target struct {
		exchange      string
		tradingsymbol string
	}
	wanted := make(map[string]target, len(symbols))
	exchanges := make(map[string]struct{})

	for _, symbol := range symbols {
		sym, ok := models.LookupSymbol(symbol)
		if !ok {
			return nil, errors.ErrUnknownSymbol
		}
		name, err := k.spotInstrument(ctx, sym)
		if err != nil {
			return nil, err
		}
		parts := strings.SplitN(name, ":", 2)
		if len(parts) != 2 {
			continue
		}
		wanted[symbol] = target{exchange: parts[0], tradingsymbol: parts[1]}
		exchanges[parts[0]] = struct{}{}
	}

	byInstrument := make(map[string]uint32)
	for exchange := range exchanges {
		if err := k.breaker.Allow(); err != nil {
			return nil, err
		}
		dump, err := utils.RetryWithResult(ctx, k.retry, func() ([]kiteconnect.Instrument, error) {
			if err := k.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			insts, err := k.client.GetInstrumentsByExchange(exchange)
			if err != nil {
				return nil, errors.NewUpstreamError("instruments", "", true, err)
			}
			return insts, nil
		})
		k.breaker.Record(err)
		if err != nil {
			return nil, err
		}
		for _, inst := range dump {
			byInstrument[inst.Exchange+":"+inst.Tradingsymbol] = uint32(inst.InstrumentToken)
		}
	}

	tokens := make(map[string]uint32, len(wanted))
	for symbol, t := range wanted {
		token, ok := byInstrument[t.exchange+":"+t.tradingsymbol]
		if !ok {
			return nil, errors.NewDataError("spot_token", symbol, "instrument not in dump", errors.ErrInsufficientData)
		}
		tokens[symbol] = token
	}
	return tokens, nil
}

// spotInstrument resolves the instrument name quoted for the
// underlying's spot price. Indices use their NSE/BSE index names,
// stocks trade on NSE, and commodities fall back to the nearest MCX
// future since MCX has no cash spot.
func (k *KiteSource) spotInstrument(ctx context.Context, sym models.Symbol) (string, error) {
	if name, ok := spotInstruments[sym.Name]; ok {
		return name, nil
	}
	if sym.Segment != models.SegmentCommodity {
		return fmt.Sprintf("NSE:%s", sym.Name), nil
	}

	derivatives, err := k.derivativesFor(ctx, sym)
	if err != nil {
		return "", err
	}

	var nearest *kiteconnect.Instrument
	for i := range derivatives {
		inst := &derivatives[i]
		if inst.InstrumentType != "FUT" || inst.Expiry.Time.Before(time.Now()) {
			continue
		}
		if nearest == nil || inst.Expiry.Time.Before(nearest.Expiry.Time) {
			nearest = inst
		}
	}
	if nearest == nil {
		return "", errors.NewDataError("spot", sym.Name, "no live future contract", errors.ErrInsufficientData)
	}
	return fmt.Sprintf("MCX:%s", nearest.Tradingsymbol), nil
}

// derivativesFor returns the cached derivative instruments for an
// underlying, refreshing the dump when it is stale.
func (k *KiteSource) derivativesFor(ctx context.Context, sym models.Symbol) ([]kiteconnect.Instrument, error) {
	k.instMu.RLock()
	fresh := time.Since(k.instLoaded) < k.instTTL
	insts := k.instruments[sym.Name]
	k.instMu.RUnlock()

	if fresh && len(insts) > 0 {
		return insts, nil
	}

	if err := k.refreshInstruments(ctx); err != nil {
		// Serve a stale dump over failing outright.
		if len(insts) > 0 {
			return insts, nil
		}
		return nil, err
	}

	k.instMu.RLock()
	insts = k.instruments[sym.Name]
	k.instMu.RUnlock()

	if len(insts) == 0 {
		return nil, errors.ErrUnknownSymbol
	}
	return insts, nil
}

func (k *KiteSource) refreshInstruments(ctx context.Context) error {
	if err := k.breaker.Allow(); err != nil {
		return err
	}

	dumps, err := utils.RetryWithResult(ctx, k.retry, func() ([]kiteconnect.Instrument, error) {
		if err := k.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		nfo, err := k.client.GetInstrumentsByExchange(string(models.NFO))
		if err != nil {
			return nil, errors.NewUpstreamError("instruments", "", true, err)
		}
		mcx, err := k.client.GetInstrumentsByExchange(string(models.MCX))
		if err != nil {
			return nil, errors.NewUpstreamError("instruments", "", true, err)
		}
		return append(nfo, mcx...), nil
	})
	k.breaker.Record(err)
	if err != nil {
		return err
	}

	byName := make(map[string][]kiteconnect.Instrument)
	for _, inst := range dumps {
		if inst.Name == "" {
			continue
		}
		byName[inst.Name] = append(byName[inst.Name], inst)
	}

	k.instMu.Lock()
	k.instruments = byName
	k.instLoaded = time.Now()
	k.instMu.Unlock()

	k.log.Info().Int("instruments", len(dumps)).Msg("instrument dump refreshed")
	return nil
}

func derivativeExchange(sym models.Symbol) models.Exchange {
	if sym.Segment == models.SegmentCommodity {
		return models.MCX
	}
	return models.NFO
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sortTimes(ts []time.Time) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].Before(ts[j-1]); j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

var _ QuoteSource = (*KiteSource)(nil)
