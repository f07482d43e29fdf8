package quotes

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"optionstream/internal/errors"
	"optionstream/internal/models"
)

// basePrices seeds the synthetic source with plausible spot levels.
var basePrices = map[string]float64{
	"NIFTY":      24800,
	"BANKNIFTY":  51200,
	"FINNIFTY":   23900,
	"MIDCPNIFTY": 12900,
	"SENSEX":     81500,
	"RELIANCE":   2950,
	"TCS":        4100,
	"GOLD":       72400,
}

const defaultBasePrice = 1000

// MockSource is a synthetic QuoteSource for tests and paper mode. It
// generates a plausible chain around a drifting spot price; strikes,
// OI shape and premiums are deterministic for a fixed seed.
type MockSource struct {
	mu      sync.Mutex
	rng     *rand.Rand
	spots   map[string]float64
	fail    map[string]error
	latency time.Duration
}

// NewMockSource creates a synthetic source.
func NewMockSource(seed int64) *MockSource {
	return &MockSource{
		rng:   rand.New(rand.NewSource(seed)),
		spots: make(map[string]float64),
		fail:  make(map[string]error),
	}
}

// FailWith makes every call for symbol return err until cleared with a
// nil err. Tests use this to exercise failure isolation.
func (m *MockSource) FailWith(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, symbol)
		return
	}
	m.fail[symbol] = err
}

// SetLatency adds an artificial delay to every call.
func (m *MockSource) SetLatency(d time.Duration) {
	m.mu.Lock()
	m.latency = d
	m.mu.Unlock()
}

func (m *MockSource) checkSymbol(ctx context.Context, symbol string) (models.Symbol, error) {
	m.mu.Lock()
	err := m.fail[symbol]
	latency := m.latency
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return models.Symbol{}, ctx.Err()
		}
	}
	if err != nil {
		return models.Symbol{}, err
	}

	sym, ok := models.LookupSymbol(symbol)
	if !ok {
		return models.Symbol{}, errors.ErrUnknownSymbol
	}
	return sym, nil
}

// spot returns the current synthetic spot, applying a small random walk
// per call.
func (m *MockSource) spot(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.spots[symbol]
	if !ok {
		s = basePrices[symbol]
		if s == 0 {
			s = defaultBasePrice
		}
	}
	s *= 1 + (m.rng.Float64()-0.5)*0.002
	m.spots[symbol] = s
	return s
}

// GetSpotPrice implements QuoteSource.
func (m *MockSource) GetSpotPrice(ctx context.Context, symbol string) (*models.SpotQuote, error) {
	if _, err := m.checkSymbol(ctx, symbol); err != nil {
		return nil, err
	}

	s := m.spot(symbol)
	prev := s * 0.995
	return &models.SpotQuote{
		Symbol:        symbol,
		LTP:           s,
		PreviousClose: prev,
		Change:        s - prev,
		ChangePercent: (s - prev) / prev * 100,
		Volume:        1_000_000,
		Timestamp:     time.Now(),
	}, nil
}

// ListExpiries implements QuoteSource: the next four weekly expiries
// from today, on Thursdays.
func (m *MockSource) ListExpiries(ctx context.Context, symbol string) ([]time.Time, error) {
	if _, err := m.checkSymbol(ctx, symbol); err != nil {
		return nil, err
	}

	now := time.Now()
	next := truncateToDay(now)
	for next.Weekday() != time.Thursday {
		next = next.AddDate(0, 0, 1)
	}

	expiries := make([]time.Time, 4)
	for i := range expiries {
		expiries[i] = next.AddDate(0, 0, 7*i)
	}
	return expiries, nil
}

// GetStrikeQuotes implements QuoteSource: 21 strikes centered on the
// spot with an OI peak near the money.
func (m *MockSource) GetStrikeQuotes(ctx context.Context, symbol string, expiry time.Time) ([]models.StrikeQuote, error) {
	if _, err := m.checkSymbol(ctx, symbol); err != nil {
		return nil, err
	}

	expiries, err := m.ListExpiries(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !ContainsExpiry(expiries, expiry) {
		return nil, errors.ErrUnknownExpiry
	}

	spot := m.spot(symbol)
	step := strikeStep(spot)
	atm := math.Round(spot/step) * step

	quotes := make([]models.StrikeQuote, 0, 21)
	for i := -10; i <= 10; i++ {
		strike := atm + float64(i)*step
		if strike <= 0 {
			continue
		}

		dist := math.Abs(float64(i))
		oi := int64(500_000 / (1 + dist))
		vol := oi / 4

		callIntrinsic := math.Max(0, spot-strike)
		putIntrinsic := math.Max(0, strike-spot)
		timeValue := step * 0.4 / (1 + dist*0.3)

		quotes = append(quotes, models.StrikeQuote{
			Strike: strike,
			Call: models.OptionSideQuote{
				LTP:    callIntrinsic + timeValue,
				Bid:    callIntrinsic + timeValue*0.98,
				Ask:    callIntrinsic + timeValue*1.02,
				Volume: vol,
				OI:     oi,
				IV:     0.15 + dist*0.005,
			},
			Put: models.OptionSideQuote{
				LTP:    putIntrinsic + timeValue,
				Bid:    putIntrinsic + timeValue*0.98,
				Ask:    putIntrinsic + timeValue*1.02,
				Volume: vol,
				OI:     oi + int64(float64(oi)*0.1),
				IV:     0.16 + dist*0.005,
			},
		})
	}
	return quotes, nil
}

// strikeStep picks a strike spacing appropriate to the price level.
func strikeStep(spot float64) float64 {
	switch {
	case spot >= 40000:
		return 100
	case spot >= 10000:
		return 50
	case spot >= 2000:
		return 20
	case spot >= 500:
		return 10
	default:
		return 5
	}
}

var _ QuoteSource = (*MockSource)(nil)
