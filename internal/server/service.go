// Package server hosts the HTTP/WebSocket surface and the chain
// service that ties the quote source, analytics engine, snapshot cache
// and journal together.
package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"optionstream/internal/analytics"
	"optionstream/internal/cache"
	"optionstream/internal/errors"
	"optionstream/internal/models"
	"optionstream/internal/quotes"
	"optionstream/internal/signals"
	"optionstream/internal/store"
)

// ChainService produces option-chain views on demand: expiry
// resolution, quote fetch, analytics build, all behind the snapshot
// cache so concurrent interest in one chain computes once.
type ChainService struct {
	source  quotes.QuoteSource
	engine  *analytics.Engine
	cache   *cache.Cache
	journal *store.Journal
	log     zerolog.Logger

	now func() time.Time
}

// NewChainService creates the service. journal may be nil when
// persistence is disabled.
func NewChainService(source quotes.QuoteSource, engine *analytics.Engine, c *cache.Cache, journal *store.Journal, log zerolog.Logger) *ChainService {
	return &ChainService{
		source:  source,
		engine:  engine,
		cache:   c,
		journal: journal,
		log:     log.With().Str("component", "chain_service").Logger(),
		now:     time.Now,
	}
}

// BuildView implements stream.ViewSource: the nearest-expiry chain for
// a symbol.
func (s *ChainService) BuildView(ctx context.Context, symbol string) (*models.OptionChainView, error) {
	expiry, err := s.ResolveExpiry(ctx, symbol, time.Time{})
	if err != nil {
		return nil, err
	}
	return s.BuildViewAt(ctx, symbol, expiry)
}

// BuildViewAt returns the cached or freshly computed chain for one
// symbol+expiry.
func (s *ChainService) BuildViewAt(ctx context.Context, symbol string, expiry time.Time) (*models.OptionChainView, error) {
	if _, ok := models.LookupSymbol(symbol); !ok {
		return nil, errors.ErrUnknownSymbol
	}

	key := models.ChainKey{Symbol: symbol, Expiry: expiry}
	return s.cache.GetOrBuild(ctx, key, func(ctx context.Context) (*models.OptionChainView, error) {
		return s.computeView(ctx, symbol, expiry)
	})
}

// ResolveExpiry validates a requested expiry against the listed
// series, or picks the nearest one when requested is zero.
func (s *ChainService) ResolveExpiry(ctx context.Context, symbol string, requested time.Time) (time.Time, error) {
	expiries, err := s.source.ListExpiries(ctx, symbol)
	if err != nil {
		return time.Time{}, err
	}

	if requested.IsZero() {
		return quotes.NearestExpiry(expiries, s.now())
	}
	if !quotes.ContainsExpiry(expiries, requested) {
		return time.Time{}, errors.ErrUnknownExpiry
	}
	return requested, nil
}

// ListExpiries returns the available expiries for a symbol.
func (s *ChainService) ListExpiries(ctx context.Context, symbol string) ([]time.Time, error) {
	if _, ok := models.LookupSymbol(symbol); !ok {
		return nil, errors.ErrUnknownSymbol
	}
	return s.source.ListExpiries(ctx, symbol)
}

// StaleView returns the last good view for a symbol+expiry when a
// fresh build fails, within the cache's stale grace window.
func (s *ChainService) StaleView(symbol string, expiry time.Time) (*models.OptionChainView, bool) {
	view, stale, err := s.cache.GetAllowStale(models.ChainKey{Symbol: symbol, Expiry: expiry})
	if err != nil {
		return nil, false
	}
	return view, stale
}

// computeView does one full upstream fetch and analytics build.
func (s *ChainService) computeView(ctx context.Context, symbol string, expiry time.Time) (*models.OptionChainView, error) {
	start := s.now()

	spot, err := s.source.GetSpotPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	strikes, err := s.source.GetStrikeQuotes(ctx, symbol, expiry)
	if err != nil {
		return nil, err
	}

	view, err := s.engine.BuildView(analytics.ViewInput{
		Symbol:    symbol,
		Expiry:    expiry,
		SpotPrice: spot.LTP,
		Quotes:    strikes,
		Now:       s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("symbol", symbol).
		Time("expiry", expiry).
		Int("rows", len(view.Rows)).
		Int("skipped", view.SkippedRows).
		Dur("elapsed", time.Since(start)).
		Msg("chain view computed")

	if s.journal != nil {
		s.journal.Record(view)
	}
	return view, nil
}

// Evaluate derives the signal bundle for a view.
func (s *ChainService) Evaluate(view *models.OptionChainView) signals.Signal {
	return signals.Evaluate(view)
}

// CacheStats exposes the snapshot cache counters for the stats
// endpoint.
func (s *ChainService) CacheStats() cache.Stats {
	return s.cache.Stats()
}
