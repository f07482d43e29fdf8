package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"optionstream/internal/analytics"
	"optionstream/internal/cache"
	"optionstream/internal/errors"
	"optionstream/internal/models"
	"optionstream/internal/quotes"
)

// countingSource wraps a QuoteSource and counts upstream fetches.
type countingSource struct {
	quotes.QuoteSource
	spotCalls  atomic.Int64
	chainCalls atomic.Int64
}

func (c *countingSource) GetSpotPrice(ctx context.Context, symbol string) (*models.SpotQuote, error) {
	c.spotCalls.Add(1)
	return c.QuoteSource.GetSpotPrice(ctx, symbol)
}

func (c *countingSource) GetStrikeQuotes(ctx context.Context, symbol string, expiry time.Time) ([]models.StrikeQuote, error) {
	c.chainCalls.Add(1)
	return c.QuoteSource.GetStrikeQuotes(ctx, symbol, expiry)
}

func newTestService(t *testing.T, ttl time.Duration) (*ChainService, *countingSource) {
	t.Helper()
	src := &countingSource{QuoteSource: quotes.NewMockSource(42)}
	svc := NewChainService(
		src,
		analytics.NewEngine(0.05),
		cache.New(cache.Config{TTL: ttl, StaleGraceMultiple: 4}),
		nil,
		zerolog.Nop(),
	)
	return svc, src
}

func TestBuildViewResolvesNearestExpiry(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)

	view, err := svc.BuildView(context.Background(), "NIFTY")
	if err != nil {
		t.Fatalf("BuildView: %v", err)
	}
	if view.Symbol != "NIFTY" {
		t.Fatalf("symbol = %q", view.Symbol)
	}
	if len(view.Rows) == 0 {
		t.Fatal("expected chain rows")
	}
	if view.Expiry.Before(time.Now().Add(-24 * time.Hour)) {
		t.Fatalf("resolved expiry %v is in the past", view.Expiry)
	}
}

func TestBuildViewServedFromCache(t *testing.T) {
	svc, src := newTestService(t, time.Minute)
	ctx := context.Background()

	first, err := svc.BuildView(ctx, "NIFTY")
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	second, err := svc.BuildView(ctx, "NIFTY")
	if err != nil {
		t.Fatalf("second build: %v", err)
	}

	if got := src.chainCalls.Load(); got != 1 {
		t.Fatalf("chain fetched %d times, want 1", got)
	}
	if first.ComputedAt != second.ComputedAt {
		t.Fatal("expected the cached view on the second call")
	}
}

func TestBuildViewUnknownSymbol(t *testing.T) {
	svc, src := newTestService(t, time.Minute)

	_, err := svc.BuildView(context.Background(), "DOGECOIN")
	if !errors.Is(err, errors.ErrUnknownSymbol) {
		t.Fatalf("err = %v, want ErrUnknownSymbol", err)
	}
	if src.chainCalls.Load() != 0 {
		t.Fatal("unknown symbol must be rejected before any upstream call")
	}
}

func TestResolveExpiryRejectsUnlisted(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)

	_, err := svc.ResolveExpiry(context.Background(), "NIFTY", time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, errors.ErrUnknownExpiry) {
		t.Fatalf("err = %v, want ErrUnknownExpiry", err)
	}
}

func TestStaleViewAfterUpstreamFailure(t *testing.T) {
	src := &countingSource{QuoteSource: quotes.NewMockSource(7)}
	mock := src.QuoteSource.(*quotes.MockSource)
	svc := NewChainService(
		src,
		analytics.NewEngine(0.05),
		cache.New(cache.Config{TTL: time.Nanosecond, StaleGraceMultiple: 1e12}),
		nil,
		zerolog.Nop(),
	)
	ctx := context.Background()

	expiry, err := svc.ResolveExpiry(ctx, "NIFTY", time.Time{})
	if err != nil {
		t.Fatalf("ResolveExpiry: %v", err)
	}
	if _, err := svc.BuildViewAt(ctx, "NIFTY", expiry); err != nil {
		t.Fatalf("warm build: %v", err)
	}

	mock.FailWith("NIFTY", errors.NewUpstreamError("quote", "NIFTY", true, errors.ErrTimeout))
	if _, err := svc.BuildViewAt(ctx, "NIFTY", expiry); err == nil {
		t.Fatal("expected rebuild to fail")
	}

	view, stale := svc.StaleView("NIFTY", expiry)
	if view == nil {
		t.Fatal("expected the last good view")
	}
	if !stale {
		t.Fatal("expected stale marker")
	}
}
