// Package quotes provides the upstream quote source boundary: the
// interface the analytics service consumes, the Kite Connect
// implementation, and a synthetic source for tests and paper mode.
package quotes

import (
	"context"
	"sort"
	"time"

	"optionstream/internal/errors"
	"optionstream/internal/models"
)

// QuoteSource supplies raw market data for one underlying. Errors are
// classified: transient upstream failures satisfy
// errors.IsTransient and may be retried; permanent ones (unknown
// symbol, no such expiry) must not be.
type QuoteSource interface {
	// GetSpotPrice returns the underlying's live quote.
	GetSpotPrice(ctx context.Context, symbol string) (*models.SpotQuote, error)
	// GetStrikeQuotes returns the raw per-strike quotes for one expiry.
	GetStrikeQuotes(ctx context.Context, symbol string, expiry time.Time) ([]models.StrikeQuote, error)
	// ListExpiries returns the available expiry dates, ascending.
	ListExpiries(ctx context.Context, symbol string) ([]time.Time, error)
}

// NearestExpiry picks the first expiry on or after now's date. Returns
// ErrUnknownExpiry when every listed expiry is in the past.
func NearestExpiry(expiries []time.Time, now time.Time) (time.Time, error) {
	if len(expiries) == 0 {
		return time.Time{}, errors.ErrUnknownExpiry
	}

	sorted := make([]time.Time, len(expiries))
	copy(sorted, expiries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, e := range sorted {
		if !e.Before(today) {
			return e, nil
		}
	}
	return time.Time{}, errors.ErrUnknownExpiry
}

// ContainsExpiry reports whether date matches one of the listed
// expiries by calendar day.
func ContainsExpiry(expiries []time.Time, date time.Time) bool {
	for _, e := range expiries {
		if sameDay(e, date) {
			return true
		}
	}
	return false
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
