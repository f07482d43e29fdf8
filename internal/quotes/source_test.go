package quotes

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"optionstream/internal/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNearestExpiry(t *testing.T) {
	expiries := []time.Time{
		date(2026, 9, 3),
		date(2026, 8, 27),
		date(2026, 9, 10),
	}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before all", date(2026, 8, 20), date(2026, 8, 27)},
		{"on an expiry day", date(2026, 8, 27), date(2026, 8, 27)},
		{"between expiries", date(2026, 9, 1), date(2026, 9, 3)},
		{"intraday on expiry", time.Date(2026, 9, 3, 15, 0, 0, 0, time.UTC), date(2026, 9, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NearestExpiry(expiries, tt.now)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("NearestExpiry = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNearestExpiryAllPast(t *testing.T) {
	expiries := []time.Time{date(2026, 1, 29), date(2026, 2, 26)}
	if _, err := NearestExpiry(expiries, date(2026, 8, 28)); !stderrors.Is(err, errors.ErrUnknownExpiry) {
		t.Errorf("err = %v, want ErrUnknownExpiry", err)
	}
	if _, err := NearestExpiry(nil, date(2026, 8, 28)); !stderrors.Is(err, errors.ErrUnknownExpiry) {
		t.Errorf("empty list err = %v, want ErrUnknownExpiry", err)
	}
}

func TestContainsExpiry(t *testing.T) {
	expiries := []time.Time{date(2026, 9, 3), date(2026, 9, 10)}

	if !ContainsExpiry(expiries, time.Date(2026, 9, 3, 14, 30, 0, 0, time.UTC)) {
		t.Error("same calendar day should match regardless of clock time")
	}
	if ContainsExpiry(expiries, date(2026, 9, 4)) {
		t.Error("unlisted day should not match")
	}
}

func TestMockSourceSpotAndChain(t *testing.T) {
	src := NewMockSource(42)
	ctx := context.Background()

	spot, err := src.GetSpotPrice(ctx, "NIFTY")
	if err != nil {
		t.Fatal(err)
	}
	if spot.LTP <= 0 {
		t.Fatalf("spot LTP = %v", spot.LTP)
	}

	expiries, err := src.ListExpiries(ctx, "NIFTY")
	if err != nil {
		t.Fatal(err)
	}
	if len(expiries) != 4 {
		t.Fatalf("expiries = %d, want 4", len(expiries))
	}
	for _, e := range expiries {
		if e.Weekday() != time.Thursday {
			t.Errorf("expiry %v is not a Thursday", e)
		}
	}

	quotes, err := src.GetStrikeQuotes(ctx, "NIFTY", expiries[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(quotes) == 0 {
		t.Fatal("no strike quotes")
	}
	for _, q := range quotes {
		if q.Strike <= 0 {
			t.Errorf("non-positive strike %v", q.Strike)
		}
		if q.Call.OI < 0 || q.Put.OI < 0 {
			t.Errorf("negative OI at strike %v", q.Strike)
		}
		if q.Call.IV <= 0 || q.Put.IV <= 0 {
			t.Errorf("missing IV at strike %v", q.Strike)
		}
	}
}

func TestMockSourceUnknownSymbol(t *testing.T) {
	src := NewMockSource(1)
	if _, err := src.GetSpotPrice(context.Background(), "NOSUCH"); !stderrors.Is(err, errors.ErrUnknownSymbol) {
		t.Errorf("err = %v, want ErrUnknownSymbol", err)
	}
}

func TestMockSourceUnknownExpiry(t *testing.T) {
	src := NewMockSource(1)
	past := date(2020, 1, 2)
	if _, err := src.GetStrikeQuotes(context.Background(), "NIFTY", past); !stderrors.Is(err, errors.ErrUnknownExpiry) {
		t.Errorf("err = %v, want ErrUnknownExpiry", err)
	}
}

func TestMockSourceFailureInjection(t *testing.T) {
	src := NewMockSource(1)
	want := errors.NewUpstreamError("spot_quote", "NIFTY", true, stderrors.New("injected"))
	src.FailWith("NIFTY", want)

	if _, err := src.GetSpotPrice(context.Background(), "NIFTY"); !stderrors.Is(err, errors.ErrUpstreamUnavailable) {
		t.Errorf("err = %v, want injected upstream error", err)
	}

	// Other symbols keep working.
	if _, err := src.GetSpotPrice(context.Background(), "BANKNIFTY"); err != nil {
		t.Errorf("unrelated symbol failed: %v", err)
	}

	src.FailWith("NIFTY", nil)
	if _, err := src.GetSpotPrice(context.Background(), "NIFTY"); err != nil {
		t.Errorf("cleared failure still fails: %v", err)
	}
}

func TestStrikeStepScalesWithPrice(t *testing.T) {
	tests := []struct {
		spot float64
		want float64
	}{
		{51200, 100},
		{24800, 50},
		{2950, 20},
		{720, 10},
		{95, 5},
	}
	for _, tt := range tests {
		if got := strikeStep(tt.spot); got != tt.want {
			t.Errorf("strikeStep(%v) = %v, want %v", tt.spot, got, tt.want)
		}
	}
}
