// Package models contains the core data types shared across the engine.
package models

import "time"

// Exchange represents a market exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
	NFO Exchange = "NFO"
	MCX Exchange = "MCX"
)

// SegmentKind classifies a symbol's instrument segment.
type SegmentKind string

const (
	SegmentIndex     SegmentKind = "INDEX"
	SegmentStock     SegmentKind = "STOCK"
	SegmentCommodity SegmentKind = "COMMODITY"
)

// MarketStatus represents the current market session phase.
type MarketStatus string

const (
	MarketPreOpen MarketStatus = "PRE_OPEN"
	MarketOpen    MarketStatus = "OPEN"
	MarketClosed  MarketStatus = "CLOSED"
)

// Symbol is immutable reference data for a tradable underlying.
type Symbol struct {
	Name     string
	Exchange Exchange
	Segment  SegmentKind
	LotSize  int
	TickSize float64
}

// Expiry identifies one expiry date of a symbol's option series.
type Expiry struct {
	Symbol string
	Date   time.Time
}

// ChainKey identifies one symbol+expiry option chain.
type ChainKey struct {
	Symbol string
	Expiry time.Time
}

// String renders the key in the symbol|YYYY-MM-DD form used for cache
// and single-flight keying.
func (k ChainKey) String() string {
	return k.Symbol + "|" + k.Expiry.Format("2006-01-02")
}

// SpotQuote is the underlying's live quote.
type SpotQuote struct {
	Symbol        string
	LTP           float64
	PreviousClose float64
	Change        float64
	ChangePercent float64
	Volume        int64
	Timestamp     time.Time
}

// OptionSideQuote holds one side (call or put) of a raw strike quote.
type OptionSideQuote struct {
	LTP    float64
	Bid    float64
	Ask    float64
	Volume int64
	OI     int64
	// IV is the quoted implied volatility as a decimal (0.18 = 18%).
	// Zero means the venue did not supply one.
	IV float64
}

// StrikeQuote is the raw per-strike input from the quote source.
// It is never mutated downstream of the source.
type StrikeQuote struct {
	Strike float64
	Call   OptionSideQuote
	Put    OptionSideQuote
}
