// Package signals derives trading signals from computed option-chain
// views: PCR-based market sentiment, a conviction score, and per-option
// entry signals.
package signals

import (
	"math"
	"time"

	"optionstream/internal/models"
)

// Sentiment is the chain-level market bias read from the put/call ratio.
type Sentiment string

const (
	Bullish Sentiment = "BULLISH"
	Bearish Sentiment = "BEARISH"
	Neutral Sentiment = "NEUTRAL"
)

// Entry is a per-option entry signal.
type Entry string

const (
	Buy  Entry = "BUY"
	Sell Entry = "SELL"
	Hold Entry = "HOLD"
)

// PCR thresholds: heavy put writing (low ratio) reads bullish, heavy
// put buying (high ratio) bearish.
const (
	bullishBelow = 0.9
	bearishAbove = 1.1
)

// Profit target and stop multiples applied to the option premium.
const (
	targetMultiple = 1.4
	stopMultiple   = 0.7
)

// Signal is the per-view signal bundle broadcast alongside the chain.
type Signal struct {
	Symbol    string    `json:"symbol"`
	Expiry    time.Time `json:"expiry"`
	Sentiment Sentiment `json:"sentiment"`
	// Score is a 0-100 conviction score: highest when PCR sits at
	// equilibrium with a clear directional bias, lowest when the
	// ratios are lopsided or contradictory.
	Score     float64   `json:"score"`
	ATMStrike float64   `json:"atm_strike"`
	CallEntry Entry     `json:"call_entry"`
	PutEntry  Entry     `json:"put_entry"`
	CreatedAt time.Time `json:"created_at"`
}

// SentimentFromPCR classifies the OI put/call ratio. A nil ratio (no
// call OI) carries no directional information.
func SentimentFromPCR(pcrOI *float64) Sentiment {
	if pcrOI == nil {
		return Neutral
	}
	switch {
	case *pcrOI < bullishBelow:
		return Bullish
	case *pcrOI > bearishAbove:
		return Bearish
	default:
		return Neutral
	}
}

// ConvictionScore blends the OI and volume ratios into a 0-100 score.
// Ratios near 1.0 score high; the neutral band is discounted since it
// carries no direction to act on.
func ConvictionScore(pcrOI, pcrVolume *float64) float64 {
	if pcrOI == nil {
		return 0
	}
	blended := *pcrOI
	if pcrVolume != nil {
		blended = (*pcrOI + *pcrVolume) / 2
	}

	base := 1 - math.Abs(1-blended)
	if base < 0 {
		base = 0
	}

	multiplier := 1.0
	if SentimentFromPCR(pcrOI) == Neutral {
		multiplier = 0.5
	}
	return base * multiplier * 100
}

// SideAnalytics is the premium decomposition for one option side.
type SideAnalytics struct {
	Intrinsic  float64 `json:"intrinsic"`
	TimeValue  float64 `json:"time_value"`
	WTBPercent float64 `json:"wtb_percent"`
	WTTPercent float64 `json:"wtt_percent"`
	Target     float64 `json:"target_price"`
	StopLoss   float64 `json:"stop_loss"`
}

// AnalyzeSide decomposes an option premium into intrinsic and time
// value. WTB% ("worth to buy") is the intrinsic share of the premium,
// WTT% the time-value share.
func AnalyzeSide(spot, strike, premium float64, isCall bool) SideAnalytics {
	var intrinsic float64
	if isCall {
		intrinsic = math.Max(0, spot-strike)
	} else {
		intrinsic = math.Max(0, strike-spot)
	}
	timeValue := math.Max(0, premium-intrinsic)

	var wtb, wtt float64
	if premium > 0 {
		wtb = intrinsic / premium * 100
		wtt = timeValue / premium * 100
	}

	return SideAnalytics{
		Intrinsic:  intrinsic,
		TimeValue:  timeValue,
		WTBPercent: wtb,
		WTTPercent: wtt,
		Target:     premium * targetMultiple,
		StopLoss:   premium * stopMultiple,
	}
}

// EntrySignal rates one option: BUY when the premium is mostly
// intrinsic on a deep delta with cheap volatility, SELL when it is
// mostly time value on a shallow delta, HOLD otherwise.
func EntrySignal(delta, iv, wtbPercent float64) Entry {
	switch {
	case wtbPercent > 50 && math.Abs(delta) > 0.6 && iv < 0.3:
		return Buy
	case wtbPercent < 20 && math.Abs(delta) < 0.3:
		return Sell
	default:
		return Hold
	}
}

// Evaluate derives the signal bundle for a computed view. Entry
// signals are read at the ATM strike, the most liquid contract.
func Evaluate(view *models.OptionChainView) Signal {
	sig := Signal{
		Symbol:    view.Symbol,
		Expiry:    view.Expiry,
		Sentiment: SentimentFromPCR(view.PCROI),
		Score:     ConvictionScore(view.PCROI, view.PCRVolume),
		ATMStrike: view.ATMStrike,
		CallEntry: Hold,
		PutEntry:  Hold,
		CreatedAt: view.ComputedAt,
	}

	row := view.Row(view.ATMStrike)
	if row == nil {
		return sig
	}

	if row.Call.Greeks != nil {
		a := AnalyzeSide(view.SpotPrice, row.Strike, row.Call.LTP, true)
		sig.CallEntry = EntrySignal(row.Call.Greeks.Delta, row.Call.Greeks.IV, a.WTBPercent)
	}
	if row.Put.Greeks != nil {
		a := AnalyzeSide(view.SpotPrice, row.Strike, row.Put.LTP, false)
		sig.PutEntry = EntrySignal(row.Put.Greeks.Delta, row.Put.Greeks.IV, a.WTBPercent)
	}
	return sig
}
