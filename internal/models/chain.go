package models

import "time"

// Moneyness classifies a strike relative to the spot price.
type Moneyness string

const (
	ITM Moneyness = "ITM"
	ATM Moneyness = "ATM"
	OTM Moneyness = "OTM"
)

// Greeks holds Black-Scholes sensitivities for one option contract.
// Theta is per calendar day; Vega and Rho are per 1% move.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
	IV    float64 `json:"iv"`
}

// OptionChainSide is the derived per-strike data for one option side.
// Greeks is nil when neither a quoted IV nor a usable premium was
// available to derive one.
type OptionChainSide struct {
	LTP       float64   `json:"ltp"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Volume    int64     `json:"volume"`
	OI        int64     `json:"oi"`
	Moneyness Moneyness `json:"moneyness"`
	Greeks    *Greeks   `json:"greeks,omitempty"`
}

// OptionChainRow is one derived strike of an option chain.
type OptionChainRow struct {
	Strike float64         `json:"strike"`
	Call   OptionChainSide `json:"call"`
	Put    OptionChainSide `json:"put"`
}

// OptionChainView is the fully derived chain for one symbol+expiry.
// A view is immutable once built; recomputation replaces it wholesale.
// Rows are sorted by strike, strictly ascending.
type OptionChainView struct {
	Symbol    string           `json:"symbol"`
	Expiry    time.Time        `json:"expiry"`
	SpotPrice float64          `json:"spot_price"`
	Rows      []OptionChainRow `json:"rows"`

	ATMStrike     float64 `json:"atm_strike"`
	MaxPainStrike float64 `json:"max_pain_strike"`

	// PCR values are nil when the call-side denominator is zero.
	PCROI     *float64 `json:"pcr_oi"`
	PCRVolume *float64 `json:"pcr_volume"`

	TotalCallOI     int64 `json:"total_call_oi"`
	TotalPutOI      int64 `json:"total_put_oi"`
	TotalCallVolume int64 `json:"total_call_volume"`
	TotalPutVolume  int64 `json:"total_put_volume"`

	// SkippedRows counts malformed input quotes discarded during the build.
	SkippedRows int       `json:"skipped_rows"`
	ComputedAt  time.Time `json:"computed_at"`
}

// Key returns the chain key of the view.
func (v *OptionChainView) Key() ChainKey {
	return ChainKey{Symbol: v.Symbol, Expiry: v.Expiry}
}

// Row returns the row at the given strike, or nil.
func (v *OptionChainView) Row(strike float64) *OptionChainRow {
	for i := range v.Rows {
		if v.Rows[i].Strike == strike {
			return &v.Rows[i]
		}
	}
	return nil
}

// Summary is the aggregate slice of a view served by the REST layer and
// persisted to the analytics journal.
type Summary struct {
	Symbol        string    `json:"symbol"`
	Expiry        time.Time `json:"expiry"`
	SpotPrice     float64   `json:"spot_price"`
	ATMStrike     float64   `json:"atm_strike"`
	MaxPainStrike float64   `json:"max_pain_strike"`
	PCROI         *float64  `json:"pcr_oi"`
	PCRVolume     *float64  `json:"pcr_volume"`
	TotalCallOI   int64     `json:"total_call_oi"`
	TotalPutOI    int64     `json:"total_put_oi"`
	ComputedAt    time.Time `json:"computed_at"`
}

// Summarize extracts the aggregate summary of a view.
func (v *OptionChainView) Summarize() Summary {
	return Summary{
		Symbol:        v.Symbol,
		Expiry:        v.Expiry,
		SpotPrice:     v.SpotPrice,
		ATMStrike:     v.ATMStrike,
		MaxPainStrike: v.MaxPainStrike,
		PCROI:         v.PCROI,
		PCRVolume:     v.PCRVolume,
		TotalCallOI:   v.TotalCallOI,
		TotalPutOI:    v.TotalPutOI,
		ComputedAt:    v.ComputedAt,
	}
}
