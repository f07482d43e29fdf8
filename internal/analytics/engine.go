// Package analytics derives option-chain views from raw strike quotes:
// moneyness classification, put-call ratios, max pain and Greeks.
package analytics

import (
	"math"
	"sort"
	"time"

	"optionstream/internal/errors"
	"optionstream/internal/models"
)

// ViewInput is everything BuildView needs. Now is injected so that a
// view is deterministic for identical inputs.
type ViewInput struct {
	Symbol    string
	Expiry    time.Time
	SpotPrice float64
	Quotes    []models.StrikeQuote
	Now       time.Time
}

// Engine builds derived option-chain views. It is stateless and safe
// for concurrent use.
type Engine struct {
	greeks *GreeksCalculator
}

// NewEngine creates an analytics engine with the given risk-free rate.
func NewEngine(riskFreeRate float64) *Engine {
	return &Engine{greeks: NewGreeksCalculator(riskFreeRate)}
}

// BuildView turns a raw snapshot into a derived OptionChainView. It is
/// pure: identical inputs produce identical views. Malformed quotes
// (non-positive strike, negative prices) are skipped and counted, not
// fatal; an empty usable set returns ErrInsufficientData.
func (e *Engine) BuildView(in ViewInput) (*models.OptionChainView, error) {
	if len(in.Quotes) == 0 {
		return nil, errors.NewDataError("option_chain", in.Symbol, "no strike quotes", errors.ErrInsufficientData)
	}

	usable, skipped := sanitize(in.Quotes)
	if len(usable) == 0 {
		return nil, errors.NewDataError("option_chain", in.Symbol, "all strike quotes malformed", errors.ErrInsufficientData)
	}

	sort.Slice(usable, func(i, j int) bool { return usable[i].Strike < usable[j].Strike })

	t := TimeToExpiry(in.Expiry, in.Now)
	atm := atmStrike(usable, in.SpotPrice)

	view := &models.OptionChainView{
		Symbol:      in.Symbol,
		Expiry:      in.Expiry,
		SpotPrice:   in.SpotPrice,
		Rows:        make([]models.OptionChainRow, 0, len(usable)),
		ATMStrike:   atm,
		SkippedRows: skipped,
		ComputedAt:  in.Now,
	}

	for _, q := range usable {
		row := models.OptionChainRow{
			Strike: q.Strike,
			Call: models.OptionChainSide{
				LTP:       q.Call.LTP,
				Bid:       q.Call.Bid,
				Ask:       q.Call.Ask,
				Volume:    q.Call.Volume,
				OI:        q.Call.OI,
				Moneyness: callMoneyness(q.Strike, in.SpotPrice),
				Greeks:    e.greeks.Compute(in.SpotPrice, q.Strike, t, q.Call.IV, q.Call.LTP, SideCall),
			},
			Put: models.OptionChainSide{
				LTP:       q.Put.LTP,
				Bid:       q.Put.Bid,
				Ask:       q.Put.Ask,
				Volume:    q.Put.Volume,
				OI:        q.Put.OI,
				Moneyness: putMoneyness(q.Strike, in.SpotPrice),
				Greeks:    e.greeks.Compute(in.SpotPrice, q.Strike, t, q.Put.IV, q.Put.LTP, SidePut),
			},
		}
		view.Rows = append(view.Rows, row)

		view.TotalCallOI += q.Call.OI
		view.TotalPutOI += q.Put.OI
		view.TotalCallVolume += q.Call.Volume
		view.TotalPutVolume += q.Put.Volume
	}

	view.PCROI = ratio(view.TotalPutOI, view.TotalCallOI)
	view.PCRVolume = ratio(view.TotalPutVolume, view.TotalCallVolume)
	view.MaxPainStrike = maxPain(view.Rows)

	return view, nil
}

// sanitize drops malformed quotes and collapses duplicate strikes,
// keeping the first occurrence. Returns the usable set and the count
// of discarded rows.
func sanitize(quotes []models.StrikeQuote) ([]models.StrikeQuote, int) {
	seen := make(map[float64]bool, len(quotes))
	usable := make([]models.StrikeQuote, 0, len(quotes))
	skipped := 0

	for _, q := range quotes {
		if q.Strike <= 0 || q.Call.LTP < 0 || q.Put.LTP < 0 ||
			q.Call.OI < 0 || q.Put.OI < 0 || q.Call.Volume < 0 || q.Put.Volume < 0 {
			skipped++
			continue
		}
		if seen[q.Strike] {
			skipped++
			continue
		}
		seen[q.Strike] = true
		usable = append(usable, q)
	}

	return usable, skipped
}

// atmStrike returns the strike nearest to spot. An exact midpoint tie
// selects the lower strike.
func atmStrike(quotes []models.StrikeQuote, spot float64) float64 {
	best := quotes[0].Strike
	bestDist := math.Abs(best - spot)

	for _, q := range quotes[1:] {
		dist := math.Abs(q.Strike - spot)
		if dist < bestDist || (dist == bestDist && q.Strike < best) {
			best = q.Strike
			bestDist = dist
		}
	}

	return best
}

func callMoneyness(strike, spot float64) models.Moneyness {
	switch {
	case strike < spot:
		return models.ITM
	case strike > spot:
		return models.OTM
	default:
		return models.ATM
	}
}

func putMoneyness(strike, spot float64) models.Moneyness {
	switch {
	case strike > spot:
		return models.ITM
	case strike < spot:
		return models.OTM
	default:
		return models.ATM
	}
}

// ratio returns num/den, or nil when the denominator is zero.
func ratio(num, den int64) *float64 {
	if den == 0 {
		return nil
	}
	r := float64(num) / float64(den)
	return &r
}

// maxPain returns the strike minimizing total writer loss: for each
// candidate K, sum over rows of max(0, K-strike)*putOI plus
// max(0, strike-K)*callOI. Ties select the lower strike, which the
// ascending row order gives for free. O(n²) in strike count; fine for
// the bounded chains (hundreds of strikes) this engine serves.
func maxPain(rows []models.OptionChainRow) float64 {
	if len(rows) == 0 {
		return 0
	}

	best := rows[0].Strike
	bestLoss := math.Inf(1)

	for _, candidate := range rows {
		k := candidate.Strike
		loss := 0.0
		for _, row := range rows {
			if k > row.Strike {
				loss += float64(row.Put.OI) * (k - row.Strike)
			}
			if row.Strike > k {
				loss += float64(row.Call.OI) * (row.Strike - k)
			}
		}
		if loss < bestLoss {
			best = k
			bestLoss = loss
		}
	}

	return best
}
