package analytics

import (
	"math"
	"time"

	"optionstream/internal/models"
)

// OptionSide identifies the option side in NSE terms.
type OptionSide string

const (
	SideCall OptionSide = "CE"
	SidePut  OptionSide = "PE"
)

const (
	// defaultIV is the starting volatility guess when a quote carries none.
	defaultIV = 0.20
	// minIV bounds the volatility estimate away from zero.
	minIV = 0.01
	// minTimeToExpiry keeps the year fraction positive on expiry day.
	minTimeToExpiry = 0.001
)

// GreeksCalculator computes Black-Scholes sensitivities. Values are
// display/ranking approximations, not exchange-grade: theta is per
// calendar day, vega and rho are per 1% move.
type GreeksCalculator struct {
	RiskFreeRate float64
}

// NewGreeksCalculator creates a calculator with the given annual
// risk-free rate.
func NewGreeksCalculator(riskFreeRate float64) *GreeksCalculator {
	if riskFreeRate <= 0 {
		riskFreeRate = 0.05
	}
	return &GreeksCalculator{RiskFreeRate: riskFreeRate}
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// normPDF is the standard normal probability density function.
func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func d1(s, k, t, r, sigma float64) float64 {
	if t <= 0 || sigma <= 0 || s <= 0 || k <= 0 {
		return 0
	}
	return (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * math.Sqrt(t))
}

func d2(s, k, t, r, sigma float64) float64 {
	if t <= 0 || sigma <= 0 || s <= 0 || k <= 0 {
		return 0
	}
	return d1(s, k, t, r, sigma) - sigma*math.Sqrt(t)
}

// TimeToExpiry returns the year fraction between now and the expiry
// date, floored at minTimeToExpiry.
func TimeToExpiry(expiry, now time.Time) float64 {
	days := expiry.Sub(now).Hours() / 24
	t := days / 365.0
	if t < minTimeToExpiry {
		return minTimeToExpiry
	}
	return t
}

// CallPrice returns the Black-Scholes price of a call.
func (g *GreeksCalculator) CallPrice(s, k, t, sigma float64) float64 {
	if t <= 0 {
		return math.Max(s-k, 0)
	}
	r := g.RiskFreeRate
	price := s*normCDF(d1(s, k, t, r, sigma)) - k*math.Exp(-r*t)*normCDF(d2(s, k, t, r, sigma))
	return math.Max(price, 0)
}

// PutPrice returns the Black-Scholes price of a put.
func (g *GreeksCalculator) PutPrice(s, k, t, sigma float64) float64 {
	if t <= 0 {
		return math.Max(k-s, 0)
	}
	r := g.RiskFreeRate
	price := k*math.Exp(-r*t)*normCDF(-d2(s, k, t, r, sigma)) - s*normCDF(-d1(s, k, t, r, sigma))
	return math.Max(price, 0)
}

// Delta returns the option's price sensitivity to the underlying.
func (g *GreeksCalculator) Delta(s, k, t, sigma float64, side OptionSide) float64 {
	if t <= 0 {
		if side == SideCall {
			if s > k {
				return 1
			}
			return 0
		}
		if s < k {
			return -1
		}
		return 0
	}

	nd1 := normCDF(d1(s, k, t, g.RiskFreeRate, sigma))
	if side == SideCall {
		return nd1
	}
	return nd1 - 1
}

// Gamma returns the rate of change of delta.
func (g *GreeksCalculator) Gamma(s, k, t, sigma float64) float64 {
	if t <= 0 || sigma <= 0 || s <= 0 {
		return 0
	}
	return normPDF(d1(s, k, t, g.RiskFreeRate, sigma)) / (s * sigma * math.Sqrt(t))
}

// Vega returns the sensitivity to a 1% change in volatility.
func (g *GreeksCalculator) Vega(s, k, t, sigma float64) float64 {
	if t <= 0 {
		return 0
	}
	return s * normPDF(d1(s, k, t, g.RiskFreeRate, sigma)) * math.Sqrt(t) / 100
}

// Theta returns the time decay per calendar day.
func (g *GreeksCalculator) Theta(s, k, t, sigma float64, side OptionSide) float64 {
	if t <= 0 {
		return 0
	}

	r := g.RiskFreeRate
	dOne := d1(s, k, t, r, sigma)
	dTwo := d2(s, k, t, r, sigma)

	var theta float64
	if side == SideCall {
		theta = -s*normPDF(dOne)*sigma/(2*math.Sqrt(t)) - r*k*math.Exp(-r*t)*normCDF(dTwo)
	} else {
		theta = -s*normPDF(dOne)*sigma/(2*math.Sqrt(t)) + r*k*math.Exp(-r*t)*normCDF(-dTwo)
	}

	return theta / 365
}

// Rho returns the sensitivity to a 1% change in the risk-free rate.
func (g *GreeksCalculator) Rho(s, k, t, sigma float64, side OptionSide) float64 {
	if t <= 0 {
		return 0
	}

	r := g.RiskFreeRate
	dTwo := d2(s, k, t, r, sigma)

	if side == SideCall {
		return k * t * math.Exp(-r*t) * normCDF(dTwo) / 100
	}
	return -k * t * math.Exp(-r*t) * normCDF(-dTwo) / 100
}

// EstimateIV estimates implied volatility from an option premium by
// Newton-Raphson on the Black-Scholes price. The estimate is bounded
// below at minIV and converges within ten iterations for quotes in the
// normal premium range; pathological inputs return the last iterate.
func (g *GreeksCalculator) EstimateIV(price, s, k, t float64, side OptionSide) float64 {
	if price <= 0 || s <= 0 || k <= 0 || t <= 0 {
		return defaultIV
	}

	sigma := defaultIV
	for i := 0; i < 10; i++ {
		var theo float64
		if side == SideCall {
			theo = g.CallPrice(s, k, t, sigma)
		} else {
			theo = g.PutPrice(s, k, t, sigma)
		}
		vega := g.Vega(s, k, t, sigma)

		diff := theo - price
		if math.Abs(diff) < 0.01 || vega < 0.001 {
			break
		}

		// vega is per 1%, the step needs the per-unit derivative
		sigma -= diff / (vega * 100)
		if sigma < minIV {
			sigma = minIV
		}
	}

	if sigma < minIV {
		return minIV
	}
	return sigma
}

// Compute returns the full set of Greeks for one contract, estimating
// IV from the premium when the quote does not carry one. It returns nil
// when neither an IV nor a usable premium is available.
func (g *GreeksCalculator) Compute(s, k, t, quotedIV, premium float64, side OptionSide) *models.Greeks {
	if s <= 0 || k <= 0 || t <= 0 {
		return nil
	}

	sigma := quotedIV
	if sigma <= 0 {
		if premium <= 0 {
			return nil
		}
		sigma = g.EstimateIV(premium, s, k, t, side)
	}

	return &models.Greeks{
		Delta: g.Delta(s, k, t, sigma, side),
		Gamma: g.Gamma(s, k, t, sigma),
		Theta: g.Theta(s, k, t, sigma, side),
		Vega:  g.Vega(s, k, t, sigma),
		Rho:   g.Rho(s, k, t, sigma, side),
		IV:    sigma,
	}
}
