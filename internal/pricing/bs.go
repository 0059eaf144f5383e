// Package pricing implements closed-form European option pricing and greeks
// under Black-Scholes with a continuous dividend yield. All functions are pure
// and safe to call concurrently.
package pricing

import (
	"math"

	"github.com/emontero/straddle-roller/internal/models"
)

// DefaultDaysPerYear is the calendar convention used to convert the annual
// theta into a per-day figure when the caller does not override it.
const DefaultDaysPerYear = 365.0

// Result holds the price and sensitivities of a single European option.
// Vega1Pct is the price change per one percentage point of volatility
// (raw vega / 100); ThetaDay is the price change per calendar day.
//
// Valid is false when the inputs were degenerate (non-positive spot, strike,
// expiry or volatility); every numeric field is then NaN. Callers must check
// Valid before using the numbers.
type Result struct {
	Price    float64
	Delta    float64
	Gamma    float64
	Vega1Pct float64
	ThetaDay float64
	Valid    bool
}

// Undefined returns the sentinel Result used for degenerate inputs.
func Undefined() Result {
	nan := math.NaN()
	return Result{Price: nan, Delta: nan, Gamma: nan, Vega1Pct: nan, ThetaDay: nan}
}

// PriceGreeks prices a European option and computes its greeks.
//
//	S      spot price of the underlying
//	K      strike
//	T      time to expiry in years, > 0
//	r      continuously compounded risk-free rate
//	sigma  annualized volatility, > 0
//	right  call or put
//	q      continuous dividend yield
//
// daysPerYear sets the theta convention; pass DefaultDaysPerYear for the
// standard 365-day calendar. Degenerate inputs yield Undefined() rather than
// an error or a panic so that series-driven callers can skip bad dates cheaply.
func PriceGreeks(S, K, T, r, sigma float64, right models.OptionRight, q, daysPerYear float64) Result {
	if S <= 0 || K <= 0 || T <= 0 || sigma <= 0 || daysPerYear <= 0 {
		return Undefined()
	}

	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r-q+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT

	discR := math.Exp(-r * T)
	discQ := math.Exp(-q * T)
	nd1 := normPDF(d1)

	var price, delta, thetaYear float64
	if right == models.Call {
		Nd1 := normCDF(d1)
		Nd2 := normCDF(d2)
		price = discQ*S*Nd1 - discR*K*Nd2
		delta = discQ * Nd1
		thetaYear = -discQ*(S*nd1*sigma)/(2*sqrtT) - r*discR*K*Nd2 + q*discQ*S*Nd1
	} else {
		Nmd1 := normCDF(-d1)
		Nmd2 := normCDF(-d2)
		price = discR*K*Nmd2 - discQ*S*Nmd1
		delta = -discQ * Nmd1
		thetaYear = -discQ*(S*nd1*sigma)/(2*sqrtT) + r*discR*K*Nmd2 - q*discQ*S*Nmd1
	}

	return Result{
		Price:    price,
		Delta:    delta,
		Gamma:    discQ * nd1 / (S * sigma * sqrtT),
		Vega1Pct: discQ * S * nd1 * sqrtT / 100.0,
		ThetaDay: thetaYear / daysPerYear,
		Valid:    true,
	}
}

// StraddleResult aggregates the greeks of a long straddle (long call + long
// put at the same strike and expiry) and keeps the per-leg prices around for
// reporting.
type StraddleResult struct {
	Result
	CallPrice float64
	PutPrice  float64
}

// Straddle prices a long straddle at strike K. The aggregate is a pure sum of
// the two legs; if either leg is undefined the whole straddle is undefined.
func Straddle(S, K, T, r, sigma, q, daysPerYear float64) StraddleResult {
	call := PriceGreeks(S, K, T, r, sigma, models.Call, q, daysPerYear)
	put := PriceGreeks(S, K, T, r, sigma, models.Put, q, daysPerYear)

	if !call.Valid || !put.Valid {
		return StraddleResult{Result: Undefined(), CallPrice: math.NaN(), PutPrice: math.NaN()}
	}

	return StraddleResult{
		Result: Result{
			Price:    call.Price + put.Price,
			Delta:    call.Delta + put.Delta,
			Gamma:    call.Gamma + put.Gamma,
			Vega1Pct: call.Vega1Pct + put.Vega1Pct,
			ThetaDay: call.ThetaDay + put.ThetaDay,
			Valid:    true,
		},
		CallPrice: call.Price,
		PutPrice:  put.Price,
	}
}

var invSqrt2Pi = 1.0 / math.Sqrt(2.0*math.Pi)

func normPDF(x float64) float64 {
	return invSqrt2Pi * math.Exp(-0.5*x*x)
}

func normCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}
