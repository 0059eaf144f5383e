// Package volatility builds the blended volatility proxy that drives daily
// option pricing: a rolling realized-volatility estimate mixed with an
// implied-volatility style reference index.
package volatility

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/emontero/straddle-roller/internal/models"
)

// Params configures the proxy construction.
type Params struct {
	// Window is the number of log returns in the realized-vol estimate.
	Window int
	// Annualization scales the per-period std dev to an annual figure,
	// typically 252 trading days.
	Annualization float64
	// ExternalWeight is the blend weight w in sigma = w*external + (1-w)*realized.
	ExternalWeight float64
	// Floor and Cap clip the blended value to a physically plausible range.
	Floor float64
	Cap   float64
}

// Validate reports the first configuration problem, or nil.
func (p Params) Validate() error {
	if p.Window < 2 {
		return fmt.Errorf("volatility: window must be >= 2, got %d", p.Window)
	}
	if p.Annualization <= 0 {
		return fmt.Errorf("volatility: annualization must be > 0, got %v", p.Annualization)
	}
	if p.ExternalWeight < 0 || p.ExternalWeight > 1 {
		return fmt.Errorf("volatility: external_weight must be in [0,1], got %v", p.ExternalWeight)
	}
	if p.Floor < 0 || p.Cap <= 0 || p.Floor > p.Cap {
		return fmt.Errorf("volatility: need 0 <= floor <= cap, got floor=%v cap=%v", p.Floor, p.Cap)
	}
	return nil
}

// BuildProxy annotates the price series with a blended volatility estimate.
//
// The realized component is the rolling sample standard deviation of log
// returns over p.Window observations, annualized; it is undefined for the
// first p.Window dates. The external component is the reference index
// forward-filled onto the price dates and divided by 100. The blend is clipped
// to [Floor, Cap]; dates where either component is still undefined carry
// SigmaOK=false and a NaN Sigma, they are preserved rather than dropped.
//
// The output is aligned one-to-one with bars. Reference dates outside the
// price range are ignored (inner semantics on the price series).
func BuildProxy(bars, reference []models.Bar, p Params) ([]models.PriceObservation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := checkSeries("price", bars); err != nil {
		return nil, err
	}
	if err := checkSeries("reference", reference); err != nil {
		return nil, err
	}

	realized := rollingRealized(bars, p.Window, p.Annualization)

	out := make([]models.PriceObservation, len(bars))
	ref := math.NaN()
	j := 0
	for i, b := range bars {
		// Forward-fill the most recent reference level at or before this date.
		for j < len(reference) && !reference[j].Date.After(b.Date) {
			ref = reference[j].Close
			j++
		}

		external := ref / 100.0
		sigma := p.ExternalWeight*external + (1.0-p.ExternalWeight)*realized[i]
		ok := !math.IsNaN(sigma)
		if ok {
			sigma = math.Min(math.Max(sigma, p.Floor), p.Cap)
		}

		out[i] = models.PriceObservation{
			Date:     b.Date,
			Close:    b.Close,
			Realized: realized[i],
			External: external,
			Sigma:    sigma,
			SigmaOK:  ok,
		}
	}
	return out, nil
}

// rollingRealized returns the annualized rolling std dev of log returns, NaN
// for the warm-up prefix. Index i uses the window of returns ending at bar i.
func rollingRealized(bars []models.Bar, window int, annualization float64) []float64 {
	out := make([]float64, len(bars))
	rets := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
		if i > 0 {
			rets[i] = math.Log(bars[i].Close / bars[i-1].Close)
		}
	}

	scale := math.Sqrt(annualization)
	for i := window; i < len(bars); i++ {
		out[i] = stat.StdDev(rets[i-window+1:i+1], nil) * scale
	}
	return out
}

func checkSeries(name string, bars []models.Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("volatility: %s series is empty", name)
	}
	for i, b := range bars {
		if b.Date.IsZero() {
			return fmt.Errorf("volatility: %s series row %d has no date", name, i)
		}
		if b.Close <= 0 || math.IsNaN(b.Close) {
			return fmt.Errorf("volatility: %s series has invalid close %v on %s",
				name, b.Close, b.Date.Format("2006-01-02"))
		}
		if i > 0 && !bars[i-1].Date.Before(b.Date) {
			return fmt.Errorf("volatility: %s series dates not strictly increasing at %s",
				name, b.Date.Format("2006-01-02"))
		}
	}
	return nil
}
