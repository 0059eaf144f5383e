// Package hedge solves the static delta-neutral hedge of an option position
// with a second instrument and reports the effect on the remaining greeks.
package hedge

import (
	"errors"
	"fmt"
	"math"
)

// deltaTolerance is the smallest hedge delta considered invertible.
const deltaTolerance = 1e-8

// denomTolerance guards the relative-change report against division by a
// near-zero base greek.
const denomTolerance = 1e-12

// ErrDegenerateHedge is returned when the hedge instrument's delta is too
// close to zero to neutralize anything.
var ErrDegenerateHedge = errors.New("hedge instrument delta too close to zero")

// Greeks is the per-unit sensitivity vector of an instrument or position.
type Greeks struct {
	Price    float64 `json:"price"`
	Delta    float64 `json:"delta"`
	Gamma    float64 `json:"gamma"`
	Vega1Pct float64 `json:"vega_1pct"`
	ThetaDay float64 `json:"theta_day"`
}

// Scale returns g scaled by n.
func (g Greeks) Scale(n float64) Greeks {
	return Greeks{
		Price:    n * g.Price,
		Delta:    n * g.Delta,
		Gamma:    n * g.Gamma,
		Vega1Pct: n * g.Vega1Pct,
		ThetaDay: n * g.ThetaDay,
	}
}

// Add returns the element-wise sum of g and o.
func (g Greeks) Add(o Greeks) Greeks {
	return Greeks{
		Price:    g.Price + o.Price,
		Delta:    g.Delta + o.Delta,
		Gamma:    g.Gamma + o.Gamma,
		Vega1Pct: g.Vega1Pct + o.Vega1Pct,
		ThetaDay: g.ThetaDay + o.ThetaDay,
	}
}

// Solution is a solved delta-neutral hedge: Total = Base + Ratio*Hedge.
type Solution struct {
	Ratio float64 `json:"ratio"`
	Base  Greeks  `json:"base"`
	Hedge Greeks  `json:"hedge"`
	Total Greeks  `json:"total"`
}

// SolveRatio finds the hedge quantity n such that the combined position
// base + n*hedge has zero delta. The combination is a pure linear sum, no
// iteration is involved. Returns ErrDegenerateHedge when |hedge delta| is
// below tolerance.
func SolveRatio(base, hedge Greeks) (Solution, error) {
	if math.Abs(hedge.Delta) < deltaTolerance {
		return Solution{}, fmt.Errorf("solving hedge ratio: %w (|delta|=%.3g)",
			ErrDegenerateHedge, math.Abs(hedge.Delta))
	}

	n := -base.Delta / hedge.Delta
	return Solution{
		Ratio: n,
		Base:  base,
		Hedge: hedge,
		Total: base.Add(hedge.Scale(n)),
	}, nil
}

// Impact reports the relative change of each second-order greek from the base
// position to the hedged total. Entries whose base value is too close to zero
// are NaN rather than +/-Inf so callers can render them as undefined.
type Impact struct {
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
}

// Impact computes the relative change report for the solution.
func (s Solution) Impact() Impact {
	return Impact{
		Gamma: relChange(s.Base.Gamma, s.Total.Gamma),
		Vega:  relChange(s.Base.Vega1Pct, s.Total.Vega1Pct),
		Theta: relChange(s.Base.ThetaDay, s.Total.ThetaDay),
	}
}

func relChange(base, total float64) float64 {
	if math.Abs(base) < denomTolerance {
		return math.NaN()
	}
	return (total - base) / base
}
