package hedge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveRatioNeutralizesDelta(t *testing.T) {
	base := Greeks{Price: 13.4, Delta: 4.82, Gamma: 1.21, Vega1Pct: 0.78, ThetaDay: -0.22}
	hedgeOpt := Greeks{Price: 5.1, Delta: 0.31, Gamma: 0.04, Vega1Pct: 0.11, ThetaDay: -0.03}

	sol, err := SolveRatio(base, hedgeOpt)
	require.NoError(t, err)

	// Residual delta must vanish to solver tolerance.
	assert.InDelta(t, 0.0, base.Delta+sol.Ratio*hedgeOpt.Delta, 1e-9)
	assert.InDelta(t, 0.0, sol.Total.Delta, 1e-9)

	// Every other greek is the plain linear combination.
	assert.InDelta(t, base.Gamma+sol.Ratio*hedgeOpt.Gamma, sol.Total.Gamma, 1e-12)
	assert.InDelta(t, base.Vega1Pct+sol.Ratio*hedgeOpt.Vega1Pct, sol.Total.Vega1Pct, 1e-12)
	assert.InDelta(t, base.ThetaDay+sol.Ratio*hedgeOpt.ThetaDay, sol.Total.ThetaDay, 1e-12)
	assert.InDelta(t, base.Price+sol.Ratio*hedgeOpt.Price, sol.Total.Price, 1e-12)
}

func TestSolveRatioSign(t *testing.T) {
	// Long-delta base hedged with a positive-delta instrument requires selling it.
	sol, err := SolveRatio(Greeks{Delta: 50}, Greeks{Delta: 0.5})
	require.NoError(t, err)
	assert.InDelta(t, -100.0, sol.Ratio, 1e-12)

	// A put hedge (negative delta) flips the sign.
	sol, err = SolveRatio(Greeks{Delta: 50}, Greeks{Delta: -0.25})
	require.NoError(t, err)
	assert.InDelta(t, 200.0, sol.Ratio, 1e-12)
}

func TestSolveRatioDegenerateHedge(t *testing.T) {
	_, err := SolveRatio(Greeks{Delta: 10}, Greeks{Delta: 5e-9})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDegenerateHedge)

	// Exactly zero, same failure.
	_, err = SolveRatio(Greeks{Delta: 10}, Greeks{})
	assert.ErrorIs(t, err, ErrDegenerateHedge)
}

func TestImpactRelativeChange(t *testing.T) {
	base := Greeks{Delta: 10, Gamma: 2.0, Vega1Pct: 1.0, ThetaDay: -0.5}
	hedgeOpt := Greeks{Delta: 0.5, Gamma: 0.1, Vega1Pct: 0.05, ThetaDay: -0.01}

	sol, err := SolveRatio(base, hedgeOpt)
	require.NoError(t, err)
	impact := sol.Impact()

	// ratio = -20: total gamma = 2 - 2 = 0 -> -100% change.
	assert.InDelta(t, -1.0, impact.Gamma, 1e-12)
	assert.InDelta(t, (sol.Total.Vega1Pct-base.Vega1Pct)/base.Vega1Pct, impact.Vega, 1e-12)
	assert.InDelta(t, (sol.Total.ThetaDay-base.ThetaDay)/base.ThetaDay, impact.Theta, 1e-12)
}

func TestImpactGuardsZeroDenominator(t *testing.T) {
	sol := Solution{
		Base:  Greeks{Gamma: 0, Vega1Pct: 1.0, ThetaDay: -0.5},
		Total: Greeks{Gamma: 0.3, Vega1Pct: 1.2, ThetaDay: -0.4},
	}
	impact := sol.Impact()
	assert.True(t, math.IsNaN(impact.Gamma), "zero base gamma must report undefined, not Inf")
	assert.False(t, math.IsNaN(impact.Vega))
	assert.False(t, math.IsNaN(impact.Theta))
}
