package strategy

import (
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emontero/straddle-roller/internal/models"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func defaultConfig() (Config, PricingConfig, HedgeConfig) {
	cfg := Config{
		TargetDTE:       30,
		RollFrequency:   models.RollMonthly,
		StrikeIncrement: 1.0,
		Contracts:       1,
		Multiplier:      100,
		InitialCash:     100000,
	}
	pr := PricingConfig{RiskFreeRate: 0, DividendYield: 0, DaysPerYear: 365}
	h := HedgeConfig{}
	return cfg, pr, h
}

// series builds a weekday price series with a deterministic drifting price
// and a constant, defined sigma.
func series(t *testing.T, start string, days int, sigma float64) []models.PriceObservation {
	t.Helper()
	var out []models.PriceObservation
	cur := d(t, start)
	price := 450.0
	i := 0
	for len(out) < days {
		if cur.Weekday() != time.Saturday && cur.Weekday() != time.Sunday {
			price *= 1 + 0.002*math.Sin(float64(i))
			out = append(out, models.PriceObservation{
				Date:    cur,
				Close:   price,
				Sigma:   sigma,
				SigmaOK: true,
			})
			i++
		}
		cur = cur.AddDate(0, 0, 1)
	}
	return out
}

func mustSimulator(t *testing.T, cfg Config, pr PricingConfig, h HedgeConfig) *Simulator {
	t.Helper()
	sim, err := NewSimulator(cfg, pr, h, testLogger())
	require.NoError(t, err)
	return sim
}

func TestNewSimulatorValidation(t *testing.T) {
	cfg, pr, h := defaultConfig()

	tests := []struct {
		name   string
		mutate func(*Config, *PricingConfig, *HedgeConfig)
	}{
		{"bad roll frequency", func(c *Config, _ *PricingConfig, _ *HedgeConfig) { c.RollFrequency = "D" }},
		{"zero target dte", func(c *Config, _ *PricingConfig, _ *HedgeConfig) { c.TargetDTE = 0 }},
		{"negative strike increment", func(c *Config, _ *PricingConfig, _ *HedgeConfig) { c.StrikeIncrement = -1 }},
		{"zero contracts", func(c *Config, _ *PricingConfig, _ *HedgeConfig) { c.Contracts = 0 }},
		{"zero days per year", func(_ *Config, p *PricingConfig, _ *HedgeConfig) { p.DaysPerYear = 0 }},
		{"negative threshold", func(_ *Config, _ *PricingConfig, h *HedgeConfig) { h.Enabled = true; h.RebalanceThreshold = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, p, hh := cfg, pr, h
			tt.mutate(&c, &p, &hh)
			_, err := NewSimulator(c, p, hh, testLogger())
			assert.Error(t, err)
		})
	}
}

func TestRunEmptySeries(t *testing.T) {
	cfg, pr, h := defaultConfig()
	sim := mustSimulator(t, cfg, pr, h)
	_, _, err := sim.Run(nil)
	assert.ErrorContains(t, err, "empty")
}

func TestRunRejectsUnorderedSeries(t *testing.T) {
	cfg, pr, h := defaultConfig()
	sim := mustSimulator(t, cfg, pr, h)

	s := series(t, "2024-01-01", 5, 0.2)
	s[3].Date = s[1].Date
	_, _, err := sim.Run(s)
	assert.ErrorContains(t, err, "strictly increasing")
}

func TestFirstDateOpensPosition(t *testing.T) {
	cfg, pr, h := defaultConfig()
	sim := mustSimulator(t, cfg, pr, h)

	s := series(t, "2024-01-01", 10, 0.2)
	ledger, trades, err := sim.Run(s)
	require.NoError(t, err)
	require.NotEmpty(t, trades)

	assert.Equal(t, models.TradeRollOpen, trades[0].Type, "no prior position to close")
	assert.True(t, trades[0].Date.Equal(s[0].Date))
	assert.Len(t, ledger, len(s))
}

func TestEquityIdentityHoldsEveryRow(t *testing.T) {
	cfg, pr, _ := defaultConfig()
	h := HedgeConfig{Enabled: true, TargetDelta: 0, RebalanceThreshold: 5}
	sim := mustSimulator(t, cfg, pr, h)

	ledger, _, err := sim.Run(series(t, "2024-01-01", 120, 0.2))
	require.NoError(t, err)

	for _, row := range ledger {
		want := row.Cash + row.OptionValue + row.HedgeShares*row.Spot
		assert.Equal(t, want, row.Equity, "equity identity broken on %s", row.Date.Format("2006-01-02"))
	}
}

func TestClosePrecedesOpenAndNoOverlap(t *testing.T) {
	cfg, pr, h := defaultConfig()
	sim := mustSimulator(t, cfg, pr, h)

	_, trades, err := sim.Run(series(t, "2024-01-01", 90, 0.2))
	require.NoError(t, err)

	var lastCloseIdx = -1
	openCount := 0
	for i, ev := range trades {
		switch ev.Type {
		case models.TradeRollOpen:
			openCount++
			if openCount > 1 {
				// Every open after the first must be directly preceded by
				// the close of the outgoing position on the same date.
				require.Greater(t, lastCloseIdx, -1)
				prev := trades[lastCloseIdx]
				assert.True(t, prev.Date.Equal(ev.Date), "ROLL_CLOSE must pair with same-date ROLL_OPEN")
				assert.Less(t, lastCloseIdx, i)
			}
		case models.TradeRollClose:
			lastCloseIdx = i
		}
	}
	assert.Greater(t, openCount, 2, "expected several monthly rolls over ~4 months")
}

func TestTradeLogOrderedByDate(t *testing.T) {
	cfg, pr, _ := defaultConfig()
	h := HedgeConfig{Enabled: true, TargetDelta: 0, RebalanceThreshold: 5}
	sim := mustSimulator(t, cfg, pr, h)

	_, trades, err := sim.Run(series(t, "2024-01-01", 90, 0.2))
	require.NoError(t, err)

	for i := 1; i < len(trades); i++ {
		assert.False(t, trades[i].Date.Before(trades[i-1].Date), "trade log out of order at %d", i)
	}
}

func TestExpiryShiftsOffWeekends(t *testing.T) {
	cfg, pr, h := defaultConfig()
	cfg.TargetDTE = 12 // 2024-01-01 + 12d = Saturday 2024-01-13
	sim := mustSimulator(t, cfg, pr, h)

	_, trades, err := sim.Run(series(t, "2024-01-01", 5, 0.2))
	require.NoError(t, err)
	require.NotEmpty(t, trades)
	assert.Equal(t, "2024-01-12", trades[0].Expiry.Format("2006-01-02"), "Saturday expiry moves to Friday")
}

func TestStrikeRounding(t *testing.T) {
	cfg, pr, h := defaultConfig()
	cfg.StrikeIncrement = 5.0
	sim := mustSimulator(t, cfg, pr, h)

	s := series(t, "2024-01-01", 3, 0.2)
	s[0].Close = 451.8

	_, trades, err := sim.Run(s)
	require.NoError(t, err)
	assert.Equal(t, 450.0, trades[0].Strike)
}

func TestDeterminism(t *testing.T) {
	cfg, pr, _ := defaultConfig()
	h := HedgeConfig{Enabled: true, TargetDelta: 0, RebalanceThreshold: 10}

	s := series(t, "2024-01-01", 150, 0.22)

	simA := mustSimulator(t, cfg, pr, h)
	ledgerA, tradesA, err := simA.Run(s)
	require.NoError(t, err)

	simB := mustSimulator(t, cfg, pr, h)
	ledgerB, tradesB, err := simB.Run(s)
	require.NoError(t, err)

	assert.Equal(t, ledgerA, ledgerB, "identical inputs must produce identical ledgers")
	assert.Equal(t, tradesA, tradesB, "trade log including IDs must be reproducible")
}

func TestUndefinedSigmaDays(t *testing.T) {
	cfg, pr, h := defaultConfig()
	sim := mustSimulator(t, cfg, pr, h)

	s := series(t, "2024-01-01", 10, 0.2)
	// Warm-up style gap: first three days have no volatility estimate.
	for i := 0; i < 3; i++ {
		s[i].Sigma = math.NaN()
		s[i].SigmaOK = false
	}

	ledger, trades, err := sim.Run(s)
	require.NoError(t, err)

	// The first open still happens, with strike set from spot but an
	// undefined recorded value and untouched cash.
	require.NotEmpty(t, trades)
	assert.Equal(t, models.TradeRollOpen, trades[0].Type)
	assert.True(t, math.IsNaN(trades[0].OptionValue))
	assert.Greater(t, trades[0].Strike, 0.0)

	for i := 0; i < 3; i++ {
		assert.True(t, math.IsNaN(ledger[i].MarkPrice))
		assert.Zero(t, ledger[i].OptionValue)
		assert.Equal(t, cfg.InitialCash, ledger[i].Cash)
		assert.Equal(t, ledger[i].Cash+ledger[i].HedgeShares*ledger[i].Spot, ledger[i].Equity)
	}

	// Simulation resumes normal marking once sigma is defined.
	assert.False(t, math.IsNaN(ledger[5].MarkPrice))
}

func TestHedgeKeepsDeltaOnTarget(t *testing.T) {
	cfg, pr, _ := defaultConfig()
	h := HedgeConfig{Enabled: true, TargetDelta: 0, RebalanceThreshold: 5}
	sim := mustSimulator(t, cfg, pr, h)

	ledger, trades, err := sim.Run(series(t, "2024-01-01", 60, 0.2))
	require.NoError(t, err)

	sawHedge := false
	for _, ev := range trades {
		if ev.Type != models.TradeHedge {
			continue
		}
		sawHedge = true
		assert.NotZero(t, ev.SharesTraded)
	}
	require.True(t, sawHedge, "expected at least one rebalance")

	// After any rebalance day, total delta sits exactly on target.
	for _, row := range ledger {
		total := row.Delta + row.HedgeShares
		if rowHadHedge(trades, row.Date) {
			assert.InDelta(t, h.TargetDelta, total, 1e-9, "post-rebalance delta off target on %s", row.Date.Format("2006-01-02"))
		} else {
			assert.LessOrEqual(t, math.Abs(total-h.TargetDelta), h.RebalanceThreshold+1e-9)
		}
	}
}

func TestHedgeDisabledNeverTrades(t *testing.T) {
	cfg, pr, h := defaultConfig()
	sim := mustSimulator(t, cfg, pr, h)

	ledger, trades, err := sim.Run(series(t, "2024-01-01", 60, 0.2))
	require.NoError(t, err)

	for _, ev := range trades {
		assert.NotEqual(t, models.TradeHedge, ev.Type)
	}
	for _, row := range ledger {
		assert.Zero(t, row.HedgeShares)
	}
}

func TestCashFlowsOnRoll(t *testing.T) {
	cfg, pr, h := defaultConfig()
	sim := mustSimulator(t, cfg, pr, h)

	s := series(t, "2024-01-01", 2, 0.2)
	ledger, trades, err := sim.Run(s)
	require.NoError(t, err)

	// Day one: premium debited in full.
	require.GreaterOrEqual(t, len(trades), 1)
	open := trades[0]
	require.False(t, math.IsNaN(open.OptionValue))
	assert.InDelta(t, cfg.InitialCash-open.OptionValue, ledger[0].Cash, 1e-9)
}

func rowHadHedge(trades []models.TradeEvent, date time.Time) bool {
	for _, ev := range trades {
		if ev.Type == models.TradeHedge && ev.Date.Equal(date) {
			return true
		}
	}
	return false
}
