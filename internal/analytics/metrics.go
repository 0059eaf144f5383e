// Package analytics computes performance statistics over a backtest equity
// curve: returns, risk-adjusted ratios and drawdowns.
package analytics

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/emontero/straddle-roller/internal/models"
)

// Config sets the annualization conventions for the metrics.
type Config struct {
	// PeriodsPerYear annualizes daily figures, typically 252.
	PeriodsPerYear float64
	// RiskFreeRate is the annual risk-free rate used for excess returns.
	RiskFreeRate float64
	// RollingVolWindow sizes RollingVol, e.g. 63 for ~3 months.
	RollingVolWindow int
}

// DefaultConfig mirrors the usual daily-equity conventions.
var DefaultConfig = Config{PeriodsPerYear: 252, RiskFreeRate: 0, RollingVolWindow: 63}

// Metrics summarizes one equity curve. Ratios that need more history than the
// series provides are NaN rather than zero so reports can show them as
// unavailable.
type Metrics struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	StartEquity float64   `json:"start_equity"`
	EndEquity   float64   `json:"end_equity"`

	TotalReturn    float64 `json:"total_return"`
	CAGR           float64 `json:"cagr"`
	AnnVol         float64 `json:"ann_vol"`
	Sharpe         float64 `json:"sharpe"`
	Sortino        float64 `json:"sortino"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	Calmar         float64 `json:"calmar"`
	HitRatio       float64 `json:"hit_ratio"`
	AvgDailyReturn float64 `json:"avg_daily_return"`
	StdDailyReturn float64 `json:"std_daily_return"`
}

// Compute derives the metric set from a simulation ledger.
func Compute(ledger []models.LedgerRow, cfg Config) (Metrics, error) {
	if len(ledger) == 0 {
		return Metrics{}, fmt.Errorf("analytics: ledger is empty")
	}
	if cfg.PeriodsPerYear <= 0 {
		return Metrics{}, fmt.Errorf("analytics: periods_per_year must be > 0, got %v", cfg.PeriodsPerYear)
	}

	equity := make([]float64, len(ledger))
	for i, row := range ledger {
		equity[i] = row.Equity
	}
	rets := Returns(equity)

	m := Metrics{
		Start:       ledger[0].Date,
		End:         ledger[len(ledger)-1].Date,
		StartEquity: equity[0],
		EndEquity:   equity[len(equity)-1],
		TotalReturn: equity[len(equity)-1]/equity[0] - 1.0,
		MaxDrawdown: MaxDrawdown(equity),

		CAGR:           math.NaN(),
		AnnVol:         math.NaN(),
		Sharpe:         math.NaN(),
		Sortino:        math.NaN(),
		Calmar:         math.NaN(),
		HitRatio:       math.NaN(),
		AvgDailyReturn: math.NaN(),
		StdDailyReturn: math.NaN(),
	}

	if len(equity) >= 2 {
		periods := float64(len(equity) - 1)
		m.CAGR = math.Pow(equity[len(equity)-1]/equity[0], cfg.PeriodsPerYear/periods) - 1.0
	}
	if len(rets) == 0 {
		return m, nil
	}

	m.AvgDailyReturn = stat.Mean(rets, nil)
	m.HitRatio = hitRatio(rets)

	if len(rets) >= 2 {
		m.StdDailyReturn = stat.StdDev(rets, nil)
		m.AnnVol = m.StdDailyReturn * math.Sqrt(cfg.PeriodsPerYear)

		rfDaily := cfg.RiskFreeRate / cfg.PeriodsPerYear
		excess := make([]float64, len(rets))
		for i, r := range rets {
			excess[i] = r - rfDaily
		}
		if sd := stat.StdDev(excess, nil); sd > 0 {
			m.Sharpe = stat.Mean(excess, nil) / sd * math.Sqrt(cfg.PeriodsPerYear)
		}
		if dd := downsideDev(excess); dd > 0 {
			m.Sortino = stat.Mean(excess, nil) / dd * math.Sqrt(cfg.PeriodsPerYear)
		}
	}

	if mdd := math.Abs(m.MaxDrawdown); mdd > 0 && !math.IsNaN(m.CAGR) {
		m.Calmar = m.CAGR / mdd
	}

	return m, nil
}

// Returns converts an equity curve into simple period returns.
func Returns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		out[i-1] = equity[i]/equity[i-1] - 1.0
	}
	return out
}

// MaxDrawdown returns the most negative peak-to-trough decline, e.g. -0.25
// for a 25% drawdown. Zero for a curve that never declines.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return math.NaN()
	}
	peak := equity[0]
	worst := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if dd := e/peak - 1.0; dd < worst {
			worst = dd
		}
	}
	return worst
}

// RollingVol returns the annualized rolling standard deviation of returns;
// the warm-up prefix is NaN.
func RollingVol(rets []float64, window int, periodsPerYear float64) []float64 {
	out := make([]float64, len(rets))
	for i := range out {
		out[i] = math.NaN()
		if i >= window-1 {
			out[i] = stat.StdDev(rets[i-window+1:i+1], nil) * math.Sqrt(periodsPerYear)
		}
	}
	return out
}

func hitRatio(rets []float64) float64 {
	if len(rets) == 0 {
		return math.NaN()
	}
	up := 0
	for _, r := range rets {
		if r > 0 {
			up++
		}
	}
	return float64(up) / float64(len(rets))
}

func downsideDev(excess []float64) float64 {
	var down []float64
	for _, r := range excess {
		if r < 0 {
			down = append(down, r)
		}
	}
	if len(down) < 2 {
		return 0
	}
	return stat.StdDev(down, nil)
}
