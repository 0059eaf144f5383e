package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/emontero/straddle-roller/internal/models"
)

// SyntheticProvider generates deterministic daily series for smoke tests and
// demos without any data files. Price symbols follow a geometric Brownian
// motion; the configured reference symbol produces a mean-reverting
// volatility-index style level series instead.
type SyntheticProvider struct {
	Seed      uint64
	Start     time.Time
	Days      int
	InitPrice float64
	Drift     float64 // annual drift of the GBM path
	Vol       float64 // annual volatility of the GBM path

	// RefSymbol names the symbol that should produce a vol-index level
	// series (values around RefLevel) instead of a price path.
	RefSymbol string
	RefLevel  float64
}

// NewSyntheticProvider returns a provider with sensible demo defaults.
func NewSyntheticProvider(seed uint64, start time.Time, days int) *SyntheticProvider {
	return &SyntheticProvider{
		Seed:      seed,
		Start:     start,
		Days:      days,
		InitPrice: 100.0,
		Drift:     0.05,
		Vol:       0.20,
		RefSymbol: "VIX",
		RefLevel:  16.0,
	}
}

// DailyBars generates the series for symbol. The same provider configuration
// and symbol always yield the same bars regardless of call order.
func (p *SyntheticProvider) DailyBars(_ context.Context, symbol string) ([]models.Bar, error) {
	normal := distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rand.NewSource(p.Seed ^ symbolSeed(symbol)),
	}

	if symbol == p.RefSymbol {
		return validateBars(symbol, p.refSeries(normal))
	}
	return validateBars(symbol, p.pricePath(normal))
}

func (p *SyntheticProvider) pricePath(normal distuv.Normal) []models.Bar {
	const dt = 1.0 / 252.0
	dates := weekdays(p.Start, p.Days)
	bars := make([]models.Bar, 0, len(dates))
	price := p.InitPrice
	for _, d := range dates {
		bars = append(bars, models.Bar{Date: d, Close: price})
		price *= gbmStep(p.Drift, p.Vol, dt, normal.Rand())
	}
	return bars
}

// refSeries walks an Ornstein-Uhlenbeck style level around RefLevel, floored
// so the series stays positive like a real volatility index.
func (p *SyntheticProvider) refSeries(normal distuv.Normal) []models.Bar {
	const (
		speed = 0.05
		noise = 0.8
		floor = 9.0
	)
	dates := weekdays(p.Start, p.Days)
	bars := make([]models.Bar, 0, len(dates))
	level := p.RefLevel
	for _, d := range dates {
		bars = append(bars, models.Bar{Date: d, Close: level})
		level += speed*(p.RefLevel-level) + noise*normal.Rand()
		if level < floor {
			level = floor
		}
	}
	return bars
}

// gbmStep is the one-period multiplier of a geometric Brownian motion.
func gbmStep(mu, sigma, dt, z float64) float64 {
	return math.Exp((mu-0.5*sigma*sigma)*dt + sigma*math.Sqrt(dt)*z)
}

// weekdays returns n consecutive weekday dates starting at or after start.
func weekdays(start time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for d := start; len(out) < n; d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, d)
		}
	}
	return out
}

func symbolSeed(symbol string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	return h.Sum64()
}
