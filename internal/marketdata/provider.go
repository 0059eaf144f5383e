// Package marketdata supplies the daily price and volatility-index series the
// backtest consumes. Providers return fully materialized, date-ordered slices;
// nothing downstream of this package performs I/O.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/emontero/straddle-roller/internal/models"
)

// ErrTransient marks provider failures that are worth retrying (network
// errors, 5xx responses). Permanent failures (malformed data, 4xx) are
// returned without this marker.
var ErrTransient = errors.New("transient provider error")

// Provider supplies daily close bars for a symbol, sorted ascending by date
// with no duplicates.
type Provider interface {
	DailyBars(ctx context.Context, symbol string) ([]models.Bar, error)
}

// validateBars normalizes and checks a bar series before it leaves a
// provider: sorted, strictly increasing dates, positive closes.
func validateBars(symbol string, bars []models.Bar) ([]models.Bar, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("marketdata: no bars for %q", symbol)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	for i, b := range bars {
		if b.Date.IsZero() {
			return nil, fmt.Errorf("marketdata: %q bar %d missing date", symbol, i)
		}
		if b.Close <= 0 || math.IsNaN(b.Close) {
			return nil, fmt.Errorf("marketdata: %q has invalid close %v on %s",
				symbol, b.Close, b.Date.Format("2006-01-02"))
		}
		if i > 0 && !bars[i-1].Date.Before(b.Date) {
			return nil, fmt.Errorf("marketdata: %q has duplicate date %s",
				symbol, b.Date.Format("2006-01-02"))
		}
	}
	return bars, nil
}

func parseDay(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
