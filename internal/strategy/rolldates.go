package strategy

import (
	"fmt"
	"time"

	"github.com/emontero/straddle-roller/internal/models"
)

// RollDates selects the roll schedule from an ordered sequence of trading
// dates: the first available date of each calendar month, or of each ISO week,
// depending on frequency. The input must already be sorted ascending; the
// output preserves that order.
func RollDates(dates []time.Time, freq models.RollFrequency) ([]time.Time, error) {
	if !freq.Valid() {
		return nil, fmt.Errorf("strategy: roll frequency must be %q or %q, got %q",
			models.RollWeekly, models.RollMonthly, freq)
	}

	type bucket struct{ a, b int }
	var (
		out  []time.Time
		last bucket
		have bool
	)
	for _, d := range dates {
		var cur bucket
		if freq == models.RollMonthly {
			cur = bucket{d.Year(), int(d.Month())}
		} else {
			y, w := d.ISOWeek()
			cur = bucket{y, w}
		}
		if !have || cur != last {
			out = append(out, d)
			last = cur
			have = true
		}
	}
	return out, nil
}
