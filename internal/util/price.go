// Package util provides common utility functions for price and calendar math.
package util

import (
	"math"
	"time"
)

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.01, 1.2345 becomes 1.23 or 1.24 depending on rounding.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// PriorWeekday returns t shifted backward to the previous weekday if it falls
// on a weekend; weekdays are returned unchanged. Used to keep theoretical
// option expiries on trading days.
func PriorWeekday(t time.Time) time.Time {
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, -1)
	}
	return t
}
