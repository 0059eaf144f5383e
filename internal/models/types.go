// Package models provides the data structures shared by the backtest pipeline:
// market data series, option positions, the daily ledger and the trade log.
package models

import (
	"fmt"
	"math"
	"time"
)

// Bar is a single daily close for a symbol, as delivered by a market data
// provider. Bars are always consumed as an ordered slice with strictly
// increasing dates.
type Bar struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// OptionRight identifies the side of an option contract.
type OptionRight string

const (
	// Call is the right to buy the underlying at the strike.
	Call OptionRight = "call"
	// Put is the right to sell the underlying at the strike.
	Put OptionRight = "put"
)

// Valid returns true if the OptionRight is one of the defined constants.
func (r OptionRight) Valid() bool {
	switch r {
	case Call, Put:
		return true
	default:
		return false
	}
}

// RollFrequency controls how often the strategy rolls into a fresh straddle.
type RollFrequency string

const (
	// RollWeekly rolls on the first trading day of each ISO week.
	RollWeekly RollFrequency = "W"
	// RollMonthly rolls on the first trading day of each calendar month.
	RollMonthly RollFrequency = "M"
)

// Valid returns true if the RollFrequency is one of the defined constants.
func (f RollFrequency) Valid() bool {
	switch f {
	case RollWeekly, RollMonthly:
		return true
	default:
		return false
	}
}

// PriceObservation is one date of the volatility-annotated price series the
// simulator consumes. Realized, External and Sigma are NaN while undefined
// (e.g. during the realized-vol warm-up window); SigmaOK makes the undefined
// state explicit so callers never have to sniff NaNs.
type PriceObservation struct {
	Date     time.Time `json:"date"`
	Close    float64   `json:"close"`
	Realized float64   `json:"realized"`
	External float64   `json:"external"`
	Sigma    float64   `json:"sigma"`
	SigmaOK  bool      `json:"sigma_ok"`
}

// StraddlePosition is the currently held straddle: one call and one put at the
// same strike and expiry. The simulator holds at most one at a time.
type StraddlePosition struct {
	Strike     float64   `json:"strike"`
	Expiry     time.Time `json:"expiry"`
	EntryDate  time.Time `json:"entry_date"`
	Contracts  int       `json:"contracts"`
	Multiplier int       `json:"multiplier"`
}

// Scale returns the contract scaling applied to per-unit option values,
// contracts times the contract multiplier.
func (p *StraddlePosition) Scale() float64 {
	return float64(p.Contracts) * float64(p.Multiplier)
}

// ExpiredBy reports whether the position has reached or passed expiry at t.
func (p *StraddlePosition) ExpiredBy(t time.Time) bool {
	return !t.Before(p.Expiry)
}

// TimeToExpiry returns the remaining lifetime at t in years under the given
// days-per-year convention, floored at a tiny positive value so pricing on the
// expiry date itself stays well defined.
func (p *StraddlePosition) TimeToExpiry(t time.Time, daysPerYear float64) float64 {
	days := p.Expiry.Sub(t).Hours() / 24
	return math.Max(days/daysPerYear, 1e-9)
}

// LedgerRow is one date of backtest output: the mark-to-market of the held
// straddle, portfolio greeks, hedge and cash state. MarkPrice and greeks are
// NaN when the day's volatility is undefined; OptionValue is then zero so the
// equity identity (Equity = Cash + OptionValue + HedgeShares*Spot) still holds
// exactly on every row.
type LedgerRow struct {
	Date         time.Time `json:"date"`
	Spot         float64   `json:"spot"`
	Sigma        float64   `json:"sigma"`
	SigmaOK      bool      `json:"sigma_ok"`
	Strike       float64   `json:"strike"`
	Expiry       time.Time `json:"expiry"`
	TimeToExpiry float64   `json:"time_to_expiry"`
	MarkPrice    float64   `json:"mark_price"`
	OptionValue  float64   `json:"option_value"`
	Delta        float64   `json:"delta"`
	Gamma        float64   `json:"gamma"`
	Vega1Pct     float64   `json:"vega_1pct"`
	ThetaDay     float64   `json:"theta_day"`
	HedgeShares  float64   `json:"hedge_shares"`
	Cash         float64   `json:"cash"`
	Equity       float64   `json:"equity"`
}

// TradeType discriminates entries in the trade log.
type TradeType string

const (
	// TradeRollOpen records a new straddle being opened.
	TradeRollOpen TradeType = "ROLL_OPEN"
	// TradeRollClose records the outgoing straddle being marked out.
	TradeRollClose TradeType = "ROLL_CLOSE"
	// TradeHedge records a rebalance of the underlying hedge.
	TradeHedge TradeType = "HEDGE_TRADE"
)

// Valid returns true if the TradeType is one of the defined constants.
func (t TradeType) Valid() bool {
	switch t {
	case TradeRollOpen, TradeRollClose, TradeHedge:
		return true
	default:
		return false
	}
}

// TradeEvent is a single entry in the append-only trade log. Roll events carry
// strike/expiry/value; hedge events carry the share fields. The unused fields
// of the other variant are zero and omitted from JSON.
type TradeEvent struct {
	ID   string    `json:"id"`
	Date time.Time `json:"date"`
	Type TradeType `json:"type"`

	Strike      float64   `json:"strike,omitempty"`
	Expiry      time.Time `json:"expiry,omitzero"`
	Contracts   int       `json:"contracts,omitempty"`
	OptionValue float64   `json:"option_value,omitempty"`

	SharesTraded float64 `json:"shares_traded,omitempty"`
	SharesAfter  float64 `json:"shares_after,omitempty"`
	Price        float64 `json:"price,omitempty"`
	CashAfter    float64 `json:"cash_after,omitempty"`
}

func (e TradeEvent) String() string {
	switch e.Type {
	case TradeHedge:
		return fmt.Sprintf("%s %s %+.2f shares @ %.2f (pos %.2f)",
			e.Date.Format("2006-01-02"), e.Type, e.SharesTraded, e.Price, e.SharesAfter)
	default:
		return fmt.Sprintf("%s %s K=%.2f exp=%s value=%.2f",
			e.Date.Format("2006-01-02"), e.Type, e.Strike, e.Expiry.Format("2006-01-02"), e.OptionValue)
	}
}
