// Package strategy implements the day-by-day straddle backtest: a single-pass
// state machine that opens, marks, rolls and closes a periodically re-struck
// straddle, optionally delta-hedging with the underlying, and emits a daily
// ledger plus a discrete trade log.
package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/emontero/straddle-roller/internal/models"
	"github.com/emontero/straddle-roller/internal/pricing"
	"github.com/emontero/straddle-roller/internal/util"
)

// Config holds the straddle roll and sizing parameters.
type Config struct {
	// TargetDTE is the target days to expiry for each new straddle.
	TargetDTE int
	// RollFrequency schedules periodic rolls (weekly or monthly).
	RollFrequency models.RollFrequency
	// StrikeIncrement rounds the at-the-money strike, e.g. 1.0 for whole
	// dollar strikes.
	StrikeIncrement float64
	// Contracts and Multiplier size the position.
	Contracts  int
	Multiplier int
	// InitialCash seeds the cash account.
	InitialCash float64
}

// PricingConfig holds the market parameters fed to the pricing engine.
type PricingConfig struct {
	RiskFreeRate  float64
	DividendYield float64
	DaysPerYear   float64
}

// HedgeConfig controls the optional delta hedge with the underlying.
type HedgeConfig struct {
	Enabled bool
	// TargetDelta is the desired total portfolio delta in shares.
	TargetDelta float64
	// RebalanceThreshold is the delta drift, in shares, that triggers a
	// rebalance.
	RebalanceThreshold float64
}

// Simulator runs the backtest. It is deterministic: identical inputs produce
// identical ledgers and trade logs. A Simulator is not safe for concurrent
// use, but independent Simulators may run in parallel.
type Simulator struct {
	cfg     Config
	pricing PricingConfig
	hedge   HedgeConfig
	logger  *logrus.Logger
}

// NewSimulator validates the configuration and returns a ready simulator.
// Configuration problems fail here, before any simulation starts.
func NewSimulator(cfg Config, pr PricingConfig, h HedgeConfig, logger *logrus.Logger) (*Simulator, error) {
	if !cfg.RollFrequency.Valid() {
		return nil, fmt.Errorf("strategy: roll frequency must be %q or %q, got %q",
			models.RollWeekly, models.RollMonthly, cfg.RollFrequency)
	}
	if cfg.TargetDTE <= 0 {
		return nil, fmt.Errorf("strategy: target_dte must be > 0, got %d", cfg.TargetDTE)
	}
	if cfg.StrikeIncrement < 0 {
		return nil, fmt.Errorf("strategy: strike_increment must be >= 0, got %v", cfg.StrikeIncrement)
	}
	if cfg.Contracts < 1 || cfg.Multiplier < 1 {
		return nil, fmt.Errorf("strategy: contracts and multiplier must be >= 1")
	}
	if pr.DaysPerYear <= 0 {
		return nil, fmt.Errorf("strategy: days_per_year must be > 0, got %v", pr.DaysPerYear)
	}
	if h.Enabled && h.RebalanceThreshold < 0 {
		return nil, fmt.Errorf("strategy: rebalance_threshold must be >= 0, got %v", h.RebalanceThreshold)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Simulator{cfg: cfg, pricing: pr, hedge: h, logger: logger}, nil
}

// Run executes one pass over the volatility-annotated price series.
//
// A roll is triggered on any of: no position held, a scheduled roll date, or
// the held position having reached expiry. The outgoing position is always
// closed (marked at the current day's price and volatility) before the new one
// opens. Days with undefined volatility mark as NaN but never halt the run;
// cash and hedge shares keep evolving.
func (s *Simulator) Run(series []models.PriceObservation) ([]models.LedgerRow, []models.TradeEvent, error) {
	if len(series) == 0 {
		return nil, nil, fmt.Errorf("strategy: price series is empty")
	}
	dates := make([]time.Time, len(series))
	for i, obs := range series {
		if i > 0 && !series[i-1].Date.Before(obs.Date) {
			return nil, nil, fmt.Errorf("strategy: series dates not strictly increasing at %s",
				obs.Date.Format("2006-01-02"))
		}
		dates[i] = obs.Date
	}

	schedule, err := RollDates(dates, s.cfg.RollFrequency)
	if err != nil {
		return nil, nil, err
	}
	rollSet := make(map[time.Time]struct{}, len(schedule))
	for _, d := range schedule {
		rollSet[d] = struct{}{}
	}

	var (
		pos    *models.StraddlePosition
		shares float64
		cash   = s.cfg.InitialCash
		ledger = make([]models.LedgerRow, 0, len(series))
		trades []models.TradeEvent
		seq    int
	)
	scale := float64(s.cfg.Contracts) * float64(s.cfg.Multiplier)
	r := s.pricing.RiskFreeRate
	q := s.pricing.DividendYield
	dpy := s.pricing.DaysPerYear

	for _, obs := range series {
		t := obs.Date
		S := obs.Close
		sigma := obs.Sigma

		_, scheduled := rollSet[t]
		if pos == nil || scheduled || pos.ExpiredBy(t) {
			// Close the outgoing position at today's theoretical value
			// before the new one opens.
			if pos != nil {
				closeValue := math.NaN()
				if obs.SigmaOK {
					old := pricing.Straddle(S, pos.Strike, pos.TimeToExpiry(t, dpy), r, sigma, q, dpy)
					if old.Valid {
						closeValue = old.Price * scale
						cash += closeValue
					}
				}
				trades = append(trades, models.TradeEvent{
					ID:          s.eventID(&seq, t, models.TradeRollClose),
					Date:        t,
					Type:        models.TradeRollClose,
					Strike:      pos.Strike,
					Expiry:      pos.Expiry,
					Contracts:   pos.Contracts,
					OptionValue: closeValue,
				})
			}

			pos = &models.StraddlePosition{
				Strike:     util.RoundToTick(S, s.cfg.StrikeIncrement),
				Expiry:     util.PriorWeekday(t.AddDate(0, 0, s.cfg.TargetDTE)),
				EntryDate:  t,
				Contracts:  s.cfg.Contracts,
				Multiplier: s.cfg.Multiplier,
			}

			openValue := math.NaN()
			if obs.SigmaOK {
				fresh := pricing.Straddle(S, pos.Strike, pos.TimeToExpiry(t, dpy), r, sigma, q, dpy)
				if fresh.Valid {
					openValue = fresh.Price * scale
					cash -= openValue
				}
			}
			trades = append(trades, models.TradeEvent{
				ID:          s.eventID(&seq, t, models.TradeRollOpen),
				Date:        t,
				Type:        models.TradeRollOpen,
				Strike:      pos.Strike,
				Expiry:      pos.Expiry,
				Contracts:   pos.Contracts,
				OptionValue: openValue,
			})
			s.logger.WithFields(logrus.Fields{
				"date":   t.Format("2006-01-02"),
				"strike": pos.Strike,
				"expiry": pos.Expiry.Format("2006-01-02"),
			}).Debug("rolled straddle")
		}

		// Daily mark-to-market of the held position.
		var (
			tYears    = math.NaN()
			markPrice = math.NaN()
			optValue  float64
			delta     float64
			gamma     float64
			vega      float64
			theta     float64
		)
		if obs.SigmaOK {
			tYears = pos.TimeToExpiry(t, dpy)
			st := pricing.Straddle(S, pos.Strike, tYears, r, sigma, q, dpy)
			if st.Valid {
				markPrice = st.Price
				optValue = st.Price * scale
				delta = st.Delta * scale
				gamma = st.Gamma * scale
				vega = st.Vega1Pct * scale
				theta = st.ThetaDay * scale
			}
		}

		// Delta hedge with the underlying: one share carries one unit of
		// delta, so shares are set to land total delta on target exactly.
		if s.hedge.Enabled {
			totalDelta := delta + shares
			if math.Abs(totalDelta-s.hedge.TargetDelta) > s.hedge.RebalanceThreshold {
				desired := s.hedge.TargetDelta - delta
				traded := desired - shares
				cash -= traded * S
				shares = desired
				trades = append(trades, models.TradeEvent{
					ID:           s.eventID(&seq, t, models.TradeHedge),
					Date:         t,
					Type:         models.TradeHedge,
					SharesTraded: traded,
					SharesAfter:  shares,
					Price:        S,
					CashAfter:    cash,
				})
			}
		}

		ledger = append(ledger, models.LedgerRow{
			Date:         t,
			Spot:         S,
			Sigma:        sigma,
			SigmaOK:      obs.SigmaOK,
			Strike:       pos.Strike,
			Expiry:       pos.Expiry,
			TimeToExpiry: tYears,
			MarkPrice:    markPrice,
			OptionValue:  optValue,
			Delta:        delta,
			Gamma:        gamma,
			Vega1Pct:     vega,
			ThetaDay:     theta,
			HedgeShares:  shares,
			Cash:         cash,
			Equity:       cash + optValue + shares*S,
		})
	}

	return ledger, trades, nil
}

// eventID derives a stable identifier from the event's position in the run,
// keeping trade logs reproducible across identical runs.
func (s *Simulator) eventID(seq *int, t time.Time, typ models.TradeType) string {
	*seq++
	name := fmt.Sprintf("%s|%s|%d", t.Format("2006-01-02"), typ, *seq)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
