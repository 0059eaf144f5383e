package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/emontero/straddle-roller/internal/analytics"
	"github.com/emontero/straddle-roller/internal/config"
	"github.com/emontero/straddle-roller/internal/dashboard"
	"github.com/emontero/straddle-roller/internal/execution"
	"github.com/emontero/straddle-roller/internal/hedge"
	"github.com/emontero/straddle-roller/internal/marketdata"
	"github.com/emontero/straddle-roller/internal/models"
	"github.com/emontero/straddle-roller/internal/pricing"
	"github.com/emontero/straddle-roller/internal/report"
	"github.com/emontero/straddle-roller/internal/retry"
	"github.com/emontero/straddle-roller/internal/strategy"
	"github.com/emontero/straddle-roller/internal/util"
	"github.com/emontero/straddle-roller/internal/volatility"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Fatalf("Failed to parse log level: %v", err)
	}
	logger.SetLevel(level)

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("Backtest failed: %v", err)
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, err := buildProvider(cfg, logger)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"provider": cfg.Data.Provider,
		"symbol":   cfg.Data.Symbol,
		"ref":      cfg.Data.RefSymbol,
	}).Info("Fetching market data")

	var bars, reference []models.Bar
	fetch, fctx := errgroup.WithContext(ctx)
	fetch.Go(func() error {
		var err error
		bars, err = provider.DailyBars(fctx, cfg.Data.Symbol)
		return err
	})
	fetch.Go(func() error {
		var err error
		reference, err = provider.DailyBars(fctx, cfg.Data.RefSymbol)
		return err
	})
	if err := fetch.Wait(); err != nil {
		return fmt.Errorf("fetching market data: %w", err)
	}

	series, err := volatility.BuildProxy(bars, reference, volatility.Params{
		Window:         cfg.Vol.Window,
		Annualization:  cfg.Vol.Annualization,
		ExternalWeight: cfg.Vol.ExternalWeight,
		Floor:          cfg.Vol.Floor,
		Cap:            cfg.Vol.Cap,
	})
	if err != nil {
		return fmt.Errorf("building volatility proxy: %w", err)
	}

	stratCfg := strategy.Config{
		TargetDTE:       cfg.Strategy.TargetDTE,
		RollFrequency:   models.RollFrequency(cfg.Strategy.RollFrequency),
		StrikeIncrement: cfg.Strategy.StrikeIncrement,
		Contracts:       cfg.Strategy.Contracts,
		Multiplier:      cfg.Strategy.Multiplier,
		InitialCash:     cfg.Strategy.InitialCash,
	}
	pricingCfg := strategy.PricingConfig{
		RiskFreeRate:  cfg.Pricing.RiskFreeRate,
		DividendYield: cfg.Pricing.DividendYield,
		DaysPerYear:   cfg.Pricing.DaysPerYear,
	}
	hedgeCfg := strategy.HedgeConfig{
		Enabled:            cfg.Hedge.Enabled,
		TargetDelta:        cfg.Hedge.TargetDelta,
		RebalanceThreshold: cfg.Hedge.RebalanceThreshold,
	}

	// Hedged and unhedged variants run side by side; each simulator is
	// single-threaded and deterministic on its own.
	var (
		hedgedLedger, unhedgedLedger []models.LedgerRow
		hedgedTrades                 []models.TradeEvent
	)
	sims, _ := errgroup.WithContext(ctx)
	sims.Go(func() error {
		sim, err := strategy.NewSimulator(stratCfg, pricingCfg, hedgeCfg, logger)
		if err != nil {
			return err
		}
		hedgedLedger, hedgedTrades, err = sim.Run(series)
		return err
	})
	sims.Go(func() error {
		sim, err := strategy.NewSimulator(stratCfg, pricingCfg, strategy.HedgeConfig{}, logger)
		if err != nil {
			return err
		}
		unhedgedLedger, _, err = sim.Run(series)
		return err
	})
	if err := sims.Wait(); err != nil {
		return fmt.Errorf("running simulations: %w", err)
	}

	metrics := make(map[string]analytics.Metrics, 2)
	for name, ledger := range map[string][]models.LedgerRow{
		"hedged":   hedgedLedger,
		"unhedged": unhedgedLedger,
	} {
		m, err := analytics.Compute(ledger, analytics.DefaultConfig)
		if err != nil {
			return fmt.Errorf("computing %s metrics: %w", name, err)
		}
		metrics[name] = m
		logger.WithFields(logrus.Fields{
			"variant":      name,
			"total_return": m.TotalReturn,
			"max_drawdown": m.MaxDrawdown,
		}).Info("Computed performance metrics")
	}

	costs, err := leggingCosts(cfg, hedgedLedger, hedgedTrades, logger)
	if err != nil {
		return fmt.Errorf("simulating legging costs: %w", err)
	}

	hedgeRep := solveFinalHedge(cfg, hedgedLedger, logger)

	writer := report.NewWriter(cfg.Output.Dir, logger)
	runDir, err := writer.Write(report.Artifacts{
		HedgedLedger:   hedgedLedger,
		UnhedgedLedger: unhedgedLedger,
		Trades:         hedgedTrades,
		Metrics:        metrics,
		Execution:      costs,
		Hedge:          hedgeRep,
	})
	if err != nil {
		return err
	}
	logger.WithField("dir", runDir).Info("Backtest complete")

	if cfg.Dashboard.Enabled {
		return serveDashboard(ctx, cfg, dashboard.RunData{
			Symbol:    cfg.Data.Symbol,
			Ledger:    hedgedLedger,
			Trades:    hedgedTrades,
			Metrics:   metrics,
			Execution: costs,
			Hedge:     hedgeRep,
		}, logger)
	}
	return nil
}

func buildProvider(cfg *config.Config, logger *logrus.Logger) (marketdata.Provider, error) {
	switch cfg.Data.Provider {
	case "csv":
		return marketdata.NewCSVProvider(cfg.Data.Dir), nil
	case "http":
		return retry.NewProvider(marketdata.NewHTTPProvider(cfg.Data.BaseURL, logger), logger), nil
	case "synthetic":
		start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
		if cfg.Data.StartDate != "" {
			var err error
			start, err = time.Parse("2006-01-02", cfg.Data.StartDate)
			if err != nil {
				return nil, fmt.Errorf("parsing data.start_date: %w", err)
			}
		}
		p := marketdata.NewSyntheticProvider(cfg.Data.SyntheticSeed, start, cfg.Data.SyntheticDays)
		p.RefSymbol = cfg.Data.RefSymbol
		return p, nil
	default:
		return nil, fmt.Errorf("unknown data provider %q", cfg.Data.Provider)
	}
}

// leggingCosts estimates the legging-versus-combo cost at every roll entry,
// using the spot, volatility and time to expiry recorded in the ledger.
func leggingCosts(cfg *config.Config, ledger []models.LedgerRow, trades []models.TradeEvent, logger *logrus.Logger) ([]execution.EventCost, error) {
	params := execution.Params{
		ComboSlippageBps: cfg.Execution.ComboSlippageBps,
		LegSlippageBps:   cfg.Execution.LegSlippageBps,
		LegDelaySeconds:  cfg.Execution.LegDelaySeconds,
		NumSims:          cfg.Execution.NumSims,
		Seed:             cfg.Execution.Seed,
		Contracts:        cfg.Strategy.Contracts,
		Multiplier:       cfg.Strategy.Multiplier,
		Workers:          cfg.Execution.Workers,
	}
	order := execution.LegOrder(cfg.Execution.LegOrder)

	byDate := make(map[time.Time]models.LedgerRow, len(ledger))
	for _, row := range ledger {
		byDate[row.Date] = row
	}

	var costs []execution.EventCost
	for _, trade := range trades {
		if trade.Type != models.TradeRollOpen {
			continue
		}
		row, ok := byDate[trade.Date]
		if !ok || !row.SigmaOK || math.IsNaN(row.MarkPrice) {
			logger.WithField("date", trade.Date.Format("2006-01-02")).
				Debug("Skipping legging simulation, volatility undefined at entry")
			continue
		}
		summary, err := execution.SimulateLeggingCost(
			row.Spot, trade.Strike, row.TimeToExpiry,
			cfg.Pricing.RiskFreeRate, row.Sigma, cfg.Pricing.DividendYield,
			params, order,
		)
		if err != nil {
			return nil, err
		}
		costs = append(costs, execution.EventCost{
			Date:         trade.Date,
			Strike:       trade.Strike,
			Spot:         row.Spot,
			Sigma:        row.Sigma,
			TimeToExpiry: row.TimeToExpiry,
			Summary:      summary,
		})
	}
	return costs, nil
}

// solveFinalHedge neutralizes the delta of the last well-defined straddle mark
// with a single out-of-the-money call at the same expiry. Returns nil when the
// run never produced a usable mark or the hedge is degenerate.
func solveFinalHedge(cfg *config.Config, ledger []models.LedgerRow, logger *logrus.Logger) *report.HedgeReport {
	var row *models.LedgerRow
	for i := len(ledger) - 1; i >= 0; i-- {
		if ledger[i].SigmaOK && !math.IsNaN(ledger[i].MarkPrice) {
			row = &ledger[i]
			break
		}
	}
	if row == nil {
		logger.Warn("No well-defined ledger row, skipping hedge solve")
		return nil
	}

	r := cfg.Pricing.RiskFreeRate
	q := cfg.Pricing.DividendYield
	dpy := cfg.Pricing.DaysPerYear
	scale := float64(cfg.Strategy.Contracts) * float64(cfg.Strategy.Multiplier)

	st := pricing.Straddle(row.Spot, row.Strike, row.TimeToExpiry, r, row.Sigma, q, dpy)
	base := hedge.Greeks{
		Price:    st.Price,
		Delta:    st.Delta,
		Gamma:    st.Gamma,
		Vega1Pct: st.Vega1Pct,
		ThetaDay: st.ThetaDay,
	}.Scale(scale)

	hedgeStrike := util.RoundToTick(1.05*row.Spot, cfg.Strategy.StrikeIncrement)
	hg := pricing.PriceGreeks(row.Spot, hedgeStrike, row.TimeToExpiry, r, row.Sigma, models.Call, q, dpy)
	instrument := hedge.Greeks{
		Price:    hg.Price,
		Delta:    hg.Delta,
		Gamma:    hg.Gamma,
		Vega1Pct: hg.Vega1Pct,
		ThetaDay: hg.ThetaDay,
	}

	solution, err := hedge.SolveRatio(base, instrument)
	if err != nil {
		logger.WithError(err).Warn("Hedge solve failed")
		return nil
	}
	logger.WithFields(logrus.Fields{
		"date":         row.Date.Format("2006-01-02"),
		"hedge_strike": hedgeStrike,
		"ratio":        solution.Ratio,
	}).Info("Solved delta-neutral option hedge")

	return &report.HedgeReport{Solution: solution, Impact: solution.Impact()}
}

func serveDashboard(ctx context.Context, cfg *config.Config, data dashboard.RunData, logger *logrus.Logger) error {
	srv := dashboard.NewServer(dashboard.Config{
		Port:      cfg.Dashboard.Port,
		AuthToken: cfg.Dashboard.AuthToken,
	}, data, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping results server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
