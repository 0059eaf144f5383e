// Package report persists the artifacts of a finished backtest run under a
// per-run output directory.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/emontero/straddle-roller/internal/analytics"
	"github.com/emontero/straddle-roller/internal/execution"
	"github.com/emontero/straddle-roller/internal/hedge"
	"github.com/emontero/straddle-roller/internal/models"
)

// HedgeReport bundles the solved second-option hedge with its greek impact.
type HedgeReport struct {
	Solution hedge.Solution `json:"solution"`
	Impact   hedge.Impact   `json:"impact"`
}

// Artifacts is everything a run produces. Nil or empty members are skipped.
type Artifacts struct {
	HedgedLedger   []models.LedgerRow
	UnhedgedLedger []models.LedgerRow
	Trades         []models.TradeEvent
	Metrics        map[string]analytics.Metrics
	Execution      []execution.EventCost
	Hedge          *HedgeReport
}

// Writer persists artifacts under <baseDir>/<run id>/. Each file is written
// to a temp path and renamed into place so readers never see partial output.
type Writer struct {
	baseDir string
	logger  *logrus.Logger
}

// NewWriter returns a writer rooted at baseDir. A nil logger falls back to
// the logrus standard logger.
func NewWriter(baseDir string, logger *logrus.Logger) *Writer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Writer{baseDir: baseDir, logger: logger}
}

// Write persists the artifacts and returns the run directory.
func (w *Writer) Write(a Artifacts) (string, error) {
	runID := uuid.New().String()
	dir := filepath.Join(w.baseDir, runID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("report: creating run directory: %w", err)
	}

	if len(a.HedgedLedger) > 0 {
		if err := w.writeAtomic(filepath.Join(dir, "ledger.csv"), ledgerCSV(a.HedgedLedger)); err != nil {
			return "", err
		}
	}
	if len(a.UnhedgedLedger) > 0 {
		if err := w.writeAtomic(filepath.Join(dir, "ledger_unhedged.csv"), ledgerCSV(a.UnhedgedLedger)); err != nil {
			return "", err
		}
	}
	if len(a.Trades) > 0 {
		if err := w.writeAtomic(filepath.Join(dir, "trades.csv"), tradesCSV(a.Trades)); err != nil {
			return "", err
		}
	}
	if len(a.Metrics) > 0 {
		byName := make(map[string]any, len(a.Metrics))
		for name, m := range a.Metrics {
			byName[name] = metricsJSON(m)
		}
		data, err := json.MarshalIndent(byName, "", "  ")
		if err != nil {
			return "", fmt.Errorf("report: marshaling metrics: %w", err)
		}
		if err := w.writeAtomic(filepath.Join(dir, "metrics.json"), data); err != nil {
			return "", err
		}
	}
	if len(a.Execution) > 0 {
		if err := w.writeAtomic(filepath.Join(dir, "execution.csv"), executionCSV(a.Execution)); err != nil {
			return "", err
		}
	}
	if a.Hedge != nil {
		data, err := json.MarshalIndent(hedgeJSON(*a.Hedge), "", "  ")
		if err != nil {
			return "", fmt.Errorf("report: marshaling hedge report: %w", err)
		}
		if err := w.writeAtomic(filepath.Join(dir, "hedge.json"), data); err != nil {
			return "", err
		}
	}

	w.logger.WithFields(logrus.Fields{"run_id": runID, "dir": dir}).Info("wrote run artifacts")
	return dir, nil
}

func (w *Writer) writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("report: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("report: renaming %s: %w", tmp, err)
	}
	return nil
}

func ledgerCSV(rows []models.LedgerRow) []byte {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write([]string{
		"date", "spot", "sigma", "sigma_ok", "strike", "expiry", "time_to_expiry",
		"mark_price", "option_value", "delta", "gamma", "vega_1pct", "theta_day",
		"hedge_shares", "cash", "equity",
	})
	for _, r := range rows {
		_ = cw.Write([]string{
			r.Date.Format("2006-01-02"),
			f(r.Spot), f(r.Sigma), strconv.FormatBool(r.SigmaOK),
			f(r.Strike), r.Expiry.Format("2006-01-02"), f(r.TimeToExpiry),
			f(r.MarkPrice), f(r.OptionValue), f(r.Delta), f(r.Gamma),
			f(r.Vega1Pct), f(r.ThetaDay), f(r.HedgeShares), f(r.Cash), f(r.Equity),
		})
	}
	cw.Flush()
	return buf.Bytes()
}

func tradesCSV(trades []models.TradeEvent) []byte {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write([]string{
		"id", "date", "type", "strike", "expiry", "contracts", "option_value",
		"shares_traded", "shares_after", "price", "cash_after",
	})
	for _, t := range trades {
		expiry := ""
		if !t.Expiry.IsZero() {
			expiry = t.Expiry.Format("2006-01-02")
		}
		_ = cw.Write([]string{
			t.ID, t.Date.Format("2006-01-02"), string(t.Type),
			f(t.Strike), expiry, strconv.Itoa(t.Contracts), f(t.OptionValue),
			f(t.SharesTraded), f(t.SharesAfter), f(t.Price), f(t.CashAfter),
		})
	}
	cw.Flush()
	return buf.Bytes()
}

func executionCSV(costs []execution.EventCost) []byte {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write([]string{
		"date", "strike", "spot", "sigma", "time_to_expiry",
		"combo_exec", "legs_exec_mean", "extra_mean", "extra_p50", "extra_p90", "extra_p99",
		"total_legs_mean", "total_extra_mean", "total_extra_p90", "total_extra_p99",
	})
	for _, c := range costs {
		_ = cw.Write([]string{
			c.Date.Format("2006-01-02"),
			f(c.Strike), f(c.Spot), f(c.Sigma), f(c.TimeToExpiry),
			f(c.ComboExec), f(c.LegsExecMean), f(c.ExtraMean), f(c.ExtraP50),
			f(c.ExtraP90), f(c.ExtraP99), f(c.TotalLegsMean), f(c.TotalExtraMean),
			f(c.TotalExtraP90), f(c.TotalExtraP99),
		})
	}
	cw.Flush()
	return buf.Bytes()
}

// f renders a float for CSV; NaN becomes an empty cell.
func f(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// jf renders a float for JSON; encoding/json rejects NaN and Inf, so those
// become nulls, matching how the metrics mark unavailable ratios.
func jf(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func metricsJSON(m analytics.Metrics) map[string]any {
	return map[string]any{
		"start":            m.Start.Format("2006-01-02"),
		"end":              m.End.Format("2006-01-02"),
		"start_equity":     jf(m.StartEquity),
		"end_equity":       jf(m.EndEquity),
		"total_return":     jf(m.TotalReturn),
		"cagr":             jf(m.CAGR),
		"ann_vol":          jf(m.AnnVol),
		"sharpe":           jf(m.Sharpe),
		"sortino":          jf(m.Sortino),
		"max_drawdown":     jf(m.MaxDrawdown),
		"calmar":           jf(m.Calmar),
		"hit_ratio":        jf(m.HitRatio),
		"avg_daily_return": jf(m.AvgDailyReturn),
		"std_daily_return": jf(m.StdDailyReturn),
	}
}

func greeksJSON(g hedge.Greeks) map[string]any {
	return map[string]any{
		"price":     jf(g.Price),
		"delta":     jf(g.Delta),
		"gamma":     jf(g.Gamma),
		"vega_1pct": jf(g.Vega1Pct),
		"theta_day": jf(g.ThetaDay),
	}
}

func hedgeJSON(h HedgeReport) map[string]any {
	return map[string]any{
		"solution": map[string]any{
			"ratio": jf(h.Solution.Ratio),
			"base":  greeksJSON(h.Solution.Base),
			"hedge": greeksJSON(h.Solution.Hedge),
			"total": greeksJSON(h.Solution.Total),
		},
		"impact": map[string]any{
			"gamma": jf(h.Impact.Gamma),
			"vega":  jf(h.Impact.Vega),
			"theta": jf(h.Impact.Theta),
		},
	}
}
