package dashboard

import (
	"math"

	"github.com/emontero/straddle-roller/internal/analytics"
	"github.com/emontero/straddle-roller/internal/execution"
	"github.com/emontero/straddle-roller/internal/hedge"
	"github.com/emontero/straddle-roller/internal/models"
	"github.com/emontero/straddle-roller/internal/report"
)

// jf renders a float for JSON; NaN and Inf, which encoding/json rejects,
// become nulls.
func jf(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func ledgerViews(rows []models.LedgerRow) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any{
			"date":           r.Date.Format("2006-01-02"),
			"spot":           jf(r.Spot),
			"sigma":          jf(r.Sigma),
			"sigma_ok":       r.SigmaOK,
			"strike":         jf(r.Strike),
			"expiry":         r.Expiry.Format("2006-01-02"),
			"time_to_expiry": jf(r.TimeToExpiry),
			"mark_price":     jf(r.MarkPrice),
			"option_value":   jf(r.OptionValue),
			"delta":          jf(r.Delta),
			"gamma":          jf(r.Gamma),
			"vega_1pct":      jf(r.Vega1Pct),
			"theta_day":      jf(r.ThetaDay),
			"hedge_shares":   jf(r.HedgeShares),
			"cash":           jf(r.Cash),
			"equity":         jf(r.Equity),
		}
	}
	return out
}

func tradeViews(trades []models.TradeEvent) []map[string]any {
	out := make([]map[string]any, len(trades))
	for i, t := range trades {
		v := map[string]any{
			"id":   t.ID,
			"date": t.Date.Format("2006-01-02"),
			"type": string(t.Type),
		}
		switch t.Type {
		case models.TradeHedge:
			v["shares_traded"] = jf(t.SharesTraded)
			v["shares_after"] = jf(t.SharesAfter)
			v["price"] = jf(t.Price)
			v["cash_after"] = jf(t.CashAfter)
		default:
			v["strike"] = jf(t.Strike)
			v["expiry"] = t.Expiry.Format("2006-01-02")
			v["contracts"] = t.Contracts
			v["option_value"] = jf(t.OptionValue)
		}
		out[i] = v
	}
	return out
}

func metricsViews(metrics map[string]analytics.Metrics) map[string]any {
	out := make(map[string]any, len(metrics))
	for name, m := range metrics {
		out[name] = map[string]any{
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
	return out
}

func executionViews(costs []execution.EventCost) []map[string]any {
	out := make([]map[string]any, len(costs))
	for i, c := range costs {
		out[i] = map[string]any{
			"date":             c.Date.Format("2006-01-02"),
			"strike":           jf(c.Strike),
			"spot":             jf(c.Spot),
			"sigma":            jf(c.Sigma),
			"time_to_expiry":   jf(c.TimeToExpiry),
			"combo_exec":       jf(c.ComboExec),
			"legs_exec_mean":   jf(c.LegsExecMean),
			"extra_mean":       jf(c.ExtraMean),
			"extra_p50":        jf(c.ExtraP50),
			"extra_p90":        jf(c.ExtraP90),
			"extra_p99":        jf(c.ExtraP99),
			"total_legs_mean":  jf(c.TotalLegsMean),
			"total_extra_mean": jf(c.TotalExtraMean),
			"total_extra_p90":  jf(c.TotalExtraP90),
			"total_extra_p99":  jf(c.TotalExtraP99),
		}
	}
	return out
}

func greeksMap(g hedge.Greeks) map[string]any {
	return map[string]any{
		"price":     jf(g.Price),
		"delta":     jf(g.Delta),
		"gamma":     jf(g.Gamma),
		"vega_1pct": jf(g.Vega1Pct),
		"theta_day": jf(g.ThetaDay),
	}
}

func hedgeView(h report.HedgeReport) map[string]any {
	return map[string]any{
		"solution": map[string]any{
			"ratio": jf(h.Solution.Ratio),
			"base":  greeksMap(h.Solution.Base),
			"hedge": greeksMap(h.Solution.Hedge),
			"total": greeksMap(h.Solution.Total),
		},
		"impact": map[string]any{
			"gamma": jf(h.Impact.Gamma),
			"vega":  jf(h.Impact.Vega),
			"theta": jf(h.Impact.Theta),
		},
	}
}
