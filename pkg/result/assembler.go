// Package result assembles the backtest response document: floating
// point NaN/+-Infinity normalized to JSON null, dates formatted as
// YYYY-MM-DD, and the three top-level sections the HTTP surface returns
// (spec §4.G, §6).
package result

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/quantedge-go/ruletree/pkg/ledger"
	"github.com/quantedge-go/ruletree/pkg/stats"
)

const dateLayout = "2006-01-02"

// Number is a float64 that marshals to JSON null when NaN or +-Infinity
// instead of an invalid JSON token (spec §4.G, §6 "Numeric wire format").
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// DailyValue is one row of the portfolio's daily series.
type DailyValue struct {
	Date           string `json:"date"`
	PortfolioValue Number `json:"portfolio_value"`
	Cash           Number `json:"cash"`
}

// SpyValue is one row of the benchmark's daily series.
type SpyValue struct {
	Date     string `json:"date"`
	SpyValue Number `json:"spy_value"`
}

// Response is the full `/backtest` success body.
type Response struct {
	DailyValues []DailyValue           `json:"daily_values"`
	SpyValues   []SpyValue             `json:"spy_values"`
	Stats       map[string]interface{} `json:"stats"`
}

// ErrorResponse is the `/backtest` failure body (spec §6).
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Assemble builds the response document from the ledgers' histories and
// the post-simulation valuation.
func Assemble(portfolio, benchmark *ledger.Ledger, portfolioValues, spyValues map[time.Time]float64, dates []time.Time) Response {
	sorted := append([]time.Time(nil), dates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	daily := make([]DailyValue, 0, len(sorted))
	spy := make([]SpyValue, 0, len(sorted))
	values := make([]float64, 0, len(sorted))
	spySeries := make([]float64, 0, len(sorted))

	for _, d := range sorted {
		dateStr := d.Format(dateLayout)
		v := portfolioValues[d]
		daily = append(daily, DailyValue{
			Date:           dateStr,
			PortfolioValue: Number(v),
			Cash:           Number(portfolio.CashHistory[d]),
		})
		values = append(values, v)

		sv := spyValues[d]
		spy = append(spy, SpyValue{Date: dateStr, SpyValue: Number(sv)})
		spySeries = append(spySeries, sv)
	}

	m := stats.Compute(sorted, values, spySeries)

	return Response{
		DailyValues: daily,
		SpyValues:   spy,
		Stats: map[string]interface{}{
			"total_return": statValue(m.TotalReturn),
			"cagr":         statValue(m.CAGR),
			"max_drawdown": statValue(m.MaxDrawdown),
			"volatility":   statValue(m.Volatility),
			"sharpe":       statValue(m.Sharpe),
			"sortino":      statValue(m.Sortino),
			"calmar":       statValue(m.Calmar),
			"beta":         statValue(m.Beta),
		},
	}
}

// statValue mirrors the source's per-stat type coercion (spec §4.G,
// "Supplemented features"): a present float becomes a number (NaN/Inf
// becomes null via Number's MarshalJSON), an absent one becomes null
// directly rather than the literal string fallback, since every metric
// here is always float-typed.
func statValue(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return Number(*f)
}
