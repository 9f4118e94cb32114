// Package stats turns two aligned time series — portfolio value and SPY
// benchmark value, both indexed by date — into the return/risk metrics
// reported alongside a backtest (spec §4.F).
package stats

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// tradingDaysPerYear is the annualization constant used throughout
// (spec §4.F: CAGR uses 252, volatility scales by sqrt(252)).
const tradingDaysPerYear = 252

// annualRiskFree is the 2% annual risk-free rate the source converts to
// a daily rate for Sharpe/Sortino (spec §4.F).
const annualRiskFree = 0.02

// Metrics holds every statistic; a nil pointer field represents a JSON
// null (spec §4.F: "Any metric whose denominator is zero ... must return
// null").
type Metrics struct {
	TotalReturn *float64
	CAGR        *float64
	MaxDrawdown *float64
	Volatility  *float64
	Sharpe      *float64
	Sortino     *float64
	Calmar      *float64
	Beta        *float64
}

// Compute derives Metrics from date-ordered portfolio and SPY value
// series. Both slices must already be aligned: values[i] and spy[i]
// correspond to dates[i].
func Compute(dates []time.Time, values, spy []float64) Metrics {
	var m Metrics
	if len(values) < 2 || len(dates) != len(values) {
		return m
	}

	first, last := values[0], values[len(values)-1]
	if first != 0 {
		v := last/first - 1
		m.TotalReturn = &v
	}

	days := dates[len(dates)-1].Sub(dates[0]).Hours() / 24
	if days > 0 && first > 0 && last > 0 {
		v := math.Pow(last/first, tradingDaysPerYear/days) - 1
		m.CAGR = &v
	}

	maxDD := maxDrawdown(values)
	m.MaxDrawdown = &maxDD

	returns := dailyReturns(values)
	if len(returns) > 0 {
		vol := stat.StdDev(returns, nil) * math.Sqrt(tradingDaysPerYear)
		m.Volatility = &vol

		dailyRF := math.Pow(1+annualRiskFree, 1.0/tradingDaysPerYear) - 1

		if m.CAGR != nil && vol != 0 {
			sharpe := (*m.CAGR - dailyRF) / vol
			m.Sharpe = &sharpe
		}

		downside := downsideDeviation(returns, dailyRF)
		if m.CAGR != nil && downside != 0 {
			sortino := (*m.CAGR - dailyRF) / downside
			m.Sortino = &sortino
		}
	}

	if m.CAGR != nil && maxDD != 0 {
		calmar := *m.CAGR / math.Abs(maxDD)
		m.Calmar = &calmar
	}

	if len(spy) == len(values) {
		spyReturns := dailyReturns(spy)
		if len(spyReturns) == len(returns) && len(returns) >= 2 {
			beta := stat.Correlation(returns, spyReturns, nil)
			m.Beta = &beta
		}
	}

	return m
}

// dailyReturns computes simple daily returns without forward-filling,
// matching the indicator library's pct_change convention (spec §4.B).
func dailyReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			out[i-1] = 0
			continue
		}
		out[i-1] = (values[i] - values[i-1]) / values[i-1]
	}
	return out
}

// maxDrawdown is min_t (V_t / cummax(V)_t - 1).
func maxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	runningMax := values[0]
	worst := 0.0
	for _, v := range values {
		if v > runningMax {
			runningMax = v
		}
		if runningMax == 0 {
			continue
		}
		dd := v/runningMax - 1
		if dd < worst {
			worst = dd
		}
	}
	return worst
}

// downsideDeviation is the annualized stdev of (r - dailyRF) clipped at
// zero (spec §4.F Sortino).
func downsideDeviation(returns []float64, dailyRF float64) float64 {
	clipped := make([]float64, len(returns))
	for i, r := range returns {
		d := r - dailyRF
		if d > 0 {
			d = 0
		}
		clipped[i] = d
	}
	return stat.StdDev(clipped, nil) * math.Sqrt(tradingDaysPerYear)
}
