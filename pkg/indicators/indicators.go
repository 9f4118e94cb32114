// Package indicators is a library of pure functions from
// (symbol, as-of date, params...) to a scalar or null, computed with
// strict look-ahead safety: only bars with date <= as-of are ever read.
// State lives entirely in the price repository; these functions hold
// none of their own (spec §4.B, §9).
package indicators

import (
	"time"

	talib "github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/quantedge-go/ruletree/pkg/prices"
)

// Maybe is the result of every indicator. Valid is false (a null result)
// when there is insufficient history or the symbol's data does not yet
// cover as-of; the evaluator treats a null result as a false condition.
type Maybe struct {
	Value float64
	Valid bool
}

func some(v float64) Maybe { return Maybe{Value: v, Valid: true} }

var none = Maybe{}

// series loads the as-of-bounded adjusted-close history for symbol and
// reports whether at least `need` observations are present.
func series(repo prices.Repository, symbol string, asOf time.Time, need int) ([]float64, bool, error) {
	bars, err := repo.History(symbol, asOf)
	if err != nil {
		return nil, false, err
	}
	if len(bars) < need {
		return nil, false, nil
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.AdjClose
	}
	return closes, true, nil
}

func ohlc(repo prices.Repository, symbol string, asOf time.Time, need int) (open, high, low, close []float64, ok bool, err error) {
	bars, err := repo.History(symbol, asOf)
	if err != nil {
		return nil, nil, nil, nil, false, err
	}
	if len(bars) < need {
		return nil, nil, nil, nil, false, nil
	}
	open = make([]float64, len(bars))
	high = make([]float64, len(bars))
	low = make([]float64, len(bars))
	close = make([]float64, len(bars))
	for i, b := range bars {
		open[i], high[i], low[i], close[i] = b.Open, b.High, b.Low, b.AdjClose
	}
	return open, high, low, close, true, nil
}

// CurrentPrice returns the adjusted close of the newest bar <= asOf.
func CurrentPrice(repo prices.Repository, symbol string, asOf time.Time) (Maybe, error) {
	closes, ok, err := series(repo, symbol, asOf, 1)
	if err != nil || !ok {
		return none, err
	}
	return some(closes[len(closes)-1]), nil
}

// SMAPrice is the arithmetic mean of the last `period` adjusted closes.
func SMAPrice(repo prices.Repository, symbol string, asOf time.Time, period int) (Maybe, error) {
	closes, ok, err := series(repo, symbol, asOf, period)
	if err != nil || !ok {
		return none, err
	}
	window := closes[len(closes)-period:]
	return some(mean(window)), nil
}

// EMA is the exponential moving average at the last bar, 2/(period+1)
// smoothing seeded by the simple average of the first `period` values.
func EMA(repo prices.Repository, symbol string, asOf time.Time, period int) (Maybe, error) {
	closes, ok, err := series(repo, symbol, asOf, period)
	if err != nil || !ok {
		return none, err
	}
	out := talib.Ema(closes, period)
	return some(out[len(out)-1]), nil
}

// RSI is Wilder's relative strength index on adjusted close.
func RSI(repo prices.Repository, symbol string, asOf time.Time, period int) (Maybe, error) {
	closes, ok, err := series(repo, symbol, asOf, period+1)
	if err != nil || !ok {
		return none, err
	}
	out := talib.Rsi(closes, period)
	return some(out[len(out)-1]), nil
}

// MACD returns the MACD line value at the last bar.
func MACD(repo prices.Repository, symbol string, asOf time.Time, fast, slow, signal int) (Maybe, error) {
	need := max3(fast, slow, signal)
	closes, ok, err := series(repo, symbol, asOf, need)
	if err != nil || !ok {
		return none, err
	}
	macd, _, _ := talib.Macd(closes, fast, slow, signal)
	return some(macd[len(macd)-1]), nil
}

// ADX is the average directional index at the last bar.
func ADX(repo prices.Repository, symbol string, asOf time.Time, period int) (Maybe, error) {
	_, high, low, close, ok, err := ohlc(repo, symbol, asOf, period)
	if err != nil || !ok {
		return none, err
	}
	out := talib.Adx(high, low, close, period)
	return some(out[len(out)-1]), nil
}

// StochasticOscillator returns fast %K over the last `period` bars.
func StochasticOscillator(repo prices.Repository, symbol string, asOf time.Time, period int) (Maybe, error) {
	_, high, low, close, ok, err := ohlc(repo, symbol, asOf, period)
	if err != nil || !ok {
		return none, err
	}
	k, _ := talib.StochF(high, low, close, period, 3, talib.SMA)
	return some(k[len(k)-1]), nil
}

// StandardDeviationPrice is the sample standard deviation of the last
// `period` adjusted closes.
func StandardDeviationPrice(repo prices.Repository, symbol string, asOf time.Time, period int) (Maybe, error) {
	closes, ok, err := series(repo, symbol, asOf, period)
	if err != nil || !ok {
		return none, err
	}
	window := closes[len(closes)-period:]
	return some(stat.StdDev(window, nil)), nil
}

// SMAReturn is the mean of the last `period` daily simple returns.
func SMAReturn(repo prices.Repository, symbol string, asOf time.Time, period int) (Maybe, error) {
	closes, ok, err := series(repo, symbol, asOf, period+1)
	if err != nil || !ok {
		return none, err
	}
	returns := pctChange(closes)
	window := returns[len(returns)-period:]
	return some(mean(window)), nil
}

// StandardDeviationReturn is the sample standard deviation of the last
// `period` daily simple returns.
func StandardDeviationReturn(repo prices.Repository, symbol string, asOf time.Time, period int) (Maybe, error) {
	closes, ok, err := series(repo, symbol, asOf, period+1)
	if err != nil || !ok {
		return none, err
	}
	returns := pctChange(closes)
	window := returns[len(returns)-period:]
	return some(stat.StdDev(window, nil)), nil
}

// CumulativeReturn compares price `period` bars back to the last price:
// (price_last / price_{last-period}) - 1.
func CumulativeReturn(repo prices.Repository, symbol string, asOf time.Time, period int) (Maybe, error) {
	closes, ok, err := series(repo, symbol, asOf, period+1)
	if err != nil || !ok {
		return none, err
	}
	start := closes[len(closes)-1-period]
	end := closes[len(closes)-1]
	return some(end/start - 1), nil
}

// MaxDrawdown is the min over a trailing window of (price / running-max
// of that window - 1); period defaults to the full available history
// when 0.
func MaxDrawdown(repo prices.Repository, symbol string, asOf time.Time, period int) (Maybe, error) {
	closes, ok, err := series(repo, symbol, asOf, max(period, 1))
	if err != nil || !ok {
		return none, err
	}
	if period <= 0 {
		period = len(closes)
	}
	if len(closes) < period {
		return none, nil
	}
	window := closes[len(closes)-period:]
	runningMax := window[0]
	minDD := 0.0
	for _, c := range window {
		if c > runningMax {
			runningMax = c
		}
		dd := c/runningMax - 1
		if dd < minDD {
			minDD = dd
		}
	}
	return some(minDD), nil
}

// ATR is Wilder's average true range over OHLC.
func ATR(repo prices.Repository, symbol string, asOf time.Time, period int) (Maybe, error) {
	_, high, low, close, ok, err := ohlc(repo, symbol, asOf, period)
	if err != nil || !ok {
		return none, err
	}
	out := talib.Atr(high, low, close, period)
	return some(out[len(out)-1]), nil
}

// ATRPercent is ATR divided by the current price.
func ATRPercent(repo prices.Repository, symbol string, asOf time.Time, period int) (Maybe, error) {
	atr, err := ATR(repo, symbol, asOf, period)
	if err != nil || !atr.Valid {
		return none, err
	}
	price, err := CurrentPrice(repo, symbol, asOf)
	if err != nil || !price.Valid || price.Value == 0 {
		return none, err
	}
	return some(atr.Value / price.Value), nil
}

// VIX reads the fixed VIX series regardless of the symbol argument,
// returning its value at asOf, or its `period`-day mean when period > 0.
func VIX(repo prices.Repository, asOf time.Time, period int) (Maybe, error) {
	closes, ok, err := series(repo, "^VIX", asOf, max(period, 1))
	if err != nil || !ok {
		return none, err
	}
	if period <= 0 {
		return some(closes[len(closes)-1]), nil
	}
	if len(closes) < period {
		return none, nil
	}
	window := closes[len(closes)-period:]
	return some(mean(window)), nil
}

// VIXChange is VIX(asOf) - VIX(asOf - period trading days), i.e. the
// absolute point change over the last `period` observations of the VIX
// series itself.
func VIXChange(repo prices.Repository, asOf time.Time, period int) (Maybe, error) {
	closes, ok, err := series(repo, "^VIX", asOf, period+1)
	if err != nil || !ok {
		return none, err
	}
	current := closes[len(closes)-1]
	past := closes[len(closes)-1-period]
	return some(current - past), nil
}

// SMACross is sma(fast)/sma(slow): > 1 bullish, < 1 bearish.
func SMACross(repo prices.Repository, symbol string, asOf time.Time, fast, slow int) (Maybe, error) {
	need := max(fast, slow)
	closes, ok, err := series(repo, symbol, asOf, need)
	if err != nil || !ok {
		return none, err
	}
	fastSMA := mean(closes[len(closes)-fast:])
	slowSMA := mean(closes[len(closes)-slow:])
	if slowSMA == 0 {
		return none, nil
	}
	return some(fastSMA / slowSMA), nil
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// pctChange computes (x_t - x_{t-1}) / x_{t-1} without forward-filling,
// matching the source's pandas pct_change semantics (spec §4.B).
func pctChange(xs []float64) []float64 {
	out := make([]float64, len(xs)-1)
	for i := 1; i < len(xs); i++ {
		out[i-1] = (xs[i] - xs[i-1]) / xs[i-1]
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func max3(a, b, c int) int {
	return max(max(a, b), c)
}
