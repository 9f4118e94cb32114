// Package prices defines the read-only price repository consumed by the
// indicator library and simulator: per-symbol OHLCV history and a
// multi-symbol adjusted-close panel, both bounded by an as-of date.
package prices

import (
	"errors"
	"time"
)

// ErrSymbolUnknown is returned when a symbol has no bars and cannot be
// fetched from the upstream store.
var ErrSymbolUnknown = errors.New("prices: symbol unknown")

// ErrRepositoryUnavailable is returned after a transient upstream failure
// has already been retried once.
var ErrRepositoryUnavailable = errors.New("prices: repository unavailable")

// Bar is an immutable OHLCV observation for a symbol on a calendar date.
// AdjClose is the canonical price used by every indicator and the
// simulator; Close is retained only for provider fidelity.
type Bar struct {
	Symbol   string
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   float64
}

// Panel is a date-indexed, symbol-columned matrix of adjusted closes.
// A missing (symbol, date) cell is represented by the column simply
// omitting that date; callers apply last-observation-carried-forward
// themselves where the spec calls for it (see simulator).
type Panel struct {
	Dates   []time.Time
	Symbols []string
	// Values[date][symbol] -> adjusted close, or (0, false) if missing.
	Values map[time.Time]map[string]float64
}

// At returns the adjusted close for symbol on date, and whether it was
// present in the panel.
func (p *Panel) At(date time.Time, symbol string) (float64, bool) {
	byDate, ok := p.Values[date]
	if !ok {
		return 0, false
	}
	v, ok := byDate[symbol]
	return v, ok
}

// Repository is the read interface the core depends on. Implementations
// must be safe for concurrent use and should memoize identical calls
// within a single backtest (see Cached, which wraps any Repository with
// an LRU + singleflight layer satisfying that requirement).
type Repository interface {
	// History returns all bars for symbol with Date <= asOf, ordered
	// ascending by date. Returns ErrSymbolUnknown if the symbol has no
	// bars and cannot be fetched; an empty (non-error) result is valid
	// only when asOf precedes the symbol's first bar.
	History(symbol string, asOf time.Time) ([]Bar, error)

	// Panel returns adjusted closes for the given symbols restricted to
	// start <= date <= end.
	Panel(symbols []string, start, end time.Time) (*Panel, error)

	// EarliestDate returns the minimum date present for symbol, or the
	// zero time and false if the symbol is unknown.
	EarliestDate(symbol string) (time.Time, bool, error)

	// TradingDays returns the ordered set of dates for which an SPY bar
	// exists; this is the market calendar.
	TradingDays() ([]time.Time, error)
}

// SPY is the benchmark symbol whose bar set defines the trading-day
// calendar (spec glossary: "Trading day").
const SPY = "SPY"
