package simulator

import "time"

// calendar precomputes, once per backtest, the trading-day set as a
// lookup and the last trading day of each (year, month) present in it
// (spec §4.D: "'Last trading day of month' is precomputed once").
type calendar struct {
	tradingDays    map[time.Time]struct{}
	lastDayOfMonth map[monthKey]time.Time
}

type monthKey struct {
	year  int
	month time.Month
}

func newCalendar(tradingDays []time.Time) *calendar {
	c := &calendar{
		tradingDays:    make(map[time.Time]struct{}, len(tradingDays)),
		lastDayOfMonth: make(map[monthKey]time.Time),
	}
	for _, d := range tradingDays {
		c.tradingDays[d] = struct{}{}
		key := monthKey{d.Year(), d.Month()}
		if existing, ok := c.lastDayOfMonth[key]; !ok || d.After(existing) {
			c.lastDayOfMonth[key] = d
		}
	}
	return c
}

func (c *calendar) isTradingDay(d time.Time) bool {
	_, ok := c.tradingDays[d]
	return ok
}

func (c *calendar) isLastTradingDayOfMonth(d time.Time) bool {
	last, ok := c.lastDayOfMonth[monthKey{d.Year(), d.Month()}]
	return ok && last.Equal(d)
}
