// Package simulator is the backtest driver (component F): it steps a
// calendar-day cursor, injects monthly contributions, triggers a
// rebalance via the evaluator on the last trading day of each month, and
// advances a parallel SPY benchmark under the same contribution schedule
// (spec §4.D-E).
package simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/quantedge-go/ruletree/pkg/evaluator"
	"github.com/quantedge-go/ruletree/pkg/ledger"
	"github.com/quantedge-go/ruletree/pkg/logging"
	"github.com/quantedge-go/ruletree/pkg/prices"
	"github.com/quantedge-go/ruletree/pkg/ruletree"
)

// Result is the simulator's output: the portfolio and SPY ledgers after
// the date loop and post-simulation valuation (spec §4.D-E).
type Result struct {
	Portfolio *ledger.Ledger
	Benchmark *ledger.Ledger
}

// Run executes the backtest over [startDate, endDate] against repo,
// evaluating root on every rebalance date. ctx is checked once per
// simulated calendar day; cancellation exits the loop cleanly with
// whatever partial state has accumulated (spec §5).
func Run(ctx context.Context, repo prices.Repository, root ruletree.Node, startDate, endDate time.Time, startingCapital, monthlyInvestment float64) (*Result, error) {
	logger := logging.GetLogger("simulator")

	tradingDays, err := repo.TradingDays()
	if err != nil {
		return nil, fmt.Errorf("simulator: load trading days: %w", err)
	}
	cal := newCalendar(tradingDays)

	portfolio := ledger.New(startingCapital)
	spy := ledger.New(startingCapital)

	now := time.Now()
	cursor := startDate

	for !cursor.After(endDate) {
		select {
		case <-ctx.Done():
			logger.Warn().Time("cursor", cursor).Msg("backtest cancelled")
			return &Result{Portfolio: portfolio, Benchmark: spy}, ctx.Err()
		default:
		}

		// Guard against simulating dates beyond what has actually
		// elapsed (spec §4.D step 1).
		if cursor.AddDate(0, 1, 0).After(now) {
			break
		}

		if !cal.isTradingDay(cursor) {
			cursor = cursor.AddDate(0, 0, 1)
			continue
		}

		if cal.isLastTradingDayOfMonth(cursor) {
			if err := rebalanceSPY(repo, spy, cursor, monthlyInvestment); err != nil {
				return nil, err
			}
			if err := rebalancePortfolio(repo, portfolio, root, cursor, monthlyInvestment); err != nil {
				return nil, err
			}
			portfolio.Snapshot(cursor)
			spy.Snapshot(cursor)
		} else {
			portfolio.CarryForward(cursor)
			spy.CarryForward(cursor)
		}

		cursor = cursor.AddDate(0, 0, 1)
	}

	return &Result{Portfolio: portfolio, Benchmark: spy}, nil
}

func rebalanceSPY(repo prices.Repository, spy *ledger.Ledger, date time.Time, monthlyInvestment float64) error {
	spy.Cash += monthlyInvestment

	bars, err := repo.History(prices.SPY, date)
	if err != nil {
		return fmt.Errorf("simulator: spy price on %s: %w", date.Format("2006-01-02"), err)
	}
	if len(bars) == 0 {
		return nil
	}
	price := bars[len(bars)-1].AdjClose
	if price <= 0 {
		return nil
	}

	shares := spy.SpendableCash() / price
	spy.Buy(prices.SPY, shares, price)
	return nil
}

// rebalancePortfolio applies the evaluator's directive for date: sells
// precede buys, a binding contract because buy sizing reads the cash
// left over after sells clear (spec §4.D, §8 property 5).
func rebalancePortfolio(repo prices.Repository, portfolio *ledger.Ledger, root ruletree.Node, date time.Time, monthlyInvestment float64) error {
	portfolio.Cash += monthlyInvestment

	directive, err := evaluator.Evaluate(repo, root, date)
	if err != nil {
		return fmt.Errorf("simulator: evaluate strategy on %s: %w", date.Format("2006-01-02"), err)
	}

	for symbol, weight := range directive.Sell {
		lot, ok := portfolio.Holdings[symbol]
		if !ok {
			continue
		}
		price, err := priceAt(repo, symbol, date)
		if err != nil {
			return err
		}
		if price <= 0 {
			continue
		}
		portfolio.Sell(symbol, lot.Shares*weight, price)
	}

	spendable := portfolio.SpendableCash()
	for symbol, weight := range directive.Buy {
		price, err := priceAt(repo, symbol, date)
		if err != nil {
			return err
		}
		if price <= 0 {
			continue
		}
		shares := spendable * weight / price
		portfolio.Buy(symbol, shares, price)
	}

	return nil
}

func priceAt(repo prices.Repository, symbol string, asOf time.Time) (float64, error) {
	bars, err := repo.History(symbol, asOf)
	if err != nil {
		return 0, fmt.Errorf("simulator: price of %s on %s: %w", symbol, asOf.Format("2006-01-02"), err)
	}
	if len(bars) == 0 {
		return 0, nil
	}
	return bars[len(bars)-1].AdjClose, nil
}

// Value computes the post-simulation valuation (spec §4.E): it loads the
// adjusted-close panel over the union of every symbol ever held plus SPY,
// fills value histories using last-observation-carried-forward for gaps,
// and returns both value series aligned by date.
func Value(repo prices.Repository, result *Result, startDate, endDate time.Time) (portfolioValues, spyValues map[time.Time]float64, dates []time.Time, err error) {
	symbols := result.Portfolio.Symbols()
	symbolSet := make(map[string]struct{}, len(symbols)+1)
	for _, s := range symbols {
		symbolSet[s] = struct{}{}
	}
	symbolSet[prices.SPY] = struct{}{}

	all := make([]string, 0, len(symbolSet))
	for s := range symbolSet {
		all = append(all, s)
	}

	panel, perr := repo.Panel(all, startDate, endDate)
	if perr != nil {
		return nil, nil, nil, fmt.Errorf("simulator: load valuation panel: %w", perr)
	}

	dates = result.Portfolio.Dates()
	portfolioValues = make(map[time.Time]float64, len(dates))
	spyValues = make(map[time.Time]float64, len(dates))

	last := make(map[string]float64, len(all))

	for _, d := range dates {
		for _, s := range all {
			if v, ok := panel.At(d, s); ok {
				last[s] = v
			}
		}

		cash := result.Portfolio.CashHistory[d]
		shares := result.Portfolio.SharesHistory[d]
		value := cash
		for symbol, qty := range shares {
			value += qty * last[symbol]
		}
		portfolioValues[d] = value
		result.Portfolio.ValueHistory[d] = value

		spyCash := result.Benchmark.CashHistory[d]
		spyShares := result.Benchmark.SharesHistory[d][prices.SPY]
		spyValues[d] = spyCash + spyShares*last[prices.SPY]
		result.Benchmark.ValueHistory[d] = spyValues[d]
	}

	return portfolioValues, spyValues, dates, nil
}
