package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/quantedge-go/ruletree/pkg/prices"
	"github.com/quantedge-go/ruletree/pkg/ruletree"
)

// fakeRepo serves SPY-only daily bars for a fixed date range, with no
// weekend gaps, so "trading day" == every calendar day in range. Good
// enough to exercise month-end rebalance detection and the sell/buy
// sequencing contract without a real database.
type fakeRepo struct {
	days  []time.Time
	price map[time.Time]float64
}

func newFakeRepo(start, end time.Time, price float64) *fakeRepo {
	r := &fakeRepo{price: make(map[time.Time]float64)}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		r.days = append(r.days, d)
		r.price[d] = price
	}
	return r
}

func (r *fakeRepo) History(symbol string, asOf time.Time) ([]prices.Bar, error) {
	var out []prices.Bar
	for _, d := range r.days {
		if !d.After(asOf) {
			out = append(out, prices.Bar{Symbol: symbol, Date: d, AdjClose: r.price[d]})
		}
	}
	return out, nil
}

func (r *fakeRepo) Panel(symbols []string, start, end time.Time) (*prices.Panel, error) {
	p := &prices.Panel{Values: make(map[time.Time]map[string]float64)}
	for _, d := range r.days {
		if d.Before(start) || d.After(end) {
			continue
		}
		row := make(map[string]float64)
		for _, s := range symbols {
			row[s] = r.price[d]
		}
		p.Values[d] = row
		p.Dates = append(p.Dates, d)
	}
	return p, nil
}

func (r *fakeRepo) EarliestDate(symbol string) (time.Time, bool, error) {
	if len(r.days) == 0 {
		return time.Time{}, false, nil
	}
	return r.days[0], true, nil
}

func (r *fakeRepo) TradingDays() ([]time.Time, error) {
	return r.days, nil
}

func TestMonthlyRebalanceOccursOnLastTradingDayOfMonth(t *testing.T) {
	start := time.Date(2021, 2, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 4, 5, 0, 0, 0, 0, time.UTC)
	repo := newFakeRepo(start, end, 100)

	root := ruletree.Node{
		Kind: ruletree.NodeWeight,
		Weight: &ruletree.WeightNode{
			WeightType: ruletree.EqualBuy,
			Assets:     []ruletree.Asset{{Symbol: prices.SPY}},
		},
	}

	result, err := Run(context.Background(), repo, root, start, end, 1000, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A rebalance buys SPY, so it shows up as a change in the held share
	// count from one snapshot date to the next. In this calendar the last
	// trading day of a month is its last calendar day, except April,
	// whose data ends on `end`.
	rebalanceDates := map[string]bool{}
	dates := result.Portfolio.Dates()
	for i := 1; i < len(dates); i++ {
		prev, d := dates[i-1], dates[i]
		if result.Portfolio.SharesHistory[d][prices.SPY] == result.Portfolio.SharesHistory[prev][prices.SPY] {
			continue
		}
		if d.Day() != lastDayOf(d) && !d.Equal(end) {
			t.Fatalf("rebalance on %s, which is not the last trading day of its month", d.Format("2006-01-02"))
		}
		rebalanceDates[d.Format("2006-01-02")] = true
	}

	if !rebalanceDates["2021-02-28"] || !rebalanceDates["2021-03-31"] {
		t.Fatalf("expected rebalances on 2021-02-28 and 2021-03-31, got %v", rebalanceDates)
	}
}

func lastDayOf(d time.Time) int {
	firstOfNext := time.Date(d.Year(), d.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNext.AddDate(0, 0, -1).Day()
}

func TestBuyAndHoldSPYTracksBenchmarkClosely(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 6, 30, 0, 0, 0, 0, time.UTC)
	repo := newFakeRepo(start, end, 300)

	root := ruletree.Node{
		Kind: ruletree.NodeWeight,
		Weight: &ruletree.WeightNode{
			WeightType: ruletree.EqualBuy,
			Assets:     []ruletree.Asset{{Symbol: prices.SPY}},
		},
	}

	result, err := Run(context.Background(), repo, root, start, end, 1000, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	portfolioValues, spyValues, dates, err := Value(repo, result, start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, d := range dates {
		pv, sv := portfolioValues[d], spyValues[d]
		if sv == 0 {
			continue
		}
		diff := (pv - sv) / sv
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.001 {
			t.Fatalf("portfolio value %v diverged from SPY %v by more than 0.1%% on %v", pv, sv, d)
		}
	}
}
