package ledger

import (
	"testing"
	"time"
)

func TestBuyUpdatesAverageCost(t *testing.T) {
	l := New(1000)
	l.Buy("AAPL", 5, 100) // 500 spent, avg 100
	l.Buy("AAPL", 5, 200) // 1000 spent, avg (5*100+5*200)/10=150

	lot := l.Holdings["AAPL"]
	if lot.Shares != 10 {
		t.Fatalf("expected 10 shares, got %v", lot.Shares)
	}
	if lot.AvgPrice != 150 {
		t.Fatalf("expected avg price 150, got %v", lot.AvgPrice)
	}
	if l.Cash != -500 {
		t.Fatalf("expected cash -500 after spending 1500 of 1000, got %v", l.Cash)
	}
}

func TestSellRemovesLotAtZeroShares(t *testing.T) {
	l := New(1000)
	l.Buy("AAPL", 10, 100)
	l.Sell("AAPL", 10, 110)

	if _, ok := l.Holdings["AAPL"]; ok {
		t.Fatalf("expected lot to be removed at zero shares")
	}
	if l.Cash != 1100 {
		t.Fatalf("expected cash 1100 (1000 - 1000 + 1100), got %v", l.Cash)
	}
}

func TestSnapshotAndCarryForwardAreMonotone(t *testing.T) {
	l := New(1000)
	d1 := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC)

	l.Buy("AAPL", 1, 100)
	l.Snapshot(d1)
	l.CarryForward(d2)

	if len(l.Dates()) != 2 || !l.Dates()[0].Before(l.Dates()[1]) {
		t.Fatalf("expected strictly increasing dates, got %v", l.Dates())
	}
	if l.SharesHistory[d2]["AAPL"] != 1 {
		t.Fatalf("expected carried-forward shares to match prior day")
	}
}

func TestSpendableCashReservesMinCash(t *testing.T) {
	l := New(MinCash + 2)
	if got := l.SpendableCash(); got != 2 {
		t.Fatalf("expected spendable cash of 2, got %v", got)
	}

	l2 := New(MinCash - 1)
	if got := l2.SpendableCash(); got != 0 {
		t.Fatalf("expected spendable cash floored at 0, got %v", got)
	}
}
