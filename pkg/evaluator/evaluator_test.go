package evaluator

import (
	"testing"
	"time"

	"github.com/quantedge-go/ruletree/pkg/prices"
	"github.com/quantedge-go/ruletree/pkg/ruletree"
)

// fakeRepo is a minimal in-memory Repository for evaluator tests.
type fakeRepo struct {
	bars     map[string][]prices.Bar
	earliest map[string]time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		bars:     make(map[string][]prices.Bar),
		earliest: make(map[string]time.Time),
	}
}

func (r *fakeRepo) addDailyCloses(symbol string, start time.Time, closes []float64) {
	r.earliest[symbol] = start
	for i, c := range closes {
		r.bars[symbol] = append(r.bars[symbol], prices.Bar{
			Symbol:   symbol,
			Date:     start.AddDate(0, 0, i),
			AdjClose: c,
			Close:    c,
		})
	}
}

func (r *fakeRepo) History(symbol string, asOf time.Time) ([]prices.Bar, error) {
	var out []prices.Bar
	for _, b := range r.bars[symbol] {
		if !b.Date.After(asOf) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeRepo) Panel(symbols []string, start, end time.Time) (*prices.Panel, error) {
	return &prices.Panel{}, nil
}

func (r *fakeRepo) EarliestDate(symbol string) (time.Time, bool, error) {
	d, ok := r.earliest[symbol]
	return d, ok, nil
}

func (r *fakeRepo) TradingDays() ([]time.Time, error) {
	return nil, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestEqualBuySplitsEvenlyAcrossValidAssets(t *testing.T) {
	repo := newFakeRepo()
	repo.addDailyCloses("A", date(2020, 1, 1), []float64{10})
	repo.addDailyCloses("B", date(2020, 1, 1), []float64{10})
	repo.addDailyCloses("C", date(2020, 6, 1), []float64{10}) // not yet valid on asOf below

	asOf := date(2020, 2, 1)
	root := ruletree.Node{
		Kind: ruletree.NodeWeight,
		Weight: &ruletree.WeightNode{
			WeightType: ruletree.EqualBuy,
			Assets: []ruletree.Asset{
				{Symbol: "A"}, {Symbol: "B"}, {Symbol: "C"},
			},
		},
	}

	d, err := Evaluate(repo, root, asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Buy) != 2 || d.Buy["A"] != 0.5 || d.Buy["B"] != 0.5 {
		t.Fatalf("unexpected directive: %+v", d.Buy)
	}
	if _, ok := d.Buy["C"]; ok {
		t.Fatalf("C should have been filtered as invalid")
	}
}

func TestWeightedBuyRenormalizesAfterFilter(t *testing.T) {
	repo := newFakeRepo()
	repo.addDailyCloses("A", date(2020, 1, 1), []float64{10})
	repo.addDailyCloses("B", date(2020, 1, 1), []float64{10})
	repo.addDailyCloses("C", date(2020, 6, 1), []float64{10})

	asOf := date(2020, 2, 1)
	root := ruletree.Node{
		Kind: ruletree.NodeWeight,
		Weight: &ruletree.WeightNode{
			WeightType: ruletree.WeightedBuy,
			Assets: []ruletree.Asset{
				{Symbol: "A", Weight: 0.5},
				{Symbol: "B", Weight: 0.3},
				{Symbol: "C", Weight: 0.2},
			},
		},
	}

	d, err := Evaluate(repo, root, asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if abs(d.Buy["A"]-0.625) > 1e-9 || abs(d.Buy["B"]-0.375) > 1e-9 {
		t.Fatalf("unexpected renormalized weights: %+v", d.Buy)
	}
}

func TestWeightedBuyRejectsInvalidSumBeforeFiltering(t *testing.T) {
	repo := newFakeRepo()
	repo.addDailyCloses("A", date(2020, 1, 1), []float64{10})
	repo.addDailyCloses("B", date(2020, 1, 1), []float64{10})

	root := ruletree.Node{
		Kind: ruletree.NodeWeight,
		Weight: &ruletree.WeightNode{
			WeightType: ruletree.WeightedBuy,
			Assets: []ruletree.Asset{
				{Symbol: "A", Weight: 0.5},
				{Symbol: "B", Weight: 0.4}, // sums to 0.9
			},
		},
	}

	_, err := Evaluate(repo, root, date(2020, 2, 1))
	if err == nil {
		t.Fatalf("expected WeightSumInvalid error")
	}
}

func TestMissingIndicatorDataTakesFalseBranch(t *testing.T) {
	repo := newFakeRepo()
	repo.addDailyCloses("Z", date(2020, 1, 1), []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	root := ruletree.Node{
		Kind: ruletree.NodeCondition,
		Condition: &ruletree.ConditionNode{
			Indicator: ruletree.Indicator{
				Kind: ruletree.IndicatorScalar,
				Scalar: &ruletree.ScalarIndicator{
					Name:   "rsi",
					Symbol: "Z",
					Params: []float64{14},
				},
			},
			Comparator: ruletree.GT,
			Threshold:  ruletree.Threshold{Scalar: 50},
			IfTrue: []ruletree.Node{{
				Kind: ruletree.NodeWeight,
				Weight: &ruletree.WeightNode{
					WeightType: ruletree.EqualBuy,
					Assets:     []ruletree.Asset{{Symbol: "Z"}},
				},
			}},
			IfFalse: nil,
		},
	}

	d, err := Evaluate(repo, root, date(2020, 1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Buy) != 0 {
		t.Fatalf("expected no buys when indicator data is insufficient, got %+v", d.Buy)
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
