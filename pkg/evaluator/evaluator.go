// Package evaluator walks a strategy decision tree (pkg/ruletree) on a
// given as-of date and produces a target-allocation directive, consulting
// the indicator library for every condition and the price repository's
// earliest-date information for every weight action (spec §4.C).
package evaluator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/quantedge-go/ruletree/pkg/indicators"
	"github.com/quantedge-go/ruletree/pkg/prices"
	"github.com/quantedge-go/ruletree/pkg/ruletree"
)

// Fatal error kinds (spec §4.C, §7): all abort the backtest.
var (
	ErrUnknownIndicator  = errors.New("evaluator: unknown indicator")
	ErrUnknownComparator = errors.New("evaluator: unknown comparator")
	ErrUnknownNodeType   = errors.New("evaluator: unknown node type")
	ErrWeightSumInvalid  = errors.New("evaluator: declared weights do not sum to 1")
)

// weightSumTolerance is the ±1e-6 band spec §4.C/§8 requires for
// weighted_buy's pre-filter sum check.
const weightSumTolerance = 1e-6

// Directive is the evaluator's output: per-symbol target buy/sell
// fractions for the current rebalance (spec §3 "Transaction directive").
type Directive struct {
	Buy  map[string]float64
	Sell map[string]float64
}

func newDirective() *Directive {
	return &Directive{Buy: make(map[string]float64), Sell: make(map[string]float64)}
}

// Evaluate walks root on asOf and returns the accumulated directive.
// Sibling actions within a branch combine into the same accumulator
// (spec §4.C): buy/sell weights for a symbol touched by more than one
// action are summed.
func Evaluate(repo prices.Repository, root ruletree.Node, asOf time.Time) (*Directive, error) {
	d := newDirective()
	if err := process(repo, root, asOf, d); err != nil {
		return nil, err
	}
	return d, nil
}

func process(repo prices.Repository, node ruletree.Node, asOf time.Time, acc *Directive) error {
	switch node.Kind {
	case ruletree.NodeCondition:
		return processCondition(repo, node.Condition, asOf, acc)
	case ruletree.NodeWeight:
		return processWeight(repo, node.Weight, asOf, acc)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownNodeType, node.Kind)
	}
}

func processCondition(repo prices.Repository, cond *ruletree.ConditionNode, asOf time.Time, acc *Directive) error {
	result, err := evaluateCondition(repo, cond, asOf)
	if err != nil {
		return err
	}

	branch := cond.IfFalse
	if result {
		branch = cond.IfTrue
	}
	for _, child := range branch {
		if err := process(repo, child, asOf, acc); err != nil {
			return err
		}
	}
	return nil
}

// evaluateCondition evaluates the indicator and applies the comparator.
// A null indicator result makes the condition false (spec §4.C: "missing
// data => skip").
func evaluateCondition(repo prices.Repository, cond *ruletree.ConditionNode, asOf time.Time) (bool, error) {
	value, err := evaluateIndicator(repo, cond.Indicator, asOf)
	if err != nil {
		return false, err
	}
	if !value.valid {
		return false, nil
	}

	if value.isList {
		thresholds := cond.Threshold.List
		if !cond.Threshold.IsList {
			thresholds = make([]float64, len(value.list))
			for i := range thresholds {
				thresholds[i] = cond.Threshold.Scalar
			}
		}
		if len(thresholds) != len(value.list) {
			return false, fmt.Errorf("evaluator: mismatched composite indicator/threshold lengths")
		}
		for i, v := range value.list {
			ok, err := compare(v, thresholds[i], cond.Comparator)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}

	return compare(value.scalar, cond.Threshold.Scalar, cond.Comparator)
}

func compare(value, threshold float64, comparator ruletree.Comparator) (bool, error) {
	switch comparator {
	case ruletree.GT:
		return value > threshold, nil
	case ruletree.LT:
		return value < threshold, nil
	case ruletree.GE:
		return value >= threshold, nil
	case ruletree.LE:
		return value <= threshold, nil
	case ruletree.EQ:
		return value == threshold, nil
	case ruletree.NE:
		return value != threshold, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownComparator, comparator)
	}
}

// indicatorResult is either a single scalar or a list of scalars
// (composite "and"), or neither if null.
type indicatorResult struct {
	valid  bool
	isList bool
	scalar float64
	list   []float64
}

func evaluateIndicator(repo prices.Repository, ind ruletree.Indicator, asOf time.Time) (indicatorResult, error) {
	switch ind.Kind {
	case ruletree.IndicatorAnd:
		list := make([]float64, 0, len(ind.And.Inputs))
		for _, input := range ind.And.Inputs {
			r, err := evaluateIndicator(repo, input, asOf)
			if err != nil {
				return indicatorResult{}, err
			}
			if !r.valid {
				return indicatorResult{}, nil
			}
			list = append(list, r.scalar)
		}
		return indicatorResult{valid: true, isList: true, list: list}, nil

	case ruletree.IndicatorScalar:
		return evaluateScalar(repo, ind.Scalar, asOf)

	default:
		return indicatorResult{}, fmt.Errorf("%w: %q", ErrUnknownIndicator, ind.Kind)
	}
}

func evaluateScalar(repo prices.Repository, s *ruletree.ScalarIndicator, asOf time.Time) (indicatorResult, error) {
	earliest, found, err := repo.EarliestDate(s.Symbol)
	if err != nil {
		return indicatorResult{}, err
	}
	if !found || earliest.After(asOf) {
		return indicatorResult{}, nil
	}

	p := s.Params
	var m indicators.Maybe

	switch s.Name {
	case "current_price":
		m, err = indicators.CurrentPrice(repo, s.Symbol, asOf)
	case "sma_price":
		m, err = indicators.SMAPrice(repo, s.Symbol, asOf, intAt(p, 0))
	case "ema":
		m, err = indicators.EMA(repo, s.Symbol, asOf, intAt(p, 0))
	case "rsi":
		m, err = indicators.RSI(repo, s.Symbol, asOf, intAt(p, 0))
	case "macd":
		m, err = indicators.MACD(repo, s.Symbol, asOf, intAt(p, 0), intAt(p, 1), intAt(p, 2))
	case "adx":
		m, err = indicators.ADX(repo, s.Symbol, asOf, intAt(p, 0))
	case "stochastic_oscillator":
		m, err = indicators.StochasticOscillator(repo, s.Symbol, asOf, intAt(p, 0))
	case "standard_deviation_price":
		m, err = indicators.StandardDeviationPrice(repo, s.Symbol, asOf, intAt(p, 0))
	case "sma_return":
		m, err = indicators.SMAReturn(repo, s.Symbol, asOf, intAt(p, 0))
	case "standard_deviation_return":
		m, err = indicators.StandardDeviationReturn(repo, s.Symbol, asOf, intAt(p, 0))
	case "cumulative_return":
		m, err = indicators.CumulativeReturn(repo, s.Symbol, asOf, intAt(p, 0))
	case "max_drawdown":
		m, err = indicators.MaxDrawdown(repo, s.Symbol, asOf, intAt(p, 0))
	case "atr":
		m, err = indicators.ATR(repo, s.Symbol, asOf, intAt(p, 0))
	case "atr_percent":
		m, err = indicators.ATRPercent(repo, s.Symbol, asOf, intAt(p, 0))
	case "vix":
		m, err = indicators.VIX(repo, asOf, intAt(p, 0))
	case "vix_change":
		m, err = indicators.VIXChange(repo, asOf, intAt(p, 0))
	case "sma_cross":
		m, err = indicators.SMACross(repo, s.Symbol, asOf, intAt(p, 0), intAt(p, 1))
	default:
		return indicatorResult{}, fmt.Errorf("%w: %q", ErrUnknownIndicator, s.Name)
	}

	if err != nil {
		return indicatorResult{}, err
	}
	if !m.Valid || math.IsNaN(m.Value) {
		return indicatorResult{}, nil
	}
	return indicatorResult{valid: true, scalar: m.Value}, nil
}

func intAt(params []float64, i int) int {
	if i >= len(params) {
		return 0
	}
	return int(params[i])
}

func processWeight(repo prices.Repository, node *ruletree.WeightNode, asOf time.Time, acc *Directive) error {
	if node.WeightType == ruletree.WeightedBuy {
		sum := 0.0
		for _, a := range node.Assets {
			sum += a.Weight
		}
		if math.Abs(sum-1) > weightSumTolerance {
			return fmt.Errorf("%w: sum=%.9f", ErrWeightSumInvalid, sum)
		}
	}

	valid := make([]ruletree.Asset, 0, len(node.Assets))
	for _, a := range node.Assets {
		earliest, found, err := repo.EarliestDate(a.Symbol)
		if err != nil {
			return err
		}
		if !found || earliest.After(asOf) {
			continue
		}
		valid = append(valid, a)
	}
	if len(valid) == 0 {
		return nil
	}

	switch node.WeightType {
	case ruletree.EqualBuy:
		w := 1.0 / float64(len(valid))
		for _, a := range valid {
			acc.Buy[a.Symbol] += w
		}
	case ruletree.WeightedBuy:
		total := 0.0
		for _, a := range valid {
			total += a.Weight
		}
		for _, a := range valid {
			acc.Buy[a.Symbol] += a.Weight / total
		}
	case ruletree.AllSell:
		for _, a := range valid {
			acc.Sell[a.Symbol] += 1.0
		}
	case ruletree.PartialSell:
		for _, a := range valid {
			acc.Sell[a.Symbol] += a.Percentage
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownNodeType, node.WeightType)
	}

	return nil
}
