// Package ruletree is the typed representation of a strategy decision
// tree: condition nodes, weight-action nodes, and composite "and"
// indicator expressions (spec §3, §9). Nodes are tagged variants; the
// evaluator dispatches on the Kind field rather than type-asserting an
// interface, matching the wire format's own "type" discriminator.
package ruletree

import (
	"encoding/json"
	"fmt"
)

// NodeKind discriminates the two node variants in the decision tree.
type NodeKind string

const (
	NodeCondition NodeKind = "condition"
	NodeWeight    NodeKind = "weight"
)

// Node is a tagged union over ConditionNode and WeightNode. Exactly one
// of Condition or Weight is populated, per Kind.
type Node struct {
	Kind      NodeKind
	Condition *ConditionNode
	Weight    *WeightNode
}

// Comparator is one of the six comparison operators a Condition may use.
type Comparator string

const (
	GT Comparator = ">"
	LT Comparator = "<"
	GE Comparator = ">="
	LE Comparator = "<="
	EQ Comparator = "=="
	NE Comparator = "!="
)

// ConditionNode evaluates an indicator against a threshold and branches.
type ConditionNode struct {
	Indicator  Indicator
	Comparator Comparator
	Threshold  Threshold
	IfTrue     []Node
	IfFalse    []Node
}

// Threshold is either a single scalar or a list of scalars, matching a
// composite indicator's pointwise comparison (spec §4.C).
type Threshold struct {
	Scalar float64
	List   []float64
	IsList bool
}

// IndicatorKind discriminates a plain named indicator from the "and"
// composite (spec §3: "Composite indicator (only inside a Condition's
// indicator)").
type IndicatorKind string

const (
	IndicatorScalar IndicatorKind = "scalar"
	IndicatorAnd    IndicatorKind = "and"
)

// Indicator is a tagged union over a named scalar indicator and the
// "and" composite over a list of indicators.
type Indicator struct {
	Kind   IndicatorKind
	Scalar *ScalarIndicator
	And    *AndIndicator
}

// ScalarIndicator names one of the recognized indicators (spec §4.B)
// together with the symbol it reads and its positional parameters.
type ScalarIndicator struct {
	Name   string
	Symbol string
	Params []float64
}

// AndIndicator evaluates each input and returns the list of results in
// order; any null input makes the whole composite null.
type AndIndicator struct {
	Inputs []Indicator
}

// WeightType is one of the four weight-action variants (spec §3).
type WeightType string

const (
	EqualBuy    WeightType = "equal_buy"
	WeightedBuy WeightType = "weighted_buy"
	AllSell     WeightType = "all_sell"
	PartialSell WeightType = "partial_sell"
)

// Asset is one line of a weight-action node: a symbol with an optional
// declared weight (weighted_buy) or percentage (partial_sell).
type Asset struct {
	Symbol     string
	Weight     float64
	Percentage float64
}

// WeightNode assigns buy or sell weights across a set of assets.
type WeightNode struct {
	WeightType WeightType
	Assets     []Asset
}

// --- JSON wire format ---
//
// Rules arrive as nested JSON objects with a "type" discriminator at the
// node level and a "name" discriminator at the indicator level, matching
// the original rules documents this tree model is parsed from.

type wireNode struct {
	Type       string          `json:"type"`
	Indicator  json.RawMessage `json:"indicator"`
	Comparator string          `json:"comparator"`
	Value      json.RawMessage `json:"value"`
	IfTrue     []Node          `json:"if_true"`
	IfFalse    []Node          `json:"if_false"`
	WeightType string          `json:"weight_type"`
	Assets     []wireAsset     `json:"assets"`
}

type wireAsset struct {
	Symbol     string  `json:"symbol"`
	Weight     float64 `json:"weight"`
	Percentage float64 `json:"percentage"`
}

type wireIndicator struct {
	Name   string            `json:"name"`
	Symbol string            `json:"symbol"`
	Params []float64         `json:"params"`
	Inputs []json.RawMessage `json:"inputs"`
}

// UnmarshalJSON parses one decision-tree node, dispatching on "type".
func (n *Node) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch w.Type {
	case string(NodeCondition):
		ind, err := parseIndicator(w.Indicator)
		if err != nil {
			return err
		}
		threshold, err := parseThreshold(w.Value)
		if err != nil {
			return err
		}
		n.Kind = NodeCondition
		n.Condition = &ConditionNode{
			Indicator:  ind,
			Comparator: Comparator(w.Comparator),
			Threshold:  threshold,
			IfTrue:     w.IfTrue,
			IfFalse:    w.IfFalse,
		}
		return nil

	case string(NodeWeight):
		assets := make([]Asset, len(w.Assets))
		for i, a := range w.Assets {
			assets[i] = Asset{Symbol: a.Symbol, Weight: a.Weight, Percentage: a.Percentage}
		}
		n.Kind = NodeWeight
		n.Weight = &WeightNode{WeightType: WeightType(w.WeightType), Assets: assets}
		return nil

	default:
		return fmt.Errorf("ruletree: unknown node type %q", w.Type)
	}
}

func parseIndicator(raw json.RawMessage) (Indicator, error) {
	if len(raw) == 0 {
		return Indicator{}, fmt.Errorf("ruletree: condition missing indicator")
	}
	var w wireIndicator
	if err := json.Unmarshal(raw, &w); err != nil {
		return Indicator{}, err
	}

	if w.Name == "and" {
		inputs := make([]Indicator, len(w.Inputs))
		for i, in := range w.Inputs {
			ind, err := parseIndicator(in)
			if err != nil {
				return Indicator{}, err
			}
			inputs[i] = ind
		}
		return Indicator{Kind: IndicatorAnd, And: &AndIndicator{Inputs: inputs}}, nil
	}

	return Indicator{
		Kind: IndicatorScalar,
		Scalar: &ScalarIndicator{
			Name:   w.Name,
			Symbol: w.Symbol,
			Params: w.Params,
		},
	}, nil
}

func parseThreshold(raw json.RawMessage) (Threshold, error) {
	if len(raw) == 0 {
		return Threshold{}, nil
	}
	var list []float64
	if err := json.Unmarshal(raw, &list); err == nil {
		return Threshold{List: list, IsList: true}, nil
	}
	var scalar float64
	if err := json.Unmarshal(raw, &scalar); err != nil {
		return Threshold{}, fmt.Errorf("ruletree: invalid threshold: %w", err)
	}
	return Threshold{Scalar: scalar}, nil
}

// Strategy is the root document: a name and the root decision node.
type Strategy struct {
	Name  string `json:"name"`
	Rules Node   `json:"rules"`
}
