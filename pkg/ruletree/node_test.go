package ruletree

import (
	"encoding/json"
	"testing"
)

func TestUnmarshalConditionWithCompositeAndIndicator(t *testing.T) {
	raw := []byte(`{
		"type": "condition",
		"indicator": {
			"name": "and",
			"params": [],
			"inputs": [
				{"name": "sma_price", "symbol": "X", "params": [50]},
				{"name": "sma_price", "symbol": "X", "params": [200]}
			]
		},
		"comparator": "<",
		"value": 100,
		"if_true": [],
		"if_false": []
	}`)

	var n Node
	if err := json.Unmarshal(raw, &n); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if n.Kind != NodeCondition {
		t.Fatalf("expected condition node, got %v", n.Kind)
	}
	if n.Condition.Indicator.Kind != IndicatorAnd {
		t.Fatalf("expected composite 'and' indicator")
	}
	if len(n.Condition.Indicator.And.Inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(n.Condition.Indicator.And.Inputs))
	}
	if n.Condition.Threshold.IsList {
		t.Fatalf("expected scalar threshold")
	}
	if n.Condition.Threshold.Scalar != 100 {
		t.Fatalf("expected threshold 100, got %v", n.Condition.Threshold.Scalar)
	}
}

func TestUnmarshalWeightNode(t *testing.T) {
	raw := []byte(`{
		"type": "weight",
		"weight_type": "weighted_buy",
		"assets": [{"symbol": "A", "weight": 0.5}, {"symbol": "B", "weight": 0.5}]
	}`)

	var n Node
	if err := json.Unmarshal(raw, &n); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if n.Kind != NodeWeight {
		t.Fatalf("expected weight node, got %v", n.Kind)
	}
	if n.Weight.WeightType != WeightedBuy {
		t.Fatalf("expected weighted_buy, got %v", n.Weight.WeightType)
	}
	if len(n.Weight.Assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(n.Weight.Assets))
	}
}

func TestUnmarshalUnknownNodeTypeFails(t *testing.T) {
	raw := []byte(`{"type": "bogus"}`)
	var n Node
	if err := json.Unmarshal(raw, &n); err == nil {
		t.Fatalf("expected error for unknown node type")
	}
}
