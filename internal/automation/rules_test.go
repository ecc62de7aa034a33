package automation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-sh/fusion/internal/automation"
)

func TestEvaluateLeafOperators(t *testing.T) {
	facts := automation.Facts{
		"displayState": "OPEN",
		"battery":      float64(42),
		"tags":         []any{"front", "back"},
	}

	cases := []struct {
		name string
		tree automation.RuleTree
		want bool
	}{
		{"eq match", automation.RuleTree{Fact: "displayState", Operator: automation.OpEq, Value: "OPEN"}, true},
		{"eq mismatch", automation.RuleTree{Fact: "displayState", Operator: automation.OpEq, Value: "CLOSED"}, false},
		{"neq", automation.RuleTree{Fact: "displayState", Operator: automation.OpNeq, Value: "CLOSED"}, true},
		{"gt true", automation.RuleTree{Fact: "battery", Operator: automation.OpGt, Value: float64(10)}, true},
		{"gte equal", automation.RuleTree{Fact: "battery", Operator: automation.OpGte, Value: float64(42)}, true},
		{"lt false", automation.RuleTree{Fact: "battery", Operator: automation.OpLt, Value: float64(10)}, false},
		{"hasPrefix", automation.RuleTree{Fact: "displayState", Operator: automation.OpHasPrefix, Value: "OP"}, true},
		{"contains substring", automation.RuleTree{Fact: "displayState", Operator: automation.OpContains, Value: "PE"}, true},
		{"in list hit", automation.RuleTree{Fact: "displayState", Operator: automation.OpIn, Value: []any{"OPEN", "CLOSED"}}, true},
		{"in list miss", automation.RuleTree{Fact: "displayState", Operator: automation.OpIn, Value: []any{"LOCKED", "UNLOCKED"}}, false},
		{"undefined fact", automation.RuleTree{Fact: "missing", Operator: automation.OpEq, Value: "x"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := automation.Evaluate(tc.tree, facts)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateAllAny(t *testing.T) {
	facts := automation.Facts{"a": float64(1), "b": float64(2)}

	all := automation.RuleTree{All: []automation.RuleTree{
		{Fact: "a", Operator: automation.OpEq, Value: float64(1)},
		{Fact: "b", Operator: automation.OpEq, Value: float64(2)},
	}}
	ok, err := automation.Evaluate(all, facts)
	require.NoError(t, err)
	assert.True(t, ok)

	allFail := automation.RuleTree{All: []automation.RuleTree{
		{Fact: "a", Operator: automation.OpEq, Value: float64(1)},
		{Fact: "b", Operator: automation.OpEq, Value: float64(99)},
	}}
	ok, err = automation.Evaluate(allFail, facts)
	require.NoError(t, err)
	assert.False(t, ok)

	anyTree := automation.RuleTree{Any: []automation.RuleTree{
		{Fact: "a", Operator: automation.OpEq, Value: float64(99)},
		{Fact: "b", Operator: automation.OpEq, Value: float64(2)},
	}}
	ok, err = automation.Evaluate(anyTree, facts)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateMalformedNode(t *testing.T) {
	_, err := automation.Evaluate(automation.RuleTree{}, automation.Facts{})
	assert.Error(t, err)

	_, err = automation.Evaluate(automation.RuleTree{Fact: "x", Operator: "bogus"}, automation.Facts{"x": "y"})
	assert.Error(t, err)
}

func TestEvaluateNonNumericComparison(t *testing.T) {
	_, err := automation.Evaluate(
		automation.RuleTree{Fact: "x", Operator: automation.OpGt, Value: "not-a-number"},
		automation.Facts{"x": "also-not-a-number"},
	)
	assert.Error(t, err)
}
