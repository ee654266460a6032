package stratify_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/stratify"
)

func ruleApp(name string, args ...program.Symbol) program.Atom {
	return program.Atom{Kind: program.AtomRuleApplication, RuleName: name, Args: args}
}

func negated(a program.Atom) program.Atom {
	return program.Atom{Kind: program.AtomNegated, Inner: &a}
}

func TestStratifyTransitiveClosureSingleRecursiveStratum(t *testing.T) {
	p := &program.Program{
		Rules: []*program.Rule{
			{Name: "reachable", Kind: program.Inline,
				Head: program.Head{{Symbol: "to"}},
				Body: []program.Atom{ruleApp("route", "fr", "to")}},
			{Name: "reachable", Kind: program.Inline,
				Head: program.Head{{Symbol: "to"}},
				Body: []program.Atom{ruleApp("reachable", "stop"), ruleApp("route", "stop", "to")}},
			{Name: "?", Kind: program.Inline,
				Head: program.Head{{Symbol: "to"}},
				Body: []program.Atom{ruleApp("reachable", "to")}},
		},
	}
	strata, err := stratify.Stratify(p)
	require.NoError(t, err)

	// reachable's self-recursive stratum must precede ?'s.
	var reachableIdx, entryIdx = -1, -1
	for i, s := range strata {
		for _, n := range s.RuleNames {
			if n == "reachable" {
				reachableIdx = i
			}
			if n == "?" {
				entryIdx = i
			}
		}
	}
	require.NotEqual(t, -1, reachableIdx)
	require.NotEqual(t, -1, entryIdx)
	require.Less(t, reachableIdx, entryIdx)
}

func TestStratifyRejectsNegationInRecursiveCycle(t *testing.T) {
	p := &program.Program{
		Rules: []*program.Rule{
			{Name: "r", Kind: program.Inline,
				Head: program.Head{{Symbol: "x"}},
				Body: []program.Atom{negated(ruleApp("r", "x"))}},
		},
	}
	_, err := stratify.Stratify(p)
	require.Error(t, err)
}
