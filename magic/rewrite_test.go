package magic_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cozodb/cozo-sub000/magic"
	"github.com/cozodb/cozo-sub000/program"
)

func ruleApp(name string, args ...program.Symbol) program.Atom {
	return program.Atom{Kind: program.AtomRuleApplication, RuleName: name, Args: args}
}

func eq(target program.Symbol) program.Atom {
	return program.Atom{Kind: program.AtomUnification, Target: target}
}

// ruleNames collects the name of every rule definition in p, for asserting
// a rewritten program still resolves every atom it references.
func ruleNames(p *program.Program) map[string]bool {
	out := map[string]bool{}
	for _, r := range p.Rules {
		out[r.Name] = true
	}
	return out
}

// every rule-application reference anywhere in p's bodies (including inside
// negation and disjunction) must resolve to a rule defined somewhere in p;
// this is the property magic.Rewrite must preserve for the output to be
// stratifiable/evaluable at all.
func assertNoDanglingRuleRefs(t *testing.T, p *program.Program) {
	t.Helper()
	defined := ruleNames(p)
	var walk func(body []program.Atom)
	walk = func(body []program.Atom) {
		for _, at := range body {
			switch at.Kind {
			case program.AtomRuleApplication:
				require.Contains(t, defined, at.RuleName, "dangling rule reference %q", at.RuleName)
			case program.AtomNegated:
				if at.Inner != nil {
					walk([]program.Atom{*at.Inner})
				}
			case program.AtomDisjunction:
				for _, d := range at.Disjuncts {
					walk(d)
				}
			}
		}
	}
	for _, r := range p.Rules {
		walk(r.Body)
	}
}

// TestRewriteEntryStaysUnadorned mirrors a magic-set pruning
// scenario structurally: ?[x] := reachable[x], x == 'BNE' adorns reachable
// with an all-free pattern (since ? itself takes no input bindings); the
// test checks that the rewritten program's entry rule remains named "?".
func TestRewriteEntryStaysUnadorned(t *testing.T) {
	p := &program.Program{
		Rules: []*program.Rule{
			{Name: "reachable", Kind: program.Inline,
				Head: program.Head{{Symbol: "to"}},
				Body: []program.Atom{ruleApp("route", "fr", "to")}},
			{Name: "?", Kind: program.Inline,
				Head: program.Head{{Symbol: "x"}},
				Body: []program.Atom{ruleApp("reachable", "x"), eq("x")}},
		},
	}
	rewritten := magic.Rewrite(p)

	var sawEntry bool
	for _, r := range rewritten.Rules {
		if r.Name == program.EntryRuleName {
			sawEntry = true
		}
	}
	require.True(t, sawEntry, "entry rule name must survive rewriting unadorned")
}

func TestAdornmentPropagationBindsSecondCallFromFirst(t *testing.T) {
	// sp[dst,path] := *route{...}; sp[dst,path] := sp[stop,prev], *route{...}
	// is a shortest-path-style recursive rule: the recursive self-call binds
	// its first argument (stop) from a variable already bound earlier in
	// the same body.
	p := &program.Program{
		Rules: []*program.Rule{
			{Name: "sp", Kind: program.Inline,
				Head: program.Head{{Symbol: "dst"}, {Symbol: "path", Agg: program.AggShortest}},
				Body: []program.Atom{eq("dst"), eq("path")}},
			{Name: "sp", Kind: program.Inline,
				Head: program.Head{{Symbol: "dst"}, {Symbol: "path", Agg: program.AggShortest}},
				Body: []program.Atom{eq("stop"), ruleApp("sp", "stop", "prev"), eq("dst"), eq("path")}},
			{Name: "?", Kind: program.Inline,
				Head: program.Head{{Symbol: "dst"}, {Symbol: "path"}},
				Body: []program.Atom{ruleApp("sp", "dst", "path")}},
		},
	}
	adorns := magic.Plan(p)
	require.NotEmpty(t, adorns)
	require.Contains(t, adorns, magic.Adornment("bf"))
}

// TestRewriteNegatedRuleCallStaysResolvable covers a rule reached only
// through negation (never called positively elsewhere): the magic-set
// rewrite must still emit a definition for it under the adornment the
// negated call site discovers, and the negated call site must be renamed to
// match, or the rewritten program references a rule that no longer exists.
func TestRewriteNegatedRuleCallStaysResolvable(t *testing.T) {
	p := &program.Program{
		Rules: []*program.Rule{
			{Name: "banned", Kind: program.Inline,
				Head: program.Head{{Symbol: "who"}},
				Body: []program.Atom{eq("who")}},
			{Name: "?", Kind: program.Inline,
				Head: program.Head{{Symbol: "x"}},
				Body: []program.Atom{
					eq("x"),
					{Kind: program.AtomNegated, Inner: &program.Atom{
						Kind: program.AtomRuleApplication, RuleName: "banned", Args: []program.Symbol{"x"},
					}},
				}},
		},
	}
	rewritten := magic.Rewrite(p)
	assertNoDanglingRuleRefs(t, rewritten)

	var sawBanned bool
	for name := range ruleNames(rewritten) {
		if name == "banned" || name == "banned_b" {
			sawBanned = true
		}
	}
	require.True(t, sawBanned, "rewritten program must still define the negated callee")
}

// TestRewriteDisjunctionRuleCallStaysResolvable covers a rule called only
// from inside a disjunct.
func TestRewriteDisjunctionRuleCallStaysResolvable(t *testing.T) {
	p := &program.Program{
		Rules: []*program.Rule{
			{Name: "a", Kind: program.Inline,
				Head: program.Head{{Symbol: "x"}},
				Body: []program.Atom{eq("x")}},
			{Name: "b", Kind: program.Inline,
				Head: program.Head{{Symbol: "x"}},
				Body: []program.Atom{eq("x")}},
			{Name: "?", Kind: program.Inline,
				Head: program.Head{{Symbol: "x"}},
				Body: []program.Atom{
					{Kind: program.AtomDisjunction, Disjuncts: [][]program.Atom{
						{ruleApp("a", "x")},
						{ruleApp("b", "x")},
					}},
				}},
		},
	}
	rewritten := magic.Rewrite(p)
	assertNoDanglingRuleRefs(t, rewritten)
}
