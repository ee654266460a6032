package eval_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cozodb/cozo-sub000/catalog"
	"github.com/cozodb/cozo-sub000/eval"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/storage"
	"github.com/cozodb/cozo-sub000/storage/memkv"
	"github.com/cozodb/cozo-sub000/stratify"
	"github.com/cozodb/cozo-sub000/value"
)

// litExpr is a program.Expr that always evaluates to a fixed literal,
// standing in for the real expression compiler which is out of this
// package's scope.
type litExpr struct{ v value.Value }

func (l litExpr) FreeSymbols() []program.Symbol                     { return nil }
func (l litExpr) Eval(map[program.Symbol]value.Value) (value.Value, error) { return l.v, nil }
func (l litExpr) String() string                                    { return l.v.String() }

// symbolExpr reads a single already-bound symbol back out, used to rename a
// column via AtomUnification.
type symbolExpr struct{ sym program.Symbol }

func (s symbolExpr) FreeSymbols() []program.Symbol { return []program.Symbol{s.sym} }
func (s symbolExpr) Eval(env map[program.Symbol]value.Value) (value.Value, error) {
	return env[s.sym], nil
}
func (s symbolExpr) String() string { return string(s.sym) }

// addExpr sums two bound Int symbols.
type addExpr struct{ a, b program.Symbol }

func (e addExpr) FreeSymbols() []program.Symbol { return []program.Symbol{e.a, e.b} }
func (e addExpr) Eval(env map[program.Symbol]value.Value) (value.Value, error) {
	return value.Int(env[e.a].Int + env[e.b].Int), nil
}
func (e addExpr) String() string { return string(e.a) + "+" + string(e.b) }

func putRow(t *testing.T, tx storage.Tx, prefix []byte, keyVals, valVals []value.Value) {
	t.Helper()
	key := append([]byte{}, prefix...)
	for _, kv := range keyVals {
		var err error
		key, err = value.EncodeKey(key, kv)
		require.NoError(t, err)
	}
	var val []byte
	for _, vv := range valVals {
		val = value.EncodeValue(val, vv)
	}
	require.NoError(t, tx.Put(key, val))
}

// TestEvalTransitiveClosure exercises evalRecursiveStratum's plain
// (non-aggregating) path: reachable(to) is seeded from edges out of node 0,
// then extended transitively, converging over several semi-naive
// iterations.
func TestEvalTransitiveClosure(t *testing.T) {
	schema := &catalog.Relation{
		Name:    "route",
		KeyCols: []catalog.Column{{Name: "fr", Type: catalog.ColInt}, {Name: "to", Type: catalog.ColInt}},
	}
	cat := catalog.New()
	require.NoError(t, cat.Create(schema))
	prefix, err := schema.KeyPrefix()
	require.NoError(t, err)

	eng := memkv.New()
	wtx, err := eng.Begin(context.Background(), true)
	require.NoError(t, err)
	putRow(t, wtx, prefix, []value.Value{value.Int(0), value.Int(1)}, nil)
	putRow(t, wtx, prefix, []value.Value{value.Int(1), value.Int(2)}, nil)
	putRow(t, wtx, prefix, []value.Value{value.Int(2), value.Int(3)}, nil)
	require.NoError(t, wtx.Commit())

	rtx, err := eng.Begin(context.Background(), false)
	require.NoError(t, err)

	p := &program.Program{
		Rules: []*program.Rule{
			{
				Name: "reachable", Kind: program.Inline,
				Head: program.Head{{Symbol: "to"}},
				Body: []program.Atom{
					{Kind: program.AtomStoredRelationApplication, RelName: "route", BindMode: program.Positional, Args: []program.Symbol{"fr", "to"}},
					{Kind: program.AtomUnification, Target: "fr", Expr: litExpr{value.Int(0)}},
				},
			},
			{
				Name: "reachable", Kind: program.Inline,
				Head: program.Head{{Symbol: "to"}},
				Body: []program.Atom{
					{Kind: program.AtomRuleApplication, RuleName: "reachable", Args: []program.Symbol{"mid"}},
					{Kind: program.AtomStoredRelationApplication, RelName: "route", BindMode: program.Positional, Args: []program.Symbol{"mid", "to"}},
				},
			},
			{
				Name: program.EntryRuleName, Kind: program.Inline,
				Head: program.Head{{Symbol: "to"}},
				Body: []program.Atom{{Kind: program.AtomRuleApplication, RuleName: "reachable", Args: []program.Symbol{"to"}}},
			},
		},
	}
	require.NoError(t, p.Validate())

	strata, err := stratify.Stratify(p)
	require.NoError(t, err)

	e := &eval.Evaluator{Tx: rtx, Catalog: cat}
	result, err := e.Run(context.Background(), p, strata)
	require.NoError(t, err)
	require.Equal(t, 3, result.Entry.Len())

	seen := map[int64]bool{}
	for _, tup := range result.Entry.Tuples {
		seen[tup[0].Int] = true
	}
	require.True(t, seen[1])
	require.True(t, seen[2])
	require.True(t, seen[3])
}

// TestEvalMeetAggregationShortestPath exercises evalRecursiveStratum's
// meet-aggregation path: cost(node, total:min) folds edge weights along
// every path from node 0, converging to each node's cheapest total.
func TestEvalMeetAggregationShortestPath(t *testing.T) {
	schema := &catalog.Relation{
		Name:    "route",
		KeyCols: []catalog.Column{{Name: "fr", Type: catalog.ColInt}, {Name: "to", Type: catalog.ColInt}},
		ValCols: []catalog.Column{{Name: "w", Type: catalog.ColInt}},
	}
	cat := catalog.New()
	require.NoError(t, cat.Create(schema))
	prefix, err := schema.KeyPrefix()
	require.NoError(t, err)

	eng := memkv.New()
	wtx, err := eng.Begin(context.Background(), true)
	require.NoError(t, err)
	putRow(t, wtx, prefix, []value.Value{value.Int(0), value.Int(1)}, []value.Value{value.Int(5)})
	putRow(t, wtx, prefix, []value.Value{value.Int(0), value.Int(2)}, []value.Value{value.Int(100)})
	putRow(t, wtx, prefix, []value.Value{value.Int(1), value.Int(2)}, []value.Value{value.Int(3)})
	putRow(t, wtx, prefix, []value.Value{value.Int(2), value.Int(3)}, []value.Value{value.Int(1)})
	require.NoError(t, wtx.Commit())

	rtx, err := eng.Begin(context.Background(), false)
	require.NoError(t, err)

	p := &program.Program{
		Rules: []*program.Rule{
			{
				Name: "cost", Kind: program.Inline,
				Head: program.Head{{Symbol: "node"}, {Symbol: "total", Agg: program.AggMin}},
				Body: []program.Atom{
					{Kind: program.AtomStoredRelationApplication, RelName: "route", BindMode: program.Positional, Args: []program.Symbol{"fr", "node", "w"}},
					{Kind: program.AtomUnification, Target: "fr", Expr: litExpr{value.Int(0)}},
					{Kind: program.AtomUnification, Target: "total", Expr: symbolExpr{"w"}},
				},
			},
			{
				Name: "cost", Kind: program.Inline,
				Head: program.Head{{Symbol: "node"}, {Symbol: "total", Agg: program.AggMin}},
				Body: []program.Atom{
					{Kind: program.AtomRuleApplication, RuleName: "cost", Args: []program.Symbol{"mid", "c"}},
					{Kind: program.AtomStoredRelationApplication, RelName: "route", BindMode: program.Positional, Args: []program.Symbol{"mid", "node", "w2"}},
					{Kind: program.AtomUnification, Target: "total", Expr: addExpr{"c", "w2"}},
				},
			},
			{
				Name: program.EntryRuleName, Kind: program.Inline,
				Head: program.Head{{Symbol: "node"}, {Symbol: "total"}},
				Body: []program.Atom{{Kind: program.AtomRuleApplication, RuleName: "cost", Args: []program.Symbol{"node", "total"}}},
			},
		},
	}
	require.NoError(t, p.Validate())

	strata, err := stratify.Stratify(p)
	require.NoError(t, err)

	e := &eval.Evaluator{Tx: rtx, Catalog: cat}
	result, err := e.Run(context.Background(), p, strata)
	require.NoError(t, err)
	require.Equal(t, 3, result.Entry.Len())

	byNode := map[int64]int64{}
	for _, tup := range result.Entry.Tuples {
		byNode[tup[0].Int] = tup[1].Int
	}
	require.Equal(t, int64(5), byNode[1])
	require.Equal(t, int64(8), byNode[2])
	require.Equal(t, int64(9), byNode[3])
}

func TestEvalConstantRule(t *testing.T) {
	p := &program.Program{
		Rules: []*program.Rule{
			{
				Name: program.EntryRuleName, Kind: program.Constant,
				Head:         program.Head{{Symbol: "a"}, {Symbol: "b"}},
				ConstantRows: [][]value.Value{{value.Int(1), value.Int(2)}, {value.Int(3), value.Int(4)}},
			},
		},
	}
	strata, err := stratify.Stratify(p)
	require.NoError(t, err)

	e := &eval.Evaluator{Catalog: catalog.New()}
	result, err := e.Run(context.Background(), p, strata)
	require.NoError(t, err)
	require.Equal(t, 2, result.Entry.Len())
}

type stubFixedRunner struct{}

func (stubFixedRunner) Run(ctx context.Context, name string, inputs []*relalg.Relation, options map[string]value.Value) (*relalg.Relation, error) {
	rel := relalg.New([]program.Symbol{"x"})
	if _, err := rel.Insert(relalg.Tuple{value.Int(42)}); err != nil {
		return nil, err
	}
	return rel, nil
}

// TestEvalFixedRule exercises evalFixed dispatching to a FixedRuleRunner and
// binding its result to the rule's head, consumed by a later stratum.
func TestEvalFixedRule(t *testing.T) {
	p := &program.Program{
		Rules: []*program.Rule{
			{
				Name: "algo", Kind: program.Fixed,
				Head:          program.Head{{Symbol: "x"}},
				FixedRuleName: "Stub",
			},
			{
				Name: program.EntryRuleName, Kind: program.Inline,
				Head: program.Head{{Symbol: "x"}},
				Body: []program.Atom{{Kind: program.AtomRuleApplication, RuleName: "algo", Args: []program.Symbol{"x"}}},
			},
		},
	}
	require.NoError(t, p.Validate())

	strata, err := stratify.Stratify(p)
	require.NoError(t, err)

	e := &eval.Evaluator{Catalog: catalog.New(), FixedRules: stubFixedRunner{}}
	result, err := e.Run(context.Background(), p, strata)
	require.NoError(t, err)
	require.Equal(t, 1, result.Entry.Len())
	require.Equal(t, int64(42), result.Entry.Tuples[0][0].Int)
}
