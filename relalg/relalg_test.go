package relalg_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/value"
)

// litExpr and eqExpr are minimal program.Expr implementations standing in
// for a real expression compiler, enough to exercise Filter/Unify/Unnest
// without depending on a parser.
type litExpr struct{ v value.Value }

func (l litExpr) FreeSymbols() []program.Symbol                        { return nil }
func (l litExpr) Eval(map[program.Symbol]value.Value) (value.Value, error) { return l.v, nil }
func (l litExpr) String() string                                       { return l.v.String() }

type eqExpr struct {
	a, b program.Symbol
}

func (e eqExpr) FreeSymbols() []program.Symbol { return []program.Symbol{e.a, e.b} }
func (e eqExpr) Eval(env map[program.Symbol]value.Value) (value.Value, error) {
	return value.Bool(value.Equal(env[e.a], env[e.b])), nil
}
func (e eqExpr) String() string { return string(e.a) + "==" + string(e.b) }

func seedWith(rows []relalg.Tuple, cols []program.Symbol) *relalg.Relation {
	r := relalg.New(cols)
	for _, t := range rows {
		r.Insert(t)
	}
	return r
}

func TestRuleScanUnifiesPositionally(t *testing.T) {
	rel := seedWith([]relalg.Tuple{
		{value.Int(1), value.Int(2)},
		{value.Int(2), value.Int(3)},
	}, []program.Symbol{"a", "b"})

	scan := &relalg.RuleScan{Input: relalg.Seed{}, Rel: rel, Args: []program.Symbol{"x", "y"}}
	out, err := relalg.Materialize(context.Background(), scan, []program.Symbol{"x", "y"})
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
}

func TestFilterKeepsOnlyTrueRows(t *testing.T) {
	rel := seedWith([]relalg.Tuple{{value.Int(1)}, {value.Int(2)}}, []program.Symbol{"x"})
	scan := &relalg.RuleScan{Input: relalg.Seed{}, Rel: rel, Args: []program.Symbol{"x"}}
	f := &relalg.Filter{Input: scan, Expr: eqExpr{"x", "x"}}
	out, err := relalg.Materialize(context.Background(), f, []program.Symbol{"x"})
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
}

func TestUnifyAddsBindingThenActsAsFilter(t *testing.T) {
	rel := seedWith([]relalg.Tuple{{value.Int(5)}}, []program.Symbol{"x"})
	scan := &relalg.RuleScan{Input: relalg.Seed{}, Rel: rel, Args: []program.Symbol{"x"}}
	u := &relalg.Unify{Input: scan, Target: "y", Expr: litExpr{value.Int(5)}}
	out, err := relalg.Materialize(context.Background(), u, []program.Symbol{"x", "y"})
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())

	u2 := &relalg.Unify{Input: u, Target: "y", Expr: litExpr{value.Int(9)}}
	out2, err := relalg.Materialize(context.Background(), u2, []program.Symbol{"x", "y"})
	require.NoError(t, err)
	require.Equal(t, 0, out2.Len())
}

func TestHashJoinInner(t *testing.T) {
	left := seedWith([]relalg.Tuple{{value.Int(1)}, {value.Int(2)}}, []program.Symbol{"a"})
	right := seedWith([]relalg.Tuple{{value.Int(2)}, {value.Int(3)}}, []program.Symbol{"a"})

	j := &relalg.Join{
		Left:  &relalg.RuleScan{Input: relalg.Seed{}, Rel: left, Args: []program.Symbol{"a"}},
		Right: &relalg.RuleScan{Input: relalg.Seed{}, Rel: right, Args: []program.Symbol{"a"}},
		Kind:  relalg.Inner,
	}
	out, err := relalg.Materialize(context.Background(), j, []program.Symbol{"a"})
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	require.True(t, value.Equal(out.Tuples[0][0], value.Int(2)))
}

func TestAntiSemiJoinExcludesMatches(t *testing.T) {
	left := seedWith([]relalg.Tuple{{value.Int(1)}, {value.Int(2)}}, []program.Symbol{"a"})
	right := seedWith([]relalg.Tuple{{value.Int(2)}}, []program.Symbol{"a"})

	j := &relalg.Join{
		Left:  &relalg.RuleScan{Input: relalg.Seed{}, Rel: left, Args: []program.Symbol{"a"}},
		Right: &relalg.RuleScan{Input: relalg.Seed{}, Rel: right, Args: []program.Symbol{"a"}},
		Kind:  relalg.AntiSemi,
	}
	out, err := relalg.Materialize(context.Background(), j, []program.Symbol{"a"})
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	require.True(t, value.Equal(out.Tuples[0][0], value.Int(1)))
}

func TestAggregateSumAndCount(t *testing.T) {
	rel := seedWith([]relalg.Tuple{
		{value.String("g1"), value.Int(1)},
		{value.String("g1"), value.Int(2)},
		{value.String("g2"), value.Int(10)},
	}, []program.Symbol{"g", "v"})
	scan := &relalg.RuleScan{Input: relalg.Seed{}, Rel: rel, Args: []program.Symbol{"g", "v"}}
	agg := &relalg.Aggregate{
		Input:     scan,
		GroupKeys: []program.Symbol{"g"},
		Aggs: []relalg.AggSpec{
			{Src: "v", Op: program.AggSum, Out: "total"},
			{Src: "v", Op: program.AggCount, Out: "n"},
		},
	}
	out, err := relalg.Materialize(context.Background(), agg, []program.Symbol{"g", "total", "n"})
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
}

func TestMeetMergeMinProgressesUntilFixpoint(t *testing.T) {
	old := relalg.MeetIdentity(program.AggMin)
	merged, progressed, err := relalg.MeetMerge(program.AggMin, old, value.Int(5))
	require.NoError(t, err)
	require.True(t, progressed)
	require.True(t, value.Equal(merged, value.Int(5)))

	merged2, progressed2, err := relalg.MeetMerge(program.AggMin, merged, value.Int(9))
	require.NoError(t, err)
	require.False(t, progressed2)
	require.True(t, value.Equal(merged2, value.Int(5)))
}

func TestSortTakeSkip(t *testing.T) {
	rel := relalg.New([]program.Symbol{"x"})
	rel.Insert(relalg.Tuple{value.Int(3)})
	rel.Insert(relalg.Tuple{value.Int(1)})
	rel.Insert(relalg.Tuple{value.Int(2)})
	rel.SortBy([]int{0}, []bool{false})
	require.True(t, value.Equal(rel.Tuples[0][0], value.Int(1)))
	rel.Skip(1)
	require.Equal(t, 2, rel.Len())
	rel.Take(1)
	require.Equal(t, 1, rel.Len())
}
