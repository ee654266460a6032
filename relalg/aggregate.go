package relalg

import (
	"context"
	"math"
	"math/rand"

	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/value"
)

// AggSpec names one aggregated head position: Src is the bound symbol whose
// per-row values feed the aggregation, Op names the operator, and Out is
// the symbol the aggregated result is bound to in the group's output
// environment (ordinarily the same symbol as Src).
type AggSpec struct {
	Src program.Symbol
	Op  program.AggOp
	Out program.Symbol
}

// Aggregate implements the Aggregate(group-keys, aggs) operator: bag
// semantics over Input, set-semantics (one row per distinct group) output.
// Unlike the other operators it is a barrier: every input row must be seen
// before any group's aggregated value is known, so Open fully drains Input.
type Aggregate struct {
	Input     Operator
	GroupKeys []program.Symbol
	Aggs      []AggSpec
}

func (a *Aggregate) Open(ctx context.Context) (EnvIter, error) {
	rows, err := drain(ctx, a.Input)
	if err != nil {
		return nil, err
	}

	type group struct {
		key  Env
		accs []accumulator
	}
	order := make([]string, 0)
	groups := make(map[string]*group)

	for _, row := range rows {
		keyVals := make([]value.Value, len(a.GroupKeys))
		for i, k := range a.GroupKeys {
			keyVals[i] = row[k]
		}
		keyBytes, err := value.EncodeCompositeKey(keyVals)
		if err != nil {
			return nil, err
		}
		keyStr := string(keyBytes)
		g, ok := groups[keyStr]
		if !ok {
			g = &group{key: Env{}, accs: make([]accumulator, len(a.Aggs))}
			for i, k := range a.GroupKeys {
				g.key[k] = keyVals[i]
			}
			for i, spec := range a.Aggs {
				g.accs[i] = newAccumulator(spec.Op)
			}
			groups[keyStr] = g
			order = append(order, keyStr)
		}
		for i, spec := range a.Aggs {
			g.accs[i].add(row[spec.Src])
		}
	}

	out := make([]Env, 0, len(order))
	for _, keyStr := range order {
		g := groups[keyStr]
		env := g.key.clone()
		for i, spec := range a.Aggs {
			env[spec.Out] = g.accs[i].result()
		}
		out = append(out, env)
	}
	return &sliceIter{envs: out}, nil
}

// accumulator folds a bag of per-row values into one aggregated value.
type accumulator interface {
	add(v value.Value)
	result() value.Value
}

func newAccumulator(op program.AggOp) accumulator {
	switch op {
	case program.AggCount:
		return &countAcc{}
	case program.AggSum:
		return &sumAcc{}
	case program.AggMean:
		return &meanAcc{}
	case program.AggCollect:
		return &collectAcc{}
	case program.AggGroupCount:
		return &groupCountAcc{counts: map[string]int{}}
	case program.AggVariance, program.AggStdDev:
		return &varianceAcc{stddev: op == program.AggStdDev}
	case program.AggBitXor:
		return &bitXorAcc{}
	case program.AggLatestBy:
		// Simplified: "latest" is taken in arrival order, since ordering by
		// a second key column is a planner-level concern (the planner
		// would feed rows pre-sorted by the "by" expression).
		return &lastAcc{}
	case program.AggChoiceRand:
		return &choiceRandAcc{}
	default:
		return &lastAcc{}
	}
}

type countAcc struct{ n int64 }

func (a *countAcc) add(value.Value)        { a.n++ }
func (a *countAcc) result() value.Value    { return value.Int(a.n) }

type sumAcc struct{ sum float64 }

func (a *sumAcc) add(v value.Value) { a.sum += asFloat(v) }
func (a *sumAcc) result() value.Value { return value.Float(a.sum) }

type meanAcc struct {
	sum float64
	n   int64
}

func (a *meanAcc) add(v value.Value) { a.sum += asFloat(v); a.n++ }
func (a *meanAcc) result() value.Value {
	if a.n == 0 {
		return value.Null()
	}
	return value.Float(a.sum / float64(a.n))
}

type collectAcc struct{ vals []value.Value }

func (a *collectAcc) add(v value.Value)     { a.vals = append(a.vals, v) }
func (a *collectAcc) result() value.Value   { return value.List(a.vals...) }

// groupCountAcc tallies distinct values, emitting a List of [value, count]
// pairs in first-seen order.
type groupCountAcc struct {
	order  []value.Value
	counts map[string]int
}

func (a *groupCountAcc) add(v value.Value) {
	key := v.String()
	if _, ok := a.counts[key]; !ok {
		a.order = append(a.order, v)
	}
	a.counts[key]++
}

func (a *groupCountAcc) result() value.Value {
	pairs := make([]value.Value, len(a.order))
	for i, v := range a.order {
		pairs[i] = value.List(v, value.Int(int64(a.counts[v.String()])))
	}
	return value.List(pairs...)
}

type varianceAcc struct {
	sum, sumSq float64
	n          int64
	stddev     bool
}

func (a *varianceAcc) add(v value.Value) {
	f := asFloat(v)
	a.sum += f
	a.sumSq += f * f
	a.n++
}

func (a *varianceAcc) result() value.Value {
	if a.n == 0 {
		return value.Null()
	}
	mean := a.sum / float64(a.n)
	v := a.sumSq/float64(a.n) - mean*mean
	if v < 0 {
		v = 0 // guards against floating-point underflow for near-zero variance
	}
	if a.stddev {
		return value.Float(math.Sqrt(v))
	}
	return value.Float(v)
}

type bitXorAcc struct {
	acc   int64
	first bool
}

func (a *bitXorAcc) add(v value.Value) {
	if !a.first {
		a.acc = v.Int
		a.first = true
		return
	}
	a.acc ^= v.Int
}
func (a *bitXorAcc) result() value.Value { return value.Int(a.acc) }

type lastAcc struct{ v value.Value }

func (a *lastAcc) add(v value.Value)      { a.v = v }
func (a *lastAcc) result() value.Value    { return a.v }

// choiceRandAcc implements reservoir sampling of size 1, giving each row an
// equal probability of being the chosen value regardless of row count.
type choiceRandAcc struct {
	v    value.Value
	seen int64
}

func (a *choiceRandAcc) add(v value.Value) {
	a.seen++
	if a.seen == 1 || rand.Int63n(a.seen) == 0 {
		a.v = v
	}
}
func (a *choiceRandAcc) result() value.Value { return a.v }

func asFloat(v value.Value) float64 {
	if v.Tag == value.TagInt {
		return float64(v.Int)
	}
	return v.Float
}
